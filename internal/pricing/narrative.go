package pricing

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// Narrative is the human-readable recommendation for an assessment.
type Narrative struct {
	Headline string   `json:"headline"`
	Bullets  []string `json:"bullets"`
	Action   string   `json:"action"`
}

var printer = message.NewPrinter(language.English)

var tierNarratives = map[Tier]Narrative{
	TierLow: {
		Headline: "Favorable risk profile.",
		Bullets: []string{
			"Consider offering competitive rates to win this customer.",
			"Standard underwriting is sufficient.",
			"Good candidate for low-risk marketing segments.",
		},
	},
	TierMedium: {
		Headline: "Moderate risk profile.",
		Bullets: []string{
			"Standard premium levels are appropriate.",
			"Consider verifying key details (vehicle use, garaging).",
			"Monitor claim history at renewal.",
		},
	},
	TierHigh: {
		Headline: "High risk profile.",
		Bullets: []string{
			"Consider applying a risk loading to the premium.",
			"Additional underwriting review recommended.",
			"May require higher excess or coverage limitations.",
		},
	},
}

// Rand formats an amount in whole rand with thousands separators.
func Rand(v float64) string {
	return printer.Sprintf("R %.0f", v)
}

// Describe returns the tier recommendation and the premium action sentence.
func Describe(a Assessment) Narrative {
	n := tierNarratives[a.RiskTier]
	n.Bullets = append([]string(nil), n.Bullets...)
	switch a.SuggestionType {
	case Discount:
		n.Action = printer.Sprintf(
			"The policy appears over-priced relative to modelled risk. You could consider a discount down to %s/month (%.1f%% vs current premium of %s) while remaining within the risk-based range.",
			Rand(a.SuggestedPremium), -a.SuggestedDeltaPct*100, Rand(a.CurrentPremium))
	case Increase:
		n.Action = printer.Sprintf(
			"The policy appears under-priced relative to modelled risk. Consider increasing the premium up to %s/month (%.1f%% above the current premium of %s) to better align with the risk-based premium of %s.",
			Rand(a.SuggestedPremium), a.SuggestedDeltaPct*100, Rand(a.CurrentPremium), Rand(a.RiskPremium))
	default:
		if a.RiskPremium <= 0 || a.CurrentPremium <= 0 {
			n.Action = printer.Sprintf(
				"No adjustment can be computed for a current premium of %s and a risk-based premium of %s; the current premium is kept.",
				Rand(a.CurrentPremium), Rand(a.RiskPremium))
		} else {
			n.Action = printer.Sprintf(
				"Current premium %s/month is within about 10%% of the modelled risk-based premium %s/month. No strong discount or increase is required; pricing is broadly aligned with risk.",
				Rand(a.CurrentPremium), Rand(a.RiskPremium))
		}
	}
	return n
}
