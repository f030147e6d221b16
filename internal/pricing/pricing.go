// Package pricing turns a claim probability and expected severity into a
// risk premium, a bounded premium suggestion and a risk tier.
package pricing

import (
	"errors"
	"fmt"
	"math"
)

// Loading and adjustment constants.
const (
	ExpenseLoading = 0.15
	ProfitMargin   = 0.10
	Tolerance      = 0.10
	MaxDiscount    = 0.20
	MaxIncrease    = 0.30
	// IncreaseCap bounds an increase relative to the risk premium.
	IncreaseCap = 1.05

	LowRiskBelow    = 0.10
	MediumRiskBelow = 0.30
)

// ErrInvalidInput rejects probabilities outside [0,1] and negative amounts.
var ErrInvalidInput = errors.New("invalid pricing input")

// Tier buckets claim probability.
type Tier string

const (
	TierLow    Tier = "Low"
	TierMedium Tier = "Medium"
	TierHigh   Tier = "High"
)

// Suggestion classifies the premium action.
type Suggestion string

const (
	Aligned  Suggestion = "aligned"
	Discount Suggestion = "discount"
	Increase Suggestion = "increase"
)

// Assessment is the per-request pricing outcome.
type Assessment struct {
	ClaimProbability  float64    `json:"claim_probability"`
	ExpectedSeverity  float64    `json:"expected_severity"`
	ExpectedLoss      float64    `json:"expected_loss"`
	RiskPremium       float64    `json:"risk_premium"`
	RiskTier          Tier       `json:"risk_tier"`
	CurrentPremium    float64    `json:"current_premium"`
	SuggestedPremium  float64    `json:"suggested_premium"`
	SuggestionType    Suggestion `json:"suggestion_type"`
	SuggestedDelta    float64    `json:"suggested_delta"`
	SuggestedDeltaPct float64    `json:"suggested_delta_pct"`
}

// RiskTier returns Low below 0.10, Medium below 0.30 and High otherwise.
func RiskTier(p float64) Tier {
	switch {
	case p < LowRiskBelow:
		return TierLow
	case p < MediumRiskBelow:
		return TierMedium
	default:
		return TierHigh
	}
}

// Assess prices one policy.
func Assess(claimProbability, expectedSeverity, currentPremium float64) (Assessment, error) {
	if math.IsNaN(claimProbability) || claimProbability < 0 || claimProbability > 1 {
		return Assessment{}, fmt.Errorf("%w: claim probability %v not in [0,1]", ErrInvalidInput, claimProbability)
	}
	if math.IsNaN(expectedSeverity) || math.IsInf(expectedSeverity, 0) || expectedSeverity < 0 {
		return Assessment{}, fmt.Errorf("%w: expected severity %v", ErrInvalidInput, expectedSeverity)
	}
	if math.IsNaN(currentPremium) || math.IsInf(currentPremium, 0) || currentPremium < 0 {
		return Assessment{}, fmt.Errorf("%w: current premium %v", ErrInvalidInput, currentPremium)
	}

	a := Assessment{
		ClaimProbability: claimProbability,
		ExpectedSeverity: expectedSeverity,
		ExpectedLoss:     claimProbability * expectedSeverity,
		RiskTier:         RiskTier(claimProbability),
		CurrentPremium:   currentPremium,
		SuggestedPremium: currentPremium,
		SuggestionType:   Aligned,
	}
	a.RiskPremium = a.ExpectedLoss * (1 + ExpenseLoading + ProfitMargin)

	if a.RiskPremium > 0 && currentPremium > 0 {
		diff := currentPremium - a.RiskPremium
		switch {
		case math.Abs(diff/a.RiskPremium) <= Tolerance:
		case diff > 0:
			a.SuggestionType = Discount
			pct := math.Min(diff/currentPremium, MaxDiscount)
			a.SuggestedPremium = math.Max(a.RiskPremium, currentPremium*(1-pct))
		default:
			a.SuggestionType = Increase
			pct := math.Min(-diff/currentPremium, MaxIncrease)
			a.SuggestedPremium = math.Min(a.RiskPremium*IncreaseCap, currentPremium*(1+pct))
		}
	}

	a.SuggestedDelta = a.SuggestedPremium - currentPremium
	if currentPremium > 0 {
		a.SuggestedDeltaPct = a.SuggestedDelta / currentPremium
	}
	return a, nil
}
