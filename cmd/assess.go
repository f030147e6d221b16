package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/KaramelBytes/riskloom-cli/internal/dashboard"
	"github.com/KaramelBytes/riskloom-cli/internal/pricing"
	"github.com/spf13/cobra"
)

var (
	assessInput dashboard.Input
	assessJSON  bool
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Price a single policy with the trained models",
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		store, err := openStore(ctx, c)
		if err != nil {
			return err
		}
		app, err := dashboard.Load(ctx, store, c, logger)
		if err != nil {
			return err
		}
		res, err := app.Assess(ctx, assessInput)
		if err != nil {
			if !app.Ready() {
				return fmt.Errorf("%w\n  %s", err, strings.Join(app.Remediation(), "\n  "))
			}
			return err
		}
		out := cmd.OutOrStdout()
		if assessJSON {
			return printJSON(out, res)
		}
		a := res.Assessment
		fmt.Fprintf(out, "Claim probability:  %.1f%%\n", a.ClaimProbability*100)
		fmt.Fprintf(out, "Expected severity:  %s\n", pricing.Rand(a.ExpectedSeverity))
		fmt.Fprintf(out, "Risk premium:       %s\n", pricing.Rand(a.RiskPremium))
		fmt.Fprintf(out, "Risk tier:          %s\n", a.RiskTier)
		fmt.Fprintf(out, "Suggested premium:  %s (%s)\n", pricing.Rand(a.SuggestedPremium), a.SuggestionType)
		n := res.Narrative
		fmt.Fprintf(out, "\n%s\n", n.Headline)
		for _, b := range n.Bullets {
			fmt.Fprintf(out, "  - %s\n", b)
		}
		fmt.Fprintf(out, "%s\n", n.Action)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(assessCmd)
	d := dashboard.DefaultInput()
	f := assessCmd.Flags()
	f.StringVar(&assessInput.Gender, "gender", d.Gender, "Male|Female")
	f.StringVar(&assessInput.Province, "province", d.Province, "province")
	f.BoolVar(&assessInput.IsVATRegistered, "vat-registered", d.IsVATRegistered, "policy holder is VAT registered")
	f.StringVar(&assessInput.VehicleType, "vehicle-type", d.VehicleType, "vehicle type")
	f.IntVar(&assessInput.RegistrationYear, "registration-year", d.RegistrationYear, "vehicle registration year (1990-2015)")
	f.Float64Var(&assessInput.SumInsured, "sum-insured", d.SumInsured, "sum insured (10,000-5,000,000)")
	f.Float64Var(&assessInput.CurrentPremium, "premium", d.CurrentPremium, "current premium (50-10,000)")
	f.StringVar(&assessInput.CoverType, "cover-type", d.CoverType, "cover type")
	f.BoolVar(&assessJSON, "json", false, "print the assessment as JSON")
}
