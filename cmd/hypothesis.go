package cmd

import (
	"fmt"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/hypothesis"
	"github.com/spf13/cobra"
)

var (
	hypFile    string
	hypJSON    bool
	hypAlpha   float64
	hypGroup   string
	hypOutcome string
	hypValue   string
	hypA       string
	hypB       string
)

var hypothesisCmd = &cobra.Command{
	Use:   "hypothesis",
	Short: "Significance tests on claim frequency and margin",
	Long: `Runs chi-squared, Welch t and one-way ANOVA tests. The derived columns
has_claim (TotalClaims > 0) and margin (TotalPremium - TotalClaims) are added
before testing, so they can be named with --outcome and --value.`,
}

var hypChi2Cmd = &cobra.Command{
	Use:   "chi2",
	Short: "Chi-squared test of independence between --group and --outcome",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := hypothesisTable()
		if err != nil {
			return err
		}
		outcome := hypOutcome
		if outcome == "" {
			outcome = hypothesis.ClaimFlagColumn
		}
		res, err := hypothesis.ChiSquared(t, hypGroup, outcome, hypAlpha)
		if err != nil {
			return err
		}
		return printResult(cmd, res)
	},
}

var hypTTestCmd = &cobra.Command{
	Use:   "ttest",
	Short: "Welch t-test of --value between groups --a and --b of --group",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := hypothesisTable()
		if err != nil {
			return err
		}
		group, a, b := hypGroup, hypA, hypB
		if !cmd.Flags().Changed("group") {
			group = "Gender"
		}
		if a == "" && b == "" && group == "Gender" {
			a, b = "Male", "Female"
		}
		res, err := hypothesis.WelchTTest(t, group, hypValue, a, b, hypAlpha)
		if err != nil {
			return err
		}
		return printResult(cmd, res)
	},
}

var hypANOVACmd = &cobra.Command{
	Use:   "anova",
	Short: "One-way ANOVA of --value across the groups of --group",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := hypothesisTable()
		if err != nil {
			return err
		}
		res, err := hypothesis.ANOVA(t, hypGroup, hypValue, hypAlpha)
		if err != nil {
			return err
		}
		return printResult(cmd, res)
	},
}

// hypothesisTable loads the dataset and adds has_claim and margin.
func hypothesisTable() (*dataset.Table, error) {
	t, _, err := loadTable(hypFile)
	if err != nil {
		return nil, err
	}
	if t, err = hypothesis.AddClaimFlag(t); err != nil {
		return nil, err
	}
	if t, err = hypothesis.AddMargin(t); err != nil {
		return nil, err
	}
	return t, nil
}

func printResult(cmd *cobra.Command, res hypothesis.Result) error {
	if hypJSON {
		return printJSON(cmd.OutOrStdout(), res)
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.String())
	return nil
}

func init() {
	rootCmd.AddCommand(hypothesisCmd)
	pf := hypothesisCmd.PersistentFlags()
	pf.StringVarP(&hypFile, "file", "f", "", "dataset path or name below <data_dir>/raw (default "+dataset.DefaultFilename+")")
	pf.BoolVar(&hypJSON, "json", false, "print the result as JSON")
	pf.Float64Var(&hypAlpha, "alpha", hypothesis.DefaultAlpha, "significance level")
	pf.StringVar(&hypGroup, "group", "Province", "grouping column")

	hypChi2Cmd.Flags().StringVar(&hypOutcome, "outcome", "", "categorical outcome column (default "+hypothesis.ClaimFlagColumn+")")
	for _, c := range []*cobra.Command{hypTTestCmd, hypANOVACmd} {
		c.Flags().StringVar(&hypValue, "value", hypothesis.MarginColumn, "numeric column to compare")
	}
	hypTTestCmd.Flags().StringVar(&hypA, "a", "", "first group label (default Male when grouping by Gender)")
	hypTTestCmd.Flags().StringVar(&hypB, "b", "", "second group label (default Female when grouping by Gender)")

	hypothesisCmd.AddCommand(hypChi2Cmd, hypTTestCmd, hypANOVACmd)
}
