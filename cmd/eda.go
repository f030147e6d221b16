package cmd

import (
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/KaramelBytes/riskloom-cli/internal/eda"
	"github.com/KaramelBytes/riskloom-cli/internal/utils"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

var (
	edaFile string
	edaJSON bool

	sumSampleRows int
	sumGroupBy    []string
	sumCorr       bool
	sumOutliers   bool
	sumOutlierThr float64
	sumOutputDir  string
	sumQuiet      bool

	quantCols   []string
	quantLevels []float64
	lrBy        []string

	plotKind   string
	plotCol    string
	plotOut    string
	plotBins   int
	plotLog    bool
	plotTopN   int
	plotWidth  float64
	plotHeight float64
)

var edaCmd = &cobra.Command{
	Use:   "eda",
	Short: "Exploratory analysis of the claims dataset",
}

var edaSummaryCmd = &cobra.Command{
	Use:   "summary [files...]",
	Short: "Profile one or more datasets (default: the raw dataset)",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		opt := eda.DefaultProfileOptions()
		opt.SampleRows = sumSampleRows
		opt.GroupBy = sumGroupBy
		opt.Correlations = sumCorr
		opt.Outliers = sumOutliers
		if sumOutlierThr > 0 {
			opt.OutlierThreshold = sumOutlierThr
		}

		files, err := expandFiles(args)
		if err != nil {
			return err
		}
		if len(files) == 0 {
			files = []string{edaFile}
		}
		total := len(files)
		for i, path := range files {
			t, name, err := loadTable(path)
			if err != nil {
				return err
			}
			if !sumQuiet && total > 1 {
				fmt.Fprintf(out, "[%d/%d] Processing %s...\n", i+1, total, filepath.Base(name))
			}
			rep, err := eda.Profile(filepath.Base(name), t, opt)
			if err != nil {
				return fmt.Errorf("profile %s: %w", filepath.Base(name), err)
			}
			md := rep.Markdown()
			if sumOutputDir == "" {
				fmt.Fprintln(out, md)
				continue
			}
			outFile, err := writeSummary(sumOutputDir, name, md)
			if err != nil {
				return err
			}
			if !sumQuiet {
				fmt.Fprintf(out, "✓ Wrote %s\n", outFile)
			}
		}
		return nil
	},
}

// expandFiles resolves globs and literal paths, dropping duplicates.
func expandFiles(args []string) ([]string, error) {
	var files []string
	seen := map[string]struct{}{}
	for _, arg := range args {
		matches, _ := filepath.Glob(arg)
		if len(matches) == 0 {
			// treat as literal path if exists
			if _, err := os.Stat(arg); err == nil {
				matches = []string{arg}
			}
		}
		for _, m := range matches {
			if _, ok := seen[m]; ok {
				continue
			}
			seen[m] = struct{}{}
			files = append(files, m)
		}
	}
	if len(args) > 0 && len(files) == 0 {
		return nil, fmt.Errorf("no input files matched")
	}
	sort.Strings(files)
	return files, nil
}

// writeSummary writes <stem>.summary.md into dir, adding a __N suffix instead
// of overwriting an existing summary.
func writeSummary(dir, source, md string) (string, error) {
	if err := utils.EnsureDir(dir); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}
	base := filepath.Base(source)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	outFile := filepath.Join(dir, stem+".summary.md")
	if _, statErr := os.Stat(outFile); statErr == nil {
		for idx := 2; ; idx++ {
			cand := filepath.Join(dir, fmt.Sprintf("%s__%d.summary.md", stem, idx))
			if _, err := os.Stat(cand); os.IsNotExist(err) {
				outFile = cand
				break
			}
		}
	}
	if err := os.WriteFile(outFile, []byte(md), 0o644); err != nil {
		return "", fmt.Errorf("write summary: %w", err)
	}
	return outFile, nil
}

var edaMissingCmd = &cobra.Command{
	Use:   "missing",
	Short: "Missing values per column, most missing first",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		rows := eda.Missingness(t)
		if edaJSON {
			return printJSON(cmd.OutOrStdout(), rows)
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-32s %10s %9s\n", "column", "missing", "pct")
		for _, r := range rows {
			fmt.Fprintf(out, "%-32s %10d %8.2f%%\n", r.Column, r.MissingCount, r.MissingPct)
		}
		return nil
	},
}

var edaDescribeCmd = &cobra.Command{
	Use:   "describe",
	Short: "Count, mean, std, min, quartiles and max of numeric columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		cols := quantCols
		if len(cols) == 0 {
			cols = numericColumns(t)
		}
		rows, err := eda.Describe(t, cols)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "%-28s %8s %12s %12s %12s %12s %12s %12s %12s\n", "column", "count", "mean", "std", "min", "25%", "50%", "75%", "max")
		for _, r := range rows {
			fmt.Fprintf(out, "%-28s %8d %12s %12s %12s %12s %12s %12s %12s\n", r.Column, r.Count,
				num(r.Mean), num(r.Std), num(r.Min), num(r.Q25), num(r.Q50), num(r.Q75), num(r.Max))
		}
		return nil
	},
}

var edaQuantilesCmd = &cobra.Command{
	Use:   "quantiles",
	Short: "Upper quantiles of numeric columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		cols := quantCols
		if len(cols) == 0 {
			cols = []string{eda.PremiumColumn, eda.ClaimsColumn}
		}
		rows, err := eda.HighQuantiles(t, cols, quantLevels)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, r := range rows {
			parts := make([]string, len(r.Labels))
			for i, l := range r.Labels {
				parts[i] = l + "=" + num(r.Values[i])
			}
			fmt.Fprintf(out, "%s: %s\n", r.Column, strings.Join(parts, " "))
		}
		return nil
	},
}

var edaIQRCmd = &cobra.Command{
	Use:   "iqr <column>",
	Short: "Outlier bounds Q1-1.5*IQR and Q3+1.5*IQR",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		lo, hi, err := eda.IQRBounds(t, args[0])
		if err != nil {
			return err
		}
		c, _ := t.Column(args[0])
		outside := 0
		for _, v := range c.NonNullFloats() {
			if v < lo || v > hi {
				outside++
			}
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s: lower=%s upper=%s outside=%d\n", args[0], num(lo), num(hi), outside)
		return nil
	},
}

var edaLossRatioCmd = &cobra.Command{
	Use:   "loss-ratio",
	Short: "Portfolio loss ratio, overall or --by columns",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(lrBy) == 0 {
			lr, err := eda.LossRatioOverall(t)
			if err != nil {
				return err
			}
			if edaJSON {
				return printJSON(out, map[string]float64{"loss_ratio": lr})
			}
			fmt.Fprintf(out, "Overall loss ratio: %.4f\n", lr)
			return nil
		}
		rows, err := eda.LossRatioByGroup(t, lrBy)
		if err != nil {
			return err
		}
		if edaJSON {
			return printJSON(out, rows)
		}
		fmt.Fprintf(out, "%-40s %16s %16s %10s\n", strings.Join(lrBy, "/"), "premium", "claims", "ratio")
		for _, r := range rows {
			fmt.Fprintf(out, "%-40s %16.2f %16.2f %10.4f\n", strings.Join(r.Keys, "/"), r.TotalPremium, r.TotalClaims, r.LossRatio)
		}
		return nil
	},
}

var edaTrendsCmd = &cobra.Command{
	Use:   "trends",
	Short: "Monthly premium, claims and loss ratio",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		rows, err := eda.MonthlyLossRatios(t)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if edaJSON {
			return printJSON(out, rows)
		}
		fmt.Fprintf(out, "%-8s %16s %16s %10s\n", "month", "premium", "claims", "ratio")
		for _, r := range rows {
			fmt.Fprintf(out, "%-8s %16.2f %16.2f %10.4f\n", r.Month.Format("2006-01"), r.TotalPremium, r.TotalClaims, r.LossRatio)
		}
		return nil
	},
}

var edaPostalCmd = &cobra.Command{
	Use:   "postal",
	Short: "Average monthly premium, claims and loss ratio per postal code",
	RunE: func(cmd *cobra.Command, args []string) error {
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		monthly, err := eda.MonthlyTotalsByPostal(t)
		if err != nil {
			return err
		}
		rows := eda.PostalAverages(monthly)
		out := cmd.OutOrStdout()
		if edaJSON {
			return printJSON(out, rows)
		}
		fmt.Fprintf(out, "%-10s %7s %16s %16s %10s\n", "postal", "months", "avg premium", "avg claims", "avg ratio")
		for _, r := range rows {
			fmt.Fprintf(out, "%-10s %7d %16.2f %16.2f %10.4f\n", r.PostalCode, r.Months, r.AvgMonthlyPremium, r.AvgMonthlyClaims, r.AvgMonthlyLossRatio)
		}
		return nil
	},
}

var edaPlotCmd = &cobra.Command{
	Use:   "plot",
	Short: "Save a histogram, box plot or category count chart",
	RunE: func(cmd *cobra.Command, args []string) error {
		if plotCol == "" {
			return fmt.Errorf("--column is required")
		}
		t, _, err := loadTable(edaFile)
		if err != nil {
			return err
		}
		path := plotOut
		if path == "" {
			path = fmt.Sprintf("%s_%s.png", strings.ToLower(plotCol), plotKind)
		}
		if dir := filepath.Dir(path); dir != "." {
			if err := utils.EnsureDir(dir); err != nil {
				return fmt.Errorf("create output dir: %w", err)
			}
		}
		opt := eda.ChartOptions{
			Bins:     plotBins,
			LogScale: plotLog,
			TopN:     plotTopN,
			Width:    vg.Length(plotWidth) * vg.Inch,
			Height:   vg.Length(plotHeight) * vg.Inch,
		}
		switch plotKind {
		case "hist":
			err = eda.Histogram(t, plotCol, path, opt)
		case "box":
			err = eda.BoxPlot(t, plotCol, path, opt)
		case "counts":
			err = eda.CategoryCounts(t, plotCol, path, opt)
		default:
			return fmt.Errorf("unsupported --kind: %s (use hist|box|counts)", plotKind)
		}
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", path)
		return nil
	},
}

func numericColumns(t *dataset.Table) []string {
	var out []string
	for _, c := range t.Columns() {
		if c.Kind == dataset.KindNumeric {
			out = append(out, c.Name)
		}
	}
	return out
}

func num(v float64) string {
	if math.IsNaN(v) {
		return "NaN"
	}
	return strconv.FormatFloat(v, 'g', 6, 64)
}

func printJSON(w io.Writer, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(b))
	return nil
}

func init() {
	rootCmd.AddCommand(edaCmd)
	edaCmd.PersistentFlags().StringVarP(&edaFile, "file", "f", "", "dataset path or name below <data_dir>/raw (default "+dataset.DefaultFilename+")")
	edaCmd.PersistentFlags().BoolVar(&edaJSON, "json", false, "print JSON where supported")

	edaSummaryCmd.Flags().IntVar(&sumSampleRows, "sample-rows", 5, "number of sample rows to include")
	edaSummaryCmd.Flags().StringSliceVar(&sumGroupBy, "group-by", nil, "comma-separated column names to group by (repeatable)")
	edaSummaryCmd.Flags().BoolVar(&sumCorr, "correlations", true, "compute Pearson correlations among numeric columns")
	edaSummaryCmd.Flags().BoolVar(&sumOutliers, "outliers", true, "compute robust outlier counts (MAD)")
	edaSummaryCmd.Flags().Float64Var(&sumOutlierThr, "outlier-threshold", 3.5, "robust |z| threshold for outliers (MAD-based)")
	edaSummaryCmd.Flags().StringVarP(&sumOutputDir, "output-dir", "o", "", "write <name>.summary.md files here instead of printing")
	edaSummaryCmd.Flags().BoolVar(&sumQuiet, "quiet", false, "suppress progress and non-essential output")

	for _, c := range []*cobra.Command{edaQuantilesCmd, edaDescribeCmd} {
		c.Flags().StringSliceVar(&quantCols, "columns", nil, "columns to summarise")
	}
	edaQuantilesCmd.Flags().Float64SliceVar(&quantLevels, "q", nil, "quantile levels (default 0.75,0.9,0.95,0.99)")
	edaLossRatioCmd.Flags().StringSliceVar(&lrBy, "by", nil, "group by these columns")

	edaPlotCmd.Flags().StringVar(&plotKind, "kind", "hist", "chart kind: hist|box|counts")
	edaPlotCmd.Flags().StringVarP(&plotCol, "column", "c", "", "column to plot")
	edaPlotCmd.Flags().StringVarP(&plotOut, "output", "o", "", "output image path; the extension selects the format")
	edaPlotCmd.Flags().IntVar(&plotBins, "bins", 50, "histogram bins")
	edaPlotCmd.Flags().BoolVar(&plotLog, "log", false, "plot log10 of positive values")
	edaPlotCmd.Flags().IntVar(&plotTopN, "top", 20, "keep the most frequent categories (counts)")
	edaPlotCmd.Flags().Float64Var(&plotWidth, "width", 0, "width in inches")
	edaPlotCmd.Flags().Float64Var(&plotHeight, "height", 0, "height in inches")

	edaCmd.AddCommand(edaSummaryCmd, edaMissingCmd, edaDescribeCmd, edaQuantilesCmd, edaIQRCmd,
		edaLossRatioCmd, edaTrendsCmd, edaPostalCmd, edaPlotCmd)
}
