package cmd

import (
	"fmt"

	"github.com/KaramelBytes/riskloom-cli/internal/dataset"
	"github.com/spf13/cobra"
)

var convertXLSX bool

var convertCmd = &cobra.Command{
	Use:   "convert [filename]",
	Short: "Convert a raw pipe-delimited dataset into data/processed",
	Long: `Reads <data_dir>/raw/<filename> (default ` + dataset.DefaultFilename + `) and writes a
comma-delimited copy to <data_dir>/processed/<name>.csv, or a workbook with --xlsx.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := requireConfig()
		if err != nil {
			return err
		}
		name := ""
		if len(args) == 1 {
			name = args[0]
		}
		out, err := dataset.NewLoader(c.DataDir).Convert(name, convertXLSX)
		if err != nil {
			return withHint(err)
		}
		logger.Debug("converted dataset", "output", out, "xlsx", convertXLSX)
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s\n", out)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(convertCmd)
	convertCmd.Flags().BoolVar(&convertXLSX, "xlsx", false, "write an .xlsx workbook instead of CSV")
}
