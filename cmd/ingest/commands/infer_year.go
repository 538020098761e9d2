package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/feichai0017/filing-pipeline/internal/partition"
)

var inferFolder string

var inferYearCmd = &cobra.Command{
	Use:   "infer-year <stem>...",
	Short: "Print the year partition inferred for file name stems",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runInferYear,
}

func init() {
	inferYearCmd.Flags().StringVar(&inferFolder, "folder", "", "Containing folder name used as the fallback year, e.g. 2019_Q4")
	rootCmd.AddCommand(inferYearCmd)
}

func runInferYear(cmd *cobra.Command, args []string) error {
	inferer := partition.NewInferer()
	folderYear := partition.LeadingYear(inferFolder)
	out := cmd.OutOrStdout()
	for _, stem := range args {
		year, rule := inferer.InferWithRule(stem, folderYear)
		if rule == "" {
			rule = "-"
		}
		fmt.Fprintf(out, "%s\t%s\t%s\n", stem, year, rule)
	}
	return nil
}
