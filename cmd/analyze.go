package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	analyzeOut     outputOptions
	analyzeRecords bool
)

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze the cleaned dataset: statistics, regions, correlations, categories and rankings",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProcessor()
		if err != nil {
			return err
		}
		if analyzeRecords {
			if strings.EqualFold(strings.TrimSpace(analyzeOut.format), "markdown") {
				return fmt.Errorf("--records needs --format json or yaml")
			}
			rows, err := p.Records(cmd.Context())
			if err != nil {
				return err
			}
			return analyzeOut.emit(cmd, "analyzed records", rows, nil)
		}
		rep, err := p.Analyze(cmd.Context())
		if err != nil {
			return err
		}
		return analyzeOut.emit(cmd, "analysis", rep, rep.Markdown)
	},
}

func init() {
	rootCmd.AddCommand(analyzeCmd)
	analyzeOut.register(analyzeCmd, "markdown", "markdown", "json", "yaml")
	analyzeCmd.Flags().BoolVar(&analyzeRecords, "records", false, "print only the analyzed records (with the category column)")
}
