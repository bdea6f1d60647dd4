package cmd

import (
	"github.com/spf13/cobra"
)

var summaryOut outputOptions

var summaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize the analyzed dataset: counts, column types, missing values and sample rows",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProcessor()
		if err != nil {
			return err
		}
		sum, err := p.Summarize(cmd.Context())
		if err != nil {
			return err
		}
		return summaryOut.emit(cmd, "summary", sum, nil)
	},
}

func init() {
	rootCmd.AddCommand(summaryCmd)
	summaryOut.register(summaryCmd, "json", "json", "yaml")
}
