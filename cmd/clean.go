package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/datalens/internal/dataset"
	"github.com/KaramelBytes/datalens/internal/pipeline"
)

var (
	cleanOut     outputOptions
	cleanRecords bool
)

type cleanResult struct {
	Report  *pipeline.CleanReport `json:"report" yaml:"report"`
	Records []dataset.Row         `json:"records,omitempty" yaml:"records,omitempty"`
}

var cleanCmd = &cobra.Command{
	Use:   "clean",
	Short: "Clean the dataset and report duplicates, imputations and outliers",
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := newProcessor()
		if err != nil {
			return err
		}
		ds, rep, err := p.Clean(cmd.Context())
		if err != nil {
			return err
		}
		out := cleanResult{Report: rep}
		if cleanRecords {
			out.Records = ds.Records()
		}
		return cleanOut.emit(cmd, "cleaning report", out, nil)
	},
}

func init() {
	rootCmd.AddCommand(cleanCmd)
	cleanOut.register(cleanCmd, "json", "json", "yaml")
	cleanCmd.Flags().BoolVar(&cleanRecords, "records", false, "include the cleaned records")
}
