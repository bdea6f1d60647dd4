package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/datalens/internal/utils"
)

// outputOptions holds the --format and --output flags of a command.
type outputOptions struct {
	format  string
	path    string
	allowed []string
}

func (o *outputOptions) register(cmd *cobra.Command, def string, allowed ...string) {
	o.allowed = allowed
	cmd.Flags().StringVar(&o.format, "format", def, "output format: "+strings.Join(allowed, "|"))
	cmd.Flags().StringVarP(&o.path, "output", "o", "", "optional path to write the result")
}

// emit renders v in the selected format and writes it to the output path or
// stdout. markdown may be nil when the command has no Markdown rendering.
func (o *outputOptions) emit(cmd *cobra.Command, what string, v any, markdown func() string) error {
	format := strings.ToLower(strings.TrimSpace(o.format))
	if !contains(o.allowed, format) {
		return fmt.Errorf("unsupported --format: %s (use %s)", o.format, strings.Join(o.allowed, "|"))
	}
	var data []byte
	switch format {
	case "json":
		b, err := utils.PrettyJSON(v)
		if err != nil {
			return err
		}
		data = append(b, '\n')
	case "yaml":
		b, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("marshal yaml: %w", err)
		}
		data = b
	case "markdown":
		data = []byte(markdown())
	}

	if o.path != "" {
		if err := utils.SafeWriteFile(o.path, data); err != nil {
			return fmt.Errorf("write output: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ Wrote %s to %s\n", what, o.path)
		return nil
	}
	_, err := cmd.OutOrStdout().Write(data)
	return err
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
