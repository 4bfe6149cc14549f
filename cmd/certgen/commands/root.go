package commands

import (
	"fmt"
	"os"
	"strings"

	"github.com/go-json-experiment/json"
	"github.com/spf13/cobra"

	"github.com/zeptools/gw-certs/certs"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "certgen",
		Short:         "Bulk certificate rendering service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.AddCommand(
		NewServeCommand(),
		NewLayoutCommand(),
		NewRenderCommand(),
	)
	return rootCmd
}

// loadTemplate reads a template JSON file, fills defaults and validates it
func loadTemplate(path string) (certs.Template, error) {
	var t certs.Template
	data, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	if err = json.Unmarshal(data, &t); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	t.Normalize()
	if err = t.Validate(); err != nil {
		return t, err
	}
	return t, nil
}

// parseValues turns repeated name=value flags into a field map
func parseValues(pairs []string) (map[string]string, error) {
	values := make(map[string]string, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid field %q, want name=value", p)
		}
		values[name] = value
	}
	return values, nil
}
