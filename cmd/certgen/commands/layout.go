package commands

import (
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/spf13/cobra"

	"github.com/zeptools/gw-certs/layout"
)

func NewLayoutCommand() *cobra.Command {
	var (
		templatePath string
		fields       []string
	)
	cmd := &cobra.Command{
		Use:   "layout",
		Short: "Print the draw plan of a template for the given field values",
		Example: `  certgen layout --template honor.json \
    --set student_name="Ana Lee" --set school_name="Lincoln High"`,
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTemplate(templatePath)
			if err != nil {
				return err
			}
			values, err := parseValues(fields)
			if err != nil {
				return err
			}
			plan, err := layout.Layout(t, values)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if err = json.MarshalWrite(out, plan, jsontext.WithIndent("  ")); err != nil {
				return err
			}
			_, err = out.Write([]byte("\n"))
			return err
		},
	}
	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template JSON file")
	cmd.Flags().StringArrayVar(&fields, "set", nil, "field value as name=value, repeatable")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}
