package commands

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zeptools/gw-certs/layout"
	"github.com/zeptools/gw-certs/pdfs"
	"github.com/zeptools/gw-certs/pdfs/impls/fpdf"
	"github.com/zeptools/gw-certs/render"
)

func NewRenderCommand() *cobra.Command {
	var (
		templatePath string
		fields       []string
		background   string
		out          string
	)
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render one certificate to a local PDF file",
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := loadTemplate(templatePath)
			if err != nil {
				return err
			}
			if background != "" {
				t.BackgroundImage = background
			}
			if t.BackgroundImage == "" {
				return errors.New("template has no background_image, pass --background")
			}
			values, err := parseValues(fields)
			if err != nil {
				return err
			}
			plan, err := layout.Layout(t, values)
			if err != nil {
				return err
			}
			r := render.NewRenderer(
				func() pdfs.Writer { return fpdf.New() },
				render.NewBackgrounds(nil, render.BackgroundConf{}),
			)
			if err = r.RenderToFile(cmd.Context(), t, plan, t.BackgroundImage, out); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d lines drawn, %d slots skipped\n", out, len(plan.Instructions), len(plan.Skipped))
			return err
		},
	}
	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "template JSON file")
	cmd.Flags().StringArrayVar(&fields, "set", nil, "field value as name=value, repeatable")
	cmd.Flags().StringVar(&background, "background", "", "background image URL, overrides the template's")
	cmd.Flags().StringVarP(&out, "out", "o", "certificate.pdf", "output PDF path")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}
