package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"cardpress/internal/render"
)

type renderOptions struct {
	template string
	records  []string
	out      string
	format   string
}

func newRenderCmd(a *app) *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a template once to an image file",
		Long: `Render a template once. Without --record the design view is drawn with
placeholders left as written; with one or more --record key=value pairs the
placeholders are filled. The format follows --format, or the --out extension.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRender(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "template file (YAML or JSON)")
	cmd.Flags().StringArrayVarP(&opts.records, "record", "r", nil, "record value as key=value (repeatable)")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output image path")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "", "output format: png, jpeg, bmp")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runRender(cmd *cobra.Command, a *app, opts renderOptions) error {
	tpl, elements, dir, err := LoadTemplate(opts.template)
	if err != nil {
		return err
	}
	record, err := parseRecord(opts.records)
	if err != nil {
		return err
	}
	format, err := outputFormat(opts.format, opts.out)
	if err != nil {
		return err
	}

	out, err := a.renderer(dir).Render(cmd.Context(), tpl.Canvas(), elements, record, format)
	if err != nil {
		return err
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s\n", w)
	}

	if d := filepath.Dir(opts.out); d != "." {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	if err := os.WriteFile(opts.out, out.Data, 0o644); err != nil {
		return err
	}
	a.logger().Info("rendered", "template", tpl.Name, "out", opts.out, "format", format, "warnings", len(out.Warnings))
	if !a.quiet {
		cmd.Printf("Wrote %s (%dx%d %s)\n", opts.out, out.Width, out.Height, format)
	}
	return nil
}

// parseRecord turns key=value pairs into a record. No pairs yields a nil
// record, which renders the design view.
func parseRecord(pairs []string) (render.Record, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	rec := make(render.Record, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --record %q: expected key=value", p)
		}
		rec[k] = v
	}
	return rec, nil
}

// outputFormat prefers the explicit flag and falls back to the extension of
// path, then to PNG.
func outputFormat(flag, path string) (render.Format, error) {
	if flag != "" {
		return render.ParseFormat(flag)
	}
	if ext := filepath.Ext(path); ext != "" {
		if f, err := render.ParseFormat(ext); err == nil {
			return f, nil
		}
	}
	return render.FormatPNG, nil
}
