package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

type validateOptions struct {
	template  string
	csv       string
	name      string
	delimiter string
	noHeader  bool
}

func newValidateCmd(a *app) *cobra.Command {
	var opts validateOptions

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a template file and, optionally, a CSV against it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runValidate(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "template file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.csv, "csv", "", "CSV file to check against the template")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "filename template to check for placeholders")
	cmd.Flags().StringVarP(&opts.delimiter, "delimiter", "d", ",", "field delimiter")
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "the first row is data")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func runValidate(cmd *cobra.Command, a *app, opts validateOptions) error {
	tpl, elements, _, err := LoadTemplate(opts.template)
	if err != nil {
		return err
	}
	if !a.quiet {
		cmd.Printf("Template %q is valid: %dx%d, %d elements\n", tpl.Name, tpl.Width, tpl.Height, len(elements))
	}
	if opts.csv == "" {
		return nil
	}

	table, err := loadTable(cmd.InOrStdin(), opts.csv, opts.delimiter, !opts.noHeader)
	if err != nil {
		return err
	}
	missing := table.MissingFields(elements, opts.name)
	for _, field := range missing {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: column not found for placeholder ${%s}\n", field)
	}
	if !a.quiet {
		cmd.Printf("CSV %s: %d rows, columns %s\n", opts.csv, len(table.Rows), strings.Join(table.Headers, ", "))
	}
	return nil
}

// problemsError lists every problem found in one input.
type problemsError struct {
	what     string
	problems []string
}

func (e *problemsError) Error() string {
	return fmt.Sprintf("%s is invalid:\n  %s", e.what, strings.Join(e.problems, "\n  "))
}
