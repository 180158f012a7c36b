package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"cardpress/internal/adapters/storage/localfs"
	"cardpress/internal/batch"
	"cardpress/internal/csvdata"
	"cardpress/internal/ports"
	"cardpress/internal/render"
)

// ArchiveName is the zip written next to the images of a batch.
const ArchiveName = "archive.zip"

type batchOptions struct {
	template  string
	csv       string
	out       string
	name      string
	format    string
	delimiter string
	noHeader  bool
	noArchive bool
}

func newBatchCmd(a *app) *cobra.Command {
	var opts batchOptions

	cmd := &cobra.Command{
		Use:   "batch",
		Short: "Render one image per CSV row",
		Long: `Render the template once per CSV row into --out, then zip the successful
images into archive.zip. Rows that fail are reported and skipped. Interrupting
the run stops at the next row; images already rendered are still written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBatch(cmd, a, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.template, "template", "t", "", "template file (YAML or JSON)")
	cmd.Flags().StringVar(&opts.csv, "csv", "", "CSV file, or - for stdin")
	cmd.Flags().StringVarP(&opts.out, "out", "o", "", "output directory")
	cmd.Flags().StringVarP(&opts.name, "name", "n", "", "filename template, e.g. card_${id} (default image_<n>)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "png", "output format: png, jpeg, bmp")
	cmd.Flags().StringVarP(&opts.delimiter, "delimiter", "d", ",", `field delimiter; "tab" or \t for tabs`)
	cmd.Flags().BoolVar(&opts.noHeader, "no-header", false, "the first row is data, columns are named \"Column N\"")
	cmd.Flags().BoolVar(&opts.noArchive, "no-archive", false, "skip writing "+ArchiveName)
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("csv")
	_ = cmd.MarkFlagRequired("out")
	return cmd
}

func runBatch(cmd *cobra.Command, a *app, opts batchOptions) error {
	tpl, elements, dir, err := LoadTemplate(opts.template)
	if err != nil {
		return err
	}
	format, err := render.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	table, err := loadTable(cmd.InOrStdin(), opts.csv, opts.delimiter, !opts.noHeader)
	if err != nil {
		return err
	}
	stderr := cmd.ErrOrStderr()
	for _, field := range table.MissingFields(elements, opts.name) {
		fmt.Fprintf(stderr, "warning: column not found for placeholder ${%s}\n", field)
	}

	if err := os.MkdirAll(opts.out, 0o755); err != nil {
		return err
	}
	store := localfs.New(opts.out)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var packErr string
	observer := func(e batch.Event) {
		switch {
		case e.Type == batch.EventError:
			packErr = e.Message
		case e.Type == batch.EventProgress && e.Result != nil && !a.quiet:
			printResult(cmd, e)
		}
	}
	packager := batch.PackagerFunc(func(ctx context.Context, results []batch.Result) (string, error) {
		if err := writeImages(ctx, store, results); err != nil {
			return "", err
		}
		if opts.noArchive {
			return "", nil
		}
		return batch.NewZipPackager(store, ArchiveName).Package(ctx, results)
	})

	runner := batch.NewRunner(a.renderer(dir),
		batch.WithObserver(observer),
		batch.WithPackager(packager),
	)
	outcome, err := runner.Run(ctx, batch.Job{
		Template:         tpl.Canvas(),
		Elements:         elements,
		Records:          table.Records(),
		FilenameTemplate: opts.name,
		Format:           format,
	})

	if errors.Is(err, batch.ErrAborted) {
		if werr := writeImages(context.WithoutCancel(ctx), store, outcome.Results); werr != nil {
			fmt.Fprintf(stderr, "write partial images: %v\n", werr)
		}
		cmd.Printf("Aborted after %d of %d rows (%d ok, %d failed)\n",
			outcome.Processed(), outcome.Total, outcome.Successful, outcome.Failed)
		return err
	}
	if err != nil {
		return err
	}

	a.logger().Info("batch finished", "template", tpl.Name, "total", outcome.Total,
		"successful", outcome.Successful, "failed", outcome.Failed)
	if !a.quiet {
		cmd.Printf("Rendered %d of %d rows into %s", outcome.Successful, outcome.Total, opts.out)
		if outcome.ArchiveRef != "" {
			cmd.Printf(" (%s)", outcome.ArchiveRef)
		}
		cmd.Println()
	}
	if packErr != "" {
		return errors.New(packErr)
	}
	if outcome.Total > 0 && outcome.Successful == 0 {
		return fmt.Errorf("all %d rows failed", outcome.Total)
	}
	return nil
}

func printResult(cmd *cobra.Command, e batch.Event) {
	res := e.Result
	if res.Success {
		cmd.Printf("[%d/%d] %s\n", e.Processed, e.Total, res.Filename)
	} else {
		cmd.Printf("[%d/%d] %s failed: %s\n", e.Processed, e.Total, res.Filename, res.Error)
	}
	for _, w := range res.Warnings {
		fmt.Fprintf(cmd.ErrOrStderr(), "warning: row %d: %s\n", res.Index+1, w)
	}
}

func loadTable(stdin io.Reader, path, delimiter string, hasHeader bool) (*csvdata.Table, error) {
	delim, err := csvdata.ParseDelimiter(delimiter)
	if err != nil {
		return nil, err
	}
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	table, err := csvdata.Parse(r, csvdata.Options{Delimiter: delim, HasHeader: hasHeader})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if problems := table.Validate(); len(problems) > 0 {
		return nil, &problemsError{what: path, problems: problems}
	}
	return table, nil
}

// writeImages stores each successful result under its deduplicated name.
func writeImages(ctx context.Context, store ports.StorageProvider, results []batch.Result) error {
	var ok []batch.Result
	var names []string
	for _, r := range results {
		if r.Success {
			ok = append(ok, r)
			names = append(names, r.Filename)
		}
	}
	names = batch.Dedupe(names)

	for i, r := range ok {
		format, _ := render.ParseFormat(extOf(names[i]))
		_, err := store.PutObject(ctx, ports.PutObjectInput{
			ObjectKey:   names[i],
			ContentType: format.ContentType(),
			Reader:      bytes.NewReader(r.Data),
			Size:        int64(len(r.Data)),
		})
		if err != nil {
			return fmt.Errorf("write %s: %w", names[i], err)
		}
	}
	return nil
}

func extOf(name string) string {
	return strings.TrimPrefix(filepath.Ext(name), ".")
}
