// Package cli implements the cardpress command line: single renders, CSV
// batches and validation of template files, all on the local filesystem.
package cli

import (
	"time"

	"github.com/spf13/cobra"

	"cardpress/internal/assets"
	"cardpress/internal/pkg/logger"
	"cardpress/internal/render"
)

// app holds what the persistent flags configure for every subcommand.
type app struct {
	fontDirs  []string
	logLevel  string
	noRemote  bool
	quiet     bool
	log       *logger.Logger
	fontCache *render.FontCache
}

// NewRootCmd creates the cardpress command with its subcommands.
func NewRootCmd(version string) *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:           "cardpress",
		Short:         "Render images from templates and CSV data",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			a.log = logger.New(logger.Config{
				Level:       a.logLevel,
				Format:      "text",
				Output:      cmd.ErrOrStderr(),
				ServiceName: "cardpress",
			})
			return nil
		},
		Example: `  # Render one image with inline values
  cardpress render --template badge.yaml --record name=Ada --out ada.png

  # Render every row of a CSV into out/ plus out/archive.zip
  cardpress batch --template badge.yaml --csv people.csv --out out --name 'badge_${id}'

  # Check a template and the columns a CSV provides
  cardpress validate --template badge.yaml --csv people.csv`,
	}

	cmd.PersistentFlags().StringSliceVar(&a.fontDirs, "font-dir", nil, "extra directory to scan for fonts (repeatable)")
	cmd.PersistentFlags().StringVar(&a.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	cmd.PersistentFlags().BoolVar(&a.noRemote, "no-remote", false, "reject http(s) image paths")
	cmd.PersistentFlags().BoolVarP(&a.quiet, "quiet", "q", false, "only print errors")

	cmd.AddCommand(newRenderCmd(a), newBatchCmd(a), newValidateCmd(a))
	return cmd
}

func (a *app) logger() *logger.Logger {
	if a.log == nil {
		return logger.NewNop()
	}
	return a.log
}

func (a *app) fonts() *render.FontCache {
	if a.fontCache == nil {
		dirs := append(append([]string(nil), a.fontDirs...), render.SystemFontDirs()...)
		a.fontCache = render.NewFontCache(dirs...)
	}
	return a.fontCache
}

// renderer resolves relative image paths against baseDir, the directory of
// the template file.
func (a *app) renderer(baseDir string) *render.Renderer {
	router := &assets.Router{
		File: &assets.FileResolver{Root: baseDir, AllowAbsolute: true},
	}
	if !a.noRemote {
		router.HTTP = assets.NewHTTPResolver(30 * time.Second)
	}
	return render.New(render.NewAssetCache(router), render.WithFonts(a.fonts()))
}
