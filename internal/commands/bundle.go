package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/lookup"
	"github.com/quilldev/kurisu/internal/output"
)

// NewBundleCmd creates the bundle command.
func NewBundleCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "bundle",
		Short: "Download the latest game data bundle",
		Long: `Download the Data Dragon bundle for the current game version.

Bundles are stored as <dir>/<version>.tgz. Nothing is downloaded when the
file for the current version already exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			if dir == "" {
				dir = app.Config.BundleDir()
			}

			b, err := app.Resolver.EnsureLatestBundle(cmd.Context(), dir)
			if err != nil {
				return err
			}
			return app.OK(bundleView{b}, output.WithSummary(fmt.Sprintf("Bundle %s %s", b.Version, b.Status)))
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "Bundle directory (default <cache-dir>/bundles)")
	return cmd
}

type bundleView struct {
	*lookup.Bundle
}

func (v bundleView) RenderText(w io.Writer) error {
	_, err := printer.Fprintf(w, "%s\n%d bytes\n", v.Path, v.Size)
	return err
}
