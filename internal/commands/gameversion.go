package commands

import (
	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/output"
)

// NewGameVersionCmd creates the version-info command.
func NewGameVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version-info",
		Short: "Show the current game data version",
		Long:  "Show the newest game data version published by Data Dragon.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())

			v, err := app.Resolver.GameVersion(cmd.Context())
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"version": v}, output.WithSummary("Game version "+v))
		},
	}
}
