package commands

import (
	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/output"
	"github.com/quilldev/kurisu/internal/version"
)

// NewVersionCmd creates the version command.
func NewVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show kurisu build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info := map[string]string{
				"version": version.Version,
				"commit":  version.Commit,
				"date":    version.Date,
			}
			// version skips app setup, so there may be no app in context.
			if app := appctx.FromContext(cmd.Context()); app != nil {
				return app.OK(info, output.WithSummary(version.Full()))
			}
			return output.New(output.Options{Writer: cmd.OutOrStdout()}).OK(info, output.WithSummary(version.Full()))
		},
	}
}
