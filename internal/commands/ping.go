package commands

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/bot"
)

// NewPingCmd creates the ping command. It runs the chat ping command
// through the dispatcher, the same path serve uses.
func NewPingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that command dispatch works",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			reg := chatRegistry(app)
			d := newDispatcher(app, reg)

			var reply string
			err := d.Dispatch(cmd.Context(), bot.Interaction{
				Request: bot.Request{ID: "cli", Command: "ping", User: "cli"},
				Responder: bot.ResponderFunc(func(_ context.Context, _, content string) error {
					reply = content
					return nil
				}),
			})
			if err != nil {
				return err
			}
			return app.OK(map[string]string{"reply": reply})
		},
	}
}
