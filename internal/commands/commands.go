package commands

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/quilldev/kurisu/internal/appctx"
	"github.com/quilldev/kurisu/internal/bot"
	"github.com/quilldev/kurisu/internal/observability"
	"github.com/quilldev/kurisu/internal/output"
)

// chatRegistry builds the registry of chat commands served by the bot.
func chatRegistry(app *appctx.App) *bot.Registry {
	return bot.NewRegistry().
		Register(bot.PingCommand{}).
		Register(bot.NewMasteryCommand(app.Resolver, app.Logger))
}

func newDispatcher(app *appctx.App, reg *bot.Registry) *bot.Dispatcher {
	return bot.NewDispatcher(reg,
		bot.WithTimeout(app.Config.InteractionTimeout),
		bot.WithLogger(app.Logger),
		bot.WithCommandObserver(commandObserver(app.Metrics)),
	)
}

func commandObserver(m *observability.Metrics) func(command, outcome string) {
	if m == nil {
		return func(string, string) {}
	}
	return m.ObserveCommand
}

// NewCommandsCmd lists the chat commands the bot registers.
func NewCommandsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List chat commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appctx.FromContext(cmd.Context())
			descs := chatRegistry(app).Descriptions()
			return app.OK(catalog(descs), output.WithSummary("Chat commands"))
		},
	}
}

type catalog []bot.Description

func (c catalog) RenderText(w io.Writer) error {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Command", "Description", "Options"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, d := range c {
		opts := ""
		for i, o := range d.Options {
			if i > 0 {
				opts += " "
			}
			if o.Required {
				opts += "<" + o.Name + ">"
			} else {
				opts += "[" + o.Name + "]"
			}
		}
		table.Append([]string{"/" + d.Name, d.Description, opts})
	}
	table.Render()
	return nil
}
