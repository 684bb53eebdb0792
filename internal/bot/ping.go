package bot

import "context"

// PingCommand answers "pong". Used as a liveness check.
type PingCommand struct{}

func (PingCommand) Name() string { return "ping" }

func (PingCommand) Describe() Description {
	return Description{Name: "ping", Description: "Check that the bot is alive"}
}

func (PingCommand) Handle(context.Context, Request) string { return "pong" }
