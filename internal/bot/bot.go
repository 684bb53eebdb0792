// Package bot maps inbound chat commands to handlers and replies to each
// interaction exactly once.
package bot

import (
	"context"
	"errors"
)

// Option describes one command parameter.
type Option struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Required    bool   `json:"required"`
}

// Description is what a command advertises to the messaging platform.
type Description struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Options     []Option `json:"options,omitempty"`
}

// Request is a parsed interaction as seen by a handler.
type Request struct {
	ID      string
	Command string
	User    string
	Options map[string]string
}

// Option returns the named option value.
func (r Request) Option(name string) (string, bool) {
	v, ok := r.Options[name]
	return v, ok
}

// Command is a chat command handler. Handle returns the reply text; errors
// are translated to user-visible text inside the handler.
type Command interface {
	Name() string
	Describe() Description
	Handle(ctx context.Context, req Request) string
}

// Responder delivers a reply for an interaction.
type Responder interface {
	Respond(ctx context.Context, interactionID, content string) error
}

// ResponderFunc adapts a function to Responder.
type ResponderFunc func(ctx context.Context, interactionID, content string) error

func (f ResponderFunc) Respond(ctx context.Context, interactionID, content string) error {
	return f(ctx, interactionID, content)
}

// Interaction is an inbound request paired with the channel its reply goes
// back on.
type Interaction struct {
	Request
	Responder Responder
}

// ErrAlreadyResponded is returned when a second reply is attempted for the
// same interaction.
var ErrAlreadyResponded = errors.New("interaction already responded to")
