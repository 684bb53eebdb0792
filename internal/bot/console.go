package bot

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Console is a line-oriented gateway for local use. Each input line is
// "<command> [argument]"; the argument fills the command's first option.
// Replies are written as "[<id>] <reply>".
type Console struct {
	dispatcher *Dispatcher
	registry   *Registry
	out        io.Writer
	logger     *zap.Logger
	newID      func() string

	mu sync.Mutex // serializes writes to out
}

// NewConsole creates a console gateway writing replies to out.
func NewConsole(d *Dispatcher, reg *Registry, out io.Writer, logger *zap.Logger) *Console {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Console{
		dispatcher: d,
		registry:   reg,
		out:        out,
		logger:     logger,
		newID:      func() string { return uuid.NewString() },
	}
}

// Serve reads interactions from in until EOF or ctx is cancelled. Each
// interaction is dispatched on its own goroutine; Serve waits for all of
// them before returning.
func (c *Console) Serve(ctx context.Context, in io.Reader) error {
	var wg sync.WaitGroup
	defer wg.Wait()

	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-scanErr:
					return err
				default:
					return nil
				}
			}
			it, ok := c.parse(line)
			if !ok {
				continue
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := c.dispatcher.Dispatch(ctx, it); err != nil {
					c.logger.Error("reply failed", zap.String("interaction", it.ID), zap.Error(err))
				}
			}()
		}
	}
}

func (c *Console) parse(line string) (Interaction, bool) {
	line = strings.TrimSpace(line)
	line = strings.TrimPrefix(line, "/")
	if line == "" || strings.HasPrefix(line, "#") {
		return Interaction{}, false
	}

	name, arg, _ := strings.Cut(line, " ")
	req := Request{
		ID:      c.newID(),
		Command: name,
		User:    "console",
		Options: map[string]string{},
	}
	arg = strings.TrimSpace(arg)
	if cmd, ok := c.registry.Lookup(name); ok && arg != "" {
		if opts := cmd.Describe().Options; len(opts) > 0 {
			req.Options[opts[0].Name] = arg
		}
	}
	return Interaction{Request: req, Responder: ResponderFunc(c.respond)}, true
}

func (c *Console) respond(_ context.Context, id, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintf(c.out, "[%s] %s\n", id, content)
	return err
}
