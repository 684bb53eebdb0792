package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultTimeout bounds a single interaction.
const DefaultTimeout = 10 * time.Second

// Dispatch outcomes reported to the command observer.
const (
	OutcomeOK      = "ok"
	OutcomeUnknown = "unknown_command"
	OutcomeInvalid = "invalid_options"
	OutcomeTimeout = "timeout"
)

// Timeout reply shown when a handler overruns the interaction deadline.
const timeoutReply = "That took too long. Please try again in a moment."

// Dispatcher resolves a handler for each interaction and replies once.
type Dispatcher struct {
	registry *Registry
	timeout  time.Duration
	logger   *zap.Logger
	observe  func(command, outcome string)
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithTimeout sets the per-interaction deadline. Zero or negative disables
// it.
func WithTimeout(d time.Duration) DispatcherOption {
	return func(disp *Dispatcher) { disp.timeout = d }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) DispatcherOption {
	return func(disp *Dispatcher) {
		if l != nil {
			disp.logger = l
		}
	}
}

// WithCommandObserver reports the outcome of every dispatch.
func WithCommandObserver(fn func(command, outcome string)) DispatcherOption {
	return func(disp *Dispatcher) { disp.observe = fn }
}

// NewDispatcher creates a dispatcher over reg.
func NewDispatcher(reg *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: reg,
		timeout:  DefaultTimeout,
		logger:   zap.NewNop(),
		observe:  func(string, string) {},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch runs the handler for in and sends exactly one reply. The returned
// error is the responder's delivery error, if any.
func (d *Dispatcher) Dispatch(ctx context.Context, in Interaction) error {
	resp := &onceResponder{next: in.Responder}
	log := d.logger.With(zap.String("interaction", in.ID), zap.String("command", in.Command))

	cmd, ok := d.registry.Lookup(in.Command)
	if !ok {
		d.observe(in.Command, OutcomeUnknown)
		return resp.Respond(ctx, in.ID, fmt.Sprintf("Unknown command %q.", in.Command))
	}

	if missing := missingOptions(cmd.Describe(), in.Request); len(missing) > 0 {
		d.observe(in.Command, OutcomeInvalid)
		return resp.Respond(ctx, in.ID, "Missing required option: "+strings.Join(missing, ", ")+".")
	}

	hctx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan string, 1)
	go func() { done <- cmd.Handle(hctx, in.Request) }()

	var reply string
	outcome := OutcomeOK
	select {
	case reply = <-done:
	case <-hctx.Done():
		reply = timeoutReply
		outcome = OutcomeTimeout
		log.Warn("handler did not finish before deadline", zap.Duration("timeout", d.timeout))
	}
	d.observe(in.Command, outcome)
	log.Debug("dispatched", zap.String("outcome", outcome), zap.Duration("duration", time.Since(start)))

	// The handler deadline may have passed; the reply still goes out.
	return resp.Respond(context.WithoutCancel(ctx), in.ID, reply)
}

func missingOptions(desc Description, req Request) []string {
	var missing []string
	for _, opt := range desc.Options {
		if !opt.Required {
			continue
		}
		if v, ok := req.Option(opt.Name); !ok || strings.TrimSpace(v) == "" {
			missing = append(missing, opt.Name)
		}
	}
	return missing
}

// onceResponder forwards the first reply and rejects the rest.
type onceResponder struct {
	once sync.Once
	next Responder
}

func (o *onceResponder) Respond(ctx context.Context, id, content string) error {
	err := ErrAlreadyResponded
	o.once.Do(func() {
		err = o.next.Respond(ctx, id, content)
	})
	return err
}
