package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/itchyny/gojq"
	"golang.org/x/term"
)

// Response is the success envelope for JSON output.
type Response struct {
	OK      bool           `json:"ok"`
	Data    any            `json:"data,omitempty"`
	Summary string         `json:"summary,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

// ErrorResponse is the error envelope for JSON output.
type ErrorResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
	Code  string `json:"code"`
	Hint  string `json:"hint,omitempty"`
}

// Format specifies the output format.
type Format int

const (
	FormatAuto Format = iota // Auto-detect: TTY → Text, non-TTY → JSON
	FormatJSON
	FormatText
	FormatQuiet // Data only, no envelope
)

// TextRenderer is implemented by data that knows how to print itself for
// humans. Data without it falls back to JSON in text mode.
type TextRenderer interface {
	RenderText(w io.Writer) error
}

// Options controls output behavior.
type Options struct {
	Format Format
	Writer io.Writer
	// JQ is an optional jq program applied to the data before printing.
	JQ string
}

// Writer handles all output formatting.
type Writer struct {
	opts Options
}

// New creates a new output writer.
func New(opts Options) *Writer {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}
	return &Writer{opts: opts}
}

// OK outputs a success response.
func (w *Writer) OK(data any, opts ...ResponseOption) error {
	resp := &Response{OK: true, Data: data}
	for _, opt := range opts {
		opt(resp)
	}
	if w.opts.JQ != "" {
		return w.writeJQ(resp.Data)
	}
	return w.write(resp)
}

// Err outputs an error response.
func (w *Writer) Err(err error) error {
	e := AsError(err)
	resp := &ErrorResponse{
		OK:    false,
		Error: e.Message,
		Code:  e.Code,
		Hint:  e.Hint,
	}
	return w.write(resp)
}

func (w *Writer) write(v any) error {
	format := w.opts.Format

	if format == FormatAuto {
		if isTTY(w.opts.Writer) {
			format = FormatText
		} else {
			format = FormatJSON
		}
	}

	switch format {
	case FormatQuiet:
		if resp, ok := v.(*Response); ok {
			return w.writeJSON(resp.Data)
		}
		return w.writeJSON(v)
	case FormatText:
		return w.writeText(v)
	default:
		return w.writeJSON(v)
	}
}

// isTTY checks if the writer is a terminal.
func isTTY(w io.Writer) bool {
	if f, ok := w.(*os.File); ok {
		return term.IsTerminal(int(f.Fd()))
	}
	return false
}

func (w *Writer) writeJSON(v any) error {
	enc := json.NewEncoder(w.opts.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (w *Writer) writeText(v any) error {
	switch resp := v.(type) {
	case *Response:
		if r, ok := resp.Data.(TextRenderer); ok {
			if err := r.RenderText(w.opts.Writer); err != nil {
				return err
			}
		} else if resp.Data != nil {
			if err := w.writeJSON(resp.Data); err != nil {
				return err
			}
		}
		if resp.Summary != "" {
			fmt.Fprintln(w.opts.Writer, resp.Summary)
		}
		return nil
	case *ErrorResponse:
		fmt.Fprintf(w.opts.Writer, "Error: %s\n", resp.Error)
		if resp.Hint != "" {
			fmt.Fprintf(w.opts.Writer, "Hint: %s\n", resp.Hint)
		}
		return nil
	default:
		return w.writeJSON(v)
	}
}

// writeJQ runs the configured jq program over data and prints each result.
// String results are printed raw, everything else as compact JSON.
func (w *Writer) writeJQ(data any) error {
	query, err := gojq.Parse(w.opts.JQ)
	if err != nil {
		return ErrUsageHint("Invalid --jq expression", err.Error())
	}

	input, err := normalizeData(data)
	if err != nil {
		return err
	}

	iter := query.Run(input)
	for {
		v, ok := iter.Next()
		if !ok {
			return nil
		}
		if err, ok := v.(error); ok {
			return ErrUsageHint("jq evaluation failed", err.Error())
		}
		if s, ok := v.(string); ok {
			fmt.Fprintln(w.opts.Writer, s)
			continue
		}
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		fmt.Fprintln(w.opts.Writer, string(b))
	}
}

// normalizeData converts typed structs and slices into the plain
// map/slice/float64 shapes gojq operates on.
func normalizeData(data any) (any, error) {
	b, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return nil, err
	}
	return v, nil
}

// ResponseOption modifies a Response.
type ResponseOption func(*Response)

// WithSummary adds a summary to the response.
func WithSummary(s string) ResponseOption {
	return func(r *Response) { r.Summary = s }
}

// WithMeta adds metadata to the response.
func WithMeta(key string, value any) ResponseOption {
	return func(r *Response) {
		if r.Meta == nil {
			r.Meta = make(map[string]any)
		}
		r.Meta[key] = value
	}
}
