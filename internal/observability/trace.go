package observability

import (
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/quilldev/kurisu/internal/riot"
)

// sensitiveParams are query parameters redacted from trace output.
var sensitiveParams = map[string]bool{
	"api_key":      true,
	"apikey":       true,
	"access_token": true,
	"token":        true,
	"secret":       true,
	"password":     true,
}

// TraceWriter prints human-readable trace lines with timestamps relative to
// its creation.
type TraceWriter struct {
	mu        sync.Mutex
	writer    io.Writer
	startTime time.Time
}

// NewTraceWriter creates a TraceWriter on stderr.
func NewTraceWriter() *TraceWriter {
	return NewTraceWriterTo(os.Stderr)
}

// NewTraceWriterTo creates a TraceWriter on w.
func NewTraceWriterTo(w io.Writer) *TraceWriter {
	return &TraceWriter{writer: w, startTime: time.Now()}
}

func (t *TraceWriter) printf(format string, args ...any) {
	t.mu.Lock()
	defer t.mu.Unlock()
	elapsed := time.Since(t.startTime).Seconds()
	fmt.Fprintf(t.writer, "[%.3fs] "+format+"\n", append([]any{elapsed}, args...)...)
}

// WriteOperationStart writes: [0.234s] Calling Summoner.ByName Ari
func (t *TraceWriter) WriteOperationStart(op riot.OperationInfo) {
	t.printf("Calling %s.%s%s", op.Service, op.Operation, resourceSuffix(op))
}

// WriteOperationEnd writes: [0.234s] Completed Summoner.ByName (45ms)
func (t *TraceWriter) WriteOperationEnd(op riot.OperationInfo, err error, duration time.Duration) {
	if err != nil {
		t.printf("Failed %s.%s: %v", op.Service, op.Operation, err)
		return
	}
	t.printf("Completed %s.%s (%dms)", op.Service, op.Operation, duration.Milliseconds())
}

// WriteRequestStart writes: [0.234s]   -> GET https://...
func (t *TraceWriter) WriteRequestStart(info riot.RequestInfo) {
	t.printf("  -> %s %s", info.Method, scrubURL(info.URL))
}

// WriteRequestEnd writes: [0.234s]   <- 200 (45ms)
func (t *TraceWriter) WriteRequestEnd(_ riot.RequestInfo, result riot.RequestResult) {
	switch {
	case result.StatusCode == 0 && result.Error != nil:
		t.printf("  <- ERROR: %v", result.Error)
	case result.RetryAfter > 0:
		t.printf("  <- %d (%dms, retry after %ds)", result.StatusCode, result.Duration.Milliseconds(), result.RetryAfter)
	default:
		t.printf("  <- %d (%dms)", result.StatusCode, result.Duration.Milliseconds())
	}
}

// WriteCacheLookup writes: [0.234s] cache summoner hit
func (t *TraceWriter) WriteCacheLookup(cacheName string, hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	t.printf("cache %s %s", cacheName, result)
}

// Reset restarts the relative clock.
func (t *TraceWriter) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.startTime = time.Now()
}

func resourceSuffix(op riot.OperationInfo) string {
	if op.Resource == "" {
		return ""
	}
	return " " + op.Resource
}

// scrubURL redacts sensitive query parameters. Unparseable URLs are not
// echoed at all.
func scrubURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "[unparseable URL]"
	}

	query := u.Query()
	modified := false
	for key := range query {
		if sensitiveParams[strings.ToLower(key)] {
			query.Set(key, "[REDACTED]")
			modified = true
		}
	}
	if !modified {
		return rawURL
	}

	u.RawQuery = query.Encode()
	return u.String()
}
