package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TraceFile is the payload trace's name inside a run directory.
const TraceFile = "payloads.jsonl"

// TraceEntry is one line of the payload trace.
type TraceEntry struct {
	ID         string      `json:"id"`
	Time       time.Time   `json:"time"`
	Model      string      `json:"model"`
	Request    []Message   `json:"request"`
	Response   *Completion `json:"response,omitempty"`
	Error      string      `json:"error,omitempty"`
	DurationMS int64       `json:"duration_ms"`
}

// Tracer appends request/response payloads as JSON lines. Safe for
// concurrent use.
type Tracer struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// OpenTracer creates (or appends to) a trace file.
func OpenTracer(path string) (*Tracer, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening trace file: %w", err)
	}
	return &Tracer{w: f, c: f}, nil
}

func (t *Tracer) Record(e TraceEntry) error {
	line, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshaling trace entry: %w", err)
	}
	line = append(line, '\n')
	t.mu.Lock()
	defer t.mu.Unlock()
	_, err = t.w.Write(line)
	return err
}

func (t *Tracer) Close() error {
	if t.c == nil {
		return nil
	}
	return t.c.Close()
}

type traced struct {
	next   Completer
	tracer *Tracer
}

// WithTrace records every call made through next. A nil tracer returns next
// unchanged. Trace failures are logged and never alter the call's result.
func WithTrace(next Completer, tracer *Tracer) Completer {
	if tracer == nil {
		return next
	}
	return &traced{next: next, tracer: tracer}
}

func (t *traced) Complete(ctx context.Context, req *Request) (*Completion, error) {
	start := time.Now()
	out, err := t.next.Complete(ctx, req)
	entry := TraceEntry{
		ID:         "req_" + uuid.New().String()[:8],
		Time:       start.UTC(),
		Model:      req.Model,
		Request:    append([]Message(nil), req.Messages...),
		Response:   out,
		Error:      errorString(err),
		DurationMS: time.Since(start).Milliseconds(),
	}
	if terr := t.tracer.Record(entry); terr != nil {
		log.Printf("warning: writing payload trace: %v", terr)
	}
	return out, err
}

// ReadTrace parses a trace file, skipping lines that are not trace entries.
func ReadTrace(path string) ([]TraceEntry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading trace: %w", err)
	}
	var entries []TraceEntry
	for _, line := range splitLines(data) {
		if len(line) == 0 {
			continue
		}
		var e TraceEntry
		if err := json.Unmarshal(line, &e); err != nil {
			continue
		}
		if e.Model != "" {
			entries = append(entries, e)
		}
	}
	return entries, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
