// Package stream consumes the generation backend's newline-delimited JSON
// token stream and reconstructs the assistant's message incrementally.
package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
)

// fragment is one line of the backend's stream. Frame boundaries are
// determined strictly by the newline delimiter; there is no length prefix.
type fragment struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Adapter folds streamed fragments onto a single sink in arrival order.
type Adapter struct {
	logger *slog.Logger
}

// NewAdapter creates an Adapter.
func NewAdapter() *Adapter {
	return &Adapter{logger: slog.Default()}
}

// Consume reads r to completion, calling sink with each fragment's text in
// arrival order. The adapter buffers bytes across reads and processes every
// complete line; the possibly-partial final segment is held until the next
// read. Lines that fail to parse as JSON are skipped, not fatal. When the
// transport signals completion, any unflushed partial final line is
// discarded. Cancelling ctx stops consumption; no further sink calls are
// made after cancellation.
func (a *Adapter) Consume(ctx context.Context, r io.Reader, sink func(text string) error) error {
	var pending []byte
	buf := make([]byte, 4096)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			pending = append(pending, buf[:n]...)
			for {
				i := bytes.IndexByte(pending, '\n')
				if i < 0 {
					break
				}
				line := pending[:i]
				pending = pending[i+1:]
				if err := a.applyLine(ctx, line, sink); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			if len(bytes.TrimSpace(pending)) > 0 {
				// Accepted lossy edge case: a trailing fragment without its
				// newline is dropped, never parsed.
				a.logger.Debug("discarding partial trailing stream line", "bytes", len(pending))
			}
			return nil
		}
		if readErr != nil {
			return fmt.Errorf("reading stream: %w", readErr)
		}
	}
}

func (a *Adapter) applyLine(ctx context.Context, line []byte, sink func(string) error) error {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return nil
	}

	var f fragment
	if err := json.Unmarshal(line, &f); err != nil {
		a.logger.Warn("skipping unparsable stream line", "error", err)
		return nil
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if f.Response == "" {
		return nil
	}
	return sink(f.Response)
}
