// Package stream decodes the server-sent-event body of a streamed chat
// completion into incremental text deltas.
//
// The decoder is line oriented. Each event arrives as a single
//
//	data: {"choices":[{"delta":{"content":"..."}}]}
//
// line; comment lines (leading ':') and blank lines are skipped and the
// literal "data: [DONE]" sentinel ends the stream without being parsed.
//
// A payload that fails to parse is dropped. This only happens when the
// producer splits one JSON object over several lines, which well-behaved
// upstreams never do; a line split across network chunks is not a problem
// because lines are only classified once their terminating '\n' arrived.
package stream

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	dataPrefix   = "data:"
	doneSentinel = "[DONE]"
	deltaPath    = "choices.0.delta.content"
	readSize     = 4096
)

// Decoder turns SSE bytes into content deltas. It keeps the unterminated
// tail of the previous chunk between calls and holds no other state, so a
// new stream needs a new Decoder.
type Decoder struct {
	buf []byte
}

// NewDecoder returns an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends chunk to the internal buffer and returns the deltas of every
// line completed by it, in stream order.
func (d *Decoder) Feed(chunk []byte) []string {
	d.buf = append(d.buf, chunk...)

	var deltas []string
	for {
		idx := bytes.IndexByte(d.buf, '\n')
		if idx < 0 {
			break
		}
		line := string(d.buf[:idx])
		d.buf = d.buf[idx+1:]

		if delta, ok := parseLine(line); ok {
			deltas = append(deltas, delta)
		}
	}

	// Reclaim the consumed prefix once the buffer is drained.
	if len(d.buf) == 0 {
		d.buf = d.buf[:0:0]
	}

	return deltas
}

// Buffered returns the number of bytes waiting for a line terminator.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// parseLine classifies one SSE line and extracts its delta, if any.
func parseLine(line string) (string, bool) {
	line = strings.TrimSuffix(line, "\r")

	if strings.TrimSpace(line) == "" || strings.HasPrefix(line, ":") {
		return "", false
	}
	if !strings.HasPrefix(line, dataPrefix) {
		return "", false
	}

	payload := strings.TrimSpace(line[len(dataPrefix):])
	if payload == doneSentinel {
		return "", false
	}

	if !gjson.Valid(payload) {
		return "", false
	}

	result := gjson.Get(payload, deltaPath)
	if result.Type != gjson.String || result.Str == "" {
		return "", false
	}

	return result.Str, true
}

// DeltaFunc receives each decoded delta. Returning an error stops decoding.
type DeltaFunc func(delta string) error

// Decode reads r until EOF, feeding every chunk through a fresh Decoder and
// handing deltas to fn in order. It returns nil at EOF, ctx.Err() once the
// context is done, fn's error, or the read error.
//
// Decode does not close r; callers that need a blocked Read to return on
// cancellation must close the reader themselves.
func Decode(ctx context.Context, r io.Reader, fn DeltaFunc) error {
	dec := NewDecoder()
	buf := make([]byte, readSize)

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := r.Read(buf)
		if n > 0 {
			// Chunks read after cancellation are discarded unapplied.
			if err := ctx.Err(); err != nil {
				return err
			}
			for _, delta := range dec.Feed(buf[:n]) {
				// One chunk may carry many events; stop between them too.
				if err := ctx.Err(); err != nil {
					return err
				}
				if err := fn(delta); err != nil {
					return err
				}
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return readErr
		}
	}
}
