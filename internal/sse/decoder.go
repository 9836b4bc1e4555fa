// Package sse decodes a server-sent-events byte stream into a lazy sequence
// of generation chunks.
package sse

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
	"sync"
)

// maxLineSize caps a single SSE line (64KB). A delta frame is tiny; anything
// larger is a protocol violation.
const maxLineSize = 64 * 1024

// Usage reports token accounting when the endpoint includes it in a frame.
type Usage struct {
	CompletionTokens int `json:"completion_tokens"`
}

// Chunk is one decoded event: a content delta, a usage summary, or both.
type Chunk struct {
	Delta string
	Usage *Usage
}

// wireEvent is the JSON payload shape of one data: frame.
type wireEvent struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
	Usage *Usage `json:"usage"`
}

// Decoder turns an SSE byte stream into chunks. It is a finite,
// non-restartable sequence: after Next returns io.EOF (the [DONE] sentinel or
// stream end) it returns io.EOF forever. Callers must Close on every exit
// path to release the underlying reader.
type Decoder struct {
	body      io.ReadCloser
	scanner   *bufio.Scanner
	data      []string
	done      bool
	closeOnce sync.Once
	closeErr  error
}

// NewDecoder wraps a response body. The decoder takes ownership of the
// reader; closing the decoder closes it.
func NewDecoder(body io.ReadCloser) *Decoder {
	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	return &Decoder{body: body, scanner: scanner}
}

// Next returns the next decoded chunk. It blocks on the underlying read,
// returns io.EOF at end of stream, and skips malformed frames rather than
// failing the sequence: one corrupt frame must not abort a good generation.
func (d *Decoder) Next() (Chunk, error) {
	if d.done {
		return Chunk{}, io.EOF
	}

	for d.scanner.Scan() {
		line := strings.TrimSuffix(d.scanner.Text(), "\r")

		if line == "" {
			// Blank line terminates an event; dispatch what accumulated.
			if chunk, ok := d.dispatch(); ok {
				return chunk, nil
			}
			if d.done {
				return Chunk{}, io.EOF
			}
			continue
		}

		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			d.data = append(d.data, strings.TrimPrefix(payload, " "))
		}
		// Comment lines and other SSE fields (event:, id:) are ignored.
	}

	// Stream ended without the sentinel; flush any pending event.
	if chunk, ok := d.dispatch(); ok {
		d.done = true
		return chunk, nil
	}

	d.done = true
	if err := d.scanner.Err(); err != nil {
		return Chunk{}, err
	}
	return Chunk{}, io.EOF
}

// dispatch parses the accumulated data lines into a chunk. Returns ok=false
// when there was nothing to emit (no data, the terminal sentinel, or a
// malformed payload).
func (d *Decoder) dispatch() (Chunk, bool) {
	if len(d.data) == 0 {
		return Chunk{}, false
	}
	payload := strings.Join(d.data, "\n")
	d.data = d.data[:0]

	if payload == "[DONE]" {
		d.done = true
		return Chunk{}, false
	}

	var event wireEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return Chunk{}, false
	}

	chunk := Chunk{Usage: event.Usage}
	if len(event.Choices) > 0 {
		chunk.Delta = event.Choices[0].Delta.Content
	}
	if chunk.Delta == "" && chunk.Usage == nil {
		return Chunk{}, false
	}
	return chunk, true
}

// Close releases the underlying reader. Safe to call multiple times.
func (d *Decoder) Close() error {
	d.closeOnce.Do(func() {
		d.done = true
		d.closeErr = d.body.Close()
	})
	return d.closeErr
}
