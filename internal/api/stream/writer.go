// Package stream writes chunked plain-text answers with a trailing status.
package stream

import (
	"fmt"
	"net/http"
	"strings"
)

// Trailer names sent after the last chunk.
const (
	TrailerStatus = "X-Oracle-Status"
	TrailerError  = "X-Oracle-Error"
)

// Writer streams text chunks to an HTTP response.
type Writer struct {
	writer  http.ResponseWriter
	flusher http.Flusher
	started bool
}

// NewWriter prepares w for a chunked text response. Headers must not have
// been written yet.
func NewWriter(w http.ResponseWriter) (*Writer, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("streaming not supported")
	}

	h := w.Header()
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-cache, no-transform")
	h.Set("X-Accel-Buffering", "no")
	h.Set("Trailer", TrailerStatus+", "+TrailerError)

	return &Writer{
		writer:  w,
		flusher: flusher,
	}, nil
}

// Start sends the status line and headers.
func (w *Writer) Start() {
	if w.started {
		return
	}
	w.started = true
	w.writer.WriteHeader(http.StatusOK)
	w.flusher.Flush()
}

// WriteChunk writes one text increment and flushes it.
func (w *Writer) WriteChunk(text string) error {
	if text == "" {
		return nil
	}
	w.Start()
	if _, err := w.writer.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write chunk: %w", err)
	}
	w.flusher.Flush()
	return nil
}

// Finish sets the trailers. message is reduced to a single line.
func (w *Writer) Finish(status, message string) {
	w.Start()
	h := w.writer.Header()
	h.Set(TrailerStatus, status)
	if message != "" {
		h.Set(TrailerError, singleLine(message))
	}
}

func singleLine(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
