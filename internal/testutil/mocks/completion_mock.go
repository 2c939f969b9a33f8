package mocks

import (
	"context"
	"io"
	"sync"

	"github.com/esoteric-oracle/oracle-service/internal/core/completion"
)

// FakeCompletion answers every question with a fixed list of chunks.
type FakeCompletion struct {
	mu      sync.Mutex
	chunks  []string
	openErr error
	pingErr error
	asked   []string
}

// NewFakeCompletion creates a fake that streams chunks in order.
func NewFakeCompletion(chunks ...string) *FakeCompletion {
	return &FakeCompletion{chunks: chunks}
}

// FailWith makes Stream return err.
func (f *FakeCompletion) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.openErr = err
}

// PingFailsWith makes Ping return err.
func (f *FakeCompletion) PingFailsWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pingErr = err
}

// Asked returns the questions received so far.
func (f *FakeCompletion) Asked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.asked...)
}

// Stream returns a reader over the configured chunks.
func (f *FakeCompletion) Stream(ctx context.Context, req *completion.Request) (completion.StreamReader, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.asked = append(f.asked, req.Question)
	if f.openErr != nil {
		return nil, f.openErr
	}
	return &fakeStream{ctx: ctx, chunks: append([]string(nil), f.chunks...)}, nil
}

// Ping returns the configured ping error.
func (f *FakeCompletion) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pingErr
}

// Close does nothing.
func (f *FakeCompletion) Close() error { return nil }

type fakeStream struct {
	ctx    context.Context
	chunks []string
}

func (s *fakeStream) Read() ([]byte, error) {
	if err := s.ctx.Err(); err != nil {
		return nil, err
	}
	if len(s.chunks) == 0 {
		return nil, io.EOF
	}
	next := s.chunks[0]
	s.chunks = s.chunks[1:]
	return []byte(next), nil
}

func (s *fakeStream) Close() error { return nil }
