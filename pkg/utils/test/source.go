package testutils

import (
	"context"
	"sync"

	"github.com/papercomputeco/chatwire/pkg/chunk"
)

// MockSource is a chunk source that replays Chunks, then returns Err (if
// set) instead of signalling exhaustion. It records how often it was closed.
type MockSource struct {
	Chunks []*chunk.Chunk

	// Err is returned once every chunk has been pulled.
	Err error

	// Block makes Next wait for Close or ctx cancellation once the chunks
	// are exhausted, like an upstream that stalls mid-stream.
	Block bool

	mu      sync.Mutex
	pos     int
	pulls   int
	closes  int
	closedC chan struct{}
}

// NewMockSource creates a MockSource over chunks.
func NewMockSource(chunks ...*chunk.Chunk) *MockSource {
	return &MockSource{
		Chunks:  chunks,
		closedC: make(chan struct{}),
	}
}

func (m *MockSource) Next(ctx context.Context) (*chunk.Chunk, error) {
	m.mu.Lock()
	m.init()
	m.pulls++
	if m.pos < len(m.Chunks) {
		c := m.Chunks[m.pos]
		m.pos++
		m.mu.Unlock()
		return c, nil
	}
	block, err, closedC := m.Block, m.Err, m.closedC
	m.mu.Unlock()

	if block {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-closedC:
			return nil, context.Canceled
		}
	}
	return nil, err
}

func (m *MockSource) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.init()
	if m.closes == 0 {
		close(m.closedC)
	}
	m.closes++
	return nil
}

func (m *MockSource) init() {
	if m.closedC == nil {
		m.closedC = make(chan struct{})
	}
}

// Pulls returns how many times Next was called.
func (m *MockSource) Pulls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pulls
}

// Closed reports whether Close was called at least once.
func (m *MockSource) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closes > 0
}
