package engine

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"clipd/internal/consts"
	"clipd/internal/entity"
)

// Mock is a scripted engine for tests. Function fields override behavior
// per test; unset fields fall back to a permissive default.
type Mock struct {
	StartFunc     func(ctx context.Context, url string, opts entity.Options) (string, error)
	CancelFunc    func(engineID string) bool
	FetchInfoFunc func(ctx context.Context, url string) (entity.VideoInfo, error)

	events chan Event

	mu      sync.Mutex
	started []string
	seq     atomic.Int64
}

var _ Engine = (*Mock)(nil)

// NewMock creates a mock engine with a buffered event stream.
func NewMock() *Mock {
	return &Mock{
		events: make(chan Event, consts.DefaultEngineEventBuffer),
	}
}

func (m *Mock) Start(ctx context.Context, url string, opts entity.Options) (string, error) {
	if m.StartFunc != nil {
		return m.StartFunc(ctx, url, opts)
	}

	id := fmt.Sprintf("engine-%d", m.seq.Add(1))

	m.mu.Lock()
	m.started = append(m.started, id)
	m.mu.Unlock()

	return id, nil
}

func (m *Mock) Cancel(engineID string) bool {
	if m.CancelFunc != nil {
		return m.CancelFunc(engineID)
	}

	return true
}

func (m *Mock) FetchInfo(ctx context.Context, url string) (entity.VideoInfo, error) {
	if m.FetchInfoFunc != nil {
		return m.FetchInfoFunc(ctx, url)
	}

	return entity.VideoInfo{Title: "mock title", Channel: "mock channel"}, nil
}

func (m *Mock) Events() <-chan Event {
	return m.events
}

// Push injects an event into the stream, as if the engine produced it.
func (m *Mock) Push(ev Event) {
	m.events <- ev
}

// Started returns the engine ids handed out by the default Start, in order.
func (m *Mock) Started() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, len(m.started))
	copy(out, m.started)

	return out
}
