package storage

import (
	"context"
	"sync"
	"time"

	"github.com/dotcommander/threadline/internal/proto"
)

type thread struct {
	messages  []proto.Message
	updatedAt time.Time
}

// MemoryStore keeps threads in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	threads map[string]*thread
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{threads: make(map[string]*thread)}
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, threadID string) ([]proto.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	th, ok := s.threads[threadID]
	if !ok {
		return []proto.Message{}, nil
	}
	return proto.CloneMessages(th.messages), nil
}

// Append implements Store.
func (s *MemoryStore) Append(ctx context.Context, threadID string, msgs ...proto.Message) error {
	if threadID == "" {
		return ErrEmptyThreadID
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	s.append(threadID, msgs)
	return nil
}

func (s *MemoryStore) append(threadID string, msgs []proto.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	th, ok := s.threads[threadID]
	if !ok {
		th = &thread{}
		s.threads[threadID] = th
	}
	for _, msg := range msgs {
		th.messages = append(th.messages, msg.Clone())
	}
	th.updatedAt = latest(th.updatedAt, stampOf(msgs))
}

// Threads implements Lister.
func (s *MemoryStore) Threads(ctx context.Context) ([]ThreadInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]ThreadInfo, 0, len(s.threads))
	for id, th := range s.threads {
		out = append(out, ThreadInfo{
			ID:        id,
			Title:     titleOf(th.messages),
			Messages:  len(th.messages),
			UpdatedAt: th.updatedAt,
		})
	}
	s.mu.RUnlock()

	sortThreadsByUpdatedAtDesc(out)
	return out, nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

// stampOf is the newest CreatedAt in msgs, or now when none is set.
func stampOf(msgs []proto.Message) time.Time {
	var t time.Time
	for _, msg := range msgs {
		t = latest(t, msg.CreatedAt)
	}
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func latest(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
