// Package storage persists conversation threads.
package storage

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/proto"
)

var (
	// ErrNoMatches is returned when no threads match the query.
	ErrNoMatches = errors.New("no threads found")
	// ErrManyMatches is returned when multiple threads match the query.
	ErrManyMatches = errors.New("multiple threads matched the input")
	// ErrEmptyThreadID is returned for operations without a thread id.
	ErrEmptyThreadID = errors.New("empty thread id")
)

// Store keeps the ordered message history of each thread.
//
// Load returns a copy; callers may modify it freely. A thread that was never
// appended to loads as empty.
type Store interface {
	Load(ctx context.Context, threadID string) ([]proto.Message, error)
	Append(ctx context.Context, threadID string, msgs ...proto.Message) error
	Close() error
}

// Lister is implemented by stores that can enumerate their threads.
type Lister interface {
	Threads(ctx context.Context) ([]ThreadInfo, error)
}

// ThreadInfo summarizes a thread.
type ThreadInfo struct {
	ID        string
	Title     string
	Messages  int
	UpdatedAt time.Time
}

// Open creates the store selected by cfg.
func Open(cfg config.Store, logger *slog.Logger) (Store, error) {
	switch cfg.Driver {
	case "", config.StoreMemory:
		return NewMemoryStore(), nil
	case config.StoreJSONL:
		return OpenJSONL(cfg.Path, logger)
	case config.StoreSQLite:
		return OpenSQLite(cfg.Path, logger)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}

// Find resolves a thread by exact id, id prefix or exact title.
func Find(ctx context.Context, l Lister, in string) (ThreadInfo, error) {
	threads, err := l.Threads(ctx)
	if err != nil {
		return ThreadInfo{}, err
	}

	var matches []ThreadInfo
	for _, th := range threads {
		if th.ID == in {
			return th, nil
		}
		if (len(in) >= MinPrefixLen && strings.HasPrefix(th.ID, in)) || th.Title == in {
			matches = append(matches, th)
		}
	}

	switch len(matches) {
	case 0:
		return ThreadInfo{}, fmt.Errorf("%w: %s", ErrNoMatches, in)
	case 1:
		return matches[0], nil
	default:
		return ThreadInfo{}, fmt.Errorf("%w: %s", ErrManyMatches, in)
	}
}

// titleOf derives a thread title from its first user message.
func titleOf(msgs []proto.Message) string {
	for _, msg := range msgs {
		if msg.Role != proto.RoleUser {
			continue
		}
		title := strings.TrimSpace(strings.SplitN(msg.Content, "\n", 2)[0])
		if r := []rune(title); len(r) > 72 {
			title = string(r[:72]) + "…"
		}
		return title
	}
	return ""
}

func sortThreadsByUpdatedAtDesc(threads []ThreadInfo) {
	slices.SortFunc(threads, func(a, b ThreadInfo) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}
