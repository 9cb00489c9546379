package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadline/internal/config"
	"github.com/dotcommander/threadline/internal/proto"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func msg(role proto.Role, content string, offset time.Duration) proto.Message {
	return proto.Message{
		ID:        NewMessageID(),
		Role:      role,
		Content:   content,
		CreatedAt: t0.Add(offset),
	}
}

type backend struct {
	name string
	open func(tb testing.TB) Store
}

func backends() []backend {
	return []backend{
		{"memory", func(testing.TB) Store { return NewMemoryStore() }},
		{"jsonl", func(tb testing.TB) Store {
			s, err := OpenJSONL(":memory:", nil)
			require.NoError(tb, err)
			return s
		}},
		{"sqlite", func(tb testing.TB) Store {
			s, err := OpenSQLite(filepath.Join(tb.TempDir(), "threads.db"), nil)
			require.NoError(tb, err)
			return s
		}},
	}
}

func TestStores(t *testing.T) {
	ctx := context.Background()

	for _, b := range backends() {
		t.Run(b.name, func(t *testing.T) {
			open := func(t *testing.T) Store {
				s := b.open(t)
				t.Cleanup(func() { require.NoError(t, s.Close()) })
				return s
			}

			t.Run("unknown thread loads empty", func(t *testing.T) {
				s := open(t)
				msgs, err := s.Load(ctx, "nope")
				require.NoError(t, err)
				require.Empty(t, msgs)
			})

			t.Run("append keeps order and fields", func(t *testing.T) {
				s := open(t)
				user := msg(proto.RoleUser, "weather in Paris?", 0)
				assistant := msg(proto.RoleAssistant, "", time.Second)
				assistant.ToolCalls = []proto.ToolCall{{ID: "c1", Name: "search", Arguments: json.RawMessage(`{"query":"paris"}`)}}
				tool := msg(proto.RoleTool, "sunny", 2*time.Second)
				tool.ToolCallID = "c1"
				tool.Name = "search"
				tool.IsError = true

				require.NoError(t, s.Append(ctx, "t1", user))
				require.NoError(t, s.Append(ctx, "t1", assistant, tool))

				got, err := s.Load(ctx, "t1")
				require.NoError(t, err)
				require.Len(t, got, 3)
				require.Equal(t, user, got[0])
				require.Equal(t, proto.RoleAssistant, got[1].Role)
				require.Equal(t, "c1", got[1].ToolCalls[0].ID)
				require.JSONEq(t, `{"query":"paris"}`, string(got[1].ToolCalls[0].Arguments))
				require.Equal(t, tool, got[2])
			})

			t.Run("threads are isolated", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Append(ctx, "a", msg(proto.RoleUser, "in a", 0)))
				require.NoError(t, s.Append(ctx, "b", msg(proto.RoleUser, "in b", 0)))

				got, err := s.Load(ctx, "a")
				require.NoError(t, err)
				require.Len(t, got, 1)
				require.Equal(t, "in a", got[0].Content)
			})

			t.Run("load returns a copy", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Append(ctx, "t1", msg(proto.RoleUser, "original", 0)))

				got, err := s.Load(ctx, "t1")
				require.NoError(t, err)
				got[0].Content = "mutated"

				again, err := s.Load(ctx, "t1")
				require.NoError(t, err)
				require.Equal(t, "original", again[0].Content)
			})

			t.Run("empty thread id", func(t *testing.T) {
				s := open(t)
				require.ErrorIs(t, s.Append(ctx, "", msg(proto.RoleUser, "x", 0)), ErrEmptyThreadID)
			})

			t.Run("threads listing", func(t *testing.T) {
				s := open(t)
				require.NoError(t, s.Append(ctx, "old", msg(proto.RoleUser, "first question\nmore", 0)))
				require.NoError(t, s.Append(ctx, "new", msg(proto.RoleUser, "second question", time.Minute)))
				require.NoError(t, s.Append(ctx, "new", msg(proto.RoleAssistant, "answer", 2*time.Minute)))

				l, ok := s.(Lister)
				require.True(t, ok)
				threads, err := l.Threads(ctx)
				require.NoError(t, err)
				require.Len(t, threads, 2)
				require.Equal(t, "new", threads[0].ID)
				require.Equal(t, "second question", threads[0].Title)
				require.Equal(t, 2, threads[0].Messages)
				require.Equal(t, t0.Add(2*time.Minute), threads[0].UpdatedAt)
				require.Equal(t, "first question", threads[1].Title)
			})

			t.Run("concurrent appends to different threads", func(t *testing.T) {
				s := open(t)
				var wg sync.WaitGroup
				for i := range 8 {
					wg.Add(1)
					go func() {
						defer wg.Done()
						id := fmt.Sprintf("t%d", i)
						for j := range 5 {
							require.NoError(t, s.Append(ctx, id, msg(proto.RoleUser, fmt.Sprint(j), time.Duration(j)*time.Second)))
						}
					}()
				}
				wg.Wait()

				for i := range 8 {
					got, err := s.Load(ctx, fmt.Sprintf("t%d", i))
					require.NoError(t, err)
					require.Len(t, got, 5)
					for j, m := range got {
						require.Equal(t, fmt.Sprint(j), m.Content)
					}
				}
			})
		})
	}
}

func TestJSONLReplay(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	s, err := OpenJSONL(dir, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "t1", msg(proto.RoleUser, "hello", 0), msg(proto.RoleAssistant, "hi", time.Second)))
	require.NoError(t, s.Close())

	reopened, err := OpenJSONL(dir, nil)
	require.NoError(t, err)
	got, err := reopened.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "hi", got[1].Content)
}

func TestSQLiteReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "threads.db")

	s, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	require.NoError(t, s.Append(ctx, "t1", msg(proto.RoleUser, "hello", 0)))
	require.NoError(t, s.Close())

	reopened, err := OpenSQLite(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })
	got, err := reopened.Load(ctx, "t1")
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestOpen(t *testing.T) {
	s, err := Open(config.Store{Driver: config.StoreMemory}, nil)
	require.NoError(t, err)
	require.IsType(t, &MemoryStore{}, s)

	_, err = Open(config.Store{Driver: "redis"}, nil)
	require.Error(t, err)

	_, err = Open(config.Store{Driver: config.StoreSQLite}, nil)
	require.Error(t, err)
}

func TestFind(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	require.NoError(t, s.Append(ctx, "df31ae23-0000", msg(proto.RoleUser, "message 1", 0)))
	require.NoError(t, s.Append(ctx, "df31ff00-0000", msg(proto.RoleUser, "message 2", time.Second)))
	require.NoError(t, s.Append(ctx, "abc", msg(proto.RoleUser, "message 3", 2*time.Second)))

	tests := map[string]struct {
		in  string
		id  string
		err error
	}{
		"exact id":      {in: "abc", id: "abc"},
		"unique prefix": {in: "df31a", id: "df31ae23-0000"},
		"title":         {in: "message 2", id: "df31ff00-0000"},
		"ambiguous":     {in: "df31", err: ErrManyMatches},
		"short prefix":  {in: "df3", err: ErrNoMatches},
		"none":          {in: "zzzz", err: ErrNoMatches},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			th, err := Find(ctx, s, tc.in)
			if tc.err != nil {
				require.ErrorIs(t, err, tc.err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.id, th.ID)
		})
	}
}

func TestIDs(t *testing.T) {
	id := NewThreadID()
	require.Len(t, id, 36)
	require.NotEqual(t, id, NewThreadID())
	require.Equal(t, id[:ShortLen], ShortID(id))
	require.Equal(t, "abc", ShortID("abc"))
	require.Regexp(t, `^msg_[0-9a-f]{32}$`, NewMessageID())
}
