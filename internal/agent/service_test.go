package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/proto"
	"github.com/dotcommander/threadline/internal/storage"
)

// gatedModel holds every turn until gate is closed.
type gatedModel struct {
	gate   chan struct{}
	calls  atomic.Int32
	active atomic.Int32
	peak   atomic.Int32
}

func (m *gatedModel) Generate(ctx context.Context, req proto.Request) iter.Seq2[proto.Fragment, error] {
	return func(yield func(proto.Fragment, error) bool) {
		m.calls.Add(1)
		n := m.active.Add(1)
		defer m.active.Add(-1)
		for {
			p := m.peak.Load()
			if n <= p || m.peak.CompareAndSwap(p, n) {
				break
			}
		}

		select {
		case <-m.gate:
		case <-ctx.Done():
			yield(proto.Fragment{}, ctx.Err())
			return
		}
		last := req.Messages[len(req.Messages)-1]
		yield(text(fmt.Sprintf("answer to %s", last.Content)), nil)
	}
}

func TestValidate(t *testing.T) {
	for name, tc := range map[string]struct {
		threadID string
		message  string
		reason   string
	}{
		"valid":         {threadID: "t1", message: "hi"},
		"empty message": {threadID: "t1", message: "", reason: "Message cannot be empty"},
		"blank message": {threadID: "t1", message: " \n\t", reason: "Message cannot be empty"},
		"blank thread":  {threadID: "  ", message: "hi", reason: "thread_id is required"},
		"message first": {threadID: "", message: "", reason: "Message cannot be empty"},
	} {
		t.Run(name, func(t *testing.T) {
			err := Validate(tc.threadID, tc.message)
			if tc.reason == "" {
				require.NoError(t, err)
				return
			}
			require.Equal(t, errs.KindValidation, errs.KindOf(err))
			require.Equal(t, tc.reason, errs.MessageOf(err))
		})
	}
}

func TestRunRejectsEmptyMessage(t *testing.T) {
	model := &scriptedModel{}
	h := newHarness(t, Options{}, model)

	events, err := h.svc.Run(context.Background(), "t1", "")
	require.Nil(t, events)
	require.Equal(t, errs.KindValidation, errs.KindOf(err))
	require.Empty(t, model.Requests())
	require.Empty(t, history(t, h.store, "t1"))
}

func TestSameThreadRunsDoNotInterleave(t *testing.T) {
	model := &gatedModel{gate: make(chan struct{})}
	store := storage.NewMemoryStore()
	svc := NewService(NewLoop(model, noTools{}, store, Options{}, nil), nil)

	first, err := svc.Run(context.Background(), "t1", "one")
	require.NoError(t, err)
	require.Eventually(t, func() bool { return model.calls.Load() == 1 }, time.Second, time.Millisecond)

	second, err := svc.Run(context.Background(), "t1", "two")
	require.NoError(t, err)
	time.Sleep(30 * time.Millisecond)
	require.EqualValues(t, 1, model.calls.Load(), "second run must wait for the first")

	close(model.gate)
	require.Equal(t, []EventKind{EventToken, EventDone}, kinds(drain(t, first)))
	require.Equal(t, []EventKind{EventToken, EventDone}, kinds(drain(t, second)))
	require.EqualValues(t, 1, model.peak.Load())

	msgs := history(t, store, "t1")
	require.Equal(t, []proto.Role{
		proto.RoleUser, proto.RoleAssistant, proto.RoleUser, proto.RoleAssistant,
	}, roles(msgs))
	require.Equal(t, "one", msgs[0].Content)
	require.Equal(t, "answer to one", msgs[1].Content)
	require.Equal(t, "two", msgs[2].Content)
	require.Equal(t, "answer to two", msgs[3].Content)
}

func TestDifferentThreadsRunInParallel(t *testing.T) {
	model := &gatedModel{gate: make(chan struct{})}
	svc := NewService(NewLoop(model, noTools{}, storage.NewMemoryStore(), Options{}, nil), nil)

	var streams []<-chan Event
	for _, id := range []string{"t1", "t2", "t3"} {
		events, err := svc.Run(context.Background(), id, "hi "+id)
		require.NoError(t, err)
		streams = append(streams, events)
	}
	require.Eventually(t, func() bool { return model.active.Load() == 3 }, time.Second, time.Millisecond)

	close(model.gate)
	for _, events := range streams {
		require.Equal(t, []EventKind{EventToken, EventDone}, kinds(drain(t, events)))
	}
}

func TestCancelReleasesThread(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{frags: []proto.Fragment{text("thinking")}, block: true},
		{frags: []proto.Fragment{text("ok")}},
	}}
	h := newHarness(t, Options{}, model)

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.svc.Run(ctx, "t1", "first")
	require.NoError(t, err)
	require.Equal(t, EventToken, (<-events).Kind)
	cancel()

	for _, ev := range drain(t, events) {
		require.NotEqual(t, EventDone, ev.Kind)
	}

	again := h.run(t, "t1", "second")
	require.Equal(t, []EventKind{EventToken, EventDone}, kinds(again))
	require.Equal(t, []proto.Role{proto.RoleUser, proto.RoleUser, proto.RoleAssistant}, roles(history(t, h.store, "t1")))
}

func TestCancelStopsInFlightTool(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{frags: []proto.Fragment{call("call_1", "wait", `{}`)}},
	}}
	toolErr := make(chan error, 1)
	rec := &recorder{}
	h := newHarness(t, Options{}, model, rec.tool("wait", func(ctx context.Context, _ json.RawMessage) (string, error) {
		<-ctx.Done()
		toolErr <- ctx.Err()
		return "", ctx.Err()
	}))

	ctx, cancel := context.WithCancel(context.Background())
	events, err := h.svc.Run(ctx, "t1", "go")
	require.NoError(t, err)
	require.Equal(t, EventToolStart, (<-events).Kind)
	cancel()
	drain(t, events)

	select {
	case err := <-toolErr:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("tool was not cancelled")
	}
}

func TestPanicIsReported(t *testing.T) {
	model := &scriptedModel{turns: []scriptedTurn{
		{frags: []proto.Fragment{call("call_1", "explode", `{}`)}},
		{frags: []proto.Fragment{text("fine")}},
	}}
	rec := &recorder{}
	h := newHarness(t, Options{}, model, rec.tool("explode", func(context.Context, json.RawMessage) (string, error) {
		panic("kaboom")
	}))

	events := h.run(t, "t1", "go")
	requireSingleTerminal(t, events)
	last := events[len(events)-1]
	require.Equal(t, EventError, last.Kind)
	require.Equal(t, "Internal error while running the agent.", last.Text)
	require.ErrorContains(t, last.Err, "kaboom")

	require.Equal(t, []EventKind{EventToken, EventDone}, kinds(h.run(t, "t1", "again")))
}

func TestConcurrentRunsKeepToolResultsCorrelated(t *testing.T) {
	var mu sync.Mutex
	model := &scriptedModel{}
	for i := range 5 {
		model.turns = append(model.turns,
			scriptedTurn{frags: []proto.Fragment{call(fmt.Sprintf("call_%d", i), "search", `{}`)}},
			scriptedTurn{frags: []proto.Fragment{text("done")}},
		)
	}
	rec := &recorder{}
	h := newHarness(t, Options{}, model, rec.tool("search", func(context.Context, json.RawMessage) (string, error) {
		mu.Lock()
		defer mu.Unlock()
		return "result", nil
	}))

	var wg sync.WaitGroup
	for range 5 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			events, err := h.svc.Run(context.Background(), "shared", "hi")
			if err != nil {
				return
			}
			for range events {
			}
		}()
	}
	wg.Wait()

	msgs := history(t, h.store, "shared")
	require.Len(t, msgs, 20)
	for i, msg := range msgs {
		if msg.Role != proto.RoleTool {
			continue
		}
		prev := msgs[i-1]
		require.Equal(t, proto.RoleAssistant, prev.Role)
		require.Len(t, prev.ToolCalls, 1)
		require.Equal(t, prev.ToolCalls[0].ID, msg.ToolCallID)
	}
}

type noTools struct{}

func (noTools) Definitions() []proto.ToolDefinition { return nil }

func (noTools) Invoke(context.Context, string, json.RawMessage) (string, error) {
	return "", fmt.Errorf("no tools")
}
