package stream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/charmbracelet/x/exp/golden"
	"github.com/stretchr/testify/require"

	"github.com/dotcommander/threadline/internal/agent"
)

type flushRecorder struct {
	bytes.Buffer
	flushes int
}

func (f *flushRecorder) Flush() { f.flushes++ }

func feed(events ...agent.Event) <-chan agent.Event {
	ch := make(chan agent.Event, len(events))
	for _, ev := range events {
		ch <- ev
	}
	close(ch)
	return ch
}

func TestEncodeGolden(t *testing.T) {
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(context.Background(), feed(
		agent.Event{Kind: agent.EventToken, Text: "Hello"},
		agent.Event{Kind: agent.EventToken, Text: " world\n"},
		agent.Event{Kind: agent.EventToolStart, Tool: "search", Input: json.RawMessage("{\n  \"query\": \"weather paris\",\n  \"max_results\": 3\n}")},
		agent.Event{Kind: agent.EventToolResult, Tool: "search", Output: `{"answer":"sunny"}`},
		agent.Event{Kind: agent.EventToken, Text: "It is sunny."},
		agent.Event{Kind: agent.EventDone},
	))
	require.NoError(t, err)
	golden.RequireEqual(t, buf.Bytes())
}

func TestEncodeUnexpectedCloseGolden(t *testing.T) {
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(context.Background(), feed(
		agent.Event{Kind: agent.EventToken, Text: "partial"},
	))
	require.NoError(t, err)
	golden.RequireEqual(t, buf.Bytes())
}

func TestEncoderFlushesEveryRecord(t *testing.T) {
	w := &flushRecorder{}
	enc := NewEncoder(w)
	require.NoError(t, enc.Write(agent.Event{Kind: agent.EventToken, Text: "a"}))
	require.Equal(t, 1, w.flushes)
	require.NoError(t, enc.Write(agent.Event{Kind: agent.EventToken, Text: "b"}))
	require.Equal(t, 2, w.flushes)
	require.Equal(t, "data: {\"type\":\"token\",\"content\":\"a\"}\n\ndata: {\"type\":\"token\",\"content\":\"b\"}\n\n", w.String())
}

func TestEncoderTerminal(t *testing.T) {
	t.Run("drops events after a terminal record", func(t *testing.T) {
		var buf bytes.Buffer
		enc := NewEncoder(&buf)
		require.NoError(t, enc.Write(agent.Event{Kind: agent.EventError, Text: "boom"}))
		require.True(t, enc.Terminated())
		require.NoError(t, enc.Write(agent.Event{Kind: agent.EventToken, Text: "late"}))
		require.NoError(t, enc.Close())
		require.Equal(t, "data: {\"type\":\"error\",\"message\":\"boom\"}\n\n", buf.String())
	})

	t.Run("error text falls back to the error", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf).Write(agent.Event{Kind: agent.EventError, Err: errors.New("raw")}))
		require.Equal(t, "data: {\"type\":\"error\",\"message\":\"raw\"}\n\n", buf.String())
	})

	t.Run("empty tool result keeps its field", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf).Write(agent.Event{Kind: agent.EventToolResult, Tool: "search"}))
		require.Equal(t, "data: {\"type\":\"tool_result\",\"tool\":\"search\",\"result\":\"\"}\n\n", buf.String())
	})
}

func TestEncodeStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var buf bytes.Buffer
	err := NewEncoder(&buf).Encode(ctx, make(chan agent.Event))
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, buf.String())
}

func TestInputObject(t *testing.T) {
	for name, tc := range map[string]struct {
		in       string
		expected string
	}{
		"object":  {in: `{"query":"x"}`, expected: `{"query":"x"}`},
		"padded":  {in: "  {\"a\":1}\n", expected: `{"a":1}`},
		"empty":   {in: "", expected: `{}`},
		"array":   {in: `[1,2]`, expected: `{}`},
		"string":  {in: `"query"`, expected: `{}`},
		"invalid": {in: `{"query":`, expected: `{}`},
	} {
		t.Run(name, func(t *testing.T) {
			require.Equal(t, tc.expected, string(inputObject(json.RawMessage(tc.in))))
		})
	}
}

func TestDecoder(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		events := []agent.Event{
			{Kind: agent.EventToken, Text: "Hi\nthere"},
			{Kind: agent.EventToolStart, Tool: "search", Input: json.RawMessage(`{"query":"x"}`)},
			{Kind: agent.EventToolResult, Tool: "search", Output: "found"},
			{Kind: agent.EventDone},
		}
		var buf bytes.Buffer
		require.NoError(t, NewEncoder(&buf).Encode(context.Background(), feed(events...)))

		var got []agent.Event
		for rec, err := range NewDecoder(&buf).Records() {
			require.NoError(t, err)
			ev, ok := rec.Event()
			require.True(t, ok)
			got = append(got, ev)
		}
		require.Equal(t, events, got)
	})

	t.Run("skips non data lines", func(t *testing.T) {
		input := ": keepalive\r\nevent: message\r\ndata: {\"type\":\"token\",\"content\":\"a\"}\r\n\r\n\ndata: {\"type\":\"error\",\"message\":\"nope\"}\n\n"
		dec := NewDecoder(strings.NewReader(input))

		rec, err := dec.Next()
		require.NoError(t, err)
		require.Equal(t, Record{Type: TypeToken, Content: "a"}, rec)
		require.False(t, rec.Terminal())

		rec, err = dec.Next()
		require.NoError(t, err)
		require.Equal(t, "nope", rec.Message)
		require.True(t, rec.Terminal())

		_, err = dec.Next()
		require.ErrorIs(t, err, io.EOF)
	})

	t.Run("invalid payload", func(t *testing.T) {
		var seen int
		for _, err := range NewDecoder(strings.NewReader("data: {nope\n\ndata: {\"type\":\"token\"}\n\n")).Records() {
			seen++
			require.ErrorContains(t, err, "decode record")
		}
		require.Equal(t, 1, seen)
	})
}

func TestRecordTerminal(t *testing.T) {
	require.True(t, Record{Type: TypeStatus, Status: StatusDone}.Terminal())
	require.True(t, Record{Type: TypeError}.Terminal())
	require.False(t, Record{Type: TypeStatus, Status: "thinking"}.Terminal())
	require.False(t, Record{Type: TypeToolStart}.Terminal())
}

func TestRecordEvent(t *testing.T) {
	for name, tc := range map[string]struct {
		rec  Record
		want agent.Event
		ok   bool
	}{
		"done":         {rec: Record{Type: TypeStatus, Status: StatusDone}, want: agent.Event{Kind: agent.EventDone}, ok: true},
		"error":        {rec: Record{Type: TypeError, Message: "nope"}, want: agent.Event{Kind: agent.EventError, Text: "nope"}, ok: true},
		"other status": {rec: Record{Type: TypeStatus, Status: "thinking"}},
		"unknown type": {rec: Record{Type: "usage"}},
		"token":        {rec: Record{Type: TypeToken, Content: "a"}, want: agent.Event{Kind: agent.EventToken, Text: "a"}, ok: true},
		"empty record": {rec: Record{}},
	} {
		t.Run(name, func(t *testing.T) {
			ev, ok := tc.rec.Event()
			require.Equal(t, tc.ok, ok)
			require.Equal(t, tc.want, ev)
			if ok {
				require.Equal(t, tc.rec.Terminal(), ev.Terminal())
			} else {
				require.False(t, tc.rec.Terminal())
			}
		})
	}
}
