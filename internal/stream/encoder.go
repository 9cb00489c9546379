package stream

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/dotcommander/threadline/internal/agent"
)

// Encoder writes agent events as records, flushing after each one.
type Encoder struct {
	w          io.Writer
	flusher    http.Flusher
	terminated bool
}

// NewEncoder returns an encoder writing to w. When w implements
// http.Flusher every record is flushed as soon as it is written.
func NewEncoder(w io.Writer) *Encoder {
	e := &Encoder{w: w}
	if f, ok := w.(http.Flusher); ok {
		e.flusher = f
	}
	return e
}

// Terminated reports whether a terminal record has been written.
func (e *Encoder) Terminated() bool {
	return e.terminated
}

// Write encodes one event. Events after a terminal one are dropped.
func (e *Encoder) Write(ev agent.Event) error {
	if e.terminated {
		return nil
	}
	bts, err := json.Marshal(payloadOf(ev))
	if err != nil {
		return fmt.Errorf("encode %s record: %w", ev.Kind, err)
	}
	if _, err := fmt.Fprintf(e.w, "%s%s\n\n", dataPrefix, bts); err != nil {
		return fmt.Errorf("write %s record: %w", ev.Kind, err)
	}
	if e.flusher != nil {
		e.flusher.Flush()
	}
	e.terminated = ev.Terminal()
	return nil
}

// Encode writes events in arrival order until the channel is closed. If it
// closes before a terminal event, an error record is written in its place.
// It returns early with ctx's error when ctx is done.
func (e *Encoder) Encode(ctx context.Context, events <-chan agent.Event) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return e.Close()
			}
			if err := e.Write(ev); err != nil {
				return err
			}
		}
	}
}

// Close terminates the stream with an error record unless a terminal record
// was already written.
func (e *Encoder) Close() error {
	if e.terminated {
		return nil
	}
	return e.Write(agent.Event{Kind: agent.EventError, Text: UnexpectedEnd})
}
