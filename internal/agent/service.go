package agent

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/storage"
)

const eventBuffer = 64

// Service runs loops for chat requests.
//
// Runs on the same thread are serialized for their whole duration; runs on
// different threads proceed in parallel.
type Service struct {
	loop   *Loop
	locks  *storage.Locks
	logger *slog.Logger
}

// NewService creates a service around loop.
func NewService(loop *Loop, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		loop:   loop,
		locks:  storage.NewLocks(),
		logger: logger.With("component", "agent"),
	}
}

// Validate checks a chat request before any work starts.
func Validate(threadID, message string) error {
	if strings.TrimSpace(message) == "" {
		return errs.Validation("Message cannot be empty")
	}
	if strings.TrimSpace(threadID) == "" {
		return errs.Validation("thread_id is required")
	}
	return nil
}

// Run validates the request and starts a loop for it. The returned channel
// carries the loop's events and is closed after exactly one terminal event,
// EventDone or EventError. Cancelling ctx stops the loop promptly.
func (s *Service) Run(ctx context.Context, threadID, message string) (<-chan Event, error) {
	if err := Validate(threadID, message); err != nil {
		return nil, err
	}
	events := make(chan Event, eventBuffer)
	go s.run(ctx, threadID, message, events)
	return events, nil
}

func (s *Service) run(ctx context.Context, threadID, message string, events chan<- Event) {
	defer close(events)

	emit := func(ev Event) bool {
		select {
		case events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	s.logger.Debug("run started", "thread_id", threadID)
	err := s.runLocked(ctx, threadID, message, emit)
	if err == nil {
		s.logger.Debug("run done", "thread_id", threadID)
		emit(Event{Kind: EventDone})
		return
	}

	if errors.Is(err, context.Canceled) || errors.Is(err, errListenerGone) {
		s.logger.Info("run cancelled", "thread_id", threadID)
	} else {
		s.logger.Error("run failed", "thread_id", threadID, "kind", errs.KindOf(err), "error", err)
	}
	emit(errorEvent(err))
}

func (s *Service) runLocked(ctx context.Context, threadID, message string, emit emitFunc) (err error) {
	release, err := s.locks.Acquire(ctx, threadID)
	if err != nil {
		return err
	}
	defer release()

	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()
	return s.loop.Run(ctx, threadID, message, emit)
}
