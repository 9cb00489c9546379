package agent

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"github.com/dotcommander/threadline/internal/errs"
)

const internalErrorReason = "Internal error while running the agent."

var errPanic = errors.New("panic")

func panicError(r any) error {
	return errs.New(errs.KindUnknown,
		fmt.Errorf("%w: %v\n%s", errPanic, r, debug.Stack()),
		internalErrorReason)
}

// errorEvent is the terminal event for a failed run.
func errorEvent(err error) Event {
	msg := errs.MessageOf(err)
	if errs.KindOf(err) == errs.KindUnknown {
		switch {
		case errors.Is(err, errPanic):
			// keep the stack out of the client's view
			msg = internalErrorReason
		case errors.Is(err, context.Canceled), errors.Is(err, errListenerGone):
			msg = "The request was cancelled."
		case errors.Is(err, context.DeadlineExceeded):
			msg = "The request timed out."
		}
	}
	return Event{Kind: EventError, Text: msg, Err: err}
}
