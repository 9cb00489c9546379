package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/proto"
	"github.com/dotcommander/threadline/internal/storage"
	"github.com/dotcommander/threadline/internal/tools"
)

// DefaultMaxIterations bounds the reasoning turns of one run.
const DefaultMaxIterations = 10

const incompleteToolCall = "tool call did not complete"

// Model streams one reasoning turn.
type Model interface {
	Generate(ctx context.Context, req proto.Request) iter.Seq2[proto.Fragment, error]
}

// Tools is the tool surface offered to the model. It must not change while a
// run is in progress.
type Tools interface {
	Definitions() []proto.ToolDefinition
	Invoke(ctx context.Context, name string, args json.RawMessage) (string, error)
}

// Options configures a Loop.
type Options struct {
	Model       string
	System      string
	Temperature *float64
	MaxTokens   *int64
	User        string

	// MaxIterations caps reasoning turns per run. Zero means
	// DefaultMaxIterations.
	MaxIterations int

	// ReportToolErrors turns tool failures into error-bearing tool messages
	// the model can react to, instead of ending the run.
	ReportToolErrors bool

	// ToolTimeout bounds each tool invocation. Zero disables it.
	ToolTimeout time.Duration

	Tracer trace.Tracer
}

type state int

const (
	stateReasoning state = iota
	stateExecutingTools
	stateDone
)

func (s state) String() string {
	switch s {
	case stateReasoning:
		return "reasoning"
	case stateExecutingTools:
		return "executing_tools"
	default:
		return "done"
	}
}

// emitFunc delivers an event. It returns false when nobody is listening
// anymore.
type emitFunc func(Event) bool

var errListenerGone = errors.New("event listener went away")

// Loop is the reasoning/tool-execution state machine. It holds no per-run
// state; callers serialize runs on the same thread.
type Loop struct {
	model  Model
	tools  Tools
	store  storage.Store
	opts   Options
	logger *slog.Logger
	now    func() time.Time
}

// NewLoop creates a loop over the given collaborators.
func NewLoop(model Model, tools Tools, store storage.Store, opts Options, logger *slog.Logger) *Loop {
	if opts.MaxIterations <= 0 {
		opts.MaxIterations = DefaultMaxIterations
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("threadline/agent")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		model:  model,
		tools:  tools,
		store:  store,
		opts:   opts,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Run appends message to the thread and drives the model until it answers
// without tool calls. It emits token and tool events but no terminal event;
// a nil return means the run reached a final answer.
func (l *Loop) Run(ctx context.Context, threadID, message string, emit emitFunc) (err error) {
	ctx, span := l.opts.Tracer.Start(ctx, "agent.run", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("model", l.opts.Model),
	))
	defer func() { endSpan(span, err) }()

	history, err := l.store.Load(ctx, threadID)
	if err != nil {
		return l.storageError(ctx, err, "Could not load the thread.")
	}

	opening := repairDangling(history)
	opening = append(opening, proto.Message{Role: proto.RoleUser, Content: message})
	if err := l.record(ctx, threadID, &history, opening...); err != nil {
		return err
	}

	var (
		pending []proto.ToolCall
		turns   int
		st      = stateReasoning
	)
	for st != stateDone {
		if err := ctx.Err(); err != nil {
			return err
		}
		l.logger.Debug("loop step", "thread_id", threadID, "state", st, "turn", turns)

		switch st {
		case stateReasoning:
			if turns >= l.opts.MaxIterations {
				return errs.New(errs.KindLimit,
					fmt.Errorf("no final answer after %d reasoning turns", turns),
					fmt.Sprintf("The agent stopped after %d reasoning turns without a final answer.", turns))
			}
			turns++
			reply, err := l.reason(ctx, threadID, turns, history, emit)
			if err != nil {
				return err
			}
			if err := l.record(ctx, threadID, &history, reply); err != nil {
				return err
			}
			pending = reply.ToolCalls
			if len(pending) == 0 {
				st = stateDone
			} else {
				st = stateExecutingTools
			}

		case stateExecutingTools:
			for _, call := range pending {
				result, err := l.execute(ctx, threadID, call, emit)
				if err != nil {
					return err
				}
				if err := l.record(ctx, threadID, &history, result); err != nil {
					return err
				}
			}
			pending = nil
			st = stateReasoning
		}
	}

	span.SetAttributes(attribute.Int("turns", turns))
	return nil
}

func (l *Loop) reason(ctx context.Context, threadID string, turn int, history []proto.Message, emit emitFunc) (_ proto.Message, err error) {
	ctx, span := l.opts.Tracer.Start(ctx, "agent.reason", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.Int("turn", turn),
	))
	defer func() { endSpan(span, err) }()

	req := proto.Request{
		Model:       l.opts.Model,
		System:      l.opts.System,
		Messages:    proto.CloneMessages(history),
		Tools:       l.tools.Definitions(),
		Temperature: l.opts.Temperature,
		MaxTokens:   l.opts.MaxTokens,
		User:        l.opts.User,
	}

	var (
		content strings.Builder
		calls   []proto.ToolCall
	)
	for frag, ferr := range l.model.Generate(ctx, req) {
		if ferr != nil {
			if cerr := ctx.Err(); cerr != nil {
				return proto.Message{}, cerr
			}
			if errs.KindOf(ferr) == errs.KindUnknown {
				ferr = errs.New(errs.KindModel, ferr, "The model request failed.")
			}
			return proto.Message{}, ferr
		}
		if frag.Text != "" {
			content.WriteString(frag.Text)
			if err := l.send(ctx, emit, Event{Kind: EventToken, Text: frag.Text}); err != nil {
				return proto.Message{}, err
			}
		}
		if frag.ToolCall != nil {
			calls = append(calls, *frag.ToolCall)
		}
	}
	if err := ctx.Err(); err != nil {
		return proto.Message{}, err
	}

	span.SetAttributes(
		attribute.Int("tool.calls", len(calls)),
		attribute.Int("content.length", content.Len()),
	)
	return proto.Message{
		Role:      proto.RoleAssistant,
		Content:   content.String(),
		ToolCalls: calls,
	}, nil
}

func (l *Loop) execute(ctx context.Context, threadID string, call proto.ToolCall, emit emitFunc) (_ proto.Message, err error) {
	ctx, span := l.opts.Tracer.Start(ctx, "agent.tool", trace.WithAttributes(
		attribute.String("thread.id", threadID),
		attribute.String("tool.name", call.Name),
		attribute.String("tool.call_id", call.ID),
	))
	defer func() { endSpan(span, err) }()

	if err := l.send(ctx, emit, Event{Kind: EventToolStart, Tool: call.Name, Input: call.Arguments}); err != nil {
		return proto.Message{}, err
	}

	callCtx := ctx
	if l.opts.ToolTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, l.opts.ToolTimeout)
		defer cancel()
	}

	started := time.Now()
	output, ierr := l.tools.Invoke(callCtx, call.Name, call.Arguments)
	result := proto.Message{
		Role:       proto.RoleTool,
		ToolCallID: call.ID,
		Name:       call.Name,
		Content:    output,
	}
	if ierr != nil {
		if cerr := ctx.Err(); cerr != nil {
			return proto.Message{}, cerr
		}
		if errors.Is(ierr, context.DeadlineExceeded) {
			ierr = errs.New(errs.KindTool, ierr,
				fmt.Sprintf("Tool %s timed out after %s", call.Name, l.opts.ToolTimeout))
		}
		if !l.opts.ReportToolErrors || errors.Is(ierr, tools.ErrUnknownTool) {
			return proto.Message{}, ierr
		}
		l.logger.Warn("tool failed", "thread_id", threadID, "tool", call.Name, "error", ierr)
		result.Content = errs.MessageOf(ierr)
		result.IsError = true
	}
	l.logger.Debug("tool done", "thread_id", threadID, "tool", call.Name, "took", time.Since(started))

	if err := l.send(ctx, emit, Event{Kind: EventToolResult, Tool: call.Name, Output: result.Content}); err != nil {
		return proto.Message{}, err
	}
	return result, nil
}

// record stamps and durably appends msgs, then extends history.
func (l *Loop) record(ctx context.Context, threadID string, history *[]proto.Message, msgs ...proto.Message) error {
	for i := range msgs {
		if msgs[i].ID == "" {
			msgs[i].ID = storage.NewMessageID()
		}
		if msgs[i].CreatedAt.IsZero() {
			msgs[i].CreatedAt = l.now()
		}
	}
	if err := l.store.Append(ctx, threadID, msgs...); err != nil {
		return l.storageError(ctx, err, "Could not save the thread.")
	}
	*history = append(*history, msgs...)
	return nil
}

func (l *Loop) storageError(ctx context.Context, err error, reason string) error {
	if cerr := ctx.Err(); cerr != nil {
		return cerr
	}
	return errs.New(errs.KindStorage, err, reason)
}

func (l *Loop) send(ctx context.Context, emit emitFunc, ev Event) error {
	if emit(ev) {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return errListenerGone
}

// repairDangling answers tool calls of a trailing assistant message that a
// previous run never completed, so the history stays well formed.
func repairDangling(history []proto.Message) []proto.Message {
	last := -1
	for i := len(history) - 1; i >= 0; i-- {
		if history[i].Role != proto.RoleTool {
			last = i
			break
		}
	}
	if last < 0 || history[last].Role != proto.RoleAssistant || len(history[last].ToolCalls) == 0 {
		return nil
	}

	answered := make(map[string]struct{}, len(history)-last-1)
	for _, msg := range history[last+1:] {
		answered[msg.ToolCallID] = struct{}{}
	}

	var repairs []proto.Message
	for _, call := range history[last].ToolCalls {
		if _, ok := answered[call.ID]; ok {
			continue
		}
		repairs = append(repairs, proto.Message{
			Role:       proto.RoleTool,
			ToolCallID: call.ID,
			Name:       call.Name,
			Content:    incompleteToolCall,
			IsError:    true,
		})
	}
	return repairs
}

func endSpan(span trace.Span, err error) {
	switch {
	case err == nil:
		span.SetStatus(codes.Ok, "")
	case errors.Is(err, context.Canceled):
		span.SetStatus(codes.Ok, "canceled")
	default:
		span.RecordError(err)
		span.SetStatus(codes.Error, errs.KindOf(err).String())
	}
	span.End()
}
