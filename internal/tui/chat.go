// Package tui is the interactive chat client.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/dotcommander/threadline/internal/agent"
	"github.com/dotcommander/threadline/internal/errs"
	"github.com/dotcommander/threadline/internal/present"
	"github.com/dotcommander/threadline/internal/proto"
	"github.com/dotcommander/threadline/internal/storage"
)

const resultPreviewLen = 200

type chatState int

const (
	chatInputState chatState = iota
	chatStreamState
)

// Runner starts one agent run on a thread and returns its events. The
// channel is closed after the terminal event.
type Runner func(ctx context.Context, threadID, message string) (<-chan agent.Event, error)

// Chat is the Bubble Tea model for an interactive multi-turn REPL.
type Chat struct {
	Error *errs.Error

	state    chatState
	input    textinput.Model
	viewport viewport.Model
	spinner  spinner.Model
	glam     *glamour.TermRenderer
	renderer *lipgloss.Renderer
	styles   present.Styles

	historyBuf strings.Builder // rendered conversation so far
	streamBuf  strings.Builder // current run being streamed
	cancel     context.CancelFunc
	cancelled  bool

	run      Runner
	threadID string
	ctx      context.Context

	width  int
	height int

	renderScheduled bool
	dirtyOutput     bool
	initialPrompt   string
	waitingSince    time.Time
	waitingFor      string
}

// NewChat creates the Bubble Tea model for interactive chat on threadID.
// history is rendered above the prompt when resuming a thread.
func NewChat(
	ctx context.Context,
	r *lipgloss.Renderer,
	run Runner,
	threadID string,
	history []proto.Message,
	wordWrap int,
	initialPrompt string,
) *Chat {
	gr, _ := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(wordWrap),
	)

	styles := present.MakeStyles(r)

	ti := textinput.New()
	ti.Prompt = "threadline> "
	ti.PromptStyle = styles.Prompt
	ti.Focus()
	ti.CharLimit = 0

	vp := viewport.New(0, 0)
	vp.GotoBottom()

	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(styles.Tool))

	c := &Chat{
		state:         chatInputState,
		input:         ti,
		viewport:      vp,
		spinner:       sp,
		glam:          gr,
		renderer:      r,
		styles:        styles,
		run:           run,
		threadID:      threadID,
		ctx:           ctx,
		initialPrompt: initialPrompt,
	}
	writeHistory(&c.historyBuf, history)
	return c
}

func writeHistory(buf *strings.Builder, history []proto.Message) {
	for _, msg := range history {
		switch msg.Role {
		case proto.RoleUser:
			fmt.Fprintf(buf, "> %s\n\n", msg.Content)
		case proto.RoleAssistant:
			for _, call := range msg.ToolCalls {
				writeToolStart(buf, call.Name, string(call.Arguments))
			}
			if msg.Content != "" {
				fmt.Fprintf(buf, "%s\n\n", msg.Content)
			}
		case proto.RoleTool:
			writeToolResult(buf, msg.Name, msg.Content, msg.IsError)
		}
	}
}

func writeToolStart(buf *strings.Builder, name, args string) {
	args = strings.TrimSpace(args)
	if args == "" || args == "{}" {
		fmt.Fprintf(buf, "*⚙ %s*\n\n", name)
		return
	}
	fmt.Fprintf(buf, "*⚙ %s* `%s`\n\n", name, present.Preview(args, resultPreviewLen))
}

func writeToolResult(buf *strings.Builder, name, output string, failed bool) {
	mark := "↳"
	if failed {
		mark = "✗"
	}
	fmt.Fprintf(buf, "*%s %s* %s\n\n", mark, name, present.Preview(output, resultPreviewLen))
}

// chatSubmitMsg is sent when the user presses Enter with non-empty input.
type chatSubmitMsg struct {
	prompt string
}

// chatEventMsg carries one agent event plus the channel to keep reading.
type chatEventMsg struct {
	event  agent.Event
	events <-chan agent.Event
}

// chatStreamEndMsg signals the event channel was closed.
type chatStreamEndMsg struct{}

// chatFailedMsg reports a run that could not start.
type chatFailedMsg struct {
	err error
}

type chatRenderMsg struct{}

type chatWaitingTickMsg struct{}

// Init implements tea.Model.
func (c *Chat) Init() tea.Cmd {
	cmds := []tea.Cmd{textinput.Blink, c.spinner.Tick}
	if c.initialPrompt != "" {
		prompt := c.initialPrompt
		cmds = append(cmds, func() tea.Msg {
			return chatSubmitMsg{prompt: prompt}
		})
	}
	return tea.Batch(cmds...)
}

// Update implements tea.Model.
func (c *Chat) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		c.width = msg.Width
		c.height = msg.Height
		c.resizeViewport()
		c.refreshViewport()
		return c, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c":
			if c.state == chatStreamState {
				// input comes back with chatStreamEndMsg
				c.cancelled = true
				c.stopRun()
				return c, nil
			}
			return c, tea.Quit
		case "enter":
			if c.state != chatInputState {
				break
			}
			text := strings.TrimSpace(c.input.Value())
			if text == "" {
				return c, nil
			}
			c.input.SetValue("")
			switch text {
			case "/exit", "/quit":
				return c, tea.Quit
			case "/new":
				c.threadID = storage.NewThreadID()
				c.historyBuf.Reset()
				c.viewport.SetContent("")
				fmt.Fprintf(&c.historyBuf, "*New thread %s*\n\n", c.threadID)
				c.refreshViewport()
				return c, nil
			}
			return c, func() tea.Msg {
				return chatSubmitMsg{prompt: text}
			}
		}

	case chatSubmitMsg:
		fmt.Fprintf(&c.historyBuf, "> %s\n\n", msg.prompt)
		c.streamBuf.Reset()
		c.cancelled = false
		c.waitingSince = time.Now()
		c.waitingFor = "response"
		c.state = chatStreamState
		c.resizeViewport()
		c.dirtyOutput = true
		c.refreshViewport()
		return c, tea.Batch(c.startRunCmd(msg.prompt), c.waitingTickCmd())

	case chatEventMsg:
		if !c.cancelled {
			c.apply(msg.event)
		}
		if !c.renderScheduled {
			c.renderScheduled = true
			cmds = append(cmds, c.renderTickCmd())
		}
		cmds = append(cmds, waitForEvent(msg.events))
		return c, tea.Batch(cmds...)

	case chatStreamEndMsg:
		if c.cancelled {
			c.streamBuf.WriteString("*cancelled*\n\n")
		}
		c.endTurn()
		return c, nil

	case chatFailedMsg:
		fmt.Fprintf(&c.streamBuf, "**Error:** %s\n\n", errs.MessageOf(msg.err))
		c.endTurn()
		return c, nil

	case chatWaitingTickMsg:
		if c.state == chatStreamState && !c.waitingSince.IsZero() {
			return c, c.waitingTickCmd()
		}
		return c, nil

	case chatRenderMsg:
		c.renderScheduled = false
		if c.dirtyOutput {
			c.refreshViewport()
		}
		return c, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		c.spinner, cmd = c.spinner.Update(msg)
		return c, cmd

	case errs.Error:
		e := msg
		c.Error = &e
		return c, tea.Quit
	}

	if c.state == chatInputState {
		var cmd tea.Cmd
		c.input, cmd = c.input.Update(msg)
		cmds = append(cmds, cmd)
	}

	var cmd tea.Cmd
	c.viewport, cmd = c.viewport.Update(msg)
	cmds = append(cmds, cmd)

	return c, tea.Batch(cmds...)
}

// apply folds one event into the streamed output.
func (c *Chat) apply(ev agent.Event) {
	switch ev.Kind {
	case agent.EventToken:
		c.waitingSince = time.Time{}
		c.streamBuf.WriteString(ev.Text)
	case agent.EventToolStart:
		c.closeParagraph()
		writeToolStart(&c.streamBuf, ev.Tool, string(ev.Input))
		c.waitingSince = time.Now()
		c.waitingFor = ev.Tool
	case agent.EventToolResult:
		writeToolResult(&c.streamBuf, ev.Tool, ev.Output, false)
		c.waitingSince = time.Now()
		c.waitingFor = "response"
	case agent.EventError:
		c.closeParagraph()
		fmt.Fprintf(&c.streamBuf, "**Error:** %s\n\n", ev.Text)
	case agent.EventDone:
		c.closeParagraph()
	}
	c.dirtyOutput = true
}

func (c *Chat) closeParagraph() {
	s := c.streamBuf.String()
	if s != "" && !strings.HasSuffix(s, "\n\n") {
		c.streamBuf.WriteString("\n\n")
	}
}

// View implements tea.Model.
func (c *Chat) View() string {
	if c.width == 0 || c.height == 0 {
		return ""
	}

	divider := c.styles.Comment.Render(strings.Repeat("─", max(c.width, 1)))
	footer := c.input.View()
	if c.state == chatStreamState {
		footer = c.spinner.View() + " " + c.waitingStatus(time.Now())
	}
	return c.viewport.View() + "\n" + divider + "\n" + footer
}

// ThreadID returns the thread the chat is currently writing to.
func (c *Chat) ThreadID() string {
	return c.threadID
}

func (c *Chat) startRunCmd(prompt string) tea.Cmd {
	c.stopRun()
	ctx, cancel := context.WithCancel(c.ctx)
	c.cancel = cancel
	run, threadID := c.run, c.threadID
	return func() tea.Msg {
		if run == nil {
			return errs.Error{Reason: "Agent is not available."}
		}
		events, err := run(ctx, threadID, prompt)
		if err != nil {
			return chatFailedMsg{err: err}
		}
		return waitForEvent(events)()
	}
}

func waitForEvent(events <-chan agent.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return chatStreamEndMsg{}
		}
		return chatEventMsg{event: ev, events: events}
	}
}

func (c *Chat) endTurn() {
	c.stopRun()
	c.closeParagraph()
	c.historyBuf.WriteString(c.streamBuf.String())
	c.streamBuf.Reset()
	c.waitingSince = time.Time{}
	c.state = chatInputState
	c.dirtyOutput = true
	c.resizeViewport()
	c.refreshViewport()
}

func (c *Chat) stopRun() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
}

func (c *Chat) refreshViewport() {
	combined := c.historyBuf.String() + c.streamBuf.String()
	if combined == "" || c.width == 0 {
		return
	}

	rendered := combined
	if c.glam != nil {
		if out, err := c.glam.Render(combined); err == nil {
			rendered = out
		}
	}
	rendered = strings.TrimRightFunc(rendered, unicode.IsSpace) + "\n"

	truncated := c.renderer.NewStyle().MaxWidth(c.width).Render(rendered)

	wasAtBottom := c.viewport.ScrollPercent() >= 1.0
	c.viewport.SetContent(truncated)
	if wasAtBottom {
		c.viewport.GotoBottom()
	}
	c.dirtyOutput = false
}

func (c *Chat) renderTickCmd() tea.Cmd {
	const renderInterval = 33 * time.Millisecond
	return tea.Tick(renderInterval, func(time.Time) tea.Msg {
		return chatRenderMsg{}
	})
}

func (c *Chat) waitingTickCmd() tea.Cmd {
	const waitingInterval = 200 * time.Millisecond
	return tea.Tick(waitingInterval, func(time.Time) tea.Msg {
		return chatWaitingTickMsg{}
	})
}

func (c *Chat) resizeViewport() {
	if c.width > 0 {
		c.viewport.Width = c.width
	}
	c.viewport.Height = max(c.height-2, 1)
}

func (c *Chat) waitingStatus(now time.Time) string {
	if c.waitingSince.IsZero() {
		return c.styles.Comment.Render("Streaming...")
	}
	label := "Waiting for " + c.waitingFor + "..."
	elapsed := max(now.Sub(c.waitingSince), 0)
	return c.styles.Comment.Render(label + " [" + formatElapsedClock(elapsed) + "]")
}

func formatElapsedClock(d time.Duration) string {
	totalSeconds := int(d / time.Second)
	hours := totalSeconds / 3600
	minutes := (totalSeconds % 3600) / 60
	seconds := totalSeconds % 60

	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, seconds)
	}
	return fmt.Sprintf("%02d:%02d", minutes, seconds)
}
