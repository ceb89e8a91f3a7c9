// Package repl provides the interactive console for chatting with the twin from a terminal.
// Every line typed that is not a console command is sent to the twin as a chat turn.
package repl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/abiosoft/ishell/v2"
	"github.com/charmbracelet/x/ansi"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// previewWidth bounds each history line preview, in terminal cells.
const previewWidth = 72

// ErrNothingToCopy is returned by copy before the first reply.
var ErrNothingToCopy = errors.New("no reply to copy yet")

// Turner runs chat turns and serves stored histories.
type Turner interface {
	Turn(ctx context.Context, req twintypes.TurnRequest) (twintypes.TurnResult, error)
	History(ctx context.Context, sessionID string) ([]twintypes.Record, error)
}

// Console holds the state of one interactive session.
type Console struct {
	turns     Turner
	renderer  *Renderer
	out       io.Writer
	sessionID string
	lastReply string
	copy      func(string) error
	process   func(name string) error
}

// NewConsole creates a console. An empty sessionID starts a new session on the first turn.
func NewConsole(turns Turner, renderer *Renderer, out io.Writer, sessionID string) *Console {
	return &Console{
		turns:     turns,
		renderer:  renderer,
		out:       out,
		sessionID: sessionID,
		copy:      writeToClipboard,
	}
}

// SessionID returns the current session, empty before the first turn of a new session.
func (c *Console) SessionID() string {
	return c.sessionID
}

// Ask runs one turn and prints the rendered reply.
func (c *Console) Ask(ctx context.Context, message string) error {
	message = strings.TrimSpace(message)
	if message == "" {
		return nil
	}

	result, err := c.turns.Turn(ctx, twintypes.TurnRequest{Message: message, SessionID: c.sessionID})
	if err != nil {
		return err
	}
	if c.sessionID == "" {
		logger.Debug("Session started", "session", result.SessionID)
	}
	c.sessionID = result.SessionID
	c.lastReply = result.Response

	fmt.Fprintln(c.out, strings.TrimRight(c.renderer.Render(result.Response), "\n"))
	return nil
}

// PrintHistory lists the records of the current session, one truncated preview per line.
func (c *Console) PrintHistory(ctx context.Context) error {
	if c.sessionID == "" {
		fmt.Fprintln(c.out, "No conversation yet.")
		return nil
	}

	records, err := c.turns.History(ctx, c.sessionID)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Session %s (%d messages)\n", c.sessionID, len(records))
	for i, rec := range records {
		fmt.Fprintf(c.out, "%3d. %-9s %s  %s\n", i+1, rec.Role, rec.Timestamp.Format("15:04:05"), preview(rec.Content))
	}
	return nil
}

// CopyLast puts the last reply on the system clipboard.
func (c *Console) CopyLast() error {
	if c.lastReply == "" {
		return ErrNothingToCopy
	}
	if err := c.copy(c.lastReply); err != nil {
		return err
	}
	fmt.Fprintln(c.out, "Copied last reply to clipboard.")
	return nil
}

// NewSession forgets the current session; the next turn starts a fresh one.
func (c *Console) NewSession() {
	c.sessionID = ""
	c.lastReply = ""
	fmt.Fprintln(c.out, "Started a new session.")
}

func preview(content string) string {
	line := strings.Join(strings.Fields(content), " ")
	return ansi.Truncate(line, previewWidth, "...")
}

// consoleCommands are the single-word console commands. Any other line is a chat message.
var consoleCommands = map[string]bool{
	"history": true,
	"copy":    true,
	"new":     true,
	"session": true,
	"help":    true,
}

// Handle dispatches one raw input line. The line is never shell-split, so quotes,
// apostrophes and trailing backslashes reach the twin unchanged.
func (c *Console) Handle(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch {
	case len(fields) == 1 && (fields[0] == "exit" || fields[0] == "quit"):
		return true, nil
	case fields[0] == "chat":
		return false, c.Ask(ctx, strings.TrimPrefix(strings.TrimSpace(line), "chat"))
	case len(fields) == 1 && consoleCommands[fields[0]]:
		if c.process != nil {
			return false, c.process(fields[0])
		}
		return false, c.runCommand(ctx, fields[0])
	}
	return false, c.Ask(ctx, line)
}

func (c *Console) runCommand(ctx context.Context, name string) error {
	switch name {
	case "history":
		return c.PrintHistory(ctx)
	case "copy":
		return c.CopyLast()
	case "new":
		c.NewSession()
	case "session":
		if c.sessionID == "" {
			fmt.Fprintln(c.out, "No session yet.")
		} else {
			fmt.Fprintln(c.out, c.sessionID)
		}
	case "help":
		fmt.Fprintln(c.out, "Commands: history, copy, new, session, exit. Anything else is sent to the twin.")
	default:
		return fmt.Errorf("unknown command %q", name)
	}
	return nil
}

// Shell builds the ishell front end holding the console commands and line editing.
func (c *Console) Shell(ctx context.Context, prompt string) *ishell.Shell {
	sh := ishell.New()
	sh.SetPrompt(prompt)

	add := func(name, help string) {
		sh.AddCmd(&ishell.Cmd{
			Name: name,
			Help: help,
			Func: func(ic *ishell.Context) {
				if err := c.runCommand(ctx, name); err != nil {
					ic.Println("Error:", err)
				}
			},
		})
	}
	add("history", "list the messages of the current session")
	add("copy", "copy the last reply to the clipboard")
	add("new", "start a new session")
	add("session", "print the current session id")
	return sh
}

// Run reads raw lines until the user exits, the input ends or ctx is cancelled.
func (c *Console) Run(ctx context.Context, banner string) {
	sh := c.Shell(ctx, "twin> ")
	defer sh.Close()
	c.process = func(name string) error { return sh.Process(name) }

	sh.Println(banner)
	sh.Println("Type a message to chat, 'help' for commands or 'exit' to quit.")
	for ctx.Err() == nil {
		line, err := sh.ReadLineErr()
		if err != nil {
			// EOF and Ctrl-C end the session
			return
		}
		quit, err := c.Handle(ctx, line)
		if err != nil {
			sh.Println("Error:", err)
		}
		if quit {
			return
		}
	}
}
