package twin

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"digitaltwin/internal/logger"
	"digitaltwin/pkg/twintypes"
)

// Observer receives every state transition of every turn.
type Observer func(sessionID string, from, to twintypes.TurnState)

// Controller runs chat turns. It holds no per-session state and performs no locking:
// concurrent turns on one session id race and the last save wins.
type Controller struct {
	responder  Drafter
	judge      Judge
	store      twintypes.ConversationStore
	basePrompt func() string

	now      func() time.Time
	newID    func() string
	observer Observer
	logger   *log.Logger
}

// Option configures a Controller.
type Option func(*Controller)

// WithClock sets the clock used to stamp records.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithIDGenerator sets the generator for new session ids.
func WithIDGenerator(newID func() string) Option {
	return func(c *Controller) { c.newID = newID }
}

// WithObserver registers a state transition observer.
func WithObserver(o Observer) Option {
	return func(c *Controller) { c.observer = o }
}

// NewController creates a turn controller. basePrompt supplies the agent system prompt
// that a rerun extends.
func NewController(responder Drafter, judge Judge, store twintypes.ConversationStore, basePrompt func() string, opts ...Option) *Controller {
	c := &Controller{
		responder:  responder,
		judge:      judge,
		store:      store,
		basePrompt: basePrompt,
		now:        time.Now,
		newID:      uuid.NewString,
		logger:     logger.NewStyledLogger("Turn"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// turn tracks the state of one in-flight turn.
type turn struct {
	c         *Controller
	sessionID string
	state     twintypes.TurnState
}

func (t *turn) advance(to twintypes.TurnState) {
	from := t.state
	t.state = to
	t.c.logger.Debug("Turn transition", "session", t.sessionID, "state", to.String())
	if t.c.observer != nil {
		t.c.observer(t.sessionID, from, to)
	}
}

func (t *turn) fail(err error) (twintypes.TurnResult, error) {
	failedIn := t.state
	t.advance(twintypes.StateFailed)
	t.c.logger.Error("Turn failed", "session", t.sessionID, "state", failedIn.String(), "error", err)
	return twintypes.TurnResult{}, &TurnError{State: failedIn, SessionID: t.sessionID, Err: err}
}

// Turn answers one user message. History is saved exactly once, after both the user
// and the assistant record are appended; nothing is saved when any step fails.
// A rejected draft is regenerated once and the regenerated reply is final.
func (c *Controller) Turn(ctx context.Context, req twintypes.TurnRequest) (twintypes.TurnResult, error) {
	t := &turn{c: c, sessionID: req.SessionID, state: twintypes.StateStart}
	if t.sessionID == "" {
		t.sessionID = c.newID()
		c.logger.Debug("Minted session id", "session", t.sessionID)
	}

	if strings.TrimSpace(req.Message) == "" {
		return t.fail(ErrEmptyMessage)
	}

	history, err := c.store.Load(ctx, t.sessionID)
	if err != nil {
		return t.fail(fmt.Errorf("failed to load history: %w", err))
	}
	t.advance(twintypes.StateHistoryLoaded)

	draft, err := c.responder.Respond(ctx, history, req.Message)
	if err != nil {
		return t.fail(err)
	}
	t.advance(twintypes.StateDrafted)

	evaluation, err := c.judge.Evaluate(ctx, draft, req.Message, history)
	if err != nil {
		return t.fail(err)
	}
	t.advance(twintypes.StateEvaluated)

	final := draft
	if evaluation.IsAcceptable {
		t.advance(twintypes.StateAccepted)
	} else {
		c.logger.Info("Draft rejected", "session", t.sessionID, "feedback", evaluation.Feedback)
		final, err = c.judge.Rerun(ctx, c.basePrompt(), draft, req.Message, history, evaluation.Feedback)
		if err != nil {
			return t.fail(err)
		}
		t.advance(twintypes.StateCorrected)
	}

	userAt := c.now()
	assistantAt := c.now()
	if assistantAt.Before(userAt) {
		assistantAt = userAt
	}
	updated := append(twintypes.CloneRecords(history),
		twintypes.NewRecord(twintypes.RoleUser, req.Message, userAt),
		twintypes.NewRecord(twintypes.RoleAssistant, final, assistantAt),
	)

	if err := c.store.Save(ctx, t.sessionID, updated); err != nil {
		return t.fail(fmt.Errorf("failed to save history: %w", err))
	}
	t.advance(twintypes.StatePersisted)
	t.advance(twintypes.StateDone)

	c.logger.Info("Turn completed", "session", t.sessionID, "corrected", !evaluation.IsAcceptable, "records", len(updated))
	return twintypes.TurnResult{Response: final, SessionID: t.sessionID}, nil
}

// History returns the stored conversation of a session.
func (c *Controller) History(ctx context.Context, sessionID string) ([]twintypes.Record, error) {
	records, err := c.store.Load(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return records, nil
}

// Backend names the conversation store in use.
func (c *Controller) Backend() string {
	return c.store.Backend()
}
