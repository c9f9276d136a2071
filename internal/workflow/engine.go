// Package workflow drives a deck-revision session through its steps,
// suspending whenever the human has to answer and checkpointing as it goes.
package workflow

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/kokistudios/decksmith/internal/session"
)

var (
	ErrStaleResume   = errors.New("resume token does not match the pending question")
	ErrSessionClosed = errors.New("session has already ended")
)

const exhaustedNotice = "Step budget exhausted; ending the session without further changes."

// Checkpointer persists sessions between calls.
type Checkpointer interface {
	Save(ctx context.Context, sess *session.Session) error
	Load(ctx context.Context, id string) (*session.Session, error)
}

type Outcome string

const (
	OutcomeSuspended Outcome = "suspended"
	OutcomeCompleted Outcome = "completed"
	OutcomeExhausted Outcome = "exhausted"
	OutcomeFailed    Outcome = "failed"
	OutcomeAbandoned Outcome = "abandoned"
)

// RunResult reports where a session stopped.
type RunResult struct {
	SessionID string
	Outcome   Outcome
	Step      session.Step
	Kind      session.SuspendKind
	Prompt    string
	Token     string
	Options   []session.Option
	// Messages holds the history entries added during this call.
	Messages []session.Message
}

// StartOptions configures a new session.
type StartOptions struct {
	DeckID string
	Budget int
}

// Engine runs sessions. It holds no per-session state between calls.
type Engine struct {
	checkpoints  Checkpointer
	handlers     *Handlers
	providerName string
	budget       int
	log          *log.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// Option configures an Engine.
type Option func(*Engine)

func WithLogger(l *log.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithStepBudget sets the budget for sessions started without one.
func WithStepBudget(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.budget = n
		}
	}
}

func NewEngine(cp Checkpointer, h *Handlers, opts ...Option) *Engine {
	e := &Engine{
		checkpoints: cp,
		handlers:    h,
		budget:      session.DefaultStepBudget,
		log:         log.New(io.Discard),
		locks:       map[string]*sync.Mutex{},
	}
	if h != nil && h.provider != nil {
		e.providerName = h.provider.Name()
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// lock serializes calls on one session id.
func (e *Engine) lock(id string) func() {
	e.mu.Lock()
	l, ok := e.locks[id]
	if !ok {
		l = &sync.Mutex{}
		e.locks[id] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Start creates a session and runs it to its first suspension or the end.
func (e *Engine) Start(ctx context.Context, opts StartOptions) (RunResult, error) {
	budget := opts.Budget
	if budget <= 0 {
		budget = e.budget
	}

	first := "Help me revise one of my decks."
	desc := "deck"
	if opts.DeckID != "" {
		first = fmt.Sprintf("Help me revise deck %s.", opts.DeckID)
		desc = opts.DeckID
	}
	st := session.NewState(session.HumanMessage(first),
		session.WithDeckID(opts.DeckID),
		session.WithBudget(budget))
	sess := session.New(desc, e.providerName, st)

	unlock := e.lock(sess.ID)
	defer unlock()

	if err := e.checkpoints.Save(ctx, sess); err != nil {
		return RunResult{}, err
	}
	e.log.Info("session started", "session", sess.ID, "budget", budget)
	return e.run(ctx, sess, nil)
}

// Resume answers the pending suspension identified by token and runs on.
func (e *Engine) Resume(ctx context.Context, id, token, answer string) (RunResult, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.checkpoints.Load(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	if sess.Status.Terminal() {
		return RunResult{}, fmt.Errorf("%w: %s is %s", ErrSessionClosed, id, sess.Status)
	}
	if sess.Pending == nil || sess.Pending.Token != token {
		return RunResult{}, fmt.Errorf("%w: session %s", ErrStaleResume, id)
	}

	pending := sess.Pending
	sess.Pending = nil
	if err := sess.Transition(session.StatusRunning); err != nil {
		return RunResult{}, err
	}
	return e.run(ctx, sess, &Resume{Suspension: pending, Answer: answer})
}

// Continue returns the pending question of a suspended session, or picks up
// a session that stopped between steps.
func (e *Engine) Continue(ctx context.Context, id string) (RunResult, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.checkpoints.Load(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	if sess.Status.Terminal() {
		return RunResult{}, fmt.Errorf("%w: %s is %s", ErrSessionClosed, id, sess.Status)
	}
	if sess.Pending != nil {
		return suspendedResult(sess, nil), nil
	}
	if err := sess.Transition(session.StatusRunning); err != nil {
		return RunResult{}, err
	}
	return e.run(ctx, sess, nil)
}

// Abandon ends a session without running further steps.
func (e *Engine) Abandon(ctx context.Context, id string) (RunResult, error) {
	unlock := e.lock(id)
	defer unlock()

	sess, err := e.checkpoints.Load(ctx, id)
	if err != nil {
		return RunResult{}, err
	}
	if err := sess.Transition(session.StatusAbandoned); err != nil {
		return RunResult{}, err
	}
	if err := e.checkpoints.Save(ctx, sess); err != nil {
		return RunResult{}, err
	}
	e.log.Info("session abandoned", "session", id)
	return RunResult{SessionID: id, Outcome: OutcomeAbandoned, Step: sess.State.Step()}, nil
}

// run loops route → handler until the session suspends or ends. Completed
// iterations are checkpointed; a collaborator error returns without saving
// so the last checkpoint stays answerable.
func (e *Engine) run(ctx context.Context, sess *session.Session, resume *Resume) (RunResult, error) {
	mark := len(sess.State.Messages())

	for {
		if err := ctx.Err(); err != nil {
			return RunResult{}, err
		}

		var next session.Step
		switch {
		case resume == nil:
			if sess.State.Budget() <= 0 {
				sess.State.AppendMessage(session.AssistantMessage("router", exhaustedNotice))
				return e.finish(ctx, sess, session.StatusExhausted, mark)
			}
			cur := sess.State.Step()
			if prompt, ok := DecisionPrompt(cur, suggestionRounds(sess.State)); ok {
				return e.suspend(ctx, sess, &session.Suspension{
					Kind:   session.SuspendDecision,
					Step:   cur,
					Prompt: prompt,
				}, mark)
			}
			next = Route(cur, "")

		case resume.Suspension.Kind == session.SuspendDecision:
			next = Route(resume.Suspension.Step, resume.Answer)
			if a := strings.TrimSpace(resume.Answer); a != "" {
				sess.State.AppendMessage(session.HumanMessage(a))
			}
			resume = nil

		default:
			next = resume.Suspension.Step
			if resume.Suspension.Kind != session.SuspendTool {
				sess.State.AppendMessage(session.HumanMessage(resume.Answer))
			}
		}

		if next == session.StepEnd {
			return e.finish(ctx, sess, session.StatusCompleted, mark)
		}

		handler := e.handlers.For(next)
		if handler == nil {
			return RunResult{}, fmt.Errorf("no handler for step %q", next)
		}

		work := sess.State.Clone()
		work.SetStep(next)
		res, err := handler(ctx, work, resume)
		resume = nil
		if err != nil {
			if errors.Is(err, ErrPrecondition) {
				return e.fail(ctx, sess, next, err, mark)
			}
			e.log.Warn("step failed", "session", sess.ID, "step", next, "err", err)
			return RunResult{}, err
		}

		sess.State = res.State
		if res.Suspend != nil {
			return e.suspend(ctx, sess, res.Suspend, mark)
		}

		if err := sess.State.DecrementBudget(); err != nil {
			return RunResult{}, err
		}
		if err := e.checkpoints.Save(ctx, sess); err != nil {
			return RunResult{}, err
		}
		e.log.Info("step complete", "session", sess.ID, "step", next, "budget", sess.State.Budget())
	}
}

func (e *Engine) suspend(ctx context.Context, sess *session.Session, s *session.Suspension, mark int) (RunResult, error) {
	if s.Token == "" {
		s.Token = uuid.NewString()
	}
	switch s.Kind {
	case session.SuspendTool:
		// the question already sits in the tool call
	case session.SuspendDecision:
		sess.State.AppendMessage(session.AssistantMessage("router", s.Prompt))
	default:
		sess.State.AppendMessage(session.AssistantMessage(string(s.Step), s.Prompt))
	}
	sess.Pending = s
	if err := sess.Transition(session.StatusSuspended); err != nil {
		return RunResult{}, err
	}
	if err := e.checkpoints.Save(ctx, sess); err != nil {
		return RunResult{}, err
	}
	e.log.Debug("session suspended", "session", sess.ID, "step", s.Step, "kind", s.Kind)
	return suspendedResult(sess, sess.State.Messages()[mark:]), nil
}

func (e *Engine) finish(ctx context.Context, sess *session.Session, status session.Status, mark int) (RunResult, error) {
	if err := sess.Transition(status); err != nil {
		return RunResult{}, err
	}
	if err := e.checkpoints.Save(ctx, sess); err != nil {
		return RunResult{}, err
	}
	outcome := OutcomeCompleted
	if status == session.StatusExhausted {
		outcome = OutcomeExhausted
	}
	e.log.Info("session ended", "session", sess.ID, "status", status)
	return RunResult{
		SessionID: sess.ID,
		Outcome:   outcome,
		Step:      sess.State.Step(),
		Messages:  sess.State.Messages()[mark:],
	}, nil
}

func (e *Engine) fail(ctx context.Context, sess *session.Session, step session.Step, cause error, mark int) (RunResult, error) {
	sess.State.AppendMessage(session.AssistantMessage(string(step), "Error: "+cause.Error()))
	if err := sess.Transition(session.StatusFailed); err != nil {
		return RunResult{}, errors.Join(cause, err)
	}
	if err := e.checkpoints.Save(ctx, sess); err != nil {
		return RunResult{}, errors.Join(cause, err)
	}
	e.log.Error("session failed", "session", sess.ID, "step", step, "err", cause)
	return RunResult{
		SessionID: sess.ID,
		Outcome:   OutcomeFailed,
		Step:      step,
		Messages:  sess.State.Messages()[mark:],
	}, cause
}

func suspendedResult(sess *session.Session, added []session.Message) RunResult {
	p := sess.Pending
	return RunResult{
		SessionID: sess.ID,
		Outcome:   OutcomeSuspended,
		Step:      p.Step,
		Kind:      p.Kind,
		Prompt:    p.Prompt,
		Token:     p.Token,
		Options:   p.Options,
		Messages:  added,
	}
}
