package workflow

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/kokistudios/decksmith/internal/provider"
	"github.com/kokistudios/decksmith/internal/reasoning"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/suggest"
	"github.com/kokistudios/decksmith/internal/tools"
)

// ErrPrecondition marks a step that ran before the state it needs existed.
var ErrPrecondition = errors.New("step precondition failed")

// Resume carries the human's answer to a pending suspension.
type Resume struct {
	Suspension *session.Suspension
	Answer     string
}

// Result is a handler's outcome: a nil Suspend means the step completed.
type Result struct {
	State   *session.State
	Suspend *session.Suspension
}

// Handler runs one step against a private copy of the session state.
type Handler func(ctx context.Context, st *session.State, r *Resume) (Result, error)

// Question is one fixed preference question.
type Question struct {
	Key  string
	Text string
}

// Questions are asked in this order, every session.
var Questions = []Question{
	{"budget", "Do you have a per-card or total budget in USD? (e.g., 'single cards ≤$5', 'no budget')"},
	{"collection_weight", "How should I weigh cards you already own? (options: 'only use collection', " +
		"'prefer collection but suggest others if clearly better', 'ignore collection')"},
	{"weaknesses", "Where does the deck feel weak right now? (e.g., protection, removal, mana curve, land drops)"},
	{"target_bracket", "Do you have a target bracket that you'd like your deck to perform at? " +
		" See here for more info: https://magic.wizards.com/en/news/announcements/commander-brackets-beta-update-april-22-2025"},
	{"goals", "What new themes or synergies would you like to lean into?"},
}

// Handlers binds the step handlers to their collaborators.
type Handlers struct {
	provider      provider.Provider
	agent         *reasoning.Agent
	validator     *suggest.Validator
	historyWindow int
}

func NewHandlers(p provider.Provider, a *reasoning.Agent, v *suggest.Validator, historyWindow int) *Handlers {
	return &Handlers{provider: p, agent: a, validator: v, historyWindow: historyWindow}
}

// For returns the handler of step, or nil for steps without one.
func (h *Handlers) For(step session.Step) Handler {
	switch step {
	case session.StepLoadDeck:
		return h.LoadDeck
	case session.StepAskParameters:
		return h.AskParameters
	case session.StepSuggestUpgrades:
		return h.SuggestUpgrades
	case session.StepSaveDeck:
		return h.SaveDeck
	default:
		return nil
	}
}

// LoadDeck loads the requested deck, or offers the provider's decks as a
// numbered menu and loads the one picked.
func (h *Handlers) LoadDeck(ctx context.Context, st *session.State, r *Resume) (Result, error) {
	if r == nil {
		if id := st.DeckID(); id != "" {
			st.AppendMessage(session.AssistantMessage(string(session.StepLoadDeck),
				fmt.Sprintf("Loading provided deck id %s from %s", id, h.provider.Name())))
			return h.loadDeck(ctx, st, id)
		}

		refs, err := h.provider.ListDecks(ctx)
		if err != nil {
			return Result{}, err
		}
		if len(refs) == 0 {
			return Result{}, fmt.Errorf("%w: %s has no decks to load", ErrPrecondition, h.provider.Name())
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Which deck would you like to load from %s?", h.provider.Name())
		opts := make([]session.Option, len(refs))
		for i, ref := range refs {
			opts[i] = session.Option{ID: ref.ID, Label: ref.Name}
			fmt.Fprintf(&b, "\n\t%d. %s", i+1, ref.Name)
		}
		b.WriteString("\nEnter deck number from above:")
		return Result{State: st, Suspend: &session.Suspension{
			Kind:    session.SuspendMenu,
			Step:    session.StepLoadDeck,
			Prompt:  b.String(),
			Options: opts,
		}}, nil
	}

	opts := r.Suspension.Options
	n, err := strconv.Atoi(strings.TrimSpace(r.Answer))
	if err != nil || n < 1 || n > len(opts) {
		return Result{State: st, Suspend: &session.Suspension{
			Kind:    session.SuspendMenu,
			Step:    session.StepLoadDeck,
			Prompt:  fmt.Sprintf("Invalid option. Please enter [1 - %d]", len(opts)),
			Options: opts,
		}}, nil
	}
	return h.loadDeck(ctx, st, opts[n-1].ID)
}

func (h *Handlers) loadDeck(ctx context.Context, st *session.State, id string) (Result, error) {
	deck, err := h.provider.GetDeck(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if deck.Provider == "" {
		deck.Provider = h.provider.Name()
	}
	if err := st.SetOriginalDeck(deck); err != nil {
		return Result{}, fmt.Errorf("%w: deck %s: %v", ErrPrecondition, id, err)
	}
	st.AppendMessage(session.AssistantMessage(string(session.StepLoadDeck), fmt.Sprintf(
		"Loaded **%s** with commander **%s** (%d cards).\n\nLet's gather a few preferences before suggesting changes.",
		deck.Name, deck.CommanderName(), deck.TotalCards())))
	return Result{State: st}, nil
}

// AskParameters asks every preference question in order, one suspension each.
func (h *Handlers) AskParameters(_ context.Context, st *session.State, r *Resume) (Result, error) {
	next := 0
	if r != nil {
		i := r.Suspension.Question
		if i < 0 || i >= len(Questions) {
			return Result{}, fmt.Errorf("%w: no preference question %d", ErrPrecondition, i)
		}
		st.SetParameter(Questions[i].Key, r.Answer)
		next = i + 1
	}
	if next < len(Questions) {
		return Result{State: st, Suspend: &session.Suspension{
			Kind:     session.SuspendQuestion,
			Step:     session.StepAskParameters,
			Prompt:   Questions[next].Text,
			Question: next,
		}}, nil
	}
	return Result{State: st}, nil
}

// SuggestUpgrades delegates one round to the reasoning agent and records its reply.
func (h *Handlers) SuggestUpgrades(ctx context.Context, st *session.State, r *Resume) (Result, error) {
	if st.OriginalDeck() == nil {
		return Result{}, fmt.Errorf("%w: no deck loaded; load a deck before suggesting upgrades", ErrPrecondition)
	}

	catalog := tools.New(st, h.validator)
	if r != nil && r.Suspension.Kind == session.SuspendTool {
		catalog.Answer(r.Suspension, r.Answer)
	}

	req, err := buildRequest(st, h.historyWindow)
	if err != nil {
		return Result{}, err
	}
	out, err := h.agent.Run(ctx, req, catalog)
	if err != nil {
		return Result{}, err
	}
	if out.Suspend != nil {
		return Result{State: st, Suspend: out.Suspend}, nil
	}

	reply := *out.Reply
	reply.Role = session.RoleAssistant
	reply.Name = string(session.StepSuggestUpgrades)
	st.AppendMessage(reply)
	return Result{State: st}, nil
}

// SaveDeck hands the altered deck to the provider.
func (h *Handlers) SaveDeck(ctx context.Context, st *session.State, _ *Resume) (Result, error) {
	deck := st.AlteredDeck()
	if deck == nil {
		return Result{}, fmt.Errorf("%w: no accepted suggestions yet, so there is no revised deck to save", ErrPrecondition)
	}
	loc, err := h.provider.SaveAlteredDeck(ctx, *deck)
	if err != nil {
		return Result{}, err
	}
	st.AppendMessage(session.AssistantMessage(string(session.StepSaveDeck), fmt.Sprintf(
		"Saved **%s** with commander **%s** to %s", deck.Name, deck.CommanderName(), loc)))
	return Result{State: st}, nil
}
