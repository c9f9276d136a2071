// Package reasoning is the boundary to the language model that proposes deck
// changes. A Model answers one request; an Agent drives a Model through
// tool calls until it produces a reply or needs the human.
package reasoning

import (
	"context"
	"errors"
	"fmt"

	"github.com/kokistudios/decksmith/internal/session"
)

// ToolSpec describes a tool the model may call. Parameters is a JSON schema object.
type ToolSpec struct {
	Name        string
	Description string
	Parameters  map[string]any
}

// Request is a single model invocation.
type Request struct {
	System   string
	Messages []session.Message
	Tools    []ToolSpec
}

// Model returns the next assistant message for a request. The message either
// carries text or one or more tool calls.
type Model interface {
	Complete(ctx context.Context, req Request) (session.Message, error)
}

// Dispatch is what an Executor did with an assistant message's tool calls.
type Dispatch struct {
	Results []session.Message
	Suspend *session.Suspension
}

// Executor runs the tool calls of an assistant message.
type Executor interface {
	Dispatch(ctx context.Context, call session.Message) (Dispatch, error)
}

// Outcome is the end of one delegation: either a reply or a suspension.
type Outcome struct {
	Reply   *session.Message
	Suspend *session.Suspension
}

var ErrToolRounds = errors.New("model did not finish within the tool round limit")

// Agent loops a Model over tool calls.
type Agent struct {
	model     Model
	maxRounds int
}

// NewAgent returns an Agent that allows at most maxRounds model calls per Run.
func NewAgent(m Model, maxRounds int) *Agent {
	if maxRounds < 1 {
		maxRounds = 1
	}
	return &Agent{model: m, maxRounds: maxRounds}
}

// Run calls the model until it answers without tool calls, or until a tool
// asks to suspend.
func (a *Agent) Run(ctx context.Context, req Request, exec Executor) (Outcome, error) {
	msgs := append([]session.Message(nil), req.Messages...)
	for round := 0; round < a.maxRounds; round++ {
		reply, err := a.model.Complete(ctx, Request{System: req.System, Messages: msgs, Tools: req.Tools})
		if err != nil {
			return Outcome{}, fmt.Errorf("reasoning model: %w", err)
		}
		if len(reply.ToolCalls) == 0 {
			return Outcome{Reply: &reply}, nil
		}

		d, err := exec.Dispatch(ctx, reply)
		if err != nil {
			return Outcome{}, err
		}
		if d.Suspend != nil {
			return Outcome{Suspend: d.Suspend}, nil
		}
		msgs = append(msgs, reply)
		msgs = append(msgs, d.Results...)
	}
	return Outcome{}, fmt.Errorf("%w (%d)", ErrToolRounds, a.maxRounds)
}
