// Package tools is the closed set of operations the reasoning model may call
// while a step delegates to it. Every tool touches only session state.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/reasoning"
	"github.com/kokistudios/decksmith/internal/session"
	"github.com/kokistudios/decksmith/internal/suggest"
)

type Name string

const (
	SaveCardSuggestions Name = "save_card_suggestions"
	PromptUser          Name = "prompt_user"
)

// Specs returns the schemas of every tool, in a stable order.
func Specs() []reasoning.ToolSpec {
	return []reasoning.ToolSpec{
		{
			Name: string(SaveCardSuggestions),
			Description: "Record the complete list of proposed deck changes. Each call replaces any previous list. " +
				"Use a negative quantity to cut a card and a positive quantity to add one. " +
				"Every card name must be an exact English card name.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"suggestions": map[string]any{
						"type": "array",
						"items": map[string]any{
							"type": "object",
							"properties": map[string]any{
								"name":     map[string]any{"type": "string", "description": "Exact card name"},
								"quantity": map[string]any{"type": "integer", "description": "Copies to add (positive) or cut (negative)"},
								"reason":   map[string]any{"type": "string", "description": "One-sentence rationale"},
							},
							"required":             []string{"name", "quantity", "reason"},
							"additionalProperties": false,
						},
					},
				},
				"required":             []string{"suggestions"},
				"additionalProperties": false,
			},
		},
		{
			Name:        string(PromptUser),
			Description: "Ask the user a question that the collected preferences do not answer, and wait for their reply.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"prompt": map[string]any{"type": "string", "description": "The question to show the user"},
				},
				"required":             []string{"prompt"},
				"additionalProperties": false,
			},
		},
	}
}

// Catalog executes tool calls against one session state.
type Catalog struct {
	state     *session.State
	validator *suggest.Validator
}

// New binds the catalog to st. Tools never reach any other state.
func New(st *session.State, v *suggest.Validator) *Catalog {
	return &Catalog{state: st, validator: v}
}

type saveArgs struct {
	Suggestions []mtg.CardSuggestion `json:"suggestions"`
}

type promptArgs struct {
	Prompt string `json:"prompt"`
}

// Dispatch records the assistant's tool-call message, runs each call in
// order and records every result. A prompt_user call suspends the rest.
func (c *Catalog) Dispatch(ctx context.Context, call session.Message) (reasoning.Dispatch, error) {
	c.state.AppendMessage(call)

	var d reasoning.Dispatch
	for _, tc := range call.ToolCalls {
		if d.Suspend != nil {
			d.Results = append(d.Results, c.result(tc, "Skipped: waiting for the user's answer. Call this tool again afterwards."))
			continue
		}

		switch Name(tc.Name) {
		case SaveCardSuggestions:
			msg, err := c.saveCardSuggestions(ctx, tc)
			if err != nil {
				return reasoning.Dispatch{}, err
			}
			d.Results = append(d.Results, msg)
		case PromptUser:
			var args promptArgs
			if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil || strings.TrimSpace(args.Prompt) == "" {
				d.Results = append(d.Results, c.result(tc, fmt.Sprintf("Error calling tool %s: a non-empty prompt is required", tc.Name)))
				continue
			}
			d.Suspend = &session.Suspension{
				Token:      uuid.NewString(),
				Kind:       session.SuspendTool,
				Step:       c.state.Step(),
				Prompt:     args.Prompt,
				ToolCallID: tc.ID,
			}
		default:
			d.Results = append(d.Results, c.result(tc, fmt.Sprintf("Error: unknown tool %q. Available tools: %s, %s", tc.Name, SaveCardSuggestions, PromptUser)))
		}
	}
	return d, nil
}

// Answer records the human's reply to a prompt_user suspension as that call's result.
func (c *Catalog) Answer(s *session.Suspension, answer string) session.Message {
	msg := session.ToolResult(s.ToolCallID, string(PromptUser), answer)
	c.state.AppendMessage(msg)
	return msg
}

func (c *Catalog) result(tc session.ToolCall, content string) session.Message {
	msg := session.ToolResult(tc.ID, tc.Name, content)
	c.state.AppendMessage(msg)
	return msg
}

// saveCardSuggestions validates the batch and, only if every card checks out,
// replaces the suggestions and the altered deck.
func (c *Catalog) saveCardSuggestions(ctx context.Context, tc session.ToolCall) (session.Message, error) {
	var args saveArgs
	if err := json.Unmarshal([]byte(tc.Arguments), &args); err != nil {
		return c.result(tc, fmt.Sprintf("Error calling tool %s: invalid arguments: %v", tc.Name, err)), nil
	}

	acc, err := c.validator.Validate(ctx, c.state.OriginalDeck(), args.Suggestions)
	if err != nil {
		if ctx.Err() != nil {
			return session.Message{}, ctx.Err()
		}
		var ue *suggest.UnresolvedError
		switch {
		case errors.As(err, &ue):
			return c.result(tc, fmt.Sprintf("Error: no suggestions were saved. These card names do not exist: %s. Check the spelling and call %s again with the full list.",
				strings.Join(ue.Names, ", "), SaveCardSuggestions)), nil
		case errors.Is(err, suggest.ErrUnresolved), errors.Is(err, suggest.ErrCountMismatch),
			errors.Is(err, suggest.ErrDeckRule), errors.Is(err, suggest.ErrEmpty), errors.Is(err, suggest.ErrNoDeck):
			return c.result(tc, fmt.Sprintf("Error: no suggestions were saved: %v", err)), nil
		default:
			// card database failures are collaborator errors, not model mistakes
			return session.Message{}, err
		}
	}

	c.state.SetSuggestions(acc)
	c.state.SetAlteredDeck(acc)

	deck := acc.Deck()
	adds, cuts := 0, 0
	for _, s := range acc.Suggestions() {
		if s.Quantity > 0 {
			adds += s.Quantity
		} else {
			cuts -= s.Quantity
		}
	}
	note := ""
	if deck.TotalCards() != 100 {
		note = fmt.Sprintf(" Note: the deck would have %d cards; a Commander deck has exactly 100.", deck.TotalCards())
	}
	return c.result(tc, fmt.Sprintf("Saved %d suggestions (%d cuts, %d adds). The revised deck has %d cards.%s",
		len(acc.Suggestions()), cuts, adds, deck.TotalCards(), note)), nil
}
