// Package suggest validates AI-proposed deck changes before they become
// authoritative.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kokistudios/decksmith/internal/mtg"
)

// Resolver looks card names up in a card database. Resolved cards come back
// in input order; names that matched nothing are returned separately.
type Resolver interface {
	ResolveCardsByName(ctx context.Context, names []string) ([]mtg.Card, []string, error)
}

var (
	ErrUnresolved    = errors.New("unresolved card names")
	ErrCountMismatch = errors.New("resolved card count does not match request")
	ErrDeckRule      = errors.New("suggestion breaks a deck rule")
	ErrNoDeck        = errors.New("no original deck loaded")
	ErrEmpty         = errors.New("no suggestions supplied")
)

// UnresolvedError lists the names the card database did not recognise.
type UnresolvedError struct {
	Names []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolved, strings.Join(e.Names, ", "))
}

func (e *UnresolvedError) Unwrap() error { return ErrUnresolved }

// Accepted is the only value from which session state may take suggestions
// and an altered deck. It can only be built by a Validator.
type Accepted struct {
	suggestions []mtg.ValidatedCardSuggestion
	deck        mtg.Deck
}

// Suggestions returns a copy of the validated suggestions.
func (a Accepted) Suggestions() []mtg.ValidatedCardSuggestion {
	out := make([]mtg.ValidatedCardSuggestion, len(a.suggestions))
	for i, s := range a.suggestions {
		out[i] = s
		out[i].Card = s.Card.Clone()
	}
	return out
}

// Deck returns a copy of the altered deck.
func (a Accepted) Deck() mtg.Deck {
	return a.deck.Clone()
}

// Validator checks suggestion batches against a card database and the
// deck they apply to.
type Validator struct {
	resolver Resolver
}

// NewValidator returns a Validator backed by the given resolver.
func NewValidator(r Resolver) *Validator {
	return &Validator{resolver: r}
}

// Validate resolves every distinct name in one batch and checks the result
// against the deck. Any failure rejects the whole batch.
func (v *Validator) Validate(ctx context.Context, deck *mtg.Deck, suggestions []mtg.CardSuggestion) (Accepted, error) {
	if deck == nil {
		return Accepted{}, ErrNoDeck
	}
	if len(suggestions) == 0 {
		return Accepted{}, ErrEmpty
	}

	var distinct []string
	seen := make(map[string]int)
	for _, s := range suggestions {
		name := strings.TrimSpace(s.Name)
		if name == "" {
			return Accepted{}, fmt.Errorf("%w: suggestion with empty name", ErrDeckRule)
		}
		if s.Quantity == 0 {
			return Accepted{}, fmt.Errorf("%w: %s has quantity 0", ErrDeckRule, name)
		}
		key := strings.ToLower(name)
		if _, ok := seen[key]; !ok {
			seen[key] = len(distinct)
			distinct = append(distinct, name)
		}
	}

	cards, unresolved, err := v.resolver.ResolveCardsByName(ctx, distinct)
	if err != nil {
		return Accepted{}, fmt.Errorf("card lookup failed: %w", err)
	}
	if len(unresolved) > 0 {
		return Accepted{}, &UnresolvedError{Names: unresolved}
	}
	if len(cards) != len(distinct) {
		return Accepted{}, fmt.Errorf("%w: asked for %d, got %d", ErrCountMismatch, len(distinct), len(cards))
	}

	validated := make([]mtg.ValidatedCardSuggestion, len(suggestions))
	for i, s := range suggestions {
		card := cards[seen[strings.ToLower(strings.TrimSpace(s.Name))]]
		validated[i] = mtg.ValidatedCardSuggestion{
			CardSuggestion: mtg.CardSuggestion{Name: card.Name, Quantity: s.Quantity, Reason: s.Reason},
			Card:           card,
		}
	}

	altered, err := checkDeckRules(*deck, validated)
	if err != nil {
		return Accepted{}, err
	}
	return Accepted{suggestions: validated, deck: altered}, nil
}

func checkDeckRules(deck mtg.Deck, validated []mtg.ValidatedCardSuggestion) (mtg.Deck, error) {
	for _, s := range validated {
		if s.Quantity >= 0 {
			continue
		}
		if deck.Commander != nil && strings.EqualFold(s.Card.Name, deck.Commander.Name) {
			return mtg.Deck{}, fmt.Errorf("%w: cannot cut the commander %s", ErrDeckRule, s.Card.Name)
		}
		if have := deck.Count(s.Card.Name); have < -s.Quantity {
			return mtg.Deck{}, fmt.Errorf("%w: cannot cut %d %s, deck has %d", ErrDeckRule, -s.Quantity, s.Card.Name, have)
		}
	}

	altered, err := deck.Apply(validated)
	if err != nil {
		return mtg.Deck{}, fmt.Errorf("%w: %v", ErrDeckRule, err)
	}

	for _, s := range validated {
		if s.Quantity <= 0 || s.Card.IsBasicLand() {
			continue
		}
		if n := altered.Count(s.Card.Name); n > 1 {
			return mtg.Deck{}, fmt.Errorf("%w: %s would have %d copies (singleton)", ErrDeckRule, s.Card.Name, n)
		}
	}
	return altered, nil
}
