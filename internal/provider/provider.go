// Package provider loads decks from, and saves revised decks to, the place
// the user keeps them.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/store"
)

// DeckRef identifies one deck in a provider listing.
type DeckRef struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
}

// Provider is a deck source.
type Provider interface {
	Name() string
	ListDecks(ctx context.Context) ([]DeckRef, error)
	GetDeck(ctx context.Context, id string) (mtg.Deck, error)
	// SaveAlteredDeck persists deck and returns where it went.
	SaveAlteredDeck(ctx context.Context, deck mtg.Deck) (string, error)
}

// Checker is implemented by providers that can verify credentials.
type Checker interface {
	TestConnection(ctx context.Context) error
}

var (
	ErrAuthExpired     = errors.New("provider authentication expired")
	ErrDeckNotFound    = errors.New("deck not found")
	ErrSaveUnsupported = errors.New("provider does not support saving decks")
)

// HTTPError is an unexpected response from a remote provider.
type HTTPError struct {
	Status int
	URL    string
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s returned HTTP %d", e.URL, e.Status)
	}
	return fmt.Sprintf("%s returned HTTP %d: %s", e.URL, e.Status, e.Body)
}

// New builds the provider named in cfg. Relative paths resolve against home.
func New(cfg store.ProviderConfig, home string) (Provider, error) {
	switch cfg.Name {
	case "", "local":
		return NewLocal(resolve(home, cfg.DecksDir)), nil
	case "archidekt":
		if cfg.Username == "" {
			return nil, fmt.Errorf("archidekt provider requires provider.username")
		}
		return NewArchidekt(cfg), nil
	default:
		return nil, fmt.Errorf("unknown provider: %s", cfg.Name)
	}
}
