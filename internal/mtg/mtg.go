// Package mtg holds the card and deck values shared by every layer of decksmith.
//
// The JSON form of Card and Deck is the structured form handed to the
// reasoning model in tool schemas, so field names must stay stable.
package mtg

import (
	"errors"
	"fmt"
	"strings"
)

// Card is a single Magic: The Gathering card with game-relevant metadata.
type Card struct {
	ID                string   `json:"id" yaml:"id"`
	Name              string   `json:"name" yaml:"name"`
	ManaCost          string   `json:"mana_cost" yaml:"mana_cost"`
	CMC               float64  `json:"cmc" yaml:"cmc"`
	TypeLine          string   `json:"type_line" yaml:"type_line"`
	OracleText        string   `json:"oracle_text" yaml:"oracle_text"`
	Power             *string  `json:"power,omitempty" yaml:"power,omitempty"`
	Toughness         *string  `json:"toughness,omitempty" yaml:"toughness,omitempty"`
	Loyalty           *string  `json:"loyalty,omitempty" yaml:"loyalty,omitempty"`
	Colors            []string `json:"colors" yaml:"colors"`
	ColorIdentity     []string `json:"color_identity" yaml:"color_identity"`
	CommanderLegality string   `json:"commander_legality" yaml:"commander_legality"`
	GameChanger       bool     `json:"game_changer" yaml:"game_changer"`
	EDHRECRank        *int     `json:"edhrec_rank,omitempty" yaml:"edhrec_rank,omitempty"`
	Price             string   `json:"price" yaml:"price"`
}

// IsBasicLand reports whether the card is exempt from the singleton rule.
func (c Card) IsBasicLand() bool {
	return strings.HasPrefix(c.TypeLine, "Basic Land") || strings.HasPrefix(c.TypeLine, "Basic Snow Land")
}

// Deck is a Commander deck. Decks are values: callers copy and modify,
// never mutate a deck they did not create.
type Deck struct {
	ID        string `json:"id" yaml:"id"`
	Provider  string `json:"provider" yaml:"provider"`
	Name      string `json:"name" yaml:"name"`
	Cards     []Card `json:"cards" yaml:"cards"`
	Commander *Card  `json:"commander,omitempty" yaml:"commander,omitempty"`
}

// ErrMissingCommander is returned when a deck's commander is absent or not in its card list.
var ErrMissingCommander = errors.New("deck commander must appear in the card list")

// Validate checks the structural invariants of a deck.
func (d Deck) Validate() error {
	if d.Commander == nil {
		return ErrMissingCommander
	}
	if d.IndexOf(d.Commander.Name) < 0 {
		return fmt.Errorf("%w: %s", ErrMissingCommander, d.Commander.Name)
	}
	return nil
}

// CommanderName returns the commander's name or a placeholder.
func (d Deck) CommanderName() string {
	if d.Commander == nil {
		return "No Commander Set"
	}
	return d.Commander.Name
}

// TotalCards returns the number of card entries, counting each copy.
func (d Deck) TotalCards() int {
	return len(d.Cards)
}

// IndexOf returns the index of the first card with the given name
// (case-insensitive), or -1.
func (d Deck) IndexOf(name string) int {
	for i, c := range d.Cards {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// Count returns how many copies of the named card the deck holds.
func (d Deck) Count(name string) int {
	n := 0
	for _, c := range d.Cards {
		if strings.EqualFold(c.Name, name) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy of the deck.
func (d Deck) Clone() Deck {
	out := d
	out.Cards = make([]Card, len(d.Cards))
	for i, c := range d.Cards {
		out.Cards[i] = c.Clone()
	}
	if d.Commander != nil {
		cmdr := d.Commander.Clone()
		out.Commander = &cmdr
	}
	return out
}

// Clone returns a deep copy of the card.
func (c Card) Clone() Card {
	out := c
	out.Colors = append([]string(nil), c.Colors...)
	out.ColorIdentity = append([]string(nil), c.ColorIdentity...)
	out.Power = cloneString(c.Power)
	out.Toughness = cloneString(c.Toughness)
	out.Loyalty = cloneString(c.Loyalty)
	if c.EDHRECRank != nil {
		r := *c.EDHRECRank
		out.EDHRECRank = &r
	}
	return out
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

// CardSuggestion is a proposed change to a deck. Positive quantities add
// copies, negative quantities cut them.
type CardSuggestion struct {
	Name     string `json:"name" yaml:"name"`
	Quantity int    `json:"quantity" yaml:"quantity"`
	Reason   string `json:"reason" yaml:"reason"`
}

// ValidatedCardSuggestion is a suggestion whose name resolved to a real card.
type ValidatedCardSuggestion struct {
	CardSuggestion `yaml:",inline"`
	Card           Card `json:"card" yaml:"card"`
}

// Apply returns a copy of the deck with the suggestions applied in order.
// Cuts remove the last matching copies so the deck's presentation order is
// otherwise preserved; adds are appended.
func (d Deck) Apply(suggestions []ValidatedCardSuggestion) (Deck, error) {
	out := d.Clone()
	for _, s := range suggestions {
		switch {
		case s.Quantity < 0:
			for i := 0; i < -s.Quantity; i++ {
				idx := lastIndexOf(out.Cards, s.Card.Name)
				if idx < 0 {
					return Deck{}, fmt.Errorf("cannot cut %s: not enough copies in deck", s.Card.Name)
				}
				out.Cards = append(out.Cards[:idx], out.Cards[idx+1:]...)
			}
		case s.Quantity > 0:
			for i := 0; i < s.Quantity; i++ {
				out.Cards = append(out.Cards, s.Card.Clone())
			}
		}
	}
	return out, nil
}

func lastIndexOf(cards []Card, name string) int {
	for i := len(cards) - 1; i >= 0; i-- {
		if strings.EqualFold(cards[i].Name, name) {
			return i
		}
	}
	return -1
}

// Summary renders a short one-line description used in listings.
func (d Deck) Summary() string {
	return fmt.Sprintf("%s (%s, %d cards)", d.Name, d.CommanderName(), d.TotalCards())
}

// Entry is one line of a decklist: a card and how many copies the deck runs.
type Entry struct {
	Quantity int  `json:"quantity"`
	Card     Card `json:"card"`
}

// Entries groups the card list by name, in order of first appearance.
func (d Deck) Entries() []Entry {
	var out []Entry
	index := make(map[string]int)
	for _, c := range d.Cards {
		key := strings.ToLower(c.Name)
		if i, ok := index[key]; ok {
			out[i].Quantity++
			continue
		}
		index[key] = len(out)
		out = append(out, Entry{Quantity: 1, Card: c})
	}
	return out
}

// Decklist renders the deck in the plain "1 Sol Ring" import format, the
// commander first.
func (d Deck) Decklist() string {
	var b strings.Builder
	cmdr := d.CommanderName()
	for _, e := range d.Entries() {
		if cmdr != "" && strings.EqualFold(e.Card.Name, cmdr) {
			fmt.Fprintf(&b, "%d %s\n", e.Quantity, e.Card.Name)
		}
	}
	for _, e := range d.Entries() {
		if cmdr != "" && strings.EqualFold(e.Card.Name, cmdr) {
			continue
		}
		fmt.Fprintf(&b, "%d %s\n", e.Quantity, e.Card.Name)
	}
	return b.String()
}
