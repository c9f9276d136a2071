package suggest

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kokistudios/decksmith/internal/mtg"
)

type fakeResolver struct {
	cards map[string]mtg.Card
	calls [][]string
	drop  bool
}

func (f *fakeResolver) ResolveCardsByName(_ context.Context, names []string) ([]mtg.Card, []string, error) {
	f.calls = append(f.calls, names)
	var found []mtg.Card
	var missing []string
	for _, n := range names {
		c, ok := f.cards[strings.ToLower(n)]
		if !ok {
			missing = append(missing, n)
			continue
		}
		found = append(found, c)
	}
	if f.drop && len(found) > 0 {
		found = found[:len(found)-1]
	}
	return found, missing, nil
}

func newResolver() *fakeResolver {
	return &fakeResolver{cards: map[string]mtg.Card{
		"sol ring":       {ID: "sr", Name: "Sol Ring", TypeLine: "Artifact"},
		"arcane signet":  {ID: "as", Name: "Arcane Signet", TypeLine: "Artifact"},
		"llanowar elves": {ID: "le", Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid"},
		"forest":         {ID: "fo", Name: "Forest", TypeLine: "Basic Land — Forest"},
		"omnath, locus of mana": {ID: "om", Name: "Omnath, Locus of Mana",
			TypeLine: "Legendary Creature — Elemental"},
	}}
}

func deck() *mtg.Deck {
	cmdr := mtg.Card{ID: "om", Name: "Omnath, Locus of Mana", TypeLine: "Legendary Creature — Elemental"}
	return &mtg.Deck{
		ID:   "1",
		Name: "Mana Omnath",
		Cards: []mtg.Card{
			cmdr,
			{ID: "le", Name: "Llanowar Elves", TypeLine: "Creature — Elf Druid"},
			{ID: "fo", Name: "Forest", TypeLine: "Basic Land — Forest"},
		},
		Commander: &cmdr,
	}
}

func TestValidateSolRing(t *testing.T) {
	v := NewValidator(newResolver())
	acc, err := v.Validate(context.Background(), deck(), []mtg.CardSuggestion{
		{Name: "Sol Ring", Quantity: 1, Reason: "ramp"},
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	got := acc.Suggestions()
	if len(got) != 1 {
		t.Fatalf("got %d suggestions, want 1", len(got))
	}
	if got[0].Card.Name != "Sol Ring" {
		t.Errorf("resolved card = %q, want %q", got[0].Card.Name, "Sol Ring")
	}
	if got[0].Reason != "ramp" || got[0].Quantity != 1 {
		t.Errorf("suggestion fields not carried over: %+v", got[0])
	}
	if acc.Deck().Count("Sol Ring") != 1 {
		t.Error("altered deck should contain Sol Ring")
	}
}

func TestValidateBatchesDistinctNames(t *testing.T) {
	r := newResolver()
	v := NewValidator(r)
	_, err := v.Validate(context.Background(), deck(), []mtg.CardSuggestion{
		{Name: "Forest", Quantity: 2},
		{Name: "forest", Quantity: 1},
		{Name: "Sol Ring", Quantity: 1},
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	if len(r.calls) != 1 {
		t.Fatalf("resolver called %d times, want 1", len(r.calls))
	}
	if len(r.calls[0]) != 2 {
		t.Errorf("resolver got %v, want 2 distinct names", r.calls[0])
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name    string
		in      []mtg.CardSuggestion
		drop    bool
		wantErr error
	}{
		{
			name:    "unresolved name fails whole batch",
			in:      []mtg.CardSuggestion{{Name: "Sol Ring", Quantity: 1}, {Name: "Totally Real Card", Quantity: 1}},
			wantErr: ErrUnresolved,
		},
		{
			name:    "count mismatch",
			in:      []mtg.CardSuggestion{{Name: "Sol Ring", Quantity: 1}, {Name: "Arcane Signet", Quantity: 1}},
			drop:    true,
			wantErr: ErrCountMismatch,
		},
		{
			name:    "singleton",
			in:      []mtg.CardSuggestion{{Name: "Llanowar Elves", Quantity: 1}},
			wantErr: ErrDeckRule,
		},
		{
			name:    "cut missing card",
			in:      []mtg.CardSuggestion{{Name: "Sol Ring", Quantity: -1}},
			wantErr: ErrDeckRule,
		},
		{
			name:    "cut commander",
			in:      []mtg.CardSuggestion{{Name: "Omnath, Locus of Mana", Quantity: -1}},
			wantErr: ErrDeckRule,
		},
		{
			name:    "zero quantity",
			in:      []mtg.CardSuggestion{{Name: "Sol Ring", Quantity: 0}},
			wantErr: ErrDeckRule,
		},
		{
			name:    "empty batch",
			in:      nil,
			wantErr: ErrEmpty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newResolver()
			r.drop = tt.drop
			_, err := NewValidator(r).Validate(context.Background(), deck(), tt.in)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateUnresolvedNames(t *testing.T) {
	_, err := NewValidator(newResolver()).Validate(context.Background(), deck(), []mtg.CardSuggestion{
		{Name: "Fake Card", Quantity: 1},
	})
	var ue *UnresolvedError
	if !errors.As(err, &ue) {
		t.Fatalf("expected UnresolvedError, got %v", err)
	}
	if len(ue.Names) != 1 || ue.Names[0] != "Fake Card" {
		t.Errorf("Names = %v, want [Fake Card]", ue.Names)
	}
}

func TestValidateNoDeck(t *testing.T) {
	_, err := NewValidator(newResolver()).Validate(context.Background(), nil, []mtg.CardSuggestion{{Name: "Sol Ring", Quantity: 1}})
	if !errors.Is(err, ErrNoDeck) {
		t.Errorf("Validate() = %v, want ErrNoDeck", err)
	}
}

func TestValidateSwap(t *testing.T) {
	acc, err := NewValidator(newResolver()).Validate(context.Background(), deck(), []mtg.CardSuggestion{
		{Name: "Llanowar Elves", Quantity: -1, Reason: "weak"},
		{Name: "Sol Ring", Quantity: 1, Reason: "ramp"},
	})
	if err != nil {
		t.Fatalf("Validate() error: %v", err)
	}
	d := acc.Deck()
	if d.Count("Llanowar Elves") != 0 || d.Count("Sol Ring") != 1 {
		t.Errorf("unexpected altered deck: %+v", d.Cards)
	}
	if d.TotalCards() != 3 {
		t.Errorf("TotalCards() = %d, want 3", d.TotalCards())
	}
}
