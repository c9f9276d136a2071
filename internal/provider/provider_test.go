package provider

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/store"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name     string
		cfg      store.ProviderConfig
		wantName string
		wantErr  bool
	}{
		{"default", store.ProviderConfig{}, "local", false},
		{"local", store.ProviderConfig{Name: "local", DecksDir: "decks"}, "local", false},
		{"archidekt", store.ProviderConfig{Name: "archidekt", Username: "koki"}, "archidekt", false},
		{"archidekt without user", store.ProviderConfig{Name: "archidekt"}, "", true},
		{"unknown", store.ProviderConfig{Name: "moxfield"}, "", true},
	}

	for _, tt := range tests {
		p, err := New(tt.cfg, t.TempDir())
		if tt.wantErr {
			if err == nil {
				t.Errorf("%s: expected error, got nil", tt.name)
			}
			continue
		}
		if err != nil {
			t.Errorf("%s: unexpected error: %v", tt.name, err)
			continue
		}
		if p.Name() != tt.wantName {
			t.Errorf("%s: expected provider %s, got %s", tt.name, tt.wantName, p.Name())
		}
	}
}

const localDeck = `name: Selvala Ramp
commander:
  id: c1
  name: Selvala, Heart of the Wilds
  type_line: Legendary Creature — Elf Scout
  color_identity: [G]
cards:
  - id: c1
    name: Selvala, Heart of the Wilds
    type_line: Legendary Creature — Elf Scout
    color_identity: [G]
  - id: f1
    name: Forest
    type_line: Basic Land — Forest
    color_identity: []
`

func TestLocalProvider(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "selvala.yaml"), []byte(localDeck), 0644); err != nil {
		t.Fatal(err)
	}
	_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("ignore me"), 0644)

	l := NewLocal(dir)
	l.now = func() time.Time { return time.Date(2026, 10, 16, 12, 30, 0, 0, time.UTC) }
	ctx := context.Background()

	refs, err := l.ListDecks(ctx)
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	if len(refs) != 1 || refs[0].ID != "selvala" || refs[0].Name != "Selvala Ramp" {
		t.Fatalf("ListDecks() = %+v", refs)
	}

	deck, err := l.GetDeck(ctx, "selvala")
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if deck.Provider != "local" || deck.ID != "selvala" || deck.TotalCards() != 2 {
		t.Errorf("GetDeck() = %+v", deck)
	}
	if err := deck.Validate(); err != nil {
		t.Errorf("loaded deck invalid: %v", err)
	}

	path, err := l.SaveAlteredDeck(ctx, deck)
	if err != nil {
		t.Fatalf("SaveAlteredDeck: %v", err)
	}
	if filepath.Base(path) != "selvala-ramp-revised-20261016-123000.yaml" {
		t.Errorf("saved to %s", path)
	}
	saved, err := l.GetDeck(ctx, "selvala-ramp-revised-20261016-123000")
	if err != nil {
		t.Fatalf("reloading saved deck: %v", err)
	}
	if saved.CommanderName() != "Selvala, Heart of the Wilds" {
		t.Errorf("saved commander = %q", saved.CommanderName())
	}
}

func TestLocalGetDeckNotFound(t *testing.T) {
	l := NewLocal(t.TempDir())
	for _, id := range []string{"missing", "../escape", ""} {
		if _, err := l.GetDeck(context.Background(), id); !errors.Is(err, ErrDeckNotFound) {
			t.Errorf("GetDeck(%q) = %v, want ErrDeckNotFound", id, err)
		}
	}
}

func TestLocalListMissingDir(t *testing.T) {
	l := NewLocal(filepath.Join(t.TempDir(), "nope"))
	refs, err := l.ListDecks(context.Background())
	if err != nil || len(refs) != 0 {
		t.Errorf("ListDecks() = %v, %v", refs, err)
	}
	if err := l.TestConnection(context.Background()); err == nil {
		t.Error("TestConnection should fail for a missing directory")
	}
}

const archidektDeckJSON = `{
  "id": 42,
  "name": "Selvala Ramp",
  "categories": [
    {"name": "Commander", "includedInDeck": true},
    {"name": "Ramp", "includedInDeck": true},
    {"name": "Maybeboard", "includedInDeck": false}
  ],
  "cards": [
    {"quantity": 1, "categories": ["Commander"], "card": {"uid": "c1", "prices": {"tcg": 2.5},
      "oracleCard": {"name": "Selvala, Heart of the Wilds", "manaCost": "{1}{G}{G}", "cmc": 3,
        "superTypes": ["Legendary"], "types": ["Creature"], "subTypes": ["Elf", "Scout"],
        "power": "2", "toughness": "3", "colors": ["Green"], "colorIdentity": ["Green"],
        "legalities": {"commander": "legal"}}}},
    {"quantity": 3, "categories": ["Land"], "card": {"uid": "f1", "prices": {},
      "oracleCard": {"name": "Forest", "superTypes": ["Basic"], "types": ["Land"], "subTypes": ["Forest"],
        "colors": [], "colorIdentity": [], "legalities": {"commander": "legal"}}}},
    {"quantity": 1, "categories": ["Maybeboard"], "card": {"uid": "m1", "prices": {},
      "oracleCard": {"name": "Craterhoof Behemoth", "types": ["Creature"], "legalities": {"commander": "legal"}}}}
  ]
}`

func newArchidekt(url string) *Archidekt {
	return NewArchidekt(store.ProviderConfig{
		Name:        "archidekt",
		Username:    "koki",
		BaseURL:     url,
		PasswordEnv: "DECKSMITH_TEST_ARCHIDEKT_PW",
	})
}

func TestArchidektGetDeck(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/decks/42/" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = io.WriteString(w, archidektDeckJSON)
	}))
	defer srv.Close()

	deck, err := newArchidekt(srv.URL).GetDeck(context.Background(), "42")
	if err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if deck.TotalCards() != 4 {
		t.Errorf("TotalCards = %d, want 4 (maybeboard dropped, forests expanded)", deck.TotalCards())
	}
	if deck.Commander == nil || deck.Commander.Name != "Selvala, Heart of the Wilds" {
		t.Fatalf("Commander = %+v", deck.Commander)
	}
	c := deck.Commander
	if c.TypeLine != "Legendary Creature — Elf Scout" {
		t.Errorf("TypeLine = %q", c.TypeLine)
	}
	if len(c.ColorIdentity) != 1 || c.ColorIdentity[0] != "G" {
		t.Errorf("ColorIdentity = %v", c.ColorIdentity)
	}
	if c.Price != "2.50" || c.CommanderLegality != "legal" {
		t.Errorf("Price/Legality = %q/%q", c.Price, c.CommanderLegality)
	}
	if err := deck.Validate(); err != nil {
		t.Errorf("deck invalid: %v", err)
	}

	if _, err := newArchidekt(srv.URL).GetDeck(context.Background(), "7"); !errors.Is(err, ErrDeckNotFound) {
		t.Errorf("missing deck error = %v", err)
	}
}

func TestArchidektListDecksFollowsNext(t *testing.T) {
	var srv *httptest.Server
	srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("ownerUsername") != "koki" {
			t.Errorf("ownerUsername = %q", r.URL.Query().Get("ownerUsername"))
		}
		if r.URL.Query().Get("page") == "2" {
			_, _ = io.WriteString(w, `{"next": null, "results": [{"id": 3, "name": "Third"}]}`)
			return
		}
		_, _ = io.WriteString(w, `{"next": "`+srv.URL+`/decks/v3/?ownerUsername=koki&page=2", "results": [{"id": 1, "name": "First"}, {"id": 2, "name": "Second"}]}`)
	}))
	defer srv.Close()

	refs, err := newArchidekt(srv.URL).ListDecks(context.Background())
	if err != nil {
		t.Fatalf("ListDecks: %v", err)
	}
	var names []string
	for _, r := range refs {
		names = append(names, r.ID+":"+r.Name)
	}
	if strings.Join(names, ",") != "1:First,2:Second,3:Third" {
		t.Errorf("ListDecks() = %v", names)
	}
}

func TestArchidektRefreshesLoginOnce(t *testing.T) {
	t.Setenv("DECKSMITH_TEST_ARCHIDEKT_PW", "hunter2")
	logins := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/rest-auth/login/":
			logins++
			_, _ = io.WriteString(w, `{"access_token": "fresh"}`)
		default:
			if r.Header.Get("Authorization") != "JWT fresh" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = io.WriteString(w, archidektDeckJSON)
		}
	}))
	defer srv.Close()

	a := newArchidekt(srv.URL)
	if _, err := a.GetDeck(context.Background(), "42"); err != nil {
		t.Fatalf("GetDeck: %v", err)
	}
	if _, err := a.GetDeck(context.Background(), "42"); err != nil {
		t.Fatalf("second GetDeck: %v", err)
	}
	if logins != 1 {
		t.Errorf("logins = %d, want 1", logins)
	}
}

func TestArchidektAuthExpired(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	// no password configured, so no refresh is possible
	_, err := newArchidekt(srv.URL).ListDecks(context.Background())
	if !errors.Is(err, ErrAuthExpired) {
		t.Errorf("err = %v, want ErrAuthExpired", err)
	}
}

func TestArchidektSaveUnsupported(t *testing.T) {
	a := newArchidekt("http://unused.invalid")
	if _, err := a.SaveAlteredDeck(context.Background(), mtg.Deck{}); !errors.Is(err, ErrSaveUnsupported) {
		t.Errorf("err = %v", err)
	}
}

func TestColorLetters(t *testing.T) {
	got := colorLetters([]string{"White", "blue", "G", "Purple"})
	if strings.Join(got, "") != "WUG" {
		t.Errorf("colorLetters() = %v", got)
	}
}
