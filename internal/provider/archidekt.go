package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/store"
)

const ArchidektBaseURL = "https://archidekt.com/api"

// Archidekt reads decks from archidekt.com. Public decks need no login; a
// password in the configured env var enables private decks.
type Archidekt struct {
	baseURL     string
	username    string
	userID      string
	passwordEnv string

	httpClient  *http.Client
	rateLimiter *rate.Limiter

	mu    sync.Mutex
	token string
}

func NewArchidekt(cfg store.ProviderConfig) *Archidekt {
	base := cfg.BaseURL
	if base == "" {
		base = ArchidektBaseURL
	}
	return &Archidekt{
		baseURL:     strings.TrimRight(base, "/"),
		username:    cfg.Username,
		userID:      cfg.CollectionID,
		passwordEnv: cfg.PasswordEnv,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(250*time.Millisecond), 2),
	}
}

func (a *Archidekt) Name() string { return "archidekt" }

// TestConnection checks that the configured user exists.
func (a *Archidekt) TestConnection(ctx context.Context) error {
	id := a.userID
	if id == "" {
		id = a.username
	}
	var out map[string]any
	return a.getJSON(ctx, fmt.Sprintf("%s/users/%s/", a.baseURL, url.PathEscape(id)), &out)
}

type deckPage struct {
	Next    *string `json:"next"`
	Results []struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"results"`
}

func (a *Archidekt) ListDecks(ctx context.Context) ([]DeckRef, error) {
	next := fmt.Sprintf("%s/decks/v3/?ownerUsername=%s&orderBy=-updatedAt", a.baseURL, url.QueryEscape(a.username))

	var refs []DeckRef
	for next != "" {
		var page deckPage
		if err := a.getJSON(ctx, next, &page); err != nil {
			return nil, fmt.Errorf("failed to list decks: %w", err)
		}
		for _, r := range page.Results {
			refs = append(refs, DeckRef{ID: strconv.Itoa(r.ID), Name: r.Name})
		}
		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}
	return refs, nil
}

type archidektDeck struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Categories []struct {
		Name           string `json:"name"`
		IncludedInDeck bool   `json:"includedInDeck"`
	} `json:"categories"`
	Cards []struct {
		Quantity   int      `json:"quantity"`
		Categories []string `json:"categories"`
		Card       struct {
			UID    string `json:"uid"`
			Prices struct {
				TCG float64 `json:"tcg"`
			} `json:"prices"`
			OracleCard struct {
				Name          string            `json:"name"`
				ManaCost      string            `json:"manaCost"`
				CMC           float64           `json:"cmc"`
				Types         []string          `json:"types"`
				SubTypes      []string          `json:"subTypes"`
				SuperTypes    []string          `json:"superTypes"`
				Text          string            `json:"text"`
				Power         string            `json:"power"`
				Toughness     string            `json:"toughness"`
				Loyalty       string            `json:"loyalty"`
				Colors        []string          `json:"colors"`
				ColorIdentity []string          `json:"colorIdentity"`
				Legalities    map[string]string `json:"legalities"`
				GameChanger   bool              `json:"gameChanger"`
				EDHRECRank    *int              `json:"edhrecRank"`
			} `json:"oracleCard"`
		} `json:"card"`
	} `json:"cards"`
}

// GetDeck fetches a deck. Cards in categories excluded from the deck
// (maybeboard, sideboard) are dropped and quantities are expanded.
func (a *Archidekt) GetDeck(ctx context.Context, id string) (mtg.Deck, error) {
	var raw archidektDeck
	if err := a.getJSON(ctx, fmt.Sprintf("%s/decks/%s/", a.baseURL, url.PathEscape(id)), &raw); err != nil {
		if he, ok := err.(*HTTPError); ok && he.Status == http.StatusNotFound {
			return mtg.Deck{}, fmt.Errorf("%w: %s", ErrDeckNotFound, id)
		}
		return mtg.Deck{}, fmt.Errorf("failed to load deck %s: %w", id, err)
	}

	excluded := map[string]bool{}
	for _, c := range raw.Categories {
		if !c.IncludedInDeck {
			excluded[c.Name] = true
		}
	}

	deck := mtg.Deck{ID: id, Provider: a.Name(), Name: raw.Name}
	for _, entry := range raw.Cards {
		if len(entry.Categories) > 0 && excluded[entry.Categories[0]] {
			continue
		}
		oc := entry.Card.OracleCard
		card := mtg.Card{
			ID:                entry.Card.UID,
			Name:              oc.Name,
			ManaCost:          oc.ManaCost,
			CMC:               oc.CMC,
			TypeLine:          typeLine(oc.SuperTypes, oc.Types, oc.SubTypes),
			OracleText:        oc.Text,
			Power:             optional(oc.Power),
			Toughness:         optional(oc.Toughness),
			Loyalty:           optional(oc.Loyalty),
			Colors:            colorLetters(oc.Colors),
			ColorIdentity:     colorLetters(oc.ColorIdentity),
			CommanderLegality: oc.Legalities["commander"],
			GameChanger:       oc.GameChanger,
			EDHRECRank:        oc.EDHRECRank,
		}
		if entry.Card.Prices.TCG > 0 {
			card.Price = strconv.FormatFloat(entry.Card.Prices.TCG, 'f', 2, 64)
		}

		if hasCategory(entry.Categories, "Commander") && deck.Commander == nil {
			cmdr := card.Clone()
			deck.Commander = &cmdr
		}
		for i := 0; i < max(entry.Quantity, 1); i++ {
			deck.Cards = append(deck.Cards, card.Clone())
		}
	}
	return deck, nil
}

// SaveAlteredDeck is not supported; Archidekt has no write API for decks
// that decksmith can rely on.
func (a *Archidekt) SaveAlteredDeck(context.Context, mtg.Deck) (string, error) {
	return "", ErrSaveUnsupported
}

// getJSON issues an authenticated GET. A 401 triggers one re-login when a
// password is available.
func (a *Archidekt) getJSON(ctx context.Context, u string, out any) error {
	resp, err := a.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		_ = resp.Body.Close()
		if err := a.login(ctx); err != nil {
			return err
		}
		if resp, err = a.do(ctx, http.MethodGet, u, nil); err != nil {
			return err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			_ = resp.Body.Close()
			return ErrAuthExpired
		}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPError{Status: resp.StatusCode, URL: u, Body: truncate(string(data), 200)}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to parse response from %s: %w", u, err)
	}
	return nil
}

func (a *Archidekt) do(ctx context.Context, method, u string, body []byte) (*http.Response, error) {
	if err := a.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "decksmith/1.0")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	a.mu.Lock()
	if a.token != "" {
		req.Header.Set("Authorization", "JWT "+a.token)
	}
	a.mu.Unlock()

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request to %s failed: %w", u, err)
	}
	return resp, nil
}

func (a *Archidekt) login(ctx context.Context) error {
	password := ""
	if a.passwordEnv != "" {
		password = os.Getenv(a.passwordEnv)
	}
	if password == "" || a.username == "" {
		return ErrAuthExpired
	}

	body, _ := json.Marshal(map[string]string{"username": a.username, "password": password})
	resp, err := a.do(ctx, http.MethodPost, a.baseURL+"/rest-auth/login/", body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: login returned HTTP %d", ErrAuthExpired, resp.StatusCode)
	}

	var out struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.AccessToken == "" {
		return fmt.Errorf("%w: login response had no token", ErrAuthExpired)
	}
	a.mu.Lock()
	a.token = out.AccessToken
	a.mu.Unlock()
	return nil
}

var colorNames = map[string]string{
	"white": "W", "blue": "U", "black": "B", "red": "R", "green": "G", "colorless": "C",
}

func colorLetters(names []string) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if l, ok := colorNames[strings.ToLower(n)]; ok {
			out = append(out, l)
		} else if len(n) == 1 {
			out = append(out, strings.ToUpper(n))
		}
	}
	return out
}

func typeLine(super, types, sub []string) string {
	left := strings.Join(append(append([]string{}, super...), types...), " ")
	if len(sub) == 0 {
		return left
	}
	return left + " — " + strings.Join(sub, " ")
}

func hasCategory(cats []string, want string) bool {
	for _, c := range cats {
		if strings.EqualFold(c, want) {
			return true
		}
	}
	return false
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
