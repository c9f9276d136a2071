package scryfall

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

func newTestClient(url string) *Client {
	c := NewClient(url)
	c.backoff = time.Millisecond
	return c
}

func TestResolveCardsByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/cards/collection" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var req collectionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if len(req.Identifiers) != 2 {
			t.Errorf("identifiers = %d, want 2", len(req.Identifiers))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{
			"object": "list",
			"not_found": [{"name": "Moxen Galore"}],
			"data": [{
				"id": "sr-1",
				"name": "Sol Ring",
				"mana_cost": "{1}",
				"cmc": 1,
				"type_line": "Artifact",
				"oracle_text": "{T}: Add {C}{C}.",
				"colors": [],
				"color_identity": [],
				"legalities": {"commander": "legal"},
				"game_changer": true,
				"edhrec_rank": 1,
				"prices": {"usd": "1.50"}
			}]
		}`)
	}))
	defer srv.Close()

	cards, missing, err := newTestClient(srv.URL).ResolveCardsByName(context.Background(), []string{"Sol Ring", "Moxen Galore"})
	if err != nil {
		t.Fatalf("ResolveCardsByName: %v", err)
	}
	if len(cards) != 1 || cards[0].Name != "Sol Ring" {
		t.Fatalf("cards = %+v", cards)
	}
	c := cards[0]
	if c.CommanderLegality != "legal" || !c.GameChanger || c.Price != "1.50" {
		t.Errorf("converted card = %+v", c)
	}
	if c.EDHRECRank == nil || *c.EDHRECRank != 1 {
		t.Errorf("EDHRECRank = %v", c.EDHRECRank)
	}
	if c.Power != nil {
		t.Errorf("non-creature should have nil Power, got %q", *c.Power)
	}
	if len(missing) != 1 || missing[0] != "Moxen Galore" {
		t.Errorf("missing = %v", missing)
	}
}

func TestGetCardsByNamesBatches(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		var req collectionRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		data := make([]string, len(req.Identifiers))
		for i, id := range req.Identifiers {
			data[i] = fmt.Sprintf(`{"name":%q,"color_identity":[],"legalities":{},"prices":{}}`, id.Name)
		}
		_, _ = io.WriteString(w, `{"data":[`+strings.Join(data, ",")+`]}`)
	}))
	defer srv.Close()

	names := make([]string, MaxBatchSize+5)
	for i := range names {
		names[i] = fmt.Sprintf("Card %d", i)
	}
	cards, _, err := newTestClient(srv.URL).GetCardsByNames(context.Background(), names)
	if err != nil {
		t.Fatalf("GetCardsByNames: %v", err)
	}
	if got := calls.Load(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if len(cards) != len(names) || cards[MaxBatchSize].Name != names[MaxBatchSize] {
		t.Errorf("cards out of order or missing: %d", len(cards))
	}
}

func TestDoRequestRetriesOnTooManyRequests(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = io.WriteString(w, `{"object":"list","data":[{"type":"oracle_cards","download_uri":"https://example.test/oracle.json","updated_at":"2026-10-01T09:00:00Z"}]}`)
	}))
	defer srv.Close()

	list, err := newTestClient(srv.URL).GetBulkData(context.Background())
	if err != nil {
		t.Fatalf("GetBulkData: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("requests = %d, want 2", calls.Load())
	}
	b, ok := list.Find("oracle_cards")
	if !ok || b.DownloadURI != "https://example.test/oracle.json" {
		t.Errorf("Find(oracle_cards) = %+v, %v", b, ok)
	}
}

func TestDoRequestErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.Contains(r.URL.RawQuery, "Nope") {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"object":"error","status":400,"code":"bad_request","details":"malformed"}`)
	}))
	defer srv.Close()
	c := newTestClient(srv.URL)

	_, err := c.GetCardByName(context.Background(), "Nope")
	var nf *NotFoundError
	if !errors.As(err, &nf) {
		t.Errorf("expected NotFoundError, got %v", err)
	}

	_, err = c.GetCardByName(context.Background(), "Bad")
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Code != "bad_request" {
		t.Errorf("expected APIError, got %v", err)
	}
}

func TestToCardMultiFaced(t *testing.T) {
	c := Card{
		Name:          "Delver of Secrets // Insectile Aberration",
		CMC:           1,
		TypeLine:      "Creature — Human Wizard // Creature — Human Insect",
		ColorIdentity: []string{"U"},
		CardFaces: []CardFace{
			{Name: "Delver of Secrets", ManaCost: "{U}", OracleText: "front", Colors: []string{"U"}, Power: "1", Toughness: "1"},
			{Name: "Insectile Aberration", OracleText: "Flying", Power: "3", Toughness: "2"},
		},
	}
	got := c.ToCard()
	if got.ManaCost != "{U}" {
		t.Errorf("ManaCost = %q", got.ManaCost)
	}
	if got.OracleText != "front\n//\nFlying" {
		t.Errorf("OracleText = %q", got.OracleText)
	}
	if got.Power == nil || *got.Power != "1" {
		t.Errorf("Power = %v", got.Power)
	}
	if len(got.Colors) != 1 || got.Colors[0] != "U" {
		t.Errorf("Colors = %v", got.Colors)
	}
}

func TestDownloadBulk(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `[{"name":"Sol Ring"}]`)
	}))
	defer srv.Close()

	rc, err := newTestClient(srv.URL).DownloadBulk(context.Background(), srv.URL+"/file.json")
	if err != nil {
		t.Fatalf("DownloadBulk: %v", err)
	}
	defer rc.Close()
	data, _ := io.ReadAll(rc)
	if string(data) != `[{"name":"Sol Ring"}]` {
		t.Errorf("body = %s", data)
	}
}
