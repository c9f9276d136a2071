package scryfall

import (
	"fmt"
	"strings"
	"time"

	"github.com/kokistudios/decksmith/internal/mtg"
)

// Card is the subset of a Scryfall card object decksmith reads.
type Card struct {
	ID            string     `json:"id"`
	OracleID      string     `json:"oracle_id"`
	Name          string     `json:"name"`
	Layout        string     `json:"layout"`
	ManaCost      string     `json:"mana_cost,omitempty"`
	CMC           float64    `json:"cmc"`
	TypeLine      string     `json:"type_line"`
	OracleText    string     `json:"oracle_text,omitempty"`
	Colors        []string   `json:"colors,omitempty"`
	ColorIdentity []string   `json:"color_identity"`
	Power         string     `json:"power,omitempty"`
	Toughness     string     `json:"toughness,omitempty"`
	Loyalty       string     `json:"loyalty,omitempty"`
	CardFaces     []CardFace `json:"card_faces,omitempty"`
	Legalities    Legalities `json:"legalities"`
	GameChanger   bool       `json:"game_changer"`
	EDHRECRank    *int       `json:"edhrec_rank,omitempty"`
	Prices        Prices     `json:"prices"`
}

// CardFace is one face of a multi-faced card.
type CardFace struct {
	Name       string   `json:"name"`
	ManaCost   string   `json:"mana_cost,omitempty"`
	TypeLine   string   `json:"type_line"`
	OracleText string   `json:"oracle_text,omitempty"`
	Colors     []string `json:"colors,omitempty"`
	Power      string   `json:"power,omitempty"`
	Toughness  string   `json:"toughness,omitempty"`
	Loyalty    string   `json:"loyalty,omitempty"`
}

type Legalities struct {
	Commander string `json:"commander"`
}

type Prices struct {
	USD     *string `json:"usd"`
	USDFoil *string `json:"usd_foil"`
}

// ToCard converts a Scryfall card to the deck model. Multi-faced cards
// without top-level text take it from their faces.
func (c Card) ToCard() mtg.Card {
	out := mtg.Card{
		ID:                c.ID,
		Name:              c.Name,
		ManaCost:          c.ManaCost,
		CMC:               c.CMC,
		TypeLine:          c.TypeLine,
		OracleText:        c.OracleText,
		Power:             optional(c.Power),
		Toughness:         optional(c.Toughness),
		Loyalty:           optional(c.Loyalty),
		Colors:            nonNil(c.Colors),
		ColorIdentity:     nonNil(c.ColorIdentity),
		CommanderLegality: c.Legalities.Commander,
		GameChanger:       c.GameChanger,
		EDHRECRank:        c.EDHRECRank,
	}
	if len(c.CardFaces) > 0 {
		front := c.CardFaces[0]
		if out.ManaCost == "" {
			out.ManaCost = front.ManaCost
		}
		if out.OracleText == "" {
			texts := make([]string, 0, len(c.CardFaces))
			for _, f := range c.CardFaces {
				texts = append(texts, f.OracleText)
			}
			out.OracleText = strings.Join(texts, "\n//\n")
		}
		if out.Power == nil {
			out.Power = optional(front.Power)
			out.Toughness = optional(front.Toughness)
		}
		if out.Loyalty == nil {
			out.Loyalty = optional(front.Loyalty)
		}
		if len(out.Colors) == 0 {
			out.Colors = nonNil(front.Colors)
		}
	}
	switch {
	case c.Prices.USD != nil:
		out.Price = *c.Prices.USD
	case c.Prices.USDFoil != nil:
		out.Price = *c.Prices.USDFoil
	}
	return out
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return append([]string(nil), s...)
}

// BulkDataList is the /bulk-data index.
type BulkDataList struct {
	Object string     `json:"object"`
	Data   []BulkData `json:"data"`
}

// BulkData describes one downloadable bulk file.
type BulkData struct {
	ID          string    `json:"id"`
	Type        string    `json:"type"`
	UpdatedAt   time.Time `json:"updated_at"`
	Name        string    `json:"name"`
	Size        int64     `json:"size"`
	DownloadURI string    `json:"download_uri"`
}

// Find returns the entry of the given type, e.g. "oracle_cards".
func (l BulkDataList) Find(kind string) (BulkData, bool) {
	for _, b := range l.Data {
		if b.Type == kind {
			return b, true
		}
	}
	return BulkData{}, false
}

// APIError is an error object returned by the Scryfall API.
type APIError struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Details string `json:"details"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("scryfall API error (%d %s): %s", e.Status, e.Code, e.Details)
}

// NotFoundError is returned for 404 responses.
type NotFoundError struct {
	URL string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.URL)
}
