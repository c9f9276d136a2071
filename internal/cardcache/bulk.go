package cardcache

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/scryfall"
)

const (
	oracleCardsType = "oracle_cards"
	importBatchSize = 500
)

// Layouts that are not deck-buildable cards.
var skippedLayouts = map[string]bool{
	"token":              true,
	"double_faced_token": true,
	"emblem":             true,
	"art_series":         true,
	"vanguard":           true,
	"scheme":             true,
	"planar":             true,
}

// BulkSource is where bulk card data comes from.
type BulkSource interface {
	GetBulkData(ctx context.Context) (*scryfall.BulkDataList, error)
	DownloadBulk(ctx context.Context, uri string) (io.ReadCloser, error)
}

// RefreshResult describes a Refresh call.
type RefreshResult struct {
	Imported  int
	UpdatedAt time.Time
	Skipped   bool
}

// Refresh imports the upstream oracle card file when it is newer than the
// last import, or unconditionally with force.
func (c *Cache) Refresh(ctx context.Context, src BulkSource, force bool) (RefreshResult, error) {
	list, err := src.GetBulkData(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	entry, ok := list.Find(oracleCardsType)
	if !ok {
		return RefreshResult{}, fmt.Errorf("bulk data index has no %s entry", oracleCardsType)
	}

	last, err := c.BulkUpdatedAt(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	if !force && !last.IsZero() && !entry.UpdatedAt.After(last) {
		return RefreshResult{UpdatedAt: last, Skipped: true}, nil
	}

	body, err := src.DownloadBulk(ctx, entry.DownloadURI)
	if err != nil {
		return RefreshResult{}, err
	}
	defer body.Close()

	n, err := c.ImportBulk(ctx, body, entry.UpdatedAt)
	if err != nil {
		return RefreshResult{}, err
	}
	return RefreshResult{Imported: n, UpdatedAt: entry.UpdatedAt}, nil
}

// ImportBulk streams a JSON array of Scryfall cards into the cache in one
// transaction and records updatedAt.
func (c *Cache) ImportBulk(ctx context.Context, r io.Reader, updatedAt time.Time) (int, error) {
	dec := json.NewDecoder(r)
	tok, err := dec.Token()
	if err != nil {
		return 0, fmt.Errorf("failed to read bulk file: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '[' {
		return 0, fmt.Errorf("bulk file is not a JSON array")
	}

	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := time.Now().UTC()
	batch := make([]mtg.Card, 0, importBatchSize)
	total := 0
	for dec.More() {
		var sc scryfall.Card
		if err := dec.Decode(&sc); err != nil {
			return 0, fmt.Errorf("failed to decode card %d: %w", total+1, err)
		}
		if skippedLayouts[sc.Layout] {
			continue
		}
		batch = append(batch, sc.ToCard())
		if len(batch) == importBatchSize {
			if err := putTx(ctx, tx, now, batch); err != nil {
				return 0, err
			}
			total += len(batch)
			batch = batch[:0]
		}
	}
	if err := putTx(ctx, tx, now, batch); err != nil {
		return 0, err
	}
	total += len(batch)

	if err := setMetaTx(ctx, tx, metaBulkUpdatedAt, updatedAt.UTC().Format(time.RFC3339)); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit bulk import: %w", err)
	}
	return total, nil
}
