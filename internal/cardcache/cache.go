// Package cardcache keeps resolved card data in a local SQLite database so
// repeated validations do not go back to Scryfall.
package cardcache

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/kokistudios/decksmith/internal/mtg"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

const metaBulkUpdatedAt = "bulk_updated_at"

// Cache is a card lookup table keyed by lower-cased card name.
type Cache struct {
	conn *sql.DB
	path string
}

// Open opens (creating if needed) the cache at path and applies migrations.
func Open(path string) (*Cache, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}
	if err := migrateUp(path); err != nil {
		return nil, err
	}

	conn, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("failed to open card cache: %w", err)
	}
	conn.SetMaxOpenConns(1)
	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping card cache: %w", err)
	}
	return &Cache{conn: conn, path: path}, nil
}

func migrateUp(path string) error {
	dir, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to access migrations directory: %w", err)
	}
	src, err := iofs.New(dir, ".")
	if err != nil {
		return fmt.Errorf("failed to create source driver: %w", err)
	}

	normalized := filepath.ToSlash(path)
	if filepath.IsAbs(path) && normalized[0] != '/' {
		normalized = "/" + normalized
	}
	m, err := migrate.NewWithSourceInstance("iofs", src, "sqlite://"+normalized)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer func() { _, _ = m.Close() }()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}

func (c *Cache) Close() error { return c.conn.Close() }

// Path returns the database file location.
func (c *Cache) Path() string { return c.path }

func key(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Get returns the cached card for name, matching full names first and then
// individual face names of multi-faced cards.
func (c *Cache) Get(ctx context.Context, name string) (mtg.Card, bool, error) {
	var payload string
	err := c.conn.QueryRowContext(ctx, `
		SELECT c.payload FROM cards c WHERE c.name_key = ?
		UNION ALL
		SELECT c.payload FROM card_aliases a JOIN cards c ON c.name_key = a.name_key WHERE a.alias_key = ?
		LIMIT 1`, key(name), key(name)).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return mtg.Card{}, false, nil
	}
	if err != nil {
		return mtg.Card{}, false, fmt.Errorf("failed to query card %q: %w", name, err)
	}

	var card mtg.Card
	if err := json.Unmarshal([]byte(payload), &card); err != nil {
		return mtg.Card{}, false, fmt.Errorf("corrupt cache entry for %q: %w", name, err)
	}
	return card, true, nil
}

// Put stores cards, replacing existing entries with the same name.
func (c *Cache) Put(ctx context.Context, cards ...mtg.Card) error {
	tx, err := c.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if err := putTx(ctx, tx, time.Now().UTC(), cards); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit cards: %w", err)
	}
	return nil
}

func putTx(ctx context.Context, tx *sql.Tx, now time.Time, cards []mtg.Card) error {
	cardStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO cards (name_key, name, payload, fetched_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(name_key) DO UPDATE SET name = excluded.name, payload = excluded.payload, fetched_at = excluded.fetched_at`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer cardStmt.Close()

	aliasStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO card_aliases (alias_key, name_key) VALUES (?, ?)
		ON CONFLICT(alias_key) DO UPDATE SET name_key = excluded.name_key`)
	if err != nil {
		return fmt.Errorf("failed to prepare alias insert: %w", err)
	}
	defer aliasStmt.Close()

	for _, card := range cards {
		if strings.TrimSpace(card.Name) == "" {
			continue
		}
		payload, err := json.Marshal(card)
		if err != nil {
			return fmt.Errorf("failed to encode %q: %w", card.Name, err)
		}
		k := key(card.Name)
		if _, err := cardStmt.ExecContext(ctx, k, card.Name, string(payload), now); err != nil {
			return fmt.Errorf("failed to store %q: %w", card.Name, err)
		}
		if faces := strings.Split(card.Name, " // "); len(faces) > 1 {
			for _, face := range faces {
				if _, err := aliasStmt.ExecContext(ctx, key(face), k); err != nil {
					return fmt.Errorf("failed to store alias %q: %w", face, err)
				}
			}
		}
	}
	return nil
}

// Count returns the number of cached cards.
func (c *Cache) Count(ctx context.Context) (int, error) {
	var n int
	if err := c.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM cards`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count cards: %w", err)
	}
	return n, nil
}

// BulkUpdatedAt reports when the last bulk import was published upstream.
// The zero time means no import has run.
func (c *Cache) BulkUpdatedAt(ctx context.Context) (time.Time, error) {
	var v string
	err := c.conn.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, metaBulkUpdatedAt).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read cache metadata: %w", err)
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s value %q: %w", metaBulkUpdatedAt, v, err)
	}
	return t, nil
}

func setMetaTx(ctx context.Context, tx *sql.Tx, k, v string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO meta (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`, k, v)
	if err != nil {
		return fmt.Errorf("failed to write cache metadata: %w", err)
	}
	return nil
}

// Clear removes every cached card and the bulk import marker.
func (c *Cache) Clear(ctx context.Context) error {
	for _, stmt := range []string{`DELETE FROM card_aliases`, `DELETE FROM cards`, `DELETE FROM meta`} {
		if _, err := c.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear card cache: %w", err)
		}
	}
	return nil
}
