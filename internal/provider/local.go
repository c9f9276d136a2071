package provider

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/kokistudios/decksmith/internal/mtg"
)

// Local keeps decks as YAML files in one directory. A deck's id is its file
// name without extension.
type Local struct {
	dir string
	now func() time.Time
}

func NewLocal(dir string) *Local {
	return &Local{dir: dir, now: time.Now}
}

func (l *Local) Name() string { return "local" }

// Dir returns the deck directory.
func (l *Local) Dir() string { return l.dir }

func (l *Local) TestConnection(context.Context) error {
	info, err := os.Stat(l.dir)
	if err != nil {
		return fmt.Errorf("deck directory: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("deck directory %s is not a directory", l.dir)
	}
	return nil
}

func (l *Local) ListDecks(ctx context.Context) ([]DeckRef, error) {
	entries, err := os.ReadDir(l.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read deck directory: %w", err)
	}

	var refs []DeckRef
	for _, e := range entries {
		if e.IsDir() || !isDeckFile(e.Name()) {
			continue
		}
		id := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name()))
		ref := DeckRef{ID: id, Name: id}

		var head struct {
			Name string `yaml:"name"`
		}
		if data, err := os.ReadFile(filepath.Join(l.dir, e.Name())); err == nil {
			if yaml.Unmarshal(data, &head) == nil && head.Name != "" {
				ref.Name = head.Name
			}
		}
		refs = append(refs, ref)
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].ID < refs[j].ID })
	return refs, nil
}

func (l *Local) GetDeck(ctx context.Context, id string) (mtg.Deck, error) {
	path, err := l.pathFor(id)
	if err != nil {
		return mtg.Deck{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return mtg.Deck{}, fmt.Errorf("%w: %s", ErrDeckNotFound, id)
		}
		return mtg.Deck{}, fmt.Errorf("failed to read deck %s: %w", id, err)
	}

	var deck mtg.Deck
	if err := yaml.Unmarshal(data, &deck); err != nil {
		return mtg.Deck{}, fmt.Errorf("invalid deck file %s: %w", path, err)
	}
	deck.ID = id
	deck.Provider = l.Name()
	if deck.Name == "" {
		deck.Name = id
	}
	return deck, nil
}

// SaveAlteredDeck writes deck next to the originals under a timestamped name
// and returns the file path.
func (l *Local) SaveAlteredDeck(ctx context.Context, deck mtg.Deck) (string, error) {
	if err := os.MkdirAll(l.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create deck directory: %w", err)
	}

	id := fmt.Sprintf("%s-revised-%s", fileSlug(deck.Name), l.now().Format("20060102-150405"))
	deck.ID = id
	deck.Provider = l.Name()

	data, err := yaml.Marshal(deck)
	if err != nil {
		return "", fmt.Errorf("failed to encode deck: %w", err)
	}
	path := filepath.Join(l.dir, id+".yaml")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write deck: %w", err)
	}
	return path, nil
}

func (l *Local) pathFor(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return "", fmt.Errorf("%w: invalid deck id %q", ErrDeckNotFound, id)
	}
	for _, ext := range []string{".yaml", ".yml"} {
		p := filepath.Join(l.dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return filepath.Join(l.dir, id+".yaml"), nil
}

func isDeckFile(name string) bool {
	ext := filepath.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

var nonSlug = regexp.MustCompile(`[^a-z0-9]+`)

func fileSlug(name string) string {
	s := strings.Trim(nonSlug.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		return "deck"
	}
	return s
}

func resolve(home, p string) string {
	if p == "" {
		p = "decks"
	}
	if filepath.IsAbs(p) || home == "" {
		return p
	}
	return filepath.Join(home, p)
}
