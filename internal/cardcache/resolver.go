package cardcache

import (
	"context"
	"fmt"
	"io"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/decksmith/internal/mtg"
	"github.com/kokistudios/decksmith/internal/suggest"
)

// Resolver answers name lookups from the cache and sends only the misses
// upstream, storing whatever comes back.
type Resolver struct {
	cache    *Cache
	upstream suggest.Resolver
	log      *log.Logger
}

// NewResolver wraps upstream with cache. A nil logger discards output.
func NewResolver(cache *Cache, upstream suggest.Resolver, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	return &Resolver{cache: cache, upstream: upstream, log: logger}
}

// ResolveCardsByName returns found cards in input order and the names
// nothing could resolve.
func (r *Resolver) ResolveCardsByName(ctx context.Context, names []string) ([]mtg.Card, []string, error) {
	resolved := make(map[int]mtg.Card, len(names))
	var misses []string
	var missIdx []int

	for i, name := range names {
		card, ok, err := r.cache.Get(ctx, name)
		if err != nil {
			// a broken cache should not block lookups
			r.log.Warn("card cache read failed", "card", name, "err", err)
		}
		if ok {
			resolved[i] = card
			continue
		}
		misses = append(misses, name)
		missIdx = append(missIdx, i)
	}

	if len(misses) > 0 {
		found, notFound, err := r.upstream.ResolveCardsByName(ctx, misses)
		if err != nil {
			return nil, nil, err
		}

		absent := make(map[string]bool, len(notFound))
		for _, n := range notFound {
			absent[key(n)] = true
		}
		next := 0
		for j, name := range misses {
			if absent[key(name)] {
				continue
			}
			if next >= len(found) {
				return nil, nil, fmt.Errorf("card lookup returned %d cards for %d names", len(found), len(misses)-len(notFound))
			}
			resolved[missIdx[j]] = found[next]
			next++
		}

		if len(found) > 0 {
			if err := r.cache.Put(ctx, found...); err != nil {
				r.log.Warn("card cache write failed", "err", err)
			}
		}
	}

	var cards []mtg.Card
	var missing []string
	for i, name := range names {
		if c, ok := resolved[i]; ok {
			cards = append(cards, c)
		} else {
			missing = append(missing, name)
		}
	}
	return cards, missing, nil
}
