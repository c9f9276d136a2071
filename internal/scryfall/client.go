// Package scryfall is a rate-limited client for the Scryfall card database.
package scryfall

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/kokistudios/decksmith/internal/mtg"
)

const (
	DefaultBaseURL = "https://api.scryfall.com"
	rateLimitDelay = 100 * time.Millisecond // Scryfall asks for at most 10 req/sec
	requestTimeout = 30 * time.Second
	maxRetries     = 3
	initialBackoff = 1 * time.Second
	maxBackoff     = 16 * time.Second

	// MaxBatchSize is the /cards/collection identifier limit.
	MaxBatchSize = 75
)

// Client talks to the Scryfall API.
type Client struct {
	baseURL     string
	httpClient  *http.Client
	rateLimiter *rate.Limiter
	userAgent   string
	backoff     time.Duration
}

// NewClient creates a client for baseURL, or DefaultBaseURL when empty.
func NewClient(baseURL string) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		httpClient:  &http.Client{Timeout: requestTimeout},
		rateLimiter: rate.NewLimiter(rate.Every(rateLimitDelay), 1),
		userAgent:   "decksmith/1.0",
		backoff:     initialBackoff,
	}
}

type cardIdentifier struct {
	Name string `json:"name"`
}

type collectionRequest struct {
	Identifiers []cardIdentifier `json:"identifiers"`
}

type collectionResponse struct {
	Data     []Card           `json:"data"`
	NotFound []cardIdentifier `json:"not_found"`
}

// ResolveCardsByName looks names up through /cards/collection in batches.
// Found cards keep input order; missing names are returned separately.
func (c *Client) ResolveCardsByName(ctx context.Context, names []string) ([]mtg.Card, []string, error) {
	cards, notFound, err := c.GetCardsByNames(ctx, names)
	if err != nil {
		return nil, nil, err
	}
	out := make([]mtg.Card, len(cards))
	for i, card := range cards {
		out[i] = card.ToCard()
	}
	return out, notFound, nil
}

// GetCardsByNames returns raw Scryfall cards for names.
func (c *Client) GetCardsByNames(ctx context.Context, names []string) ([]Card, []string, error) {
	var allCards []Card
	var allNotFound []string

	for i := 0; i < len(names); i += MaxBatchSize {
		end := min(i+MaxBatchSize, len(names))
		batch := names[i:end]

		ids := make([]cardIdentifier, len(batch))
		for j, name := range batch {
			ids[j] = cardIdentifier{Name: name}
		}
		body, err := json.Marshal(collectionRequest{Identifiers: ids})
		if err != nil {
			return nil, nil, fmt.Errorf("failed to marshal request: %w", err)
		}

		var resp collectionResponse
		if err := c.doRequest(ctx, http.MethodPost, c.baseURL+"/cards/collection", body, &resp); err != nil {
			return nil, nil, fmt.Errorf("failed to fetch batch %d-%d: %w", i, end, err)
		}
		allCards = append(allCards, resp.Data...)
		for _, nf := range resp.NotFound {
			allNotFound = append(allNotFound, nf.Name)
		}
	}
	return allCards, allNotFound, nil
}

// GetCardByName fetches one card by exact name.
func (c *Client) GetCardByName(ctx context.Context, name string) (*Card, error) {
	var card Card
	u := c.baseURL + "/cards/named?exact=" + strings.ReplaceAll(name, " ", "+")
	if err := c.doRequest(ctx, http.MethodGet, u, nil, &card); err != nil {
		return nil, fmt.Errorf("failed to get card %s: %w", name, err)
	}
	return &card, nil
}

// GetBulkData retrieves the bulk data index.
func (c *Client) GetBulkData(ctx context.Context) (*BulkDataList, error) {
	var list BulkDataList
	if err := c.doRequest(ctx, http.MethodGet, c.baseURL+"/bulk-data", nil, &list); err != nil {
		return nil, fmt.Errorf("failed to get bulk data: %w", err)
	}
	return &list, nil
}

// DownloadBulk streams a bulk file. The caller closes the returned reader.
func (c *Client) DownloadBulk(ctx context.Context, uri string) (io.ReadCloser, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter error: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	// bulk files are large; no overall client timeout
	resp, err := (&http.Client{Transport: c.httpClient.Transport}).Do(req)
	if err != nil {
		return nil, fmt.Errorf("bulk download failed: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, fmt.Errorf("bulk download returned status %d", resp.StatusCode)
	}
	return resp.Body, nil
}

// doRequest performs an HTTP request with rate limiting and retry logic.
func (c *Client) doRequest(ctx context.Context, method, url string, body []byte, result any) error {
	var lastErr error
	backoff := c.backoff

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter error: %w", err)
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("User-Agent", c.userAgent)
		req.Header.Set("Accept", "application/json")
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			if attempt < maxRetries && ctx.Err() == nil {
				sleep(ctx, backoff)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return lastErr
		}

		data, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("failed to read response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(data, result); err != nil {
				return fmt.Errorf("failed to parse JSON response: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			lastErr = fmt.Errorf("scryfall returned HTTP %d", resp.StatusCode)
			if attempt < maxRetries {
				wait := backoff
				if s, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil {
					wait = time.Duration(s) * time.Second
				}
				sleep(ctx, wait)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			return lastErr

		case resp.StatusCode == http.StatusNotFound:
			return &NotFoundError{URL: url}

		default:
			var apiErr APIError
			if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Details != "" {
				return &apiErr
			}
			return fmt.Errorf("API request failed with status %d: %s", resp.StatusCode, string(data))
		}
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
