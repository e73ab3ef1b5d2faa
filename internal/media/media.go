// Package media finds stock images for generated content through a
// Pexels-compatible photo search API.
package media

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/httpx"
)

// Searcher finds up to limit image URLs for a query, ordered by relevance.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]string, error)
}

const (
	// providerPageSize is the provider's maximum page size; fewer round
	// trips per accumulation.
	providerPageSize = 80

	defaultSize = "landscape"
)

type Config struct {
	BaseURL string
	APIKey  string
	// Size selects the rendition extracted from each photo (e.g. original,
	// landscape, large).
	Size string
}

// Client is a Searcher backed by the photo search provider.
type Client struct {
	cfg        Config
	httpClient *http.Client
	policy     fetch.Policy
	logger     *slog.Logger
}

func NewClient(cfg Config, policy fetch.Policy, logger *slog.Logger) *Client {
	if cfg.Size == "" {
		cfg.Size = defaultSize
	}

	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     policy,
		logger:     logger,
	}
}

type photoPage struct {
	Photos []struct {
		Src map[string]string `json:"src"`
	} `json:"photos"`
	NextPage string `json:"next_page"`
}

// Search paginates the provider until limit images are collected or the
// provider signals exhaustion. Zero results is not an error: content may
// proceed without media.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]string, error) {
	const op = "media.Client.Search"

	if limit <= 0 {
		return nil, nil
	}

	urls, err := fetch.Paginate(ctx, c.policy, limit, func(ctx context.Context, token string) (fetch.Page[string], error) {
		requestURL := token
		if requestURL == "" {
			requestURL = fmt.Sprintf("%s/v1/search?%s", c.cfg.BaseURL, url.Values{
				"query":    {query},
				"per_page": {fmt.Sprint(providerPageSize)},
			}.Encode())
		}

		var page photoPage
		headers := map[string]string{"Authorization": c.cfg.APIKey}
		if err := httpx.DoJSON(ctx, c.httpClient, http.MethodGet, requestURL, headers, nil, &page); err != nil {
			return fetch.Page[string]{}, err
		}

		var images []string
		for _, photo := range page.Photos {
			if src := photo.Src[c.cfg.Size]; src != "" {
				images = append(images, src)
			}
		}

		return fetch.Page[string]{Items: images, Next: page.NextPage}, nil
	})
	if err != nil {
		return urls, fmt.Errorf("%s: search %q failed: %w", op, query, err)
	}

	c.logger.Debug("image search finished",
		slog.String("query", query), slog.Int("found", len(urls)))

	return urls, nil
}
