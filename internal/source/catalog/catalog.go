// Package catalog yields affiliate links from a retail catalog search API.
// For each configured keyword it searches the catalog and keeps the item
// with the most customer reviews.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/httpx"
)

// itemsPerKeyword bounds how deep the per-keyword search paginates.
const itemsPerKeyword = 10

type Config struct {
	BaseURL string
	APIKey  string
	// PartnerTag is appended to every detail page URL for attribution.
	PartnerTag string
	// Keywords are the niche search terms, one candidate link per keyword.
	Keywords []string
}

type Source struct {
	cfg        Config
	httpClient *http.Client
	policy     fetch.Policy
	logger     *slog.Logger
}

func New(cfg Config, policy fetch.Policy, logger *slog.Logger) *Source {
	return &Source{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		policy:     policy,
		logger:     logger,
	}
}

func (s *Source) Name() string {
	return "catalog"
}

type catalogItem struct {
	DetailPageURL string `json:"detail_page_url"`
	Title         string `json:"title"`
	ReviewCount   int    `json:"review_count"`
	ProductGroup  string `json:"product_group"`
	ImageURL      string `json:"image_url"`
}

type searchResponse struct {
	Items    []catalogItem `json:"items"`
	NextPage string        `json:"next_page"`
}

// Links returns at most one link per configured keyword, up to limit. A
// keyword whose search fails is skipped; the remaining keywords still yield.
func (s *Source) Links(ctx context.Context, limit int) ([]models.AffiliateLink, error) {
	const op = "source.catalog.Source.Links"

	var links []models.AffiliateLink

	for _, keyword := range s.cfg.Keywords {
		if limit > 0 && len(links) >= limit {
			break
		}
		if err := ctx.Err(); err != nil {
			return links, fmt.Errorf("%s: %w", op, err)
		}

		link, ok := s.bestForKeyword(ctx, keyword)
		if !ok {
			continue
		}

		links = append(links, link)
	}

	return links, nil
}

func (s *Source) bestForKeyword(ctx context.Context, keyword string) (models.AffiliateLink, bool) {
	const op = "source.catalog.Source.bestForKeyword"

	items, err := fetch.Paginate(ctx, s.policy, itemsPerKeyword, func(ctx context.Context, token string) (fetch.Page[catalogItem], error) {
		params := url.Values{
			"keywords":    {keyword},
			"partner_tag": {s.cfg.PartnerTag},
		}
		if token != "" {
			params.Set("page", token)
		}

		var resp searchResponse
		headers := map[string]string{"Authorization": "Bearer " + s.cfg.APIKey}
		requestURL := fmt.Sprintf("%s/items/search?%s", s.cfg.BaseURL, params.Encode())

		if err := httpx.DoJSON(ctx, s.httpClient, http.MethodGet, requestURL, headers, nil, &resp); err != nil {
			return fetch.Page[catalogItem]{}, err
		}

		return fetch.Page[catalogItem]{Items: resp.Items, Next: resp.NextPage}, nil
	})
	if err != nil {
		s.logger.Warn("catalog search failed, skipping keyword",
			slog.String("op", op), slog.String("keyword", keyword), slog.Any("err", err))
		return models.AffiliateLink{}, false
	}

	var best *catalogItem
	for i := range items {
		item := &items[i]

		// Items named after the marketplace itself produce unusable content.
		if item.DetailPageURL == "" || item.Title == "" || strings.Contains(strings.ToLower(item.Title), "marketplace") {
			continue
		}

		if best == nil || item.ReviewCount > best.ReviewCount {
			best = item
		}
	}

	if best == nil {
		return models.AffiliateLink{}, false
	}

	category := best.ProductGroup
	if category == "" {
		category = "Others"
	}

	return models.AffiliateLink{
		URL:          best.DetailPageURL,
		ProductTitle: best.Title,
		Categories:   []string{category},
		ThumbnailURL: best.ImageURL,
	}, true
}
