// Package wordpress publishes composed content as posts on a WordPress site
// through its REST API.
package wordpress

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/vadimbarashkov/affiliate-publisher/internal/channel"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/pkg/httpx"
)

const (
	defaultTitleMaxLen       = 70
	defaultDescriptionMaxLen = 5000

	statusPublish = "publish"
	statusPending = "pending"
)

type Config struct {
	// APIURL is the site's REST base, e.g. https://example.com/wp-json/wp/v2.
	APIURL string
	Token  string
	// PendingReview creates posts in pending status instead of publishing
	// outright (hosted installations moderate first).
	PendingReview     bool
	TitleMaxLen       int
	DescriptionMaxLen int
}

type Publisher struct {
	cfg        Config
	httpClient *http.Client
	policy     fetch.Policy
	logger     *slog.Logger
}

func New(cfg Config, policy fetch.Policy, logger *slog.Logger) *Publisher {
	if cfg.TitleMaxLen <= 0 {
		cfg.TitleMaxLen = defaultTitleMaxLen
	}
	if cfg.DescriptionMaxLen <= 0 {
		cfg.DescriptionMaxLen = defaultDescriptionMaxLen
	}

	return &Publisher{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		policy:     policy,
		logger:     logger,
	}
}

func (p *Publisher) Name() string {
	return "wordpress"
}

func (p *Publisher) Constraints() models.ChannelConstraints {
	return models.ChannelConstraints{
		TitleMaxLen:       p.cfg.TitleMaxLen,
		DescriptionMaxLen: p.cfg.DescriptionMaxLen,
		MaxKeywords:       3,
		RequiresMedia:     false,
		MediaPerItem:      1,
	}
}

func (p *Publisher) Publish(ctx context.Context, content models.ComposedContent, link models.AffiliateLink) models.PublishAttempt {
	const op = "channel.wordpress.Publisher.Publish"

	categoryID, err := p.getOrCreateCategory(ctx, link.PrimaryCategory())
	if err != nil {
		return models.Failed(p.Name(), fmt.Errorf("%s: %w", op, err))
	}

	status := statusPublish
	if p.cfg.PendingReview {
		status = statusPending
	}

	payload := map[string]any{
		"title":      content.Title,
		"content":    p.renderBody(content, link),
		"status":     status,
		"categories": []int{categoryID},
		// The title doubles as the excerpt to suppress auto-generated ones.
		"excerpt": content.Title,
	}
	if tagIDs := p.resolveTags(ctx, content.Keywords); len(tagIDs) > 0 {
		payload["tags"] = tagIDs
	}

	type postResponse struct {
		ID int `json:"id"`
	}

	post, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (postResponse, error) {
		var resp postResponse
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodPost, p.cfg.APIURL+"/posts", p.headers(), payload, &resp); err != nil {
			return postResponse{}, err
		}
		return resp, nil
	})
	if err != nil {
		return models.Failed(p.Name(), fmt.Errorf("%s: failed to create post: %w", op, err))
	}

	p.logger.Info("post created",
		slog.Int("post_id", post.ID), slog.String("url", link.URL))

	return models.Created(p.Name(), fmt.Sprint(post.ID))
}

type category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

type post struct {
	Title struct {
		Rendered string `json:"rendered"`
	} `json:"title"`
}

// ExistingTitles lists the titles of the latest published posts so newly
// generated titles can steer away from them.
func (p *Publisher) ExistingTitles(ctx context.Context) ([]string, error) {
	const op = "channel.wordpress.Publisher.ExistingTitles"

	listURL := fmt.Sprintf("%s/posts?%s", p.cfg.APIURL,
		url.Values{"per_page": {"100"}, "_fields": {"title"}}.Encode())

	posts, err := fetch.Do(ctx, p.policy, func(ctx context.Context) ([]post, error) {
		var out []post
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodGet, listURL, p.headers(), nil, &out); err != nil {
			return nil, err
		}
		return out, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s: failed to list posts: %w", op, err)
	}

	titles := make([]string, 0, len(posts))
	for _, ps := range posts {
		if title := strings.TrimSpace(ps.Title.Rendered); title != "" {
			titles = append(titles, title)
		}
	}

	return titles, nil
}

// resolveTags maps keywords onto tag ids, creating missing tags. Tags are
// decoration: a keyword that cannot be resolved is dropped, never fatal.
func (p *Publisher) resolveTags(ctx context.Context, keywords []string) []int {
	const op = "channel.wordpress.Publisher.resolveTags"

	var ids []int
	for _, kw := range keywords {
		id, err := p.getOrCreateTerm(ctx, "tags", kw)
		if err != nil {
			p.logger.Warn("tag resolution failed, dropping keyword",
				slog.String("op", op), slog.String("keyword", kw), slog.Any("err", err))
			continue
		}
		ids = append(ids, id)
	}

	return ids
}

// getOrCreateCategory resolves the category id for name, creating the
// category when the site does not have it yet. Get-or-create by name keeps
// the operation idempotent across runs.
func (p *Publisher) getOrCreateCategory(ctx context.Context, name string) (int, error) {
	const op = "channel.wordpress.Publisher.getOrCreateCategory"

	id, err := p.getOrCreateTerm(ctx, "categories", name)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	return id, nil
}

// getOrCreateTerm resolves the id of a taxonomy term (category or tag) by
// name, creating it when absent. Matching is case-insensitive because the
// site may normalize term names.
func (p *Publisher) getOrCreateTerm(ctx context.Context, resource, name string) (int, error) {
	const op = "channel.wordpress.Publisher.getOrCreateTerm"

	searchURL := fmt.Sprintf("%s/%s?%s", p.cfg.APIURL, resource, url.Values{"search": {name}}.Encode())

	existing, err := fetch.Do(ctx, p.policy, func(ctx context.Context) ([]category, error) {
		var terms []category
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodGet, searchURL, p.headers(), nil, &terms); err != nil {
			return nil, err
		}
		return terms, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: failed to search %s: %w", op, resource, err)
	}

	for _, term := range existing {
		if strings.EqualFold(term.Name, name) {
			return term.ID, nil
		}
	}

	created, err := fetch.Do(ctx, p.policy, func(ctx context.Context) (category, error) {
		var term category
		if err := httpx.DoJSON(ctx, p.httpClient, http.MethodPost, p.cfg.APIURL+"/"+resource, p.headers(), map[string]string{"name": name}, &term); err != nil {
			return category{}, err
		}
		return term, nil
	})
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create %s entry: %w", op, resource, err)
	}

	p.logger.Info("term created",
		slog.String("resource", resource), slog.Int("id", created.ID), slog.String("name", name))

	return created.ID, nil
}

// renderBody assembles the post HTML: description, body image, the
// call-to-action block and the mandatory disclosure.
func (p *Publisher) renderBody(content models.ComposedContent, link models.AffiliateLink) string {
	var b strings.Builder

	b.WriteString(content.Description)

	if len(content.MediaURLs) > 0 {
		fmt.Fprintf(&b, "\n\n<img src=%q alt=%q style=\"max-width: 100%%; height: auto; display: block;\">",
			content.MediaURLs[0], content.Title)
	}

	b.WriteString(p.renderCTA(link))
	b.WriteString("\n\n<small>" + channel.Disclosure + "</small>")

	return b.String()
}

func (p *Publisher) renderCTA(link models.AffiliateLink) string {
	if link.CTAImageURL != "" {
		img := fmt.Sprintf("<img decoding=\"async\" src=%q alt=\"CTA\" style=\"max-width: 100%%; height: auto; display: block; cursor: pointer;\">", link.CTAImageURL)
		return fmt.Sprintf("\n\n<a href=%q target=\"_blank\">%s</a>", link.URL, img)
	}

	label := link.CTAText
	if label == "" {
		label = "Shop Now"
	}

	return fmt.Sprintf("\n\n<a href=%q target=\"_blank\" style=\"background-color: #007bff; color: white; padding: 10px 20px; text-decoration: none; border-radius: 5px; display: inline-block;\">%s</a>",
		link.URL, label)
}

func (p *Publisher) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.cfg.Token}
}
