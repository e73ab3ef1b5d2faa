// Package composer turns an affiliate link into channel-ready content. Every
// generation step has a deterministic fallback: the pipeline must keep
// publishing through a provider outage.
package composer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/samber/lo"
	"github.com/vadimbarashkov/affiliate-publisher/internal/fetch"
	"github.com/vadimbarashkov/affiliate-publisher/internal/llm"
	"github.com/vadimbarashkov/affiliate-publisher/internal/media"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

const truncationTerminator = "…"

type Config struct {
	// ForbiddenTerms are brand terms the affiliate programs disallow in
	// keywords; matching is case-insensitive on substrings.
	ForbiddenTerms []string
	KeywordLimit   int
}

// RunContext carries per-run composer state. It exists so nothing leaks
// across runs: media dedup and title diversity are both scoped to one run.
type RunContext struct {
	// ExistingTitles is the avoidance set for title generation: seeded with
	// titles already live on the target site, grown with each composition.
	ExistingTitles []string

	usedMedia map[string]struct{}
}

func NewRunContext(existingTitles []string) *RunContext {
	return &RunContext{
		ExistingTitles: existingTitles,
		usedMedia:      make(map[string]struct{}),
	}
}

type Composer struct {
	llm    llm.Client
	media  media.Searcher
	policy fetch.Policy
	cfg    Config
	logger *slog.Logger
}

func New(llmClient llm.Client, searcher media.Searcher, policy fetch.Policy, cfg Config, logger *slog.Logger) *Composer {
	if cfg.KeywordLimit <= 0 {
		cfg.KeywordLimit = 3
	}

	return &Composer{
		llm:    llmClient,
		media:  searcher,
		policy: policy,
		cfg:    cfg,
		logger: logger,
	}
}

// generate routes a prompt through the retry policy, so a transient provider
// failure is retried with backoff before any fallback engages.
func (c *Composer) generate(ctx context.Context, prompt string) (string, error) {
	return fetch.Do(ctx, c.policy, func(ctx context.Context) (string, error) {
		return c.llm.Generate(ctx, prompt)
	})
}

// Compose builds content for one link under the given constraints. Provider
// failures degrade to deterministic fallbacks; the only error Compose
// returns is context cancellation.
func (c *Composer) Compose(ctx context.Context, rc *RunContext, link models.AffiliateLink, constraints models.ChannelConstraints) (models.ComposedContent, error) {
	const op = "composer.Composer.Compose"

	if err := ctx.Err(); err != nil {
		return models.ComposedContent{}, fmt.Errorf("%s: %w", op, err)
	}

	title := c.title(ctx, rc, link, constraints.TitleMaxLen)
	description := c.description(ctx, title, link, constraints.DescriptionMaxLen)
	keywords := c.keywords(ctx, link, constraints.MaxKeywords)
	mediaURLs := c.mediaURLs(ctx, rc, title, link, constraints.MediaPerItem)

	// Later links in the run steer away from this title.
	rc.ExistingTitles = append(rc.ExistingTitles, title)

	return models.ComposedContent{
		Title:       title,
		Description: description,
		Keywords:    keywords,
		MediaURLs:   mediaURLs,
	}, nil
}

func (c *Composer) title(ctx context.Context, rc *RunContext, link models.AffiliateLink, budget int) string {
	const op = "composer.Composer.title"

	title, err := c.generateBudgeted(ctx, budget, func(chars int) string {
		parts := []string{
			fmt.Sprintf("I run a website about %s.", strings.Join(link.Categories, ", ")),
			fmt.Sprintf("Give me one SEO-friendly, time-agnostic title for an article about %q.", link.ProductTitle),
			"Do not name the product directly.",
		}
		if len(rc.ExistingTitles) > 0 {
			parts = append(parts, fmt.Sprintf("Avoid overlapping with these existing titles: %s.", strings.Join(rc.ExistingTitles, "; ")))
		}
		if chars > 0 {
			parts = append(parts, fmt.Sprintf("At most %d characters.", chars))
		}
		parts = append(parts, "Return the title only.")
		return strings.Join(parts, " ")
	})
	if err != nil {
		c.logger.Warn("title generation failed, falling back to category",
			slog.String("op", op), slog.String("url", link.URL), slog.Any("err", err))
		return Truncate(link.PrimaryCategory(), budget)
	}

	return title
}

func (c *Composer) description(ctx context.Context, title string, link models.AffiliateLink, budget int) string {
	const op = "composer.Composer.description"

	description, err := c.generateBudgeted(ctx, budget, func(chars int) string {
		parts := []string{
			fmt.Sprintf("Write a description for an article titled %q that is SEO friendly, time-agnostic and suitable for affiliate marketing.", title),
		}
		if chars > 0 {
			parts = append(parts, fmt.Sprintf("At most %d characters.", chars))
		}
		parts = append(parts, "Return the description only.")
		return strings.Join(parts, " ")
	})
	if err != nil {
		c.logger.Warn("description generation failed, falling back to template",
			slog.String("op", op), slog.String("url", link.URL), slog.Any("err", err))
		return Truncate(fmt.Sprintf("Discover the latest trends in %s to inspire your next purchase!", title), budget)
	}

	return description
}

// generateBudgeted asks the provider once, re-asks once with a reduced
// budget when the result overflows, and hard-truncates as a last resort.
func (c *Composer) generateBudgeted(ctx context.Context, budget int, prompt func(chars int) string) (string, error) {
	text, err := c.generate(ctx, prompt(budget))
	if err != nil {
		return "", err
	}

	if budget > 0 && utf8.RuneCountInString(text) > budget {
		retried, err := c.generate(ctx, prompt(budget*3/4))
		if err == nil {
			text = retried
		}
	}

	return Truncate(strings.TrimSpace(text), budget), nil
}

func (c *Composer) keywords(ctx context.Context, link models.AffiliateLink, limit int) []string {
	const op = "composer.Composer.keywords"

	if limit <= 0 {
		limit = c.cfg.KeywordLimit
	}

	prompt := fmt.Sprintf(
		"Give me %d SEO keywords for affiliate content about %s, separated by commas. Return the keywords only.",
		limit, strings.Join(link.Categories, ", "))

	raw, err := c.generate(ctx, prompt)
	if err != nil {
		c.logger.Warn("keyword generation failed, falling back to categories",
			slog.String("op", op), slog.String("url", link.URL), slog.Any("err", err))
		return c.filterKeywords(link.Categories, limit)
	}

	return c.filterKeywords(strings.Split(raw, ","), limit)
}

func (c *Composer) filterKeywords(raw []string, limit int) []string {
	keywords := lo.FilterMap(raw, func(kw string, _ int) (string, bool) {
		kw = strings.TrimSpace(kw)
		return kw, kw != "" && !c.isForbidden(kw)
	})

	keywords = lo.Uniq(keywords)
	if len(keywords) > limit {
		keywords = keywords[:limit]
	}

	return keywords
}

func (c *Composer) isForbidden(keyword string) bool {
	lower := strings.ToLower(keyword)

	return lo.SomeBy(c.cfg.ForbiddenTerms, func(term string) bool {
		return term != "" && strings.Contains(lower, strings.ToLower(term))
	})
}

// mediaURLs finds count images for the content, skipping images already
// used by another link in the same run so a batch never repeats a visual.
func (c *Composer) mediaURLs(ctx context.Context, rc *RunContext, title string, link models.AffiliateLink, count int) []string {
	const op = "composer.Composer.mediaURLs"

	if count <= 0 {
		return nil
	}

	// Over-fetch to survive the dedup filter.
	found, err := c.media.Search(ctx, title, count+len(rc.usedMedia))
	if err != nil {
		c.logger.Warn("image search failed, continuing without media",
			slog.String("op", op), slog.String("url", link.URL), slog.Any("err", err))
	}
	if len(found) == 0 && title != link.PrimaryCategory() {
		found, err = c.media.Search(ctx, link.PrimaryCategory(), count+len(rc.usedMedia))
		if err != nil {
			c.logger.Warn("fallback image search failed, continuing without media",
				slog.String("op", op), slog.String("url", link.URL), slog.Any("err", err))
		}
	}

	var urls []string
	for _, u := range found {
		if len(urls) >= count {
			break
		}
		if _, used := rc.usedMedia[u]; used {
			continue
		}

		rc.usedMedia[u] = struct{}{}
		urls = append(urls, u)
	}

	return urls
}

// Truncate trims s to max runes, appending a terminator. Counting runes
// guarantees a multibyte character is never cut in half. max <= 0 means
// unbounded.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}

	runes := []rune(s)
	return string(runes[:max-1]) + truncationTerminator
}
