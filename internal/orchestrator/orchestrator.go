// Package orchestrator drives one publishing run: gather candidate links,
// drop the already-used ones, compose content and fan it out to every
// configured channel. Channels are isolated from each other; a link is
// marked used once at least one channel accepted it.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/samber/lo"
	"github.com/vadimbarashkov/affiliate-publisher/internal/channel"
	"github.com/vadimbarashkov/affiliate-publisher/internal/composer"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/internal/source"
)

// ErrNoChannels is returned when a run is started with no publishers
// configured; such a run could only burn links.
var ErrNoChannels = errors.New("orchestrator: no channels configured")

// Deduper is the ledger surface the orchestrator needs.
type Deduper interface {
	FilterUnused(ctx context.Context, candidates []models.AffiliateLink) []models.AffiliateLink
	Commit(ctx context.Context, records []models.UsedLinkRecord) bool
}

// Composer turns one link into channel-ready content.
type Composer interface {
	Compose(ctx context.Context, rc *composer.RunContext, link models.AffiliateLink, constraints models.ChannelConstraints) (models.ComposedContent, error)
}

type Config struct {
	// RunLimit caps how many links one run may publish; 0 means unlimited.
	RunLimit int
	// TimeBudget bounds the whole run; when it elapses the run drains
	// gracefully between links instead of aborting mid-publish. 0 means
	// unbounded.
	TimeBudget time.Duration
}

type Orchestrator struct {
	sources  []source.Source
	channels []channel.Publisher
	composer Composer
	ledger   Deduper
	cfg      Config
	logger   *slog.Logger
}

func New(sources []source.Source, channels []channel.Publisher, comp Composer, led Deduper, cfg Config, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		sources:  sources,
		channels: channels,
		composer: comp,
		ledger:   led,
		cfg:      cfg,
		logger:   logger,
	}
}

// Run executes one publishing run. Seed links take priority over sourced
// ones. The returned report is valid even when the run was cut short by the
// time budget or by context cancellation.
func (o *Orchestrator) Run(ctx context.Context, seeds []models.AffiliateLink) (models.RunReport, error) {
	const op = "orchestrator.Orchestrator.Run"

	if len(o.channels) == 0 {
		return models.RunReport{}, fmt.Errorf("%s: %w", op, ErrNoChannels)
	}

	runID, err := gonanoid.New()
	if err != nil {
		return models.RunReport{}, fmt.Errorf("%s: failed to generate run id: %w", op, err)
	}

	logger := o.logger.With(slog.String("run_id", runID))
	started := time.Now()

	var deadline time.Time
	if o.cfg.TimeBudget > 0 {
		deadline = started.Add(o.cfg.TimeBudget)
	}

	links := o.gather(ctx, logger, seeds)
	links = o.ledger.FilterUnused(ctx, links)
	if o.cfg.RunLimit > 0 && len(links) > o.cfg.RunLimit {
		links = links[:o.cfg.RunLimit]
	}

	logger.Info("run started",
		slog.Int("candidate_links", len(links)), slog.Int("channels", len(o.channels)))

	report := models.RunReport{RunID: runID, LinksConsidered: len(links)}
	rc := composer.NewRunContext(o.existingTitles(ctx, logger))
	constraints := o.mergedConstraints()

	for _, link := range links {
		if err := ctx.Err(); err != nil {
			logger.Warn("run cancelled, draining", slog.Any("err", err))
			break
		}
		if !deadline.IsZero() && time.Now().After(deadline) {
			logger.Warn("time budget exhausted, draining",
				slog.Duration("budget", o.cfg.TimeBudget))
			break
		}

		attempts, composed := o.processLink(ctx, logger, rc, link, constraints)
		if !composed {
			// Dropped from this run, not exhausted: still eligible next time.
			continue
		}

		created, ok := lo.Find(attempts, func(a models.PublishAttempt) bool {
			return a.Outcome == models.OutcomeCreated
		})
		report.ChannelFailures += lo.CountBy(attempts, func(a models.PublishAttempt) bool {
			return a.Outcome == models.OutcomeFailed
		})

		if !ok {
			report.LinksExhausted++
			logger.Warn("link exhausted on all channels", slog.String("url", link.URL))
			continue
		}

		report.LinksPublished++

		// Failed commits are logged by the ledger and never retried; a
		// duplicate publish next run beats racing a concurrent commit.
		o.ledger.Commit(ctx, []models.UsedLinkRecord{{
			URL:              link.Key(),
			ChannelContentID: created.ContentID,
			Channel:          created.Channel,
		}})
	}

	report.Elapsed = time.Since(started)

	logger.Info("run finished",
		slog.Int("published", report.LinksPublished),
		slog.Int("exhausted", report.LinksExhausted),
		slog.Int("channel_failures", report.ChannelFailures),
		slog.Duration("elapsed", report.Elapsed))

	return report, nil
}

// gather collects candidates from the seeds and every source, deduplicated
// by exact URL with seed links winning. A failing source is skipped: the run
// proceeds with what the others produced.
func (o *Orchestrator) gather(ctx context.Context, logger *slog.Logger, seeds []models.AffiliateLink) []models.AffiliateLink {
	links := append([]models.AffiliateLink{}, seeds...)

	for _, src := range o.sources {
		found, err := src.Links(ctx, o.cfg.RunLimit)
		if err != nil {
			logger.Warn("source failed, skipping",
				slog.String("source", src.Name()), slog.Any("err", err))
			continue
		}
		links = append(links, found...)
	}

	return lo.UniqBy(links, models.AffiliateLink.Key)
}

// existingTitles collects titles already live on channels that can report
// them, so the composer avoids repeating published content. A failing lookup
// is skipped: title diversity is not worth blocking a run.
func (o *Orchestrator) existingTitles(ctx context.Context, logger *slog.Logger) []string {
	var titles []string

	for _, ch := range o.channels {
		lister, ok := ch.(channel.TitleLister)
		if !ok {
			continue
		}

		found, err := lister.ExistingTitles(ctx)
		if err != nil {
			logger.Warn("existing titles lookup failed, skipping",
				slog.String("channel", ch.Name()), slog.Any("err", err))
			continue
		}
		titles = append(titles, found...)
	}

	return lo.Uniq(titles)
}

// processLink composes once under the merged constraints and publishes to
// every channel sequentially. A panicking channel adapter is confined to its
// own attempt.
func (o *Orchestrator) processLink(ctx context.Context, logger *slog.Logger, rc *composer.RunContext, link models.AffiliateLink, constraints models.ChannelConstraints) ([]models.PublishAttempt, bool) {
	content, err := o.composer.Compose(ctx, rc, link, constraints)
	if err != nil {
		logger.Warn("composition aborted", slog.String("url", link.URL), slog.Any("err", err))
		return nil, false
	}

	attempts := make([]models.PublishAttempt, 0, len(o.channels))
	offset := 0
	for _, ch := range o.channels {
		demand := ch.Constraints().MediaPerItem

		view := content
		view.MediaURLs = mediaWindow(content.MediaURLs, offset, demand)
		if demand > 0 {
			offset += demand
		}

		attempt := o.publishOne(ctx, ch, view, link)
		attempts = append(attempts, attempt)

		switch attempt.Outcome {
		case models.OutcomeCreated:
			logger.Info("published",
				slog.String("channel", attempt.Channel),
				slog.String("content_id", attempt.ContentID),
				slog.String("url", link.URL))
		case models.OutcomeSkipped:
			logger.Info("channel skipped link",
				slog.String("channel", attempt.Channel),
				slog.String("reason", attempt.Reason),
				slog.String("url", link.URL))
		case models.OutcomeFailed:
			logger.Error("channel publish failed",
				slog.String("channel", attempt.Channel),
				slog.String("url", link.URL),
				slog.Any("err", attempt.Err))
		}
	}

	return attempts, true
}

// mediaWindow hands each consumer its own slice of the composed images so
// channels do not repeat one another's visuals. When the composer found
// fewer images than the summed demand, the later consumers share the last
// image instead of going without.
func mediaWindow(urls []string, offset, n int) []string {
	if n <= 0 || len(urls) == 0 {
		return nil
	}
	if offset+n <= len(urls) {
		return urls[offset : offset+n]
	}
	if offset < len(urls) {
		return urls[offset:]
	}
	return urls[len(urls)-1:]
}

func (o *Orchestrator) publishOne(ctx context.Context, ch channel.Publisher, content models.ComposedContent, link models.AffiliateLink) (attempt models.PublishAttempt) {
	defer func() {
		if r := recover(); r != nil {
			attempt = models.Failed(ch.Name(), fmt.Errorf("publisher panicked: %v", r))
		}
	}()

	return ch.Publish(ctx, content, link)
}

// mergedConstraints computes the constraints content is composed under so a
// single composition satisfies every channel: tightest text budgets, widest
// keyword allowance, enough media for all consumers.
func (o *Orchestrator) mergedConstraints() models.ChannelConstraints {
	var merged models.ChannelConstraints

	for _, ch := range o.channels {
		cons := ch.Constraints()

		if cons.TitleMaxLen > 0 && (merged.TitleMaxLen == 0 || cons.TitleMaxLen < merged.TitleMaxLen) {
			merged.TitleMaxLen = cons.TitleMaxLen
		}
		if cons.DescriptionMaxLen > 0 && (merged.DescriptionMaxLen == 0 || cons.DescriptionMaxLen < merged.DescriptionMaxLen) {
			merged.DescriptionMaxLen = cons.DescriptionMaxLen
		}
		if cons.MaxKeywords > merged.MaxKeywords {
			merged.MaxKeywords = cons.MaxKeywords
		}
		merged.MediaPerItem += cons.MediaPerItem
		merged.RequiresMedia = merged.RequiresMedia || cons.RequiresMedia
	}

	return merged
}
