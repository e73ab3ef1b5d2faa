package models

import "time"

// AffiliateLink represents a monetized URL together with the marketing
// metadata used to generate content for it. Links are immutable once
// produced by a source.
type AffiliateLink struct {
	// URL is the affiliate URL and the unique business key of the link.
	URL string `json:"url" yaml:"url" validate:"required,url"`
	// ProductTitle is the product name as reported by the program source.
	ProductTitle string `json:"product_title,omitempty" yaml:"product_title"`
	// Categories is an ordered, non-empty list of tags; the first entry is
	// the primary category.
	Categories []string `json:"categories" yaml:"categories" validate:"required,min=1,dive,required"`
	// ThumbnailURL optionally points at a product image.
	ThumbnailURL string `json:"thumbnail_url,omitempty" yaml:"thumbnail_url"`
	// CTAImageURL optionally points at a call-to-action banner.
	CTAImageURL string `json:"cta_image_url,omitempty" yaml:"cta_image_url"`
	// CTAText optionally overrides the call-to-action button label.
	CTAText string `json:"cta_text,omitempty" yaml:"cta_text"`
}

// Key returns the identity used for ledger deduplication. Matching is by
// exact URL string: no trailing-slash or query-parameter normalization.
func (l AffiliateLink) Key() string {
	return l.URL
}

// PrimaryCategory returns the first category or "Others" when the link
// carries none.
func (l AffiliateLink) PrimaryCategory() string {
	if len(l.Categories) == 0 {
		return "Others"
	}
	return l.Categories[0]
}

// UsedLinkRecord is the persisted fact that a link has been published.
// Records are created once when a publish to at least one channel succeeds
// and are never mutated afterwards.
type UsedLinkRecord struct {
	URL              string `json:"url"`
	ChannelContentID string `json:"channel_content_id,omitempty"`
	Channel          string `json:"channel,omitempty"`
}

// ComposedContent is the channel-ready material derived from a link.
// It is never persisted; every run regenerates it.
type ComposedContent struct {
	Title       string
	Description string
	// Keywords is ordered and already filtered against the forbidden-term set.
	Keywords []string
	// MediaURLs is ordered by relevance.
	MediaURLs []string
}

// ChannelConstraints describes the content limits a channel imposes.
type ChannelConstraints struct {
	TitleMaxLen       int
	DescriptionMaxLen int
	MaxKeywords       int
	// RequiresMedia marks channels that cannot publish without an image.
	RequiresMedia bool
	// MediaPerItem is how many images the channel consumes per publish.
	MediaPerItem int
}

// AttemptOutcome is the result classification of a single publish attempt.
type AttemptOutcome int

const (
	OutcomeCreated AttemptOutcome = iota
	OutcomeSkipped
	OutcomeFailed
)

func (o AttemptOutcome) String() string {
	switch o {
	case OutcomeCreated:
		return "created"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// PublishAttempt is the transient outcome of publishing one link to one
// channel.
type PublishAttempt struct {
	Channel   string
	Outcome   AttemptOutcome
	ContentID string
	Reason    string
	Err       error
}

// Created builds a successful attempt carrying the channel-side content id.
func Created(channel, contentID string) PublishAttempt {
	return PublishAttempt{Channel: channel, Outcome: OutcomeCreated, ContentID: contentID}
}

// Skipped builds an attempt for a channel that declined the content.
func Skipped(channel, reason string) PublishAttempt {
	return PublishAttempt{Channel: channel, Outcome: OutcomeSkipped, Reason: reason}
}

// Failed builds an attempt for a channel that rejected the content.
func Failed(channel string, err error) PublishAttempt {
	return PublishAttempt{Channel: channel, Outcome: OutcomeFailed, Err: err}
}

// RunReport aggregates the observable counts of one orchestrator run.
type RunReport struct {
	RunID           string        `json:"run_id"`
	LinksConsidered int           `json:"links_considered"`
	LinksPublished  int           `json:"links_published"`
	LinksExhausted  int           `json:"links_exhausted"`
	ChannelFailures int           `json:"channel_failures"`
	Elapsed         time.Duration `json:"elapsed"`
}
