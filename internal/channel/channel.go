// Package channel defines the publishing contract every channel adapter
// implements. Adapters report failures through the attempt, never by
// panicking past the orchestrator boundary.
package channel

import (
	"context"

	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

// Disclosure is required by the affiliate programs and is appended verbatim
// to every piece of monetized content.
const Disclosure = "Disclosure: We do not work for any company of the products or services mentioned. At no extra cost to you, we may earn a small commission from purchases made through links here. This income helps support creating more content for you. Thank you for your support!"

// Publisher publishes composed content for one channel.
type Publisher interface {
	Name() string
	Constraints() models.ChannelConstraints

	// Publish creates content on the channel for the link. It is called at
	// most once per link per run and resolves its channel-side grouping
	// entity (category, board) idempotently before creating content.
	Publish(ctx context.Context, content models.ComposedContent, link models.AffiliateLink) models.PublishAttempt
}

// TitleLister is implemented by publishers that can report titles already
// live on their site. Those titles seed the avoidance set new content is
// generated against.
type TitleLister interface {
	ExistingTitles(ctx context.Context) ([]string, error)
}
