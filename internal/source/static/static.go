// Package static yields a fixed set of affiliate links declared in
// configuration. Programs with stable referral URLs (service marketplaces,
// subscription products) are wired this way.
package static

import (
	"context"

	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

type Source struct {
	name  string
	links []models.AffiliateLink
}

func New(name string, links []models.AffiliateLink) *Source {
	return &Source{
		name:  name,
		links: links,
	}
}

func (s *Source) Name() string {
	return s.name
}

func (s *Source) Links(ctx context.Context, limit int) ([]models.AffiliateLink, error) {
	links := s.links
	if limit > 0 && len(links) > limit {
		links = links[:limit]
	}

	out := make([]models.AffiliateLink, len(links))
	copy(out, links)

	return out, nil
}
