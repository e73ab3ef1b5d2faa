// Package source defines where candidate affiliate links come from. Each
// affiliate program contributes one Source; the orchestrator treats source
// failures as an empty yield, never as a run abort.
package source

import (
	"context"

	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
)

// Source yields candidate affiliate links for one program.
type Source interface {
	Name() string
	Links(ctx context.Context, limit int) ([]models.AffiliateLink, error)
}
