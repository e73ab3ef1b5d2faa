// Package ledger tracks which affiliate links have already been published.
// Dedup is best-effort: the ledger never blocks publishing, and concurrent
// runs against the same blob are unsupported (single-writer assumption,
// enforced operationally).
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"
	"github.com/vadimbarashkov/affiliate-publisher/internal/models"
	"github.com/vadimbarashkov/affiliate-publisher/internal/storage"
)

// DefaultKey is the blob key holding the used-link snapshot.
const DefaultKey = "used_affiliate_links"

// Ledger is the durable set of already-used affiliate link identifiers,
// stored as one serialized collection (read-modify-write, single PUT).
type Ledger struct {
	store  storage.Store
	key    string
	logger *slog.Logger

	mu      sync.Mutex
	records []models.UsedLinkRecord
	loaded  bool
}

func New(store storage.Store, key string, logger *slog.Logger) *Ledger {
	if key == "" {
		key = DefaultKey
	}

	return &Ledger{
		store:  store,
		key:    key,
		logger: logger,
	}
}

// loadLocked reads the persisted snapshot once; callers must hold mu.
// A missing blob is an empty ledger, not an error.
func (l *Ledger) loadLocked(ctx context.Context) error {
	const op = "ledger.Ledger.loadLocked"

	if l.loaded {
		return nil
	}

	data, err := l.store.Get(ctx, l.key)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			l.records = nil
			l.loaded = true
			return nil
		}

		return fmt.Errorf("%s: failed to load snapshot: %w", op, err)
	}

	var records []models.UsedLinkRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return fmt.Errorf("%s: failed to decode snapshot: %w", op, err)
	}

	l.records = records
	l.loaded = true

	return nil
}

// FilterUnused returns the candidates whose URL is not in the persisted
// used set. When the snapshot cannot be loaded the ledger fails open: the
// full candidate list is returned unfiltered, preferring a possible
// duplicate publish over silent link starvation.
func (l *Ledger) FilterUnused(ctx context.Context, candidates []models.AffiliateLink) []models.AffiliateLink {
	const op = "ledger.Ledger.FilterUnused"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		l.logger.Warn("ledger read failed, publishing unfiltered",
			slog.String("op", op), slog.Any("err", err))
		return candidates
	}

	used := lo.SliceToMap(l.records, func(r models.UsedLinkRecord) (string, struct{}) {
		return r.URL, struct{}{}
	})

	return lo.Filter(candidates, func(c models.AffiliateLink, _ int) bool {
		_, ok := used[c.Key()]
		return !ok
	})
}

// Commit appends records to the snapshot and overwrites the blob with one
// PUT. It returns false on any failure; the caller must not retry (a retry
// could race a later commit) but should log for operator follow-up. When the
// snapshot was never loaded successfully, Commit refuses to write rather
// than clobber the existing blob with a partial set.
func (l *Ledger) Commit(ctx context.Context, records []models.UsedLinkRecord) bool {
	const op = "ledger.Ledger.Commit"

	if len(records) == 0 {
		return true
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.loadLocked(ctx); err != nil {
		l.logger.Error("ledger snapshot unavailable, skipping commit",
			slog.String("op", op), slog.Any("err", err))
		return false
	}

	merged := append(append([]models.UsedLinkRecord{}, l.records...), records...)

	data, err := json.Marshal(merged)
	if err != nil {
		l.logger.Error("failed to encode ledger snapshot",
			slog.String("op", op), slog.Any("err", err))
		return false
	}

	if err := l.store.Put(ctx, l.key, data); err != nil {
		l.logger.Error("failed to persist ledger snapshot",
			slog.String("op", op), slog.Any("err", err))
		return false
	}

	l.records = merged

	return true
}

// Purge deletes the whole snapshot. Administrative operation: every link
// becomes eligible for publishing again.
func (l *Ledger) Purge(ctx context.Context) error {
	const op = "ledger.Ledger.Purge"

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.store.Delete(ctx, l.key); err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%s: failed to delete snapshot: %w", op, err)
	}

	l.records = nil
	l.loaded = false

	return nil
}
