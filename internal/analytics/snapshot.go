package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/bookmark-search/internal/indexer/store"
)

// SnapshotPrefix namespaces analytics snapshots inside the blob store.
const SnapshotPrefix = "analytics/"

// SnapshotStore persists aggregated stats next to the index, in whatever
// blob store the index uses.
type SnapshotStore struct {
	store  store.Store
	logger *slog.Logger
}

func NewSnapshotStore(st store.Store) *SnapshotStore {
	return &SnapshotStore{
		store:  st,
		logger: slog.Default().With("component", "analytics-store"),
	}
}

func snapshotName(t time.Time) string {
	return fmt.Sprintf("%sstats_%020d", SnapshotPrefix, t.UnixNano())
}

// Save writes stats under a name ordered by capture time.
func (s *SnapshotStore) Save(ctx context.Context, stats AggregatedStats) error {
	data, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshaling stats: %w", err)
	}
	if err := s.store.Put(ctx, snapshotName(stats.CapturedAt), data); err != nil {
		return fmt.Errorf("saving analytics snapshot: %w", err)
	}
	s.logger.Debug("analytics snapshot saved", "total_searches", stats.TotalSearches)
	return nil
}

// Latest returns the most recent snapshot, or store.ErrNotFound.
func (s *SnapshotStore) Latest(ctx context.Context) (AggregatedStats, error) {
	names, err := s.store.List(ctx, SnapshotPrefix)
	if err != nil {
		return AggregatedStats{}, fmt.Errorf("listing analytics snapshots: %w", err)
	}
	if len(names) == 0 {
		return AggregatedStats{}, store.ErrNotFound
	}
	data, err := s.store.Get(ctx, names[len(names)-1])
	if err != nil {
		return AggregatedStats{}, err
	}
	var stats AggregatedStats
	if err := json.Unmarshal(data, &stats); err != nil {
		return AggregatedStats{}, fmt.Errorf("parsing analytics snapshot: %w", err)
	}
	return stats, nil
}

// Prune keeps the newest keep snapshots and deletes the rest.
func (s *SnapshotStore) Prune(ctx context.Context, keep int) (int, error) {
	names, err := s.store.List(ctx, SnapshotPrefix)
	if err != nil {
		return 0, fmt.Errorf("listing analytics snapshots: %w", err)
	}
	removed := 0
	for len(names)-removed > keep {
		if err := s.store.Delete(ctx, names[removed]); err != nil {
			return removed, fmt.Errorf("deleting %s: %w", names[removed], err)
		}
		removed++
	}
	return removed, nil
}

// Run saves a snapshot of agg every interval until ctx is done, keeping
// the newest keep snapshots.
func (s *SnapshotStore) Run(ctx context.Context, agg *Aggregator, interval time.Duration, keep int) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Save(ctx, agg.Stats()); err != nil {
				s.logger.Error("analytics snapshot failed", "error", err)
				continue
			}
			if _, err := s.Prune(ctx, keep); err != nil {
				s.logger.Warn("analytics snapshot prune failed", "error", err)
			}
		}
	}
}
