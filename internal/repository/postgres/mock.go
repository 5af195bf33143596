package postgres

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
)

// MockRepository implements domain.SnapshotRepository in memory for demo
// mode, when no database is reachable
type MockRepository struct {
	mu        sync.Mutex
	snapshots []domain.Snapshot
}

// NewMockRepository creates a mock repository seeded with one day-old sample
func NewMockRepository() *MockRepository {
	return &MockRepository{
		snapshots: []domain.Snapshot{
			{
				Total:                 42,
				SevereCount:           9,
				SevereFractionPercent: 21.4,
				TopAffectedRoad:       "AP-7",
				Timestamp:             time.Now().Add(-24 * time.Hour),
				IsMock:                true,
			},
		},
	}
}

// SaveSnapshot keeps the snapshot in memory. Only the latest historyLimit
// snapshots are retained.
func (r *MockRepository) SaveSnapshot(ctx context.Context, snap domain.Snapshot) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	snap.IsMock = true
	r.snapshots = append(r.snapshots, snap)
	if n := len(r.snapshots); n > historyLimit {
		r.snapshots = append([]domain.Snapshot(nil), r.snapshots[n-historyLimit:]...)
	}
	return nil
}

// GetSnapshots returns the stored snapshots within range, newest first
func (r *MockRepository) GetSnapshots(ctx context.Context, from, to time.Time) ([]domain.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Snapshot
	for _, s := range r.snapshots {
		if s.Timestamp.Before(from) || s.Timestamp.After(to) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	if len(out) > historyLimit {
		out = out[:historyLimit]
	}
	return out, nil
}

// Health always returns nil in mock mode
func (r *MockRepository) Health(ctx context.Context) error {
	return nil
}
