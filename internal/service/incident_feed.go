package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/smartcity/racc-dashboard/internal/domain"
	"github.com/smartcity/racc-dashboard/internal/incident"
	"github.com/smartcity/racc-dashboard/internal/metrics"
	"github.com/smartcity/racc-dashboard/pkg/utils"
)

// IncidentSource fetches the raw incident list
type IncidentSource interface {
	FetchIncidents(ctx context.Context) ([]domain.Incident, error)
}

// IncidentFeed keeps the latest raw incident set fresh by polling and
// serves filtered views over it
type IncidentFeed struct {
	source   IncidentSource
	repo     domain.SnapshotRepository
	interval time.Duration
	topN     int
	logger   *slog.Logger

	intervalChanged chan struct{}

	mu        sync.RWMutex
	incidents []domain.Incident
	fetchedAt time.Time

	wg   sync.WaitGroup // in-flight polls
	wgBg sync.WaitGroup // tracks background goroutines for graceful shutdown
}

// NewIncidentFeed creates a feed with an empty incident set
func NewIncidentFeed(source IncidentSource, repo domain.SnapshotRepository, interval time.Duration, topN int, logger *slog.Logger) *IncidentFeed {
	if topN <= 0 {
		topN = incident.DefaultRankingSize
	}
	return &IncidentFeed{
		source:    source,
		repo:      repo,
		interval:  interval,
		topN:      topN,
		logger:    logger.With("component", "incident_feed"),
		incidents: []domain.Incident{},

		intervalChanged: make(chan struct{}, 1),
	}
}

// Interval returns the current poll period
func (f *IncidentFeed) Interval() time.Duration {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.interval
}

// SetInterval changes the poll period. A running feed restarts its ticker
// with the new period; non-positive values are ignored.
func (f *IncidentFeed) SetInterval(d time.Duration) {
	if d <= 0 {
		return
	}
	f.mu.Lock()
	changed := d != f.interval
	f.interval = d
	f.mu.Unlock()
	if !changed {
		return
	}

	select {
	case f.intervalChanged <- struct{}{}:
	default:
	}
	f.logger.Info("Poll interval changed", "interval", d)
}

// Run polls immediately and then on every tick until ctx is cancelled.
// Ticks are not serialized: each poll runs in its own goroutine and the
// most recently completed one replaces the set. Run waits for in-flight
// polls before returning.
func (f *IncidentFeed) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.Interval())
	defer ticker.Stop()
	defer f.wg.Wait()

	f.spawnPoll(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			f.spawnPoll(ctx)
		case <-f.intervalChanged:
			ticker.Reset(f.Interval())
		}
	}
}

func (f *IncidentFeed) spawnPoll(ctx context.Context) {
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		_ = f.Poll(ctx)
	}()
}

// Poll fetches the incident list once. On failure the previous set is kept.
func (f *IncidentFeed) Poll(ctx context.Context) error {
	start := time.Now()
	incidents, err := f.source.FetchIncidents(ctx)
	if err != nil {
		metrics.PollDuration.WithLabelValues("error").Observe(time.Since(start).Seconds())
		f.logger.Warn("Incident poll failed, keeping previous set", "error", err)
		return err
	}
	metrics.PollDuration.WithLabelValues("ok").Observe(time.Since(start).Seconds())

	now := time.Now()
	f.mu.Lock()
	f.incidents = incidents
	f.fetchedAt = now
	f.mu.Unlock()

	summary := incident.Aggregate(incidents, 1)
	metrics.IncidentsCurrent.Set(float64(summary.Total))
	metrics.SevereFraction.Set(summary.SevereFractionPercent)
	f.logger.Debug("Incident set replaced", "total", summary.Total, "severe", summary.SevereCount)

	f.saveSnapshot(domain.Snapshot{
		Total:                 summary.Total,
		SevereCount:           summary.SevereCount,
		SevereFractionPercent: utils.RoundTo(summary.SevereFractionPercent, 2),
		TopAffectedRoad:       summary.TopAffectedRoad,
		Timestamp:             now,
	})
	return nil
}

// saveSnapshot persists asynchronously (tracked for graceful shutdown)
func (f *IncidentFeed) saveSnapshot(snap domain.Snapshot) {
	if f.repo == nil {
		return
	}
	f.wgBg.Add(1)
	go func() {
		defer f.wgBg.Done()
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := f.repo.SaveSnapshot(bgCtx, snap); err != nil {
			f.logger.Warn("Failed to save incident snapshot", "error", err)
		}
	}()
}

// WaitBackground blocks until all background save goroutines complete.
// Call during graceful shutdown to avoid dropped writes.
func (f *IncidentFeed) WaitBackground() {
	f.wgBg.Wait()
}

// Incidents returns the latest raw set and when it was fetched
func (f *IncidentFeed) Incidents() ([]domain.Incident, time.Time) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.incidents, f.fetchedAt
}

// View runs the filter/aggregate pipeline over the latest set. topN <= 0
// uses the feed default.
func (f *IncidentFeed) View(c domain.Criteria, topN int) domain.IncidentView {
	if topN <= 0 {
		topN = f.topN
	}
	incidents, fetchedAt := f.Incidents()
	return incident.View(incidents, c, topN, fetchedAt)
}

// Markers returns map markers for the filtered latest set
func (f *IncidentFeed) Markers(c domain.Criteria, radius int) []domain.Marker {
	incidents, _ := f.Incidents()
	return incident.Markers(incident.Filter(incidents, c), radius)
}

// History returns persisted snapshots from the last window, newest first
func (f *IncidentFeed) History(ctx context.Context, window time.Duration) ([]domain.Snapshot, error) {
	if f.repo == nil {
		return []domain.Snapshot{}, nil
	}
	to := time.Now()
	snaps, err := f.repo.GetSnapshots(ctx, to.Add(-window), to)
	if err != nil {
		return nil, err
	}
	if snaps == nil {
		snaps = []domain.Snapshot{}
	}
	return snaps, nil
}
