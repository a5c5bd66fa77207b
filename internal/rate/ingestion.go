package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fxquotes/internal/adapters"
	"fxquotes/internal/calendar"
	"fxquotes/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// RunAt is the local wall-clock time of the daily ingestion.
type RunAt struct {
	Hour   int
	Minute int
}

// IngestionScheduler is the single writer of the daily feed. It backfills the
// retention window on first start, then once per trading day fetches that day,
// stores it and prunes quotes that left the window.
type IngestionScheduler struct {
	repo     adapters.QuoteRepository
	feed     adapters.FeedClient
	calendar *calendar.Calendar
	window   Window
	runAt    RunAt
	metrics  *metrics.Metrics
}

// Run blocks until ctx is canceled. Cycle failures are logged and never end the loop.
func (s *IngestionScheduler) Run(ctx context.Context) error {
	logrus.WithFields(logrus.Fields{
		"run_at":           fmt.Sprintf("%02d:%02d", s.runAt.Hour, s.runAt.Minute),
		"location":         s.window.Location.String(),
		"retention_months": s.window.Months,
	}).Info("✅ Ingestion scheduler started")

	// the empty-store check only applies to the first attempt: a failed backfill
	// leaves rows behind, so retries resume it directly
	backfill := s.backfillIfEmpty
	var lastRun time.Time
	for {
		if backfill != nil {
			if err := backfill(ctx); err != nil {
				if ctx.Err() != nil {
					return nil
				}
				logrus.WithError(err).Error("Backfill failed, will retry after the next cycle")
				backfill = s.resumeBackfill
			} else {
				backfill = nil
			}
		}

		from := s.window.Clock.Now()
		if !lastRun.IsZero() && !from.After(lastRun) {
			from = lastRun.Add(time.Nanosecond)
		}
		next := s.NextRun(from)
		logrus.WithField("next_run", next.Format(time.RFC3339)).Info("Waiting for next ingestion")

		if err := s.wait(ctx, next); err != nil {
			logrus.Info("Ingestion scheduler stopped")
			return nil
		}
		lastRun = next
		s.RunCycle(ctx)
	}
}

// NextRun returns the first run instant at or after now that falls on a trading day.
func (s *IngestionScheduler) NextRun(now time.Time) time.Time {
	day := calendar.DateOf(now, s.window.Location)
	for {
		candidate := time.Date(day.Year(), day.Month(), day.Day(), s.runAt.Hour, s.runAt.Minute, 0, 0, s.window.Location)
		if !now.After(candidate) && s.calendar.IsTradingDay(day) {
			return candidate
		}
		day = day.AddDate(0, 0, 1)
	}
}

func (s *IngestionScheduler) wait(ctx context.Context, until time.Time) error {
	d := until.Sub(s.window.Clock.Now())
	if d <= 0 {
		return ctx.Err()
	}
	timer := s.window.Clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.Chan():
		return nil
	}
}

func (s *IngestionScheduler) backfillIfEmpty(ctx context.Context) error {
	hasAny, err := s.repo.HasAny(ctx)
	if err != nil {
		return err
	}
	if hasAny {
		return nil
	}
	_, err = s.Backfill(ctx)
	return err
}

func (s *IngestionScheduler) resumeBackfill(ctx context.Context) error {
	_, err := s.Backfill(ctx)
	return err
}

// Backfill fetches every date of the retention window that has no stored quotes,
// oldest first, and returns the dates it stored. Fetch failures and empty days are
// skipped. A storage failure aborts the run.
func (s *IngestionScheduler) Backfill(ctx context.Context) ([]time.Time, error) {
	execID := uuid.NewString()
	today := s.window.Today()
	start := s.window.Start(today)
	log := logrus.WithFields(logrus.Fields{"exec_id": execID, "from": start.Format(time.DateOnly), "to": today.Format(time.DateOnly)})
	log.Info("Backfill started")

	var stored []time.Time
	var inserted int64
	for d := range calendar.Days(start, today) {
		if err := ctx.Err(); err != nil {
			return stored, err
		}
		dayLog := log.WithField("date", d.Format(time.DateOnly))

		exists, err := s.repo.ExistsForDate(ctx, d)
		if err != nil {
			return stored, err
		}
		if exists {
			continue
		}

		quotes, err := s.feed.Fetch(ctx, d)
		if err != nil {
			if ctx.Err() != nil {
				return stored, ctx.Err()
			}
			dayLog.WithError(err).Warn("Backfill fetch failed, skipping date")
			continue
		}
		if len(quotes) == 0 {
			dayLog.Debug("No quotes published, skipping date")
			continue
		}

		n, err := s.repo.Upsert(ctx, quotes)
		if err != nil {
			return stored, err
		}
		s.metrics.QuotesInsertedTotal.Add(float64(n))
		inserted += n
		stored = append(stored, d)
	}

	log.WithFields(logrus.Fields{"days": len(stored), "inserted": inserted}).Info("✅ Backfill finished")
	return stored, nil
}

// RunCycle fetches today's quotes and prunes the store. Pruning runs whatever the fetch outcome.
func (s *IngestionScheduler) RunCycle(ctx context.Context) {
	today := s.window.Today()
	log := logrus.WithFields(logrus.Fields{"exec_id": uuid.NewString(), "date": today.Format(time.DateOnly)})

	outcome := s.ingest(ctx, log, today)
	s.metrics.IngestionCyclesTotal.WithLabelValues(outcome).Inc()
	s.prune(ctx, log, today)
}

func (s *IngestionScheduler) ingest(ctx context.Context, log *logrus.Entry, today time.Time) string {
	if !s.calendar.IsTradingDay(today) {
		log.Info("Not a trading day, skipping fetch")
		return "skipped"
	}

	exists, err := s.repo.ExistsForDate(ctx, today)
	if err != nil {
		log.WithError(err).Error("Failed to check stored quotes")
		return "failed"
	}
	if exists {
		log.Info("Quotes already stored, skipping fetch")
		return "skipped"
	}

	quotes, err := s.feed.Fetch(ctx, today)
	if err != nil {
		log.WithError(err).Warn("Fetch failed, next run will try again")
		return "failed"
	}
	if len(quotes) == 0 {
		log.Warn("Feed published no quotes")
		return "empty"
	}

	inserted, err := s.repo.Upsert(ctx, quotes)
	if err != nil {
		log.WithError(err).Error("Failed to store quotes")
		return "failed"
	}
	s.metrics.QuotesInsertedTotal.Add(float64(inserted))
	log.WithField("inserted", inserted).Info("✅ Quotes ingested")
	return "fetched"
}

func (s *IngestionScheduler) prune(ctx context.Context, log *logrus.Entry, today time.Time) {
	cutoff := s.window.Start(today)
	deleted, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			log.WithError(err).Error("Failed to prune quotes")
		}
		return
	}
	s.metrics.QuotesPrunedTotal.Add(float64(deleted))
	log.WithFields(logrus.Fields{"cutoff": cutoff.Format(time.DateOnly), "deleted": deleted}).Info("Pruned quotes outside retention window")
}

func NewIngestionScheduler(
	repo adapters.QuoteRepository,
	feed adapters.FeedClient,
	cal *calendar.Calendar,
	window Window,
	runAt RunAt,
	m *metrics.Metrics,
) *IngestionScheduler {
	return &IngestionScheduler{repo: repo, feed: feed, calendar: cal, window: window, runAt: runAt, metrics: m}
}
