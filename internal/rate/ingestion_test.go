package rate

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"fxquotes/internal/calendar"
	"fxquotes/internal/domain"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"
)

// fetchRecorder is a feed that publishes one USD quote per trading day.
type fetchRecorder struct {
	mu    sync.Mutex
	cal   *calendar.Calendar
	dates []time.Time
	fail  map[string]error
}

func newFetchRecorder() *fetchRecorder {
	return &fetchRecorder{cal: newTestCalendar(), fail: map[string]error{}}
}

func (f *fetchRecorder) Fetch(_ context.Context, date time.Time) ([]domain.Quote, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dates = append(f.dates, date)
	if err, ok := f.fail[date.Format(time.DateOnly)]; ok {
		return nil, err
	}
	if !f.cal.IsTradingDay(date) {
		return []domain.Quote{}, nil
	}
	return []domain.Quote{quote("USD", date, "31.1902")}, nil
}

func (f *fetchRecorder) Calls() []time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]time.Time(nil), f.dates...)
}

func newTestIngestion(now time.Time, repo *memRepository, feed *fetchRecorder) (*IngestionScheduler, *clockwork.FakeClock) {
	window, clock := newTestWindow(now)
	return NewIngestionScheduler(repo, feed, newTestCalendar(), window, RunAt{Hour: 15, Minute: 30}, newTestMetrics()), clock
}

func at(y int, m time.Month, d, hh, mm int) time.Time {
	return time.Date(y, m, d, hh, mm, 0, 0, istanbul)
}

// --- NextRun ---

func TestIngestionScheduler_NextRun(t *testing.T) {
	s, _ := newTestIngestion(at(2024, time.March, 1, 10, 0), newMemRepository(), newFetchRecorder())

	cases := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{name: "before run time on trading day", now: at(2024, time.March, 1, 10, 0), want: at(2024, time.March, 1, 15, 30)},
		{name: "exactly at run time", now: at(2024, time.March, 1, 15, 30), want: at(2024, time.March, 1, 15, 30)},
		{name: "after run time on friday", now: at(2024, time.March, 1, 15, 31), want: at(2024, time.March, 4, 15, 30)},
		{name: "saturday morning", now: at(2024, time.March, 2, 9, 0), want: at(2024, time.March, 4, 15, 30)},
		{name: "skips new year holiday", now: at(2024, time.December, 31, 16, 0), want: at(2025, time.January, 2, 15, 30)},
		{name: "instant given in utc", now: time.Date(2024, time.March, 1, 13, 0, 0, 0, time.UTC), want: at(2024, time.March, 4, 15, 30)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := s.NextRun(tc.now)
			require.True(t, tc.want.Equal(got), "want %s, got %s", tc.want, got)
		})
	}
}

// --- Backfill ---

func TestIngestionScheduler_Backfill_StoresTradingDaysOnly(t *testing.T) {
	repo := newMemRepository()
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)
	cal := newTestCalendar()

	stored, err := s.Backfill(context.Background())
	require.NoError(t, err)

	var tradingDays, allDays int
	for d := range calendar.Days(day(2024, time.January, 1), day(2024, time.March, 1)) {
		allDays++
		if cal.IsTradingDay(d) {
			tradingDays++
		}
	}
	require.Len(t, stored, tradingDays)
	require.Equal(t, tradingDays, repo.Len())
	require.Len(t, feed.Calls(), allDays)

	calls := feed.Calls()
	require.Equal(t, day(2024, time.January, 1), calls[0])
	require.Equal(t, day(2024, time.March, 1), calls[len(calls)-1])
	require.Equal(t, float64(tradingDays), testutil.ToFloat64(s.metrics.QuotesInsertedTotal))
}

func TestIngestionScheduler_Backfill_SkipsStoredDates(t *testing.T) {
	stored := day(2024, time.February, 1)
	repo := newMemRepository(quote("EUR", stored, "34.0"))
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)

	_, err := s.Backfill(context.Background())
	require.NoError(t, err)
	require.NotContains(t, feed.Calls(), stored)

	ok, err := repo.ExistsForDateCurrency(context.Background(), stored, "USD")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestIngestionScheduler_Backfill_FetchFailureSkipsDate(t *testing.T) {
	repo := newMemRepository()
	feed := newFetchRecorder()
	feed.fail["2024-02-05"] = domain.ErrFetchFailed
	s, _ := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)

	stored, err := s.Backfill(context.Background())
	require.NoError(t, err)
	require.NotContains(t, stored, day(2024, time.February, 5))
	require.Contains(t, stored, day(2024, time.February, 6))
}

func TestIngestionScheduler_Backfill_StorageFailureAborts(t *testing.T) {
	repo := newMemRepository()
	repo.upsertErr = domain.ErrStorageFailure
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)

	stored, err := s.Backfill(context.Background())
	require.ErrorIs(t, err, domain.ErrStorageFailure)
	require.Empty(t, stored)
	// 2024-01-01 is a holiday, the first upsert happens on 2024-01-02
	require.Len(t, feed.Calls(), 2)
}

func TestIngestionScheduler_Backfill_CanceledContext(t *testing.T) {
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 16, 0), newMemRepository(), feed)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Backfill(ctx)
	require.ErrorIs(t, err, context.Canceled)
	require.Empty(t, feed.Calls())
}

// --- RunCycle ---

func TestIngestionScheduler_RunCycle_FetchesAndPrunes(t *testing.T) {
	cutoff := day(2024, time.January, 1)
	repo := newMemRepository(
		quote("USD", cutoff.AddDate(0, 0, -1), "29.5"),
		quote("USD", cutoff, "29.6"),
	)
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 15, 30), repo, feed)

	s.RunCycle(context.Background())

	require.Equal(t, []time.Time{day(2024, time.March, 1)}, feed.Calls())
	require.Equal(t, []time.Time{cutoff, day(2024, time.March, 1)}, repo.Dates())
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.IngestionCyclesTotal.WithLabelValues("fetched")))
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.QuotesPrunedTotal))
}

func TestIngestionScheduler_RunCycle_SkipsStoredDay(t *testing.T) {
	today := day(2024, time.March, 1)
	repo := newMemRepository(quote("EUR", today, "33.7"))
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 1, 15, 30), repo, feed)

	s.RunCycle(context.Background())

	require.Empty(t, feed.Calls())
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.IngestionCyclesTotal.WithLabelValues("skipped")))
}

func TestIngestionScheduler_RunCycle_NonTradingDayStillPrunes(t *testing.T) {
	repo := newMemRepository(quote("USD", day(2023, time.December, 1), "29.0"))
	feed := newFetchRecorder()
	s, _ := newTestIngestion(at(2024, time.March, 2, 15, 30), repo, feed)

	s.RunCycle(context.Background())

	require.Empty(t, feed.Calls())
	require.Zero(t, repo.Len())
}

func TestIngestionScheduler_RunCycle_FetchFailureStillPrunes(t *testing.T) {
	repo := newMemRepository(quote("USD", day(2023, time.December, 1), "29.0"))
	feed := newFetchRecorder()
	feed.fail["2024-03-01"] = errors.New("connection reset")
	s, _ := newTestIngestion(at(2024, time.March, 1, 15, 30), repo, feed)

	s.RunCycle(context.Background())

	require.Len(t, feed.Calls(), 1)
	require.Zero(t, repo.Len())
	require.Equal(t, float64(1), testutil.ToFloat64(s.metrics.IngestionCyclesTotal.WithLabelValues("failed")))
}

// --- Run ---

func startRun(t *testing.T, s *IngestionScheduler) (context.CancelFunc, <-chan error) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()
	return cancel, errCh
}

func waitStopped(t *testing.T, errCh <-chan error) {
	t.Helper()
	select {
	case err := <-errCh:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
}

func blockUntilWaiting(t *testing.T, clock *clockwork.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
}

func TestIngestionScheduler_Run_WakesAtRunTime(t *testing.T) {
	repo := newMemRepository(quote("USD", day(2024, time.February, 1), "30.0"))
	feed := newFetchRecorder()
	s, clock := newTestIngestion(at(2024, time.March, 1, 10, 0), repo, feed)

	cancel, errCh := startRun(t, s)

	blockUntilWaiting(t, clock)
	require.Empty(t, feed.Calls())

	clock.Advance(5*time.Hour + 30*time.Minute)
	// the next wait starts once the cycle finished
	blockUntilWaiting(t, clock)
	require.Equal(t, []time.Time{day(2024, time.March, 1)}, feed.Calls())

	ok, err := repo.ExistsForDate(context.Background(), day(2024, time.March, 1))
	require.NoError(t, err)
	require.True(t, ok)

	cancel()
	waitStopped(t, errCh)
}

func TestIngestionScheduler_Run_BackfillsEmptyStoreFirst(t *testing.T) {
	repo := newMemRepository()
	feed := newFetchRecorder()
	s, clock := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)

	cancel, errCh := startRun(t, s)

	blockUntilWaiting(t, clock)
	require.NotZero(t, repo.Len())
	calls := feed.Calls()
	require.Equal(t, day(2024, time.January, 1), calls[0])

	cancel()
	waitStopped(t, errCh)
}

func TestIngestionScheduler_Run_CancelDuringWait(t *testing.T) {
	repo := newMemRepository(quote("USD", day(2024, time.February, 1), "30.0"))
	feed := newFetchRecorder()
	s, clock := newTestIngestion(at(2024, time.March, 2, 10, 0), repo, feed)

	cancel, errCh := startRun(t, s)
	blockUntilWaiting(t, clock)

	cancel()
	waitStopped(t, errCh)
	require.Empty(t, feed.Calls())
	require.Equal(t, 1, repo.Len())
}

func TestIngestionScheduler_Run_ResumesFailedBackfillAfterNextCycle(t *testing.T) {
	repo := newMemRepository()
	repo.upsertErr = errors.New("connection lost")
	repo.failUpsertCall = 5
	feed := newFetchRecorder()
	// friday after the run time, the next cycle is monday 2024-03-04 15:30
	s, clock := newTestIngestion(at(2024, time.March, 1, 16, 0), repo, feed)

	cancel, errCh := startRun(t, s)

	blockUntilWaiting(t, clock)
	require.Len(t, repo.Dates(), 4)

	clock.Advance(3*24*time.Hour - 30*time.Minute)
	// the backfill resumes before the following wait starts
	blockUntilWaiting(t, clock)

	ok, err := repo.ExistsForDate(context.Background(), day(2024, time.February, 15))
	require.NoError(t, err)
	require.True(t, ok)

	cal := newTestCalendar()
	var want []time.Time
	for d := range calendar.Days(day(2024, time.January, 4), day(2024, time.March, 4)) {
		if cal.IsTradingDay(d) {
			want = append(want, d)
		}
	}
	require.Equal(t, want, repo.Dates())

	cancel()
	waitStopped(t, errCh)
}
