package rate

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"fxquotes/internal/calendar"
	"fxquotes/internal/domain"
	"fxquotes/internal/platform/metrics"

	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
)

// --- Testify mocks ---

type MockQuoteRepository struct{ mock.Mock }

func (m *MockQuoteRepository) Upsert(ctx context.Context, quotes []domain.Quote) (int64, error) {
	args := m.Called(ctx, quotes)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

func (m *MockQuoteRepository) HasAny(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuoteRepository) ExistsForDate(ctx context.Context, date time.Time) (bool, error) {
	args := m.Called(ctx, date)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuoteRepository) ExistsForDateCurrency(ctx context.Context, date time.Time, code string) (bool, error) {
	args := m.Called(ctx, date, code)
	return args.Bool(0), args.Error(1)
}

func (m *MockQuoteRepository) QueryByCurrency(ctx context.Context, code string, since *time.Time) ([]domain.Quote, error) {
	args := m.Called(ctx, code, since)
	quotes, _ := args.Get(0).([]domain.Quote)
	return quotes, args.Error(1)
}

func (m *MockQuoteRepository) QueryByDate(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	args := m.Called(ctx, date)
	quotes, _ := args.Get(0).([]domain.Quote)
	return quotes, args.Error(1)
}

func (m *MockQuoteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)
	n, _ := args.Get(0).(int64)
	return n, args.Error(1)
}

type MockFeedClient struct{ mock.Mock }

func (m *MockFeedClient) Fetch(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	args := m.Called(ctx, date)
	quotes, _ := args.Get(0).([]domain.Quote)
	return quotes, args.Error(1)
}

// --- In-memory fakes ---

// feedFunc adapts a function to adapters.FeedClient.
type feedFunc func(ctx context.Context, date time.Time) ([]domain.Quote, error)

func (f feedFunc) Fetch(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	return f(ctx, date)
}

// memRepository is a first-write-wins quote store keyed by (code, date).
type memRepository struct {
	mu     sync.Mutex
	quotes map[string]domain.Quote
	// upsertErr is returned by Upsert when set
	upsertErr error
	// failUpsertCall makes only the n-th Upsert call fail with upsertErr
	failUpsertCall int
	upsertCalls    int
}

func newMemRepository(quotes ...domain.Quote) *memRepository {
	r := &memRepository{quotes: make(map[string]domain.Quote)}
	for _, q := range quotes {
		r.quotes[memKey(q.CurrencyCode, q.Date)] = q
	}
	return r
}

func memKey(code string, date time.Time) string {
	return code + "|" + date.Format(time.DateOnly)
}

func (r *memRepository) Upsert(_ context.Context, quotes []domain.Quote) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.upsertCalls++
	if r.upsertErr != nil && (r.failUpsertCall == 0 || r.failUpsertCall == r.upsertCalls) {
		return 0, r.upsertErr
	}
	var n int64
	for _, q := range quotes {
		k := memKey(q.CurrencyCode, q.Date)
		if _, ok := r.quotes[k]; ok {
			continue
		}
		r.quotes[k] = q
		n++
	}
	return n, nil
}

func (r *memRepository) HasAny(context.Context) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes) > 0, nil
}

func (r *memRepository) ExistsForDate(_ context.Context, date time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, q := range r.quotes {
		if q.Date.Equal(date) {
			return true, nil
		}
	}
	return false, nil
}

func (r *memRepository) ExistsForDateCurrency(_ context.Context, date time.Time, code string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.quotes[memKey(code, date)]
	return ok, nil
}

func (r *memRepository) QueryByCurrency(_ context.Context, code string, since *time.Time) ([]domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.Quote
	for _, q := range r.quotes {
		if q.CurrencyCode == code && (since == nil || !q.Date.Before(*since)) {
			res = append(res, q)
		}
	}
	slices.SortFunc(res, func(a, b domain.Quote) int { return b.Date.Compare(a.Date) })
	return res, nil
}

func (r *memRepository) QueryByDate(_ context.Context, date time.Time) ([]domain.Quote, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []domain.Quote
	for _, q := range r.quotes {
		if q.Date.Equal(date) {
			res = append(res, q)
		}
	}
	slices.SortFunc(res, func(a, b domain.Quote) int { return strings.Compare(a.CurrencyCode, b.CurrencyCode) })
	return res, nil
}

func (r *memRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for k, q := range r.quotes {
		if q.Date.Before(cutoff) {
			delete(r.quotes, k)
			n++
		}
	}
	return n, nil
}

func (r *memRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.quotes)
}

func (r *memRepository) Dates() []time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	var res []time.Time
	for _, q := range r.quotes {
		if !slices.ContainsFunc(res, q.Date.Equal) {
			res = append(res, q.Date)
		}
	}
	slices.SortFunc(res, time.Time.Compare)
	return res
}

type memEntry struct {
	value     []byte
	expiresAt time.Time
}

// memStore is an expiring CacheStore driven by a clockwork clock.
type memStore struct {
	mu      sync.Mutex
	clock   clockwork.Clock
	entries map[string]memEntry
	getErr  error
	setErr  error
	sets    int
}

func newMemStore(clock clockwork.Clock) *memStore {
	return &memStore{clock: clock, entries: make(map[string]memEntry)}
}

func (s *memStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, false, s.getErr
	}
	e, ok := s.entries[key]
	if !ok || !s.clock.Now().Before(e.expiresAt) {
		return nil, false, nil
	}
	return e.value, true, nil
}

func (s *memStore) SetIfAbsent(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.setErr != nil {
		return false, s.setErr
	}
	if e, ok := s.entries[key]; ok && s.clock.Now().Before(e.expiresAt) {
		return false, nil
	}
	s.entries[key] = memEntry{value: value, expiresAt: s.clock.Now().Add(ttl)}
	s.sets++
	return true, nil
}

func (s *memStore) Has(key string) bool {
	_, ok, _ := s.Get(context.Background(), key)
	return ok
}

// --- Helpers ---

var istanbul = mustLoadLocation("Europe/Istanbul")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func quote(code string, date time.Time, buying string) domain.Quote {
	return domain.Quote{
		CurrencyCode: code,
		CurrencyName: code + " NAME",
		ForexBuying:  decimal.RequireFromString(buying),
		ForexSelling: decimal.RequireFromString(buying),
		Date:         date,
	}
}

func codesOf(quotes []domain.Quote) []string {
	res := make([]string, 0, len(quotes))
	for _, q := range quotes {
		res = append(res, q.CurrencyCode)
	}
	return res
}

func datesOf(quotes []domain.Quote) []string {
	res := make([]string, 0, len(quotes))
	for _, q := range quotes {
		res = append(res, q.Date.Format(time.DateOnly))
	}
	return res
}

func newTestMetrics() *metrics.Metrics {
	return metrics.New(prometheus.NewRegistry())
}

func newTestWindow(now time.Time) (Window, *clockwork.FakeClock) {
	clock := clockwork.NewFakeClockAt(now)
	return Window{Clock: clock, Location: istanbul, Months: 2}, clock
}

func newTestCalendar() *calendar.Calendar {
	return calendar.New(calendar.DefaultHolidays)
}
