package rate

import (
	"context"
	"fmt"
	"time"

	"fxquotes/internal/adapters"
	"fxquotes/internal/calendar"
	"fxquotes/internal/domain"
	"fxquotes/internal/platform/metrics"

	"github.com/sirupsen/logrus"
)

const (
	sourceCache      = "cache"
	sourceRepository = "repository"
	sourceFeed       = "feed"
	sourceNone       = "none"
)

// Service is the read path: cache first, then the repository, then an on-demand feed fetch.
type Service struct {
	cache    *Cache
	repo     adapters.QuoteRepository
	feed     adapters.FeedClient
	calendar *calendar.Calendar
	window   Window
	metrics  *metrics.Metrics
}

// GetQuotes returns the quotes of code published on date.
func (s *Service) GetQuotes(ctx context.Context, code string, date time.Time) ([]domain.Quote, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}
	date = calendar.DateOf(date, nil)

	source := sourceCache
	quotes, _, err := s.cache.GetOrLoad(ctx, date, code, func(ctx context.Context) ([]domain.Quote, error) {
		var loaded []domain.Quote
		var loadErr error
		source, loaded, loadErr = s.loadQuotes(ctx, code, date)
		return loaded, loadErr
	})
	if err != nil {
		return nil, err
	}
	return s.found(quotes, source, fmt.Sprintf("no %s quotes on %s", code, date.Format(time.DateOnly)))
}

func (s *Service) loadQuotes(ctx context.Context, code string, date time.Time) (string, []domain.Quote, error) {
	stored, err := s.repo.QueryByCurrency(ctx, code, &date)
	if err != nil {
		return "", nil, err
	}
	if quotes := domain.FilterByDate(stored, date); len(quotes) > 0 {
		return sourceRepository, quotes, nil
	}

	day, err := s.fetchDay(ctx, date)
	if err != nil {
		return "", nil, err
	}
	return sourceFeed, domain.FilterByCurrency(day, code), nil
}

// fetchDay fetches date from the feed and stores the whole day. Non-trading days
// and future dates are never published, so they are not requested.
func (s *Service) fetchDay(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	if !s.calendar.IsTradingDay(date) || date.After(s.window.Today()) {
		return nil, nil
	}

	day, err := s.feed.Fetch(ctx, date)
	if err != nil {
		return nil, err
	}
	if len(day) == 0 {
		return nil, nil
	}

	inserted, err := s.repo.Upsert(ctx, day)
	if err != nil {
		return nil, err
	}
	s.metrics.QuotesInsertedTotal.Add(float64(inserted))
	logrus.WithFields(logrus.Fields{
		"date":     date.Format(time.DateOnly),
		"inserted": inserted,
	}).Info("Stored quotes fetched on demand")
	return day, nil
}

// ListByCurrency returns every stored quote of code inside the retention window, newest first.
func (s *Service) ListByCurrency(ctx context.Context, code string) ([]domain.Quote, error) {
	code, err := NormalizeCode(code)
	if err != nil {
		return nil, err
	}

	today := s.window.Today()
	start := s.window.Start(today)
	stored, err := s.repo.QueryByCurrency(ctx, code, &start)
	if err != nil {
		return nil, err
	}

	byDate := make(map[string][]domain.Quote, len(stored))
	for _, q := range stored {
		day := q.Date.Format(time.DateOnly)
		byDate[day] = append(byDate[day], q)
	}

	quotes := make([]domain.Quote, 0, len(stored))
	for d := range calendar.DaysDesc(start, today) {
		if !s.calendar.IsTradingDay(d) {
			continue
		}
		quotes = append(quotes, byDate[d.Format(time.DateOnly)]...)
	}
	return s.found(quotes, sourceRepository, fmt.Sprintf("no %s quotes since %s", code, start.Format(time.DateOnly)))
}

// GetLatest returns the newest quote of code inside the retention window.
func (s *Service) GetLatest(ctx context.Context, code string) (domain.Quote, error) {
	quotes, err := s.ListByCurrency(ctx, code)
	if err != nil {
		return domain.Quote{}, err
	}
	return quotes[0], nil
}

// GetDay returns every currency published on date.
func (s *Service) GetDay(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	date = calendar.DateOf(date, nil)

	source := sourceCache
	quotes, _, err := s.cache.GetOrLoadDay(ctx, date, func(ctx context.Context) ([]domain.Quote, error) {
		stored, err := s.repo.QueryByDate(ctx, date)
		if err != nil {
			return nil, err
		}
		if len(stored) > 0 {
			source = sourceRepository
			return stored, nil
		}
		source = sourceFeed
		return s.fetchDay(ctx, date)
	})
	if err != nil {
		return nil, err
	}
	return s.found(quotes, source, "no quotes on "+date.Format(time.DateOnly))
}

func (s *Service) found(quotes []domain.Quote, source, notFound string) ([]domain.Quote, error) {
	if len(quotes) == 0 {
		s.metrics.QueryResultsTotal.WithLabelValues(sourceNone).Inc()
		return nil, fmt.Errorf("%w: %s", domain.ErrQuotesNotFound, notFound)
	}
	s.metrics.QueryResultsTotal.WithLabelValues(source).Inc()
	return quotes, nil
}

func NewService(
	cache *Cache,
	repo adapters.QuoteRepository,
	feed adapters.FeedClient,
	cal *calendar.Calendar,
	window Window,
	m *metrics.Metrics,
) *Service {
	return &Service{cache: cache, repo: repo, feed: feed, calendar: cal, window: window, metrics: m}
}
