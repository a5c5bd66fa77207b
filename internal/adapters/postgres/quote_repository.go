package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"fxquotes/internal/domain"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type QuoteRepository struct {
	pool *pgxpool.Pool
}

type quoteRow struct {
	CurrencyCode string `json:"currency_code"`
	CurrencyName string `json:"currency_name"`
	ForexBuying  string `json:"forex_buying"`
	ForexSelling string `json:"forex_selling"`
	RateDate     string `json:"rate_date"`
}

// Upsert inserts quotes whose (currency_code, rate_date) is not stored yet.
// Existing rows are never overwritten. Returns the number of inserted rows.
func (r *QuoteRepository) Upsert(ctx context.Context, quotes []domain.Quote) (int64, error) {
	if len(quotes) == 0 {
		return 0, nil
	}
	payload := make([]quoteRow, 0, len(quotes))
	for _, q := range quotes {
		payload = append(payload, quoteRow{
			CurrencyCode: q.CurrencyCode,
			CurrencyName: q.CurrencyName,
			ForexBuying:  q.ForexBuying.StringFixed(domain.RatePrecision),
			ForexSelling: q.ForexSelling.StringFixed(domain.RatePrecision),
			RateDate:     q.Date.Format(time.DateOnly),
		})
	}

	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal quotes: %w", err)
	}

	const q = `
		insert into exchange_rates (currency_code, currency_name, forex_buying, forex_selling, rate_date)
		select r.currency_code, r.currency_name, r.forex_buying, r.forex_selling, r.rate_date
		from json_to_recordset($1::json) as r(
			currency_code text, currency_name text, forex_buying numeric, forex_selling numeric, rate_date date
		)
		on conflict (currency_code, rate_date) do nothing;
	`

	tag, err := r.pool.Exec(ctx, q, string(payloadJSON))
	if err != nil {
		return 0, fmt.Errorf("%w: failed to upsert %d quotes: %w", domain.ErrStorageFailure, len(quotes), err)
	}
	return tag.RowsAffected(), nil
}

func (r *QuoteRepository) HasAny(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.pool.QueryRow(ctx, `select exists(select 1 from exchange_rates)`).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check for stored quotes: %w", domain.ErrStorageFailure, err)
	}
	return exists, nil
}

func (r *QuoteRepository) ExistsForDate(ctx context.Context, date time.Time) (bool, error) {
	const q = `select exists(select 1 from exchange_rates where rate_date = $1)`

	var exists bool
	if err := r.pool.QueryRow(ctx, q, date).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check quotes for %s: %w", domain.ErrStorageFailure, date.Format(time.DateOnly), err)
	}
	return exists, nil
}

func (r *QuoteRepository) ExistsForDateCurrency(ctx context.Context, date time.Time, code string) (bool, error) {
	const q = `select exists(select 1 from exchange_rates where rate_date = $1 and currency_code = $2)`

	var exists bool
	if err := r.pool.QueryRow(ctx, q, date, code).Scan(&exists); err != nil {
		return false, fmt.Errorf("%w: failed to check %q quote for %s: %w", domain.ErrStorageFailure, code, date.Format(time.DateOnly), err)
	}
	return exists, nil
}

// QueryByCurrency returns quotes of code newest first, limited to rate_date >= since when given.
// An empty result is not an error.
func (r *QuoteRepository) QueryByCurrency(ctx context.Context, code string, since *time.Time) ([]domain.Quote, error) {
	const q = `
		select currency_code, currency_name, forex_buying::text, forex_selling::text, rate_date
		from exchange_rates
		where currency_code = $1 and ($2::date is null or rate_date >= $2::date)
		order by rate_date desc;
	`

	rows, err := r.pool.Query(ctx, q, code, since)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query quotes for %q: %w", domain.ErrStorageFailure, code, err)
	}

	quotes, err := pgx.CollectRows(rows, scanQuote)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read quotes for %q: %w", domain.ErrStorageFailure, code, err)
	}
	return quotes, nil
}

// QueryByDate returns every currency's quote for date ordered by code.
func (r *QuoteRepository) QueryByDate(ctx context.Context, date time.Time) ([]domain.Quote, error) {
	const q = `
		select currency_code, currency_name, forex_buying::text, forex_selling::text, rate_date
		from exchange_rates
		where rate_date = $1
		order by currency_code;
	`

	rows, err := r.pool.Query(ctx, q, date)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query quotes for %s: %w", domain.ErrStorageFailure, date.Format(time.DateOnly), err)
	}

	quotes, err := pgx.CollectRows(rows, scanQuote)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read quotes for %s: %w", domain.ErrStorageFailure, date.Format(time.DateOnly), err)
	}
	return quotes, nil
}

// DeleteOlderThan removes quotes dated strictly before cutoff.
func (r *QuoteRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.pool.Exec(ctx, `delete from exchange_rates where rate_date < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: failed to delete quotes older than %s: %w", domain.ErrStorageFailure, cutoff.Format(time.DateOnly), err)
	}
	return tag.RowsAffected(), nil
}

func scanQuote(row pgx.CollectableRow) (domain.Quote, error) {
	var (
		q               domain.Quote
		buying, selling string
		rateDate        time.Time
	)
	if err := row.Scan(&q.CurrencyCode, &q.CurrencyName, &buying, &selling, &rateDate); err != nil {
		return domain.Quote{}, err
	}

	var err error
	if q.ForexBuying, err = decimal.NewFromString(buying); err != nil {
		return domain.Quote{}, fmt.Errorf("invalid forex_buying %q: %w", buying, err)
	}
	if q.ForexSelling, err = decimal.NewFromString(selling); err != nil {
		return domain.Quote{}, fmt.Errorf("invalid forex_selling %q: %w", selling, err)
	}
	y, m, d := rateDate.Date()
	q.Date = time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return q, nil
}

func NewQuoteRepository(pool *pgxpool.Pool) *QuoteRepository {
	return &QuoteRepository{pool: pool}
}
