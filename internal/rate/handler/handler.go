package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"fxquotes/internal/domain"
	"fxquotes/internal/rate"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type QuoteService interface {
	GetQuotes(ctx context.Context, code string, date time.Time) ([]domain.Quote, error)
	ListByCurrency(ctx context.Context, code string) ([]domain.Quote, error)
	GetLatest(ctx context.Context, code string) (domain.Quote, error)
	GetDay(ctx context.Context, date time.Time) ([]domain.Quote, error)
}

type BackfillTrigger interface {
	Trigger(ctx context.Context) (uuid.UUID, error)
}

type Handler struct {
	service   QuoteService
	backfills BackfillTrigger
}

func NewQuoteHandler(service QuoteService, backfills BackfillTrigger) *Handler {
	return &Handler{service: service, backfills: backfills}
}

type QuoteResponse struct {
	CurrencyCode string `json:"currency_code"`
	CurrencyName string `json:"currency_name"`
	ForexBuying  string `json:"forex_buying"`
	ForexSelling string `json:"forex_selling"`
	Date         string `json:"date"`
}

func toQuoteResponse(q domain.Quote) QuoteResponse {
	return QuoteResponse{
		CurrencyCode: q.CurrencyCode,
		CurrencyName: q.CurrencyName,
		ForexBuying:  q.ForexBuying.StringFixed(domain.RatePrecision),
		ForexSelling: q.ForexSelling.StringFixed(domain.RatePrecision),
		Date:         q.Date.Format(time.DateOnly),
	}
}

func toQuoteResponses(quotes []domain.Quote) []QuoteResponse {
	res := make([]QuoteResponse, 0, len(quotes))
	for _, q := range quotes {
		res = append(res, toQuoteResponse(q))
	}
	return res
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, statusCode int, errorMsg string) {
	writeJSON(w, statusCode, errorResponse{Error: errorMsg})
}

// writeServiceError maps invalid input to 400, not found to 404 and everything else to 500.
func writeServiceError(w http.ResponseWriter, err error, handlerName string, fields logrus.Fields) {
	switch {
	case rate.IsInvalidInput(err):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrQuotesNotFound):
		writeError(w, http.StatusNotFound, "quotes not found")
	default:
		msg := "ups, couldn't get quotes this time"
		logrus.WithError(err).WithFields(fields).WithField("handler", handlerName).Error(msg)
		writeError(w, http.StatusInternalServerError, msg)
	}
}

func parseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(time.DateOnly, raw, time.UTC)
}
