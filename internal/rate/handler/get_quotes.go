package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type GetQuotesResponse struct {
	Quotes []QuoteResponse `json:"quotes"`
}

// GetQuotes lists a currency's quotes, for one day when ?date=YYYY-MM-DD is given
// and for the whole retention window otherwise.
func (h *Handler) GetQuotes(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	rawDate := r.URL.Query().Get("date")
	fields := logrus.Fields{"code": code, "date": rawDate}

	if rawDate == "" {
		quotes, err := h.service.ListByCurrency(r.Context(), code)
		if err != nil {
			writeServiceError(w, err, "GetQuotes", fields)
			return
		}
		writeJSON(w, http.StatusOK, GetQuotesResponse{Quotes: toQuoteResponses(quotes)})
		return
	}

	date, err := parseDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	quotes, err := h.service.GetQuotes(r.Context(), code, date)
	if err != nil {
		writeServiceError(w, err, "GetQuotes", fields)
		return
	}
	writeJSON(w, http.StatusOK, GetQuotesResponse{Quotes: toQuoteResponses(quotes)})
}
