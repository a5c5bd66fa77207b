package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

type GetDayResponse struct {
	Date   string          `json:"date"`
	Quotes []QuoteResponse `json:"quotes"`
}

// GetDay lists every currency published on the date path parameter.
func (h *Handler) GetDay(w http.ResponseWriter, r *http.Request) {
	rawDate := chi.URLParam(r, "date")
	date, err := parseDate(rawDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be formatted as YYYY-MM-DD")
		return
	}

	quotes, err := h.service.GetDay(r.Context(), date)
	if err != nil {
		writeServiceError(w, err, "GetDay", logrus.Fields{"date": rawDate})
		return
	}
	writeJSON(w, http.StatusOK, GetDayResponse{Date: rawDate, Quotes: toQuoteResponses(quotes)})
}
