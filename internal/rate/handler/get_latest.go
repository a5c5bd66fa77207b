package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sirupsen/logrus"
)

func (h *Handler) GetLatest(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")

	quote, err := h.service.GetLatest(r.Context(), code)
	if err != nil {
		writeServiceError(w, err, "GetLatest", logrus.Fields{"code": code})
		return
	}
	writeJSON(w, http.StatusOK, toQuoteResponse(quote))
}
