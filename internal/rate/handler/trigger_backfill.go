package handler

import (
	"net/http"

	"github.com/sirupsen/logrus"
)

type TriggerBackfillResponse struct {
	JobID string `json:"job_id"`
}

func (h *Handler) TriggerBackfill(w http.ResponseWriter, r *http.Request) {
	jobID, err := h.backfills.Trigger(r.Context())
	if err != nil {
		logrus.WithError(err).WithField("handler", "TriggerBackfill").Error("backfill wasn't scheduled")
		writeError(w, http.StatusInternalServerError, "failed to schedule backfill")
		return
	}
	writeJSON(w, http.StatusAccepted, TriggerBackfillResponse{JobID: jobID.String()})
}
