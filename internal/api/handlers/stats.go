package handlers

import (
	"net/http"
	"strconv"
	"time"

	"github.com/Harshitk-cp/dissent/internal/domain"
)

const defaultStatsDays = 7

type StatsHandler struct {
	recorder domain.AnalysisRecorder
	now      func() time.Time
}

func NewStatsHandler(recorder domain.AnalysisRecorder) *StatsHandler {
	return &StatsHandler{recorder: recorder, now: time.Now}
}

func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	days := defaultStatsDays
	if s := r.URL.Query().Get("days"); s != "" {
		d, err := strconv.Atoi(s)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid days")
			return
		}
		days = d
	}

	stats, err := h.recorder.Stats(r.Context(), h.now().AddDate(0, 0, -days))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load stats")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
