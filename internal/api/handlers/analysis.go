package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/Harshitk-cp/dissent/internal/service"
)

// maxIncidentBytes bounds the request body of an analysis.
const maxIncidentBytes = 1 << 20

type AnalysisHandler struct {
	svc *service.AnalysisService
}

func NewAnalysisHandler(svc *service.AnalysisService) *AnalysisHandler {
	return &AnalysisHandler{svc: svc}
}

type createAnalysisRequest struct {
	IncidentText string `json:"incident_text"`
	EventID      string `json:"event_id,omitempty"`
}

func (h *AnalysisHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createAnalysisRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxIncidentBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.IncidentText == "" {
		writeError(w, http.StatusBadRequest, "incident_text is required")
		return
	}

	var eventID *uuid.UUID
	if req.EventID != "" {
		id, err := uuid.Parse(req.EventID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid event_id")
			return
		}
		eventID = &id
	}

	result, err := h.svc.Analyze(r.Context(), req.IncidentText, eventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, result)
}
