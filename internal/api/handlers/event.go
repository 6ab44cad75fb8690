package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/Harshitk-cp/dissent/internal/artifact"
	"github.com/Harshitk-cp/dissent/internal/domain"
	"github.com/Harshitk-cp/dissent/internal/service"
)

type EventHandler struct {
	replay    *service.ReplayService
	store     *artifact.Store
	exportDir string
}

func NewEventHandler(replay *service.ReplayService, store *artifact.Store, exportDir string) *EventHandler {
	return &EventHandler{replay: replay, store: store, exportDir: exportDir}
}

type listEventsResponse struct {
	Events []string `json:"events"`
	Total  int      `json:"total"`
}

func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	events, err := h.replay.FindEvents()
	if err != nil {
		writeDomainError(w, err)
		return
	}
	total := len(events)
	if s := r.URL.Query().Get("limit"); s != "" {
		limit, err := strconv.Atoi(s)
		if err != nil || limit < 0 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		if limit < len(events) {
			events = events[:limit]
		}
	}
	if events == nil {
		events = []string{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events, Total: total})
}

type getEventResponse struct {
	EventID       string                     `json:"event_id"`
	Files         []string                   `json:"files"`
	Metadata      *artifact.Metadata         `json:"metadata,omitempty"`
	Metrics       *domain.ConvergenceMetrics `json:"convergence_metrics,omitempty"`
	EvidenceFiles map[string]string          `json:"evidence_files"`
	ClaimsFiles   map[string]string          `json:"claims_files"`
}

func (h *EventHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	set, err := h.replay.LoadArtifacts(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	files, err := h.store.ListFiles(set.EventID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// Events written by older versions have no metadata file.
	meta, err := h.store.Metadata(set.EventID)
	if err != nil {
		meta = nil
	}
	writeJSON(w, http.StatusOK, getEventResponse{
		EventID:       id,
		Files:         files,
		Metadata:      meta,
		Metrics:       set.Metrics,
		EvidenceFiles: set.EvidenceFiles,
		ClaimsFiles:   set.ClaimsFiles,
	})
}

func (h *EventHandler) Replay(w http.ResponseWriter, r *http.Request) {
	recalculate := true
	if s := r.URL.Query().Get("recalculate"); s != "" {
		v, err := strconv.ParseBool(s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid recalculate")
			return
		}
		recalculate = v
	}

	result, err := h.replay.Replay(chi.URLParam(r, "id"), recalculate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *EventHandler) Validate(w http.ResponseWriter, r *http.Request) {
	report, err := h.replay.ValidateContracts(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type exportResponse struct {
	ManifestPath string `json:"manifest_path"`
}

func (h *EventHandler) Export(w http.ResponseWriter, r *http.Request) {
	manifest, err := h.replay.Export(chi.URLParam(r, "id"), h.exportDir)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, exportResponse{ManifestPath: manifest})
}

type batchReplayRequest struct {
	EventIDs    []string `json:"event_ids"`
	Recalculate *bool    `json:"recalculate"`
}

func (h *EventHandler) BatchReplay(w http.ResponseWriter, r *http.Request) {
	var req batchReplayRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	recalculate := true
	if req.Recalculate != nil {
		recalculate = *req.Recalculate
	}

	result, err := h.replay.BatchReplay(req.EventIDs, recalculate)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}
