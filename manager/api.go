package main

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/seqportal/runhub/internal/analysis"
	"github.com/seqportal/runhub/internal/annotate"
	"github.com/seqportal/runhub/internal/ingest"
	"github.com/seqportal/runhub/internal/platform/httpserver"
	"github.com/seqportal/runhub/internal/platform/metrics"
	"github.com/seqportal/runhub/internal/repo"
)

const maxEventBytes = 6 << 20

type managerAPI struct {
	logger      *slog.Logger
	runs        *ingest.Service
	analyses    *analysis.Service
	annotations *annotate.Service
	metrics     *metrics.Ingest
}

func newManagerAPI(logger *slog.Logger, runs *ingest.Service, analyses *analysis.Service,
	annotations *annotate.Service, m *metrics.Ingest) *managerAPI {
	return &managerAPI{
		logger:      logger,
		runs:        runs,
		analyses:    analyses,
		annotations: annotations,
		metrics:     m,
	}
}

func (api *managerAPI) register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/events/workflow-run-update", api.handleRunUpdate)
	mux.HandleFunc("POST /api/v1/events/workflow-run-state-change-legacy", api.handleLegacyStateChange)
	mux.HandleFunc("POST /api/v1/events/analysis-run-update", api.handleAnalysisRunUpdate)

	mux.HandleFunc("POST /api/v1/runs/{portal_run_id}/annotations", api.handleAnnotate)
	mux.HandleFunc("PATCH /api/v1/runs/{portal_run_id}/annotations/{state_id}", api.handleUpdateComment)
	mux.HandleFunc("GET /api/v1/runs/{portal_run_id}/annotations/allowed", api.handleAllowedAnnotations)
}

func (api *managerAPI) handleRunUpdate(w http.ResponseWriter, r *http.Request) {
	api.countReceived(ingest.KindRunUpdate)
	raw, ok := api.readBody(w, r)
	if !ok {
		return
	}
	ev, err := ingest.ParseRunUpdate(raw)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.processRunEvent(w, r, ev)
}

func (api *managerAPI) handleLegacyStateChange(w http.ResponseWriter, r *http.Request) {
	api.countReceived(ingest.KindLegacyStateChange)
	raw, ok := api.readBody(w, r)
	if !ok {
		return
	}
	ev, err := ingest.ParseLegacyRunStateChange(raw)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	api.processRunEvent(w, r, ev)
}

func (api *managerAPI) processRunEvent(w http.ResponseWriter, r *http.Request, ev ingest.RunEvent) {
	res, err := api.runs.ProcessRunEvent(r.Context(), ev)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	body := map[string]any{"accepted": res.Accepted}
	if res.Event != nil {
		body["event"] = res.Event
	}
	httpserver.WriteJSON(w, http.StatusOK, body)
}

func (api *managerAPI) handleAnalysisRunUpdate(w http.ResponseWriter, r *http.Request) {
	api.countReceived(ingest.KindAnalysisRunUpdate)
	raw, ok := api.readBody(w, r)
	if !ok {
		return
	}
	ev, err := ingest.ParseAnalysisRunUpdate(raw)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	event, err := api.analyses.Process(r.Context(), ev)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"accepted": true, "event": event})
}

type annotationRequest struct {
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

func (api *managerAPI) handleAnnotate(w http.ResponseWriter, r *http.Request) {
	portalRunID := r.PathValue("portal_run_id")
	var req annotationRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&req); err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	state, err := api.annotations.Annotate(r.Context(), portalRunID, req.Status, req.Comment)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusCreated, map[string]any{
		"stateId":   state.ID,
		"status":    state.Status,
		"timestamp": state.Timestamp,
		"comment":   state.Comment,
	})
}

func (api *managerAPI) handleUpdateComment(w http.ResponseWriter, r *http.Request) {
	portalRunID := r.PathValue("portal_run_id")
	stateID := r.PathValue("state_id")
	var req struct {
		Comment string `json:"comment"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxEventBytes)).Decode(&req); err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid json"})
		return
	}
	state, err := api.annotations.UpdateComment(r.Context(), portalRunID, stateID, req.Comment)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{
		"stateId": state.ID,
		"status":  state.Status,
		"comment": state.Comment,
	})
}

func (api *managerAPI) handleAllowedAnnotations(w http.ResponseWriter, r *http.Request) {
	portalRunID := r.PathValue("portal_run_id")
	allowed, err := api.annotations.AllowedNext(r.Context(), portalRunID)
	if err != nil {
		api.writeError(w, r, err)
		return
	}
	if allowed == nil {
		allowed = []string{}
	}
	httpserver.WriteJSON(w, http.StatusOK, map[string]any{"allowed": allowed})
}

func (api *managerAPI) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxEventBytes))
	if err != nil {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "read body"})
		return nil, false
	}
	if len(raw) == 0 {
		httpserver.WriteJSON(w, http.StatusBadRequest, map[string]any{"error": "empty body"})
		return nil, false
	}
	return raw, true
}

func (api *managerAPI) countReceived(kind string) {
	if api.metrics != nil {
		api.metrics.EventsReceived.WithLabelValues(kind).Inc()
	}
}

func (api *managerAPI) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, repo.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repo.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, ingest.ErrSchema), errors.Is(err, ingest.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		api.logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		httpserver.WriteJSON(w, status, map[string]any{"error": "internal error"})
		return
	}
	httpserver.WriteJSON(w, status, map[string]any{
		"error": err.Error(),
		"class": ingest.ClassifyError(err),
	})
}
