package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/experiment"
	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/patterns"
	"github.com/landing-lab/landing-lab/internal/snippets"
	"github.com/landing-lab/landing-lab/internal/stats"
	"github.com/landing-lab/landing-lab/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

type errorResponse struct {
	Error  string `json:"error"`
	Status string `json:"status,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case experiment.IsValidation(err):
		if errors.Is(err, store.ErrExists) {
			return http.StatusConflict
		}
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrExperimentStopped):
		return http.StatusConflict
	case store.IsRetryable(err):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "path", r.URL.Path, "error", err)
	}
	writeError(w, status, err.Error())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.deps.Registry.ListExperiments(r.Context())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	writeJSON(w, http.StatusOK, HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	})
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "GET, OPTIONS")

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	q := r.URL.Query()
	experimentID, visitorID := q.Get("experiment"), q.Get("visitor")
	if experimentID == "" || visitorID == "" {
		writeError(w, http.StatusBadRequest, "experiment and visitor parameters required")
		return
	}

	a, err := s.deps.Assigner.AssignVariant(r.Context(), experimentID, visitorID)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// EventRequest is the beacon body posted by the client snippet.
type EventRequest struct {
	Experiment string           `json:"experiment"`
	Variant    string           `json:"variant"`
	Visitor    string           `json:"visitor,omitempty"`
	Data       ledger.EventData `json:"data"`
}

func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")

	// Handle preflight
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req EventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10))
	dec.UseNumber()
	if err := dec.Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	if req.Experiment == "" || req.Variant == "" {
		writeError(w, http.StatusBadRequest, "experiment and variant are required")
		return
	}
	if req.Data == nil {
		req.Data = ledger.EventData{}
	}
	if req.Visitor != "" {
		if _, exists := req.Data["visitor"]; !exists {
			req.Data["visitor"] = req.Visitor
		}
	}

	if _, err := s.deps.Ledger.RecordEvent(r.Context(), req.Experiment, req.Variant, req.Data); err != nil {
		s.fail(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSnippet(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experimentID := r.URL.Query().Get("experiment")
	if experimentID == "" {
		http.Error(w, "experiment parameter required", http.StatusBadRequest)
		return
	}

	exp, err := s.deps.Registry.GetExperiment(r.Context(), experimentID)
	if err != nil {
		http.Error(w, err.Error(), statusFor(err))
		return
	}

	// Determine server URL from request
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	serverURL := fmt.Sprintf("%s://%s", scheme, r.Host)

	script, err := snippets.Script(snippets.Config{Experiment: exp, ServerURL: serverURL})
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/javascript")
	w.Header().Set("Cache-Control", "public, max-age=60")
	w.Write([]byte(script))
}

func (s *Server) handleListExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.deps.Registry.ListExperiments(r.Context())
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if experiments == nil {
		experiments = []*store.Experiment{}
	}
	writeJSON(w, http.StatusOK, experiments)
}

func (s *Server) handleCreateExperiment(w http.ResponseWriter, r *http.Request) {
	var def experiment.Definition
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&def); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	exp, err := s.deps.Registry.CreateExperiment(r.Context(), def)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exp)
}

func (s *Server) handleGetExperiment(w http.ResponseWriter, r *http.Request) {
	exp, err := s.deps.Registry.GetExperiment(r.Context(), r.PathValue("id"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleStopExperiment(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Reason string `json:"reason"`
	}
	// Body is optional.
	if r.ContentLength != 0 {
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64<<10)).Decode(&body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}
	if body.Reason == "" {
		body.Reason = "stopped via API"
	}

	exp, err := s.deps.Registry.StopExperiment(r.Context(), r.PathValue("id"), body.Reason)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exp)
}

func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	analysis, err := s.deps.Analyzer.Analyze(r.Context(), r.PathValue("id"))
	if errors.Is(err, store.ErrNotFound) {
		writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error(), Status: string(stats.OutcomeNoData)})
		return
	}
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}

func (s *Server) handleCombinations(w http.ResponseWriter, r *http.Request) {
	if s.deps.Ranker == nil {
		writeError(w, http.StatusServiceUnavailable, patterns.ErrCatalogueMissing.Error())
		return
	}

	opts := s.deps.RankOptions
	q := r.URL.Query()
	if v := q.Get("triples"); v != "" {
		opts.IncludeTriples, _ = strconv.ParseBool(v)
	}
	if v := q.Get("all"); v != "" {
		all, _ := strconv.ParseBool(v)
		opts.ProductionOnly = !all
	}
	if v := q.Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.Limit = n
		}
	}

	report, err := s.deps.Ranker.TestAllCombinations(r.Context(), opts)
	switch {
	case errors.Is(err, patterns.ErrCatalogueMissing):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	case errors.Is(err, combos.ErrTooFewPatterns):
		writeError(w, http.StatusUnprocessableEntity, err.Error())
	case err != nil:
		s.fail(w, r, err)
	default:
		writeJSON(w, http.StatusOK, report)
	}
}
