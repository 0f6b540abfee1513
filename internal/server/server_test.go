package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/landing-lab/landing-lab/internal/assign"
	"github.com/landing-lab/landing-lab/internal/combos"
	"github.com/landing-lab/landing-lab/internal/experiment"
	"github.com/landing-lab/landing-lab/internal/ledger"
	"github.com/landing-lab/landing-lab/internal/logging"
	"github.com/landing-lab/landing-lab/internal/patterns"
	"github.com/landing-lab/landing-lab/internal/server"
	"github.com/landing-lab/landing-lab/internal/stats"
	"github.com/landing-lab/landing-lab/internal/store"
)

func newServer(t *testing.T, cat *patterns.Catalogue) *server.Server {
	t.Helper()
	repo := store.NewMemoryStore()
	logger := logging.Discard()

	registry := experiment.NewRegistry(repo, experiment.Options{Logger: logger})
	events := ledger.New(repo, registry, ledger.Options{Logger: logger})

	deps := server.Deps{
		Registry:    registry,
		Assigner:    assign.NewService(registry, logger),
		Ledger:      events,
		Analyzer:    stats.NewAnalyzer(registry, events, logger),
		RankOptions: combos.DefaultOptions(),
		Logger:      logger,
	}
	if cat != nil {
		deps.Ranker = combos.NewRanker(patterns.StaticSource(cat), logger)
	}
	return server.New(deps, 0, "")
}

func do(t *testing.T, srv *server.Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if strings.HasPrefix(path, "/api/") {
		req.Header.Set("Authorization", "Bearer "+srv.Token())
	}
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func definition(id string, minSample int) map[string]any {
	return map[string]any{
		"testId":        id,
		"name":          "Hero headline",
		"variants":      []map[string]any{{"variantId": "control"}, {"variantId": "treatment"}},
		"trafficSplit":  map[string]float64{"control": 50, "treatment": 50},
		"minSampleSize": minSample,
	}
}

func TestHealth(t *testing.T) {
	srv := newServer(t, nil)

	w := do(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp server.HealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, 0, resp.ExperimentsCount)

	w = do(t, srv, http.MethodPost, "/health", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestAuth(t *testing.T) {
	srv := newServer(t, nil)

	req := httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.Header.Set("Authorization", "Bearer wrong")
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Query token is exchanged for a cookie.
	req = httptest.NewRequest(http.MethodGet, "/api/experiments?token="+srv.Token(), nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusFound, w.Code)
	assert.Equal(t, "/api/experiments", w.Header().Get("Location"))
	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)

	req = httptest.NewRequest(http.MethodGet, "/api/experiments", nil)
	req.AddCookie(cookies[0])
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())
}

func TestExperimentAPI(t *testing.T) {
	srv := newServer(t, nil)

	w := do(t, srv, http.MethodPost, "/api/experiments", definition("hero", 50))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var exp store.Experiment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&exp))
	assert.Equal(t, "hero", exp.ID)
	assert.Equal(t, store.StatusActive, exp.Status)
	assert.Equal(t, 50.0, exp.Variants[1].TrafficPercent)

	w = do(t, srv, http.MethodPost, "/api/experiments", definition("hero", 50))
	assert.Equal(t, http.StatusConflict, w.Code)

	bad := definition("bad", 50)
	bad["trafficSplit"] = map[string]float64{"control": 50, "treatment": 40}
	w = do(t, srv, http.MethodPost, "/api/experiments", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "trafficSplit")

	w = do(t, srv, http.MethodGet, "/api/experiments/hero", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(t, srv, http.MethodGet, "/api/experiments/ghost", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodPost, "/api/experiments/hero/stop", map[string]string{"reason": "done"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&exp))
	assert.Equal(t, store.StatusStopped, exp.Status)
	assert.Equal(t, "done", exp.StopReason)
}

func TestAssignAndEvents_EndToEnd(t *testing.T) {
	srv := newServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/experiments", definition("exp1", 50)).Code)

	w := do(t, srv, http.MethodGet, "/assign?experiment=exp1&visitor=visitor-1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	var a assign.Assignment
	require.NoError(t, json.NewDecoder(w.Body).Decode(&a))
	assert.Equal(t, 68.35, a.Bucket)
	assert.Equal(t, "treatment", a.VariantID)

	post := func(variant string, converted bool) {
		w := do(t, srv, http.MethodPost, "/e", map[string]any{
			"experiment": "exp1",
			"variant":    variant,
			"data":       map[string]any{"converted": converted, "timeOnPage": 12.5},
		})
		require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())
	}
	for i := 0; i < 60; i++ {
		post("control", i < 6)
		post("treatment", i < 18)
	}

	w = do(t, srv, http.MethodGet, "/api/experiments/exp1/analysis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var analysis stats.Analysis
	require.NoError(t, json.NewDecoder(w.Body).Decode(&analysis))
	assert.Equal(t, stats.OutcomeSignificant, analysis.Outcome)
	assert.Equal(t, "treatment", analysis.Winner)
	require.NotNil(t, analysis.Lift)
	assert.InDelta(t, 200, *analysis.Lift, 0.01)
}

func TestEvent_Errors(t *testing.T) {
	srv := newServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/experiments", definition("hero", 50)).Code)

	tests := []struct {
		name string
		body any
		want int
	}{
		{"missing variant", map[string]any{"experiment": "hero"}, http.StatusBadRequest},
		{"unknown experiment", map[string]any{"experiment": "ghost", "variant": "control"}, http.StatusNotFound},
		{"unknown variant", map[string]any{"experiment": "hero", "variant": "nope"}, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, do(t, srv, http.MethodPost, "/e", tt.body).Code)
		})
	}

	req := httptest.NewRequest(http.MethodPost, "/e", strings.NewReader("{"))
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	req = httptest.NewRequest(http.MethodOptions, "/e", nil)
	w = httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)

	do(t, srv, http.MethodPost, "/api/experiments/hero/stop", nil)
	w = do(t, srv, http.MethodPost, "/e", map[string]any{"experiment": "hero", "variant": "control"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestAnalysis_UnknownExperimentIsNoData(t *testing.T) {
	srv := newServer(t, nil)

	w := do(t, srv, http.MethodGet, "/api/experiments/ghost/analysis", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"no_data"`)
}

func TestSnippet(t *testing.T) {
	srv := newServer(t, nil)
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/api/experiments", definition("hero", 50)).Code)

	w := do(t, srv, http.MethodGet, "/vl.js?experiment=hero", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/javascript", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Body.String(), `var E="hero";`)
	assert.Contains(t, w.Body.String(), `var S="http://example.com";`)

	assert.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/vl.js?experiment=ghost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodGet, "/vl.js", nil).Code)
}

func TestCombinations(t *testing.T) {
	w := do(t, newServer(t, nil), http.MethodGet, "/api/combinations", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	avg := func(v float64) *float64 { return &v }
	cat := &patterns.Catalogue{Patterns: []patterns.Pattern{
		{ID: "p1", Category: patterns.CategorySocialProof, Status: patterns.StatusProduction, Performance: patterns.Performance{AverageLift: avg(8)}},
		{ID: "p2", Category: patterns.CategoryScarcity, Status: patterns.StatusProduction, Performance: patterns.Performance{AverageLift: avg(6)}},
	}}

	w = do(t, newServer(t, cat), http.MethodGet, "/api/combinations", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report combos.Report
	require.NoError(t, json.NewDecoder(w.Body).Decode(&report))
	assert.Equal(t, 1, report.Summary.TotalTested)
	require.Len(t, report.TopCombinations, 1)
	assert.Greater(t, report.TopCombinations[0].PredictedLift, 14.48)
	assert.Equal(t, 1.25, report.TopCombinations[0].Synergies[0].ExpectedBoost)
}

func TestListenAndServe_StopsOnCancel(t *testing.T) {
	srv := newServer(t, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.ListenAndServe(ctx, false) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("server did not stop")
	}
}
