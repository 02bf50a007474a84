package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wangshuile/jb-quant/internal/api/handlers"
	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/brain"
	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/scheduler"
	"github.com/wangshuile/jb-quant/pkg/metrics"
)

type fakeEngine struct {
	halted bool
	perf   contracts.Performance
}

func (f *fakeEngine) Phase() brain.Phase {
	if f.halted {
		return brain.PhaseHalted
	}
	return brain.PhaseIdle
}
func (f *fakeEngine) Halted() bool                       { return f.halted }
func (f *fakeEngine) Performance() contracts.Performance { return f.perf }

type fakeJobs map[string]scheduler.JobStats

func (f fakeJobs) GetJobStats() map[string]scheduler.JobStats { return f }

type fakeAccount struct {
	snap contracts.AccountSnapshot
	err  error
}

func (f fakeAccount) Account(ctx context.Context) (contracts.AccountSnapshot, error) {
	return f.snap, f.err
}

func serve(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestRouter_Health(t *testing.T) {
	tests := []struct {
		name   string
		halted bool
		code   int
		status string
	}{
		{"running", false, http.StatusOK, "ok"},
		{"halted", true, http.StatusServiceUnavailable, "halted"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := handlers.NewStatusHandler(&fakeEngine{halted: tt.halted}, nil, nil, nil, nil)
			rec := serve(t, NewRouter(status, nil, nil), "/healthz")

			assert.Equal(t, tt.code, rec.Code)
			var body handlers.HealthResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, tt.status, body.Status)
		})
	}
}

func TestRouter_Performance(t *testing.T) {
	analyzer := audit.NewAnalyzer(nil)
	analyzer.AddTrade(contracts.TradeRecord{Symbol: "A", Returns: 0.1})

	engine := &fakeEngine{perf: contracts.Performance{TradeCount: 1, WinCount: 1, TotalReturn: 0.1}}
	router := NewRouter(handlers.NewStatusHandler(engine, analyzer, nil, nil, nil), nil, nil)

	for _, path := range []string{"/api/performance", "/performance"} {
		t.Run(path, func(t *testing.T) {
			rec := serve(t, router, path)
			require.Equal(t, http.StatusOK, rec.Code)

			var body handlers.PerformanceResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, 1, body.Performance.TradeCount)
			require.NotNil(t, body.Summary)
			assert.Equal(t, 1, body.Summary.TotalTrades)
		})
	}
}

func TestRouter_AccountAndJobs(t *testing.T) {
	acct := fakeAccount{snap: contracts.AccountSnapshot{
		Cash:      100,
		Positions: []contracts.Position{{Symbol: "A", Volume: 10, Price: 5}},
	}}
	jobs := fakeJobs{"phase_midday": {JobName: "phase_midday", TotalRuns: 2}}
	router := NewRouter(handlers.NewStatusHandler(&fakeEngine{}, nil, jobs, acct, nil), nil, nil)

	rec := serve(t, router, "/api/account")
	require.Equal(t, http.StatusOK, rec.Code)
	var account map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &account))
	assert.Equal(t, 150.0, account["total_assets"])

	rec = serve(t, router, "/api/jobs")
	require.Equal(t, http.StatusOK, rec.Code)
	var stats map[string]scheduler.JobStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 2, stats["phase_midday"].TotalRuns)

	failing := NewRouter(handlers.NewStatusHandler(&fakeEngine{}, nil, nil, fakeAccount{err: errors.New("down")}, nil), nil, nil)
	assert.Equal(t, http.StatusBadGateway, serve(t, failing, "/api/account").Code)

	missing := NewRouter(handlers.NewStatusHandler(&fakeEngine{}, nil, nil, nil, nil), nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, missing, "/api/account").Code)
	assert.Equal(t, http.StatusOK, serve(t, missing, "/api/jobs").Code)
}

func TestRouter_Metrics(t *testing.T) {
	rec := metrics.New()
	rec.RecordOrder("buy", "base")

	router := NewRouter(handlers.NewStatusHandler(&fakeEngine{}, nil, nil, nil, nil), rec.Handler(), nil)
	resp := serve(t, router, "/metrics")

	require.Equal(t, http.StatusOK, resp.Code)
	assert.Contains(t, resp.Body.String(), "jbquant_orders_submitted_total")

	noMetrics := NewRouter(handlers.NewStatusHandler(&fakeEngine{}, nil, nil, nil, nil), nil, nil)
	assert.Equal(t, http.StatusNotFound, serve(t, noMetrics, "/metrics").Code)
}
