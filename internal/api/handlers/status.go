package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/wangshuile/jb-quant/internal/audit"
	"github.com/wangshuile/jb-quant/internal/brain"
	"github.com/wangshuile/jb-quant/internal/contracts"
	"github.com/wangshuile/jb-quant/internal/scheduler"
	"github.com/wangshuile/jb-quant/pkg/logger"
)

// EngineState is the read side of the orchestrator used by the API
type EngineState interface {
	Phase() brain.Phase
	Halted() bool
	Performance() contracts.Performance
}

// JobStats exposes scheduler statistics
type JobStats interface {
	GetJobStats() map[string]scheduler.JobStats
}

// AccountSource returns the current account snapshot
type AccountSource interface {
	Account(ctx context.Context) (contracts.AccountSnapshot, error)
}

// StatusHandler serves engine health, performance and job status
// ⭐ SSOT: 상태 API 핸들러는 이 구조체에서만
type StatusHandler struct {
	engine   EngineState
	analyzer *audit.Analyzer
	jobs     JobStats
	account  AccountSource
	logger   *logger.Logger
}

// NewStatusHandler creates a new status handler; jobs and account may be nil
func NewStatusHandler(engine EngineState, analyzer *audit.Analyzer, jobs JobStats, account AccountSource, log *logger.Logger) *StatusHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &StatusHandler{
		engine:   engine,
		analyzer: analyzer,
		jobs:     jobs,
		account:  account,
		logger:   log.Component("api"),
	}
}

// HealthResponse is the /healthz body
type HealthResponse struct {
	Status string `json:"status"`
	Phase  string `json:"phase"`
}

// Health reports 503 once the engine is halted
// GET /healthz
func (h *StatusHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok", Phase: string(h.engine.Phase())}
	if h.engine.Halted() {
		resp.Status = "halted"
		respondJSON(w, http.StatusServiceUnavailable, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}

// PerformanceResponse is the /api/performance body
type PerformanceResponse struct {
	Performance contracts.Performance `json:"performance"`
	Summary     *audit.Summary        `json:"summary,omitempty"`
}

// GetPerformance returns the running trade accumulator and analyzer summary
// GET /api/performance
func (h *StatusHandler) GetPerformance(w http.ResponseWriter, r *http.Request) {
	resp := PerformanceResponse{Performance: h.engine.Performance()}
	if h.analyzer != nil {
		s := h.analyzer.Summary()
		resp.Summary = &s
	}
	respondJSON(w, http.StatusOK, resp)
}

// GetAccount returns the broker account snapshot
// GET /api/account
func (h *StatusHandler) GetAccount(w http.ResponseWriter, r *http.Request) {
	if h.account == nil {
		respondError(w, http.StatusNotFound, "Account not available")
		return
	}

	snap, err := h.account.Account(r.Context())
	if err != nil {
		h.logger.WithError(err).Error("Failed to get account")
		respondError(w, http.StatusBadGateway, "Failed to retrieve account")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"cash":         snap.Cash,
		"market_value": snap.MarketValue(),
		"total_assets": snap.TotalAssets(),
		"positions":    snap.Positions,
	})
}

// GetJobs returns scheduler statistics
// GET /api/jobs
func (h *StatusHandler) GetJobs(w http.ResponseWriter, r *http.Request) {
	if h.jobs == nil {
		respondJSON(w, http.StatusOK, map[string]scheduler.JobStats{})
		return
	}
	respondJSON(w, http.StatusOK, h.jobs.GetJobStats())
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
