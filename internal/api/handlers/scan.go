package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/internal/rules"
	"github.com/wonny/screener/internal/scanner"
	"github.com/wonny/screener/internal/selection"
	"github.com/wonny/screener/pkg/logger"
)

// ScanHandler handles scan and rule endpoints
// ⭐ SSOT: 스캔 API 핸들러는 이 구조체에서만
type ScanHandler struct {
	scanner  *scanner.Scanner
	universe contracts.SymbolProvider
	store    contracts.ReportStore // nil when persistence is disabled
	defaults scanner.Options
	filter   contracts.SymbolFilter
	logger   *logger.Logger
}

// NewScanHandler creates a new scan handler
func NewScanHandler(
	sc *scanner.Scanner,
	universe contracts.SymbolProvider,
	store contracts.ReportStore,
	defaults scanner.Options,
	filter contracts.SymbolFilter,
	log *logger.Logger,
) *ScanHandler {
	return &ScanHandler{
		scanner:  sc,
		universe: universe,
		store:    store,
		defaults: defaults,
		filter:   filter,
		logger:   log,
	}
}

// ScanRequest represents a scan request
type ScanRequest struct {
	Symbols    []string `json:"symbols"`
	Rules      []string `json:"rules"`
	MinScore   *float64 `json:"min_score"`
	Workers    int      `json:"workers"`
	MaxResults int      `json:"max_results"`
	Save       bool     `json:"save"`
}

// RulesResponse lists rule descriptions with their counters
type RulesResponse struct {
	Rules      []rules.Description `json:"rules"`
	Statistics rules.RegistryStats `json:"statistics"`
}

// ListRules returns every registered rule
// GET /api/rules
func (h *ScanHandler) ListRules(w http.ResponseWriter, r *http.Request) {
	reg := h.scanner.Engine().Registry()

	respondJSON(w, http.StatusOK, RulesResponse{
		Rules:      reg.Describe(),
		Statistics: reg.Statistics(),
	})
}

// Scan runs a scan synchronously and returns the report
// POST /api/scan
func (h *ScanHandler) Scan(w http.ResponseWriter, r *http.Request) {
	var req ScanRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	report, status, err := h.run(r.Context(), req, nil)
	if err != nil {
		respondError(w, status, err.Error())
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// ScanSymbol scores one symbol without the min-score filter
// GET /api/scan/{symbol}?rules=GoldenPit,TrendBreakout
func (h *ScanHandler) ScanSymbol(w http.ResponseWriter, r *http.Request) {
	symbol := mux.Vars(r)["symbol"]

	var names []string
	if raw := r.URL.Query().Get("rules"); raw != "" {
		names = strings.Split(raw, ",")
	}

	result, err := h.scanner.ScanSymbol(r.Context(), symbol, names, h.defaults.MinBars)
	if err != nil {
		var skip *scanner.SkipError
		switch {
		case errors.Is(err, contracts.ErrNotFound):
			respondError(w, http.StatusNotFound, fmt.Sprintf("no history for %s", symbol))
		case errors.As(err, &skip):
			respondError(w, http.StatusUnprocessableEntity, skip.Error())
		case errors.Is(err, rules.ErrNoKnownRules):
			respondError(w, http.StatusBadRequest, err.Error())
		default:
			h.logger.WithSymbol(symbol).WithError(err).Error("Symbol scan failed")
			respondError(w, http.StatusInternalServerError, "symbol scan failed")
		}
		return
	}
	respondJSON(w, http.StatusOK, result)
}

// ListRuns returns recent persisted scan runs
// GET /api/scans?limit=20
func (h *ScanHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Scan history is not configured")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	runs, err := h.store.ListRuns(r.Context(), limit)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list scan runs")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve scan runs")
		return
	}
	respondJSON(w, http.StatusOK, runs)
}

// GetRun returns one persisted report
// GET /api/scans/{id}
func (h *ScanHandler) GetRun(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "Scan history is not configured")
		return
	}

	report, err := h.store.GetReport(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		if errors.Is(err, selection.ErrRunNotFound) {
			respondError(w, http.StatusNotFound, "Scan run not found")
			return
		}
		h.logger.WithError(err).Error("Failed to get scan run")
		respondError(w, http.StatusInternalServerError, "Failed to retrieve scan run")
		return
	}
	respondJSON(w, http.StatusOK, report)
}

// run validates a request, resolves the universe, scans and optionally saves.
// The returned status is meaningful only when err is non-nil.
func (h *ScanHandler) run(ctx context.Context, req ScanRequest, progress contracts.ProgressFunc) (*contracts.ScanReport, int, error) {
	opts := h.defaults
	opts.Progress = progress
	if len(req.Rules) > 0 {
		opts.Rules = req.Rules
	}
	if req.MinScore != nil {
		if *req.MinScore < 0 || *req.MinScore > 100 {
			return nil, http.StatusBadRequest, fmt.Errorf("min_score must be between 0 and 100")
		}
		opts.MinScore = *req.MinScore
	}
	if req.Workers != 0 {
		if req.Workers < 1 || req.Workers > 32 {
			return nil, http.StatusBadRequest, fmt.Errorf("workers must be between 1 and 32")
		}
		opts.Workers = req.Workers
	}
	if req.MaxResults < 0 {
		return nil, http.StatusBadRequest, fmt.Errorf("max_results must not be negative")
	}
	if req.MaxResults > 0 {
		opts.MaxResults = req.MaxResults
	}
	if req.Save && h.store == nil {
		return nil, http.StatusServiceUnavailable, fmt.Errorf("scan history is not configured")
	}

	symbols := req.Symbols
	if len(symbols) == 0 {
		listed, err := h.universe.ListSymbols(ctx, h.filter)
		if err != nil {
			h.logger.WithError(err).Error("Failed to list symbols")
			return nil, http.StatusBadGateway, fmt.Errorf("failed to list symbols")
		}
		symbols = listed
	}

	report, err := h.scanner.Scan(ctx, symbols, opts)
	if err != nil {
		if errors.Is(err, rules.ErrNoKnownRules) {
			return nil, http.StatusBadRequest, err
		}
		h.logger.WithError(err).Error("Scan failed")
		return nil, http.StatusInternalServerError, fmt.Errorf("scan failed")
	}

	if req.Save {
		if err := h.store.SaveReport(ctx, report); err != nil {
			h.logger.WithError(err).Error("Failed to save scan report")
			return nil, http.StatusInternalServerError, fmt.Errorf("failed to save scan report")
		}
	}
	return report, http.StatusOK, nil
}
