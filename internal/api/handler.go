package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/axion-mining/fleet-optimizer/internal/metrics"
	"github.com/axion-mining/fleet-optimizer/internal/optimizer"
	"github.com/axion-mining/fleet-optimizer/internal/report"
	"github.com/axion-mining/fleet-optimizer/internal/routes"
	"github.com/axion-mining/fleet-optimizer/internal/solver"
	"github.com/axion-mining/fleet-optimizer/internal/storage"
)

type contextKey string

const requestIDContextKey contextKey = "requestID"

const (
	maxBodyBytes     = 1 << 20
	defaultListLimit = 20
)

// Handler wires the optimizer and storage dependencies into HTTP handlers.
type Handler struct {
	optimizer  optimizer.Optimizer
	catalog    *routes.Catalog
	parameters storage.ParameterStore
	runs       storage.RunStore

	mode            string
	optimizeTimeout time.Duration
	logger          *zap.Logger
	clock           func() time.Time

	mu                  sync.RWMutex
	parametersUpdatedAt time.Time
}

// HandlerOption configures Handler behaviour.
type HandlerOption func(*Handler)

// WithClock overrides the time source, primarily for tests.
func WithClock(clock func() time.Time) HandlerOption {
	return func(h *Handler) {
		h.clock = clock
	}
}

// WithMode sets the solver mode recorded on runs and metrics.
func WithMode(mode string) HandlerOption {
	return func(h *Handler) {
		h.mode = mode
	}
}

// WithOptimizeTimeout bounds each optimization call. Zero leaves the request
// context as is.
func WithOptimizeTimeout(d time.Duration) HandlerOption {
	return func(h *Handler) {
		h.optimizeTimeout = d
	}
}

// WithLogger sets the logger used for run summaries.
func WithLogger(logger *zap.Logger) HandlerOption {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a Handler with the provided dependencies.
func NewHandler(o optimizer.Optimizer, catalog *routes.Catalog, params storage.ParameterStore, runs storage.RunStore, opts ...HandlerOption) *Handler {
	h := &Handler{
		optimizer:  o,
		catalog:    catalog,
		parameters: params,
		runs:       runs,
		mode:       "local",
		logger:     zap.NewNop(),
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		opt(h)
	}
	h.parametersUpdatedAt = h.clock()
	return h
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	_ = r
	resp := healthResponse{
		Status:    "ok",
		Mode:      h.mode,
		Timestamp: h.clock(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRoutes(w http.ResponseWriter, r *http.Request) {
	_ = r
	list := h.catalog.Routes()
	resp := routesResponse{
		Routes: make([]routeResponse, 0, len(list)),
		Count:  len(list),
	}
	for _, route := range list {
		resp.Routes = append(resp.Routes, routeResponse{ID: route.ID(), Route: route})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetParameters(w http.ResponseWriter, r *http.Request) {
	_ = r
	params, err := h.parameters.GetParameters()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := parametersResponse{
		Parameters: params,
		UpdatedAt:  h.currentParametersUpdatedAt(),
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handlePutParameters(w http.ResponseWriter, r *http.Request) {
	params, empty, err := decodeParameters(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if empty {
		writeError(w, http.StatusBadRequest, "Invalid request", "request body must contain parameters")
		return
	}

	if err := h.parameters.SetParameters(params); err != nil {
		if errors.Is(err, storage.ErrInvalidParameters) {
			writeError(w, http.StatusBadRequest, "Invalid parameters", err.Error())
			return
		}
		writeInternalError(w, err)
		return
	}

	h.markParametersUpdated()

	stored, err := h.parameters.GetParameters()
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := parametersResponse{
		Parameters: stored,
		UpdatedAt:  h.currentParametersUpdatedAt(),
		Message:    "Parameters updated successfully",
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleOptimize(w http.ResponseWriter, r *http.Request) {
	params, empty, err := decodeParameters(r.Body)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", "unable to parse JSON payload")
		return
	}
	if empty {
		if params, err = h.parameters.GetParameters(); err != nil {
			writeInternalError(w, err)
			return
		}
	}

	ctx := r.Context()
	if h.optimizeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.optimizeTimeout)
		defer cancel()
	}

	start := time.Now()
	res, optErr := h.optimizer.Optimize(ctx, params)
	elapsed := time.Since(start)

	metrics.OptimizationDuration.WithLabelValues(h.mode).Observe(elapsed.Seconds())

	if optErr != nil {
		metrics.OptimizationRuns.WithLabelValues(h.mode, "error").Inc()
		h.logger.Warn("optimization failed",
			zap.String("mode", h.mode),
			zap.Duration("duration", elapsed),
			zap.String("request_id", requestIDFromContext(r.Context())),
			zap.Error(optErr),
		)
		writeOptimizeError(w, optErr)
		return
	}

	outcome := "ok"
	if res.Status == optimizer.StatusShortfall {
		outcome = "shortfall"
	}
	metrics.OptimizationRuns.WithLabelValues(h.mode, outcome).Inc()
	metrics.ObjectiveValue.Set(res.ObjectiveValue)
	metrics.AvgUtilization.Set(res.AvgUtilization)

	run := storage.NewRun(h.mode, h.clock(), elapsed, params, res)
	if err := h.runs.SaveRun(r.Context(), run); err != nil {
		// History is best effort; the caller still gets its results.
		h.logger.Error("save run failed", zap.String("run_id", run.ID), zap.Error(err))
	} else {
		w.Header().Set("X-Run-ID", run.ID)
	}

	h.logger.Info("optimization completed",
		zap.String("run_id", run.ID),
		zap.String("mode", h.mode),
		zap.String("status", res.Status),
		zap.Float64("objective", res.ObjectiveValue),
		zap.Float64("avg_utilization", res.AvgUtilization),
		zap.Duration("duration", elapsed),
	)

	writeJSON(w, http.StatusOK, res)
}

func (h *Handler) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid request", "limit must be a positive integer")
			return
		}
		limit = n
	}

	list, err := h.runs.ListRuns(r.Context(), limit)
	if err != nil {
		writeInternalError(w, err)
		return
	}

	resp := runsResponse{
		Runs:  make([]runSummary, 0, len(list)),
		Count: len(list),
	}
	for _, run := range list {
		resp.Runs = append(resp.Runs, runSummary{
			ID:             run.ID,
			CreatedAt:      run.CreatedAt,
			Mode:           run.Mode,
			DurationMs:     run.DurationMs,
			Status:         run.Results.Status,
			ObjectiveValue: run.Results.ObjectiveValue,
			AvgUtilization: run.Results.AvgUtilization,
			NumDays:        run.Parameters.NumDays,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (h *Handler) handleExportRun(w http.ResponseWriter, r *http.Request) {
	kind, err := report.ParseKind(r.URL.Query().Get("kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request", err.Error(),
			fmt.Sprintf("Use kind=%s or kind=%s", report.KindUtilization, report.KindAllocations))
		return
	}

	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := report.WriteCSV(&buf, run.Results, kind); err != nil {
		writeInternalError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="run-%s-%s.csv"`, run.ID, kind))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (storage.Run, bool) {
	id := r.PathValue("id")
	run, err := h.runs.GetRun(r.Context(), id)
	if err != nil {
		if errors.Is(err, storage.ErrRunNotFound) {
			writeError(w, http.StatusNotFound, "Run not found", fmt.Sprintf("no run with id %q", id))
			return storage.Run{}, false
		}
		writeInternalError(w, err)
		return storage.Run{}, false
	}
	return run, true
}

func (h *Handler) currentParametersUpdatedAt() time.Time {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.parametersUpdatedAt
}

func (h *Handler) markParametersUpdated() {
	h.mu.Lock()
	h.parametersUpdatedAt = h.clock()
	h.mu.Unlock()
}

// decodeParameters reads a Parameters body. Fields the body omits take the
// values of optimizer.BaseParameters; empty reports a blank body.
func decodeParameters(body io.Reader) (params optimizer.Parameters, empty bool, err error) {
	raw, err := io.ReadAll(io.LimitReader(body, maxBodyBytes))
	if err != nil {
		return optimizer.Parameters{}, false, err
	}
	if len(bytes.TrimSpace(raw)) == 0 {
		return optimizer.Parameters{}, true, nil
	}

	params = optimizer.BaseParameters()
	if err := json.Unmarshal(raw, &params); err != nil {
		return optimizer.Parameters{}, false, err
	}
	return params, false, nil
}

func writeOptimizeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, optimizer.ErrValidation):
		writeError(w, http.StatusBadRequest, "Invalid parameters", err.Error())
	case errors.Is(err, optimizer.ErrDivisionByZero):
		writeError(w, http.StatusUnprocessableEntity, "Cannot allocate", err.Error(),
			"Check that numTrucks, hoursPerDay and the fleet availability of every day are greater than zero")
	case errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusGatewayTimeout, "Solver timeout", err.Error())
	case errors.Is(err, solver.ErrUpstream):
		writeError(w, http.StatusBadGateway, "Solver unavailable", err.Error())
	case errors.Is(err, optimizer.ErrConfiguration), errors.Is(err, optimizer.ErrComputation):
		writeError(w, http.StatusInternalServerError, "Optimization failed", err.Error())
	default:
		writeInternalError(w, err)
	}
}

func requestIDFromContext(ctx context.Context) string {
	if v := ctx.Value(requestIDContextKey); v != nil {
		if id, ok := v.(string); ok {
			return id
		}
	}
	return ""
}

type routeResponse struct {
	ID string `json:"id"`
	routes.Route
}

type routesResponse struct {
	Routes []routeResponse `json:"routes"`
	Count  int             `json:"count"`
}

type parametersResponse struct {
	Parameters optimizer.Parameters `json:"parameters"`
	UpdatedAt  time.Time            `json:"updatedAt"`
	Message    string               `json:"message,omitempty"`
}

type runSummary struct {
	ID             string    `json:"id"`
	CreatedAt      time.Time `json:"createdAt"`
	Mode           string    `json:"mode"`
	DurationMs     int64     `json:"durationMs"`
	Status         string    `json:"status"`
	ObjectiveValue float64   `json:"objectiveValue"`
	AvgUtilization float64   `json:"avgUtilization"`
	NumDays        int       `json:"numDays"`
}

type runsResponse struct {
	Runs  []runSummary `json:"runs"`
	Count int          `json:"count"`
}

type healthResponse struct {
	Status    string    `json:"status"`
	Mode      string    `json:"mode"`
	Timestamp time.Time `json:"timestamp"`
}

type errorResponse struct {
	Error      string `json:"error"`
	Details    string `json:"details,omitempty"`
	Suggestion string `json:"suggestion,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	if status != 0 {
		w.WriteHeader(status)
	}
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message, details string, suggestion ...string) {
	resp := errorResponse{
		Error:   message,
		Details: details,
	}
	if len(suggestion) > 0 {
		resp.Suggestion = suggestion[0]
	}
	writeJSON(w, status, resp)
}

func writeInternalError(w http.ResponseWriter, err error) {
	writeError(w, http.StatusInternalServerError, "Internal error", err.Error())
}
