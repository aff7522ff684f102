package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"hydra-signals/internal/domain"
	"hydra-signals/internal/job"
	"hydra-signals/internal/tickers"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
)

// Health godoc
// @Summary      Liveness probe
// @Tags         system
// @Produce      json
// @Success      200  {object}  map[string]string
// @Router       /health [get]
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetStatus godoc
// @Summary      Engine run ledger
// @Description  Scheduler state, run counters and the outcome of the last cycle
// @Tags         engine
// @Produce      json
// @Success      200  {object}  job.Status
// @Failure      503  {object}  map[string]string
// @Router       /api/status [get]
func (h *Handler) GetStatus(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
		return
	}

	_, span := h.tracer.Start(c.Request.Context(), "handler.get-status")
	defer span.End()

	c.JSON(http.StatusOK, h.runner.Status())
}

// GetSignals godoc
// @Summary      List tracked signals
// @Description  Returns recent signals, optionally filtered by ticker and status
// @Tags         signals
// @Produce      json
// @Param        ticker  query  string  false  "Base ticker (e.g., BTC, AVAX)"
// @Param        status  query  string  false  "Lifecycle status (new, entry_hit, active, tp_hit, sl_hit)"
// @Param        limit   query  int     false  "Number of signals (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/signals [get]
func (h *Handler) GetSignals(c *gin.Context) {
	if h.signals == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "signal store unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-signals")
	defer span.End()

	filter := domain.SignalFilter{
		Ticker: strings.ToUpper(strings.TrimSpace(c.Query("ticker"))),
	}
	if filter.Ticker != "" {
		span.SetAttributes(attribute.String("ticker", filter.Ticker))
		if !tickers.Valid(filter.Ticker) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid ticker: " + filter.Ticker})
			return
		}
	}

	if rawStatus := strings.ToLower(strings.TrimSpace(c.Query("status"))); rawStatus != "" {
		if !validStatus(rawStatus) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown status: " + rawStatus})
			return
		}
		filter.Status = domain.Status(rawStatus)
	}

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}
	filter.Limit = limit

	signals, err := h.signals.ListSignals(ctx, filter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"signals": signals})
}

// GetErrors godoc
// @Summary      Recent recoverable failures
// @Tags         engine
// @Produce      json
// @Param        limit  query  int  false  "Number of entries (default 50, max 200)"  default(50)
// @Success      200  {object}  map[string]interface{}
// @Failure      400  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/errors [get]
func (h *Handler) GetErrors(c *gin.Context) {
	if h.errors == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "error log unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.get-errors")
	defer span.End()

	limit := 50
	if rawLimit := strings.TrimSpace(c.Query("limit")); rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	entries, err := h.errors.Recent(ctx, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"errors": entries})
}

// RunCycle godoc
// @Summary      Trigger a processing cycle
// @Description  Runs one fetch/persist/validate cycle; rejected while another cycle is in flight
// @Tags         engine
// @Produce      json
// @Success      200  {object}  job.CycleResult
// @Failure      409  {object}  map[string]string
// @Failure      503  {object}  map[string]string
// @Router       /api/run [post]
func (h *Handler) RunCycle(c *gin.Context) {
	if h.runner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "engine unavailable"})
		return
	}

	ctx, span := h.tracer.Start(c.Request.Context(), "handler.run-cycle")
	defer span.End()

	result, err := h.runner.RunManual(ctx)
	if err != nil {
		if errors.Is(err, job.ErrCycleInProgress) {
			c.JSON(http.StatusConflict, gin.H{"error": "a cycle is already running"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

func validStatus(s string) bool {
	switch domain.Status(s) {
	case domain.StatusNew, domain.StatusEntryHit, domain.StatusActive,
		domain.StatusTPHit, domain.StatusSLHit, domain.StatusClosed:
		return true
	}
	return false
}
