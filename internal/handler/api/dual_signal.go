package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"DualSignal/internal/domain/models"
	icache "DualSignal/internal/service/cache"
	xhttp "DualSignal/pkg/http"
	xlogger "DualSignal/pkg/logger"

	"github.com/labstack/echo/v4"
)

// DualSignalReader is the read side the handler serves.
type DualSignalReader interface {
	GetDualSignal(ctx context.Context, instrument string) (*models.DualSignalResponse, error)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// DualSignalHandler serves the dual-signal endpoint and the health check.
type DualSignalHandler struct {
	logger   *xlogger.Logger
	svc      DualSignalReader
	store    HealthChecker
	cache    icache.BytesCache
	cacheTTL time.Duration
}

func NewDualSignalHandler(logger *xlogger.Logger, svc DualSignalReader, store HealthChecker) *DualSignalHandler {
	return &DualSignalHandler{logger: logger.Named("api"), svc: svc, store: store}
}

// SetCache enables response caching for successful responses.
func (h *DualSignalHandler) SetCache(c icache.BytesCache, ttl time.Duration) {
	h.cache = c
	h.cacheTTL = ttl
}

func (h *DualSignalHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", h.Health)
	g := e.Group("/api")
	g.GET("/dual-signal", h.DualSignal)
}

// DualSignal returns the response contract at top level. An unknown instrument is a 400
// and an empty watchlist a 503, both still carrying success=false.
func (h *DualSignalHandler) DualSignal(c echo.Context) error {
	req := &models.DualSignalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	key := cacheKey(req.Instrument)

	if h.cache != nil && h.cacheTTL > 0 {
		b, ok, err := h.cache.GetBytes(ctx, key)
		if err != nil {
			h.logger.Warn("response cache read", xlogger.Error(err))
		} else if ok {
			c.Response().Header().Set("X-Cache", "HIT")
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	resp, err := h.svc.GetDualSignal(ctx, req.Instrument)
	switch {
	case errors.Is(err, models.ErrUnknownInstrument):
		return c.JSON(http.StatusBadRequest, resp)
	case errors.Is(err, models.ErrEmptyWatchlist):
		h.logger.Error("watchlist is empty")
		return c.JSON(http.StatusServiceUnavailable, resp)
	case err != nil:
		h.logger.Error("dual signal usecase error", xlogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalError("dual signal unavailable").WithError(err))
	}

	body, err := json.Marshal(resp)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.InternalError("encode response").WithError(err))
	}
	if h.cache != nil && h.cacheTTL > 0 {
		if err := h.cache.SetBytes(ctx, key, body, h.cacheTTL); err != nil {
			h.logger.Warn("response cache write", xlogger.Error(err))
		}
		c.Response().Header().Set("X-Cache", "MISS")
	}
	c.Response().Header().Set(echo.HeaderCacheControl, "private, max-age=5")
	return c.JSONBlob(http.StatusOK, body)
}

// Health reports store reachability.
func (h *DualSignalHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	status := xhttp.HealthStatus{Status: "ok", Checks: map[string]string{"store": "ok"}}
	if h.store != nil {
		if err := h.store.Health(ctx); err != nil {
			h.logger.Warn("store health check failed", xlogger.Error(err))
			status.Status = "degraded"
			status.Checks["store"] = err.Error()
			return xhttp.DataResponse(c, http.StatusServiceUnavailable, status)
		}
	}
	return xhttp.SuccessResponse(c, status)
}

func cacheKey(instrument string) string {
	inst := models.NormalizeInstrument(instrument)
	if inst == "" {
		inst = "*"
	}
	return "dual-signal:" + inst
}
