package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"RoundPull/internal/domain/models"
	icache "RoundPull/internal/service/cache"
	"RoundPull/internal/service/ratelimit"
	"RoundPull/internal/usecase"
	xhttp "RoundPull/pkg/http"
	applogger "RoundPull/pkg/logger"
	xutil "RoundPull/pkg/util"
)

const (
	historyTTL    = 30 * time.Second
	predictBurst  = 10
	predictRefill = 5
	rateLimitIdle = 10 * time.Minute
)

// CollectorStatus is satisfied by *usecase.RoundCollector.
type CollectorStatus interface {
	Status() usecase.CollectorStatus
}

// RoundsEchoHandler serves predictions, ledger history and health.
type RoundsEchoHandler struct {
	proc      *usecase.RoundProcessor
	collector CollectorStatus
	cache     icache.BytesCache
	ttl       time.Duration
	rl        *ratelimit.Limiter
	l         *applogger.Logger
}

func NewRoundsEchoHandler(l *applogger.Logger, proc *usecase.RoundProcessor, collector CollectorStatus, cache icache.BytesCache) *RoundsEchoHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &RoundsEchoHandler{proc: proc, collector: collector, cache: cache, ttl: historyTTL, rl: ratelimit.New(), l: l}
}

// WithHistoryTTL sets how long rendered history pages stay cached.
func (h *RoundsEchoHandler) WithHistoryTTL(d time.Duration) *RoundsEchoHandler {
	if d > 0 {
		h.ttl = d
	}
	return h
}

func (h *RoundsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/predict", h.Predict)
	g.GET("/history", h.History)
	g.POST("/rounds", h.AddRound)
	g.DELETE("/history", h.ClearHistory)
	g.GET("/components", h.Components)
	e.GET("/healthz", h.Health)
}

// allow applies the per-remote token bucket and occasionally sweeps idle buckets.
func (h *RoundsEchoHandler) allow(c echo.Context, endpoint string) bool {
	if h.rl.Allow(c.RealIP()+":"+endpoint, predictBurst, predictRefill) {
		return true
	}
	h.l.Warn("rate limited", applogger.String("remote", c.RealIP()), applogger.String("endpoint", endpoint))
	if n := h.rl.Sweep(rateLimitIdle); n > 0 {
		h.l.Debug("rate limiter swept", applogger.Int("buckets", n))
	}
	return false
}

func (h *RoundsEchoHandler) Predict(c echo.Context) error {
	req := &models.PredictRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.allow(c, "predict") {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
	}
	return xhttp.SuccessResponse(c, h.proc.Predict(req.Level))
}

func (h *RoundsEchoHandler) History(c echo.Context) error {
	req := &models.HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	ctx := c.Request().Context()
	eng := h.proc.Engine()

	tipID := "empty"
	if tip, ok := eng.Tip(); ok {
		tipID = tip.RoundID.String()
	}
	cacheKey := "history:" + tipID + ":" + strconv.Itoa(eng.Len()) + ":" + strconv.Itoa(req.Limit)
	if h.cache != nil {
		if b, ok, err := h.cache.GetBytes(ctx, cacheKey); err != nil {
			h.l.Warn("history cache_get_error", applogger.Error(err))
		} else if ok {
			h.l.Debug("history cache_hit", applogger.String("key", cacheKey))
			return c.JSONBlob(http.StatusOK, b)
		}
	}

	rounds := eng.History()
	total := len(rounds)
	if len(rounds) > req.Limit {
		rounds = rounds[len(rounds)-req.Limit:]
	}
	b, err := json.Marshal(xhttp.APIResponse{
		Status:  http.StatusOK,
		Message: http.StatusText(http.StatusOK),
		Data:    &xhttp.ListDataResponse{Rows: rounds, Total: int64(total)},
	})
	if err != nil {
		h.l.Error("history marshal_error", applogger.Error(err))
		return xhttp.InternalServerErrorResponse(c)
	}
	if h.cache != nil {
		if err := h.cache.SetBytes(ctx, cacheKey, b, h.ttl); err != nil {
			h.l.Warn("history cache_set_error", applogger.Error(err))
		}
	}
	return c.JSONBlob(http.StatusOK, b)
}

func (h *RoundsEchoHandler) AddRound(c echo.Context) error {
	req := &models.AddRoundRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	// round_time validation has already rejected unparsable values
	ts := time.Now()
	if t, ok := xutil.ParseTime(req.Time); ok {
		ts = t
	}

	ok, err := h.proc.Add(c.Request().Context(), req.RoundID, *req.RawValue, ts)
	if err != nil {
		return xhttp.AppErrorResponse(c, xhttp.BadRequestErrorf("%v", err))
	}
	if !ok {
		return xhttp.AppErrorResponse(c, xhttp.DuplicateRoundError(req.RoundID))
	}
	tip, _ := h.proc.Engine().Tip()
	return xhttp.CreatedResponse(c, tip)
}

func (h *RoundsEchoHandler) ClearHistory(c echo.Context) error {
	if err := h.proc.Clear(c.Request().Context()); err != nil {
		h.l.Error("clear history failed", applogger.Error(err))
		return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("clear history").WithError(err))
	}
	return xhttp.NoContentResponse(c)
}

func (h *RoundsEchoHandler) Components(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.proc.Engine().ComponentStates())
}

type healthResponse struct {
	Status    string                   `json:"status"`
	Ledger    int                      `json:"ledger"`
	Tip       string                   `json:"tip,omitempty"`
	Collector *usecase.CollectorStatus `json:"collector,omitempty"`
}

// Health reports 503 when the collector is stalled.
func (h *RoundsEchoHandler) Health(c echo.Context) error {
	eng := h.proc.Engine()
	res := healthResponse{Status: "ok", Ledger: eng.Len()}
	if tip, ok := eng.Tip(); ok {
		res.Tip = tip.RoundID.String()
	}
	status := http.StatusOK
	if h.collector != nil {
		st := h.collector.Status()
		res.Collector = &st
		if st.Stalled {
			res.Status = "stalled"
			status = http.StatusServiceUnavailable
		}
	}
	return xhttp.DataResponse(c, status, res)
}
