package api

import (
	"errors"

	"github.com/labstack/echo/v4"

	"RoundPull/internal/domain/models"
	drepo "RoundPull/internal/domain/repository"
	"RoundPull/internal/service/ratelimit"
	"RoundPull/internal/usecase"
	xhttp "RoundPull/pkg/http"
	applogger "RoundPull/pkg/logger"
)

// SessionsEchoHandler exposes level escalation sessions.
type SessionsEchoHandler struct {
	svc *usecase.SessionService
	rl  *ratelimit.Limiter
	l   *applogger.Logger
}

func NewSessionsEchoHandler(l *applogger.Logger, svc *usecase.SessionService) *SessionsEchoHandler {
	if l == nil {
		l = applogger.NewNop()
	}
	return &SessionsEchoHandler{svc: svc, rl: ratelimit.New(), l: l}
}

func (h *SessionsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/sessions")
	g.POST("", h.Open)
	g.GET("/:id", h.Get)
	g.POST("/:id/predict", h.Predict)
	g.POST("/:id/settle", h.Settle)
	g.POST("/:id/reset", h.Reset)
	g.DELETE("/:id", h.Close)
}

func (h *SessionsEchoHandler) Open(c echo.Context) error {
	sess, err := h.svc.Open(c.Request().Context())
	if err != nil {
		return h.fail(c, "open", err)
	}
	return xhttp.CreatedResponse(c, sess)
}

func (h *SessionsEchoHandler) Get(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sess, err := h.svc.Get(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "get", err)
	}
	return xhttp.SuccessResponse(c, sess)
}

func (h *SessionsEchoHandler) Predict(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if !h.rl.Allow(c.RealIP()+":session_predict", predictBurst, predictRefill) {
		return xhttp.AppErrorResponse(c, xhttp.TooManyRequestsError())
	}
	sess, err := h.svc.Predict(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "predict", err)
	}
	return xhttp.SuccessResponse(c, sess)
}

func (h *SessionsEchoHandler) Settle(c echo.Context) error {
	req := &models.SettleRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	st, err := h.svc.Settle(c.Request().Context(), req.ID, req.RoundID, *req.RawValue)
	if err != nil {
		return h.fail(c, "settle", err)
	}
	return xhttp.SuccessResponse(c, st)
}

func (h *SessionsEchoHandler) Reset(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	sess, err := h.svc.Reset(c.Request().Context(), req.ID)
	if err != nil {
		return h.fail(c, "reset", err)
	}
	return xhttp.SuccessResponse(c, sess)
}

func (h *SessionsEchoHandler) Close(c echo.Context) error {
	req := &models.SessionRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if err := h.svc.Close(c.Request().Context(), req.ID); err != nil {
		return h.fail(c, "close", err)
	}
	return xhttp.NoContentResponse(c)
}

func (h *SessionsEchoHandler) fail(c echo.Context, op string, err error) error {
	switch {
	case errors.Is(err, drepo.ErrNotFound):
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("session not found"))
	case errors.Is(err, usecase.ErrNoPrediction):
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("%v", err).WithCode(xhttp.CodeNoPrediction))
	case errors.Is(err, usecase.ErrRoundMismatch):
		return xhttp.AppErrorResponse(c, xhttp.ConflictErrorf("%v", err).WithCode(xhttp.CodeRoundMismatch))
	}
	h.l.Error("session "+op+" failed", applogger.Error(err))
	return xhttp.AppErrorResponse(c, xhttp.InternalErrorf("session %s", op).WithError(err))
}
