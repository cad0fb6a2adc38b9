package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	log "github.com/sirupsen/logrus"

	"prism-board/board"
	"prism-board/domain"
)

const userKey = "user"

// Register wires up all API routes on the provided Echo instance. A nil auth
// leaves the routes open.
func Register(e *echo.Echo, ctrl *board.Controller, auth Authenticator, logger *log.Logger) {
	if logger == nil {
		logger = log.StandardLogger()
	}
	h := &handlers{ctrl: ctrl, svc: ctrl.Service(), auth: auth, logger: logger}

	g := e.Group("/api", GzipRequestMiddleware())
	g.GET("/board", h.instrument(h.getBoard))
	g.GET("/board/stream", h.instrument(h.streamBoard))
	g.POST("/tasks", h.instrument(h.createTask))
	g.PUT("/tasks/:id", h.instrument(h.editTask))
	g.DELETE("/tasks/:id", h.instrument(h.deleteTask))
	g.POST("/tasks/:id/advance", h.instrument(h.advanceTask))
	g.POST("/tasks/:id/return", h.instrument(h.returnTask))
	g.POST("/tasks/:id/move", h.instrument(h.moveTask))
	e.GET("/healthz", healthz(h.svc))
}

type handlers struct {
	ctrl   *board.Controller
	svc    *board.Service
	auth   Authenticator
	logger *log.Logger
}

type boardResponse struct {
	Revision uint64          `json:"revision"`
	Stages   []domain.Column `json:"stages"`
}

type editRequest struct {
	board.FormValues
	Stage domain.Stage `json:"stage"`
}

type moveRequest struct {
	Stage  domain.Stage `json:"stage"`
	Reason string       `json:"reason"`
}

type reasonRequest struct {
	Reason string `json:"reason"`
}

// requestDialog answers the controller's questions from what the request
// already carries.
type requestDialog struct {
	values  board.FormValues
	confirm bool
}

func (d requestDialog) Confirm(string) bool { return d.confirm }

func (d requestDialog) PromptForm(board.FormKind, board.FormValues) (board.FormValues, bool) {
	return d.values, true
}

type handlerFunc func(c echo.Context, m *requestMetrics) error

// instrument authenticates the request and records one metrics entry for it.
func (h *handlers) instrument(fn handlerFunc) echo.HandlerFunc {
	return func(c echo.Context) (err error) {
		metrics, ctx := newRequestMetrics(c.Request().Context(), h.logger, c.Request().Method, c.Path())
		c.SetRequest(c.Request().WithContext(ctx))
		defer func() {
			metrics.Log(c.Response().Status, err)
		}()

		if h.auth != nil {
			authStart := time.Now()
			userID, authErr := h.auth.UserIDFromRequest(c.Request())
			metrics.ObserveAuth(time.Since(authStart))
			if authErr != nil {
				metrics.SetErrorStage("auth")
				return c.String(http.StatusUnauthorized, authErr.Error())
			}
			c.Set(userKey, userID)
		}
		if id := c.Param("id"); id != "" {
			metrics.SetTaskID(id)
		}
		return fn(c, metrics)
	}
}

func healthz(svc *board.Service) echo.HandlerFunc {
	return func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]any{"status": "ok", "revision": svc.Revision()})
	}
}

func (h *handlers) getBoard(c echo.Context, m *requestMetrics) error {
	resp := boardResponse{Revision: h.svc.Revision(), Stages: h.svc.Board()}
	n := 0
	for _, s := range resp.Stages {
		n += len(s.Tasks)
	}
	m.SetTasksReturned(n)
	return h.respond(c, m, http.StatusOK, resp)
}

func (h *handlers) createTask(c echo.Context, m *requestMetrics) error {
	var req board.FormValues
	if err := decodeBody(c, &req); err != nil {
		m.SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	start := time.Now()
	task, err := h.ctrl.Create(c.Request().Context(), requestDialog{values: req})
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	m.SetTaskID(task.ID)
	return h.respond(c, m, http.StatusCreated, task)
}

func (h *handlers) editTask(c echo.Context, m *requestMetrics) error {
	var req editRequest
	if err := decodeBody(c, &req); err != nil {
		m.SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	start := time.Now()
	task, err := h.ctrl.Edit(c.Request().Context(), requestDialog{values: req.FormValues}, c.Param("id"), req.Stage)
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	return h.respond(c, m, http.StatusOK, task)
}

func (h *handlers) advanceTask(c echo.Context, m *requestMetrics) error {
	start := time.Now()
	task, err := h.ctrl.Advance(c.Request().Context(), c.Param("id"))
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	return h.respond(c, m, http.StatusOK, task)
}

func (h *handlers) returnTask(c echo.Context, m *requestMetrics) error {
	var req reasonRequest
	if err := decodeBody(c, &req); err != nil {
		m.SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	start := time.Now()
	task, err := h.ctrl.ReturnToWork(c.Request().Context(), requestDialog{values: board.FormValues{Reason: req.Reason}}, c.Param("id"))
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	return h.respond(c, m, http.StatusOK, task)
}

func (h *handlers) moveTask(c echo.Context, m *requestMetrics) error {
	var req moveRequest
	if err := decodeBody(c, &req); err != nil {
		m.SetErrorStage("decode")
		return c.String(http.StatusBadRequest, "invalid body")
	}
	start := time.Now()
	task, err := h.svc.MoveTask(c.Request().Context(), c.Param("id"), req.Stage, req.Reason)
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	return h.respond(c, m, http.StatusOK, task)
}

func (h *handlers) deleteTask(c echo.Context, m *requestMetrics) error {
	confirm, _ := strconv.ParseBool(c.QueryParam("confirm"))
	start := time.Now()
	err := h.ctrl.Delete(c.Request().Context(), requestDialog{confirm: confirm}, c.Param("id"))
	m.ObserveOperation(time.Since(start))
	if err != nil {
		return h.fail(c, m, err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (h *handlers) respond(c echo.Context, m *requestMetrics, status int, body any) error {
	start := time.Now()
	err := c.JSON(status, body)
	m.ObserveEncode(time.Since(start))
	if err != nil {
		m.SetErrorStage("encode_response")
	}
	return err
}

// fail maps board errors to responses: validation 400, unknown task 404,
// declined confirmation 428, closed board 503, anything else 500.
func (h *handlers) fail(c echo.Context, m *requestMetrics, err error) error {
	switch {
	case domain.IsValidation(err):
		m.SetErrorStage("validation")
		return c.String(http.StatusBadRequest, err.Error())
	case domain.IsNotFound(err):
		m.SetErrorStage("not_found")
		return c.String(http.StatusNotFound, err.Error())
	case errors.Is(err, board.ErrCancelled):
		m.SetErrorStage("confirmation")
		return c.String(http.StatusPreconditionRequired, "confirmation required")
	case errors.Is(err, board.ErrClosed):
		m.SetErrorStage("closed")
		return c.String(http.StatusServiceUnavailable, err.Error())
	default:
		m.SetErrorStage("board")
		h.logger.WithError(err).WithField("route", c.Path()).Error("board operation failed")
		return c.String(http.StatusInternalServerError, err.Error())
	}
}

func decodeBody(c echo.Context, v any) error {
	dec := sonic.ConfigStd.NewDecoder(io.LimitReader(c.Request().Body, maxBodySize))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
