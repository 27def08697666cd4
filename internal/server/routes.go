package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/coinchat/internal/billing"
	"github.com/zulandar/coinchat/internal/chat"
	"github.com/zulandar/coinchat/internal/exchange"
	"github.com/zulandar/coinchat/internal/session"
	"go.uber.org/zap"
)

type handlers struct {
	s         *chat.Session
	log       *zap.Logger
	heartbeat time.Duration
}

// registerRoutes sets up all API routes on the Gin router.
func registerRoutes(router *gin.Engine, h *handlers) {
	router.GET("/healthz", h.health)

	api := router.Group("/api")
	api.GET("/threads", h.listThreads)
	api.POST("/threads", h.createThread)
	api.POST("/threads/:id/activate", h.activateThread)
	api.DELETE("/threads/:id", h.deleteThread)
	api.GET("/threads/:id/messages", h.threadMessages)
	api.DELETE("/threads/:id/messages", h.clearThread)
	api.POST("/messages", h.postMessage)
	api.GET("/balance", h.balance)
	api.GET("/events", h.events)
}

type errorResponse struct {
	Error string `json:"error"`
}

// statusFor maps core errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, session.ErrInvalidContent):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrInvalidThread), errors.Is(err, session.ErrUnknownThread):
		return http.StatusNotFound
	case errors.Is(err, exchange.ErrRequestInFlight):
		return http.StatusConflict
	case errors.Is(err, billing.ErrInsufficientFunds):
		return http.StatusPaymentRequired
	case errors.Is(err, exchange.ErrTransport):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *handlers) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.log.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, errorResponse{Error: err.Error()})
}

func (h *handlers) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type threadsResponse struct {
	ActiveThreadID string                  `json:"active_thread_id"`
	Threads        []session.ThreadSummary `json:"threads"`
}

func (h *handlers) listThreads(c *gin.Context) {
	resp := threadsResponse{Threads: h.s.Threads()}
	if th, ok := h.s.ActiveThread(); ok {
		resp.ActiveThreadID = th.ID
	}
	c.JSON(http.StatusOK, resp)
}

func (h *handlers) createThread(c *gin.Context) {
	th, err := h.s.NewThread(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, th)
}

func (h *handlers) activateThread(c *gin.Context) {
	if err := h.s.Switch(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	th, _ := h.s.ActiveThread()
	c.JSON(http.StatusOK, th)
}

func (h *handlers) deleteThread(c *gin.Context) {
	if err := h.s.DeleteThread(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *handlers) threadMessages(c *gin.Context) {
	msgs, err := h.s.History(c.Param("id"))
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": msgs})
}

func (h *handlers) clearThread(c *gin.Context) {
	if err := h.s.ClearHistory(c.Request.Context(), c.Param("id")); err != nil {
		h.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type postMessageRequest struct {
	Text     string `json:"text"`
	ThreadID string `json:"thread_id"` // empty posts to the active thread
}

type postMessageResponse struct {
	Outcome          string           `json:"outcome"`
	UserMessage      *session.Message `json:"user_message,omitempty"`
	AssistantMessage *session.Message `json:"assistant_message,omitempty"`
	Prompt           string           `json:"prompt,omitempty"`
	Error            string           `json:"error,omitempty"`
	PersistError     string           `json:"persist_error,omitempty"`
	BillingError     string           `json:"billing_error,omitempty"`
}

func (h *handlers) postMessage(c *gin.Context) {
	var req postMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "invalid request body: " + err.Error()})
		return
	}

	var (
		res exchange.Result
		err error
	)
	if req.ThreadID == "" {
		res, err = h.s.Submit(c.Request.Context(), req.Text)
	} else {
		res, err = h.s.SendTo(c.Request.Context(), req.ThreadID, req.Text)
	}
	if err != nil {
		h.fail(c, err)
		return
	}

	resp := postMessageResponse{
		Outcome:          res.Outcome.String(),
		UserMessage:      res.UserMessage,
		AssistantMessage: res.AssistantMessage,
		Prompt:           res.Prompt,
	}
	if res.Err != nil {
		resp.Error = res.Err.Error()
	}
	if res.PersistErr != nil {
		resp.PersistError = res.PersistErr.Error()
	}
	if res.BillingErr != nil {
		resp.BillingError = res.BillingErr.Error()
	}

	status := http.StatusOK
	switch res.Outcome {
	case exchange.OutcomeRejected:
		status = http.StatusPaymentRequired
	case exchange.OutcomeFailed:
		status = http.StatusBadGateway
	}
	c.JSON(status, resp)
}

func (h *handlers) balance(c *gin.Context) {
	snap, err := h.s.Balance(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}
