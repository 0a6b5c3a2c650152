package server

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/papapumpkin/treasury/internal/action"
	"github.com/papapumpkin/treasury/internal/lifecycle"
	"github.com/papapumpkin/treasury/internal/store"
	"github.com/papapumpkin/treasury/internal/telemetry"
	"github.com/papapumpkin/treasury/internal/treasury"
)

type cancelRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) handleCreateAction(c *gin.Context) {
	var p action.Payload
	if err := c.ShouldBindJSON(&p); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	a, err := s.Service.Create(c.Request.Context(), p)
	var verr *action.ValidationError
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, a)
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Message, "code": verr.Code})
	default:
		s.logger().Error("create action failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create action"})
	}
}

func (s *Server) handleListActions(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"actions":    s.Service.Store.ListAll(),
		"statusFlow": action.StatusFlow(),
	})
}

func (s *Server) handleGetAction(c *gin.Context) {
	a, err := s.Service.Store.Get(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
		return
	}
	c.JSON(http.StatusOK, a)
}

// handleSignal is the webhook through which a wallet integration reports
// approval progress for an action waiting on the live source.
func (s *Server) handleSignal(c *gin.Context) {
	id := c.Param("id")
	live := s.live()
	if live == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Live signal source not enabled"})
		return
	}
	a, err := s.Service.Store.Get(id)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
		return
	}
	if a.Status.Terminal() {
		c.JSON(http.StatusConflict, gin.H{"error": "Action already " + string(a.Status)})
		return
	}
	var sig lifecycle.Signal
	if err := c.ShouldBindJSON(&sig); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := sig.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err = live.Deliver(id, sig)
	result := "applied"
	if err != nil {
		result = "rejected"
	}
	if s.Metrics != nil {
		s.Metrics.Signal(string(sig.Kind), result)
	}
	if terr := s.Telemetry.Emit(telemetry.Event{
		Timestamp: s.now(),
		Kind:      telemetry.KindSignalReceived,
		ActionID:  id,
		Data:      map[string]string{"kind": string(sig.Kind), "result": result},
	}); terr != nil {
		s.logger().Warn("telemetry emit failed", "error", terr)
	}

	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"accepted": true, "id": id, "kind": sig.Kind})
	case errors.Is(err, lifecycle.ErrNotSubscribed), errors.Is(err, lifecycle.ErrBacklogFull):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func (s *Server) handleCancel(c *gin.Context) {
	id := c.Param("id")
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	// Cancel returns after the action's runner, if any, recorded the failure.
	err := s.Service.Cancel(c.Request.Context(), id, req.Reason)
	switch {
	case err == nil:
		a, _ := s.Service.Store.Get(id)
		c.JSON(http.StatusOK, a)
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Action not found"})
	case errors.Is(err, treasury.ErrTerminal), errors.Is(err, store.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		s.logger().Error("cancel action failed", "id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel action"})
	}
}
