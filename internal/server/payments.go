package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/papapumpkin/treasury/internal/payments"
)

type paymentRequest struct {
	PaymentID string `json:"paymentId"`
	TxID      string `json:"txid"`
}

type signinRequest struct {
	AuthToken string `json:"authToken"`
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":          "healthy",
		"timestamp":       s.now().UTC().Format("2006-01-02T15:04:05.000Z07:00"),
		"environment":     s.Environment,
		"piSdkConfigured": s.Payments.Configured(),
		"endpoints": gin.H{
			"auth":              "/api/auth/signin",
			"paymentApprove":    "/api/payments/approve",
			"paymentComplete":   "/api/payments/complete",
			"paymentIncomplete": "/api/payments/incomplete",
			"actions":           "/api/actions",
		},
	})
}

func (s *Server) handleSignin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.AuthToken == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Authentication token required"})
		return
	}
	user, err := s.Payments.Me(c.Request.Context(), req.AuthToken)
	var uerr *payments.UpstreamError
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{
			"success": true,
			"user":    gin.H{"uid": user.UID, "username": user.Username},
		})
	case errors.Is(err, payments.ErrMissingCredential):
		s.logger().Error("payments api key not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
	case errors.As(err, &uerr):
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid authentication token"})
	default:
		s.logger().Error("auth signin failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Authentication failed"})
	}
}

func (s *Server) handleApprove(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment ID required"})
		return
	}
	res, err := s.Payments.Approve(c.Request.Context(), req.PaymentID)
	if err != nil {
		s.paymentError(c, "Payment approval failed", err)
		return
	}
	c.JSON(http.StatusOK, merge(gin.H{"success": true, "paymentId": req.PaymentID, "approved": true}, res))
}

func (s *Server) handleComplete(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PaymentID == "" || req.TxID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment ID and transaction ID required"})
		return
	}
	res, err := s.Payments.Complete(c.Request.Context(), req.PaymentID, req.TxID)
	if err != nil {
		s.paymentError(c, "Payment completion failed", err)
		return
	}
	c.JSON(http.StatusOK, merge(gin.H{"success": true, "paymentId": req.PaymentID, "txid": req.TxID, "completed": true}, res))
}

func (s *Server) handleIncomplete(c *gin.Context) {
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.PaymentID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Payment ID required"})
		return
	}
	res, err := s.Payments.Incomplete(c.Request.Context(), req.PaymentID)
	if err != nil {
		s.paymentError(c, "Payment incomplete check failed", err)
		return
	}
	c.JSON(http.StatusOK, merge(gin.H{"success": true, "paymentId": req.PaymentID}, res))
}

// paymentError maps a client error onto the response: configuration errors
// are 500, upstream rejections keep their status and body.
func (s *Server) paymentError(c *gin.Context, message string, err error) {
	var uerr *payments.UpstreamError
	switch {
	case errors.Is(err, payments.ErrMissingCredential):
		s.logger().Error("payments api key not configured")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Server configuration error"})
	case errors.As(err, &uerr):
		s.logger().Warn("upstream payment call rejected", "op", uerr.Op, "status", uerr.StatusCode)
		body := gin.H{"error": message}
		if len(uerr.Body) > 0 {
			body["details"] = uerr.Body
		}
		c.JSON(uerr.StatusCode, body)
	default:
		s.logger().Error("payment call failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": message})
	}
}

// merge copies upstream fields over base.
func merge(base gin.H, upstream payments.Result) gin.H {
	for k, v := range upstream {
		base[k] = v
	}
	return base
}
