package http_api

import (
	"crypto/subtle"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/onyxos/onyxsync/internal/onyx"
	"github.com/onyxos/onyxsync/internal/tokens"
	"github.com/onyxos/onyxsync/internal/webhook"
	"github.com/onyxos/onyxsync/pkg/validation"
)

// cronAuth accepts the shared secret as ?secret= or a Bearer token. An empty
// secret rejects every request.
func cronAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		given := c.Query("secret")
		if given == "" {
			given = strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		}
		if secret == "" || subtle.ConstantTimeCompare([]byte(given), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Unauthorized",
			})
			return
		}
		c.Next()
	}
}

func (s *HTTPServer) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "status": "ok"})
}

// runJob is a handler for the /api/cron/:job endpoint.
func (s *HTTPServer) runJob(c *gin.Context) {
	name := c.Param("job")

	result, err := s.deps.Jobs.RunJob(c.Request.Context(), name)
	if errors.Is(err, onyx.ErrUnknownJob) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "Unknown job: " + name,
		})
		return
	}
	if err != nil {
		s.logger.Error("Cron job failed", "job", name, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   err.Error(),
			"job":     result,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"job":     result,
	})
}

// fanvueWebhook is a handler for Fanvue webhook deliveries. Anything that was
// stored is acknowledged so the upstream stops redelivering it.
func (s *HTTPServer) fanvueWebhook(c *gin.Context) {
	body, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{
			"success": false,
			"error":   "Failed to read request body",
		})
		return
	}

	outcome, err := s.deps.Webhooks.Handle(c.Request.Context(), body, c.GetHeader(webhook.SignatureHeader))
	switch {
	case errors.Is(err, webhook.ErrInvalidSignature):
		s.logger.Warn("Webhook signature rejected", "remote", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   "Invalid signature",
		})
		return
	case errors.Is(err, webhook.ErrMalformedPayload):
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	case err != nil:
		s.logger.Error("Failed to handle webhook", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to process webhook",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success":   true,
		"kind":      outcome.Kind,
		"duplicate": outcome.Duplicate,
	})
}

// connect redirects the browser to the Fanvue consent page.
func (s *HTTPServer) connect(c *gin.Context) {
	agencyID := c.Query("agency_id")
	if err := validation.ValidateUUID(agencyID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Invalid agency_id: " + err.Error(),
		})
		return
	}

	authURL, err := s.deps.Connector.Begin(c.Request.Context(), agencyID)
	if err != nil {
		s.logger.Error("Failed to start oauth connect", "agency_id", agencyID, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   "Failed to start Fanvue connect",
		})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// callback completes the connect started by connect.
func (s *HTTPServer) callback(c *gin.Context) {
	if e := c.Query("error"); e != "" {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   "Authorization denied: " + e,
		})
		return
	}

	creator, err := s.deps.Connector.Complete(c.Request.Context(), c.Query("state"), c.Query("code"))
	if errors.Is(err, tokens.ErrInvalidState) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error":   err.Error(),
		})
		return
	}
	if err != nil {
		s.logger.Error("Failed to complete oauth connect", "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"success": false,
			"error":   "Failed to connect Fanvue account",
		})
		return
	}

	if s.deps.ConnectedRedirect != "" {
		c.Redirect(http.StatusFound, s.deps.ConnectedRedirect)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"creator": creator,
	})
}
