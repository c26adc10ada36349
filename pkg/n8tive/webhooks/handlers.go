package webhooks

import (
	"encoding/json"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/billing"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// maxBodySize caps webhook payloads; provider events are a few KB.
const maxBodySize = 1 << 20

// Handler receives billing-provider webhook deliveries
type Handler struct {
	reconciler *Reconciler
	cfg        *config.Config
	log        zerolog.Logger
}

// NewHandler creates a new webhooks handler
func NewHandler(db *gorm.DB, cfg *config.Config, provider billing.Provider, log zerolog.Logger) *Handler {
	return &Handler{
		reconciler: NewReconciler(db, cfg, provider, log),
		cfg:        cfg,
		log:        log,
	}
}

// HandleBillingEvent verifies, parses and reconciles one delivery.
//
// Rejections (bad signature, unparseable envelope) are hard 400s with no side
// effects. Once authenticity is established the delivery is always
// acknowledged with 200, even if reconciliation fails internally: a non-2xx
// here only triggers provider retries that would hit the same failure. The
// failure is logged with enough fields to replay it by hand.
func (h *Handler) HandleBillingEvent(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBodySize))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read request body"})
		return
	}

	timestamp, err := strconv.ParseInt(c.GetHeader(HeaderTimestamp), 10, 64)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing or invalid signature timestamp"})
		return
	}

	if err := VerifySignature(h.cfg.WebhookSecret, body, c.GetHeader(HeaderSignature), timestamp); err != nil {
		h.log.Warn().Err(err).Msg("webhook signature rejected")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid signature"})
		return
	}

	var evt Event
	if err := json.Unmarshal(body, &evt); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid event payload"})
		return
	}

	if err := h.reconciler.Process(c.Request.Context(), evt); err != nil {
		h.log.Error().Err(err).
			Str("event_id", evt.ID).
			Str("type", evt.Type).
			Msg("reconciliation failed after ack")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// RegisterRoutes registers webhook routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/billing", h.HandleBillingEvent)
}
