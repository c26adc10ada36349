package checkout

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/billing"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/rs/zerolog"
)

// Handler starts billing-provider checkout sessions
type Handler struct {
	cfg      *config.Config
	provider billing.Provider
	log      zerolog.Logger
}

// NewHandler creates a new checkout handler
func NewHandler(cfg *config.Config, provider billing.Provider, log zerolog.Logger) *Handler {
	return &Handler{cfg: cfg, provider: provider, log: log}
}

// StartRequest represents the checkout request body
type StartRequest struct {
	Email string `json:"email" binding:"required,email"`
	Plan  string `json:"plan" binding:"required"`
}

// StartResponse represents the checkout response
type StartResponse struct {
	Plan             string `json:"plan"`
	CheckoutRequired bool   `json:"checkout_required"`
	SessionID        string `json:"session_id,omitempty"`
	RedirectURL      string `json:"redirect_url,omitempty"`
}

// Start validates the plan and creates a provider session stamped with the
// email and plan as correlation metadata, so later events can be linked to
// this user even before a local user row exists. The free plan never touches
// the provider.
func (h *Handler) Start(c *gin.Context) {
	var req StartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	planKey := strings.ToLower(strings.TrimSpace(req.Plan))

	plan, ok := h.cfg.Plan(planKey)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown plan: " + planKey})
		return
	}

	if plan.Amount == 0 {
		c.JSON(http.StatusOK, StartResponse{Plan: plan.Key, CheckoutRequired: false})
		return
	}

	if plan.PriceID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Plan not configured for payment: " + planKey})
		return
	}

	session, err := h.provider.CreateCheckoutSession(c.Request.Context(), billing.CheckoutParams{
		PriceID:       plan.PriceID,
		CustomerEmail: email,
		SuccessURL:    h.cfg.CheckoutSuccessURL,
		CancelURL:     h.cfg.CheckoutCancelURL,
		Metadata: map[string]string{
			"email": email,
			"plan":  plan.Key,
		},
	})
	if err != nil {
		h.log.Error().Err(err).Str("plan", plan.Key).Msg("checkout session creation failed")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Billing provider unavailable"})
		return
	}

	c.JSON(http.StatusOK, StartResponse{
		Plan:             plan.Key,
		CheckoutRequired: true,
		SessionID:        session.ID,
		RedirectURL:      session.URL,
	})
}

// RegisterRoutes registers checkout routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Start)
}
