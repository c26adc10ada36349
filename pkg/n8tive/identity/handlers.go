package identity

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/auth"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

// Handler serves the identity sync endpoint
type Handler struct {
	linker *Linker
	cfg    *config.Config
	log    zerolog.Logger
}

// NewHandler creates a new identity handler
func NewHandler(db *gorm.DB, cfg *config.Config, log zerolog.Logger) *Handler {
	return &Handler{
		linker: NewLinker(db, cfg, log),
		cfg:    cfg,
		log:    log,
	}
}

// SyncRequest mirrors the payload the auth frontend posts after a provider
// login.
type SyncRequest struct {
	PrincipalID  string `json:"cognito_user_id" binding:"required"`
	Email        string `json:"email" binding:"required,email"`
	Name         string `json:"name"`
	AuthProvider string `json:"auth_provider"`
}

// SyncResponse reports the resolved user and a local session token.
type SyncResponse struct {
	Synced bool               `json:"synced"`
	Token  string             `json:"token,omitempty"`
	User   *auth.UserResponse `json:"user,omitempty"`
}

// Sync resolves the external principal to a local user. A storage failure is
// reported in the body but never as an error status: the login flow on the
// client must not break because the local mirror is behind.
func (h *Handler) Sync(c *gin.Context) {
	var req SyncRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user, err := h.linker.ResolveOrCreate(SyncInput{
		PrincipalID:  req.PrincipalID,
		Email:        req.Email,
		Name:         req.Name,
		AuthProvider: req.AuthProvider,
	})
	if err != nil {
		h.log.Error().Err(err).
			Str("principal_id", req.PrincipalID).
			Str("email", req.Email).
			Msg("identity sync failed")
		c.JSON(http.StatusOK, SyncResponse{Synced: false})
		return
	}

	token, err := auth.GenerateToken(h.cfg.JWTSecret, user.ID, user.Email, string(user.Role))
	if err != nil {
		h.log.Error().Err(err).Uint("user_id", user.ID).Msg("token generation failed after sync")
		c.JSON(http.StatusOK, SyncResponse{Synced: false})
		return
	}

	c.JSON(http.StatusOK, SyncResponse{
		Synced: true,
		Token:  token,
		User: &auth.UserResponse{
			ID:           user.ID,
			Email:        user.Email,
			Name:         user.Name,
			Role:         string(user.Role),
			IsPrivileged: user.IsPrivileged,
			Tier:         user.Tier,
		},
	})
}

// RegisterRoutes registers identity routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/sync", h.Sync)
}
