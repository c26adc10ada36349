package subscriptions

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"gorm.io/gorm"
)

// Handler serves subscription status queries
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new subscriptions handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// Status resolves the current plan for an email or external principal id.
// Unknown users and users without a subscription get {plan: free, status: none}.
func (h *Handler) Status(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	principalID := strings.TrimSpace(c.Query("principal_id"))

	if email == "" && principalID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email or principal_id is required"})
		return
	}

	var user models.User
	var err error
	if principalID != "" {
		err = h.db.Where("principal_id = ?", principalID).First(&user).Error
	} else {
		err = h.db.Where("email = ?", email).First(&user).Error
	}

	if err == nil {
		c.JSON(http.StatusOK, CurrentForUser(h.db, user.ID))
		return
	}

	// No local user yet; a subscription may still exist under this email if
	// the webhook arrived before the first identity sync.
	if email != "" {
		if state, ok := CurrentForEmail(h.db, email); ok {
			c.JSON(http.StatusOK, state)
			return
		}
	}

	c.JSON(http.StatusOK, CurrentState{Plan: "free", Status: models.StatusNone})
}

// RegisterRoutes registers subscription routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/status", h.Status)
}
