package waitlist

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"gorm.io/gorm"
)

// Handler handles waitlist signups
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new waitlist handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// SignupRequest represents the waitlist form submission
type SignupRequest struct {
	Name    string `json:"name" binding:"required"`
	Email   string `json:"email" binding:"required,email"`
	Product string `json:"product"`
}

// Signup adds an email to the waitlist. Duplicate emails are a conflict, not
// a generic failure.
func (h *Handler) Signup(c *gin.Context) {
	var req SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	product := strings.TrimSpace(req.Product)
	if product == "" {
		product = "all"
	}

	entry := models.WaitlistEntry{
		Name:    strings.TrimSpace(req.Name),
		Email:   email,
		Product: product,
	}

	// Link a user when one already exists for this email.
	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err == nil {
		entry.UserID = &user.ID
	}

	if err := h.db.Create(&entry).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) || strings.Contains(err.Error(), "UNIQUE constraint failed") {
			c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to add to waitlist"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success": true,
		"message": "Successfully added to waitlist",
		"id":      entry.ID,
	})
}

// RegisterRoutes registers waitlist routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("", h.Signup)
}
