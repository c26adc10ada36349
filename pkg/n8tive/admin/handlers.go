package admin

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/n8tive/platform/pkg/n8tive/auth"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"github.com/n8tive/platform/pkg/n8tive/permissions"
	"github.com/n8tive/platform/pkg/n8tive/subscriptions"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Handler handles admin requests. All routes are registered behind
// AuthMiddleware + RequirePrivileged.
type Handler struct {
	db  *gorm.DB
	cfg *config.Config
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB, cfg *config.Config) *Handler {
	return &Handler{db: db, cfg: cfg}
}

// CreateDevAccountRequest represents the dev-account provisioning body
type CreateDevAccountRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// ToggleSubscriptionRequest represents the tier override body
type ToggleSubscriptionRequest struct {
	Email string `json:"email" binding:"required,email"`
	Tier  string `json:"tier" binding:"required"`
}

// UserInfoResponse represents user data in admin responses
type UserInfoResponse struct {
	ID           uint                       `json:"id"`
	Email        string                     `json:"email"`
	Name         string                     `json:"name"`
	Role         string                     `json:"role"`
	IsPrivileged bool                       `json:"is_privileged"`
	Tier         string                     `json:"tier"`
	TierOverride bool                       `json:"tier_override"`
	CreatedAt    string                     `json:"created_at"`
	Subscription subscriptions.CurrentState `json:"subscription"`
	GrantCount   int64                      `json:"grant_count"`
}

// overrideRef is the stable subscription reference for a user's admin
// override row. Keying on the user id keeps repeated overrides on one row and
// lets them race webhook upserts without duplicating.
func overrideRef(userID uint) string {
	return fmt.Sprintf("override-%d", userID)
}

// CreateDevAccount provisions (or re-provisions) a privileged account with
// the full grant set and an enterprise override subscription.
func (h *Handler) CreateDevAccount(c *gin.Context) {
	var req CreateDevAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	name := req.Name
	if name == "" {
		name = "Dev Account"
	}

	user := models.User{
		Email:        email,
		Name:         name,
		Role:         models.RoleAdmin,
		IsPrivileged: true,
		Tier:         "enterprise",
		TierOverride: true,
	}
	assignments := map[string]interface{}{
		"role":          models.RoleAdmin,
		"is_privileged": true,
		"tier":          "enterprise",
		"tier_override": true,
	}
	if req.Password != "" {
		hash, err := auth.HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
			return
		}
		user.PasswordHash = hash
		assignments["password_hash"] = hash
	}

	err := h.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "email"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&user).Error
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create dev account"})
		return
	}

	var row models.User
	if err := h.db.Where("email = ?", email).First(&row).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create dev account"})
		return
	}

	if err := permissions.EnsurePrivilegedGrants(h.db, row.ID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to grant permissions"})
		return
	}

	if _, err := subscriptions.UpsertByProviderRef(h.db, overrideRef(row.ID), subscriptions.UpsertFields{
		UserID:        &row.ID,
		CustomerEmail: email,
		Plan:          "enterprise",
		Status:        models.StatusActive,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to set subscription"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"user_id": row.ID,
		"email":   row.Email,
		"tier":    "enterprise",
	})
}

// ToggleSubscription overrides a user's tier through the same upsert
// discipline the reconciler uses, so it cannot duplicate rows against a
// concurrent webhook.
func (h *Handler) ToggleSubscription(c *gin.Context) {
	var req ToggleSubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tier := strings.ToLower(strings.TrimSpace(req.Tier))
	if _, ok := h.cfg.Plan(tier); !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid tier: " + tier})
		return
	}

	email := strings.ToLower(strings.TrimSpace(req.Email))
	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	// Dropping back to free closes the override row rather than deleting it.
	status := models.StatusActive
	if tier == "free" {
		status = models.StatusCanceled
	}

	if _, err := subscriptions.UpsertByProviderRef(h.db, overrideRef(user.ID), subscriptions.UpsertFields{
		UserID:        &user.ID,
		CustomerEmail: email,
		Plan:          tier,
		Status:        status,
	}); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update subscription"})
		return
	}

	updates := map[string]interface{}{"tier": tier, "tier_override": true}
	if err := h.db.Model(&user).Updates(updates).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"email":   email,
		"tier":    tier,
	})
}

// GetUserInfo returns a user with its resolved subscription state
func (h *Handler) GetUserInfo(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var grantCount int64
	h.db.Model(&models.PermissionGrant{}).Where("user_id = ?", user.ID).Count(&grantCount)

	c.JSON(http.StatusOK, UserInfoResponse{
		ID:           user.ID,
		Email:        user.Email,
		Name:         user.Name,
		Role:         string(user.Role),
		IsPrivileged: user.IsPrivileged,
		Tier:         user.Tier,
		TierOverride: user.TierOverride,
		CreatedAt:    user.CreatedAt.Format("2006-01-02T15:04:05Z"),
		Subscription: subscriptions.CurrentForUser(h.db, user.ID),
		GrantCount:   grantCount,
	})
}

// GetPermissions lists a user's grant rows
func (h *Handler) GetPermissions(c *gin.Context) {
	email := strings.ToLower(strings.TrimSpace(c.Query("email")))
	if email == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "email is required"})
		return
	}

	var user models.User
	if err := h.db.Where("email = ?", email).First(&user).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	grants, err := permissions.GrantsForUser(h.db, user.ID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch permissions"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"email":         user.Email,
		"is_privileged": user.IsPrivileged,
		"grants":        grants,
	})
}

// ListWaitlist returns all waitlist entries, newest first
func (h *Handler) ListWaitlist(c *gin.Context) {
	var entries []models.WaitlistEntry
	if err := h.db.Order("created_at DESC").Find(&entries).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch waitlist"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"count":   len(entries),
		"entries": entries,
	})
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.POST("/create-dev-account", h.CreateDevAccount)
	rg.POST("/toggle-subscription", h.ToggleSubscription)
	rg.GET("/user-info", h.GetUserInfo)
	rg.GET("/permissions", h.GetPermissions)
	rg.GET("/waitlist", h.ListWaitlist)
}
