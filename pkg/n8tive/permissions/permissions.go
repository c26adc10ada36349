package permissions

import (
	"github.com/n8tive/platform/pkg/n8tive/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PrivilegedGrantSet is the fixed capability set granted to privileged
// accounts, each scoped to the wildcard resource.
var PrivilegedGrantSet = []string{
	"admin",
	"read",
	"write",
	"delete",
	"manage_subscriptions",
	"manage_users",
	"toggle_tiers",
	"access_rls",
}

// EnsurePrivilegedGrants idempotently inserts the privileged capability set
// for the user. Re-invocation is always safe: the (user, permission, resource)
// uniqueness constraint turns a re-grant into a no-op.
func EnsurePrivilegedGrants(db *gorm.DB, userID uint) error {
	for _, perm := range PrivilegedGrantSet {
		grant := models.PermissionGrant{
			UserID:     userID,
			Permission: perm,
			Resource:   models.ResourceAll,
		}
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&grant).Error; err != nil {
			return err
		}
	}
	return nil
}

// Check reports whether the user holds the permission on the resource.
// Privileged accounts bypass the grant lookup entirely; everyone else needs a
// grant row matching the resource exactly or via the wildcard.
func Check(db *gorm.DB, userID uint, permission, resource string) bool {
	if resource == "" {
		resource = models.ResourceAll
	}

	var user models.User
	if err := db.First(&user, userID).Error; err != nil {
		return false
	}
	if user.Role == models.RoleAdmin || user.IsPrivileged {
		return true
	}

	var count int64
	db.Model(&models.PermissionGrant{}).
		Where("user_id = ? AND permission = ? AND resource IN ?", userID, permission, []string{resource, models.ResourceAll}).
		Count(&count)
	return count > 0
}

// GrantsForUser returns all grant rows for a user, oldest first.
func GrantsForUser(db *gorm.DB, userID uint) ([]models.PermissionGrant, error) {
	var grants []models.PermissionGrant
	err := db.Where("user_id = ?", userID).Order("granted_at ASC, id ASC").Find(&grants).Error
	return grants, err
}
