package models

import "time"

// ResourceAll is the wildcard resource scope.
const ResourceAll = "all"

// PermissionGrant is one capability held by a user. Rows are unique per
// (user, permission, resource) and are only ever added, never mutated.
type PermissionGrant struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	UserID     uint      `gorm:"not null;uniqueIndex:idx_grant_triple" json:"user_id"`
	Permission string    `gorm:"not null;uniqueIndex:idx_grant_triple" json:"permission"`
	Resource   string    `gorm:"not null;default:'all';uniqueIndex:idx_grant_triple" json:"resource"`
	GrantedAt  time.Time `gorm:"autoCreateTime" json:"granted_at"`

	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
