package models

import (
	"time"

	"gorm.io/gorm"
)

// Role represents a user's system-wide role
type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

// User is the local identity anchor. A user may arrive via the external
// identity provider (PrincipalID set) or via admin provisioning (email only);
// at most one row exists per principal id and per email.
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	PrincipalID  *string        `gorm:"uniqueIndex" json:"principal_id,omitempty"` // external identity-provider subject
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	Name         string         `json:"name"`
	AuthProvider string         `json:"auth_provider,omitempty"`
	PasswordHash string         `json:"-"` // only set for the bootstrap admin
	Role         Role           `gorm:"type:varchar(20);default:'user'" json:"role"`
	IsPrivileged bool           `gorm:"default:false" json:"is_privileged"`
	Tier         string         `gorm:"default:'free'" json:"tier"` // denormalized from current subscription
	TierOverride bool           `gorm:"default:false" json:"tier_override"`
	LastSeenAt   *time.Time     `json:"last_seen_at,omitempty"`

	// Relationships
	Subscriptions    []Subscription    `gorm:"foreignKey:UserID" json:"subscriptions,omitempty"`
	PermissionGrants []PermissionGrant `gorm:"foreignKey:UserID" json:"permission_grants,omitempty"`
}
