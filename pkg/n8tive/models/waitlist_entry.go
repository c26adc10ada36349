package models

import "time"

// WaitlistEntry is a plain signup record. It is never reconciled against
// billing state; the optional user link is informational.
type WaitlistEntry struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Name      string    `gorm:"not null" json:"name"`
	Email     string    `gorm:"uniqueIndex;not null" json:"email"`
	Product   string    `gorm:"default:'all'" json:"product"`
	UserID    *uint     `json:"user_id,omitempty"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
