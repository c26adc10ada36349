package models

import "time"

// Subscription lifecycle statuses. Provider-defined except StatusNone, which
// is the synthetic value reported for users with no subscription at all.
const (
	StatusNone       = "none"
	StatusActive     = "active"
	StatusTrialing   = "trialing"
	StatusPastDue    = "past_due"
	StatusCanceled   = "canceled"
	StatusIncomplete = "incomplete"
)

// Subscription mirrors one billing-provider subscription. ProviderSubID is the
// provider's stable identifier and the natural idempotency key: events that
// reference the same id always update this row, never duplicate it.
//
// UserID is nullable: an event can arrive before the owning user has ever
// signed in. The row keeps the customer email so the identity linker can
// backfill ownership later.
type Subscription struct {
	ID                 uint       `gorm:"primarykey" json:"id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
	UserID             *uint      `gorm:"index" json:"user_id,omitempty"`
	ProviderCustomerID string     `gorm:"index" json:"provider_customer_id"`
	ProviderSubID      string     `gorm:"uniqueIndex;not null" json:"provider_sub_id"`
	ProviderPriceID    string     `json:"provider_price_id"`
	CustomerEmail      string     `gorm:"index" json:"customer_email"`
	Plan               string     `gorm:"default:'free'" json:"plan"`
	Status             string     `gorm:"default:'incomplete'" json:"status"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd  bool       `gorm:"default:false" json:"cancel_at_period_end"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}
