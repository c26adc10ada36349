package subscriptions

import (
	"time"

	"github.com/n8tive/platform/pkg/n8tive/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// UpsertFields are the values applied to the row addressed by one provider
// subscription reference. Status, plan, period bounds and the cancellation
// flag are applied unconditionally (last-write-wins); customer identifiers
// and the user link are only written when known, so a sparse later event
// cannot erase them.
type UpsertFields struct {
	UserID             *uint
	ProviderCustomerID string
	ProviderPriceID    string
	CustomerEmail      string
	Plan               string
	Status             string
	CurrentPeriodStart *time.Time
	CurrentPeriodEnd   *time.Time
	CancelAtPeriodEnd  bool
}

// UpsertByProviderRef updates the unique row for the reference if present,
// else inserts it. The conflict clause on provider_sub_id is the
// serialization point: concurrent deliveries for the same reference collapse
// onto one row, deliveries for different references do not contend.
func UpsertByProviderRef(db *gorm.DB, ref string, fields UpsertFields) (*models.Subscription, error) {
	sub := models.Subscription{
		ProviderSubID:      ref,
		UserID:             fields.UserID,
		ProviderCustomerID: fields.ProviderCustomerID,
		ProviderPriceID:    fields.ProviderPriceID,
		CustomerEmail:      fields.CustomerEmail,
		Plan:               fields.Plan,
		Status:             fields.Status,
		CurrentPeriodStart: fields.CurrentPeriodStart,
		CurrentPeriodEnd:   fields.CurrentPeriodEnd,
		CancelAtPeriodEnd:  fields.CancelAtPeriodEnd,
	}

	assignments := map[string]interface{}{
		"plan":                 fields.Plan,
		"status":               fields.Status,
		"provider_price_id":    fields.ProviderPriceID,
		"current_period_start": fields.CurrentPeriodStart,
		"current_period_end":   fields.CurrentPeriodEnd,
		"cancel_at_period_end": fields.CancelAtPeriodEnd,
		"updated_at":           time.Now(),
	}
	if fields.UserID != nil {
		assignments["user_id"] = *fields.UserID
	}
	if fields.ProviderCustomerID != "" {
		assignments["provider_customer_id"] = fields.ProviderCustomerID
	}
	if fields.CustomerEmail != "" {
		assignments["customer_email"] = fields.CustomerEmail
	}

	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_sub_id"}},
		DoUpdates: clause.Assignments(assignments),
	}).Create(&sub).Error
	if err != nil {
		return nil, err
	}

	var row models.Subscription
	if err := db.Where("provider_sub_id = ?", ref).First(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

// CurrentState is the resolved billing state for one user.
type CurrentState struct {
	Plan              string     `json:"plan"`
	Status            string     `json:"status"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
}

// CurrentForUser returns the most recently created subscription row for the
// user, or {free, none} if there is none. Older rows are history and are
// never consulted.
func CurrentForUser(db *gorm.DB, userID uint) CurrentState {
	var sub models.Subscription
	err := db.Where("user_id = ?", userID).Order("created_at DESC, id DESC").First(&sub).Error
	if err != nil {
		return CurrentState{Plan: "free", Status: models.StatusNone}
	}
	return CurrentState{
		Plan:              sub.Plan,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}
}

// CurrentForEmail resolves state for subscription rows not yet linked to a
// user, addressed by the customer email the provider reported.
func CurrentForEmail(db *gorm.DB, email string) (CurrentState, bool) {
	var sub models.Subscription
	err := db.Where("customer_email = ?", email).Order("created_at DESC, id DESC").First(&sub).Error
	if err != nil {
		return CurrentState{Plan: "free", Status: models.StatusNone}, false
	}
	return CurrentState{
		Plan:              sub.Plan,
		Status:            sub.Status,
		CurrentPeriodEnd:  sub.CurrentPeriodEnd,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
	}, true
}
