package webhooks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/n8tive/platform/pkg/n8tive/billing"
	"github.com/n8tive/platform/pkg/n8tive/config"
	"github.com/n8tive/platform/pkg/n8tive/models"
	"github.com/n8tive/platform/pkg/n8tive/subscriptions"
	"github.com/rs/zerolog"
	"gorm.io/gorm"
)

var ErrMalformedEvent = errors.New("malformed event payload")

// Reconciler applies billing events to the subscription store. It is the
// single state-transition function for all four event kinds; handlers only
// verify and parse.
type Reconciler struct {
	db       *gorm.DB
	cfg      *config.Config
	provider billing.Provider
	log      zerolog.Logger
}

// NewReconciler creates a reconciler.
func NewReconciler(db *gorm.DB, cfg *config.Config, provider billing.Provider, log zerolog.Logger) *Reconciler {
	return &Reconciler{db: db, cfg: cfg, provider: provider, log: log}
}

// transition is the normalized form every event kind reduces to before the
// store upsert.
type transition struct {
	subscriptionRef string
	customerID      string
	priceID         string
	status          string
	cancelAtEnd     bool
	periodStart     int64
	periodEnd       int64
	email           string // from correlation metadata, may be empty
	terminal        bool   // deleted events force the canceled status
}

// Process applies one authenticated event. All required provider lookups run
// before any local write, so an upstream failure leaves local state untouched.
// Redelivery is safe: the upsert keys on the provider subscription reference.
func (r *Reconciler) Process(ctx context.Context, evt Event) error {
	switch evt.Type {
	case EventCheckoutCompleted:
		t, err := r.transitionFromCheckout(ctx, evt)
		if err != nil {
			return err
		}
		return r.apply(ctx, evt, t)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var obj subscriptionObject
		if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
			return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
		}
		if obj.ID == "" {
			return fmt.Errorf("%w: missing subscription reference", ErrMalformedEvent)
		}
		return r.apply(ctx, evt, transition{
			subscriptionRef: obj.ID,
			customerID:      obj.Customer,
			priceID:         obj.priceID(),
			status:          obj.Status,
			cancelAtEnd:     obj.CancelAtPeriodEnd,
			periodStart:     obj.CurrentPeriodStart,
			periodEnd:       obj.CurrentPeriodEnd,
			email:           obj.Metadata["email"],
			terminal:        evt.Type == EventSubscriptionDeleted,
		})

	default:
		// Providers deliver far more kinds than this service reconciles.
		r.log.Debug().Str("event_id", evt.ID).Str("type", evt.Type).Msg("ignoring event kind")
		return nil
	}
}

// transitionFromCheckout resolves a checkout-completed delivery to its
// underlying subscription and treats it as a created-equivalent event.
func (r *Reconciler) transitionFromCheckout(ctx context.Context, evt Event) (transition, error) {
	var obj checkoutObject
	if err := json.Unmarshal(evt.Data.Object, &obj); err != nil {
		return transition{}, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	if obj.ID == "" {
		return transition{}, fmt.Errorf("%w: missing session reference", ErrMalformedEvent)
	}

	subRef := obj.Subscription
	if subRef == "" {
		session, err := r.provider.GetCheckoutSession(ctx, obj.ID)
		if err != nil {
			return transition{}, err
		}
		subRef = session.SubscriptionID
		if len(obj.Metadata) == 0 {
			obj.Metadata = session.Metadata
		}
	}
	if subRef == "" {
		return transition{}, fmt.Errorf("%w: session %s has no subscription", ErrMalformedEvent, obj.ID)
	}

	sub, err := r.provider.GetSubscription(ctx, subRef)
	if err != nil {
		return transition{}, err
	}

	email := obj.Metadata["email"]
	if email == "" {
		email = obj.CustomerEmail
	}
	if email == "" {
		email = obj.CustomerDetails.Email
	}

	return transition{
		subscriptionRef: sub.ID,
		customerID:      firstNonEmpty(sub.CustomerID, obj.Customer),
		priceID:         sub.PriceID,
		status:          sub.Status,
		cancelAtEnd:     sub.CancelAtPeriodEnd,
		periodStart:     sub.CurrentPeriodStart,
		periodEnd:       sub.CurrentPeriodEnd,
		email:           email,
	}, nil
}

func (r *Reconciler) apply(ctx context.Context, evt Event, t transition) error {
	plan, ok := r.cfg.PlanForPrice(t.priceID)
	if !ok {
		plan = r.cfg.FallbackPlan
		r.log.Warn().
			Str("event_id", evt.ID).
			Str("price_id", t.priceID).
			Str("fallback", plan).
			Msg("no plan configured for price reference")
	}

	email := strings.ToLower(strings.TrimSpace(t.email))
	if email == "" && t.customerID != "" {
		resolved, err := r.provider.GetCustomerEmail(ctx, t.customerID)
		if err != nil {
			return err
		}
		email = strings.ToLower(strings.TrimSpace(resolved))
	}

	// External lookups are done; everything from here is local.
	var userID *uint
	var user models.User
	if email != "" {
		if err := r.db.Where("email = ?", email).First(&user).Error; err == nil {
			userID = &user.ID
		}
	}

	status := t.status
	if t.terminal {
		// The deletion payload's own status field is not trusted.
		status = models.StatusCanceled
	}

	row, err := subscriptions.UpsertByProviderRef(r.db, t.subscriptionRef, subscriptions.UpsertFields{
		UserID:             userID,
		ProviderCustomerID: t.customerID,
		ProviderPriceID:    t.priceID,
		CustomerEmail:      email,
		Plan:               plan,
		Status:             status,
		CurrentPeriodStart: unixTime(t.periodStart),
		CurrentPeriodEnd:   unixTime(t.periodEnd),
		CancelAtPeriodEnd:  t.cancelAtEnd,
	})
	if err != nil {
		return err
	}

	if userID != nil && !user.TierOverride {
		state := subscriptions.CurrentForUser(r.db, *userID)
		if state.Plan != user.Tier {
			if err := r.db.Model(&user).Update("tier", state.Plan).Error; err != nil {
				return err
			}
		}
	}

	r.log.Info().
		Str("event_id", evt.ID).
		Str("type", evt.Type).
		Str("subscription_ref", row.ProviderSubID).
		Str("plan", row.Plan).
		Str("status", row.Status).
		Bool("linked", userID != nil).
		Msg("event reconciled")
	return nil
}

func unixTime(sec int64) *time.Time {
	if sec == 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
