// Package billing is the boundary to the payment provider. Only the calls the
// reconciler and checkout flow need are modelled; everything else about the
// provider is opaque.
package billing

import (
	"context"
	"errors"
)

// ErrProvider wraps any upstream failure (unreachable, non-2xx, bad body).
var ErrProvider = errors.New("billing provider error")

// CheckoutParams describes a checkout session to create. Metadata is echoed
// back in later webhook events and is how the reconciler links an event to a
// user before any local row exists.
type CheckoutParams struct {
	PriceID       string
	CustomerEmail string
	SuccessURL    string
	CancelURL     string
	Metadata      map[string]string
}

// CheckoutSession is the provider's session record.
type CheckoutSession struct {
	ID             string
	URL            string
	SubscriptionID string
	CustomerID     string
	Metadata       map[string]string
}

// Subscription is the provider's subscription record.
type Subscription struct {
	ID                 string
	CustomerID         string
	PriceID            string
	Status             string
	CancelAtPeriodEnd  bool
	CurrentPeriodStart int64 // unix seconds, 0 when absent
	CurrentPeriodEnd   int64
	Metadata           map[string]string
}

// Provider is the outbound contract with the billing provider. All calls are
// time-bounded via the context; callers apply local writes only after every
// required lookup has succeeded.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)
	GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetCustomerEmail(ctx context.Context, customerID string) (string, error)
}
