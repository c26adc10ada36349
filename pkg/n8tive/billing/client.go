package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
)

const requestTimeout = 10 * time.Second

// Client talks to a Stripe-shaped REST API with form-encoded requests and a
// bearer API key.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a provider client for the given API base URL and key.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}

type sessionPayload struct {
	ID           string            `json:"id"`
	URL          string            `json:"url"`
	Subscription string            `json:"subscription"`
	Customer     string            `json:"customer"`
	Metadata     map[string]string `json:"metadata"`
}

type subscriptionPayload struct {
	ID                 string `json:"id"`
	Customer           string `json:"customer"`
	Status             string `json:"status"`
	CancelAtPeriodEnd  bool   `json:"cancel_at_period_end"`
	CurrentPeriodStart int64  `json:"current_period_start"`
	CurrentPeriodEnd   int64  `json:"current_period_end"`
	Items              struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
	Metadata map[string]string `json:"metadata"`
}

type customerPayload struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// CreateCheckoutSession creates a subscription-mode checkout session carrying
// the correlation metadata.
func (c *Client) CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error) {
	form := url.Values{}
	form.Set("mode", "subscription")
	form.Set("line_items[0][price]", params.PriceID)
	form.Set("line_items[0][quantity]", "1")
	form.Set("success_url", params.SuccessURL)
	form.Set("cancel_url", params.CancelURL)
	form.Set("customer_email", params.CustomerEmail)
	for k, v := range params.Metadata {
		form.Set(fmt.Sprintf("metadata[%s]", k), v)
	}

	var payload sessionPayload
	if err := c.doIdempotent(ctx, "/v1/checkout/sessions", form, &payload); err != nil {
		return nil, err
	}
	return sessionFromPayload(payload), nil
}

// GetCheckoutSession fetches a session, used to resolve the subscription
// reference behind a checkout-completed event.
func (c *Client) GetCheckoutSession(ctx context.Context, sessionID string) (*CheckoutSession, error) {
	var payload sessionPayload
	if err := c.do(ctx, http.MethodGet, "/v1/checkout/sessions/"+url.PathEscape(sessionID), nil, &payload); err != nil {
		return nil, err
	}
	return sessionFromPayload(payload), nil
}

// GetSubscription fetches a subscription by its provider reference.
func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	var payload subscriptionPayload
	if err := c.do(ctx, http.MethodGet, "/v1/subscriptions/"+url.PathEscape(subscriptionID), nil, &payload); err != nil {
		return nil, err
	}

	sub := &Subscription{
		ID:                 payload.ID,
		CustomerID:         payload.Customer,
		Status:             payload.Status,
		CancelAtPeriodEnd:  payload.CancelAtPeriodEnd,
		CurrentPeriodStart: payload.CurrentPeriodStart,
		CurrentPeriodEnd:   payload.CurrentPeriodEnd,
		Metadata:           payload.Metadata,
	}
	if len(payload.Items.Data) > 0 {
		sub.PriceID = payload.Items.Data[0].Price.ID
	}
	return sub, nil
}

// GetCustomerEmail fetches the email the provider has on file for a customer.
func (c *Client) GetCustomerEmail(ctx context.Context, customerID string) (string, error) {
	var payload customerPayload
	if err := c.do(ctx, http.MethodGet, "/v1/customers/"+url.PathEscape(customerID), nil, &payload); err != nil {
		return "", err
	}
	return payload.Email, nil
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values, out interface{}) error {
	return c.send(ctx, method, path, form, "", out)
}

// doIdempotent posts with a fresh idempotency key so a timed-out create
// retried by a caller cannot double-charge.
func (c *Client) doIdempotent(ctx context.Context, path string, form url.Values, out interface{}) error {
	return c.send(ctx, http.MethodPost, path, form, uuid.NewString(), out)
}

func (c *Client) send(ctx context.Context, method, path string, form url.Values, idempotencyKey string, out interface{}) error {
	var body io.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if idempotencyKey != "" {
		req.Header.Set("Idempotency-Key", idempotencyKey)
	}
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrProvider, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: %s %s returned %d: %s", ErrProvider, method, path, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decoding response: %v", ErrProvider, err)
	}
	return nil
}

func sessionFromPayload(p sessionPayload) *CheckoutSession {
	return &CheckoutSession{
		ID:             p.ID,
		URL:            p.URL,
		SubscriptionID: p.Subscription,
		CustomerID:     p.Customer,
		Metadata:       p.Metadata,
	}
}
