package config

import (
	"strings"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Plan describes one purchasable tier. The free plan has no price reference
// and is never reconciled against provider events.
type Plan struct {
	Key         string
	DisplayName string
	PriceID     string // billing-provider price reference, empty for free
	Amount      int    // cents
	Currency    string
}

// Config is built once in main and passed into every component. Nothing in
// the service reads ambient environment after Load returns.
type Config struct {
	Port   string `env:"PORT" envDefault:"8080"`
	DBPath string `env:"N8TIVE_DB_PATH" envDefault:"n8tive.db"`

	JWTSecret string `env:"JWT_SECRET" envDefault:"n8tive-dev-secret-change-in-production"`

	AdminEmail    string `env:"ADMIN_EMAIL" envDefault:"admin@n8tive.local"`
	AdminPassword string `env:"ADMIN_PASSWORD" envDefault:"changeme"`

	BillingAPIURL      string `env:"BILLING_API_URL" envDefault:"https://api.stripe.com"`
	BillingAPIKey      string `env:"BILLING_API_KEY"`
	WebhookSecret      string `env:"BILLING_WEBHOOK_SECRET"`
	CheckoutSuccessURL string `env:"CHECKOUT_SUCCESS_URL" envDefault:"https://n8tive.io/checkout/success"`
	CheckoutCancelURL  string `env:"CHECKOUT_CANCEL_URL" envDefault:"https://n8tive.io/pricing"`

	PriceIDPro        string `env:"BILLING_PRICE_PRO"`
	PriceIDBusiness   string `env:"BILLING_PRICE_BUSINESS"`
	PriceIDEnterprise string `env:"BILLING_PRICE_ENTERPRISE"`

	// FallbackPlan is applied when an event carries a price reference that
	// matches no configured plan.
	FallbackPlan string `env:"FALLBACK_PLAN" envDefault:"pro"`

	// PrivilegedEmails are promoted to admin with the full grant set on every
	// identity sync.
	PrivilegedEmails []string `env:"PRIVILEGED_EMAILS" envSeparator:","`

	plans            map[string]Plan
	privilegedEmails map[string]struct{}
}

// Load reads the optional .env file, parses the environment into a Config and
// finalizes the derived lookup tables.
func Load() (*Config, error) {
	_ = godotenv.Load() // the .env file is optional

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	cfg.Finalize()
	return cfg, nil
}

// Finalize builds the plan table and privileged-email set. Tests that
// construct a Config literal must call it before use.
func (c *Config) Finalize() {
	c.plans = map[string]Plan{
		"free":       {Key: "free", DisplayName: "Free", Amount: 0, Currency: "usd"},
		"pro":        {Key: "pro", DisplayName: "Pro", PriceID: c.PriceIDPro, Amount: 900, Currency: "usd"},
		"business":   {Key: "business", DisplayName: "Business", PriceID: c.PriceIDBusiness, Amount: 2900, Currency: "usd"},
		"enterprise": {Key: "enterprise", DisplayName: "Enterprise", PriceID: c.PriceIDEnterprise, Amount: 9900, Currency: "usd"},
	}

	c.privilegedEmails = make(map[string]struct{}, len(c.PrivilegedEmails))
	for _, e := range c.PrivilegedEmails {
		e = strings.ToLower(strings.TrimSpace(e))
		if e != "" {
			c.privilegedEmails[e] = struct{}{}
		}
	}
}

// Plan returns the plan for a key.
func (c *Config) Plan(key string) (Plan, bool) {
	p, ok := c.plans[strings.ToLower(key)]
	return p, ok
}

// PlanNames returns the configured plan keys.
func (c *Config) PlanNames() []string {
	names := make([]string, 0, len(c.plans))
	for k := range c.plans {
		names = append(names, k)
	}
	return names
}

// PlanForPrice reverse-looks-up a plan key from a provider price reference.
func (c *Config) PlanForPrice(priceID string) (string, bool) {
	if priceID == "" {
		return "", false
	}
	for key, p := range c.plans {
		if p.PriceID != "" && p.PriceID == priceID {
			return key, true
		}
	}
	return "", false
}

// IsPrivilegedEmail reports whether the email is on the privileged allowlist.
func (c *Config) IsPrivilegedEmail(email string) bool {
	_, ok := c.privilegedEmails[strings.ToLower(strings.TrimSpace(email))]
	return ok
}
