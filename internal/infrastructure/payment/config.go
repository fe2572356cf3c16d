package payment

import (
	"fmt"

	"github.com/stripe/stripe-go/v81"

	"github.com/meterd/backend/internal/domain/billing"
)

// Config holds configuration for the Stripe integration
type Config struct {
	// SecretKey is the Stripe secret API key (sk_test_xxx or sk_live_xxx)
	SecretKey string

	// WebhookSecret is the secret for verifying webhook signatures
	WebhookSecret string

	// DefaultCurrency is the default currency for subscriptions and invoices
	DefaultCurrency string

	// PriceIDs maps "<plan>_<cycle>" keys to Stripe Price IDs
	PriceIDs map[string]string
}

// DefaultConfig returns a configuration with placeholder price IDs for
// development and testing
func DefaultConfig() *Config {
	return &Config{
		DefaultCurrency: "usd",
		PriceIDs: map[string]string{
			"free_monthly":         "",
			"starter_monthly":      "price_starter_monthly",
			"starter_yearly":       "price_starter_yearly",
			"professional_monthly": "price_pro_monthly",
			"professional_yearly":  "price_pro_yearly",
			"business_monthly":     "price_business_monthly",
			"business_yearly":      "price_business_yearly",
			"enterprise_monthly":   "price_ent_monthly",
			"enterprise_yearly":    "price_ent_yearly",
			"msp_monthly":          "price_msp_monthly",
			"msp_yearly":           "price_msp_yearly",
		},
	}
}

// Validate validates the Stripe configuration
func (c *Config) Validate() error {
	if c.SecretKey == "" {
		return fmt.Errorf("stripe: secret key is required")
	}
	if c.DefaultCurrency == "" {
		return fmt.Errorf("stripe: default currency is required")
	}
	return nil
}

// PriceIDFor returns the Stripe Price ID for a plan and billing cycle
func (c *Config) PriceIDFor(planID string, cycle billing.BillingCycle) (string, error) {
	key := fmt.Sprintf("%s_%s", planID, cycle)
	priceID, exists := c.PriceIDs[key]
	if !exists {
		return "", fmt.Errorf("stripe: no price ID configured for %s", key)
	}
	if priceID == "" && planID != "free" {
		return "", fmt.Errorf("stripe: price ID not set for %s", key)
	}
	return priceID, nil
}

// InitClient initializes the Stripe client with the configured API key
func (c *Config) InitClient() {
	stripe.Key = c.SecretKey
}
