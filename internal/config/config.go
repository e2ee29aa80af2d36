// Package config resolves the bridge configuration from layered sources:
// built-in defaults, an optional embedded JSON document, then environment
// variables. Later sources win.
package config

import (
	"encoding/json"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/sirupsen/logrus"
)

// Config holds the options consumed at construction time.
type Config struct {
	SupabaseURL           string  `json:"supabaseUrl" env:"PC_SUPABASE_URL"`
	SupabaseAnonKey       string  `json:"supabaseAnonKey" env:"PC_SUPABASE_ANON_KEY"`
	StripePriceID         string  `json:"stripePriceId" env:"PC_STRIPE_PRICE_ID"`
	StripeFunction        string  `json:"stripeFunction" env:"PC_STRIPE_FUNCTION"`
	NotificationsFunction string  `json:"notificationsFunction" env:"PC_NOTIFICATIONS_FUNCTION"`
	DepositAmount         float64 `json:"depositAmount" env:"PC_DEPOSIT_AMOUNT"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		StripeFunction:        "create-stripe-checkout",
		NotificationsFunction: "send-booking-confirmation",
		DepositAmount:         50,
	}
}

// Load resolves the effective configuration. A malformed JSON document is
// skipped with a warning; it never fails the load.
func Load() Config {
	cfg := Default()
	applyDocument(&cfg)
	applyEnv(&cfg)
	return cfg
}

// applyDocument overlays the embedded JSON config block, if one is
// provided via PC_CONFIG_FILE (a path) or PC_CONFIG_JSON (a literal).
func applyDocument(cfg *Config) {
	raw := []byte(os.Getenv("PC_CONFIG_JSON"))
	if path := os.Getenv("PC_CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			logrus.WithError(err).WithField("path", path).Warn("Failed to read config document")
			return
		}
		raw = data
	}
	if len(raw) == 0 {
		return
	}
	if err := json.Unmarshal(raw, cfg); err != nil {
		logrus.WithError(err).Warn("Invalid config document JSON")
	}
}

// applyEnv overlays environment variables. Only set variables override;
// absent ones leave the current value alone.
func applyEnv(cfg *Config) {
	var overrides Config
	if err := env.Parse(&overrides); err != nil {
		logrus.WithError(err).Warn("Failed to parse environment configuration")
		return
	}
	if overrides.SupabaseURL != "" {
		cfg.SupabaseURL = overrides.SupabaseURL
	}
	if overrides.SupabaseAnonKey != "" {
		cfg.SupabaseAnonKey = overrides.SupabaseAnonKey
	}
	if overrides.StripePriceID != "" {
		cfg.StripePriceID = overrides.StripePriceID
	}
	if overrides.StripeFunction != "" {
		cfg.StripeFunction = overrides.StripeFunction
	}
	if overrides.NotificationsFunction != "" {
		cfg.NotificationsFunction = overrides.NotificationsFunction
	}
	if overrides.DepositAmount > 0 {
		cfg.DepositAmount = overrides.DepositAmount
	}
}
