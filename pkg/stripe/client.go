// Package stripe bootstraps the Stripe SDK for Connect payouts.
package stripe

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"go.uber.org/multierr"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

// Mode is the Stripe key family in use.
type Mode string

const (
	ModeTest Mode = "test"
	ModeLive Mode = "live"
)

var keyPrefixes = map[Mode][]string{
	ModeTest: {"sk_test_", "rk_test_"},
	ModeLive: {"sk_live_", "rk_live_"},
}

const webhookSecretPrefix = "whsec_"

// ParseMode normalizes a configured environment; empty means test.
func ParseMode(raw string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(raw))); m {
	case "":
		return ModeTest, nil
	case ModeTest, ModeLive:
		return m, nil
	default:
		return "", fmt.Errorf("stripe environment must be %q or %q, got %q", ModeTest, ModeLive, raw)
	}
}

// Client holds the initialized SDK and the webhook signing secret.
type Client struct {
	api           *stripe.Client
	mode          Mode
	signingSecret string
}

// NewClient checks every credential up front and reports all problems at once.
func NewClient(ctx context.Context, cfg config.StripeConfig, logg *logger.Logger) (*Client, error) {
	mode, err := ParseMode(cfg.Env)
	if err != nil {
		return nil, err
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	secret := strings.TrimSpace(cfg.Secret)

	var errs error
	if apiKey == "" {
		errs = multierr.Append(errs, errors.New("stripe api key is required"))
	} else if !hasAnyPrefix(apiKey, keyPrefixes[mode]) {
		errs = multierr.Append(errs, fmt.Errorf("stripe %s mode requires a %s key", mode, strings.Join(keyPrefixes[mode], "/")))
	}
	if secret == "" {
		errs = multierr.Append(errs, errors.New("stripe webhook secret is required"))
	} else if !strings.HasPrefix(secret, webhookSecretPrefix) {
		errs = multierr.Append(errs, fmt.Errorf("stripe webhook secret must start with %s", webhookSecretPrefix))
	}
	if errs != nil {
		return nil, errs
	}

	stripe.Key = apiKey
	client := &Client{
		api:           stripe.NewClient(apiKey),
		mode:          mode,
		signingSecret: secret,
	}
	if logg != nil {
		logg.Info(logg.WithField(ctx, "stripe_mode", string(mode)), "stripe client initialized")
	}
	return client, nil
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}

func (c *Client) API() *stripe.Client {
	if c == nil {
		return nil
	}
	return c.api
}

func (c *Client) Mode() Mode {
	if c == nil {
		return ""
	}
	return c.mode
}

// SigningSecret verifies Connect webhook signatures.
func (c *Client) SigningSecret() string {
	if c == nil {
		return ""
	}
	return c.signingSecret
}
