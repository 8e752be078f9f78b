// Package providers assembles the payout gateway registry from config.
package providers

import (
	"context"
	"fmt"
	"strings"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/internal/gateway/manual"
	"github.com/angelmondragon/packfinderz-payouts/internal/gateway/stripeconnect"
	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
	pkgstripe "github.com/angelmondragon/packfinderz-payouts/pkg/stripe"
)

// Build registers every provider the config enables. A provider is enabled
// when its secrets are present or when it is the configured default.
func Build(ctx context.Context, cfg *config.Config, logg *logger.Logger) (*gateway.Registry, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if logg == nil {
		logg = logger.Nop()
	}

	fallback, err := enums.ParsePayoutProvider(strings.ToLower(strings.TrimSpace(cfg.Payouts.Provider)))
	if err != nil {
		return nil, err
	}

	policy := gateway.RetryPolicy{
		MaxRetries:      uint64(max(cfg.Payouts.ProviderMaxRetries, 0)),
		InitialInterval: cfg.Payouts.ProviderBaseDelay,
	}

	var registered []gateway.Provider

	if fallback == enums.PayoutProviderManual || strings.TrimSpace(cfg.Manual.WebhookSecret) != "" {
		p, err := manual.New(cfg.Manual.WebhookSecret, cfg.Manual.OnboardingURL)
		if err != nil {
			return nil, fmt.Errorf("manual provider: %w", err)
		}
		registered = append(registered, gateway.WithRetry(p, policy, logg))
	}

	if fallback == enums.PayoutProviderStripe || strings.TrimSpace(cfg.Stripe.APIKey) != "" {
		client, err := pkgstripe.NewClient(ctx, cfg.Stripe, logg)
		if err != nil {
			return nil, fmt.Errorf("stripe client: %w", err)
		}
		p, err := stripeconnect.New(stripeconnect.Config{
			Client:        stripeconnect.NewConnectClient(client),
			SigningSecret: client.SigningSecret(),
			Country:       cfg.Stripe.Country,
			RefreshURL:    cfg.Stripe.RefreshURL,
			ReturnURL:     cfg.Stripe.ReturnURL,
		})
		if err != nil {
			return nil, fmt.Errorf("stripe connect provider: %w", err)
		}
		registered = append(registered, gateway.WithRetry(p, policy, logg))
	}

	return gateway.NewRegistry(fallback, registered...)
}
