package providers

import (
	"context"
	"testing"
	"time"

	"github.com/angelmondragon/packfinderz-payouts/pkg/config"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
)

func manualConfig() *config.Config {
	return &config.Config{
		Manual: config.ManualProviderConfig{WebhookSecret: "whsec_manual", OnboardingURL: "https://ops.example.com/onboard"},
		Payouts: config.PayoutsConfig{
			Provider:           "manual",
			ProviderMaxRetries: 2,
			ProviderBaseDelay:  time.Millisecond,
		},
	}
}

func TestBuildManualOnly(t *testing.T) {
	reg, err := Build(context.Background(), manualConfig(), nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := reg.Default().Name(); got != enums.PayoutProviderManual {
		t.Fatalf("expected manual default, got %s", got)
	}
	if _, err := reg.Get(enums.PayoutProviderStripe); err == nil {
		t.Fatalf("expected stripe to be absent")
	}
}

func TestBuildStripeDefaultRequiresKeys(t *testing.T) {
	cfg := manualConfig()
	cfg.Payouts.Provider = "stripe"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected error without stripe credentials")
	}
}

func TestBuildRejectsUnknownProvider(t *testing.T) {
	cfg := manualConfig()
	cfg.Payouts.Provider = "paypal"
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}

func TestBuildManualDefaultRequiresSecret(t *testing.T) {
	cfg := manualConfig()
	cfg.Manual.WebhookSecret = ""
	if _, err := Build(context.Background(), cfg, nil); err == nil {
		t.Fatalf("expected missing secret error")
	}
}

func TestBuildRegistersBothWhenConfigured(t *testing.T) {
	cfg := manualConfig()
	cfg.Payouts.Provider = "stripe"
	cfg.Stripe = config.StripeConfig{APIKey: "sk_test_123", Secret: "whsec_123", Env: "test", Country: "US"}

	reg, err := Build(context.Background(), cfg, nil)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if got := reg.Default().Name(); got != enums.PayoutProviderStripe {
		t.Fatalf("expected stripe default, got %s", got)
	}
	if _, err := reg.Get(enums.PayoutProviderManual); err != nil {
		t.Fatalf("expected manual provider registered: %v", err)
	}
}
