package gateway

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

// RetryPolicy bounds how hard a transient provider failure is retried.
type RetryPolicy struct {
	MaxRetries      uint64
	InitialInterval time.Duration
	MaxInterval     time.Duration
}

const (
	defaultInitialInterval = 500 * time.Millisecond
	defaultMaxInterval     = 10 * time.Second
)

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.InitialInterval <= 0 {
		p.InitialInterval = defaultInitialInterval
	}
	if p.MaxInterval <= 0 {
		p.MaxInterval = defaultMaxInterval
	}
	return p
}

func (p RetryPolicy) backOff(ctx context.Context) backoff.BackOff {
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = p.InitialInterval
	exp.MaxInterval = p.MaxInterval
	exp.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(exp, p.MaxRetries), ctx)
}

// retryingProvider retries transient failures of outbound calls. Once the
// budget is spent the failure surfaces as PROVIDER_FAILED.
type retryingProvider struct {
	Provider
	policy RetryPolicy
	logg   *logger.Logger
}

// WithRetry wraps p so transient failures are retried with exponential backoff.
func WithRetry(p Provider, policy RetryPolicy, logg *logger.Logger) Provider {
	if logg == nil {
		logg = logger.Nop()
	}
	return &retryingProvider{Provider: p, policy: policy.withDefaults(), logg: logg}
}

func (r *retryingProvider) CreatePayout(ctx context.Context, req PayoutRequest) (*ProviderRecord, error) {
	return retry(ctx, r, "create_payout", func() (*ProviderRecord, error) {
		return r.Provider.CreatePayout(ctx, req)
	})
}

func (r *retryingProvider) CreatePayoutAccount(ctx context.Context, seller SellerContext) (*AccountRecord, error) {
	return retry(ctx, r, "create_payout_account", func() (*AccountRecord, error) {
		return r.Provider.CreatePayoutAccount(ctx, seller)
	})
}

func (r *retryingProvider) InitializeOnboarding(ctx context.Context, account *models.PayoutAccount) (string, error) {
	return retry(ctx, r, "initialize_onboarding", func() (string, error) {
		return r.Provider.InitializeOnboarding(ctx, account)
	})
}

func retry[T any](ctx context.Context, r *retryingProvider, op string, call func() (T, error)) (T, error) {
	attempts := 0
	operation := func() (T, error) {
		attempts++
		out, err := call()
		if err != nil && !IsTransient(err) {
			return out, backoff.Permanent(err)
		}
		return out, err
	}
	notify := func(err error, wait time.Duration) {
		fields := map[string]any{
			"provider":   r.Name(),
			"operation":  op,
			"attempt":    attempts,
			"retry_in":   wait.String(),
			"error_kind": KindOf(err),
		}
		r.logg.Warn(r.logg.WithFields(ctx, fields), "payout provider call failed, retrying")
	}

	out, err := backoff.RetryNotifyWithData(operation, r.policy.backOff(ctx), notify)
	if err == nil {
		return out, nil
	}
	if IsTransient(err) {
		return out, pkgerrors.Wrap(pkgerrors.CodeProviderFailed, err, "payout provider retries exhausted").
			WithDetails(map[string]any{"provider": r.Name(), "attempts": attempts})
	}
	return out, Classify(err)
}
