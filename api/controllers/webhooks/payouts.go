package webhooks

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-payouts/api/responses"
	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	payoutwebhook "github.com/angelmondragon/packfinderz-payouts/internal/webhooks/payouts"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

const maxWebhookBody = 1 << 20

type PayoutWebhookService interface {
	Handle(ctx context.Context, provider enums.PayoutProvider, payload gateway.WebhookPayload) (*payoutwebhook.Result, error)
}

type payoutWebhookResponse struct {
	Action   string `json:"action"`
	Outcome  string `json:"outcome"`
	DedupKey string `json:"dedup_key,omitempty"`
}

// PayoutWebhook accepts provider callbacks for transfers and payout accounts.
// Duplicates and events the provider does not map answer 200 so the provider
// stops redelivering; only transient failures answer 5xx.
func PayoutWebhook(svc PayoutWebhookService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		provider, err := enums.ParsePayoutProvider(chi.URLParam(r, "provider"))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "unknown payout provider"))
			return
		}
		if logg != nil {
			ctx = logg.WithField(ctx, "provider", string(provider))
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodePayloadTooLarge, err,
					fmt.Sprintf("webhook body exceeds %d bytes", tooLarge.Limit)))
				return
			}
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}
		if len(body) == 0 {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "webhook body is empty"))
			return
		}

		result, err := svc.Handle(ctx, provider, gateway.WebhookPayload{
			RawData: body,
			Headers: r.Header,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccess(w, payoutWebhookResponse{
			Action:   string(result.Action),
			Outcome:  string(result.Outcome),
			DedupKey: result.DedupKey,
		})
	}
}
