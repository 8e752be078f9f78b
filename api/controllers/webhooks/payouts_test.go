package webhooks

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	payoutwebhook "github.com/angelmondragon/packfinderz-payouts/internal/webhooks/payouts"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/types"
)

type fakePayoutWebhookService struct {
	calls    int
	provider enums.PayoutProvider
	payload  gateway.WebhookPayload
	result   *payoutwebhook.Result
	err      error
}

func (f *fakePayoutWebhookService) Handle(ctx context.Context, provider enums.PayoutProvider, payload gateway.WebhookPayload) (*payoutwebhook.Result, error) {
	f.calls++
	f.provider = provider
	f.payload = payload
	return f.result, f.err
}

func serveWebhook(t *testing.T, svc PayoutWebhookService, provider, body string) *httptest.ResponseRecorder {
	t.Helper()
	r := chi.NewRouter()
	r.Post("/api/v1/webhooks/payouts/{provider}", PayoutWebhook(svc, nil))

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payouts/"+provider, strings.NewReader(body))
	req.Header.Set("X-Payout-Signature", "sig")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestPayoutWebhookProcessed(t *testing.T) {
	svc := &fakePayoutWebhookService{result: &payoutwebhook.Result{
		Action:   gateway.ActionTransferSucceeded,
		Outcome:  payoutwebhook.OutcomeProcessed,
		DedupKey: "manual:tr_1:transfer_succeeded",
	}}

	rec := serveWebhook(t, svc, "manual", `{"type":"transfer.succeeded"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if svc.provider != enums.PayoutProviderManual {
		t.Fatalf("expected manual provider, got %q", svc.provider)
	}
	if string(svc.payload.RawData) != `{"type":"transfer.succeeded"}` {
		t.Fatalf("raw body not forwarded: %q", svc.payload.RawData)
	}
	if svc.payload.Headers.Get("X-Payout-Signature") != "sig" {
		t.Fatalf("headers not forwarded")
	}

	var env struct {
		Data payoutWebhookResponse `json:"data"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Data.Outcome != "processed" || env.Data.DedupKey != "manual:tr_1:transfer_succeeded" {
		t.Fatalf("unexpected response %+v", env.Data)
	}
}

func TestPayoutWebhookDuplicateIsSuccess(t *testing.T) {
	svc := &fakePayoutWebhookService{result: &payoutwebhook.Result{
		Action:  gateway.ActionTransferSucceeded,
		Outcome: payoutwebhook.OutcomeDuplicate,
	}}

	rec := serveWebhook(t, svc, "manual", `{}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200 for duplicate, got %d", rec.Code)
	}
}

func TestPayoutWebhookStatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"bad signature", pkgerrors.New(pkgerrors.CodeUnauthorized, "signature mismatch"), http.StatusUnauthorized},
		{"malformed", pkgerrors.New(pkgerrors.CodeValidation, "decode payload"), http.StatusBadRequest},
		{"transient", pkgerrors.New(pkgerrors.CodeDependency, "redis down"), http.StatusServiceUnavailable},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := serveWebhook(t, &fakePayoutWebhookService{err: tc.err}, "manual", `{}`)
			if rec.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rec.Code)
			}
			var env types.ErrorEnvelope
			if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if env.Error.Code != string(pkgerrors.CodeOf(tc.err)) {
				t.Fatalf("unexpected code %s", env.Error.Code)
			}
		})
	}
}

func TestPayoutWebhookRejectsUnknownProvider(t *testing.T) {
	svc := &fakePayoutWebhookService{}
	rec := serveWebhook(t, svc, "paypal", `{}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestPayoutWebhookRejectsEmptyBody(t *testing.T) {
	svc := &fakePayoutWebhookService{}
	rec := serveWebhook(t, svc, "stripe", ``)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("service should not be called")
	}
}

func TestPayoutWebhookRejectsOversizedBody(t *testing.T) {
	svc := &fakePayoutWebhookService{}
	body := `{"type":"transfer.succeeded","pad":"` + strings.Repeat("x", maxWebhookBody) + `"}`
	rec := serveWebhook(t, svc, "manual", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if svc.calls != 0 {
		t.Fatalf("truncated body must not reach the service")
	}
	var env types.ErrorEnvelope
	if err := json.NewDecoder(rec.Body).Decode(&env); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.Error.Code != string(pkgerrors.CodePayloadTooLarge) {
		t.Fatalf("unexpected code %s", env.Error.Code)
	}
}

func TestPayoutWebhookAcceptsBodyAtLimit(t *testing.T) {
	svc := &fakePayoutWebhookService{result: &payoutwebhook.Result{Action: gateway.ActionNotSupported, Outcome: payoutwebhook.OutcomeIgnored}}
	body := strings.Repeat(" ", maxWebhookBody-2) + "{}"
	rec := serveWebhook(t, svc, "manual", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if len(svc.payload.RawData) != maxWebhookBody {
		t.Fatalf("expected full body forwarded, got %d bytes", len(svc.payload.RawData))
	}
}
