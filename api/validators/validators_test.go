package validators

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
)

type onboardingBody struct {
	Email   string `json:"email" validate:"required,email"`
	Country string `json:"country" validate:"omitempty,len=2"`
}

func TestDecodeJSONBodyValidates(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"nope","country":"USA"}`))

	var body onboardingBody
	err := DecodeJSONBody(req, &body)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
	details, ok := pkgerrors.As(err).Details().(map[string]string)
	if !ok {
		t.Fatalf("expected field details, got %T", pkgerrors.As(err).Details())
	}
	if details["email"] == "" || details["country"] != "must be 2 characters" {
		t.Fatalf("unexpected details %v", details)
	}
}

func TestDecodeJSONBodyRejectsUnknownFields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"email":"a@b.co","extra":1}`))

	var body onboardingBody
	if err := DecodeJSONBody(req, &body); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPathUUID(t *testing.T) {
	id := uuid.New()
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("orderId", id.String())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))

	got, err := PathUUID(req, "orderId")
	if err != nil || got != id {
		t.Fatalf("expected %s, got %s (%v)", id, got, err)
	}

	if _, err := PathUUID(req, "sellerId"); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error for missing param, got %v", err)
	}
}

func TestSanitizeString(t *testing.T) {
	cases := []struct {
		in   string
		max  int
		want string
	}{
		{"  Green Leaf Farms  ", 5, "Green"},
		{"Green\x00Leaf\n", 0, "GreenLeaf"},
		{"Café", 4, "Caf"},
		{"short", 10, "short"},
	}
	for _, tc := range cases {
		if got := SanitizeString(tc.in, tc.max); got != tc.want {
			t.Fatalf("SanitizeString(%q, %d) = %q, want %q", tc.in, tc.max, got, tc.want)
		}
	}
	if got := NormalizeCountry(" us "); got != "US" {
		t.Fatalf("unexpected country %q", got)
	}
}

type priceBody struct {
	Currency string `json:"currency" validate:"required,currency"`
}

func TestDecodeJSONBodyCurrencyTag(t *testing.T) {
	var ok priceBody
	if err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"currency":"usd"}`)), &ok); err != nil {
		t.Fatalf("expected lower-case code to validate, got %v", err)
	}

	var bad priceBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"currency":"US1"}`)), &bad)
	details, _ := pkgerrors.As(err).Details().(map[string]string)
	if details["currency"] != "must be an ISO 4217 currency code" {
		t.Fatalf("unexpected details %v (err %v)", details, err)
	}
}

func TestDecodeJSONBodyRejectsTrailingData(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"currency":"USD"}{"currency":"EUR"}`))
	var body priceBody
	if err := DecodeJSONBody(req, &body); pkgerrors.CodeOf(err) != pkgerrors.CodeValidation {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestDecodeJSONBodyRejectsOversizedBody(t *testing.T) {
	payload := `{"currency":"` + strings.Repeat("A", MaxBodyBytes) + `"}`
	var body priceBody
	err := DecodeJSONBody(httptest.NewRequest(http.MethodPost, "/", strings.NewReader(payload)), &body)
	if pkgerrors.CodeOf(err) != pkgerrors.CodeValidation || !strings.Contains(err.Error(), "too large") {
		t.Fatalf("expected too large error, got %v", err)
	}
}
