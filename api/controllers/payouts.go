package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/angelmondragon/packfinderz-payouts/api/middleware"
	"github.com/angelmondragon/packfinderz-payouts/api/responses"
	"github.com/angelmondragon/packfinderz-payouts/api/validators"
	"github.com/angelmondragon/packfinderz-payouts/internal/gateway"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db"
	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	"github.com/angelmondragon/packfinderz-payouts/pkg/enums"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

type PayoutStatusService interface {
	PayoutStatus(ctx context.Context, orderID uuid.UUID) (enums.SellerPayoutStatus, error)
	OperatorStatus(ctx context.Context, orderID uuid.UUID) (string, error)
	ReleaseBlock(ctx context.Context, orderID uuid.UUID) error
}

type OrderReader interface {
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

type PayoutOnboardingService interface {
	Onboard(ctx context.Context, seller gateway.SellerContext) (*gateway.Onboarding, error)
}

type payoutStatusResponse struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"`
}

// SellerPayoutStatus reports pending, paid or blocked for one of the caller's
// orders. Block reasons stay internal. Orders of other sellers read as not found.
func SellerPayoutStatus(svc PayoutStatusService, orders OrderReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sellerID, ok := middleware.SellerIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller context required"))
			return
		}
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		order, err := orders.FindOrder(ctx, orderID)
		if err != nil && !db.IsNotFound(err) {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order"))
			return
		}
		if order == nil || order.SellerID != sellerID {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeNotFound, "order not found"))
			return
		}

		status, err := svc.PayoutStatus(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payoutStatusResponse{OrderID: orderID.String(), Status: string(status)})
	}
}

func OperatorPayoutStatus(svc PayoutStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		status, err := svc.OperatorStatus(ctx, orderID)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payoutStatusResponse{OrderID: orderID.String(), Status: status})
	}
}

// ReleasePayoutBlock clears a parked order so the next scan settles it again.
func ReleasePayoutBlock(svc PayoutStatusService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		orderID, err := validators.PathUUID(r, "orderId")
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		if err := svc.ReleaseBlock(ctx, orderID); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, payoutStatusResponse{OrderID: orderID.String(), Status: string(enums.SellerPayoutPending)})
	}
}

type onboardingRequest struct {
	Email        string `json:"email" validate:"required,email"`
	Country      string `json:"country" validate:"omitempty,iso3166_1_alpha2"`
	BusinessName string `json:"business_name" validate:"max=200"`
}

type onboardingResponse struct {
	AccountID   string `json:"account_id"`
	Provider    string `json:"provider"`
	Status      string `json:"status"`
	RedirectURL string `json:"redirect_url"`
}

// PayoutAccountOnboarding opens the caller's payout account on first use and
// returns a fresh onboarding link every time.
func PayoutAccountOnboarding(svc PayoutOnboardingService, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		sellerID, ok := middleware.SellerIDFromContext(ctx)
		if !ok {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "seller context required"))
			return
		}

		var req onboardingRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		onboarding, err := svc.Onboard(ctx, gateway.SellerContext{
			SellerID:     sellerID,
			Email:        validators.SanitizeString(req.Email, 254),
			Country:      validators.NormalizeCountry(req.Country),
			BusinessName: validators.SanitizeString(req.BusinessName, 200),
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		responses.WriteSuccessStatus(w, http.StatusCreated, onboardingResponse{
			AccountID:   onboarding.Account.ID.String(),
			Provider:    string(onboarding.Account.Provider),
			Status:      string(onboarding.Account.Status),
			RedirectURL: onboarding.RedirectURL,
		})
	}
}
