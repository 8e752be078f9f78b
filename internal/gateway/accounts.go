package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/packfinderz-payouts/pkg/db/models"
	pkgerrors "github.com/angelmondragon/packfinderz-payouts/pkg/errors"
	"github.com/angelmondragon/packfinderz-payouts/pkg/logger"
)

type accountStore interface {
	FindAccountBySeller(ctx context.Context, sellerID uuid.UUID) (*models.PayoutAccount, error)
	CreateAccount(ctx context.Context, account *models.PayoutAccount) error
	UpdateOnboardingURL(ctx context.Context, accountID uuid.UUID, url string) error
}

// AccountService opens payout accounts for sellers and hands out onboarding links.
type AccountService struct {
	store    accountStore
	registry *Registry
	logg     *logger.Logger
}

// Onboarding is the seller's account plus where to send them next.
type Onboarding struct {
	Account     *models.PayoutAccount
	RedirectURL string
}

// NewAccountService wires the onboarding flow.
func NewAccountService(store accountStore, registry *Registry, logg *logger.Logger) (*AccountService, error) {
	if store == nil {
		return nil, fmt.Errorf("account store required")
	}
	if registry == nil {
		return nil, fmt.Errorf("provider registry required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &AccountService{store: store, registry: registry, logg: logg}, nil
}

// Onboard creates the seller's account at the default provider when none
// exists and returns a fresh onboarding redirect.
func (s *AccountService) Onboard(ctx context.Context, seller SellerContext) (*Onboarding, error) {
	if seller.SellerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "seller id is required")
	}
	ctx = s.logg.WithSellerID(ctx, seller.SellerID.String())

	account, err := s.store.FindAccountBySeller(ctx, seller.SellerID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payout account")
	}

	var provider Provider
	if account == nil {
		provider = s.registry.Default()
		record, err := provider.CreatePayoutAccount(ctx, seller)
		if err != nil {
			return nil, Classify(err)
		}
		account = &models.PayoutAccount{
			SellerID:    seller.SellerID,
			Provider:    provider.Name(),
			Status:      record.Status,
			ReferenceID: record.ReferenceID,
			Data:        record.Data,
		}
		if err := s.store.CreateAccount(ctx, account); err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payout account")
		}
		s.logg.Info(s.logg.WithAccountID(ctx, account.ID.String()), "payout account created")
	} else {
		provider, err = s.registry.Get(account.Provider)
		if err != nil {
			return nil, err
		}
	}

	url, err := provider.InitializeOnboarding(ctx, account)
	if err != nil {
		return nil, Classify(err)
	}
	if err := s.store.UpdateOnboardingURL(ctx, account.ID, url); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store onboarding url")
	}
	account.OnboardingURL = &url
	return &Onboarding{Account: account, RedirectURL: url}, nil
}
