package stripeconnect

import (
	"context"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/account"
	"github.com/stripe/stripe-go/v84/accountlink"
	"github.com/stripe/stripe-go/v84/transfer"

	pkgstripe "github.com/angelmondragon/packfinderz-payouts/pkg/stripe"
)

// ConnectClient exposes the subset of Stripe Connect calls used for payouts.
type ConnectClient interface {
	CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
	CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error)
	CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error)
}

type connectClientWrapper struct{}

// NewConnectClient wraps the initialized Stripe client so the provider can be tested.
func NewConnectClient(api *pkgstripe.Client) ConnectClient {
	if api == nil {
		return nil
	}
	return &connectClientWrapper{}
}

func (w *connectClientWrapper) CreateTransfer(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	if params != nil {
		params.Context = ctx
	}
	return transfer.New(params)
}

func (w *connectClientWrapper) CreateAccount(ctx context.Context, params *stripe.AccountParams) (*stripe.Account, error) {
	if params != nil {
		params.Context = ctx
	}
	return account.New(params)
}

func (w *connectClientWrapper) CreateAccountLink(ctx context.Context, params *stripe.AccountLinkParams) (*stripe.AccountLink, error) {
	if params != nil {
		params.Context = ctx
	}
	return accountlink.New(params)
}
