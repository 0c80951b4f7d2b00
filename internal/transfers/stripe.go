package transfers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/transfer"
	"gorm.io/gorm"

	pkgstripe "github.com/angelmondragon/escrowledger/pkg/stripe"
)

// ProviderStripe is the provider name stored on seller payout accounts.
const ProviderStripe = "stripe"

// StripeTransferAPI exposes the subset of Stripe operations the adapter needs.
type StripeTransferAPI interface {
	New(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error)
}

type stripeTransferWrapper struct{}

// NewStripeTransferAPI wraps the configured Stripe client so the adapter can be tested.
func NewStripeTransferAPI(api *pkgstripe.Client) StripeTransferAPI {
	if api == nil {
		return nil
	}
	return &stripeTransferWrapper{}
}

func (w *stripeTransferWrapper) New(ctx context.Context, params *stripe.TransferParams) (*stripe.Transfer, error) {
	if params != nil {
		params.Context = ctx
	}
	return transfer.New(params)
}

// StripeCreator sends Connect transfers to the seller's connected account.
type StripeCreator struct {
	api      StripeTransferAPI
	accounts AccountRepository
}

func NewStripeCreator(api StripeTransferAPI, accounts AccountRepository) (*StripeCreator, error) {
	if api == nil {
		return nil, fmt.Errorf("stripe transfer api required")
	}
	if accounts == nil {
		return nil, fmt.Errorf("payout account repository required")
	}
	return &StripeCreator{api: api, accounts: accounts}, nil
}

func (c *StripeCreator) CreateTransfer(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}

	account, err := c.accounts.FindBySeller(ctx, req.SellerID, ProviderStripe)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", Permanent("no_payout_account", fmt.Errorf("seller %s has no stripe account", req.SellerID))
		}
		return "", fmt.Errorf("load payout account: %w", err)
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(req.Amount),
		Currency:    stripe.String(strings.ToLower(string(req.Currency))),
		Destination: stripe.String(account.ProviderAccountID),
	}
	if req.OrderID != uuid.Nil {
		params.TransferGroup = stripe.String(req.OrderID.String())
	}
	params.AddMetadata("payout_id", req.IdempotencyKey)
	params.SetIdempotencyKey("payout-" + req.IdempotencyKey)

	tr, err := c.api.New(ctx, params)
	if err != nil {
		return "", classifyStripeError(err)
	}
	if tr == nil || tr.ID == "" {
		return "", errors.New("stripe returned an empty transfer")
	}
	return tr.ID, nil
}

// Invalid requests and card-style rejections will not succeed on retry;
// everything else (rate limits, api and connection errors) is transient.
func classifyStripeError(err error) error {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return fmt.Errorf("stripe transfer: %w", err)
	}
	switch stripeErr.Type {
	case stripe.ErrorTypeInvalidRequest, stripe.ErrorTypeCard:
		code := string(stripeErr.Code)
		if code == "" {
			code = string(stripeErr.Type)
		}
		return Permanent(code, err)
	}
	return fmt.Errorf("stripe transfer: %w", err)
}
