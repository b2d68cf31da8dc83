package lib

import (
	"context"
	"sync"

	"nftdrops/src/config"

	"github.com/stripe/stripe-go/v82"
)

var (
	stripeMu      sync.Mutex
	stripeClients = map[bool]*stripe.Client{}
)

// GetStripeClient returns the client for live or test mode.
func GetStripeClient(livemode bool) *stripe.Client {
	stripeMu.Lock()
	defer stripeMu.Unlock()
	if sc, ok := stripeClients[livemode]; ok {
		return sc
	}
	sc := stripe.NewClient(config.StripeSecretKey(livemode))
	stripeClients[livemode] = sc
	return sc
}

func NewStripeClient(livemode bool, c *stripe.Client) {
	stripeMu.Lock()
	defer stripeMu.Unlock()
	stripeClients[livemode] = c
}

type PaymentIntentInput struct {
	AmountCents int64
	Currency    string
	Description string
	Email       string
	Metadata    map[string]string
	Livemode    bool
}

// CreatePaymentIntent opens a card payment. The metadata is echoed back on
// the charge.succeeded webhook and drives the distribution.
func CreatePaymentIntent(ctx context.Context, in *PaymentIntentInput) (*stripe.PaymentIntent, error) {
	sc := GetStripeClient(in.Livemode)
	params := &stripe.PaymentIntentCreateParams{
		Amount:   stripe.Int64(in.AmountCents),
		Currency: stripe.String(in.Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentCreateAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(in.Description),
	}
	if in.Email != "" {
		params.ReceiptEmail = stripe.String(in.Email)
	}
	for k, v := range in.Metadata {
		params.AddMetadata(k, v)
	}
	return sc.V1PaymentIntents.Create(ctx, params)
}
