package common

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"time"

	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
	"github.com/tidwall/gjson"
)

const (
	ConfirmationAttempts = 5
	ConfirmationInterval = 15 * time.Second
)

// Tolerance is the share of the expected amount a crypto payment may differ
// by, to absorb rate drift between quote and payment.
var Tolerance = decimal.RequireFromString("0.10")

// WithinTolerance reports |paid - expected| <= Tolerance * expected. The band
// is inclusive, so a payment exactly 10% off is accepted.
func WithinTolerance(paid, expected decimal.Decimal) bool {
	return paid.Sub(expected).Abs().LessThanOrEqual(expected.Mul(Tolerance))
}

// Expectation is what a crypto payment must match.
type Expectation struct {
	TokenID  string
	Quantity int64
	Payer    string
}

type CryptoVerifier struct {
	Chains   lib.ChainProvider
	Prices   *PriceOracle
	Attempts uint64
	Interval time.Duration
}

func NewCryptoVerifier(chains lib.ChainProvider, prices *PriceOracle) *CryptoVerifier {
	return &CryptoVerifier{
		Chains:   chains,
		Prices:   prices,
		Attempts: ConfirmationAttempts,
		Interval: ConfirmationInterval,
	}
}

// Fetch reads the transaction and, once mined, its receipt.
func (v *CryptoVerifier) Fetch(ctx context.Context, project *config.Project, hash string) (*lib.ChainTx, types.TxState, error) {
	client, err := v.Chains.Client(ctx, project)
	if err != nil {
		return nil, "", err
	}
	tx, err := client.TransactionByHash(ctx, hash)
	if err != nil {
		return nil, "", err
	}
	if !tx.Mined() {
		return tx, types.TX_STATE_PENDING, nil
	}
	receipt, err := client.TransactionReceipt(ctx, hash)
	if errors.Is(err, types.ErrTxNotFound) {
		return tx, types.TX_STATE_PENDING, nil
	}
	if err != nil {
		return nil, "", err
	}
	if receipt.Status == 1 {
		return tx, types.TX_STATE_SUCCESS, nil
	}
	return tx, types.TX_STATE_FAILED, nil
}

func (v *CryptoVerifier) TxStatus(ctx context.Context, project *config.Project, hash string) (types.TxState, error) {
	_, state, err := v.Fetch(ctx, project, hash)
	return state, err
}

// WaitConfirmed polls a fixed number of times at a fixed interval until the
// transaction is mined. It gives up early when ctx is done or the
// transaction reverted.
func (v *CryptoVerifier) WaitConfirmed(ctx context.Context, project *config.Project, hash string) (*lib.ChainTx, error) {
	attempts := 0
	op := func() (*lib.ChainTx, error) {
		attempts++
		tx, state, err := v.Fetch(ctx, project, hash)
		if err != nil {
			return nil, err
		}
		switch state {
		case types.TX_STATE_FAILED:
			return nil, backoff.Permanent(types.ErrTxFailed)
		case types.TX_STATE_PENDING:
			return nil, types.ErrTxNotConfirmed
		}
		return tx, nil
	}
	retries := uint64(0)
	if v.Attempts > 1 {
		retries = v.Attempts - 1
	}
	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(v.Interval), retries),
		ctx,
	)
	notify := func(err error, next time.Duration) {
		log.Printf("[CryptoVerifier] %s not confirmed (attempt %d/%d): %s\n", hash, attempts, v.Attempts, err.Error())
	}
	tx, err := backoff.RetryNotifyWithData(op, policy, notify)
	if err != nil {
		if errors.Is(err, types.ErrTxFailed) || errors.Is(err, types.ErrTxNotFound) {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s", types.ErrTxNotConfirmed, ctxErr.Error())
		}
		if !errors.Is(err, types.ErrTxNotConfirmed) {
			log.Printf("[CryptoVerifier] %s could not be read: %s\n", hash, err.Error())
		}
		return nil, types.ErrTxNotConfirmed
	}
	lib.ConfirmationPolls.Observe(float64(attempts))
	return tx, nil
}

// Verify checks a mined payment against the project's treasury, the buyer
// wallet and the tolerance band around the expected native price.
func (v *CryptoVerifier) Verify(ctx context.Context, project *config.Project, exp *Expectation, tx *lib.ChainTx) error {
	if !tx.Mined() {
		return types.ErrTxNotConfirmed
	}
	if !lib.SameAddress(tx.To, project.MinterAddress) {
		lib.PaymentsVerified.WithLabelValues(string(types.FLOW_CRYPTO), "wrong_recipient").Inc()
		return &types.RecipientMismatchError{Got: tx.To, Expected: project.MinterAddress}
	}
	if exp.Payer != "" && !lib.SameAddress(tx.From, exp.Payer) {
		lib.PaymentsVerified.WithLabelValues(string(types.FLOW_CRYPTO), "wrong_payer").Inc()
		return fmt.Errorf("%w: %s", types.ErrPayerMismatch, tx.From)
	}
	unit, err := v.Prices.nativePrice(ctx, project, exp.TokenID)
	if err != nil {
		return err
	}
	quantity := exp.Quantity
	if quantity < 1 {
		quantity = 1
	}
	expected := unit.Mul(decimal.NewFromInt(quantity))
	paid := FromWei(tx.Value)
	if !WithinTolerance(paid, expected) {
		lib.PaymentsVerified.WithLabelValues(string(types.FLOW_CRYPTO), "amount_mismatch").Inc()
		return &types.PaymentMismatchError{Paid: paid, Expected: expected, Symbol: project.NativeSymbol}
	}
	lib.PaymentsVerified.WithLabelValues(string(types.FLOW_CRYPTO), "ok").Inc()
	return nil
}

// WebhookVerifier authenticates Stripe deliveries with the secret of the
// mode the event was sent in.
type WebhookVerifier struct {
	Secret   func(livemode bool) string
	validate *validator.Validate
}

func NewWebhookVerifier(secret func(livemode bool) string) *WebhookVerifier {
	return &WebhookVerifier{Secret: secret, validate: utils.NewValidator()}
}

func (v *WebhookVerifier) ConstructEvent(payload []byte, signature string) (stripe.Event, error) {
	livemode := gjson.GetBytes(payload, "livemode").Bool()
	secret := v.Secret(livemode)
	if secret == "" {
		mode := "test"
		if livemode {
			mode = "live"
		}
		return stripe.Event{}, fmt.Errorf("%w (%s mode)", types.ErrMissingWebhookSecret, mode)
	}
	event, err := webhook.ConstructEventWithOptions(payload, signature, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return stripe.Event{}, fmt.Errorf("%w: %s", types.ErrInvalidSignature, err.Error())
	}
	return event, nil
}

// PaidCharge is a succeeded charge and the purchase carried in its metadata.
type PaidCharge struct {
	Reference   string
	AmountCents int64
	Currency    string
	Purchase    *types.PurchaseRequest
}

// PurchaseFromCharge reads a charge.succeeded event. The payment intent id is
// the reference when present so it matches the intent the UI created.
func (v *WebhookVerifier) PurchaseFromCharge(event stripe.Event) (*PaidCharge, error) {
	var ch stripe.Charge
	if err := json.Unmarshal(event.Data.Raw, &ch); err != nil {
		return nil, fmt.Errorf("%w: charge: %s", types.ErrInvalidRequest, err.Error())
	}
	md := ch.Metadata
	blockchainID, _ := strconv.ParseInt(md["blockchainId"], 10, 64)
	quantity, err := strconv.ParseInt(md["requestedQuantity"], 10, 64)
	if err != nil {
		quantity = 1
	}
	p := &types.PurchaseRequest{
		ProjectName:                   md["projectName"],
		DistributionType:              types.DistributionType(md["distributionType"]),
		BuyerWalletAddress:            md["buyerWalletAddress"],
		RecipientWalletAddressOrEmail: md["recipientWalletAddressOrEmail"],
		NftContractAddress:            md["nftContractAddress"],
		BlockchainID:                  blockchainID,
		TokenID:                       md["tokenId"],
		RequestedQuantity:             quantity,
		OffererName:                   md["offererName"],
	}
	if err := v.validate.Struct(p); err != nil {
		return nil, fmt.Errorf("%w: metadata: %s", types.ErrInvalidRequest, err.Error())
	}
	ref := ch.ID
	if ch.PaymentIntent != nil && ch.PaymentIntent.ID != "" {
		ref = ch.PaymentIntent.ID
	}
	return &PaidCharge{
		Reference:   ref,
		AmountCents: ch.Amount,
		Currency:    string(ch.Currency),
		Purchase:    p,
	}, nil
}

// PurchaseMetadata is the inverse of PurchaseFromCharge, set on the payment
// intent when it is created.
func PurchaseMetadata(p *types.PurchaseRequest) map[string]string {
	md := map[string]string{
		"projectName":                   p.ProjectName,
		"distributionType":              string(p.DistributionType),
		"recipientWalletAddressOrEmail": p.RecipientWalletAddressOrEmail,
		"nftContractAddress":            p.NftContractAddress,
		"blockchainId":                  strconv.FormatInt(p.BlockchainID, 10),
		"tokenId":                       p.TokenID,
		"requestedQuantity":             strconv.FormatInt(p.RequestedQuantity, 10),
	}
	if p.BuyerWalletAddress != "" {
		md["buyerWalletAddress"] = p.BuyerWalletAddress
	}
	if p.OffererName != "" {
		md["offererName"] = p.OffererName
	}
	return md
}
