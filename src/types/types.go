package types

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

type JSONB map[string]any

type Environment string

const (
	Local      Environment = "local"
	Test       Environment = "test"
	Production Environment = "production"
)

type TransactionStatus string

const (
	TX_PENDING     TransactionStatus = "TX_PENDING"
	TX_CONFIRMED   TransactionStatus = "TX_CONFIRMED"
	TX_FAILED      TransactionStatus = "TX_FAILED"
	EMAIL_SENT     TransactionStatus = "EMAIL_SENT"
	EMAIL_FAILED   TransactionStatus = "EMAIL_FAILED"
	NFT_DOWNLOADED TransactionStatus = "NFT_DOWNLOADED"
)

func (s TransactionStatus) Valid() bool {
	switch s {
	case TX_PENDING, TX_CONFIRMED, TX_FAILED, EMAIL_SENT, EMAIL_FAILED, NFT_DOWNLOADED:
		return true
	}
	return false
}

// PaymentFlow tags which state machine a record follows. Card payments start
// confirmed (the webhook already proves the charge); crypto payments start
// pending until the chain has mined the payment.
type PaymentFlow string

const (
	FLOW_FIAT   PaymentFlow = "fiat"
	FLOW_CRYPTO PaymentFlow = "crypto"
)

type DistributionType string

const (
	ClaimToERC721           DistributionType = "ClaimToERC721"
	ClaimToERC1155          DistributionType = "ClaimToERC1155"
	SafeTransferFromERC721  DistributionType = "SafeTransferFromERC721"
	SafeTransferFromERC1155 DistributionType = "SafeTransferFromERC1155"
	EmailCode               DistributionType = "EmailCode"
)

// OnChain reports whether the tag maps to a contract call.
func (d DistributionType) OnChain() bool {
	switch d {
	case ClaimToERC721, ClaimToERC1155, SafeTransferFromERC721, SafeTransferFromERC1155:
		return true
	}
	return false
}

func (d DistributionType) Known() bool {
	return d.OnChain() || d == EmailCode
}

type SendResult string

const (
	SEND_OK    SendResult = "ok"
	SEND_ERROR SendResult = "error"
)

type TxState string

const (
	TX_STATE_PENDING TxState = "pending"
	TX_STATE_SUCCESS TxState = "success"
	TX_STATE_FAILED  TxState = "failed"
)

type PurchaseRequest struct {
	ProjectName                   string           `json:"projectName" binding:"required"`
	DistributionType              DistributionType `json:"distributionType" binding:"required"`
	BuyerWalletAddress            string           `json:"buyerWalletAddress" binding:"omitempty,ethaddr"`
	RecipientWalletAddressOrEmail string           `json:"recipientWalletAddressOrEmail" binding:"required,walletoremail"`
	NftContractAddress            string           `json:"nftContractAddress" binding:"required,ethaddr"`
	BlockchainID                  int64            `json:"blockchainId" binding:"required"`
	TokenID                       string           `json:"tokenId" binding:"required,numeric"`
	RequestedQuantity             int64            `json:"requestedQuantity" binding:"required,min=1"`
	OffererName                   string           `json:"offererName,omitempty" binding:"max=120"`
}

type CryptoPurchaseRequestBody struct {
	PurchaseRequest
	BuyerWalletAddress  string `json:"buyerWalletAddress" binding:"required,ethaddr"`
	PaymentTxHashCrypto string `json:"paymentTxHashCrypto" binding:"required,txhash"`
}

// Purchase flattens the body, keeping the stricter buyer address.
func (b *CryptoPurchaseRequestBody) Purchase() *PurchaseRequest {
	p := b.PurchaseRequest
	p.BuyerWalletAddress = b.BuyerWalletAddress
	return &p
}

type PaymentIntentRequestBody struct {
	PurchaseRequest
	Livemode bool `json:"livemode"`
}

type CheckTransactionRequestBody struct {
	PaymentTxHash string `json:"paymentTxHash" binding:"required,txhash"`
}

type CreateNFTTransactionRequestBody struct {
	PaymentReference string            `json:"paymentReference" binding:"required"`
	ProjectName      string            `json:"projectName" binding:"required"`
	Recipient        string            `json:"recipient" binding:"required,walletoremail"`
	TokenID          string            `json:"tokenId" binding:"required,numeric"`
	OffererName      string            `json:"offererName,omitempty" binding:"max=120"`
	Status           TransactionStatus `json:"status,omitempty"`
}

type UpdateNFTTransactionRequestBody struct {
	PaymentReference string            `json:"paymentReference" binding:"required"`
	Status           TransactionStatus `json:"status" binding:"required"`
}

type DownloadRequestBody struct {
	Token            string `json:"token,omitempty"`
	PaymentReference string `json:"paymentReference,omitempty" binding:"required_without=Token"`
	DownloadCode     string `json:"downloadCode,omitempty" binding:"required_without=Token"`
	WalletAddress    string `json:"walletAddress" binding:"required,ethaddr"`
}

type AdminRequestBody struct {
	AdminCode   string `json:"adminCode"`
	ProjectName string `json:"projectName" binding:"required"`
}

type AdminClaimRequestBody struct {
	AdminRequestBody
	Recipient string `json:"recipient" binding:"required,ethaddr"`
	TokenID   string `json:"tokenId" binding:"omitempty,numeric"`
	Quantity  int64  `json:"quantity" binding:"required,min=1"`
}

type AdminApprovalRequestBody struct {
	AdminRequestBody
	Operator string `json:"operator" binding:"required,ethaddr"`
	Approved bool   `json:"approved"`
}

type ClaimConditionInput struct {
	StartTimestamp         int64  `json:"startTimestamp" binding:"min=0"`
	MaxClaimableSupply     string `json:"maxClaimableSupply" binding:"required,numeric"`
	QuantityLimitPerWallet string `json:"quantityLimitPerWallet" binding:"required,numeric"`
	PricePerTokenWei       string `json:"pricePerTokenWei" binding:"required,numeric"`
	Currency               string `json:"currency" binding:"omitempty,ethaddr"`
	MerkleRoot             string `json:"merkleRoot" binding:"omitempty,hexadecimal"`
	Metadata               string `json:"metadata,omitempty"`
}

type AdminClaimConditionsRequestBody struct {
	AdminRequestBody
	TokenID    string                `json:"tokenId" binding:"omitempty,numeric"`
	Conditions []ClaimConditionInput `json:"conditions" binding:"required,min=1,dive"`
	Reset      bool                  `json:"resetClaimEligibility"`
}

type AdminResendRequestBody struct {
	AdminCode        string `json:"adminCode"`
	PaymentReference string `json:"paymentReference" binding:"required"`
}

type MailchimpSubscribeRequestBody struct {
	Email     string   `json:"email" binding:"required,email"`
	FirstName string   `json:"firstName,omitempty"`
	LastName  string   `json:"lastName,omitempty"`
	Tags      []string `json:"tags,omitempty"`
}

type MailchimpTagsRequestBody struct {
	Email string   `json:"email" binding:"required,email"`
	Tags  []string `json:"tags" binding:"required,min=1"`
}

var (
	ErrUnknownProject           = errors.New("unknown project")
	ErrUnknownDistributionType  = errors.New("unknown distributionType")
	ErrEmailCodeNotDispatchable = errors.New("distributionType EmailCode is fulfilled with a download code, not an on-chain call")
	ErrMissingSigningKey        = errors.New("missing signing key for project")
	ErrTransactionNotPrepared   = errors.New("transaction could not be prepared")
	ErrRecordNotFound           = errors.New("transaction record not found")
	ErrInvalidTransition        = errors.New("invalid status transition")
	ErrAlreadyDownloaded        = errors.New("NFT has already been downloaded")
	ErrTxNotFound               = errors.New("transaction not found")
	ErrTxNotConfirmed           = errors.New("transaction is not confirmed yet")
	ErrTxFailed                 = errors.New("transaction failed on chain")
	ErrPriceUnavailable         = errors.New("exchange rate unavailable")
	ErrMissingWebhookSecret     = errors.New("missing webhook secret")
	ErrInvalidSignature         = errors.New("invalid webhook signature")
	ErrInvalidDownloadCode      = errors.New("invalid download code")
	ErrInvalidRequest           = errors.New("invalid request")
	ErrPayerMismatch            = errors.New("payment was not sent from the buyer wallet")
	ErrNotEmailRecipient        = errors.New("recipient is not an email address")
)

// PaymentMismatchError is returned when the paid amount falls outside the
// tolerance band around the expected amount. Amounts are in native units.
type PaymentMismatchError struct {
	Paid     decimal.Decimal
	Expected decimal.Decimal
	Symbol   string
}

func (e *PaymentMismatchError) Error() string {
	return fmt.Sprintf("paid amount %s %s is outside the tolerance band of the expected %s %s", e.Paid.String(), e.Symbol, e.Expected.String(), e.Symbol)
}

type RecipientMismatchError struct {
	Got      string
	Expected string
}

func (e *RecipientMismatchError) Error() string {
	return fmt.Sprintf("payment was sent to %s instead of %s", e.Got, e.Expected)
}
