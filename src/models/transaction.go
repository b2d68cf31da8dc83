package models

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"nftdrops/src/types"
)

const (
	TransactionKeyPrefix = "nft_tx:"
	// CurrentSchemaVersion is written on every save. Records without a
	// schemaVersion field predate the flow tag and are version 1.
	CurrentSchemaVersion = 2
)

var txHashPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{64}$`)

// NFTTransaction is the audit trail of a single sale. It is stored as one
// JSON document per payment reference and never deleted.
type NFTTransaction struct {
	SchemaVersion      int                     `json:"schemaVersion"`
	PaymentReference   string                  `json:"paymentReference"`
	Flow               types.PaymentFlow       `json:"flow"`
	ProjectName        string                  `json:"projectName,omitempty"`
	Recipient          string                  `json:"recipient"`
	Buyer              string                  `json:"buyerWalletAddress,omitempty"`
	TokenID            string                  `json:"tokenId"`
	Quantity           int64                   `json:"quantity,omitempty"`
	DistributionType   types.DistributionType  `json:"distributionType,omitempty"`
	DownloadCode       string                  `json:"downloadCode,omitempty"`
	OffererName        string                  `json:"offererName,omitempty"`
	Status             types.TransactionStatus `json:"status"`
	DistributionTxHash string                  `json:"distributionTxHash,omitempty"`
	// VerifiedAt is set once the payment itself was checked, on chain or
	// through a signed Stripe event. Status alone does not prove payment.
	VerifiedAt         *time.Time              `json:"verifiedAt,omitempty"`
	CreatedAt          time.Time               `json:"createdAt"`
	UpdatedAt          time.Time               `json:"updatedAt,omitempty"`
}

func TransactionKey(paymentReference string) string {
	return TransactionKeyPrefix + paymentReference
}

// Allowed forward edges per flow. Both flows end in NFT_DOWNLOADED.
var transitions = map[types.PaymentFlow]map[types.TransactionStatus][]types.TransactionStatus{
	types.FLOW_CRYPTO: {
		types.TX_PENDING:   {types.TX_CONFIRMED, types.TX_FAILED},
		types.TX_CONFIRMED: {types.EMAIL_SENT, types.EMAIL_FAILED, types.NFT_DOWNLOADED},
		types.EMAIL_SENT:   {types.NFT_DOWNLOADED},
		types.EMAIL_FAILED: {types.EMAIL_SENT, types.NFT_DOWNLOADED},
	},
	types.FLOW_FIAT: {
		types.TX_CONFIRMED: {types.EMAIL_SENT, types.EMAIL_FAILED, types.NFT_DOWNLOADED},
		types.EMAIL_SENT:   {types.NFT_DOWNLOADED},
		types.EMAIL_FAILED: {types.EMAIL_SENT, types.NFT_DOWNLOADED},
	},
}

// FlowForReference infers the flow from the shape of a payment reference:
// transaction hashes are crypto payments, anything else came from Stripe.
func FlowForReference(paymentReference string) types.PaymentFlow {
	if txHashPattern.MatchString(paymentReference) {
		return types.FLOW_CRYPTO
	}
	return types.FLOW_FIAT
}

func InitialStatus(flow types.PaymentFlow) types.TransactionStatus {
	if flow == types.FLOW_FIAT {
		return types.TX_CONFIRMED
	}
	return types.TX_PENDING
}

// ValidInitialStatus reports whether a record of the flow may be created
// directly in the given status. Fiat records never pass through TX_PENDING
// and crypto records always start there until the payment is verified.
func ValidInitialStatus(flow types.PaymentFlow, status types.TransactionStatus) bool {
	if !status.Valid() {
		return false
	}
	if flow == types.FLOW_FIAT {
		return status != types.TX_PENDING && status != types.TX_FAILED
	}
	return status == types.TX_PENDING
}

func (t *NFTTransaction) Verified() bool {
	return t.VerifiedAt != nil
}

func (t *NFTTransaction) CanTransition(to types.TransactionStatus) bool {
	if t.Status == to {
		return true
	}
	for _, next := range transitions[t.Flow][t.Status] {
		if next == to {
			return true
		}
	}
	return false
}

func (t *NFTTransaction) IsTerminal() bool {
	return len(transitions[t.Flow][t.Status]) == 0
}

func (t *NFTTransaction) Transition(to types.TransactionStatus) error {
	if !t.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s (%s flow)", types.ErrInvalidTransition, t.Status, to, t.Flow)
	}
	t.Status = to
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (t *NFTTransaction) Encode() ([]byte, error) {
	t.SchemaVersion = CurrentSchemaVersion
	return json.Marshal(t)
}

// DecodeNFTTransaction reads a stored record and upgrades it to the current
// schema version.
func DecodeNFTTransaction(raw []byte) (*NFTTransaction, error) {
	var t NFTTransaction
	if err := json.Unmarshal(raw, &t); err != nil {
		return nil, err
	}
	t.migrate()
	return &t, nil
}

func (t *NFTTransaction) migrate() {
	if t.SchemaVersion == 0 {
		t.SchemaVersion = 1
	}
	if t.SchemaVersion == 1 {
		if t.Flow == "" {
			t.Flow = FlowForReference(t.PaymentReference)
			if t.Status == types.TX_PENDING || t.Status == types.TX_FAILED {
				t.Flow = types.FLOW_CRYPTO
			}
		}
		if t.UpdatedAt.IsZero() {
			t.UpdatedAt = t.CreatedAt
		}
		t.SchemaVersion = 2
	}
}
