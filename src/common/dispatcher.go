package common

import (
	"context"
	"fmt"
	"log"
	"math/big"

	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/types"
	"nftdrops/src/utils"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
)

type DistributionRequest struct {
	Project   *config.Project
	Type      types.DistributionType
	Recipient string
	TokenID   string
	Quantity  int64
}

// Dispatcher performs the on-chain half of a sale. It never touches the
// transaction record; callers update it after a successful dispatch.
type Dispatcher struct {
	Keys      KeySource
	Contracts lib.ContractDialer
}

type contractCall func(c lib.DropContract) (*ethtypes.Transaction, error)

// Dispatch returns the hash of the mined distribution transaction.
func (d *Dispatcher) Dispatch(ctx context.Context, req *DistributionRequest) (string, error) {
	call, err := distributionCall(ctx, req)
	if err != nil {
		return "", err
	}
	hash, err := d.submit(ctx, req.Project, call)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	lib.DistributionsTotal.WithLabelValues(string(req.Type), outcome).Inc()
	if err != nil {
		log.Printf("[Dispatcher] %s of token %s to %s failed: %s\n", req.Type, req.TokenID, req.Recipient, err.Error())
		return "", err
	}
	log.Printf("[Dispatcher] %s of token %s to %s: %s\n", req.Type, req.TokenID, req.Recipient, hash)
	return hash, nil
}

func distributionCall(ctx context.Context, req *DistributionRequest) (contractCall, error) {
	switch {
	case req.Type == types.EmailCode:
		return nil, types.ErrEmailCodeNotDispatchable
	case !req.Type.OnChain():
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownDistributionType, req.Type)
	}
	if !utils.IsEthAddress(req.Recipient) {
		return nil, fmt.Errorf("%w: recipient %q is not a wallet address", types.ErrInvalidRequest, req.Recipient)
	}
	to := ethcommon.HexToAddress(req.Recipient)
	quantity := big.NewInt(req.Quantity)
	if req.Quantity < 1 {
		quantity = big.NewInt(1)
	}
	tokenID := new(big.Int)
	if req.TokenID != "" {
		if _, ok := tokenID.SetString(req.TokenID, 10); !ok {
			return nil, fmt.Errorf("%w: tokenId %q", types.ErrInvalidRequest, req.TokenID)
		}
	}
	switch req.Type {
	case types.ClaimToERC721:
		return func(c lib.DropContract) (*ethtypes.Transaction, error) {
			return c.ClaimTo721(ctx, to, quantity)
		}, nil
	case types.ClaimToERC1155:
		return func(c lib.DropContract) (*ethtypes.Transaction, error) {
			return c.ClaimTo1155(ctx, to, tokenID, quantity)
		}, nil
	case types.SafeTransferFromERC721:
		return func(c lib.DropContract) (*ethtypes.Transaction, error) {
			return c.SafeTransferFrom721(ctx, to, tokenID)
		}, nil
	default:
		return func(c lib.DropContract) (*ethtypes.Transaction, error) {
			return c.SafeTransferFrom1155(ctx, to, tokenID, quantity)
		}, nil
	}
}

// submit signs with the project key, sends the prepared call and waits for
// it to be mined.
func (d *Dispatcher) submit(ctx context.Context, project *config.Project, call contractCall) (string, error) {
	key, err := d.Keys.SigningKey(ctx, project)
	if err != nil {
		return "", err
	}
	contract, err := d.Contracts.Dial(ctx, project, key)
	if err != nil {
		return "", err
	}
	tx, err := call(contract)
	if err != nil {
		return "", err
	}
	if tx == nil {
		return "", types.ErrTransactionNotPrepared
	}
	receipt, err := contract.WaitMined(ctx, tx)
	if err != nil {
		return "", err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return "", fmt.Errorf("%w: %s", types.ErrTxFailed, tx.Hash().Hex())
	}
	return tx.Hash().Hex(), nil
}

// AdminClaim claims tokens to a wallet outside of a sale.
func (d *Dispatcher) AdminClaim(ctx context.Context, project *config.Project, erc1155 bool, to, tokenID string, quantity int64) (string, error) {
	t := types.ClaimToERC721
	if erc1155 {
		t = types.ClaimToERC1155
	}
	return d.Dispatch(ctx, &DistributionRequest{Project: project, Type: t, Recipient: to, TokenID: tokenID, Quantity: quantity})
}

func (d *Dispatcher) SetApprovalForAll(ctx context.Context, project *config.Project, erc1155 bool, operator string, approved bool) (string, error) {
	if !utils.IsEthAddress(operator) {
		return "", fmt.Errorf("%w: operator %q", types.ErrInvalidRequest, operator)
	}
	op := ethcommon.HexToAddress(operator)
	return d.submit(ctx, project, func(c lib.DropContract) (*ethtypes.Transaction, error) {
		return c.SetApprovalForAll(ctx, erc1155, op, approved)
	})
}

func (d *Dispatcher) SetClaimConditions(ctx context.Context, project *config.Project, erc1155 bool, tokenID string, inputs []types.ClaimConditionInput, reset bool) (string, error) {
	conditions, err := ClaimConditions(inputs)
	if err != nil {
		return "", err
	}
	id := new(big.Int)
	if erc1155 {
		if _, ok := id.SetString(tokenID, 10); !ok {
			return "", fmt.Errorf("%w: tokenId %q", types.ErrInvalidRequest, tokenID)
		}
	}
	return d.submit(ctx, project, func(c lib.DropContract) (*ethtypes.Transaction, error) {
		if erc1155 {
			return c.SetClaimConditions1155(ctx, id, conditions, reset)
		}
		return c.SetClaimConditions721(ctx, conditions, reset)
	})
}

// ClaimConditions converts request phases into contract tuples. Empty
// currency means the native coin.
func ClaimConditions(inputs []types.ClaimConditionInput) ([]lib.ClaimCondition, error) {
	out := make([]lib.ClaimCondition, 0, len(inputs))
	for i, in := range inputs {
		c := lib.ClaimCondition{
			StartTimestamp: big.NewInt(in.StartTimestamp),
			SupplyClaimed:  big.NewInt(0),
			Currency:       lib.NativeCurrency,
			Metadata:       in.Metadata,
		}
		var ok bool
		if c.MaxClaimableSupply, ok = new(big.Int).SetString(in.MaxClaimableSupply, 10); !ok {
			return nil, fmt.Errorf("%w: conditions[%d].maxClaimableSupply", types.ErrInvalidRequest, i)
		}
		if c.QuantityLimitPerWallet, ok = new(big.Int).SetString(in.QuantityLimitPerWallet, 10); !ok {
			return nil, fmt.Errorf("%w: conditions[%d].quantityLimitPerWallet", types.ErrInvalidRequest, i)
		}
		if c.PricePerToken, ok = new(big.Int).SetString(in.PricePerTokenWei, 10); !ok {
			return nil, fmt.Errorf("%w: conditions[%d].pricePerTokenWei", types.ErrInvalidRequest, i)
		}
		if in.Currency != "" {
			c.Currency = ethcommon.HexToAddress(in.Currency)
		}
		if in.MerkleRoot != "" {
			c.MerkleRoot = ethcommon.HexToHash(in.MerkleRoot)
		}
		out = append(out, c)
	}
	return out, nil
}
