package lib

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"log"
	"math/big"
	"strings"

	"nftdrops/src/config"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// NativeCurrency is the sentinel currency address of thirdweb drops for the
// chain's native coin.
var NativeCurrency = common.HexToAddress("0xEeeeeEeeeEeEeeEeEeEeeEEEeeeeEeeeeeeeEEeE")

const claimConditionComponents = `"components":[
	{"name":"startTimestamp","type":"uint256"},
	{"name":"maxClaimableSupply","type":"uint256"},
	{"name":"supplyClaimed","type":"uint256"},
	{"name":"quantityLimitPerWallet","type":"uint256"},
	{"name":"merkleRoot","type":"bytes32"},
	{"name":"pricePerToken","type":"uint256"},
	{"name":"currency","type":"address"},
	{"name":"metadata","type":"string"}]`

const allowlistProofTuple = `{"components":[
	{"name":"proof","type":"bytes32[]"},
	{"name":"quantityLimitPerWallet","type":"uint256"},
	{"name":"pricePerToken","type":"uint256"},
	{"name":"currency","type":"address"}],"name":"_allowlistProof","type":"tuple"}`

const dropERC721ABI = `[
{"name":"claim","type":"function","stateMutability":"payable","outputs":[],"inputs":[
	{"name":"_receiver","type":"address"},
	{"name":"_quantity","type":"uint256"},
	{"name":"_currency","type":"address"},
	{"name":"_pricePerToken","type":"uint256"},
	` + allowlistProofTuple + `,
	{"name":"_data","type":"bytes"}]},
{"name":"getActiveClaimConditionId","type":"function","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
{"name":"getClaimConditionById","type":"function","stateMutability":"view","inputs":[{"name":"_conditionId","type":"uint256"}],"outputs":[{` + claimConditionComponents + `,"name":"condition","type":"tuple"}]},
{"name":"setClaimConditions","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{` + claimConditionComponents + `,"name":"_conditions","type":"tuple[]"},
	{"name":"_resetClaimEligibility","type":"bool"}]},
{"name":"safeTransferFrom","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"from","type":"address"},
	{"name":"to","type":"address"},
	{"name":"tokenId","type":"uint256"}]},
{"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"operator","type":"address"},
	{"name":"approved","type":"bool"}]}
]`

const dropERC1155ABI = `[
{"name":"claim","type":"function","stateMutability":"payable","outputs":[],"inputs":[
	{"name":"_receiver","type":"address"},
	{"name":"_tokenId","type":"uint256"},
	{"name":"_quantity","type":"uint256"},
	{"name":"_currency","type":"address"},
	{"name":"_pricePerToken","type":"uint256"},
	` + allowlistProofTuple + `,
	{"name":"_data","type":"bytes"}]},
{"name":"getActiveClaimConditionId","type":"function","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"}],"outputs":[{"name":"","type":"uint256"}]},
{"name":"getClaimConditionById","type":"function","stateMutability":"view","inputs":[{"name":"_tokenId","type":"uint256"},{"name":"_conditionId","type":"uint256"}],"outputs":[{` + claimConditionComponents + `,"name":"condition","type":"tuple"}]},
{"name":"setClaimConditions","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"_tokenId","type":"uint256"},
	{` + claimConditionComponents + `,"name":"_conditions","type":"tuple[]"},
	{"name":"_resetClaimEligibility","type":"bool"}]},
{"name":"safeTransferFrom","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"from","type":"address"},
	{"name":"to","type":"address"},
	{"name":"id","type":"uint256"},
	{"name":"amount","type":"uint256"},
	{"name":"data","type":"bytes"}]},
{"name":"setApprovalForAll","type":"function","stateMutability":"nonpayable","outputs":[],"inputs":[
	{"name":"operator","type":"address"},
	{"name":"approved","type":"bool"}]}
]`

var (
	erc721ABI  = mustParseABI(dropERC721ABI)
	erc1155ABI = mustParseABI(dropERC1155ABI)
)

func mustParseABI(def string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(def))
	if err != nil {
		panic(err)
	}
	return parsed
}

type ClaimCondition struct {
	StartTimestamp         *big.Int
	MaxClaimableSupply     *big.Int
	SupplyClaimed          *big.Int
	QuantityLimitPerWallet *big.Int
	MerkleRoot             [32]byte
	PricePerToken          *big.Int
	Currency               common.Address
	Metadata               string
}

type AllowlistProof struct {
	Proof                  [][32]byte
	QuantityLimitPerWallet *big.Int
	PricePerToken          *big.Int
	Currency               common.Address
}

// DropContract is the signed write surface of a thirdweb drop. Every method
// returns the submitted transaction; WaitMined blocks until it is included.
type DropContract interface {
	ClaimTo721(ctx context.Context, to common.Address, quantity *big.Int) (*ethtypes.Transaction, error)
	ClaimTo1155(ctx context.Context, to common.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error)
	SafeTransferFrom721(ctx context.Context, to common.Address, tokenID *big.Int) (*ethtypes.Transaction, error)
	SafeTransferFrom1155(ctx context.Context, to common.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error)
	SetApprovalForAll(ctx context.Context, erc1155 bool, operator common.Address, approved bool) (*ethtypes.Transaction, error)
	SetClaimConditions721(ctx context.Context, conditions []ClaimCondition, reset bool) (*ethtypes.Transaction, error)
	SetClaimConditions1155(ctx context.Context, tokenID *big.Int, conditions []ClaimCondition, reset bool) (*ethtypes.Transaction, error)
	WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// ContractDialer binds a project's drop contract to a signing key.
type ContractDialer interface {
	Dial(ctx context.Context, project *config.Project, key *ecdsa.PrivateKey) (DropContract, error)
}

type boundDrop struct {
	backend *RPCChainClient
	erc721  *bind.BoundContract
	erc1155 *bind.BoundContract
	auth    *bind.TransactOpts
	from    common.Address
}

type RPCContractDialer struct {
	Chains *RPCChainProvider
}

func (d *RPCContractDialer) Dial(ctx context.Context, project *config.Project, key *ecdsa.PrivateKey) (DropContract, error) {
	if !common.IsHexAddress(project.NftContractAddress) {
		return nil, errors.New("project " + project.Name + " has no valid nft_contract_address")
	}
	backend, err := d.Chains.Dial(ctx, project)
	if err != nil {
		return nil, err
	}
	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(project.BlockchainID))
	if err != nil {
		return nil, err
	}
	address := common.HexToAddress(project.NftContractAddress)
	eth := backend.Eth()
	return &boundDrop{
		backend: backend,
		erc721:  bind.NewBoundContract(address, erc721ABI, eth, eth, eth),
		erc1155: bind.NewBoundContract(address, erc1155ABI, eth, eth, eth),
		auth:    auth,
		from:    crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (b *boundDrop) opts(ctx context.Context, value *big.Int) *bind.TransactOpts {
	o := *b.auth
	o.Context = ctx
	o.Value = value
	return &o
}

func (b *boundDrop) activeCondition(ctx context.Context, c *bind.BoundContract, tokenID *big.Int) (*ClaimCondition, error) {
	call := &bind.CallOpts{Context: ctx}
	var idArgs []any
	if tokenID != nil {
		idArgs = append(idArgs, tokenID)
	}
	var out []any
	if err := c.Call(call, &out, "getActiveClaimConditionId", idArgs...); err != nil {
		return nil, err
	}
	id := abi.ConvertType(out[0], new(big.Int)).(*big.Int)
	out = nil
	if err := c.Call(call, &out, "getClaimConditionById", append(idArgs, id)...); err != nil {
		return nil, err
	}
	cond := abi.ConvertType(out[0], new(ClaimCondition)).(*ClaimCondition)
	return cond, nil
}

// claimValue is what the minter pays for a claim in the native coin. ERC20
// priced drops are paid by allowance, not value.
func claimValue(cond *ClaimCondition, quantity *big.Int) *big.Int {
	if cond.Currency != NativeCurrency {
		return nil
	}
	return new(big.Int).Mul(cond.PricePerToken, quantity)
}

func proofFor(cond *ClaimCondition) AllowlistProof {
	return AllowlistProof{
		Proof:                  [][32]byte{},
		QuantityLimitPerWallet: cond.QuantityLimitPerWallet,
		PricePerToken:          cond.PricePerToken,
		Currency:               cond.Currency,
	}
}

func (b *boundDrop) ClaimTo721(ctx context.Context, to common.Address, quantity *big.Int) (*ethtypes.Transaction, error) {
	cond, err := b.activeCondition(ctx, b.erc721, nil)
	if err != nil {
		log.Printf("[contract] Error reading claim condition: %s\n", err.Error())
		return nil, err
	}
	return b.erc721.Transact(b.opts(ctx, claimValue(cond, quantity)), "claim",
		to, quantity, cond.Currency, cond.PricePerToken, proofFor(cond), []byte{})
}

func (b *boundDrop) ClaimTo1155(ctx context.Context, to common.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	cond, err := b.activeCondition(ctx, b.erc1155, tokenID)
	if err != nil {
		log.Printf("[contract] Error reading claim condition for token %s: %s\n", tokenID.String(), err.Error())
		return nil, err
	}
	return b.erc1155.Transact(b.opts(ctx, claimValue(cond, quantity)), "claim",
		to, tokenID, quantity, cond.Currency, cond.PricePerToken, proofFor(cond), []byte{})
}

func (b *boundDrop) SafeTransferFrom721(ctx context.Context, to common.Address, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return b.erc721.Transact(b.opts(ctx, nil), "safeTransferFrom", b.from, to, tokenID)
}

func (b *boundDrop) SafeTransferFrom1155(ctx context.Context, to common.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	return b.erc1155.Transact(b.opts(ctx, nil), "safeTransferFrom", b.from, to, tokenID, quantity, []byte{})
}

func (b *boundDrop) SetApprovalForAll(ctx context.Context, erc1155 bool, operator common.Address, approved bool) (*ethtypes.Transaction, error) {
	c := b.erc721
	if erc1155 {
		c = b.erc1155
	}
	return c.Transact(b.opts(ctx, nil), "setApprovalForAll", operator, approved)
}

func (b *boundDrop) SetClaimConditions721(ctx context.Context, conditions []ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return b.erc721.Transact(b.opts(ctx, nil), "setClaimConditions", conditions, reset)
}

func (b *boundDrop) SetClaimConditions1155(ctx context.Context, tokenID *big.Int, conditions []ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return b.erc1155.Transact(b.opts(ctx, nil), "setClaimConditions", tokenID, conditions, reset)
}

func (b *boundDrop) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return bind.WaitMined(ctx, b.backend.Eth(), tx)
}
