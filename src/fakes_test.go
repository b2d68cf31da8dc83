package main

import (
	"context"
	"crypto/ecdsa"
	"math/big"
	"sync"

	"nftdrops/src/common"
	"nftdrops/src/config"
	"nftdrops/src/lib"
	"nftdrops/src/types"

	ethcommon "github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/shopspring/decimal"
)

const (
	minterAddr   = "0x2F8cE5B4a3dC1bA0e8E8a6c4b0dF9A3e7C6d5B41"
	contractAddr = "0x1111111111111111111111111111111111111111"
	buyerAddr    = "0x2222222222222222222222222222222222222222"
	walletAddr   = "0x3333333333333333333333333333333333333333"
	paymentHash  = "0xaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"
	otherHash    = "0xbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"
	fanEmail     = "fan@example.com"
)

func testCatalog() *config.Catalog {
	return config.NewCatalog(
		&config.Project{
			Name:               "DAO",
			BlockchainID:       137,
			NativeCoinID:       "matic-network",
			NativeSymbol:       "POL",
			NftContractAddress: contractAddr,
			MinterAddress:      minterAddr,
			DistributionType:   types.ClaimToERC1155,
			PricesEUR:          []float64{100, 150, 200, 250},
			ResultURL:          "/dao",
		},
		&config.Project{
			Name:               "Happy Birthday Cakes",
			BlockchainID:       8453,
			NativeCoinID:       "ethereum",
			NftContractAddress: contractAddr,
			MinterAddress:      minterAddr,
			DistributionType:   types.ClaimToERC721,
			PricesEUR:          []float64{25},
			PriceDecimals:      4,
			ResultURL:          "/cakes",
		},
	)
}

type fakeRates struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeRates) EurRate(ctx context.Context, coinID string) (decimal.Decimal, error) {
	return f.rate, f.err
}

// fakeChain serves payments by hash. A payment without a block is pending.
type fakeChain struct {
	mu  sync.Mutex
	txs map[string]*lib.ChainTx
}

func (f *fakeChain) Client(ctx context.Context, project *config.Project) (lib.ChainClient, error) {
	return f, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash string) (*lib.ChainTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok {
		return nil, types.ErrTxNotFound
	}
	cp := *tx
	return &cp, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash string) (*lib.ChainReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx, ok := f.txs[hash]
	if !ok || tx.BlockNumber == nil {
		return nil, types.ErrTxNotFound
	}
	return &lib.ChainReceipt{Status: 1, BlockNumber: tx.BlockNumber}, nil
}

func (f *fakeChain) pay(hash, amount string, mined bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	tx := &lib.ChainTx{
		Hash:  hash,
		From:  buyerAddr,
		To:    minterAddr,
		Value: common.ToWei(decimal.RequireFromString(amount)),
	}
	if mined {
		tx.BlockNumber = big.NewInt(1234)
	}
	f.txs[hash] = tx
}

type fakeContract struct {
	mu      sync.Mutex
	methods []string
}

func (f *fakeContract) record(method string, to ethcommon.Address) (*ethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.methods = append(f.methods, method)
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(len(f.methods)), To: &to, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (f *fakeContract) called() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.methods...)
}

func (f *fakeContract) ClaimTo721(ctx context.Context, to ethcommon.Address, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("claimTo721", to)
}

func (f *fakeContract) ClaimTo1155(ctx context.Context, to ethcommon.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("claimTo1155", to)
}

func (f *fakeContract) SafeTransferFrom721(ctx context.Context, to ethcommon.Address, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return f.record("safeTransferFrom721", to)
}

func (f *fakeContract) SafeTransferFrom1155(ctx context.Context, to ethcommon.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("safeTransferFrom1155", to)
}

func (f *fakeContract) SetApprovalForAll(ctx context.Context, erc1155 bool, operator ethcommon.Address, approved bool) (*ethtypes.Transaction, error) {
	return f.record("setApprovalForAll", operator)
}

func (f *fakeContract) SetClaimConditions721(ctx context.Context, conditions []lib.ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return f.record("setClaimConditions721", ethcommon.Address{})
}

func (f *fakeContract) SetClaimConditions1155(ctx context.Context, tokenID *big.Int, conditions []lib.ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return f.record("setClaimConditions1155", ethcommon.Address{})
}

func (f *fakeContract) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	return &ethtypes.Receipt{Status: ethtypes.ReceiptStatusSuccessful, TxHash: tx.Hash(), BlockNumber: big.NewInt(99)}, nil
}

type fakeDialer struct {
	contract *fakeContract
}

func (f *fakeDialer) Dial(ctx context.Context, project *config.Project, key *ecdsa.PrivateKey) (lib.DropContract, error) {
	return f.contract, nil
}

type fakeKeys struct {
	key *ecdsa.PrivateKey
}

func (f *fakeKeys) SigningKey(ctx context.Context, project *config.Project) (*ecdsa.PrivateKey, error) {
	return f.key, nil
}

func newFakeKeys() *fakeKeys {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &fakeKeys{key: key}
}

type fakeRelay struct {
	mu   sync.Mutex
	sent []lib.SendMailInput
}

func (f *fakeRelay) Name() string {
	return "fake"
}

func (f *fakeRelay) Send(ctx context.Context, input *lib.SendMailInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, *input)
	return nil
}

func (f *fakeRelay) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}
