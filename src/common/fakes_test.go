package common

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"
	"sync"
	"time"

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
	fanEmail     = "fan@example.com"
)

func testCatalog() *config.Catalog {
	return config.NewCatalog(&config.Project{
		Name:               "DAO",
		BlockchainID:       137,
		NativeCoinID:       "matic-network",
		NativeSymbol:       "POL",
		NftContractAddress: contractAddr,
		MinterAddress:      minterAddr,
		DistributionType:   types.ClaimToERC1155,
		PricesEUR:          []float64{100, 150, 200, 250},
		ResultURL:          "/dao",
	})
}

type fakeRates struct {
	rate decimal.Decimal
	err  error
}

func (f *fakeRates) EurRate(ctx context.Context, coinID string) (decimal.Decimal, error) {
	return f.rate, f.err
}

// fakeChain serves one transaction and counts the reads of it.
type fakeChain struct {
	mu      sync.Mutex
	tx      *lib.ChainTx
	status  uint64
	txErr   error
	txCalls int
}

func (f *fakeChain) Client(ctx context.Context, project *config.Project) (lib.ChainClient, error) {
	return f, nil
}

func (f *fakeChain) TransactionByHash(ctx context.Context, hash string) (*lib.ChainTx, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txCalls++
	if f.txErr != nil {
		return nil, f.txErr
	}
	if f.tx == nil {
		return nil, types.ErrTxNotFound
	}
	tx := *f.tx
	return &tx, nil
}

func (f *fakeChain) TransactionReceipt(ctx context.Context, hash string) (*lib.ChainReceipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tx == nil || f.tx.BlockNumber == nil {
		return nil, types.ErrTxNotFound
	}
	return &lib.ChainReceipt{Status: f.status, BlockNumber: f.tx.BlockNumber}, nil
}

func (f *fakeChain) mine(paid string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tx.Value = ToWei(decimal.RequireFromString(paid))
	f.tx.BlockNumber = big.NewInt(1234)
	f.status = 1
}

func (f *fakeChain) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txCalls
}

func minedPayment(paid string) *fakeChain {
	c := pendingPayment()
	c.mine(paid)
	return c
}

func pendingPayment() *fakeChain {
	return &fakeChain{tx: &lib.ChainTx{
		Hash:  paymentHash,
		From:  buyerAddr,
		To:    minterAddr,
		Value: new(big.Int),
	}}
}

type recordedCall struct {
	method   string
	to       ethcommon.Address
	tokenID  *big.Int
	quantity *big.Int
}

type fakeContract struct {
	mu       sync.Mutex
	calls    []recordedCall
	nilTx    bool
	callErr  error
	reverted bool
}

func (f *fakeContract) record(method string, to ethcommon.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.callErr != nil {
		return nil, f.callErr
	}
	f.calls = append(f.calls, recordedCall{method: method, to: to, tokenID: tokenID, quantity: quantity})
	if f.nilTx {
		return nil, nil
	}
	return ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: uint64(len(f.calls)), To: &to, Gas: 21000, GasPrice: big.NewInt(1)}), nil
}

func (f *fakeContract) ClaimTo721(ctx context.Context, to ethcommon.Address, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("claimTo721", to, nil, quantity)
}

func (f *fakeContract) ClaimTo1155(ctx context.Context, to ethcommon.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("claimTo1155", to, tokenID, quantity)
}

func (f *fakeContract) SafeTransferFrom721(ctx context.Context, to ethcommon.Address, tokenID *big.Int) (*ethtypes.Transaction, error) {
	return f.record("safeTransferFrom721", to, tokenID, nil)
}

func (f *fakeContract) SafeTransferFrom1155(ctx context.Context, to ethcommon.Address, tokenID, quantity *big.Int) (*ethtypes.Transaction, error) {
	return f.record("safeTransferFrom1155", to, tokenID, quantity)
}

func (f *fakeContract) SetApprovalForAll(ctx context.Context, erc1155 bool, operator ethcommon.Address, approved bool) (*ethtypes.Transaction, error) {
	return f.record("setApprovalForAll", operator, nil, nil)
}

func (f *fakeContract) SetClaimConditions721(ctx context.Context, conditions []lib.ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return f.record("setClaimConditions721", ethcommon.Address{}, nil, big.NewInt(int64(len(conditions))))
}

func (f *fakeContract) SetClaimConditions1155(ctx context.Context, tokenID *big.Int, conditions []lib.ClaimCondition, reset bool) (*ethtypes.Transaction, error) {
	return f.record("setClaimConditions1155", ethcommon.Address{}, tokenID, big.NewInt(int64(len(conditions))))
}

func (f *fakeContract) WaitMined(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
	status := ethtypes.ReceiptStatusSuccessful
	if f.reverted {
		status = ethtypes.ReceiptStatusFailed
	}
	return &ethtypes.Receipt{Status: status, TxHash: tx.Hash(), BlockNumber: big.NewInt(99)}, nil
}

func (f *fakeContract) methods() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, c := range f.calls {
		out = append(out, c.method)
	}
	return out
}

type fakeDialer struct {
	contract *fakeContract
	dials    int
}

func (f *fakeDialer) Dial(ctx context.Context, project *config.Project, key *ecdsa.PrivateKey) (lib.DropContract, error) {
	f.dials++
	return f.contract, nil
}

type fakeKeys struct {
	key *ecdsa.PrivateKey
}

func (f *fakeKeys) SigningKey(ctx context.Context, project *config.Project) (*ecdsa.PrivateKey, error) {
	if f.key == nil {
		return nil, types.ErrMissingSigningKey
	}
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
	err  error
}

func (f *fakeRelay) Name() string {
	return "fake"
}

func (f *fakeRelay) Send(ctx context.Context, input *lib.SendMailInput) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, *input)
	return nil
}

func (f *fakeRelay) subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := []string{}
	for _, m := range f.sent {
		out = append(out, m.Subject)
	}
	return out
}

type scheduledJob struct {
	name string
	at   time.Time
	fn   func()
}

type fakeScheduler struct {
	jobs []scheduledJob
}

func (f *fakeScheduler) ScheduleOnce(name string, at time.Time, fn func()) (string, error) {
	f.jobs = append(f.jobs, scheduledJob{name: name, at: at, fn: fn})
	return name, nil
}

var errRelayDown = errors.New("relay down")

type harness struct {
	pl       *Pipeline
	store    *MemoryRecordStore
	chain    *fakeChain
	contract *fakeContract
	relay    *fakeRelay
	sched    *fakeScheduler
}

func newHarness(chain *fakeChain) *harness {
	catalog := testCatalog()
	prices := &PriceOracle{Catalog: catalog, Rates: &fakeRates{rate: decimal.NewFromInt(1)}}
	verifier := NewCryptoVerifier(chain, prices)
	verifier.Interval = time.Millisecond
	h := &harness{
		store:    NewMemoryRecordStore(),
		chain:    chain,
		contract: &fakeContract{},
		relay:    &fakeRelay{},
		sched:    &fakeScheduler{},
	}
	h.pl = &Pipeline{
		Catalog:    catalog,
		Store:      h.store,
		Prices:     prices,
		Crypto:     verifier,
		Dispatcher: &Dispatcher{Keys: newFakeKeys(), Contracts: &fakeDialer{contract: h.contract}},
		Notifier: &Notifier{
			Relay:       h.relay,
			From:        "drops@example.com",
			FromName:    "NFT Drops",
			AdminEmails: []string{"admin@example.com"},
			AppHost:     "https://drops.example.com",
			TokenSecret: []byte("test-download-secret"),
		},
		Scheduler:     h.sched,
		Redemptions:   NewMemorySeenStore(RedeemLockTTL),
		Distributions: NewMemorySeenStore(DistributeLockTTL),
	}
	return h
}

func walletPurchase() *types.PurchaseRequest {
	return &types.PurchaseRequest{
		ProjectName:                   "DAO",
		DistributionType:              types.ClaimToERC1155,
		BuyerWalletAddress:            buyerAddr,
		RecipientWalletAddressOrEmail: walletAddr,
		NftContractAddress:            contractAddr,
		BlockchainID:                  137,
		TokenID:                       "1",
		RequestedQuantity:             1,
	}
}

func emailPurchase() *types.PurchaseRequest {
	p := walletPurchase()
	p.RecipientWalletAddressOrEmail = fanEmail
	p.TokenID = "0"
	p.OffererName = "Ada"
	return p
}
