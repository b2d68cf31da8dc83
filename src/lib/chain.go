package lib

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"math/big"
	"strings"
	"sync"

	"nftdrops/src/config"
	"nftdrops/src/types"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

// ChainTx is the part of a transaction the payment check looks at. A nil
// BlockNumber means the transaction is known but not mined yet.
type ChainTx struct {
	Hash        string
	From        string
	To          string
	Value       *big.Int
	BlockNumber *big.Int
}

func (t *ChainTx) Mined() bool {
	return t.BlockNumber != nil
}

type ChainReceipt struct {
	Status      uint64
	BlockNumber *big.Int
}

// ChainClient reads transactions from one chain. Unknown hashes return
// types.ErrTxNotFound.
type ChainClient interface {
	TransactionByHash(ctx context.Context, hash string) (*ChainTx, error)
	TransactionReceipt(ctx context.Context, hash string) (*ChainReceipt, error)
}

// ChainProvider hands out a client for a project's chain.
type ChainProvider interface {
	Client(ctx context.Context, project *config.Project) (ChainClient, error)
}

type rpcTransaction struct {
	Hash        common.Hash     `json:"hash"`
	From        *common.Address `json:"from"`
	To          *common.Address `json:"to"`
	Value       *hexutil.Big    `json:"value"`
	BlockNumber *hexutil.Big    `json:"blockNumber"`
}

type RPCChainClient struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

func DialChain(ctx context.Context, url string) (*RPCChainClient, error) {
	opts := []rpc.ClientOption{}
	if key := config.ThirdwebSecretKey(); key != "" {
		opts = append(opts, rpc.WithHeader("x-secret-key", key))
	}
	c, err := rpc.DialOptions(ctx, url, opts...)
	if err != nil {
		log.Printf("[chain] Error dialing %s: %s\n", url, err.Error())
		return nil, err
	}
	return &RPCChainClient{rpc: c, eth: ethclient.NewClient(c)}, nil
}

func (c *RPCChainClient) Eth() *ethclient.Client {
	return c.eth
}

// TransactionByHash uses the raw RPC call because ethclient hides the block
// number of a transaction.
func (c *RPCChainClient) TransactionByHash(ctx context.Context, hash string) (*ChainTx, error) {
	var raw json.RawMessage
	if err := c.rpc.CallContext(ctx, &raw, "eth_getTransactionByHash", common.HexToHash(hash)); err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, types.ErrTxNotFound
	}
	var tx rpcTransaction
	if err := json.Unmarshal(raw, &tx); err != nil {
		return nil, err
	}
	out := &ChainTx{Hash: tx.Hash.Hex(), Value: new(big.Int)}
	if tx.From != nil {
		out.From = tx.From.Hex()
	}
	if tx.To != nil {
		out.To = tx.To.Hex()
	}
	if tx.Value != nil {
		out.Value = tx.Value.ToInt()
	}
	if tx.BlockNumber != nil {
		out.BlockNumber = tx.BlockNumber.ToInt()
	}
	return out, nil
}

func (c *RPCChainClient) TransactionReceipt(ctx context.Context, hash string) (*ChainReceipt, error) {
	r, err := c.eth.TransactionReceipt(ctx, common.HexToHash(hash))
	if errors.Is(err, ethereum.NotFound) {
		return nil, types.ErrTxNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ChainReceipt{Status: r.Status, BlockNumber: r.BlockNumber}, nil
}

// RPCChainProvider keeps one connection per RPC endpoint.
type RPCChainProvider struct {
	mu      sync.Mutex
	clients map[string]*RPCChainClient
}

func NewRPCChainProvider() *RPCChainProvider {
	return &RPCChainProvider{clients: map[string]*RPCChainClient{}}
}

func (p *RPCChainProvider) Dial(ctx context.Context, project *config.Project) (*RPCChainClient, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if c, ok := p.clients[project.RPCURL]; ok {
		return c, nil
	}
	if project.RPCURL == "" {
		return nil, errors.New("project " + project.Name + " has no rpc_url")
	}
	c, err := DialChain(ctx, project.RPCURL)
	if err != nil {
		return nil, err
	}
	p.clients[project.RPCURL] = c
	return c, nil
}

func (p *RPCChainProvider) Client(ctx context.Context, project *config.Project) (ChainClient, error) {
	c, err := p.Dial(ctx, project)
	if err != nil {
		return nil, err
	}
	return c, nil
}

func SameAddress(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
