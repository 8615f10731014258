package ethclient

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
)

var ErrIncompatibleChainID = errors.New("rpc url returned incompatible chainID")

type Client interface {
	ChainID() uint64
	BlockNumber(ctx context.Context) (uint64, error)
	HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error)
	TransactionReceiptByHash(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error)
	// ContractBackend is used for sending signed transactions and waiting for them to be mined.
	ContractBackend() Backend
}

type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

type rpcClient struct {
	chainID uint64
	label   string
	url     string
	timeout time.Duration
	client  *ethclient.Client
	backend *backend
}

func NewClient(url string, timeout time.Duration, chainID uint64) (Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	rawClient, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("can't dial JSON rpc url: %w", err)
	}
	client := &rpcClient{
		chainID: chainID,
		label:   strconv.FormatUint(chainID, 10),
		url:     url,
		timeout: timeout,
		client:  ethclient.NewClient(rawClient),
	}
	client.backend = &backend{Client: client.client, rpc: client}

	rpcChainID, err := client.client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("can't get chainID: %w", err)
	}
	if !rpcChainID.IsUint64() || rpcChainID.Uint64() != chainID {
		return nil, fmt.Errorf("received chainID %s != expected %d: %w", rpcChainID, chainID, ErrIncompatibleChainID)
	}
	return client, nil
}

func (c *rpcClient) ChainID() uint64 {
	return c.chainID
}

func (c *rpcClient) BlockNumber(ctx context.Context) (uint64, error) {
	defer ObserveDuration(c.label, c.url, "eth_blockNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	n, err := c.client.BlockNumber(ctx)
	ObserveError(c.label, c.url, "eth_blockNumber", err)
	return n, err
}

func (c *rpcClient) HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error) {
	defer ObserveDuration(c.label, c.url, "eth_getBlockByNumber")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	header, err := c.client.HeaderByNumber(ctx, new(big.Int).SetUint64(n))
	ObserveError(c.label, c.url, "eth_getBlockByNumber", err)
	return header, err
}

// TransactionReceiptByHash returns ethereum.NotFound for transactions that are not mined yet.
func (c *rpcClient) TransactionReceiptByHash(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	defer ObserveDuration(c.label, c.url, "eth_getTransactionReceipt")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	receipt, err := c.client.TransactionReceipt(ctx, txHash)
	if errors.Is(err, ethereum.NotFound) {
		ObserveError(c.label, c.url, "eth_getTransactionReceipt", nil)
		return nil, err
	}
	ObserveError(c.label, c.url, "eth_getTransactionReceipt", err)
	return receipt, err
}

func (c *rpcClient) CallContract(ctx context.Context, msg ethereum.CallMsg) ([]byte, error) {
	defer ObserveDuration(c.label, c.url, "eth_call")()
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	res, err := c.client.CallContract(ctx, msg, nil)
	ObserveError(c.label, c.url, "eth_call", err)
	return res, err
}

func (c *rpcClient) ContractBackend() Backend {
	return c.backend
}

// backend instruments the write path of the go-ethereum client.
type backend struct {
	*ethclient.Client
	rpc *rpcClient
}

func (b *backend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	defer ObserveDuration(b.rpc.label, b.rpc.url, "eth_sendRawTransaction")()
	ctx, cancel := context.WithTimeout(ctx, b.rpc.timeout)
	defer cancel()

	err := b.Client.SendTransaction(ctx, tx)
	ObserveError(b.rpc.label, b.rpc.url, "eth_sendRawTransaction", err)
	return err
}

func (b *backend) EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error) {
	defer ObserveDuration(b.rpc.label, b.rpc.url, "eth_estimateGas")()
	ctx, cancel := context.WithTimeout(ctx, b.rpc.timeout)
	defer cancel()

	gas, err := b.Client.EstimateGas(ctx, msg)
	ObserveError(b.rpc.label, b.rpc.url, "eth_estimateGas", err)
	return gas, err
}
