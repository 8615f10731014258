// Package bridgetest provides in-memory implementations of the bridge library and chain providers.
package bridgetest

import (
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/contract"
	"github.com/omni/rollup-bridge-reconciler/entity"
)

type Transaction struct {
	TxHash  common.Hash
	Receipt *types.Receipt
	WaitErr error
}

func (t *Transaction) Hash() common.Hash {
	return t.TxHash
}

func (t *Transaction) Wait(ctx context.Context) (*types.Receipt, error) {
	if t.WaitErr != nil {
		return nil, t.WaitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return t.Receipt, nil
}

// SuccessfulTransaction returns a transaction mined with the success status.
func SuccessfulTransaction(txHash common.Hash, logs ...*types.Log) *Transaction {
	return &Transaction{
		TxHash: txHash,
		Receipt: &types.Receipt{
			Status:      types.ReceiptStatusSuccessful,
			TxHash:      txHash,
			BlockNumber: big.NewInt(100),
			Logs:        logs,
		},
	}
}

type Call struct {
	Method string
	Args   []interface{}
}

type batchKey struct {
	number string
	index  string
}

// Bridge records every call. Transaction-issuing methods return NextTx or SubmitErr.
type Bridge struct {
	mu sync.Mutex

	NextTx    *Transaction
	SubmitErr error

	seqNums     map[common.Hash][]*big.Int
	withdrawals map[common.Hash][]*bridge.Withdrawal
	states      map[batchKey]entity.OutgoingMessageState
	stateErrs   map[batchKey]error
	calls       []Call
}

func NewBridge() *Bridge {
	return &Bridge{
		seqNums:     make(map[common.Hash][]*big.Int),
		withdrawals: make(map[common.Hash][]*bridge.Withdrawal),
		states:      make(map[batchKey]entity.OutgoingMessageState),
		stateErrs:   make(map[batchKey]error),
	}
}

func key(batchNumber, batchIndex *big.Int) batchKey {
	return batchKey{batchNumber.String(), batchIndex.String()}
}

func (b *Bridge) SetSeqNums(receiptTxHash common.Hash, seqNums ...*big.Int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seqNums[receiptTxHash] = seqNums
}

func (b *Bridge) SetWithdrawals(receiptTxHash common.Hash, withdrawals ...*bridge.Withdrawal) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.withdrawals[receiptTxHash] = withdrawals
}

func (b *Bridge) SetState(batchNumber, batchIndex *big.Int, state entity.OutgoingMessageState, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.states[key(batchNumber, batchIndex)] = state
	b.stateErrs[key(batchNumber, batchIndex)] = err
}

func (b *Bridge) Calls() []Call {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Call(nil), b.calls...)
}

func (b *Bridge) record(method string, args ...interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls = append(b.calls, Call{Method: method, Args: args})
}

func (b *Bridge) submit(method string, args ...interface{}) (bridge.Transaction, error) {
	b.record(method, args...)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.SubmitErr != nil {
		return nil, b.SubmitErr
	}
	if b.NextTx == nil {
		return nil, fmt.Errorf("%s: no transaction configured", method)
	}
	return b.NextTx, nil
}

func (b *Bridge) DepositETH(_ context.Context, value *big.Int) (bridge.Transaction, error) {
	return b.submit("DepositETH", value)
}

func (b *Bridge) WithdrawETH(_ context.Context, value *big.Int) (bridge.Transaction, error) {
	return b.submit("WithdrawETH", value)
}

func (b *Bridge) WithdrawERC20(_ context.Context, l1Token common.Address, value *big.Int) (bridge.Transaction, error) {
	return b.submit("WithdrawERC20", l1Token, value)
}

func (b *Bridge) TriggerL2ToL1Transaction(_ context.Context, batchNumber, batchIndex *big.Int, forceExecute bool) (bridge.Transaction, error) {
	return b.submit("TriggerL2ToL1Transaction", batchNumber, batchIndex, forceExecute)
}

func (b *Bridge) GetInboxSeqNumFromContractTransaction(l1Receipt *types.Receipt) ([]*big.Int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.seqNums[l1Receipt.TxHash], nil
}

func (b *Bridge) CalculateL2TransactionHash(seqNum *big.Int, l2ChainID uint64) common.Hash {
	return contract.CalculateL2TransactionHash(seqNum, l2ChainID)
}

func (b *Bridge) GetWithdrawalsInL2Transaction(l2Receipt *types.Receipt) ([]*bridge.Withdrawal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.withdrawals[l2Receipt.TxHash], nil
}

func (b *Bridge) GetOutGoingMessageState(_ context.Context, batchNumber, batchIndex *big.Int) (entity.OutgoingMessageState, error) {
	b.record("GetOutGoingMessageState", batchNumber, batchIndex)
	b.mu.Lock()
	defer b.mu.Unlock()
	k := key(batchNumber, batchIndex)
	if err := b.stateErrs[k]; err != nil {
		return entity.OutgoingMessageStateUnset, err
	}
	if state, ok := b.states[k]; ok {
		return state, nil
	}
	return entity.OutgoingMessageStateUnconfirmed, nil
}

// Provider serves receipts from memory; unknown hashes are reported as not mined.
type Provider struct {
	mu       sync.Mutex
	chainID  uint64
	receipts map[common.Hash]*types.Receipt
	errs     map[common.Hash]error
	requests map[common.Hash]int
}

func NewProvider(chainID uint64) *Provider {
	return &Provider{
		chainID:  chainID,
		receipts: make(map[common.Hash]*types.Receipt),
		errs:     make(map[common.Hash]error),
		requests: make(map[common.Hash]int),
	}
}

func (p *Provider) ChainID() uint64 {
	return p.chainID
}

func (p *Provider) SetReceipt(receipt *types.Receipt) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.receipts[receipt.TxHash] = receipt
	delete(p.errs, receipt.TxHash)
}

func (p *Provider) SetError(txHash common.Hash, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errs[txHash] = err
}

func (p *Provider) Requests(txHash common.Hash) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests[txHash]
}

func (p *Provider) TransactionReceiptByHash(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests[txHash]++
	if err := p.errs[txHash]; err != nil {
		return nil, err
	}
	receipt, ok := p.receipts[txHash]
	if !ok {
		return nil, ethereum.NotFound
	}
	return receipt, nil
}

func (p *Provider) HeaderByNumber(_ context.Context, n uint64) (*types.Header, error) {
	return &types.Header{
		Number: new(big.Int).SetUint64(n),
		Time:   1662033600 + n*12,
	}, nil
}
