package bridge

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/rollup-bridge-reconciler/entity"
)

// Transaction is a submitted bridge transaction.
type Transaction interface {
	Hash() common.Hash
	// Wait blocks until the transaction is mined and returns its receipt.
	Wait(ctx context.Context) (*types.Receipt, error)
}

// Withdrawal is an L2 to L1 message emitted by a withdrawal transaction.
type Withdrawal struct {
	Caller       common.Address
	Destination  common.Address
	UniqueID     *big.Int
	BatchNumber  *big.Int
	IndexInBatch *big.Int
	L2Block      *big.Int
	L1Block      *big.Int
	Timestamp    *big.Int
	CallValue    *big.Int
	Data         []byte
}

// Bridge is the cross-chain messaging library of the rollup.
type Bridge interface {
	DepositETH(ctx context.Context, value *big.Int) (Transaction, error)
	WithdrawETH(ctx context.Context, value *big.Int) (Transaction, error)
	WithdrawERC20(ctx context.Context, l1Token common.Address, value *big.Int) (Transaction, error)
	TriggerL2ToL1Transaction(ctx context.Context, batchNumber, batchIndex *big.Int, forceExecute bool) (Transaction, error)

	GetInboxSeqNumFromContractTransaction(l1Receipt *types.Receipt) ([]*big.Int, error)
	CalculateL2TransactionHash(seqNum *big.Int, l2ChainID uint64) common.Hash
	GetWithdrawalsInL2Transaction(l2Receipt *types.Receipt) ([]*Withdrawal, error)
	GetOutGoingMessageState(ctx context.Context, batchNumber, batchIndex *big.Int) (entity.OutgoingMessageState, error)
}

// Provider is a read-only connection to a single chain.
type Provider interface {
	ChainID() uint64
	TransactionReceiptByHash(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	HeaderByNumber(ctx context.Context, n uint64) (*types.Header, error)
}

// Providers maps chain id to its provider.
type Providers map[uint64]Provider

func NewProviders(providers ...Provider) Providers {
	res := make(Providers, len(providers))
	for _, p := range providers {
		res[p.ChainID()] = p
	}
	return res
}

// ConvertReceipt keeps the receipt fields the store records.
func ConvertReceipt(receipt *types.Receipt) *entity.Receipt {
	res := &entity.Receipt{
		Status:          receipt.Status,
		TransactionHash: receipt.TxHash,
		BlockHash:       receipt.BlockHash,
	}
	if receipt.BlockNumber != nil {
		res.BlockNumber = receipt.BlockNumber.Uint64()
	}
	return res
}
