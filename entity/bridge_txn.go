package entity

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type TxType string

const (
	TxTypeDepositL1     TxType = "deposit-l1"
	TxTypeDepositL2     TxType = "deposit-l2"
	TxTypeWithdraw      TxType = "withdraw"
	TxTypeOutbox        TxType = "outbox"
	TxTypeLegacyDeposit TxType = "deposit"
	TxTypeApprove       TxType = "approve"
)

// IsL1 reports whether legs of this type are submitted on the settlement chain.
func (t TxType) IsL1() bool {
	switch t {
	case TxTypeDepositL1, TxTypeOutbox, TxTypeLegacyDeposit, TxTypeApprove:
		return true
	case TxTypeDepositL2, TxTypeWithdraw:
		return false
	default:
		return false
	}
}

// IsDeposit reports whether the leg is the L1 side of a deposit.
func (t TxType) IsDeposit() bool {
	return t == TxTypeDepositL1 || t == TxTypeLegacyDeposit
}

type AssetType string

const (
	AssetTypeETH   AssetType = "ETH"
	AssetTypeERC20 AssetType = "ERC20"
)

type OutgoingMessageState string

const (
	OutgoingMessageStateUnset       OutgoingMessageState = ""
	OutgoingMessageStateUnconfirmed OutgoingMessageState = "UNCONFIRMED"
	OutgoingMessageStateConfirmed   OutgoingMessageState = "CONFIRMED"
	OutgoingMessageStateExecuted    OutgoingMessageState = "EXECUTED"
)

func (s OutgoingMessageState) IsTerminal() bool {
	return s == OutgoingMessageStateExecuted
}

const (
	ReceiptStatusFailed  uint64 = 0
	ReceiptStatusSuccess uint64 = 1
)

type Receipt struct {
	Status          uint64      `json:"status"`
	TransactionHash common.Hash `json:"transactionHash"`
	BlockHash       common.Hash `json:"blockHash"`
	BlockNumber     uint64      `json:"blockNumber"`
}

func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == ReceiptStatusSuccess
}

func (r *Receipt) Failed() bool {
	return r != nil && r.Status == ReceiptStatusFailed
}

// BridgeTxn is one leg of a cross-chain operation observed on a single chain.
type BridgeTxn struct {
	Type                 TxType               `json:"type"`
	ChainID              uint64               `json:"chainId"`
	TxHash               common.Hash          `json:"txHash"`
	Sender               common.Address       `json:"sender"`
	AssetName            string               `json:"assetName"`
	AssetType            AssetType            `json:"assetType"`
	Value                string               `json:"value"`
	L1Token              *common.Address      `json:"l1Token,omitempty"`
	Receipt              *Receipt             `json:"receipt,omitempty"`
	SeqNum               *big.Int             `json:"seqNum,omitempty"`
	PartnerTxHash        *common.Hash         `json:"partnerTxHash,omitempty"`
	PartnerChainID       uint64               `json:"partnerChainId,omitempty"`
	BatchNumber          *big.Int             `json:"batchNumber,omitempty"`
	BatchIndex           *big.Int             `json:"batchIndex,omitempty"`
	OutgoingMessageState OutgoingMessageState `json:"outgoingMessageState,omitempty"`
	TimestampCreated     time.Time            `json:"timestampCreated"`
	TimestampResolved    *time.Time           `json:"timestampResolved,omitempty"`
}

func (t *BridgeTxn) Key() TxnKey {
	return TxnKey{ChainID: t.ChainID, TxHash: t.TxHash}
}

func (t *BridgeTxn) HasBatch() bool {
	return t.BatchNumber != nil && t.BatchIndex != nil
}

// Clone returns a deep copy, so snapshots never alias store internals.
func (t *BridgeTxn) Clone() *BridgeTxn {
	if t == nil {
		return nil
	}
	c := *t
	if t.L1Token != nil {
		token := *t.L1Token
		c.L1Token = &token
	}
	if t.Receipt != nil {
		receipt := *t.Receipt
		c.Receipt = &receipt
	}
	if t.SeqNum != nil {
		c.SeqNum = new(big.Int).Set(t.SeqNum)
	}
	if t.PartnerTxHash != nil {
		hash := *t.PartnerTxHash
		c.PartnerTxHash = &hash
	}
	if t.BatchNumber != nil {
		c.BatchNumber = new(big.Int).Set(t.BatchNumber)
	}
	if t.BatchIndex != nil {
		c.BatchIndex = new(big.Int).Set(t.BatchIndex)
	}
	if t.TimestampResolved != nil {
		ts := *t.TimestampResolved
		c.TimestampResolved = &ts
	}
	return &c
}

type TxnKey struct {
	ChainID uint64
	TxHash  common.Hash
}

// TxnsByChain holds legs per chain id in insertion order.
type TxnsByChain map[uint64][]*BridgeTxn

type BridgeTxnsRepo interface {
	Ensure(ctx context.Context, txns ...*BridgeTxn) error
	FindByChainIDs(ctx context.Context, chainIDs []uint64) ([]*BridgeTxn, error)
	DeleteByChainIDs(ctx context.Context, chainIDs []uint64) error
}
