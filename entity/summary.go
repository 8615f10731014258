package entity

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

type SummaryStatus string

const (
	SummaryStatusPending   SummaryStatus = "pending"
	SummaryStatusConfirmed SummaryStatus = "confirmed"
	SummaryStatusRedeem    SummaryStatus = "redeem"
	SummaryStatusClaimed   SummaryStatus = "claimed"
	SummaryStatusFailed    SummaryStatus = "failed"
	SummaryStatusLoading   SummaryStatus = "loading"
)

const (
	PendingReasonL1Confirmation  = "waiting for L1 confirmation"
	PendingReasonL2Confirmation  = "waiting for L2 confirmation"
	PendingReasonL2Processing    = "waiting for L2 processing"
	PendingReasonChallengeWindow = "waiting on dispute/challenge window"
)

type LegStatus struct {
	Type                 TxType               `json:"type"`
	ChainID              uint64               `json:"chainId"`
	TxHash               common.Hash          `json:"txHash"`
	Status               SummaryStatus        `json:"status"`
	OutgoingMessageState OutgoingMessageState `json:"outgoingMessageState,omitempty"`
}

// BridgeTransactionSummary is one logical cross-chain operation as the user sees it.
type BridgeTransactionSummary struct {
	Type              TxType         `json:"type"`
	TxHash            common.Hash    `json:"txHash"`
	FromChainID       uint64         `json:"fromChainId"`
	ToChainID         uint64         `json:"toChainId"`
	Sender            common.Address `json:"sender"`
	AssetName         string         `json:"assetName"`
	AssetType         AssetType      `json:"assetType"`
	Value             string         `json:"value"`
	Status            SummaryStatus  `json:"status"`
	PendingReason     string         `json:"pendingReason,omitempty"`
	BatchNumber       *big.Int       `json:"batchNumber,omitempty"`
	BatchIndex        *big.Int       `json:"batchIndex,omitempty"`
	TimestampCreated  time.Time      `json:"timestampCreated"`
	TimestampResolved *time.Time     `json:"timestampResolved,omitempty"`
	Log               []*LegStatus   `json:"log"`
}
