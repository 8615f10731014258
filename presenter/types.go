package presenter

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/orchestrator"
)

type ValueRequest struct {
	Value string `json:"value"`
}

type ERC20Request struct {
	L1Token common.Address `json:"l1Token"`
	Value   string         `json:"value"`
}

type OutboxRequest struct {
	TxHash common.Hash `json:"txHash"`
}

type SummaryInfo struct {
	*entity.BridgeTransactionSummary
	TxLink string `json:"txLink"`
}

type PendingTxInfo struct {
	Type      entity.TxType  `json:"type"`
	ChainID   uint64         `json:"chainId"`
	TxHash    common.Hash    `json:"txHash"`
	Sender    common.Address `json:"sender"`
	AssetName string         `json:"assetName"`
	Value     string         `json:"value"`
	TxLink    string         `json:"txLink"`
}

type StatusResult struct {
	Account   common.Address     `json:"account"`
	L1ChainID uint64             `json:"l1ChainId"`
	L2ChainID uint64             `json:"l2ChainId"`
	Loading   bool               `json:"loading"`
	Modal     orchestrator.Modal `json:"modal"`
	Txns      map[uint64]int     `json:"txns"`
}

type OperationResult struct {
	Operation orchestrator.Operation `json:"operation"`
	Accepted  bool                   `json:"accepted"`
	Modal     orchestrator.Modal     `json:"modal"`
}
