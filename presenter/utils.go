package presenter

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/rollup-bridge-reconciler/entity"
)

var formats = map[uint64]string{
	1:        "https://etherscan.io/tx/%s",
	5:        "https://goerli.etherscan.io/tx/%s",
	11155111: "https://sepolia.etherscan.io/tx/%s",
	42161:    "https://arbiscan.io/tx/%s",
	42170:    "https://nova.arbiscan.io/tx/%s",
	421613:   "https://goerli.arbiscan.io/tx/%s",
	421614:   "https://sepolia.arbiscan.io/tx/%s",
}

func txLink(chainID uint64, txHash common.Hash) string {
	if format, ok := formats[chainID]; ok {
		return fmt.Sprintf(format, txHash)
	}
	return txHash.String()
}

func summaryToInfo(s *entity.BridgeTransactionSummary) *SummaryInfo {
	return &SummaryInfo{
		BridgeTransactionSummary: s,
		TxLink:                   txLink(s.FromChainID, s.TxHash),
	}
}

func txnToPendingInfo(txn *entity.BridgeTxn) *PendingTxInfo {
	return &PendingTxInfo{
		Type:      txn.Type,
		ChainID:   txn.ChainID,
		TxHash:    txn.TxHash,
		Sender:    txn.Sender,
		AssetName: txn.AssetName,
		Value:     txn.Value,
		TxLink:    txLink(txn.ChainID, txn.TxHash),
	}
}

func parseValue(s string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(s, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("%q: %w", s, ErrInvalidValue)
	}
	return value, nil
}
