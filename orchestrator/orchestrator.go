package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/store"
)

type Operation string

const (
	OperationDepositETH    Operation = "deposit-eth"
	OperationWithdrawETH   Operation = "withdraw-eth"
	OperationWithdrawERC20 Operation = "withdraw-erc20"
	OperationOutboxETH     Operation = "outbox-eth"
	OperationOutboxERC20   Operation = "outbox-erc20"
)

const (
	userRejectedRequestCode = 4001
	TxRejectedMessage       = "Transaction rejected"
)

type Config struct {
	Account   common.Address
	L1ChainID uint64
	L2ChainID uint64
}

// Orchestrator submits bridge operations and records their legs in the store.
type Orchestrator struct {
	logger logging.Logger
	bridge bridge.Bridge
	store  *store.Store
	cfg    Config

	modalLock sync.RWMutex
	modal     Modal
}

func New(logger logging.Logger, b bridge.Bridge, s *store.Store, cfg Config) *Orchestrator {
	return &Orchestrator{
		logger: logger.WithField("service", "orchestrator"),
		bridge: b,
		store:  s,
		cfg:    cfg,
		modal:  Modal{Status: ModalStatusIdle},
	}
}

func (o *Orchestrator) ready() bool {
	return o.bridge != nil && o.store != nil && o.cfg.Account != (common.Address{}) &&
		o.cfg.L1ChainID != 0 && o.cfg.L2ChainID != 0
}

// ErrorMessage renders a bridge library error for the user.
func ErrorMessage(err error) string {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == userRejectedRequestCode {
		return TxRejectedMessage
	}
	return fmt.Sprintf("Transaction failed: %s", err)
}

// submission describes one operation. afterAdd runs once the leg is stored,
// onReceipt after its receipt is recorded.
type submission struct {
	operation Operation
	leg       *entity.BridgeTxn
	seqNum    bool
	submit    func(ctx context.Context) (bridge.Transaction, error)
	afterAdd  func(txHash common.Hash) error
	onReceipt func(txHash common.Hash, receipt *entity.Receipt) error
}

func (o *Orchestrator) run(ctx context.Context, s *submission) error {
	logger := o.logger.WithField("operation", s.operation)
	o.setModal(Modal{Status: ModalStatusPending, Operation: s.operation})

	tx, err := s.submit(ctx)
	if err != nil {
		logger.WithError(err).Error("bridge call failed")
		o.setModal(Modal{Status: ModalStatusError, Operation: s.operation, Message: ErrorMessage(err)})
		OperationResults.WithLabelValues(string(s.operation), "error").Inc()
		return fmt.Errorf("can't submit %s: %w", s.operation, err)
	}

	txHash := tx.Hash()
	logger = logger.WithField("tx_hash", txHash)
	o.setModal(Modal{Status: ModalStatusInitiated, Operation: s.operation, TxHash: &txHash})
	OperationResults.WithLabelValues(string(s.operation), "initiated").Inc()

	s.leg.TxHash = txHash
	if err = o.store.AddTransaction(s.leg); err != nil {
		logger.WithError(err).Error("can't record submitted transaction")
		return fmt.Errorf("can't add transaction: %w", err)
	}
	// the transaction is already broadcast, so a link failure still waits for its receipt
	var linkErr error
	if s.afterAdd != nil {
		if linkErr = s.afterAdd(txHash); linkErr != nil {
			logger.WithError(linkErr).Error("can't link submitted transaction")
			o.setModal(Modal{Status: ModalStatusError, Operation: s.operation, TxHash: &txHash, Message: ErrorMessage(linkErr)})
			OperationResults.WithLabelValues(string(s.operation), "error").Inc()
		}
	}
	logger.Info("submitted bridge transaction, waiting for receipt")

	receipt, err := tx.Wait(ctx)
	if err != nil {
		// the receipt poller picks the leg up later
		logger.WithError(err).Warn("can't wait for transaction receipt")
		return fmt.Errorf("can't wait for %s receipt: %w", s.operation, err)
	}
	var seqNum *big.Int
	if s.seqNum {
		seqNums, err2 := o.bridge.GetInboxSeqNumFromContractTransaction(receipt)
		if err2 != nil {
			logger.WithError(err2).Warn("can't extract inbox sequence number")
		} else if len(seqNums) > 0 {
			seqNum = seqNums[0]
		}
	}
	rec := bridge.ConvertReceipt(receipt)
	if err = o.store.UpdateReceipt(s.leg.ChainID, txHash, rec, seqNum); err != nil {
		logger.WithError(err).Error("can't record transaction receipt")
		return fmt.Errorf("can't update receipt: %w", err)
	}
	logger.WithFields(logrus.Fields{
		"status":       rec.Status,
		"block_number": rec.BlockNumber,
	}).Info("bridge transaction mined")
	if s.onReceipt != nil {
		if err = s.onReceipt(txHash, rec); err != nil {
			return err
		}
	}
	return linkErr
}

func (o *Orchestrator) newLeg(txType entity.TxType, chainID uint64, assetType entity.AssetType, assetName string, value *big.Int) *entity.BridgeTxn {
	return &entity.BridgeTxn{
		Type:      txType,
		ChainID:   chainID,
		Sender:    o.cfg.Account,
		AssetName: assetName,
		AssetType: assetType,
		Value:     value.String(),
	}
}

func (o *Orchestrator) DepositEth(ctx context.Context, value *big.Int) error {
	if !o.ready() || value == nil {
		return nil
	}
	return o.run(ctx, &submission{
		operation: OperationDepositETH,
		leg:       o.newLeg(entity.TxTypeDepositL1, o.cfg.L1ChainID, entity.AssetTypeETH, "ETH", value),
		submit: func(ctx context.Context) (bridge.Transaction, error) {
			return o.bridge.DepositETH(ctx, value)
		},
		seqNum: true,
	})
}

func (o *Orchestrator) WithdrawEth(ctx context.Context, value *big.Int) error {
	if !o.ready() || value == nil {
		return nil
	}
	return o.run(ctx, &submission{
		operation: OperationWithdrawETH,
		leg:       o.newLeg(entity.TxTypeWithdraw, o.cfg.L2ChainID, entity.AssetTypeETH, "ETH", value),
		submit: func(ctx context.Context) (bridge.Transaction, error) {
			return o.bridge.WithdrawETH(ctx, value)
		},
	})
}

func (o *Orchestrator) WithdrawERC20(ctx context.Context, l1Token common.Address, value *big.Int) error {
	if !o.ready() || value == nil || l1Token == (common.Address{}) {
		return nil
	}
	leg := o.newLeg(entity.TxTypeWithdraw, o.cfg.L2ChainID, entity.AssetTypeERC20, l1Token.Hex(), value)
	leg.L1Token = &l1Token
	return o.run(ctx, &submission{
		operation: OperationWithdrawERC20,
		leg:       leg,
		submit: func(ctx context.Context) (bridge.Transaction, error) {
			return o.bridge.WithdrawERC20(ctx, l1Token, value)
		},
	})
}

// TriggerOutboxEth claims an ETH withdrawal on L1 once its message is confirmed.
func (o *Orchestrator) TriggerOutboxEth(ctx context.Context, withdrawalTxHash common.Hash) error {
	return o.triggerOutbox(ctx, OperationOutboxETH, entity.AssetTypeETH, withdrawalTxHash)
}

// TriggerOutboxERC20 claims a token withdrawal on L1 once its message is confirmed.
func (o *Orchestrator) TriggerOutboxERC20(ctx context.Context, withdrawalTxHash common.Hash) error {
	return o.triggerOutbox(ctx, OperationOutboxERC20, entity.AssetTypeERC20, withdrawalTxHash)
}

func (o *Orchestrator) triggerOutbox(ctx context.Context, operation Operation, assetType entity.AssetType, withdrawalTxHash common.Hash) error {
	if !o.ready() {
		return nil
	}
	withdrawal, ok := o.store.Get(o.cfg.L2ChainID, withdrawalTxHash)
	if !ok || withdrawal.Type != entity.TxTypeWithdraw || withdrawal.AssetType != assetType || !withdrawal.HasBatch() {
		o.logger.WithFields(logrus.Fields{
			"operation": operation,
			"tx_hash":   withdrawalTxHash,
		}).Warn("withdrawal is not ready to be claimed")
		return nil
	}
	if withdrawal.PartnerTxHash != nil {
		claim, found := o.store.Get(withdrawal.PartnerChainID, *withdrawal.PartnerTxHash)
		if !found || !claim.Receipt.Failed() {
			o.logger.WithFields(logrus.Fields{
				"operation":  operation,
				"tx_hash":    withdrawalTxHash,
				"claim_hash": withdrawal.PartnerTxHash,
			}).Warn("withdrawal is already being claimed")
			return nil
		}
	}

	leg := &entity.BridgeTxn{
		Type:      entity.TxTypeOutbox,
		ChainID:   o.cfg.L1ChainID,
		Sender:    o.cfg.Account,
		AssetName: withdrawal.AssetName,
		AssetType: withdrawal.AssetType,
		Value:     withdrawal.Value,
		L1Token:   withdrawal.L1Token,
	}
	return o.run(ctx, &submission{
		operation: operation,
		leg:       leg,
		submit: func(ctx context.Context) (bridge.Transaction, error) {
			return o.bridge.TriggerL2ToL1Transaction(ctx, withdrawal.BatchNumber, withdrawal.BatchIndex, false)
		},
		afterAdd: func(txHash common.Hash) error {
			// a previous claim that reverted gives way to this one
			if err := o.store.ReplaceFailedPartner(o.cfg.L1ChainID, txHash, o.cfg.L2ChainID, withdrawalTxHash); err != nil {
				return fmt.Errorf("can't pair outbox transaction: %w", err)
			}
			return nil
		},
		onReceipt: func(_ common.Hash, receipt *entity.Receipt) error {
			if !receipt.Succeeded() {
				return nil
			}
			err := o.store.UpdateWithdrawalInfo(o.cfg.L2ChainID, withdrawalTxHash, entity.OutgoingMessageStateExecuted, nil, nil)
			if err != nil {
				return fmt.Errorf("can't mark withdrawal as executed: %w", err)
			}
			return nil
		},
	})
}
