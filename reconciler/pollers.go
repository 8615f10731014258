package reconciler

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/store"
)

var (
	ErrUnknownChain        = errors.New("no provider for chain")
	ErrNoWithdrawalMessage = errors.New("receipt contains no withdrawal message")
)

func receipt(ctx context.Context, providers bridge.Providers, txn *entity.BridgeTxn) (*types.Receipt, error) {
	provider, ok := providers[txn.ChainID]
	if !ok {
		return nil, fmt.Errorf("chain %d: %w", txn.ChainID, ErrUnknownChain)
	}
	res, err := provider.TransactionReceiptByHash(ctx, txn.TxHash)
	if errors.Is(err, ethereum.NotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("can't get transaction receipt: %w", err)
	}
	return res, nil
}

// ReceiptsPoller fetches receipts of legs that are not mined yet.
type ReceiptsPoller struct {
	*poller
	bridge    bridge.Bridge
	providers bridge.Providers
	chainIDs  []uint64
}

func (p *ReceiptsPoller) Tick(ctx context.Context) error {
	return p.process(ctx, p.store.PendingTransactions(p.chainIDs...), p.query)
}

func (p *ReceiptsPoller) query(ctx context.Context, txn *entity.BridgeTxn) (update, error) {
	r, err := receipt(ctx, p.providers, txn)
	if err != nil || r == nil {
		return nil, err
	}

	var seqNum *big.Int
	if txn.Type.IsDeposit() && txn.SeqNum == nil {
		seqNums, err2 := p.bridge.GetInboxSeqNumFromContractTransaction(r)
		// the deposits poller extracts it again before linking the L2 leg
		if err2 != nil {
			p.itemLogger(txn).WithError(err2).Warn("can't extract inbox sequence number, recording receipt without it")
		} else if len(seqNums) > 0 {
			seqNum = seqNums[0]
		}
	}

	var blockTime *time.Time
	if r.BlockNumber != nil {
		header, err2 := p.providers[txn.ChainID].HeaderByNumber(ctx, r.BlockNumber.Uint64())
		if err2 != nil {
			p.itemLogger(txn).WithError(err2).Warn("can't get block header, keeping observation time")
		} else {
			ts := time.Unix(int64(header.Time), 0).UTC()
			blockTime = &ts
		}
	}

	rec := bridge.ConvertReceipt(r)
	return func(s *store.Store) error {
		if err3 := s.UpdateReceipt(txn.ChainID, txn.TxHash, rec, seqNum); err3 != nil {
			return err3
		}
		if blockTime == nil {
			return nil
		}
		if err3 := s.SetResolvedTimestamp(txn.ChainID, txn.TxHash, *blockTime); err3 != nil {
			return err3
		}
		// a deposit completes when its L2 leg lands
		if txn.Type == entity.TxTypeDepositL2 && txn.PartnerTxHash != nil {
			return s.SetResolvedTimestamp(txn.PartnerChainID, *txn.PartnerTxHash, *blockTime)
		}
		return nil
	}, nil
}

// DepositsPoller links confirmed L1 deposits with their L2 counterparts.
type DepositsPoller struct {
	*poller
	bridge    bridge.Bridge
	providers bridge.Providers
	l1ChainID uint64
	l2ChainID uint64
}

func (p *DepositsPoller) Tick(ctx context.Context) error {
	items := p.store.Select(p.l1ChainID, func(txn *entity.BridgeTxn) bool {
		return txn.Type.IsDeposit() && txn.Receipt.Succeeded() && txn.PartnerTxHash == nil
	})
	return p.process(ctx, items, p.query)
}

func (p *DepositsPoller) query(ctx context.Context, txn *entity.BridgeTxn) (update, error) {
	seqNum := txn.SeqNum
	if seqNum == nil {
		r, err := receipt(ctx, p.providers, txn)
		if err != nil || r == nil {
			return nil, err
		}
		seqNums, err := p.bridge.GetInboxSeqNumFromContractTransaction(r)
		if err != nil {
			return nil, fmt.Errorf("can't extract inbox sequence number: %w", err)
		}
		if len(seqNums) == 0 {
			return nil, nil
		}
		seqNum = seqNums[0]
	}

	l2Hash := p.bridge.CalculateL2TransactionHash(seqNum, p.l2ChainID)
	return func(s *store.Store) error {
		if _, ok := s.Get(p.l2ChainID, l2Hash); !ok {
			err := s.AddTransaction(&entity.BridgeTxn{
				Type:      entity.TxTypeDepositL2,
				ChainID:   p.l2ChainID,
				TxHash:    l2Hash,
				Sender:    txn.Sender,
				AssetName: txn.AssetName,
				AssetType: txn.AssetType,
				Value:     txn.Value,
				L1Token:   txn.L1Token,
			})
			if err != nil && !errors.Is(err, store.ErrTxnAlreadyExists) {
				return err
			}
		}
		return s.UpdatePartnerHash(txn.ChainID, txn.TxHash, p.l2ChainID, l2Hash)
	}, nil
}

// WithdrawalsPoller tracks the outgoing message state of withdrawals that are not claimed yet.
type WithdrawalsPoller struct {
	*poller
	bridge       bridge.Bridge
	providers    bridge.Providers
	l2ChainID    uint64
	inFlight     atomic.Bool
	initialCheck atomic.Bool
}

// Loading reports whether the first full pass over withdrawals has not completed yet.
func (p *WithdrawalsPoller) Loading() bool {
	return p.inFlight.Load() && !p.initialCheck.Load()
}

func (p *WithdrawalsPoller) Tick(ctx context.Context) error {
	items := p.store.Select(p.l2ChainID, func(txn *entity.BridgeTxn) bool {
		return txn.Type == entity.TxTypeWithdraw && txn.Receipt.Succeeded() && !txn.OutgoingMessageState.IsTerminal()
	})

	p.inFlight.Store(true)
	defer p.inFlight.Store(false)
	if err := p.process(ctx, items, p.query); err != nil {
		return err
	}
	p.initialCheck.Store(true)
	return nil
}

func (p *WithdrawalsPoller) query(ctx context.Context, txn *entity.BridgeTxn) (update, error) {
	batchNumber, batchIndex := txn.BatchNumber, txn.BatchIndex
	if !txn.HasBatch() {
		r, err := receipt(ctx, p.providers, txn)
		if err != nil || r == nil {
			return nil, err
		}
		withdrawals, err := p.bridge.GetWithdrawalsInL2Transaction(r)
		if err != nil {
			return nil, fmt.Errorf("can't extract withdrawals: %w", err)
		}
		if len(withdrawals) == 0 {
			return nil, ErrNoWithdrawalMessage
		}
		batchNumber, batchIndex = withdrawals[0].BatchNumber, withdrawals[0].IndexInBatch
	}

	state, err := p.bridge.GetOutGoingMessageState(ctx, batchNumber, batchIndex)
	if err != nil {
		return nil, fmt.Errorf("can't get outgoing message state: %w", err)
	}
	return func(s *store.Store) error {
		return s.UpdateWithdrawalInfo(txn.ChainID, txn.TxHash, state, batchNumber, batchIndex)
	}, nil
}
