package summary

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/rollup-bridge-reconciler/entity"
)

const RecentWindow = 24 * time.Hour

type Filter string

const (
	FilterAll         Filter = ""
	FilterCollectable Filter = "collectable"
	FilterRecent      Filter = "recent"
)

var ErrUnknownFilter = errors.New("unknown summary filter")

func ParseFilter(s string) (Filter, error) {
	switch f := Filter(strings.ToLower(s)); f {
	case FilterAll, FilterCollectable, FilterRecent:
		return f, nil
	default:
		return FilterAll, fmt.Errorf("%q: %w", s, ErrUnknownFilter)
	}
}

type Options struct {
	// Account restricts the owned set to legs sent by it. Zero address disables the restriction.
	Account   common.Address
	L1ChainID uint64
	L2ChainID uint64
	Filter    Filter
	// Loading is set while the withdrawal state reconciliation has not completed its first pass.
	Loading bool
	Now     time.Time
}

type chainLegs struct {
	order  []*entity.BridgeTxn
	byHash map[common.Hash]*entity.BridgeTxn
}

func ownedLegs(txns []*entity.BridgeTxn, account common.Address) *chainLegs {
	legs := &chainLegs{byHash: make(map[common.Hash]*entity.BridgeTxn, len(txns))}
	for _, txn := range txns {
		if account != (common.Address{}) && txn.Sender != account {
			continue
		}
		legs.order = append(legs.order, txn)
		legs.byHash[txn.TxHash] = txn
	}
	return legs
}

func (l *chainLegs) partnerOf(txn *entity.BridgeTxn) *entity.BridgeTxn {
	if txn.PartnerTxHash == nil {
		return nil
	}
	return l.byHash[*txn.PartnerTxHash]
}

// Derive computes one summary per logical cross-chain operation, newest first.
// It never mutates the given legs.
func Derive(txns entity.TxnsByChain, opts Options) []*entity.BridgeTransactionSummary {
	l1 := ownedLegs(txns[opts.L1ChainID], opts.Account)
	l2 := ownedLegs(txns[opts.L2ChainID], opts.Account)

	processed := make(map[entity.TxnKey]bool, len(l1.order)+len(l2.order))
	res := make([]*entity.BridgeTransactionSummary, 0, len(l1.order)+len(l2.order))

	for _, txn := range l1.order {
		if processed[txn.Key()] {
			continue
		}
		processed[txn.Key()] = true
		partner := l2.partnerOf(txn)
		if partner == nil {
			res = append(res, singleL1Summary(txn, opts))
			continue
		}
		processed[partner.Key()] = true
		res = append(res, pairedSummary(txn, partner, opts))
	}

	for _, txn := range l2.order {
		if processed[txn.Key()] {
			continue
		}
		processed[txn.Key()] = true
		res = append(res, singleL2Summary(txn, opts))
	}

	for i, j := 0, len(res)-1; i < j; i, j = i+1, j-1 {
		res[i], res[j] = res[j], res[i]
	}
	return applyFilter(res, opts)
}

func applyFilter(summaries []*entity.BridgeTransactionSummary, opts Options) []*entity.BridgeTransactionSummary {
	var keep func(s *entity.BridgeTransactionSummary) bool
	switch opts.Filter {
	case FilterCollectable:
		keep = func(s *entity.BridgeTransactionSummary) bool {
			return s.Status == entity.SummaryStatusRedeem
		}
	case FilterRecent:
		now := opts.Now
		if now.IsZero() {
			now = time.Now()
		}
		keep = func(s *entity.BridgeTransactionSummary) bool {
			return s.TimestampResolved == nil || now.Sub(*s.TimestampResolved) <= RecentWindow
		}
	case FilterAll:
		return summaries
	default:
		return summaries
	}

	res := summaries[:0]
	for _, s := range summaries {
		if keep(s) {
			res = append(res, s)
		}
	}
	return res
}

func singleL1Summary(txn *entity.BridgeTxn, opts Options) *entity.BridgeTransactionSummary {
	s := newSummary(txn, opts)
	switch {
	case txn.Receipt == nil:
		s.Status, s.PendingReason = entity.SummaryStatusPending, entity.PendingReasonL1Confirmation
	case txn.Receipt.Failed():
		s.Status = entity.SummaryStatusFailed
	case txn.Type.IsDeposit():
		s.Status, s.PendingReason = entity.SummaryStatusPending, entity.PendingReasonL2Processing
	default:
		s.Status = entity.SummaryStatusConfirmed
	}
	s.Log = []*entity.LegStatus{legStatus(txn)}
	return s.resolvedBy(txn)
}

func pairedSummary(l1Leg, l2Leg *entity.BridgeTxn, opts Options) *entity.BridgeTransactionSummary {
	switch {
	case l1Leg.Type == entity.TxTypeOutbox:
		// the claim's own receipt decides the final status: a mined claim reads confirmed.
		// claimed is left to withdrawals that are EXECUTED with no claim recorded here,
		// the withdrawal leg in the log still carries its outgoing message state.
		s := newSummary(l2Leg, opts)
		s.Status, s.PendingReason = receiptStatus(l1Leg, entity.PendingReasonL1Confirmation)
		s.Log = []*entity.LegStatus{legStatus(l2Leg), legStatus(l1Leg)}
		return s.resolvedBy(l1Leg)
	case l1Leg.Receipt.Failed():
		s := newSummary(l1Leg, opts)
		s.Status = entity.SummaryStatusFailed
		s.Log = []*entity.LegStatus{legStatus(l1Leg), legStatus(l2Leg)}
		return s.resolvedBy(l1Leg)
	case l1Leg.Type.IsDeposit() && l1Leg.Receipt.Succeeded():
		s := newSummary(l1Leg, opts)
		s.Status, s.PendingReason = receiptStatus(l2Leg, entity.PendingReasonL2Processing)
		s.Log = []*entity.LegStatus{legStatus(l1Leg), legStatus(l2Leg)}
		return s.resolvedBy(l2Leg)
	default:
		s := newSummary(l1Leg, opts)
		s.Status, s.PendingReason = receiptStatus(l1Leg, entity.PendingReasonL1Confirmation)
		s.Log = []*entity.LegStatus{legStatus(l1Leg), legStatus(l2Leg)}
		return s.resolvedBy(l1Leg)
	}
}

func singleL2Summary(txn *entity.BridgeTxn, opts Options) *entity.BridgeTransactionSummary {
	s := newSummary(txn, opts)
	if txn.Type == entity.TxTypeWithdraw {
		s.Status, s.PendingReason = withdrawalStatus(txn, opts.Loading)
	} else {
		s.Status, s.PendingReason = receiptStatus(txn, entity.PendingReasonL2Confirmation)
	}
	s.Log = []*entity.LegStatus{legStatus(txn)}
	return s.resolvedBy(txn)
}

func withdrawalStatus(txn *entity.BridgeTxn, loading bool) (entity.SummaryStatus, string) {
	switch {
	case txn.Receipt == nil:
		return entity.SummaryStatusPending, entity.PendingReasonL2Confirmation
	case txn.Receipt.Failed():
		return entity.SummaryStatusFailed, ""
	case txn.OutgoingMessageState == entity.OutgoingMessageStateExecuted:
		return entity.SummaryStatusClaimed, ""
	case loading:
		return entity.SummaryStatusLoading, ""
	case txn.OutgoingMessageState == entity.OutgoingMessageStateConfirmed:
		return entity.SummaryStatusRedeem, ""
	default:
		return entity.SummaryStatusPending, entity.PendingReasonChallengeWindow
	}
}

func receiptStatus(txn *entity.BridgeTxn, pendingReason string) (entity.SummaryStatus, string) {
	switch {
	case txn.Receipt == nil:
		return entity.SummaryStatusPending, pendingReason
	case txn.Receipt.Failed():
		return entity.SummaryStatusFailed, ""
	default:
		return entity.SummaryStatusConfirmed, ""
	}
}

func legStatus(txn *entity.BridgeTxn) *entity.LegStatus {
	var status entity.SummaryStatus
	switch {
	case txn.Receipt == nil:
		status = entity.SummaryStatusPending
	case txn.Receipt.Failed():
		status = entity.SummaryStatusFailed
	default:
		status = entity.SummaryStatusConfirmed
	}
	return &entity.LegStatus{
		Type:                 txn.Type,
		ChainID:              txn.ChainID,
		TxHash:               txn.TxHash,
		Status:               status,
		OutgoingMessageState: txn.OutgoingMessageState,
	}
}

type builder struct {
	*entity.BridgeTransactionSummary
}

// newSummary fills the display fields from the leg that initiated the operation.
func newSummary(origin *entity.BridgeTxn, opts Options) builder {
	s := &entity.BridgeTransactionSummary{
		Type:             origin.Type,
		TxHash:           origin.TxHash,
		FromChainID:      origin.ChainID,
		ToChainID:        origin.ChainID,
		Sender:           origin.Sender,
		AssetName:        origin.AssetName,
		AssetType:        origin.AssetType,
		Value:            origin.Value,
		TimestampCreated: origin.TimestampCreated,
	}
	switch origin.Type {
	case entity.TxTypeDepositL1, entity.TxTypeLegacyDeposit:
		s.FromChainID, s.ToChainID = opts.L1ChainID, opts.L2ChainID
	case entity.TxTypeWithdraw, entity.TxTypeOutbox:
		s.FromChainID, s.ToChainID = opts.L2ChainID, opts.L1ChainID
	case entity.TxTypeDepositL2, entity.TxTypeApprove:
	}
	if origin.HasBatch() {
		s.BatchNumber, s.BatchIndex = origin.BatchNumber, origin.BatchIndex
	}
	return builder{s}
}

// resolvedBy takes the resolution time from the leg that decided a terminal status.
func (b builder) resolvedBy(txn *entity.BridgeTxn) *entity.BridgeTransactionSummary {
	switch b.Status {
	case entity.SummaryStatusConfirmed, entity.SummaryStatusClaimed, entity.SummaryStatusFailed:
		if txn.TimestampResolved != nil {
			ts := *txn.TimestampResolved
			b.TimestampResolved = &ts
		}
	case entity.SummaryStatusPending, entity.SummaryStatusRedeem, entity.SummaryStatusLoading:
	}
	return b.BridgeTransactionSummary
}
