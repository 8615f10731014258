package store

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/omni/rollup-bridge-reconciler/entity"
)

type Option func(s *Store)

// WithClock overrides the time source used for created/resolved timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

type chainTable struct {
	order  []common.Hash
	byHash map[common.Hash]*entity.BridgeTxn
}

func newChainTable() *chainTable {
	return &chainTable{
		byHash: make(map[common.Hash]*entity.BridgeTxn, 16),
	}
}

// Store is the process-wide table of bridge legs, one sub-table per chain keyed by tx hash.
// Every exported method is atomic; returned legs are copies.
type Store struct {
	mu      sync.RWMutex
	chains  map[uint64]*chainTable
	changed map[entity.TxnKey]struct{}
	now     func() time.Time
}

func New(opts ...Option) *Store {
	s := &Store{
		chains:  make(map[uint64]*chainTable, 2),
		changed: make(map[entity.TxnKey]struct{}, 16),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) get(chainID uint64, txHash common.Hash) *entity.BridgeTxn {
	table, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	return table.byHash[txHash]
}

func (s *Store) insert(txn *entity.BridgeTxn) error {
	if s.get(txn.ChainID, txn.TxHash) != nil {
		return fmt.Errorf("chain %d, tx %s: %w", txn.ChainID, txn.TxHash, ErrTxnAlreadyExists)
	}
	table, ok := s.chains[txn.ChainID]
	if !ok {
		table = newChainTable()
		s.chains[txn.ChainID] = table
	}
	table.order = append(table.order, txn.TxHash)
	table.byHash[txn.TxHash] = txn
	s.markChanged(txn.Key())
	StoredTxns.WithLabelValues(strconv.FormatUint(txn.ChainID, 10)).Set(float64(len(table.order)))
	return nil
}

func (s *Store) markChanged(key entity.TxnKey) {
	s.changed[key] = struct{}{}
}

func (s *Store) mustGet(chainID uint64, txHash common.Hash) (*entity.BridgeTxn, error) {
	txn := s.get(chainID, txHash)
	if txn == nil {
		return nil, fmt.Errorf("chain %d, tx %s: %w", chainID, txHash, ErrTxnNotFound)
	}
	return txn, nil
}

// AddTransaction inserts a new leg stamped with the current time.
// Inserting over an existing (chainID, txHash) fails with ErrTxnAlreadyExists.
func (s *Store) AddTransaction(txn *entity.BridgeTxn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := txn.Clone()
	c.TimestampCreated = s.now()
	return s.insert(c)
}

// Restore rehydrates previously persisted legs as is, keeping their timestamps.
func (s *Store) Restore(txns ...*entity.BridgeTxn) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, txn := range txns {
		if err := s.insert(txn.Clone()); err != nil {
			return err
		}
		delete(s.changed, txn.Key())
	}
	return nil
}

// UpdateReceipt records the receipt of a leg once; later calls are no-ops.
func (s *Store) UpdateReceipt(chainID uint64, txHash common.Hash, receipt *entity.Receipt, seqNum *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.mustGet(chainID, txHash)
	if err != nil {
		return err
	}
	if txn.Receipt != nil {
		return nil
	}
	r := *receipt
	txn.Receipt = &r
	if seqNum != nil && txn.SeqNum == nil {
		txn.SeqNum = new(big.Int).Set(seqNum)
	}
	now := s.now()
	txn.TimestampResolved = &now
	s.markChanged(txn.Key())
	return nil
}

// UpdatePartnerHash links two legs to each other in a single mutation.
func (s *Store) UpdatePartnerHash(chainID uint64, txHash common.Hash, partnerChainID uint64, partnerTxHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.mustGet(chainID, txHash)
	if err != nil {
		return err
	}
	partner, err := s.mustGet(partnerChainID, partnerTxHash)
	if err != nil {
		return err
	}
	if err = checkPartner(txn, partner); err != nil {
		return err
	}
	if err = checkPartner(partner, txn); err != nil {
		return err
	}

	txn.PartnerTxHash, txn.PartnerChainID = hashPtr(partner.TxHash), partner.ChainID
	partner.PartnerTxHash, partner.PartnerChainID = hashPtr(txn.TxHash), txn.ChainID
	s.markChanged(txn.Key())
	s.markChanged(partner.Key())
	return nil
}

// ReplaceFailedPartner links two legs like UpdatePartnerHash, except that the partner may
// already be paired with a leg whose receipt failed. That leg is unlinked in the same mutation.
func (s *Store) ReplaceFailedPartner(chainID uint64, txHash common.Hash, partnerChainID uint64, partnerTxHash common.Hash) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.mustGet(chainID, txHash)
	if err != nil {
		return err
	}
	partner, err := s.mustGet(partnerChainID, partnerTxHash)
	if err != nil {
		return err
	}
	if err = checkPartner(txn, partner); err != nil {
		return err
	}
	var previous *entity.BridgeTxn
	if err = checkPartner(partner, txn); err != nil {
		previous = s.get(partner.PartnerChainID, *partner.PartnerTxHash)
		if previous == nil || !previous.Receipt.Failed() {
			return err
		}
	}

	if previous != nil {
		previous.PartnerTxHash, previous.PartnerChainID = nil, 0
		s.markChanged(previous.Key())
	}
	txn.PartnerTxHash, txn.PartnerChainID = hashPtr(partner.TxHash), partner.ChainID
	partner.PartnerTxHash, partner.PartnerChainID = hashPtr(txn.TxHash), txn.ChainID
	s.markChanged(txn.Key())
	s.markChanged(partner.Key())
	return nil
}

func checkPartner(txn, partner *entity.BridgeTxn) error {
	if txn.PartnerTxHash == nil {
		return nil
	}
	if *txn.PartnerTxHash != partner.TxHash || txn.PartnerChainID != partner.ChainID {
		return fmt.Errorf("chain %d, tx %s is already paired with %s: %w", txn.ChainID, txn.TxHash, txn.PartnerTxHash, ErrPartnerConflict)
	}
	return nil
}

// UpdateWithdrawalInfo records the outgoing message state of a withdrawal leg.
// Batch coordinates are write-once. Once EXECUTED, further updates are no-ops.
func (s *Store) UpdateWithdrawalInfo(chainID uint64, txHash common.Hash, state entity.OutgoingMessageState, batchNumber, batchIndex *big.Int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.mustGet(chainID, txHash)
	if err != nil {
		return err
	}
	if txn.OutgoingMessageState.IsTerminal() {
		return nil
	}
	if batchNumber != nil && batchIndex != nil && !txn.HasBatch() {
		txn.BatchNumber = new(big.Int).Set(batchNumber)
		txn.BatchIndex = new(big.Int).Set(batchIndex)
	}
	txn.OutgoingMessageState = state
	if state.IsTerminal() {
		now := s.now()
		txn.TimestampResolved = &now
	} else {
		txn.TimestampResolved = nil
	}
	s.markChanged(txn.Key())
	return nil
}

// SetResolvedTimestamp overrides the resolution time of a leg, e.g. with its counterpart's block time.
func (s *Store) SetResolvedTimestamp(chainID uint64, txHash common.Hash, ts time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	txn, err := s.mustGet(chainID, txHash)
	if err != nil {
		return err
	}
	txn.TimestampResolved = &ts
	s.markChanged(txn.Key())
	return nil
}

// Reset drops every leg.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for chainID := range s.chains {
		StoredTxns.WithLabelValues(strconv.FormatUint(chainID, 10)).Set(0)
	}
	s.chains = make(map[uint64]*chainTable, 2)
	s.changed = make(map[entity.TxnKey]struct{}, 16)
}

func (s *Store) Get(chainID uint64, txHash common.Hash) (*entity.BridgeTxn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txn := s.get(chainID, txHash)
	if txn == nil {
		return nil, false
	}
	return txn.Clone(), true
}

// Snapshot copies every leg, grouped per chain in insertion order.
func (s *Store) Snapshot() entity.TxnsByChain {
	s.mu.RLock()
	defer s.mu.RUnlock()

	res := make(entity.TxnsByChain, len(s.chains))
	for chainID, table := range s.chains {
		txns := make([]*entity.BridgeTxn, 0, len(table.order))
		for _, hash := range table.order {
			txns = append(txns, table.byHash[hash].Clone())
		}
		res[chainID] = txns
	}
	return res
}

// Select returns copies of the legs on the given chain matching the predicate, in insertion order.
func (s *Store) Select(chainID uint64, match func(txn *entity.BridgeTxn) bool) []*entity.BridgeTxn {
	s.mu.RLock()
	defer s.mu.RUnlock()

	table, ok := s.chains[chainID]
	if !ok {
		return nil
	}
	var res []*entity.BridgeTxn
	for _, hash := range table.order {
		if txn := table.byHash[hash]; match(txn) {
			res = append(res, txn.Clone())
		}
	}
	return res
}

// PendingTransactions returns every leg still waiting for its receipt.
func (s *Store) PendingTransactions(chainIDs ...uint64) []*entity.BridgeTxn {
	var res []*entity.BridgeTxn
	for _, chainID := range chainIDs {
		res = append(res, s.Select(chainID, func(txn *entity.BridgeTxn) bool {
			return txn.Receipt == nil
		})...)
	}
	return res
}

// DrainChanged returns copies of legs mutated since the previous call and clears the journal.
func (s *Store) DrainChanged() []*entity.BridgeTxn {
	s.mu.Lock()
	defer s.mu.Unlock()

	res := make([]*entity.BridgeTxn, 0, len(s.changed))
	for key := range s.changed {
		if txn := s.get(key.ChainID, key.TxHash); txn != nil {
			res = append(res, txn.Clone())
		}
	}
	s.changed = make(map[entity.TxnKey]struct{}, 16)
	return res
}

// MarkChanged puts legs back into the journal, e.g. after a failed flush.
func (s *Store) MarkChanged(keys ...entity.TxnKey) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, key := range keys {
		if s.get(key.ChainID, key.TxHash) != nil {
			s.markChanged(key)
		}
	}
}

func hashPtr(v common.Hash) *common.Hash {
	return &v
}
