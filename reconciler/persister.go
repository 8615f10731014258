package reconciler

import (
	"context"
	"fmt"
	"time"

	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/store"
)

// Persister mirrors the store into a repository: it loads the saved legs on startup
// and periodically writes back every leg changed since the previous flush.
type Persister struct {
	logger   logging.Logger
	repo     entity.BridgeTxnsRepo
	store    *store.Store
	chainIDs []uint64
	interval time.Duration
}

func NewPersister(logger logging.Logger, repo entity.BridgeTxnsRepo, s *store.Store, interval time.Duration, chainIDs ...uint64) *Persister {
	if interval == 0 {
		interval = defaultInterval
	}
	return &Persister{
		logger:   logger.WithField("service", "persister"),
		repo:     repo,
		store:    s,
		chainIDs: chainIDs,
		interval: interval,
	}
}

func (p *Persister) Restore(ctx context.Context) error {
	txns, err := p.repo.FindByChainIDs(ctx, p.chainIDs)
	if err != nil {
		return fmt.Errorf("can't load bridge transactions: %w", err)
	}
	if err = p.store.Restore(txns...); err != nil {
		return fmt.Errorf("can't restore bridge transactions: %w", err)
	}
	p.logger.WithField("count", len(txns)).Info("restored bridge transactions")
	return nil
}

// Flush writes changed legs. On failure the legs stay in the change journal for the next attempt.
func (p *Persister) Flush(ctx context.Context) error {
	txns := p.store.DrainChanged()
	if len(txns) == 0 {
		return nil
	}
	if err := p.repo.Ensure(ctx, txns...); err != nil {
		keys := make([]entity.TxnKey, len(txns))
		for i, txn := range txns {
			keys[i] = txn.Key()
		}
		p.store.MarkChanged(keys...)
		FlushedTxns.WithLabelValues(resultFailed).Add(float64(len(txns)))
		return fmt.Errorf("can't save bridge transactions: %w", err)
	}
	FlushedTxns.WithLabelValues(resultOK).Add(float64(len(txns)))
	p.logger.WithField("count", len(txns)).Debug("saved bridge transactions")
	return nil
}

// Reset removes every leg of the configured chains, both from the repository and the store.
func (p *Persister) Reset(ctx context.Context) error {
	if err := p.repo.DeleteByChainIDs(ctx, p.chainIDs); err != nil {
		return fmt.Errorf("can't delete bridge transactions: %w", err)
	}
	p.store.Reset()
	return nil
}

// Start flushes every interval until ctx is cancelled, then makes a final flush.
func (p *Persister) Start(ctx context.Context) {
	job := &Job{logger: p.logger, Name: "persister", Interval: p.interval, Func: p.Flush}
	job.Start(ctx)

	finalCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := p.Flush(finalCtx); err != nil {
		p.logger.WithError(err).Error("failed to save bridge transactions on shutdown")
	}
}
