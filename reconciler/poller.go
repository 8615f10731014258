package reconciler

import (
	"context"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/store"
)

const (
	resultOK       = "ok"
	resultFailed   = "failed"
	resultNotReady = "not_ready"
	resultBackoff  = "backoff"
)

// update is a deferred store mutation produced by a chain query.
type update func(s *store.Store) error

// query inspects a single leg on chain. A nil update means there is nothing to record yet.
type query func(ctx context.Context, txn *entity.BridgeTxn) (update, error)

type poller struct {
	name           string
	logger         logging.Logger
	store          *store.Store
	backoff        *itemBackoff
	maxConcurrency int
}

func (p *poller) itemLogger(txn *entity.BridgeTxn) logging.Logger {
	return p.logger.WithFields(logrus.Fields{
		"chain_id": txn.ChainID,
		"tx_hash":  txn.TxHash,
		"type":     txn.Type,
	})
}

// process queries all items concurrently and, once every query has resolved,
// applies the produced updates in resolution order. Per-item failures are logged
// and never abort the batch.
func (p *poller) process(ctx context.Context, items []*entity.BridgeTxn, q query) error {
	var (
		mu      sync.Mutex
		updates []*entity.BridgeTxn
		applies []update
	)
	g, gctx := errgroup.WithContext(ctx)
	if p.maxConcurrency > 0 {
		g.SetLimit(p.maxConcurrency)
	}
	for _, txn := range items {
		txn := txn
		chainID := strconv.FormatUint(txn.ChainID, 10)
		if !p.backoff.Ready(txn.Key()) {
			ProcessedItems.WithLabelValues(p.name, chainID, resultBackoff).Inc()
			continue
		}
		g.Go(func() error {
			u, err := q(gctx, txn)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				delay := p.backoff.Failed(txn.Key())
				p.itemLogger(txn).WithError(err).WithField("retry_in", delay).Error("failed to reconcile bridge transaction")
				ProcessedItems.WithLabelValues(p.name, chainID, resultFailed).Inc()
				return nil
			}
			p.backoff.Succeeded(txn.Key())
			if u == nil {
				ProcessedItems.WithLabelValues(p.name, chainID, resultNotReady).Inc()
				return nil
			}
			mu.Lock()
			updates = append(updates, txn)
			applies = append(applies, u)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	for i, u := range applies {
		txn := updates[i]
		if err := u(p.store); err != nil {
			p.itemLogger(txn).WithError(err).Error("can't apply bridge transaction update")
			ProcessedItems.WithLabelValues(p.name, strconv.FormatUint(txn.ChainID, 10), resultFailed).Inc()
			continue
		}
		ProcessedItems.WithLabelValues(p.name, strconv.FormatUint(txn.ChainID, 10), resultOK).Inc()
	}
	return nil
}
