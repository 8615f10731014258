package reconciler

import (
	"context"
	"sync"
	"time"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/store"
)

const (
	defaultInterval       = 10 * time.Second
	defaultMaxConcurrency = 10
	defaultMaxBackoff     = 5 * time.Minute
)

type Config struct {
	L1ChainID           uint64
	L2ChainID           uint64
	ReceiptsInterval    time.Duration
	DepositsInterval    time.Duration
	WithdrawalsInterval time.Duration
	MaxConcurrency      int
	MaxBackoff          time.Duration
	Now                 func() time.Time
}

func (cfg *Config) init() {
	for _, d := range []*time.Duration{&cfg.ReceiptsInterval, &cfg.DepositsInterval, &cfg.WithdrawalsInterval} {
		if *d == 0 {
			*d = defaultInterval
		}
	}
	if cfg.MaxConcurrency == 0 {
		cfg.MaxConcurrency = defaultMaxConcurrency
	}
	if cfg.MaxBackoff == 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

// Reconciler keeps the store in sync with both chains by running the receipt,
// deposit discovery and withdrawal state pollers.
type Reconciler struct {
	logger      logging.Logger
	Receipts    *ReceiptsPoller
	Deposits    *DepositsPoller
	Withdrawals *WithdrawalsPoller
	jobs        []*Job
}

func New(logger logging.Logger, b bridge.Bridge, providers bridge.Providers, s *store.Store, cfg Config) *Reconciler {
	cfg.init()
	// a failed item is first retried one interval later
	newPoller := func(name string, interval time.Duration) *poller {
		return &poller{
			name:           name,
			logger:         logger.WithField("poller", name),
			store:          s,
			backoff:        newItemBackoff(interval, cfg.MaxBackoff, cfg.Now),
			maxConcurrency: cfg.MaxConcurrency,
		}
	}

	r := &Reconciler{
		logger: logger,
		Receipts: &ReceiptsPoller{
			poller:    newPoller("receipts", cfg.ReceiptsInterval),
			bridge:    b,
			providers: providers,
			chainIDs:  []uint64{cfg.L1ChainID, cfg.L2ChainID},
		},
		Deposits: &DepositsPoller{
			poller:    newPoller("deposits", cfg.DepositsInterval),
			bridge:    b,
			providers: providers,
			l1ChainID: cfg.L1ChainID,
			l2ChainID: cfg.L2ChainID,
		},
		Withdrawals: &WithdrawalsPoller{
			poller:    newPoller("withdrawals", cfg.WithdrawalsInterval),
			bridge:    b,
			providers: providers,
			l2ChainID: cfg.L2ChainID,
		},
	}
	r.jobs = []*Job{
		{logger: r.Receipts.logger, Name: r.Receipts.name, Interval: cfg.ReceiptsInterval, Func: r.Receipts.Tick},
		{logger: r.Deposits.logger, Name: r.Deposits.name, Interval: cfg.DepositsInterval, Func: r.Deposits.Tick},
		{logger: r.Withdrawals.logger, Name: r.Withdrawals.name, Interval: cfg.WithdrawalsInterval, Func: r.Withdrawals.Tick},
	}
	return r
}

// Loading reports whether withdrawal states are still being fetched for the first time.
func (r *Reconciler) Loading() bool {
	return r.Withdrawals.Loading()
}

// Start blocks until ctx is cancelled and every poller has returned.
func (r *Reconciler) Start(ctx context.Context) {
	r.logger.Info("starting bridge transaction pollers")
	var wg sync.WaitGroup
	for _, job := range r.jobs {
		wg.Add(1)
		go func(job *Job) {
			defer wg.Done()
			job.Start(ctx)
		}(job)
	}
	wg.Wait()
	r.logger.Info("bridge transaction pollers stopped")
}
