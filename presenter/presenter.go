package presenter

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/omni/rollup-bridge-reconciler/logging"
	"github.com/omni/rollup-bridge-reconciler/orchestrator"
	mw "github.com/omni/rollup-bridge-reconciler/presenter/http/middleware"
	"github.com/omni/rollup-bridge-reconciler/presenter/http/render"
	"github.com/omni/rollup-bridge-reconciler/store"
	"github.com/omni/rollup-bridge-reconciler/summary"
)

const shutdownTimeout = 10 * time.Second

var (
	ErrInvalidValue   = errors.New("value must be a positive decimal integer")
	ErrInvalidRequest = errors.New("invalid request body")
)

// Operator submits bridge operations on behalf of the configured account.
type Operator interface {
	DepositEth(ctx context.Context, value *big.Int) error
	WithdrawEth(ctx context.Context, value *big.Int) error
	WithdrawERC20(ctx context.Context, l1Token common.Address, value *big.Int) error
	TriggerOutboxEth(ctx context.Context, withdrawalTxHash common.Hash) error
	TriggerOutboxERC20(ctx context.Context, withdrawalTxHash common.Hash) error
	Current() orchestrator.Modal
}

type LoadingReporter interface {
	Loading() bool
}

type Config struct {
	Account   common.Address
	L1ChainID uint64
	L2ChainID uint64
}

type Presenter struct {
	logger   logging.Logger
	store    *store.Store
	operator Operator
	loading  LoadingReporter
	cfg      Config
	now      func() time.Time

	// operations outlive the request that started them
	opsCtx    context.Context
	opsCancel context.CancelFunc
	opsWg     sync.WaitGroup
}

func NewPresenter(logger logging.Logger, s *store.Store, operator Operator, loading LoadingReporter, cfg Config) *Presenter {
	ctx, cancel := context.WithCancel(context.Background())
	return &Presenter{
		logger:    logger.WithField("service", "presenter"),
		store:     s,
		operator:  operator,
		loading:   loading,
		cfg:       cfg,
		now:       time.Now,
		opsCtx:    ctx,
		opsCancel: cancel,
	}
}

func (p *Presenter) Handler() http.Handler {
	r := chi.NewMux()
	r.Use(middleware.Throttle(20))
	r.Use(middleware.RequestID)
	r.Use(mw.NewLoggerMiddleware(p.logger))
	r.Use(mw.Recoverer)

	r.With(mw.GetAccountMiddleware, mw.GetFilterMiddleware).Get("/summaries", p.GetSummaries)
	r.Get("/pending", p.GetPending)
	r.Get("/status", p.GetStatus)

	r.Post("/deposit-eth", p.PostDepositEth)
	r.Post("/withdraw-eth", p.PostWithdrawEth)
	r.Post("/withdraw-erc20", p.PostWithdrawERC20)
	r.Post("/outbox-eth", p.postOutbox(orchestrator.OperationOutboxETH, p.operator.TriggerOutboxEth))
	r.Post("/outbox-erc20", p.postOutbox(orchestrator.OperationOutboxERC20, p.operator.TriggerOutboxERC20))
	return r
}

// Serve blocks until ctx is cancelled, then stops accepting requests and waits for running operations.
func (p *Presenter) Serve(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           p.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		p.logger.WithField("addr", addr).Info("starting presenter service")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("presenter service failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	p.opsCancel()
	p.Wait()
	if err != nil {
		return fmt.Errorf("can't shutdown presenter service: %w", err)
	}
	return nil
}

// Wait blocks until every operation started through the API has finished.
func (p *Presenter) Wait() {
	p.opsWg.Wait()
}

func (p *Presenter) GetSummaries(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	summaries := summary.Derive(p.store.Snapshot(), summary.Options{
		Account:   mw.Account(ctx, p.cfg.Account),
		L1ChainID: p.cfg.L1ChainID,
		L2ChainID: p.cfg.L2ChainID,
		Filter:    mw.Filter(ctx),
		Loading:   p.loading.Loading(),
		Now:       p.now(),
	})
	res := make([]*SummaryInfo, len(summaries))
	for i, s := range summaries {
		res[i] = summaryToInfo(s)
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetPending(w http.ResponseWriter, r *http.Request) {
	txns := p.store.PendingTransactions(p.cfg.L1ChainID, p.cfg.L2ChainID)
	res := make([]*PendingTxInfo, len(txns))
	for i, txn := range txns {
		res[i] = txnToPendingInfo(txn)
	}
	render.JSON(w, r, http.StatusOK, res)
}

func (p *Presenter) GetStatus(w http.ResponseWriter, r *http.Request) {
	snapshot := p.store.Snapshot()
	counts := make(map[uint64]int, len(snapshot))
	for chainID, txns := range snapshot {
		counts[chainID] = len(txns)
	}
	render.JSON(w, r, http.StatusOK, &StatusResult{
		Account:   p.cfg.Account,
		L1ChainID: p.cfg.L1ChainID,
		L2ChainID: p.cfg.L2ChainID,
		Loading:   p.loading.Loading(),
		Modal:     p.operator.Current(),
		Txns:      counts,
	})
}

func decodeBody(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%s: %w", err, ErrInvalidRequest)
	}
	return nil
}

// launch runs the operation in the background and replies with 202 and a pending modal for it.
// The outcome is reported through the modal of the status endpoint.
func (p *Presenter) launch(w http.ResponseWriter, r *http.Request, operation orchestrator.Operation, run func(ctx context.Context) error) {
	logger := logging.LoggerFromContext(r.Context()).WithField("operation", operation)
	// the operation runs in the background, the reply reflects it rather than whatever ran before
	modal := orchestrator.Modal{Status: orchestrator.ModalStatusPending, Operation: operation}
	p.opsWg.Add(1)
	go func() {
		defer p.opsWg.Done()
		if err := run(p.opsCtx); err != nil {
			logger.WithError(err).Warn("bridge operation did not complete")
			return
		}
		logger.Info("bridge operation completed")
	}()
	render.JSON(w, r, http.StatusAccepted, &OperationResult{Operation: operation, Accepted: true, Modal: modal})
}

func (p *Presenter) postValue(operation orchestrator.Operation, op func(ctx context.Context, value *big.Int) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(ValueRequest)
		if err := decodeBody(r, req); err != nil {
			render.BadRequest(w, r, err)
			return
		}
		value, err := parseValue(req.Value)
		if err != nil {
			render.BadRequest(w, r, err)
			return
		}
		p.launch(w, r, operation, func(ctx context.Context) error {
			return op(ctx, value)
		})
	}
}

func (p *Presenter) PostDepositEth(w http.ResponseWriter, r *http.Request) {
	p.postValue(orchestrator.OperationDepositETH, p.operator.DepositEth)(w, r)
}

func (p *Presenter) PostWithdrawEth(w http.ResponseWriter, r *http.Request) {
	p.postValue(orchestrator.OperationWithdrawETH, p.operator.WithdrawEth)(w, r)
}

func (p *Presenter) PostWithdrawERC20(w http.ResponseWriter, r *http.Request) {
	req := new(ERC20Request)
	if err := decodeBody(r, req); err != nil {
		render.BadRequest(w, r, err)
		return
	}
	if req.L1Token == (common.Address{}) {
		render.BadRequest(w, r, fmt.Errorf("l1Token is required: %w", ErrInvalidRequest))
		return
	}
	value, err := parseValue(req.Value)
	if err != nil {
		render.BadRequest(w, r, err)
		return
	}
	p.launch(w, r, orchestrator.OperationWithdrawERC20, func(ctx context.Context) error {
		return p.operator.WithdrawERC20(ctx, req.L1Token, value)
	})
}

func (p *Presenter) postOutbox(operation orchestrator.Operation, op func(ctx context.Context, withdrawalTxHash common.Hash) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req := new(OutboxRequest)
		if err := decodeBody(r, req); err != nil {
			render.BadRequest(w, r, err)
			return
		}
		if req.TxHash == (common.Hash{}) {
			render.BadRequest(w, r, fmt.Errorf("txHash is required: %w", ErrInvalidRequest))
			return
		}
		p.launch(w, r, operation, func(ctx context.Context) error {
			return op(ctx, req.TxHash)
		})
	}
}
