package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/rollup-bridge-reconciler/bridge"
	"github.com/omni/rollup-bridge-reconciler/contract/bridgeabi"
	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/ethclient"
)

var (
	ErrMessageNotConfirmed = errors.New("outgoing message is not confirmed")
	ErrUnexpectedLogValue  = errors.New("unexpected log value")
	ErrMissingSigner       = errors.New("transaction signer is not configured")
)

type RollupBridgeConfig struct {
	L1Client ethclient.Client
	L2Client ethclient.Client
	// L1Signer and L2Signer sign transactions on the respective chains, nil means read-only.
	L1Signer *bind.TransactOpts
	L2Signer *bind.TransactOpts

	InboxAddress         common.Address
	OutboxAddress        common.Address
	GatewayRouterAddress common.Address
	ArbSysAddress        common.Address
	NodeInterfaceAddress common.Address
}

// RollupBridge talks to the Arbitrum-style rollup bridge contracts on both chains.
type RollupBridge struct {
	l1       ethclient.Client
	l1Signer *bind.TransactOpts
	l2Signer *bind.TransactOpts

	inbox         *Contract
	outbox        *Contract
	gatewayRouter *Contract
	arbSys        *Contract
	nodeInterface *Contract
}

func NewRollupBridge(cfg *RollupBridgeConfig) *RollupBridge {
	return &RollupBridge{
		l1:            cfg.L1Client,
		l1Signer:      cfg.L1Signer,
		l2Signer:      cfg.L2Signer,
		inbox:         NewContract(cfg.L1Client, cfg.InboxAddress, bridgeabi.InboxABI),
		outbox:        NewContract(cfg.L1Client, cfg.OutboxAddress, bridgeabi.OutboxABI),
		gatewayRouter: NewContract(cfg.L2Client, cfg.GatewayRouterAddress, bridgeabi.GatewayRouterABI),
		arbSys:        NewContract(cfg.L2Client, cfg.ArbSysAddress, bridgeabi.ArbSysABI),
		nodeInterface: NewContract(cfg.L2Client, cfg.NodeInterfaceAddress, bridgeabi.NodeInterfaceABI),
	}
}

type transaction struct {
	tx      *types.Transaction
	backend bind.DeployBackend
}

func (t *transaction) Hash() common.Hash {
	return t.tx.Hash()
}

func (t *transaction) Wait(ctx context.Context) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, t.backend, t.tx)
	if err != nil {
		return nil, fmt.Errorf("can't wait for transaction %s: %w", t.tx.Hash(), err)
	}
	return receipt, nil
}

func transactOpts(ctx context.Context, signer *bind.TransactOpts, value *big.Int) (*bind.TransactOpts, error) {
	if signer == nil {
		return nil, ErrMissingSigner
	}
	opts := *signer
	opts.Context = ctx
	opts.Value = value
	return &opts, nil
}

func (b *RollupBridge) send(ctx context.Context, c *Contract, signer *bind.TransactOpts, value *big.Int, method string, args ...interface{}) (bridge.Transaction, error) {
	opts, err := transactOpts(ctx, signer, value)
	if err != nil {
		return nil, err
	}
	tx, err := c.Transact(opts, method, args...)
	if err != nil {
		return nil, err
	}
	return &transaction{tx: tx, backend: c.client.ContractBackend()}, nil
}

func (b *RollupBridge) DepositETH(ctx context.Context, value *big.Int) (bridge.Transaction, error) {
	if b.l1Signer == nil {
		return nil, ErrMissingSigner
	}
	return b.send(ctx, b.inbox, b.l1Signer, value, "depositEth", b.l1Signer.From)
}

func (b *RollupBridge) WithdrawETH(ctx context.Context, value *big.Int) (bridge.Transaction, error) {
	if b.l2Signer == nil {
		return nil, ErrMissingSigner
	}
	return b.send(ctx, b.arbSys, b.l2Signer, value, "withdrawEth", b.l2Signer.From)
}

func (b *RollupBridge) WithdrawERC20(ctx context.Context, l1Token common.Address, value *big.Int) (bridge.Transaction, error) {
	if b.l2Signer == nil {
		return nil, ErrMissingSigner
	}
	return b.send(ctx, b.gatewayRouter, b.l2Signer, nil, "outboundTransfer", l1Token, b.l2Signer.From, value, []byte{})
}

type messageBatchProof struct {
	Proof         [][32]byte
	Path          *big.Int
	L2Sender      common.Address
	L1Dest        common.Address
	L2Block       *big.Int
	L1Block       *big.Int
	Timestamp     *big.Int
	Amount        *big.Int
	CalldataForL1 []byte
}

func (b *RollupBridge) lookupMessageBatchProof(ctx context.Context, batchNumber, batchIndex *big.Int) (*messageBatchProof, error) {
	proof := new(messageBatchProof)
	if err := b.nodeInterface.Call(ctx, proof, "lookupMessageBatchProof", batchNumber, batchIndex.Uint64()); err != nil {
		return nil, fmt.Errorf("can't lookup outbox proof: %w", err)
	}
	return proof, nil
}

// TriggerL2ToL1Transaction executes a withdrawal message in the outbox.
// Unless forceExecute is set, the message must be CONFIRMED.
func (b *RollupBridge) TriggerL2ToL1Transaction(ctx context.Context, batchNumber, batchIndex *big.Int, forceExecute bool) (bridge.Transaction, error) {
	if !forceExecute {
		state, err := b.GetOutGoingMessageState(ctx, batchNumber, batchIndex)
		if err != nil {
			return nil, err
		}
		if state != entity.OutgoingMessageStateConfirmed {
			return nil, fmt.Errorf("batch %s, index %s is %q: %w", batchNumber, batchIndex, state, ErrMessageNotConfirmed)
		}
	}
	proof, err := b.lookupMessageBatchProof(ctx, batchNumber, batchIndex)
	if err != nil {
		return nil, err
	}
	return b.send(ctx, b.outbox, b.l1Signer, nil, "executeTransaction",
		batchNumber, proof.Proof, proof.Path, proof.L2Sender, proof.L1Dest,
		proof.L2Block, proof.L1Block, proof.Timestamp, proof.Amount, proof.CalldataForL1)
}

// GetInboxSeqNumFromContractTransaction extracts inbox message numbers from an L1 deposit receipt.
// An empty result means the receipt carries no inbox message.
func (b *RollupBridge) GetInboxSeqNumFromContractTransaction(l1Receipt *types.Receipt) ([]*big.Int, error) {
	logs, err := b.inbox.ParseLogs(l1Receipt)
	if err != nil {
		return nil, fmt.Errorf("can't parse inbox logs: %w", err)
	}
	var res []*big.Int
	for _, log := range logs {
		switch log.Event {
		case bridgeabi.InboxMessageDelivered, bridgeabi.InboxMessageDeliveredFromOrigin:
			seqNum, err2 := bigValue(log.Values, "messageNum")
			if err2 != nil {
				return nil, err2
			}
			res = append(res, seqNum)
		}
	}
	return res, nil
}

func (b *RollupBridge) CalculateL2TransactionHash(seqNum *big.Int, l2ChainID uint64) common.Hash {
	return CalculateL2TransactionHash(seqNum, l2ChainID)
}

func (b *RollupBridge) GetWithdrawalsInL2Transaction(l2Receipt *types.Receipt) ([]*bridge.Withdrawal, error) {
	logs, err := b.arbSys.ParseLogs(l2Receipt)
	if err != nil {
		return nil, fmt.Errorf("can't parse arbsys logs: %w", err)
	}
	var res []*bridge.Withdrawal
	for _, log := range logs {
		if log.Event != bridgeabi.L2ToL1Transaction {
			continue
		}
		w, err2 := parseWithdrawal(log.Values)
		if err2 != nil {
			return nil, fmt.Errorf("can't decode withdrawal in log %d: %w", log.Log.Index, err2)
		}
		res = append(res, w)
	}
	return res, nil
}

func parseWithdrawal(values map[string]interface{}) (*bridge.Withdrawal, error) {
	w := new(bridge.Withdrawal)
	var err error
	if w.Caller, err = addressValue(values, "caller"); err != nil {
		return nil, err
	}
	if w.Destination, err = addressValue(values, "destination"); err != nil {
		return nil, err
	}
	for key, dst := range map[string]**big.Int{
		"uniqueId":     &w.UniqueID,
		"batchNumber":  &w.BatchNumber,
		"indexInBatch": &w.IndexInBatch,
		"arbBlockNum":  &w.L2Block,
		"ethBlockNum":  &w.L1Block,
		"timestamp":    &w.Timestamp,
		"callvalue":    &w.CallValue,
	} {
		if *dst, err = bigValue(values, key); err != nil {
			return nil, err
		}
	}
	w.Data, _ = values["data"].([]byte)
	return w, nil
}

func (b *RollupBridge) GetOutGoingMessageState(ctx context.Context, batchNumber, batchIndex *big.Int) (entity.OutgoingMessageState, error) {
	var exists bool
	if err := b.outbox.Call(ctx, &exists, "outboxEntryExists", batchNumber); err != nil {
		return entity.OutgoingMessageStateUnset, fmt.Errorf("can't check outbox entry: %w", err)
	}
	if !exists {
		return entity.OutgoingMessageStateUnconfirmed, nil
	}

	var entryAddress common.Address
	if err := b.outbox.Call(ctx, &entryAddress, "outboxEntries", batchNumber); err != nil {
		return entity.OutgoingMessageStateUnset, fmt.Errorf("can't get outbox entry: %w", err)
	}
	proof, err := b.lookupMessageBatchProof(ctx, batchNumber, batchIndex)
	if err != nil {
		return entity.OutgoingMessageStateUnset, err
	}
	var spent bool
	entry := NewContract(b.l1, entryAddress, bridgeabi.OutboxEntryABI)
	if err = entry.Call(ctx, &spent, "spentOutput", proof.Path); err != nil {
		return entity.OutgoingMessageStateUnset, fmt.Errorf("can't check spent output: %w", err)
	}
	if spent {
		return entity.OutgoingMessageStateExecuted, nil
	}
	return entity.OutgoingMessageStateConfirmed, nil
}
