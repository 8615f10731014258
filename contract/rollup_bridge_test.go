package contract_test

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/rollup-bridge-reconciler/contract"
	"github.com/omni/rollup-bridge-reconciler/contract/abi"
	"github.com/omni/rollup-bridge-reconciler/contract/bridgeabi"
	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/ethclient"
)

var (
	inboxAddr         = common.HexToAddress("0x4Dbd4fc535Ac27206064B68FfCf827b0A60BAB3f")
	outboxAddr        = common.HexToAddress("0x760723CD2e632826c38Fef8CD438A4CC7E7E1A40")
	outboxEntryAddr   = common.HexToAddress("0x1111111111111111111111111111111111111111")
	arbSysAddr        = common.HexToAddress("0x0000000000000000000000000000000000000064")
	nodeInterfaceAddr = common.HexToAddress("0x00000000000000000000000000000000000000C8")
	account           = common.HexToAddress("0x73cA9C4e72fF109259cf7374F038faf950949C51")

	errUnexpectedCall = errors.New("unexpected call")
)

type callHandler func(args []interface{}) ([]interface{}, error)

type fakeClient struct {
	chainID  uint64
	handlers map[common.Address]map[string]callHandler
	abis     map[common.Address]*abi.ABI
}

func newFakeClient(chainID uint64) *fakeClient {
	return &fakeClient{
		chainID:  chainID,
		handlers: make(map[common.Address]map[string]callHandler),
		abis:     make(map[common.Address]*abi.ABI),
	}
}

func (c *fakeClient) handle(addr common.Address, contractABI *abi.ABI, method string, h callHandler) {
	if c.handlers[addr] == nil {
		c.handlers[addr] = make(map[string]callHandler)
	}
	c.handlers[addr][method] = h
	c.abis[addr] = contractABI
}

func (c *fakeClient) ChainID() uint64 {
	return c.chainID
}

func (c *fakeClient) BlockNumber(context.Context) (uint64, error) {
	return 0, errUnexpectedCall
}

func (c *fakeClient) HeaderByNumber(context.Context, uint64) (*types.Header, error) {
	return nil, errUnexpectedCall
}

func (c *fakeClient) TransactionReceiptByHash(context.Context, common.Hash) (*types.Receipt, error) {
	return nil, ethereum.NotFound
}

func (c *fakeClient) CallContract(_ context.Context, msg ethereum.CallMsg) ([]byte, error) {
	contractABI, ok := c.abis[*msg.To]
	if !ok {
		return nil, errUnexpectedCall
	}
	method, err := contractABI.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	h, ok := c.handlers[*msg.To][method.Name]
	if !ok {
		return nil, errUnexpectedCall
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	res, err := h(args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(res...)
}

func (c *fakeClient) ContractBackend() ethclient.Backend {
	return nil
}

func returns(values ...interface{}) callHandler {
	return func([]interface{}) ([]interface{}, error) {
		return values, nil
	}
}

func newBridge(l1, l2 *fakeClient) *contract.RollupBridge {
	return contract.NewRollupBridge(&contract.RollupBridgeConfig{
		L1Client:             l1,
		L2Client:             l2,
		InboxAddress:         inboxAddr,
		OutboxAddress:        outboxAddr,
		ArbSysAddress:        arbSysAddr,
		NodeInterfaceAddress: nodeInterfaceAddr,
	})
}

func TestCalculateL2TransactionHash(t *testing.T) {
	t.Parallel()

	seqNum := big.NewInt(123456)
	expected := crypto.Keccak256Hash(
		common.LeftPadBytes(big.NewInt(421613).Bytes(), 32),
		common.LeftPadBytes(new(big.Int).Or(seqNum, new(big.Int).Lsh(big.NewInt(1), 255)).Bytes(), 32),
	)
	require.Equal(t, expected, contract.CalculateL2TransactionHash(seqNum, 421613))
	require.Equal(t, big.NewInt(123456), seqNum, "sequence number must not be mutated")
	require.NotEqual(t, expected, contract.CalculateL2TransactionHash(big.NewInt(123457), 421613))
	require.NotEqual(t, expected, contract.CalculateL2TransactionHash(seqNum, 42161))
}

func inboxLog(t *testing.T, addr common.Address, event string, seqNum int64, data []byte) *types.Log {
	t.Helper()
	e := bridgeabi.InboxABI.Events[event]
	log := &types.Log{
		Address: addr,
		Topics:  []common.Hash{e.ID, common.BigToHash(big.NewInt(seqNum))},
	}
	if data != nil {
		packed, err := e.Inputs.NonIndexed().Pack(data)
		require.NoError(t, err)
		log.Data = packed
	}
	return log
}

func TestRollupBridge_GetInboxSeqNumFromContractTransaction(t *testing.T) {
	t.Parallel()

	b := newBridge(newFakeClient(1), newFakeClient(2))
	unrelated := &types.Log{
		Address: common.HexToAddress("0x02"),
		Topics:  []common.Hash{crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))},
	}

	for _, test := range []struct {
		Name     string
		Logs     []*types.Log
		Expected []*big.Int
	}{
		{
			Name: "No logs",
		},
		{
			Name: "Message delivered",
			Logs: []*types.Log{
				unrelated,
				inboxLog(t, inboxAddr, "InboxMessageDelivered", 77, []byte{1, 2, 3}),
			},
			Expected: []*big.Int{big.NewInt(77)},
		},
		{
			Name: "Message delivered from origin",
			Logs: []*types.Log{
				inboxLog(t, inboxAddr, "InboxMessageDeliveredFromOrigin", 78, nil),
			},
			Expected: []*big.Int{big.NewInt(78)},
		},
		{
			Name: "Inbox event from another contract",
			Logs: []*types.Log{
				inboxLog(t, common.HexToAddress("0x03"), "InboxMessageDelivered", 79, []byte{}),
			},
		},
	} {
		t.Logf("Running sub-test %q", test.Name)
		res, err := b.GetInboxSeqNumFromContractTransaction(&types.Receipt{Logs: test.Logs})
		require.NoError(t, err, "Failed %s", test.Name)
		require.Equal(t, test.Expected, res, "Failed %s", test.Name)
	}
}

func TestRollupBridge_GetWithdrawalsInL2Transaction(t *testing.T) {
	t.Parallel()

	e := bridgeabi.ArbSysABI.Events["L2ToL1Transaction"]
	data, err := e.Inputs.NonIndexed().Pack(
		account,
		big.NewInt(3),
		big.NewInt(1000),
		big.NewInt(15000000),
		big.NewInt(1662033600),
		big.NewInt(1e18),
		[]byte{},
	)
	require.NoError(t, err)
	receipt := &types.Receipt{Logs: []*types.Log{{
		Address: arbSysAddr,
		Topics: []common.Hash{
			e.ID,
			common.BytesToHash(account.Bytes()),
			common.BigToHash(big.NewInt(555)),
			common.BigToHash(big.NewInt(12)),
		},
		Data: data,
	}}}

	b := newBridge(newFakeClient(1), newFakeClient(2))
	withdrawals, err := b.GetWithdrawalsInL2Transaction(receipt)
	require.NoError(t, err)
	require.Len(t, withdrawals, 1)
	w := withdrawals[0]
	require.Equal(t, account, w.Caller)
	require.Equal(t, account, w.Destination)
	require.Equal(t, big.NewInt(555), w.UniqueID)
	require.Equal(t, big.NewInt(12), w.BatchNumber)
	require.Equal(t, big.NewInt(3), w.IndexInBatch)
	require.Equal(t, big.NewInt(1000), w.L2Block)
	require.Equal(t, big.NewInt(15000000), w.L1Block)
	require.Equal(t, big.NewInt(1e18), w.CallValue)
	require.True(t, bytes.Equal([]byte{}, w.Data))
}

func proofHandler(path int64) callHandler {
	return returns(
		[][32]byte{{1}, {2}},
		big.NewInt(path),
		account,
		account,
		big.NewInt(1000),
		big.NewInt(15000000),
		big.NewInt(1662033600),
		big.NewInt(1e18),
		[]byte{},
	)
}

func TestRollupBridge_GetOutGoingMessageState(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name     string
		Exists   bool
		Spent    bool
		Expected entity.OutgoingMessageState
	}{
		{"Batch not confirmed", false, false, entity.OutgoingMessageStateUnconfirmed},
		{"Confirmed", true, false, entity.OutgoingMessageStateConfirmed},
		{"Executed", true, true, entity.OutgoingMessageStateExecuted},
	} {
		t.Logf("Running sub-test %q", test.Name)
		l1, l2 := newFakeClient(1), newFakeClient(2)
		var spentPath *big.Int
		l1.handle(outboxAddr, bridgeabi.OutboxABI, "outboxEntryExists", returns(test.Exists))
		l1.handle(outboxAddr, bridgeabi.OutboxABI, "outboxEntries", returns(outboxEntryAddr))
		l1.handle(outboxEntryAddr, bridgeabi.OutboxEntryABI, "spentOutput", func(args []interface{}) ([]interface{}, error) {
			spentPath = args[0].(*big.Int)
			return []interface{}{test.Spent}, nil
		})
		l2.handle(nodeInterfaceAddr, bridgeabi.NodeInterfaceABI, "lookupMessageBatchProof", proofHandler(9))

		state, err := newBridge(l1, l2).GetOutGoingMessageState(context.Background(), big.NewInt(12), big.NewInt(3))
		require.NoError(t, err, "Failed %s", test.Name)
		require.Equal(t, test.Expected, state, "Failed %s", test.Name)
		if test.Exists {
			require.Equal(t, big.NewInt(9), spentPath, "Failed %s", test.Name)
		}
	}
}

func TestRollupBridge_TriggerL2ToL1Transaction(t *testing.T) {
	t.Parallel()

	l1, l2 := newFakeClient(1), newFakeClient(2)
	l1.handle(outboxAddr, bridgeabi.OutboxABI, "outboxEntryExists", returns(false))
	l2.handle(nodeInterfaceAddr, bridgeabi.NodeInterfaceABI, "lookupMessageBatchProof", proofHandler(9))
	b := newBridge(l1, l2)

	_, err := b.TriggerL2ToL1Transaction(context.Background(), big.NewInt(12), big.NewInt(3), false)
	require.ErrorIs(t, err, contract.ErrMessageNotConfirmed)

	_, err = b.TriggerL2ToL1Transaction(context.Background(), big.NewInt(12), big.NewInt(3), true)
	require.ErrorIs(t, err, contract.ErrMissingSigner)

	_, err = b.DepositETH(context.Background(), big.NewInt(1))
	require.ErrorIs(t, err, contract.ErrMissingSigner)
	_, err = b.WithdrawERC20(context.Background(), account, big.NewInt(1))
	require.ErrorIs(t, err, contract.ErrMissingSigner)
}
