package summary_test

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/omni/rollup-bridge-reconciler/entity"
	"github.com/omni/rollup-bridge-reconciler/store"
	"github.com/omni/rollup-bridge-reconciler/summary"
)

const (
	l1ChainID uint64 = 1
	l2ChainID uint64 = 2
)

var (
	t0      = time.Date(2022, 9, 1, 12, 0, 0, 0, time.UTC)
	account = common.HexToAddress("0x73cA9C4e72fF109259cf7374F038faf950949C51")
	other   = common.HexToAddress("0x8bB9f7F1b5C1d2a6cb0eC4cB2A0D4b8e1c2F1A11")

	success = &entity.Receipt{Status: entity.ReceiptStatusSuccess}
	failure = &entity.Receipt{Status: entity.ReceiptStatusFailed}
)

func opts() summary.Options {
	return summary.Options{
		Account:   account,
		L1ChainID: l1ChainID,
		L2ChainID: l2ChainID,
		Now:       t0,
	}
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(store.WithClock(func() time.Time { return t0 }))
}

func add(t *testing.T, s *store.Store, txType entity.TxType, chainID uint64, hash string) common.Hash {
	t.Helper()
	txHash := common.HexToHash(hash)
	require.NoError(t, s.AddTransaction(&entity.BridgeTxn{
		Type:      txType,
		ChainID:   chainID,
		TxHash:    txHash,
		Sender:    account,
		AssetName: "ETH",
		AssetType: entity.AssetTypeETH,
		Value:     "1000",
	}))
	return txHash
}

func derive(s *store.Store, o summary.Options) []*entity.BridgeTransactionSummary {
	return summary.Derive(s.Snapshot(), o)
}

func TestDerive_SimpleDeposit(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	a := add(t, s, entity.TxTypeDepositL1, l1ChainID, "0xA")

	res := derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status)
	require.Equal(t, entity.PendingReasonL1Confirmation, res[0].PendingReason)

	require.NoError(t, s.UpdateReceipt(l1ChainID, a, success, nil))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status, "deposit must not be confirmed by its L1 leg")
	require.Equal(t, entity.PendingReasonL2Processing, res[0].PendingReason)
	require.Nil(t, res[0].TimestampResolved)
	require.Len(t, res[0].Log, 1)
	require.Equal(t, entity.SummaryStatusConfirmed, res[0].Log[0].Status)

	b := add(t, s, entity.TxTypeDepositL2, l2ChainID, "0xB")
	require.NoError(t, s.UpdatePartnerHash(l1ChainID, a, l2ChainID, b))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status)
	require.Equal(t, entity.PendingReasonL2Processing, res[0].PendingReason)

	require.NoError(t, s.UpdateReceipt(l2ChainID, b, success, nil))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusConfirmed, res[0].Status)
	require.Empty(t, res[0].PendingReason)
	require.Equal(t, a, res[0].TxHash)
	require.Equal(t, l1ChainID, res[0].FromChainID)
	require.Equal(t, l2ChainID, res[0].ToChainID)
	require.NotNil(t, res[0].TimestampResolved)
	require.Len(t, res[0].Log, 2)
	require.Equal(t, a, res[0].Log[0].TxHash)
	require.Equal(t, b, res[0].Log[1].TxHash)
}

func TestDerive_WithdrawalLifecycle(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	c := add(t, s, entity.TxTypeWithdraw, l2ChainID, "0xC")
	require.NoError(t, s.UpdateReceipt(l2ChainID, c, success, nil))

	res := derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status)
	require.Equal(t, entity.PendingReasonChallengeWindow, res[0].PendingReason)
	require.Equal(t, l2ChainID, res[0].FromChainID)
	require.Equal(t, l1ChainID, res[0].ToChainID)

	require.NoError(t, s.UpdateWithdrawalInfo(l2ChainID, c, entity.OutgoingMessageStateConfirmed, nil, nil))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusRedeem, res[0].Status)

	loading := opts()
	loading.Loading = true
	res = derive(s, loading)
	require.Equal(t, entity.SummaryStatusLoading, res[0].Status)

	d := add(t, s, entity.TxTypeOutbox, l1ChainID, "0xD")
	require.NoError(t, s.UpdatePartnerHash(l1ChainID, d, l2ChainID, c))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status)
	require.Equal(t, entity.PendingReasonL1Confirmation, res[0].PendingReason)

	require.NoError(t, s.UpdateReceipt(l1ChainID, d, success, nil))
	require.NoError(t, s.UpdateWithdrawalInfo(l2ChainID, c, entity.OutgoingMessageStateExecuted, nil, nil))
	res = derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusConfirmed, res[0].Status)
	require.Equal(t, c, res[0].TxHash)
	require.Len(t, res[0].Log, 2)
	require.Equal(t, entity.OutgoingMessageStateExecuted, res[0].Log[0].OutgoingMessageState)
}

func TestDerive_WithdrawalStatuses(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Name     string
		Receipt  *entity.Receipt
		State    entity.OutgoingMessageState
		Loading  bool
		Expected entity.SummaryStatus
		Reason   string
	}{
		{"Not mined", nil, entity.OutgoingMessageStateUnset, false, entity.SummaryStatusPending, entity.PendingReasonL2Confirmation},
		{"Reverted", failure, entity.OutgoingMessageStateUnset, true, entity.SummaryStatusFailed, ""},
		{"Unconfirmed", success, entity.OutgoingMessageStateUnconfirmed, false, entity.SummaryStatusPending, entity.PendingReasonChallengeWindow},
		{"Unconfirmed while loading", success, entity.OutgoingMessageStateUnconfirmed, true, entity.SummaryStatusLoading, ""},
		{"Confirmed", success, entity.OutgoingMessageStateConfirmed, false, entity.SummaryStatusRedeem, ""},
		{"Executed", success, entity.OutgoingMessageStateExecuted, false, entity.SummaryStatusClaimed, ""},
		{"Executed while loading", success, entity.OutgoingMessageStateExecuted, true, entity.SummaryStatusClaimed, ""},
	} {
		t.Logf("Running sub-test %q", test.Name)
		txns := entity.TxnsByChain{
			l2ChainID: {{
				Type:                 entity.TxTypeWithdraw,
				ChainID:              l2ChainID,
				TxHash:               common.HexToHash("0xC"),
				Sender:               account,
				Receipt:              test.Receipt,
				OutgoingMessageState: test.State,
			}},
		}
		o := opts()
		o.Loading = test.Loading
		res := summary.Derive(txns, o)
		require.Len(t, res, 1, "Failed %s", test.Name)
		require.Equal(t, test.Expected, res[0].Status, "Failed %s", test.Name)
		require.Equal(t, test.Reason, res[0].PendingReason, "Failed %s", test.Name)
	}
}

func TestDerive_OutboxAuthority(t *testing.T) {
	t.Parallel()

	for _, state := range []entity.OutgoingMessageState{
		entity.OutgoingMessageStateUnset,
		entity.OutgoingMessageStateUnconfirmed,
		entity.OutgoingMessageStateConfirmed,
		entity.OutgoingMessageStateExecuted,
	} {
		t.Logf("Running sub-test %q", state)
		s := newStore(t)
		c := add(t, s, entity.TxTypeWithdraw, l2ChainID, "0xC")
		d := add(t, s, entity.TxTypeOutbox, l1ChainID, "0xD")
		require.NoError(t, s.UpdateReceipt(l2ChainID, c, success, nil))
		require.NoError(t, s.UpdatePartnerHash(l1ChainID, d, l2ChainID, c))
		require.NoError(t, s.UpdateReceipt(l1ChainID, d, success, nil))
		if state != entity.OutgoingMessageStateUnset {
			require.NoError(t, s.UpdateWithdrawalInfo(l2ChainID, c, state, nil, nil))
		}

		res := derive(s, opts())
		require.Len(t, res, 1)
		require.Equal(t, entity.SummaryStatusConfirmed, res[0].Status, "Failed %s", state)
	}

	s := newStore(t)
	c := add(t, s, entity.TxTypeWithdraw, l2ChainID, "0xC")
	d := add(t, s, entity.TxTypeOutbox, l1ChainID, "0xD")
	require.NoError(t, s.UpdatePartnerHash(l1ChainID, d, l2ChainID, c))
	require.NoError(t, s.UpdateReceipt(l1ChainID, d, failure, nil))
	res := derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusFailed, res[0].Status)
}

func TestDerive_FailedDeposit(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	a := add(t, s, entity.TxTypeDepositL1, l1ChainID, "0xA")
	b := add(t, s, entity.TxTypeDepositL2, l2ChainID, "0xB")
	require.NoError(t, s.UpdateReceipt(l1ChainID, a, failure, nil))
	require.NoError(t, s.UpdateReceipt(l2ChainID, b, success, nil))
	require.NoError(t, s.UpdatePartnerHash(l1ChainID, a, l2ChainID, b))

	res := derive(s, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusFailed, res[0].Status)
	require.Len(t, res[0].Log, 2)

	single := newStore(t)
	e := add(t, single, entity.TxTypeDepositL1, l1ChainID, "0xE")
	require.NoError(t, single.UpdateReceipt(l1ChainID, e, failure, nil))
	res = derive(single, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusFailed, res[0].Status)
}

func TestDerive_NoDoubleEmission(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	// two pairs
	a := add(t, s, entity.TxTypeDepositL1, l1ChainID, "0x01")
	b := add(t, s, entity.TxTypeDepositL2, l2ChainID, "0x02")
	c := add(t, s, entity.TxTypeWithdraw, l2ChainID, "0x03")
	d := add(t, s, entity.TxTypeOutbox, l1ChainID, "0x04")
	require.NoError(t, s.UpdateReceipt(l1ChainID, a, success, nil))
	require.NoError(t, s.UpdatePartnerHash(l1ChainID, a, l2ChainID, b))
	require.NoError(t, s.UpdatePartnerHash(l2ChainID, c, l1ChainID, d))
	// three unpaired legs
	add(t, s, entity.TxTypeApprove, l1ChainID, "0x05")
	add(t, s, entity.TxTypeWithdraw, l2ChainID, "0x06")
	add(t, s, entity.TxTypeDepositL1, l1ChainID, "0x07")

	res := derive(s, opts())
	require.Len(t, res, 5)

	seen := make(map[common.Hash]bool)
	for _, sum := range res {
		for _, leg := range sum.Log {
			require.False(t, seen[leg.TxHash], "leg %s emitted twice", leg.TxHash)
			seen[leg.TxHash] = true
		}
	}
	require.Len(t, seen, 7)
}

func TestDerive_OrderAndAccount(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	add(t, s, entity.TxTypeDepositL1, l1ChainID, "0x01")
	add(t, s, entity.TxTypeDepositL1, l1ChainID, "0x02")
	add(t, s, entity.TxTypeWithdraw, l2ChainID, "0x03")
	require.NoError(t, s.AddTransaction(&entity.BridgeTxn{
		Type:    entity.TxTypeDepositL1,
		ChainID: l1ChainID,
		TxHash:  common.HexToHash("0x04"),
		Sender:  other,
	}))

	res := derive(s, opts())
	require.Len(t, res, 3)
	require.Equal(t, common.HexToHash("0x03"), res[0].TxHash)
	require.Equal(t, common.HexToHash("0x02"), res[1].TxHash)
	require.Equal(t, common.HexToHash("0x01"), res[2].TxHash)

	all := opts()
	all.Account = common.Address{}
	require.Len(t, derive(s, all), 4)
}

func TestDerive_PartnerOutsideOwnedSet(t *testing.T) {
	t.Parallel()

	txns := entity.TxnsByChain{
		l1ChainID: {{
			Type:          entity.TxTypeDepositL1,
			ChainID:       l1ChainID,
			TxHash:        common.HexToHash("0x01"),
			Sender:        account,
			Receipt:       success,
			PartnerTxHash: hashPtr(common.HexToHash("0x02")),
		}},
		l2ChainID: {{
			Type:          entity.TxTypeDepositL2,
			ChainID:       l2ChainID,
			TxHash:        common.HexToHash("0x02"),
			Sender:        other,
			Receipt:       success,
			PartnerTxHash: hashPtr(common.HexToHash("0x01")),
		}},
	}
	res := summary.Derive(txns, opts())
	require.Len(t, res, 1)
	require.Equal(t, entity.SummaryStatusPending, res[0].Status)
	require.Len(t, res[0].Log, 1)
}

func TestDerive_Filters(t *testing.T) {
	t.Parallel()

	old := t0.Add(-48 * time.Hour)
	fresh := t0.Add(-time.Hour)
	txns := entity.TxnsByChain{
		l1ChainID: {
			{Type: entity.TxTypeApprove, ChainID: l1ChainID, TxHash: common.HexToHash("0x01"), Sender: account, Receipt: success, TimestampResolved: &old},
			{Type: entity.TxTypeApprove, ChainID: l1ChainID, TxHash: common.HexToHash("0x02"), Sender: account, Receipt: success, TimestampResolved: &fresh},
			{Type: entity.TxTypeDepositL1, ChainID: l1ChainID, TxHash: common.HexToHash("0x03"), Sender: account, Receipt: success, TimestampResolved: &old},
		},
		l2ChainID: {
			{Type: entity.TxTypeWithdraw, ChainID: l2ChainID, TxHash: common.HexToHash("0x04"), Sender: account, Receipt: success, OutgoingMessageState: entity.OutgoingMessageStateConfirmed},
			{Type: entity.TxTypeWithdraw, ChainID: l2ChainID, TxHash: common.HexToHash("0x05"), Sender: account, Receipt: success, OutgoingMessageState: entity.OutgoingMessageStateExecuted, TimestampResolved: &old},
		},
	}

	for _, test := range []struct {
		Name     string
		Filter   summary.Filter
		Expected []string
	}{
		{"All", summary.FilterAll, []string{"0x05", "0x04", "0x03", "0x02", "0x01"}},
		{"Collectable", summary.FilterCollectable, []string{"0x04"}},
		{"Recent", summary.FilterRecent, []string{"0x04", "0x03", "0x02"}},
	} {
		t.Logf("Running sub-test %q", test.Name)
		o := opts()
		o.Filter = test.Filter
		res := summary.Derive(txns, o)
		hashes := make([]string, 0, len(res))
		for _, s := range res {
			hashes = append(hashes, s.TxHash.Hex())
		}
		expected := make([]string, 0, len(test.Expected))
		for _, h := range test.Expected {
			expected = append(expected, common.HexToHash(h).Hex())
		}
		require.Equal(t, expected, hashes, "Failed %s", test.Name)
	}
}

func TestDerive_DoesNotMutateInput(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	a := add(t, s, entity.TxTypeDepositL1, l1ChainID, "0x01")
	require.NoError(t, s.UpdateReceipt(l1ChainID, a, success, nil))
	snapshot := s.Snapshot()
	before := snapshot[l1ChainID][0].Clone()

	res := summary.Derive(snapshot, opts())
	res[0].Log[0].Status = entity.SummaryStatusFailed
	require.Equal(t, before, snapshot[l1ChainID][0])
}

func TestParseFilter(t *testing.T) {
	t.Parallel()

	for _, test := range []struct {
		Input    string
		Expected summary.Filter
		Err      bool
	}{
		{"", summary.FilterAll, false},
		{"collectable", summary.FilterCollectable, false},
		{"RECENT", summary.FilterRecent, false},
		{"unknown", summary.FilterAll, true},
	} {
		t.Logf("Running sub-test %q", test.Input)
		f, err := summary.ParseFilter(test.Input)
		if test.Err {
			require.ErrorIs(t, err, summary.ErrUnknownFilter)
			continue
		}
		require.NoError(t, err)
		require.Equal(t, test.Expected, f)
	}
}

func hashPtr(h common.Hash) *common.Hash {
	return &h
}
