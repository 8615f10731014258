package abi_test

import (
	"bytes"
	_ "embed"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/require"

	"github.com/omni/rollup-bridge-reconciler/contract/abi"
)

//go:embed test_abi.json
var testJSONABI string

var (
	transferTopic         = crypto.Keccak256Hash([]byte("Transfer(address,address,uint256)"))
	testEventTopic        = crypto.Keccak256Hash([]byte("TestEvent(uint256,uint256)"))
	testIndexedEventTopic = crypto.Keccak256Hash([]byte("TestIndexedEvent(uint256,uint256)"))
	aliceAddr             = common.HexToAddress("0x01")
	bobAddr               = common.HexToAddress("0x02")
)

func TestABI_AllEvents(t *testing.T) {
	t.Parallel()

	require.Equal(t, map[string]bool{
		"event Transfer(address indexed sender, address indexed receiver, uint256 value)": true,
		"event TestEvent(uint256 a, uint256 b)":                                           true,
		"event TestIndexedEvent(uint256 indexed a, uint256 indexed b)":                    true,
	}, abi.MustReadABI(testJSONABI).AllEvents())
}

func TestABI_FindMatchingEventABI(t *testing.T) {
	t.Parallel()

	testABI := abi.MustReadABI(testJSONABI)
	for _, test := range []struct {
		Name     string
		Topics   []common.Hash
		Expected string
	}{
		{"Transfer", []common.Hash{transferTopic, aliceAddr.Hash(), bobAddr.Hash()}, "Transfer"},
		{"Too few topics", []common.Hash{transferTopic, aliceAddr.Hash()}, ""},
		{"Too many topics", []common.Hash{transferTopic, aliceAddr.Hash(), bobAddr.Hash(), aliceAddr.Hash()}, ""},
		{"Non indexed", []common.Hash{testEventTopic}, "TestEvent"},
	} {
		t.Logf("Running sub-test %q", test.Name)
		event := testABI.FindMatchingEventABI(test.Topics)
		if test.Expected == "" {
			require.Nil(t, event, "Failed %s", test.Name)
			continue
		}
		require.NotNil(t, event, "Failed %s", test.Name)
		require.Equal(t, test.Expected, event.Name, "Failed %s", test.Name)
	}
}

func TestABI_ParseLog(t *testing.T) {
	t.Parallel()

	testABI := abi.MustReadABI(testJSONABI)
	value := big.NewInt(100)
	valueHash := common.BigToHash(value)
	logData := valueHash.Bytes()

	for _, test := range []struct {
		Name   string
		Log    *types.Log
		Event  string
		Values map[string]interface{}
		Err    string
	}{
		{
			Name:  "Transfer with indexed fields",
			Log:   &types.Log{Topics: []common.Hash{transferTopic, aliceAddr.Hash(), bobAddr.Hash()}, Data: logData},
			Event: "event Transfer(address indexed sender, address indexed receiver, uint256 value)",
			Values: map[string]interface{}{
				"sender":   aliceAddr,
				"receiver": bobAddr,
				"value":    value,
			},
		},
		{
			Name: "Unknown event",
			Log:  &types.Log{Topics: []common.Hash{transferTopic}, Data: logData},
		},
		{
			Name:   "Only data fields",
			Log:    &types.Log{Topics: []common.Hash{testEventTopic}, Data: bytes.Repeat(logData, 2)},
			Event:  "event TestEvent(uint256 a, uint256 b)",
			Values: map[string]interface{}{"a": value, "b": value},
		},
		{
			Name:   "Only indexed fields",
			Log:    &types.Log{Topics: []common.Hash{testIndexedEventTopic, valueHash, valueHash}},
			Event:  "event TestIndexedEvent(uint256 indexed a, uint256 indexed b)",
			Values: map[string]interface{}{"a": value, "b": value},
		},
		{
			Name: "Short data",
			Log:  &types.Log{Topics: []common.Hash{testEventTopic}, Data: logData},
			Err:  "length insufficient",
		},
	} {
		t.Logf("Running sub-test %q", test.Name)
		event, values, err := testABI.ParseLog(test.Log)
		if test.Err != "" {
			require.Error(t, err, "Failed %s", test.Name)
			require.Contains(t, err.Error(), test.Err, "Failed %s", test.Name)
			continue
		}
		require.NoError(t, err, "Failed %s", test.Name)
		require.Equal(t, test.Event, event, "Failed %s", test.Name)
		if test.Values == nil {
			require.Empty(t, values, "Failed %s", test.Name)
		} else {
			require.Equal(t, test.Values, values, "Failed %s", test.Name)
		}
	}

	_, _, err := testABI.ParseLog(&types.Log{Data: logData})
	require.ErrorIs(t, err, abi.ErrInvalidEvent)
}
