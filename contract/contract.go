package contract

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"github.com/omni/rollup-bridge-reconciler/contract/abi"
	"github.com/omni/rollup-bridge-reconciler/ethclient"
)

type Contract struct {
	address common.Address
	client  ethclient.Client
	abi     *abi.ABI
}

func NewContract(client ethclient.Client, addr common.Address, abi *abi.ABI) *Contract {
	return &Contract{addr, client, abi}
}

func (c *Contract) Address() common.Address {
	return c.address
}

// Call executes a read-only method and unpacks its outputs into out.
func (c *Contract) Call(ctx context.Context, out interface{}, method string, args ...interface{}) error {
	data, err := c.abi.Pack(method, args...)
	if err != nil {
		return fmt.Errorf("cannot encode abi calldata: %w", err)
	}
	res, err := c.client.CallContract(ctx, ethereum.CallMsg{
		To:   &c.address,
		Data: data,
	})
	if err != nil {
		return fmt.Errorf("cannot call %s(...): %w", method, err)
	}
	if err = c.abi.UnpackIntoInterface(out, method, res); err != nil {
		return fmt.Errorf("cannot decode %s(...) result: %w", method, err)
	}
	return nil
}

// Transact signs and sends a transaction invoking the given method.
func (c *Contract) Transact(opts *bind.TransactOpts, method string, args ...interface{}) (*types.Transaction, error) {
	backend := c.client.ContractBackend()
	bound := bind.NewBoundContract(c.address, c.abi.ABI, backend, backend, backend)
	tx, err := bound.Transact(opts, method, args...)
	if err != nil {
		return nil, fmt.Errorf("cannot send %s(...) transaction: %w", method, err)
	}
	return tx, nil
}

// ParseLogs decodes logs of the receipt emitted by this contract, skipping unknown events.
func (c *Contract) ParseLogs(receipt *types.Receipt) ([]*ParsedLog, error) {
	var res []*ParsedLog
	for _, log := range receipt.Logs {
		if log.Address != c.address || len(log.Topics) == 0 {
			continue
		}
		event, values, err := c.abi.ParseLog(log)
		if err != nil {
			return nil, fmt.Errorf("can't parse log %d: %w", log.Index, err)
		}
		if event == "" {
			continue
		}
		res = append(res, &ParsedLog{Event: event, Values: values, Log: log})
	}
	return res, nil
}

type ParsedLog struct {
	Event  string
	Values map[string]interface{}
	Log    *types.Log
}
