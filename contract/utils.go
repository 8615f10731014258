package contract

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
)

var retryableFlag = new(big.Int).Lsh(big.NewInt(1), 255)

// CalculateL2TransactionHash derives the hash of the L2 transaction created for an inbox message:
// keccak256(pad32(l2ChainID) || pad32(seqNum | 1<<255)).
func CalculateL2TransactionHash(seqNum *big.Int, l2ChainID uint64) common.Hash {
	flagged := new(big.Int).Or(seqNum, retryableFlag)
	return crypto.Keccak256Hash(
		math.U256Bytes(new(big.Int).SetUint64(l2ChainID)),
		math.U256Bytes(flagged),
	)
}

func bigValue(values map[string]interface{}, key string) (*big.Int, error) {
	v, ok := values[key].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, ErrUnexpectedLogValue)
	}
	return v, nil
}

func addressValue(values map[string]interface{}, key string) (common.Address, error) {
	v, ok := values[key].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s: %w", key, ErrUnexpectedLogValue)
	}
	return v, nil
}
