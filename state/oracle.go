package state

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// AccountSource is the read surface a BalanceOracle samples weights from.
// Both State and StateDB satisfy it; binding the oracle to the executing
// State makes same-block transfers visible to tallies.
type AccountSource interface {
	AccountByAddress(addr []byte) (*Account, error)
}

// BalanceOracle reports governance token weights straight from account
// balances. Unknown holders weigh zero.
type BalanceOracle struct {
	src AccountSource
}

func NewBalanceOracle(src AccountSource) *BalanceOracle {
	return &BalanceOracle{src: src}
}

func (o *BalanceOracle) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	acnt, err := o.src.AccountByAddress(holder.Bytes())
	if err != nil {
		return nil, err
	}
	if acnt == nil {
		return big.NewInt(0), nil
	}
	return new(big.Int).SetUint64(acnt.Balance), nil
}
