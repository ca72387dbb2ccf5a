package gov

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const DefaultWeightBits = uint(8)

// Tallier turns live oracle balances into vote weights by keeping the low
// weightBits bits of the balance. With the default 8 bits a balance of 255
// weighs 255 and a balance of 256 weighs 0.
type Tallier struct {
	oracle WeightOracle
	mask   *big.Int
}

func NewTallier(oracle WeightOracle, weightBits uint) *Tallier {
	if weightBits == 0 {
		weightBits = DefaultWeightBits
	}
	if weightBits > 64 {
		weightBits = 64
	}
	mask := new(big.Int).Lsh(big.NewInt(1), weightBits)
	mask.Sub(mask, big.NewInt(1))
	return &Tallier{oracle: oracle, mask: mask}
}

func (t *Tallier) Weigh(ctx context.Context, holder common.Address) (uint64, error) {
	balance, err := t.oracle.BalanceOf(ctx, holder)
	if err != nil {
		return 0, err
	}
	if balance == nil {
		return 0, nil
	}
	return new(big.Int).And(balance, t.mask).Uint64(), nil
}
