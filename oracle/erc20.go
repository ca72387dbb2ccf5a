// Package oracle provides the weight sources tallies sample holder
// balances from when the chain's own account balances are not the
// governance token.
package oracle

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// balanceOfSelector is the first four bytes of keccak("balanceOf(address)").
var balanceOfSelector = crypto.Keccak256([]byte("balanceOf(address)"))[:4]

// ERC20Oracle samples balances with eth_call balanceOf against an external
// EVM node at its latest block.
type ERC20Oracle struct {
	cli   *ethclient.Client
	token common.Address
}

func NewERC20Oracle(rpcURL string, token common.Address) (*ERC20Oracle, error) {
	cli, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, err
	}
	return &ERC20Oracle{cli: cli, token: token}, nil
}

func (o *ERC20Oracle) BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error) {
	data := make([]byte, 0, 4+32)
	data = append(data, balanceOfSelector...)
	data = append(data, common.LeftPadBytes(holder.Bytes(), 32)...)
	res, err := o.cli.CallContract(ctx, ethereum.CallMsg{
		To:   &o.token,
		Data: data,
	}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(res), nil
}
