package state

import (
	cmtcrypto "github.com/cometbft/cometbft/crypto"
	"github.com/cometbft/cometbft/crypto/ed25519"
)

// Account is a balance-bearing record. Validator accounts carry an ed25519
// pubkey; treasury and plain holder accounts carry only a 20-byte address.
// Balance doubles as governance token balance and voting power source.
type Account struct {
	Index   uint64 `json:"index"`
	PubKey  []byte `json:"pubKey,omitempty"`
	Addr    []byte `json:"addr,omitempty"`
	Balance uint64 `json:"balance"`
	Nonce   uint64 `json:"nonce"`
}

func (a *Account) Clone() *Account {
	n := *a
	n.PubKey = append([]byte(nil), a.PubKey...)
	n.Addr = append([]byte(nil), a.Addr...)
	return &n
}

func (a *Account) SetPubKey(pkey []byte) {
	a.PubKey = append([]byte(nil), pkey...)
}

// AddrBytes prefers the stored address and falls back to the address
// derived from the ed25519 pubkey.
func (a *Account) AddrBytes() []byte {
	if len(a.Addr) > 0 {
		return a.Addr
	}
	pk := ed25519.PubKey(a.PubKey)
	return pk.Address()
}

func (a *Account) Address() string {
	return cmtcrypto.Address(a.AddrBytes()).String()
}

// Verify checks exactly one ed25519 signature over msg. Accounts without a
// pubkey cannot sign.
func (a *Account) Verify(msg []byte, sigs [][]byte) bool {
	if len(sigs) != 1 || len(a.PubKey) == 0 {
		return false
	}
	pk := ed25519.PubKey(a.PubKey)
	return pk.VerifySignature(msg, sigs[0])
}
