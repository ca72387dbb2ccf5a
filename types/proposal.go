package types

import "github.com/ethereum/go-ethereum/common"

// Proposal is a funding request. Voting weight is never stored per ballot:
// the two designated voter addresses are sampled by the weight oracle when a
// tally is taken. VoteStart and VoteEnd are unix milliseconds of block time.
type Proposal struct {
	ID             uint64         `json:"id"`
	ForAddress     common.Address `json:"for_address"`
	AgainstAddress common.Address `json:"against_address"`
	Beneficiary    common.Address `json:"beneficiary"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Amount         uint64         `json:"amount"`
	VoteStart      uint64         `json:"vote_start"`
	VoteEnd        uint64         `json:"vote_end"`
	Executed       bool           `json:"executed"`
}

func (p *Proposal) Clone() *Proposal {
	cp := *p
	return &cp
}

// VoteTally holds truncated weights for the two designated voter addresses.
// The record is created all-zero when the proposal is submitted and rewritten
// from live oracle balances whenever a tally is taken.
type VoteTally struct {
	ForWeight     uint64 `json:"for_weight"`
	AgainstWeight uint64 `json:"against_weight"`
}

func (t *VoteTally) Clone() *VoteTally {
	cp := *t
	return &cp
}

// Accepted reports a strict majority. Ties lose.
func (t *VoteTally) Accepted() bool {
	return t.ForWeight > t.AgainstWeight
}
