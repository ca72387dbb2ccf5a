package gov

import (
	"context"
	"fmt"
	"math/big"

	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"

	"github.com/calehh/agora-app/types"
)

const (
	// OneMinute is the vote window unit in unix milliseconds.
	OneMinute      = uint64(60 * 1000)
	MaxVoteMinutes = uint64(60)
)

// Ledger stores proposals and their vote records under dense sequential ids
// starting at 0. Proposal returns (nil, nil) for an unknown id; VoteRecord
// returns the store's not-found error, a record always exists for a
// submitted proposal.
type Ledger interface {
	AllocateProposalID() (uint64, error)
	Proposal(id uint64) (*types.Proposal, error)
	SetProposal(id uint64, p *types.Proposal) error
	VoteRecord(id uint64) (*types.VoteTally, error)
	SetVoteRecord(id uint64, rec *types.VoteTally) error
	ProposalCount() uint64
}

// Treasury pays accepted proposals. Transfer must be atomic: on error no
// balance moves.
type Treasury interface {
	Transfer(to common.Address, amount uint64) error
}

// WeightOracle reports the live token balance of an address.
type WeightOracle interface {
	BalanceOf(ctx context.Context, holder common.Address) (*big.Int, error)
}

// Clock is the governance time source, unix milliseconds, non-decreasing.
type Clock interface {
	NowMillis() uint64
}

type SubmitParams struct {
	ForAddress      common.Address
	AgainstAddress  common.Address
	Beneficiary     common.Address
	Title           string
	Description     string
	Amount          uint64
	DurationMinutes uint64
}

// Governor runs the proposal lifecycle: submit opens a fixed vote window,
// finalize pays out once when FOR strictly beats AGAINST after the window,
// and Tally peeks at the would-be outcome without touching state.
type Governor struct {
	tallier *Tallier
	clock   Clock
	logger  cmtlog.Logger
}

func New(oracle WeightOracle, clock Clock, weightBits uint, logger cmtlog.Logger) *Governor {
	return &Governor{
		tallier: NewTallier(oracle, weightBits),
		clock:   clock,
		logger:  logger.With("module", "gov"),
	}
}

// ValidateSubmit runs the pure parameter checks, usable for mempool
// admission without state access.
func ValidateSubmit(p SubmitParams) error {
	if p.Amount == 0 {
		return ErrAmountZero
	}
	if p.DurationMinutes == 0 || p.DurationMinutes > MaxVoteMinutes {
		return ErrDurationOutOfRange
	}
	return nil
}

// Submit opens a proposal with a vote window of DurationMinutes from now and
// initializes its all-zero vote record. The new id is not returned; callers
// that need it read ProposalCount()-1 on the same ledger.
func (g *Governor) Submit(led Ledger, p SubmitParams) error {
	if err := ValidateSubmit(p); err != nil {
		return err
	}
	id, err := led.AllocateProposalID()
	if err != nil {
		return err
	}
	now := g.clock.NowMillis()
	prop := &types.Proposal{
		ID:             id,
		ForAddress:     p.ForAddress,
		AgainstAddress: p.AgainstAddress,
		Beneficiary:    p.Beneficiary,
		Title:          p.Title,
		Description:    p.Description,
		Amount:         p.Amount,
		VoteStart:      now,
		VoteEnd:        now + p.DurationMinutes*OneMinute,
	}
	if err := led.SetProposal(id, prop); err != nil {
		return err
	}
	if err := led.SetVoteRecord(id, &types.VoteTally{}); err != nil {
		return err
	}
	g.logger.Debug("submit proposal", "id", id, "amount", p.Amount, "voteEnd", prop.VoteEnd)
	return nil
}

// Tally reports the would-be outcome of a proposal from live oracle balances
// without mutating state. An unknown id returns (nil, nil).
func (g *Governor) Tally(ctx context.Context, led Ledger, id uint64) (*types.VoteTally, error) {
	prop, err := led.Proposal(id)
	if err != nil {
		return nil, err
	}
	if prop == nil {
		return nil, nil
	}
	return g.freshTally(ctx, led, prop)
}

// freshTally loads the vote record and overwrites both weights from the
// oracle. Stored weights are never authoritative.
func (g *Governor) freshTally(ctx context.Context, led Ledger, prop *types.Proposal) (*types.VoteTally, error) {
	rec, err := led.VoteRecord(prop.ID)
	if err != nil {
		return nil, err
	}
	forWeight, err := g.tallier.Weigh(ctx, prop.ForAddress)
	if err != nil {
		return nil, err
	}
	againstWeight, err := g.tallier.Weigh(ctx, prop.AgainstAddress)
	if err != nil {
		return nil, err
	}
	rec.ForWeight = forWeight
	rec.AgainstWeight = againstWeight
	return rec, nil
}

// Finalize pays an accepted proposal exactly once. The transfer happens
// before any state change; a failed transfer leaves the proposal open for a
// later finalize. Returns the tally the decision was taken on.
func (g *Governor) Finalize(ctx context.Context, led Ledger, tre Treasury, id uint64) (*types.VoteTally, error) {
	prop, rec, err := g.finalizeGates(ctx, led, id)
	if err != nil {
		return nil, err
	}
	if err := tre.Transfer(prop.Beneficiary, prop.Amount); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTransferFailed, err)
	}
	prop.Executed = true
	if err := led.SetProposal(id, prop); err != nil {
		return nil, err
	}
	if err := led.SetVoteRecord(id, rec); err != nil {
		return nil, err
	}
	g.logger.Info("proposal executed", "id", id,
		"beneficiary", prop.Beneficiary, "amount", prop.Amount,
		"for", rec.ForWeight, "against", rec.AgainstWeight)
	return rec, nil
}

// CheckFinalize runs every finalize gate short of the transfer.
func (g *Governor) CheckFinalize(ctx context.Context, led Ledger, id uint64) error {
	_, _, err := g.finalizeGates(ctx, led, id)
	return err
}

func (g *Governor) finalizeGates(ctx context.Context, led Ledger, id uint64) (*types.Proposal, *types.VoteTally, error) {
	prop, err := led.Proposal(id)
	if err != nil {
		return nil, nil, err
	}
	if prop == nil {
		return nil, nil, ErrProposalNotFound
	}
	if prop.Executed {
		return nil, nil, ErrProposalExecuted
	}
	if g.clock.NowMillis() < prop.VoteEnd {
		return nil, nil, ErrVotePeriodNotEnded
	}
	rec, err := g.freshTally(ctx, led, prop)
	if err != nil {
		return nil, nil, err
	}
	if !rec.Accepted() {
		return nil, nil, ErrProposalNotAccepted
	}
	return prop, rec, nil
}
