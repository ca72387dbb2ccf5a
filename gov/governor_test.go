package gov_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/types"
)

var (
	forAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	againstAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	benAddr     = common.HexToAddress("0x3333333333333333333333333333333333333333")

	errVoteRecordMissing = errors.New("vote record missing")
)

type memLedger struct {
	proposals map[uint64]*types.Proposal
	votes     map[uint64]*types.VoteTally
	next      uint64
}

func newMemLedger() *memLedger {
	return &memLedger{
		proposals: make(map[uint64]*types.Proposal),
		votes:     make(map[uint64]*types.VoteTally),
	}
}

func (l *memLedger) AllocateProposalID() (uint64, error) {
	id := l.next
	l.next++
	return id, nil
}

func (l *memLedger) Proposal(id uint64) (*types.Proposal, error) {
	p, ok := l.proposals[id]
	if !ok {
		return nil, nil
	}
	return p.Clone(), nil
}

func (l *memLedger) SetProposal(id uint64, p *types.Proposal) error {
	l.proposals[id] = p.Clone()
	return nil
}

func (l *memLedger) VoteRecord(id uint64) (*types.VoteTally, error) {
	rec, ok := l.votes[id]
	if !ok {
		return nil, errVoteRecordMissing
	}
	return rec.Clone(), nil
}

func (l *memLedger) SetVoteRecord(id uint64, rec *types.VoteTally) error {
	l.votes[id] = rec.Clone()
	return nil
}

func (l *memLedger) ProposalCount() uint64 {
	return l.next
}

type memTreasury struct {
	balance  uint64
	payouts  map[common.Address]uint64
	failWith error
}

func newMemTreasury(balance uint64) *memTreasury {
	return &memTreasury{balance: balance, payouts: make(map[common.Address]uint64)}
}

func (t *memTreasury) Transfer(to common.Address, amount uint64) error {
	if t.failWith != nil {
		return t.failWith
	}
	if t.balance < amount {
		return errors.New("insufficient treasury balance")
	}
	t.balance -= amount
	t.payouts[to] += amount
	return nil
}

type staticOracle map[common.Address]*big.Int

func (o staticOracle) BalanceOf(_ context.Context, holder common.Address) (*big.Int, error) {
	if b, ok := o[holder]; ok {
		return b, nil
	}
	return big.NewInt(0), nil
}

type manualClock uint64

func (c *manualClock) NowMillis() uint64 { return uint64(*c) }

func (c *manualClock) set(ms uint64) { *c = manualClock(ms) }

func newGovernor(oracle gov.WeightOracle, clock gov.Clock) *gov.Governor {
	return gov.New(oracle, clock, 0, log.TestingLogger())
}

func submitParams() gov.SubmitParams {
	return gov.SubmitParams{
		ForAddress:      forAddr,
		AgainstAddress:  againstAddr,
		Beneficiary:     benAddr,
		Title:           "fund the relay",
		Description:     "one-time infra payment",
		Amount:          500,
		DurationMinutes: 10,
	}
}

func TestSubmitValidation(t *testing.T) {
	cases := []struct {
		name     string
		mutate   func(*gov.SubmitParams)
		expected error
	}{
		{"zero amount", func(p *gov.SubmitParams) { p.Amount = 0 }, gov.ErrAmountZero},
		{"zero duration", func(p *gov.SubmitParams) { p.DurationMinutes = 0 }, gov.ErrDurationOutOfRange},
		{"duration above cap", func(p *gov.SubmitParams) { p.DurationMinutes = gov.MaxVoteMinutes + 1 }, gov.ErrDurationOutOfRange},
		{"duration at cap", func(p *gov.SubmitParams) { p.DurationMinutes = gov.MaxVoteMinutes }, nil},
		{"minimal duration", func(p *gov.SubmitParams) { p.DurationMinutes = 1 }, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			clock := manualClock(1_000_000)
			g := newGovernor(staticOracle{}, &clock)
			led := newMemLedger()
			p := submitParams()
			tc.mutate(&p)
			err := g.Submit(led, p)
			if tc.expected != nil {
				require.ErrorIs(t, err, tc.expected)
				require.Zero(t, led.ProposalCount())
			} else {
				require.NoError(t, err)
				require.Equal(t, uint64(1), led.ProposalCount())
			}
			require.ErrorIs(t, gov.ValidateSubmit(p), tc.expected)
		})
	}
}

func TestSubmitAssignsDenseIDs(t *testing.T) {
	clock := manualClock(1_000_000)
	g := newGovernor(staticOracle{}, &clock)
	led := newMemLedger()

	for i := 0; i < 3; i++ {
		require.NoError(t, g.Submit(led, submitParams()))
	}
	require.Equal(t, uint64(3), led.ProposalCount())

	for id := uint64(0); id < 3; id++ {
		prop, err := led.Proposal(id)
		require.NoError(t, err)
		require.NotNil(t, prop)
		require.Equal(t, id, prop.ID)
		require.False(t, prop.Executed)
		require.Equal(t, uint64(1_000_000), prop.VoteStart)
		require.Equal(t, uint64(1_000_000)+10*gov.OneMinute, prop.VoteEnd)

		rec, err := led.VoteRecord(id)
		require.NoError(t, err)
		require.Equal(t, &types.VoteTally{}, rec)
	}
}

func TestSubmitAcceptsDegenerateFields(t *testing.T) {
	clock := manualClock(5)
	g := newGovernor(staticOracle{}, &clock)
	led := newMemLedger()

	p := submitParams()
	p.ForAddress = forAddr
	p.AgainstAddress = forAddr
	p.Beneficiary = common.Address{}
	p.Title = ""
	p.Description = ""
	require.NoError(t, g.Submit(led, p))

	prop, err := led.Proposal(0)
	require.NoError(t, err)
	require.Equal(t, forAddr, prop.AgainstAddress)
	require.Equal(t, common.Address{}, prop.Beneficiary)
}

func TestTallyAbsentProposal(t *testing.T) {
	clock := manualClock(0)
	g := newGovernor(staticOracle{}, &clock)
	led := newMemLedger()

	rec, err := g.Tally(context.Background(), led, 42)
	require.NoError(t, err)
	require.Nil(t, rec)
}

func TestTallySamplesLiveBalances(t *testing.T) {
	clock := manualClock(1_000_000)
	oracle := staticOracle{
		forAddr:     big.NewInt(200),
		againstAddr: big.NewInt(100),
	}
	g := newGovernor(oracle, &clock)
	led := newMemLedger()
	require.NoError(t, g.Submit(led, submitParams()))

	rec, err := g.Tally(context.Background(), led, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(200), rec.ForWeight)
	require.Equal(t, uint64(100), rec.AgainstWeight)

	// peek must not persist
	stored, err := led.VoteRecord(0)
	require.NoError(t, err)
	require.Equal(t, &types.VoteTally{}, stored)

	// balances move, the next peek follows
	oracle[forAddr] = big.NewInt(7)
	rec, err = g.Tally(context.Background(), led, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(7), rec.ForWeight)
}

func TestTallyTruncation(t *testing.T) {
	big2_70 := new(big.Int).Lsh(big.NewInt(1), 70)
	cases := []struct {
		name     string
		bits     uint
		balance  *big.Int
		expected uint64
	}{
		{"8 bits max", 8, big.NewInt(255), 255},
		{"8 bits wraps at 256", 8, big.NewInt(256), 0},
		{"8 bits 257", 8, big.NewInt(257), 1},
		{"8 bits 300", 8, big.NewInt(300), 44},
		{"8 bits huge balance", 8, new(big.Int).Add(big2_70, big.NewInt(5)), 5},
		{"16 bits max", 16, big.NewInt(65535), 65535},
		{"16 bits wraps", 16, big.NewInt(65536), 0},
		{"zero bits defaults to 8", 0, big.NewInt(256), 0},
		{"clamped to 64 bits", 80, new(big.Int).Add(big2_70, big.NewInt(7)), 7},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tallier := gov.NewTallier(staticOracle{forAddr: tc.balance}, tc.bits)
			w, err := tallier.Weigh(context.Background(), forAddr)
			require.NoError(t, err)
			require.Equal(t, tc.expected, w)
		})
	}
}

func TestFinalizeGates(t *testing.T) {
	start := uint64(1_000_000)
	end := start + 10*gov.OneMinute

	setup := func(oracle staticOracle) (*gov.Governor, *memLedger, *memTreasury, *manualClock) {
		clock := manualClock(start)
		g := newGovernor(oracle, &clock)
		led := newMemLedger()
		tre := newMemTreasury(10_000)
		require.NoError(t, g.Submit(led, submitParams()))
		return g, led, tre, &clock
	}

	t.Run("unknown proposal", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{})
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 9)
		require.ErrorIs(t, err, gov.ErrProposalNotFound)
	})

	t.Run("before window end", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{forAddr: big.NewInt(2), againstAddr: big.NewInt(1)})
		clock.set(end - 1)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.ErrorIs(t, err, gov.ErrVotePeriodNotEnded)
	})

	t.Run("at window end", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{forAddr: big.NewInt(2), againstAddr: big.NewInt(1)})
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.NoError(t, err)
	})

	t.Run("tie loses", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{forAddr: big.NewInt(5), againstAddr: big.NewInt(5)})
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.ErrorIs(t, err, gov.ErrProposalNotAccepted)
	})

	t.Run("against majority loses", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{forAddr: big.NewInt(1), againstAddr: big.NewInt(9)})
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.ErrorIs(t, err, gov.ErrProposalNotAccepted)
	})

	t.Run("rejected then accepted after balances move", func(t *testing.T) {
		oracle := staticOracle{forAddr: big.NewInt(1), againstAddr: big.NewInt(9)}
		g, led, tre, clock := setup(oracle)
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.ErrorIs(t, err, gov.ErrProposalNotAccepted)

		oracle[forAddr] = big.NewInt(10)
		_, err = g.Finalize(context.Background(), led, tre, 0)
		require.NoError(t, err)
		require.Equal(t, uint64(500), tre.payouts[benAddr])
	})

	t.Run("already executed", func(t *testing.T) {
		g, led, tre, clock := setup(staticOracle{forAddr: big.NewInt(2), againstAddr: big.NewInt(1)})
		clock.set(end)
		_, err := g.Finalize(context.Background(), led, tre, 0)
		require.NoError(t, err)
		_, err = g.Finalize(context.Background(), led, tre, 0)
		require.ErrorIs(t, err, gov.ErrProposalExecuted)
		require.Equal(t, uint64(500), tre.payouts[benAddr])
	})
}

func TestFinalizeTransfersThenPersists(t *testing.T) {
	clock := manualClock(1_000_000)
	oracle := staticOracle{forAddr: big.NewInt(200), againstAddr: big.NewInt(100)}
	g := newGovernor(oracle, &clock)
	led := newMemLedger()
	tre := newMemTreasury(10_000)
	require.NoError(t, g.Submit(led, submitParams()))

	clock.set(uint64(1_000_000) + 10*gov.OneMinute)
	rec, err := g.Finalize(context.Background(), led, tre, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(200), rec.ForWeight)
	require.Equal(t, uint64(100), rec.AgainstWeight)

	require.Equal(t, uint64(9_500), tre.balance)
	require.Equal(t, uint64(500), tre.payouts[benAddr])

	prop, err := led.Proposal(0)
	require.NoError(t, err)
	require.True(t, prop.Executed)

	stored, err := led.VoteRecord(0)
	require.NoError(t, err)
	require.Equal(t, rec, stored)
}

func TestFinalizeTransferFailureLeavesState(t *testing.T) {
	clock := manualClock(1_000_000)
	oracle := staticOracle{forAddr: big.NewInt(200), againstAddr: big.NewInt(100)}
	g := newGovernor(oracle, &clock)
	led := newMemLedger()
	tre := newMemTreasury(10_000)
	require.NoError(t, g.Submit(led, submitParams()))

	clock.set(uint64(1_000_000) + 10*gov.OneMinute)
	tre.failWith = errors.New("rpc down")
	_, err := g.Finalize(context.Background(), led, tre, 0)
	require.ErrorIs(t, err, gov.ErrTransferFailed)

	prop, err := led.Proposal(0)
	require.NoError(t, err)
	require.False(t, prop.Executed)

	stored, err := led.VoteRecord(0)
	require.NoError(t, err)
	require.Equal(t, &types.VoteTally{}, stored)
	require.Equal(t, uint64(10_000), tre.balance)

	// the proposal stays open, a later finalize succeeds
	tre.failWith = nil
	_, err = g.Finalize(context.Background(), led, tre, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(500), tre.payouts[benAddr])
}

func TestCheckFinalizeIsReadOnly(t *testing.T) {
	clock := manualClock(1_000_000)
	oracle := staticOracle{forAddr: big.NewInt(200), againstAddr: big.NewInt(100)}
	g := newGovernor(oracle, &clock)
	led := newMemLedger()
	require.NoError(t, g.Submit(led, submitParams()))

	require.ErrorIs(t, g.CheckFinalize(context.Background(), led, 0), gov.ErrVotePeriodNotEnded)

	clock.set(uint64(1_000_000) + 10*gov.OneMinute)
	require.NoError(t, g.CheckFinalize(context.Background(), led, 0))

	prop, err := led.Proposal(0)
	require.NoError(t, err)
	require.False(t, prop.Executed)
}

func TestTallyAfterExecutionStaysLive(t *testing.T) {
	clock := manualClock(1_000_000)
	oracle := staticOracle{forAddr: big.NewInt(200), againstAddr: big.NewInt(100)}
	g := newGovernor(oracle, &clock)
	led := newMemLedger()
	tre := newMemTreasury(10_000)
	require.NoError(t, g.Submit(led, submitParams()))

	clock.set(uint64(1_000_000) + 10*gov.OneMinute)
	_, err := g.Finalize(context.Background(), led, tre, 0)
	require.NoError(t, err)

	oracle[forAddr] = big.NewInt(3)
	rec, err := g.Tally(context.Background(), led, 0)
	require.NoError(t, err)
	require.Equal(t, uint64(3), rec.ForWeight)
}

func TestTallyPropagatesMissingRecord(t *testing.T) {
	clock := manualClock(0)
	g := newGovernor(staticOracle{}, &clock)
	led := newMemLedger()
	require.NoError(t, g.Submit(led, submitParams()))
	delete(led.votes, 0)

	_, err := g.Tally(context.Background(), led, 0)
	require.ErrorIs(t, err, errVoteRecordMissing)
}
