package app_test

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	abcitypes "github.com/cometbft/cometbft/abci/types"
	"github.com/cometbft/cometbft/crypto/ed25519"
	"github.com/cometbft/cometbft/libs/log"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"github.com/calehh/agora-app/app"
	"github.com/calehh/agora-app/config"
	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/state"
	"github.com/calehh/agora-app/tx"
	"github.com/calehh/agora-app/types"
)

var (
	forAddr     = common.HexToAddress("0x1111111111111111111111111111111111111111")
	againstAddr = common.HexToAddress("0x2222222222222222222222222222222222222222")
	benAddr     = common.HexToAddress("0x3333333333333333333333333333333333333333")
)

const chainID = "agora-test-1"

type testNode struct {
	app  *app.AgoraApp
	priv ed25519.PrivKey
}

func newTestNode(t *testing.T, treasury uint64) *testNode {
	t.Helper()
	cfg := config.NewAgoraAppConfig(t.TempDir())
	a, err := app.NewAgoraApp(cfg, log.TestingLogger())
	require.NoError(t, err)
	t.Cleanup(a.Stop)

	priv := ed25519.GenPrivKey()
	appState, err := json.Marshal(types.GenesisAppState{
		TreasuryBalance: treasury,
		Balances: []types.GenesisBalance{
			{Address: forAddr.Hex(), Amount: 200},
			{Address: againstAddr.Hex(), Amount: 100},
		},
	})
	require.NoError(t, err)

	res, err := a.InitChain(context.Background(), &abcitypes.RequestInitChain{
		ChainId: chainID,
		Time:    time.UnixMilli(1_000_000),
		Validators: []abcitypes.ValidatorUpdate{
			abcitypes.Ed25519ValidatorUpdate(priv.PubKey().Bytes(), types.DefaultPower),
		},
		AppStateBytes: appState,
	})
	require.NoError(t, err)
	require.NotEmpty(t, res.AppHash)
	return &testNode{app: a, priv: priv}
}

func (n *testNode) sign(t *testing.T, gtx *tx.GovTx) []byte {
	t.Helper()
	dat, err := gtx.SigData([]byte(chainID))
	require.NoError(t, err)
	sig, err := n.priv.Sign(dat)
	require.NoError(t, err)
	gtx.Sig = [][]byte{sig}
	raw, err := tx.MarshalGovTx(gtx)
	require.NoError(t, err)
	return raw
}

func (n *testNode) submitRaw(t *testing.T, nonce uint64) []byte {
	return n.sign(t, &tx.GovTx{
		Version:   tx.GovTxVersion1,
		Type:      tx.GovTxTypeSubmit,
		Nonce:     nonce,
		Validator: state.StartAccountIdx,
		Tx: &tx.SubmitTx{
			ForAddress:     forAddr,
			AgainstAddress: againstAddr,
			Beneficiary:    benAddr,
			Title:          "fund the relay",
			Description:    "one-time infra payment",
			Amount:         500,
			Duration:       10,
		},
	})
}

func (n *testNode) finalizeRaw(t *testing.T, nonce uint64, proposal uint64) []byte {
	return n.sign(t, &tx.GovTx{
		Version:   tx.GovTxVersion1,
		Type:      tx.GovTxTypeFinalize,
		Nonce:     nonce,
		Validator: state.StartAccountIdx,
		Tx:        &tx.FinalizeTx{Proposal: proposal},
	})
}

func (n *testNode) applyBlock(t *testing.T, height int64, at time.Time, txs [][]byte) *abcitypes.ResponseFinalizeBlock {
	t.Helper()
	ctx := context.Background()
	res, err := n.app.FinalizeBlock(ctx, &abcitypes.RequestFinalizeBlock{
		Height: height,
		Time:   at,
		Txs:    txs,
		Hash:   bytes.Repeat([]byte{byte(height)}, 32),
	})
	require.NoError(t, err)
	_, err = n.app.Commit(ctx, &abcitypes.RequestCommit{})
	require.NoError(t, err)
	return res
}

func (n *testNode) query(t *testing.T, path string, data []byte) *abcitypes.ResponseQuery {
	t.Helper()
	res, err := n.app.Query(context.Background(), &abcitypes.RequestQuery{Path: path, Data: data})
	require.NoError(t, err)
	return res
}

func TestProposalLifecycle(t *testing.T) {
	n := newTestNode(t, 10_000)
	ctx := context.Background()

	raw := n.submitRaw(t, 0)
	chk, err := n.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: raw})
	require.NoError(t, err)
	require.Zero(t, chk.Code)

	blk := n.applyBlock(t, 1, time.UnixMilli(1_000_000), [][]byte{raw})
	require.Len(t, blk.TxResults, 1)
	require.Zero(t, blk.TxResults[0].Code)
	require.Len(t, blk.TxResults[0].Events, 1)
	ev := types.DecodeEventProposal(blk.TxResults[0].Events[0])
	require.NotNil(t, ev)
	require.Equal(t, uint64(0), ev.Proposal)
	require.Equal(t, uint64(1_000_000), ev.VoteStart)
	require.Equal(t, uint64(1_600_000), ev.VoteEnd)
	require.Empty(t, blk.ValidatorUpdates)

	res := n.query(t, "/count/", nil)
	require.Zero(t, res.Code)
	var count map[string]uint64
	require.NoError(t, json.Unmarshal(res.Value, &count))
	require.Equal(t, uint64(1), count["count"])

	res = n.query(t, "/proposals/", []byte{0})
	require.Zero(t, res.Code)
	var prop types.Proposal
	require.NoError(t, json.Unmarshal(res.Value, &prop))
	require.Equal(t, benAddr, prop.Beneficiary)
	require.False(t, prop.Executed)

	// tally samples genesis balances through the state oracle
	res = n.query(t, "/tally/", []byte{0})
	require.Zero(t, res.Code)
	var tally types.VoteTally
	require.NoError(t, json.Unmarshal(res.Value, &tally))
	require.Equal(t, uint64(200), tally.ForWeight)
	require.Equal(t, uint64(100), tally.AgainstWeight)

	// the mempool refuses finalize while the window is open
	finRaw := n.finalizeRaw(t, 1, 0)
	chk, err = n.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: finRaw})
	require.NoError(t, err)
	require.Equal(t, uint32(1), chk.Code)
	require.Equal(t, gov.ErrVotePeriodNotEnded.Error(), chk.Log)

	// once block time passes the window it applies
	blk = n.applyBlock(t, 2, time.UnixMilli(1_600_000), [][]byte{finRaw})
	require.Len(t, blk.TxResults, 1)
	require.Zero(t, blk.TxResults[0].Code)
	require.Len(t, blk.TxResults[0].Events, 1)
	exec := types.DecodeEventExecution(blk.TxResults[0].Events[0])
	require.NotNil(t, exec)
	require.Equal(t, uint64(0), exec.Proposal)
	require.Equal(t, uint64(200), exec.ForWeight)
	require.Equal(t, uint64(100), exec.AgainstWeight)

	res = n.query(t, "/accounts/", benAddr.Bytes())
	require.Zero(t, res.Code)
	var ben state.Account
	require.NoError(t, json.Unmarshal(res.Value, &ben))
	require.Equal(t, uint64(500), ben.Balance)

	res = n.query(t, "/accounts/", state.TreasuryAddress.Bytes())
	require.Zero(t, res.Code)
	var tre state.Account
	require.NoError(t, json.Unmarshal(res.Value, &tre))
	require.Equal(t, uint64(9_500), tre.Balance)

	res = n.query(t, "/proposals/", []byte{0})
	require.Zero(t, res.Code)
	require.NoError(t, json.Unmarshal(res.Value, &prop))
	require.True(t, prop.Executed)

	// replaying the release is refused
	chk, err = n.app.CheckTx(ctx, &abcitypes.RequestCheckTx{Tx: n.finalizeRaw(t, 2, 0)})
	require.NoError(t, err)
	require.Equal(t, uint32(1), chk.Code)
	require.Equal(t, gov.ErrProposalExecuted.Error(), chk.Log)
}

func TestProcessProposalGatesBlocks(t *testing.T) {
	n := newTestNode(t, 10_000)
	ctx := context.Background()

	res, err := n.app.ProcessProposal(ctx, &abcitypes.RequestProcessProposal{
		Height: 1,
		Time:   time.UnixMilli(1_000_000),
	})
	require.NoError(t, err)
	require.Equal(t, abcitypes.ResponseProcessProposal_ACCEPT, res.Status)

	// finalizing an unknown proposal cannot make it into a block
	res, err = n.app.ProcessProposal(ctx, &abcitypes.RequestProcessProposal{
		Height: 1,
		Time:   time.UnixMilli(1_000_000),
		Txs:    [][]byte{n.finalizeRaw(t, 0, 7)},
	})
	require.NoError(t, err)
	require.Equal(t, abcitypes.ResponseProcessProposal_REJECT, res.Status)

	res, err = n.app.ProcessProposal(ctx, &abcitypes.RequestProcessProposal{
		Height: 1,
		Time:   time.UnixMilli(1_000_000),
		Txs:    [][]byte{n.submitRaw(t, 0)},
	})
	require.NoError(t, err)
	require.Equal(t, abcitypes.ResponseProcessProposal_ACCEPT, res.Status)
}

func TestPrepareProposalFiltersInvalid(t *testing.T) {
	n := newTestNode(t, 10_000)
	ctx := context.Background()

	good := n.submitRaw(t, 0)
	badNonce := n.submitRaw(t, 5)
	garbage := []byte(`{"type":9}`)

	res, err := n.app.PrepareProposal(ctx, &abcitypes.RequestPrepareProposal{
		Height: 1,
		Time:   time.UnixMilli(1_000_000),
		Txs:    [][]byte{garbage, badNonce, good, good},
	})
	require.NoError(t, err)
	require.Equal(t, [][]byte{good}, res.Txs)
}

func TestExecutionShiftsValidatorPower(t *testing.T) {
	n := newTestNode(t, 2_000_000_000)

	// the beneficiary is the validator account itself
	valAddr := common.BytesToAddress(n.priv.PubKey().Address())
	raw := n.sign(t, &tx.GovTx{
		Version:   tx.GovTxVersion1,
		Type:      tx.GovTxTypeSubmit,
		Nonce:     0,
		Validator: state.StartAccountIdx,
		Tx: &tx.SubmitTx{
			ForAddress:     forAddr,
			AgainstAddress: againstAddr,
			Beneficiary:    valAddr,
			Title:          "validator top-up",
			Amount:         1_000_000_000,
			Duration:       1,
		},
	})
	blk := n.applyBlock(t, 1, time.UnixMilli(1_000_000), [][]byte{raw})
	require.Zero(t, blk.TxResults[0].Code)
	require.Empty(t, blk.ValidatorUpdates)

	blk = n.applyBlock(t, 2, time.UnixMilli(1_060_000), [][]byte{n.finalizeRaw(t, 1, 0)})
	require.Zero(t, blk.TxResults[0].Code)
	require.Len(t, blk.ValidatorUpdates, 1)
	require.Equal(t, int64(types.DefaultPower+1), blk.ValidatorUpdates[0].Power)
	require.Len(t, blk.Events, 1)
	require.Equal(t, types.EventUpdateValidatorType, blk.Events[0].Type)
}
