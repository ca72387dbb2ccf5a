package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/calehh/agora-app/config"
	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/oracle"
	"github.com/calehh/agora-app/state"
	"github.com/calehh/agora-app/tx"
	"github.com/calehh/agora-app/tx/handler"
	"github.com/calehh/agora-app/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
	"github.com/cometbft/cometbft/store"
	"github.com/ethereum/go-ethereum/common"
)

type finalizeBlock struct {
	Height uint64
	Hash   common.Hash
}

func (b *finalizeBlock) Set(blk *abcitypes.RequestFinalizeBlock) {
	b.Height = uint64(blk.Height)
	b.Hash = common.BytesToHash(blk.Hash)
}

// blockClock is the governance time source: the block time handed in by
// consensus, unix milliseconds. ABCI calls are serialized by the local
// client, so a plain field suffices.
type blockClock struct {
	millis uint64
}

func (c *blockClock) NowMillis() uint64 {
	return c.millis
}

func (c *blockClock) Set(t time.Time) {
	c.millis = uint64(t.UnixMilli())
}

var _ abcitypes.Application = &AgoraApp{}
var _ gov.Clock = &blockClock{}

type AgoraApp struct {
	cfg    *config.AgoraAppConfig
	logger cmtlog.Logger

	db        *state.StateDB
	lastBlk   finalizeBlock
	clock     *blockClock
	extOracle gov.WeightOracle
	txHdlrs   map[tx.GovTxType]handler.TxHandler
	queriers  map[string]Querier

	st *state.State
}

func NewAgoraApp(cfg *config.AgoraAppConfig, logger cmtlog.Logger) (app *AgoraApp, err error) {
	logger = logger.With("module", "app")

	dir := cfg.Home + "/data"
	db, err := state.NewStateDB(dir, logger)
	if err != nil {
		return nil, err
	}

	app = &AgoraApp{
		cfg:      cfg,
		logger:   logger,
		db:       db,
		clock:    &blockClock{},
		txHdlrs:  make(map[tx.GovTxType]handler.TxHandler),
		queriers: make(map[string]Querier),
	}
	app.extOracle, err = newExternalOracle(cfg, db, logger)
	if err != nil {
		return nil, err
	}
	app.registerTxHandler()
	app.registerQuerier()
	return
}

// newExternalOracle returns nil in state mode: tallies then read weights
// from the executing state itself.
func newExternalOracle(cfg *config.AgoraAppConfig, db *state.StateDB, logger cmtlog.Logger) (gov.WeightOracle, error) {
	switch cfg.OracleMode {
	case "", config.OracleModeState:
		return nil, nil
	case config.OracleModeERC20:
		token := cfg.OracleToken
		if token == "" {
			token = db.TokenAddress()
		}
		return oracle.NewERC20Oracle(cfg.OracleRPC, common.HexToAddress(token))
	case config.OracleModeHTTP:
		return oracle.NewHTTPOracle(cfg.OracleRPC, logger), nil
	default:
		return nil, fmt.Errorf("unknown oracle mode %q", cfg.OracleMode)
	}
}

// governorFor binds a governor to the state being executed. In state mode
// the oracle samples that same state, so a transfer earlier in the block is
// visible to tallies later in it.
func (app *AgoraApp) governorFor(st *state.State) *gov.Governor {
	o := app.extOracle
	if o == nil {
		o = state.NewBalanceOracle(st)
	}
	return gov.New(o, app.clock, app.cfg.WeightBits, app.logger)
}

func (app *AgoraApp) Start(bs *store.BlockStore) {
	height := app.db.Header().Height
	if height > 0 {
		blk := bs.LoadBlock(int64(height))
		if blk == nil {
			panic("unexpected BlockStore")
		}
		app.lastBlk.Height = height
		app.lastBlk.Hash = common.BytesToHash(blk.Hash())
		app.clock.Set(blk.Time)
	}
}

func (app *AgoraApp) Stop() {
	err := app.db.Close()
	if err != nil {
		app.logger.Error("close db fail", "err", err)
	}
	app.logger.Info("agora app stopped")
}

func (app *AgoraApp) registerTxHandler() {
	app.txHdlrs = map[tx.GovTxType]handler.TxHandler{
		tx.GovTxTypeSubmit:   handler.NewSubmitTxHandler(app.logger),
		tx.GovTxTypeFinalize: handler.NewFinalizeTxHandler(app.logger),
	}
}

func (app *AgoraApp) registerQuerier() {
	app.queriers["/accounts/"] = NewAccountQuerier(app.db, app.logger)
	app.queriers["/validators/"] = NewValidatorQuerier(app.db, app.logger)
	app.queriers["/proposals/"] = NewProposalQuerier(app.db, app.logger)
	app.queriers["/tally/"] = NewTallyQuerier(app.db, app.governorFor, app.logger)
	app.queriers["/count/"] = NewCountQuerier(app.db, app.logger)
}

func (app *AgoraApp) InitChain(_ context.Context, chain *abcitypes.RequestInitChain) (res *abcitypes.ResponseInitChain, err error) {
	st := app.db.NewState()
	st.SetChainId(chain.ChainId)
	app.clock.Set(chain.Time)
	for _, v := range chain.Validators {
		var acnt state.Account
		acnt.SetPubKey(v.PubKey.GetEd25519())
		acnt.Balance = uint64(v.Power) * config.UnitsPerPower(0)
		err = st.AddAccount(&acnt)
		if err != nil {
			app.logger.Error("InitChain add account fail", "err", err)
			return nil, err
		}
	}
	appState := types.GenesisAppState{}
	if len(chain.AppStateBytes) > 0 {
		err = json.Unmarshal(chain.AppStateBytes, &appState)
		if err != nil {
			app.logger.Error("InitChain parse app state fail", "err", err)
			return nil, err
		}
	}
	if appState.TreasuryBalance == 0 {
		appState.TreasuryBalance = types.DefaultTreasuryBalance
	}
	_, err = st.Credit(state.TreasuryAddress.Bytes(), appState.TreasuryBalance)
	if err != nil {
		app.logger.Error("InitChain fund treasury fail", "err", err)
		return nil, err
	}
	for _, b := range appState.Balances {
		addr := common.HexToAddress(b.Address)
		_, err = st.Credit(addr.Bytes(), b.Amount)
		if err != nil {
			app.logger.Error("InitChain seed balance fail", "address", b.Address, "err", err)
			return nil, err
		}
	}
	if appState.TokenAddress != "" {
		st.SetTokenAddress(appState.TokenAddress)
	}
	var h common.Hash
	_, err = st.Update()
	if err != nil {
		app.logger.Error("InitChain update state fail", "err", err)
		return nil, err
	}
	h, err = app.db.SetState(st)
	if err != nil {
		app.logger.Error("InitChain apply state fail", "err", err)
		return nil, err
	}
	return &abcitypes.ResponseInitChain{
		AppHash: h.Bytes(),
	}, nil
}

func (app *AgoraApp) Info(ctx context.Context, info *abcitypes.RequestInfo) (*abcitypes.ResponseInfo, error) {
	header := app.db.Header()
	return &abcitypes.ResponseInfo{
		LastBlockHeight:  int64(header.Height),
		LastBlockAppHash: header.Hash,
	}, nil
}

func (app *AgoraApp) ExtendVote(_ context.Context, extend *abcitypes.RequestExtendVote) (*abcitypes.ResponseExtendVote, error) {
	return &abcitypes.ResponseExtendVote{}, nil
}

func (app *AgoraApp) VerifyVoteExtension(_ context.Context, verify *abcitypes.RequestVerifyVoteExtension) (*abcitypes.ResponseVerifyVoteExtension, error) {
	return &abcitypes.ResponseVerifyVoteExtension{}, nil
}

func (app *AgoraApp) ApplySnapshotChunk(context.Context, *abcitypes.RequestApplySnapshotChunk) (*abcitypes.ResponseApplySnapshotChunk, error) {
	return nil, nil
}

func (app *AgoraApp) ListSnapshots(context.Context, *abcitypes.RequestListSnapshots) (*abcitypes.ResponseListSnapshots, error) {
	return nil, nil
}

func (app *AgoraApp) LoadSnapshotChunk(context.Context, *abcitypes.RequestLoadSnapshotChunk) (*abcitypes.ResponseLoadSnapshotChunk, error) {
	return nil, nil
}

func (app *AgoraApp) OfferSnapshot(context.Context, *abcitypes.RequestOfferSnapshot) (*abcitypes.ResponseOfferSnapshot, error) {
	return nil, nil
}
