package app

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/state"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

func (app *AgoraApp) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	path := req.Path
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	q, ok := app.queriers[path]
	if !ok {
		res = &abcitypes.ResponseQuery{}
		res.Code = 404
		return
	}
	res, err = q.Query(ctx, req)
	return
}

type Querier interface {
	Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error)
}

// decodeIndex reads a big-endian id of at most 8 bytes; ok is false when
// the data is longer.
func decodeIndex(data []byte) (idx uint64, ok bool) {
	if len(data) > 8 {
		return 0, false
	}
	for _, v := range data {
		idx <<= 8
		idx |= uint64(v)
	}
	return idx, true
}

type AccountQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewAccountQuerier(db *state.StateDB, logger cmtlog.Logger) (q *AccountQuerier) {
	q = &AccountQuerier{
		db:     db,
		logger: logger,
	}
	return
}

func (q *AccountQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	var a *state.Account
	var height uint64
	if len(req.Data) == 20 {
		a, height, _ = q.db.GetAccountByAddress(req.Data)
	} else if idx, ok := decodeIndex(req.Data); ok {
		a, height, _ = q.db.GetAccountByIndex(idx)
	}
	if a != nil {
		res.Value, _ = json.Marshal(a)
		res.Height = int64(height)
	} else {
		res.Code = 1
	}
	return
}

type ValidatorQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewValidatorQuerier(db *state.StateDB, logger cmtlog.Logger) (q *ValidatorQuerier) {
	q = &ValidatorQuerier{
		db:     db,
		logger: logger,
	}
	return
}

func (q *ValidatorQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	validators, height, err := q.db.State().ValidatorAccounts()
	if err != nil {
		res.Code = 1
		return
	}
	res.Height = int64(height)
	res.Value, _ = json.Marshal(validators)
	return
}

type ProposalQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewProposalQuerier(db *state.StateDB, logger cmtlog.Logger) (q *ProposalQuerier) {
	q = &ProposalQuerier{
		db:     db,
		logger: logger,
	}
	return
}

func (q *ProposalQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	id, ok := decodeIndex(req.Data)
	if !ok {
		res.Code = 1
		res.Log = "malformed proposal id"
		return
	}
	prop, height, _ := q.db.GetProposal(id)
	if prop != nil {
		res.Value, _ = json.Marshal(prop)
		res.Height = int64(height)
	} else {
		res.Code = 1
	}
	return
}

// GovernorFactory binds a governor to the given state; the app supplies it
// so queriers tally with the configured oracle and block clock.
type GovernorFactory func(st *state.State) *gov.Governor

type TallyQuerier struct {
	db       *state.StateDB
	governor GovernorFactory
	logger   cmtlog.Logger
}

func NewTallyQuerier(db *state.StateDB, governor GovernorFactory, logger cmtlog.Logger) (q *TallyQuerier) {
	q = &TallyQuerier{
		db:       db,
		governor: governor,
		logger:   logger,
	}
	return
}

func (q *TallyQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	id, ok := decodeIndex(req.Data)
	if !ok {
		res.Code = 1
		res.Log = "malformed proposal id"
		return
	}
	st := q.db.State()
	rec, err := q.governor(st).Tally(ctx, st, id)
	if err != nil {
		q.logger.Error("tally query fail", "id", id, "err", err)
		res.Code = 1
		res.Log = err.Error()
		err = nil
		return
	}
	if rec == nil {
		res.Code = 1
		res.Log = gov.ErrProposalNotFound.Error()
		return
	}
	res.Value, _ = json.Marshal(rec)
	res.Height = int64(q.db.Header().Height)
	return
}

type CountQuerier struct {
	db     *state.StateDB
	logger cmtlog.Logger
}

func NewCountQuerier(db *state.StateDB, logger cmtlog.Logger) (q *CountQuerier) {
	q = &CountQuerier{
		db:     db,
		logger: logger,
	}
	return
}

func (q *CountQuerier) Query(ctx context.Context, req *abcitypes.RequestQuery) (res *abcitypes.ResponseQuery, err error) {
	res = &abcitypes.ResponseQuery{}
	count, height := q.db.ProposalCount()
	res.Value, _ = json.Marshal(map[string]uint64{"count": count})
	res.Height = int64(height)
	return
}
