package handler

import (
	"context"

	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/state"
	"github.com/calehh/agora-app/tx"
	"github.com/calehh/agora-app/types"
	abcitypes "github.com/cometbft/cometbft/abci/types"
	cmtlog "github.com/cometbft/cometbft/libs/log"
)

type FinalizeTxHandler struct {
	logger cmtlog.Logger

	validatorSet map[uint64]bool
}

func NewFinalizeTxHandler(logger cmtlog.Logger) (h *FinalizeTxHandler) {
	logger = logger.With("module", "finalizeTx")
	h = &FinalizeTxHandler{
		logger:       logger,
		validatorSet: make(map[uint64]bool),
	}
	return
}

func (h *FinalizeTxHandler) Check(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ResponseCheckTx, err error) {
	res = &abcitypes.ResponseCheckTx{Code: 0}
	ftx := btx.Tx.(*tx.FinalizeTx)
	err1 := gv.CheckFinalize(ctx, st, ftx.Proposal)
	if err1 != nil {
		h.logger.Info("CheckTx FinalizeTx fail", "err", err1)
		res.Code = 1
		res.Log = err1.Error()
	}
	return
}

func (h *FinalizeTxHandler) NewContext(ctx context.Context) {
	h.validatorSet = make(map[uint64]bool)
}

func (h *FinalizeTxHandler) handle(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	if _, ok := h.validatorSet[btx.Validator]; ok {
		return nil, state.ErrOneActionInOneBlock
	}
	ftx := btx.Tx.(*tx.FinalizeTx)
	rec, err := gv.Finalize(ctx, st, st, ftx.Proposal)
	if err != nil {
		return nil, err
	}
	err = st.BumpNonce(btx.Validator)
	if err != nil {
		return nil, err
	}
	h.validatorSet[btx.Validator] = true
	prop, err := st.Proposal(ftx.Proposal)
	if err != nil {
		return nil, err
	}
	res = &abcitypes.ExecTxResult{}
	if prop != nil && rec != nil {
		event := &types.EventExecution{
			Proposal:      ftx.Proposal,
			Caller:        btx.Validator,
			Beneficiary:   prop.Beneficiary.Hex(),
			Amount:        prop.Amount,
			ForWeight:     rec.ForWeight,
			AgainstWeight: rec.AgainstWeight,
		}
		res.Events = []abcitypes.Event{types.EncodeEventExecution(event)}
	}
	return
}

func (h *FinalizeTxHandler) Prepare(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, gv, st, btx)
}

func (h *FinalizeTxHandler) Process(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, gv, st, btx)
}
