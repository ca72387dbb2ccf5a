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

type SubmitTxHandler struct {
	logger cmtlog.Logger

	validatorSet map[uint64]bool
}

func NewSubmitTxHandler(logger cmtlog.Logger) (h *SubmitTxHandler) {
	logger = logger.With("module", "submitTx")
	h = &SubmitTxHandler{
		logger:       logger,
		validatorSet: make(map[uint64]bool),
	}
	return
}

func submitParams(stx *tx.SubmitTx) gov.SubmitParams {
	return gov.SubmitParams{
		ForAddress:      stx.ForAddress,
		AgainstAddress:  stx.AgainstAddress,
		Beneficiary:     stx.Beneficiary,
		Title:           stx.Title,
		Description:     stx.Description,
		Amount:          stx.Amount,
		DurationMinutes: stx.Duration,
	}
}

func (h *SubmitTxHandler) Check(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ResponseCheckTx, err error) {
	res = &abcitypes.ResponseCheckTx{Code: 0}
	stx := btx.Tx.(*tx.SubmitTx)
	err1 := gov.ValidateSubmit(submitParams(stx))
	if err1 != nil {
		h.logger.Info("CheckTx SubmitTx fail", "err", err1)
		res.Code = 1
		res.Log = err1.Error()
	}
	return
}

func (h *SubmitTxHandler) NewContext(ctx context.Context) {
	h.validatorSet = make(map[uint64]bool)
}

func (h *SubmitTxHandler) handle(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	if _, ok := h.validatorSet[btx.Validator]; ok {
		return nil, state.ErrOneActionInOneBlock
	}
	stx := btx.Tx.(*tx.SubmitTx)
	a, err := st.GetAccount(btx.Validator)
	if err != nil {
		return nil, err
	}
	if a == nil {
		err = state.ErrTxValidatorNotFound
		return
	}
	err = gv.Submit(st, submitParams(stx))
	if err != nil {
		return nil, err
	}
	err = st.BumpNonce(btx.Validator)
	if err != nil {
		return nil, err
	}
	h.validatorSet[btx.Validator] = true
	id := st.ProposalCount() - 1
	prop, err := st.Proposal(id)
	if err != nil {
		return nil, err
	}
	res = &abcitypes.ExecTxResult{}
	if prop != nil {
		event := &types.EventProposal{
			Proposal:        id,
			Proposer:        btx.Validator,
			ProposerAddress: a.Address(),
			Beneficiary:     prop.Beneficiary.Hex(),
			Amount:          prop.Amount,
			VoteStart:       prop.VoteStart,
			VoteEnd:         prop.VoteEnd,
			Title:           prop.Title,
		}
		res.Events = []abcitypes.Event{types.EncodeEventProposal(event)}
	}
	return
}

func (h *SubmitTxHandler) Prepare(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, gv, st, btx)
}

func (h *SubmitTxHandler) Process(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error) {
	return h.handle(ctx, gv, st, btx)
}
