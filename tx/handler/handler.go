package handler

import (
	"context"

	"github.com/calehh/agora-app/gov"
	"github.com/calehh/agora-app/state"
	"github.com/calehh/agora-app/tx"
	abcitypes "github.com/cometbft/cometbft/abci/types"
)

// TxHandler applies one governance tx type. NewContext resets per-block
// bookkeeping; the host calls it once before each proposal or finalize
// round. The governor passed in is bound to the state being executed.
type TxHandler interface {
	Check(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ResponseCheckTx, err error)
	NewContext(ctx context.Context)
	Prepare(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error)
	Process(ctx context.Context, gv *gov.Governor, st *state.State, btx *tx.GovTx) (res *abcitypes.ExecTxResult, err error)
}
