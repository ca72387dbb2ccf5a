package tx

import (
	"encoding/json"

	"github.com/ethereum/go-ethereum/common"
)

// GovTx is the signed envelope for every governance action. Validator is
// the sender account index, Sig one ed25519 signature over SigData.
type GovTx struct {
	Version   uint8     `json:"version"`
	Type      GovTxType `json:"type"`
	Nonce     uint64    `json:"nonce"`
	Validator uint64    `json:"validator"`
	Tx        any       `json:"tx"`
	Sig       [][]byte  `json:"sig"`
}

// SubmitTx opens a funding proposal. Duration is the vote window in
// minutes. The for and against addresses are fixed at submission and
// weighed by the oracle whenever a tally is taken.
type SubmitTx struct {
	ForAddress     common.Address `json:"for_address"`
	AgainstAddress common.Address `json:"against_address"`
	Beneficiary    common.Address `json:"beneficiary"`
	Title          string         `json:"title"`
	Description    string         `json:"description"`
	Amount         uint64         `json:"amount"`
	Duration       uint64         `json:"duration"`
}

// FinalizeTx releases the funds of an accepted proposal after its window.
type FinalizeTx struct {
	Proposal uint64 `json:"proposal"`
}

type govTxTmpl[Tx any] struct {
	Version   uint8     `json:"version"`
	Type      GovTxType `json:"type"`
	Nonce     uint64    `json:"nonce"`
	Validator uint64    `json:"validator"`
	Tx        Tx        `json:"tx"`
	Sig       [][]byte  `json:"sig"`
}

// SigData is the byte string signatures cover: the tx with its Sig field
// replaced by ext, which carries the chain id for domain separation.
func (tx *GovTx) SigData(ext []byte) (dat []byte, err error) {
	ntx := *tx
	ntx.Sig = [][]byte{ext}
	dat, err = json.Marshal(ntx)
	return
}

func parseGovTxType(dat []byte) GovTxType {
	var tx struct {
		Type GovTxType `json:"type"`
	}
	err := json.Unmarshal(dat, &tx)
	if err != nil {
		return GovTxTypeUnknown
	}
	return tx.Type
}

func unmarshalGovTx[Tx any](dat []byte) (btx *GovTx, err error) {
	var txt govTxTmpl[Tx]
	err = json.Unmarshal(dat, &txt)
	if err != nil {
		return
	}
	btx = new(GovTx)
	btx.Version = txt.Version
	btx.Type = txt.Type
	btx.Nonce = txt.Nonce
	btx.Validator = txt.Validator
	btx.Tx = &txt.Tx
	btx.Sig = txt.Sig
	return
}

func UnmarshalGovTx(dat []byte) (btx *GovTx, err error) {
	tp := parseGovTxType(dat)
	switch tp {
	case GovTxTypeSubmit:
		return unmarshalGovTx[SubmitTx](dat)
	case GovTxTypeFinalize:
		return unmarshalGovTx[FinalizeTx](dat)
	default:
		err = ErrUnsupportedTxType
	}
	return
}

func MarshalGovTx(btx *GovTx) (dat []byte, err error) {
	return json.Marshal(btx)
}
