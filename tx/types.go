package tx

import (
	"errors"
)

type GovTxType uint8

const (
	GovTxTypeUnknown  GovTxType = 0
	GovTxTypeSubmit   GovTxType = 1
	GovTxTypeFinalize GovTxType = 2
)

const (
	GovTxVersion1 uint8 = 1
)

var (
	ErrInvalidTx         = errors.New("invalid tx")
	ErrUnsupportedTxType = errors.New("unsupported tx type")
	ErrUnmatchedTxType   = errors.New("unmatched tx type")

	ErrUnsupportedTxVersion = errors.New("unsupported tx version")
)
