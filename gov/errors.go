package gov

import "errors"

var (
	ErrAmountZero          = errors.New("amount should not be zero")
	ErrDurationOutOfRange  = errors.New("vote duration out of range")
	ErrProposalNotFound    = errors.New("proposal not found")
	ErrProposalExecuted    = errors.New("proposal already executed")
	ErrVotePeriodNotEnded  = errors.New("vote period not ended")
	ErrProposalNotAccepted = errors.New("proposal not accepted")
	ErrTransferFailed      = errors.New("treasury transfer failed")

	// ErrVotePeriodEnded belongs to the public taxonomy for callers that
	// gate on an open window. No operation in this package returns it.
	ErrVotePeriodEnded = errors.New("vote period ended")
)
