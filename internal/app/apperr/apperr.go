package apperr

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrUnknownNetwork    = errors.New("unknown network or provider")
	ErrFeatureDisabled   = errors.New("feature disabled")
	ErrMissingField      = errors.New("missing required field")
)
