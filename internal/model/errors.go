package model

import "errors"

// Error taxonomy shared by the store, ledger, and API layers.
// Callers match with errors.Is; the API maps each to an HTTP status.
// StorageUnavailable is the only error safe to retry.
var (
	ErrInvalidArgument        = errors.New("invalid argument")
	ErrUnauthorized           = errors.New("unauthorized")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrNotFound               = errors.New("not found")
	ErrStorageUnavailable     = errors.New("storage unavailable")
)
