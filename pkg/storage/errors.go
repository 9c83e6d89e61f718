package storage

import "errors"

// Storage error types
var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidData       = errors.New("invalid data")
	ErrStorageClosed     = errors.New("storage is closed")
	ErrTransactionClosed = errors.New("transaction is not active")
	ErrDanglingEndpoint  = errors.New("edge endpoint does not resolve to a node")
)
