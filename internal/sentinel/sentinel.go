package sentinel

import "errors"

// Store-level errors. Stores return these (optionally wrapped) and services
// translate them into domain errors exactly once.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrStateChanged = errors.New("state changed concurrently")
	ErrUnavailable  = errors.New("unavailable")
)
