package model

import "errors"

// Common errors used across the application
var (
	// User errors
	ErrDuplicateUsername = errors.New("username already registered")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrUnknownPlayer     = errors.New("unknown player")

	// Match errors
	ErrSamePlayer    = errors.New("a player cannot play against themselves")
	ErrInvalidResult = errors.New("invalid match result")
	ErrEmptyLedger   = errors.New("no matches recorded")

	// Storage errors
	ErrStorageUnavailable = errors.New("storage unavailable")
	ErrWriteConflict      = errors.New("concurrent write conflict")
)
