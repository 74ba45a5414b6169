package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrDuplicate         = errors.New("duplicate record")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrRateLimited       = errors.New("rate limited")
	ErrAlreadyRunning    = errors.New("already running")
	ErrInvalidTransition = errors.New("invalid state transition")
	ErrLockHeld          = errors.New("lock already held")
)
