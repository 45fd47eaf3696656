package domain

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrInvalidPosition = errors.New("invalid position parameters")
	ErrPositionClosed  = errors.New("position already closed")
	ErrPriceFetch      = errors.New("price fetch failed")
	ErrSwapFailed      = errors.New("swap execution failed")
	ErrAlreadyRunning  = errors.New("already running")
	ErrLockHeld        = errors.New("lock already held")
)
