package broadcast

import "errors"

var (
	ErrAlreadyInProgress   = errors.New("a broadcast is already in progress")
	ErrBroadcastInProgress = errors.New("cannot recall while a broadcast is in progress")
	ErrRecallInProgress    = errors.New("a recall is in progress")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrStopped             = errors.New("broadcast engine is not running")
)
