package testutil

import "errors"

// Common test errors
var (
	ErrStoreDown   = errors.New("rule store unavailable")
	ErrBrokerDown  = errors.New("broker not connected")
	ErrTrackerDown = errors.New("tracker unavailable")
)
