package routing

import "errors"

var (
	// ErrRuleNotFound is returned when a routing rule does not exist
	ErrRuleNotFound = errors.New("routing rule not found")

	// ErrInvalidRule is returned when a routing rule fails validation
	ErrInvalidRule = errors.New("invalid routing rule")
)
