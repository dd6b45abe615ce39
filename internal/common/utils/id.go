// Package utils provides small helpers shared across the conversation router:
// identifier generation, connection retries, extended duration parsing and
// nullable column conversion.
package utils

import (
	"github.com/google/uuid"
	"github.com/lucsky/cuid"
)

// NewRuleID returns a collision-resistant identifier for a routing rule.
//
// Rule IDs are cuids so they sort roughly by creation time and are safe to
// expose in URLs.
func NewRuleID() string {
	return cuid.New()
}

// NewRequestID returns a random UUID used to correlate log lines for one request.
func NewRequestID() string {
	return uuid.NewString()
}

// NewEventID returns a random UUID identifying one published routing event.
func NewEventID() string {
	return uuid.NewString()
}
