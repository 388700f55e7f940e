// Package correlation threads an opaque token from a decoy GET to the POST
// that follows it. Tokens are advisory: whatever a client echoes back is
// stored verbatim and never checked against earlier events.
package correlation

import (
	"github.com/google/uuid"

	"github.com/klyr/lure/internal/payload"
)

// DefaultField is the hidden form field carrying the token.
const DefaultField = "ctoken"

// Issue returns a fresh globally unique token.
func Issue() string {
	return uuid.NewString()
}

// Accept returns the token a client supplied in field exactly as sent, or ""
// when absent. Lookups by token only work on the untouched value.
func Accept(fields payload.Fields, field string) string {
	value, _ := fields.Get(field)
	return value
}

// Valid reports whether token has the shape of an issued token. It is for
// analytics only and never gates storage.
func Valid(token string) bool {
	_, err := uuid.Parse(token)
	return err == nil && len(token) == 36
}
