// Package email finds a contact address inside submitted fields.
package email

import (
	"regexp"
	"strings"

	"github.com/klyr/lure/internal/payload"
)

var pattern = regexp.MustCompile(`(?i)[A-Z0-9._%+-]+@[A-Z0-9.-]+\.[A-Z]{2,}`)

var (
	// PriorityFields are checked first, in order.
	PriorityFields = []string{"email", "email_submitted", "contact_email", "e-mail", "email_address"}
	// TextFields are free-text fields that may embed an address.
	TextFields = []string{"message", "content", "comment", "username", "body", "description"}
)

// Extract returns the first address found in PriorityFields, then in
// TextFields, lower-cased. It returns "" when there is none.
func Extract(fields payload.Fields) string {
	if found := FirstIn(fields, PriorityFields); found != "" {
		return found
	}
	return FirstIn(fields, TextFields)
}

// FirstIn checks names in order and returns the first email-shaped substring.
func FirstIn(fields payload.Fields, names []string) string {
	for _, name := range names {
		value, ok := fields.Get(name)
		if !ok || value == "" {
			continue
		}
		if match := pattern.FindString(value); match != "" {
			return strings.ToLower(match)
		}
	}
	return ""
}
