// Package phone normalises dialable numbers. No business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// DefaultRegion is used when a number carries no country prefix.
const DefaultRegion = "US"

// NormalizeE164 formats a number to E.164 using region for national numbers.
// Unparseable or invalid input comes back trimmed, unchanged.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}
	if region == "" {
		region = DefaultRegion
	}

	number, err := phonenumbers.Parse(trimmed, region)
	if err != nil {
		return trimmed
	}
	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}
	return phonenumbers.Format(number, phonenumbers.E164)
}

// IsClientAddress reports whether addr names a browser softphone ("client:<identity>").
func IsClientAddress(addr string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(addr)), "client:")
}

// Same reports whether a and b denote the same number once normalised.
// Client addresses compare case-insensitively as strings.
func Same(a, b, region string) bool {
	a, b = strings.TrimSpace(a), strings.TrimSpace(b)
	if a == "" || b == "" {
		return false
	}
	if IsClientAddress(a) || IsClientAddress(b) {
		return strings.EqualFold(a, b)
	}
	return NormalizeE164(a, region) == NormalizeE164(b, region)
}
