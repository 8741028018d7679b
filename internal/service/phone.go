package service

import (
	"strings"

	"github.com/ttacon/libphonenumber"
)

// normalizePhone formats a valid number as E.164 for the configured region.
// Anything that does not parse is kept as typed.
func normalizePhone(raw string, region string) string {
	phone := strings.TrimSpace(raw)
	if phone == "" || region == "" {
		return phone
	}

	p, err := libphonenumber.Parse(phone, region)
	if err != nil {
		return phone
	}
	if !libphonenumber.IsValidNumber(p) {
		return phone
	}
	return libphonenumber.Format(p, libphonenumber.E164)
}
