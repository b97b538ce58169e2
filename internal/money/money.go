// Package money provides minor-unit (integer cent) arithmetic and
// display formatting for euro amounts.
package money

import (
	"fmt"
	"math"
	"strings"
)

// ToMinorUnits converts a major-unit amount to integer cents, rounding
// to the nearest cent. Fractional cents are never carried forward.
func ToMinorUnits(major float64) int64 {
	return int64(math.Round(major * 100))
}

// Format renders a minor-unit amount as a Finnish-style decimal string
// with two fraction digits and a euro suffix, e.g. 5000 -> "50,00 €".
// The rendering round-trips the integer value exactly.
func Format(minor int64) string {
	sign := ""
	if minor < 0 {
		sign = "-"
		minor = -minor
	}
	return fmt.Sprintf("%s%d,%02d €", sign, minor/100, minor%100)
}

// providerNames maps gateway provider identifiers to display names
// used in audit messages.
var providerNames = map[string]string{
	"paytrail":      "Paytrail",
	"osuuspankki":   "OP",
	"nordea":        "Nordea",
	"handelsbanken": "Handelsbanken",
	"pop":           "POP Pankki",
	"aktia":         "Aktia",
	"saastopankki":  "Säästöpankki",
	"omasp":         "Oma Säästöpankki",
	"spankki":       "S-pankki",
	"alandsbanken":  "Ålandsbanken",
	"danske":        "Danske Bank",
	"creditcard":    "Visa / Mastercard",
	"email refund":  "email refund",
}

// ProviderName maps a provider identifier to a display name; unknown
// ids pass through unchanged.
func ProviderName(id string) string {
	if name, ok := providerNames[strings.ToLower(id)]; ok {
		return name
	}
	return id
}
