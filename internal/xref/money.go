package xref

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	dollarAmountRe = regexp.MustCompile(`(?i)\$\s*([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion|thousand|m|b|k)?\b`)
	wordAmountRe   = regexp.MustCompile(`(?i)\b([0-9][0-9,]*(?:\.[0-9]+)?)\s*(million|billion)\b`)
)

// ParseMoney extracts a dollar amount from free text, returned in whole
// dollars. It recognizes "$30 million", "$4.5M", "$800,000" and the bare
// word form "30 million". A number with neither a dollar sign nor a
// magnitude word is not an amount; the first amount in the text wins.
func ParseMoney(text string) (float64, bool) {
	if m := dollarAmountRe.FindStringSubmatch(text); m != nil {
		return applyMagnitude(m[1], m[2])
	}
	if m := wordAmountRe.FindStringSubmatch(text); m != nil {
		return applyMagnitude(m[1], m[2])
	}
	return 0, false
}

// FormatMoney renders a dollar amount compactly: "$1.5B", "$50.0M",
// "$800K". The inverse direction of ParseMoney, for reports.
func FormatMoney(v float64) string {
	switch {
	case v >= 1e9:
		return fmt.Sprintf("$%.1fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("$%.1fM", v/1e6)
	case v >= 1e3:
		return fmt.Sprintf("$%.0fK", v/1e3)
	default:
		return fmt.Sprintf("$%.0f", v)
	}
}

func applyMagnitude(number, magnitude string) (float64, bool) {
	v, err := strconv.ParseFloat(strings.ReplaceAll(number, ",", ""), 64)
	if err != nil {
		return 0, false
	}
	switch strings.ToLower(magnitude) {
	case "billion", "b":
		v *= 1e9
	case "million", "m":
		v *= 1e6
	case "thousand", "k":
		v *= 1e3
	}
	return v, true
}
