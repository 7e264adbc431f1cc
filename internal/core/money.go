package core

import (
	"math"
	"strconv"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ParseAmount converts form input into an amount. It never fails: like a
// browser's parseFloat it reads the longest leading numeric prefix and ignores
// the rest, and input without any numeric prefix becomes zero.
//
// Examples:
//
//	ParseAmount("12.5")   -> 12.5
//	ParseAmount(" 40abc") -> 40
//	ParseAmount("1e3")    -> 1000
//	ParseAmount("abc")    -> 0
//	ParseAmount("1e400")  -> 0
//
// The prefix is read at float64 range and precision, so an amount always
// has a bounded size. Values outside that range (parseFloat's Infinity)
// become zero.
func ParseAmount(s string) decimal.Decimal {
	lit := numericPrefix(strings.TrimLeftFunc(s, unicode.IsSpace))
	if lit == "" {
		return decimal.Zero
	}
	f, err := strconv.ParseFloat(lit, 64)
	if err != nil || f == 0 || math.IsInf(f, 0) || math.IsNaN(f) {
		return decimal.Zero
	}
	return decimal.NewFromFloat(f)
}

// numericPrefix returns a canonical decimal literal for the leading number in
// s, or "" when s does not start with one.
func numericPrefix(s string) string {
	i := 0
	sign := ""
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		if s[i] == '-' {
			sign = "-"
		}
		i++
	}

	intStart := i
	for i < len(s) && isDigit(s[i]) {
		i++
	}
	intPart := s[intStart:i]

	fracPart := ""
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j]) {
			j++
		}
		fracPart = s[i+1 : j]
		if intPart != "" || fracPart != "" {
			i = j
		}
	}
	if intPart == "" && fracPart == "" {
		return ""
	}

	exp := ""
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k]) {
			k++
		}
		if k > j {
			exp = "e" + s[i+1:k]
		}
	}

	if intPart == "" {
		intPart = "0"
	}
	lit := sign + intPart
	if fracPart != "" {
		lit += "." + fracPart
	}
	return lit + exp
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// FormatAmount renders an amount the way the ledger page shows it: no
// trailing zeros, no thousands separators.
func FormatAmount(d decimal.Decimal) string {
	return d.String()
}
