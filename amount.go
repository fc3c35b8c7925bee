package drl

import (
	"math"
	"strconv"
	"strings"
)

// ParseAmount parses a decimal integer amount, as read from flags, headers or
// config. Fractions, negatives and anything non-numeric fail with
// *InvalidAmountError.
func ParseAmount(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n < 0 {
		return 0, &InvalidAmountError{Amount: strconv.Quote(s)}
	}
	return n, nil
}

// AmountFromFloat converts a float to an amount. Only whole, non-negative
// values are accepted; 1.5 is rejected rather than rounded.
func AmountFromFloat(f float64) (int64, error) {
	if f < 0 || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) || f >= math.MaxInt64 {
		return 0, &InvalidAmountError{Amount: strconv.FormatFloat(f, 'g', -1, 64)}
	}
	return int64(f), nil
}

func validateAmount(n int64) error {
	if n < 0 {
		return &InvalidAmountError{Amount: strconv.FormatInt(n, 10)}
	}
	return nil
}
