package utils

import (
	"strconv"
	"strings"
)

// FormatAmount renders an integer amount with thousand separators, e.g. 12.500.
func FormatAmount(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return sign + formatThousand(amount)
}

// Percent returns pct percent of amount, rounded down.
func Percent(amount int64, pct int) int64 {
	if pct <= 0 || amount <= 0 {
		return 0
	}
	if pct >= 100 {
		return amount
	}
	return amount * int64(pct) / 100
}

func formatThousand(n int64) string {
	if n == 0 {
		return "0"
	}
	str := strconv.FormatInt(n, 10)
	var out strings.Builder
	for i, c := range str {
		if i != 0 && (len(str)-i)%3 == 0 {
			out.WriteByte('.')
		}
		out.WriteRune(c)
	}
	return out.String()
}
