// Package utils provides shared utility functions.
package utils

import (
	"fmt"
	"strings"
	"time"
)

// FormatPrice formats a price with thousands separators and the given number
// of decimals.
func FormatPrice(amount float64, decimals int) string {
	negative := amount < 0
	if negative {
		amount = -amount
	}

	str := fmt.Sprintf("%.*f", decimals, amount)
	intPart, decPart, hasDec := strings.Cut(str, ".")

	result := groupThousands(intPart)
	if hasDec {
		result += "." + decPart
	}
	if negative {
		result = "-" + result
	}
	return result
}

// groupThousands inserts a comma every three digits from the right.
func groupThousands(s string) string {
	n := len(s)
	if n <= 3 {
		return s
	}

	var b strings.Builder
	head := n % 3
	if head > 0 {
		b.WriteString(s[:head])
	}
	for i := head; i < n; i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPercent formats a percentage with sign.
func FormatPercent(value float64) string {
	sign := ""
	if value > 0 {
		sign = "+"
	}
	return fmt.Sprintf("%s%.2f%%", sign, value)
}

// FormatPnL formats a profit or loss with sign.
func FormatPnL(pnl float64) string {
	formatted := FormatPrice(pnl, 2)
	if pnl > 0 {
		return "+" + formatted
	}
	return formatted
}

// FormatQuantity formats a quantity with commas.
func FormatQuantity(qty int64) string {
	if qty < 0 {
		return "-" + groupThousands(fmt.Sprintf("%d", -qty))
	}
	return groupThousands(fmt.Sprintf("%d", qty))
}

// FormatCompact formats a number in compact form (K/M/B).
func FormatCompact(amount float64) string {
	absAmount := amount
	if absAmount < 0 {
		absAmount = -absAmount
	}

	switch {
	case absAmount >= 1e9:
		return fmt.Sprintf("%.2fB", amount/1e9)
	case absAmount >= 1e6:
		return fmt.Sprintf("%.2fM", amount/1e6)
	case absAmount >= 1e3:
		return fmt.Sprintf("%.2fK", amount/1e3)
	}
	return fmt.Sprintf("%.2f", amount)
}

// FormatTimestamp formats a unix timestamp as a date for daily series and as
// date and time otherwise.
func FormatTimestamp(ts int64, intraday bool) string {
	t := time.Unix(ts, 0).UTC()
	if intraday {
		return t.Format("2006-01-02 15:04")
	}
	return t.Format("2006-01-02")
}
