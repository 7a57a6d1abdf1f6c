package dashboard

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// FormatInt formats an integer with comma separators.
func FormatInt(n int) string {
	if n < 0 {
		return "-" + FormatInt(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}
	var b strings.Builder
	start := len(s) % 3
	if start > 0 {
		b.WriteString(s[:start])
	}
	for i := start; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte(',')
		}
		b.WriteString(s[i : i+3])
	}
	return b.String()
}

// FormatPrice formats a price with two decimals and thousands separators, or
// "-" for zero and non-finite values.
func FormatPrice(p float64) string {
	if p == 0 || math.IsNaN(p) || math.IsInf(p, 0) {
		return "-"
	}
	s := strconv.FormatFloat(math.Abs(p), 'f', 2, 64)
	whole, frac, _ := strings.Cut(s, ".")
	n, _ := strconv.Atoi(whole)
	if p < 0 {
		n = -n
	}
	return FormatInt(n) + "." + frac
}

// FormatChange formats a percentage change as "+X.XX%" / "-X.XX%"; zero has
// no sign.
func FormatChange(c float64) string {
	switch {
	case c > 0:
		return fmt.Sprintf("+%.2f%%", c)
	case c < 0:
		return fmt.Sprintf("%.2f%%", c)
	default:
		return "0.00%"
	}
}

// FormatRatio formats an advance/decline ratio.
func FormatRatio(r float64) string {
	return fmt.Sprintf("%.2f", r)
}
