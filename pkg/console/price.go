package console

import (
	"strconv"
	"strings"
)

// FormatPrice renders a minor-unit IDR amount the way the menu cards show
// it, e.g. 25000 -> "Rp 25.000".
func FormatPrice(amount int64) string {
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}

	digits := strconv.FormatInt(amount, 10)

	var b strings.Builder
	b.WriteString(sign + "Rp ")
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}

	return b.String()
}
