package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"golang.org/x/text/number"
)

var frPrinter = message.NewPrinter(language.French)

// FormatAmount renders a monetary amount the way the shop's paper
// documents do: French digit grouping, no decimals.
func FormatAmount(amount float64) string {
	return frPrinter.Sprint(number.Decimal(amount, number.MaxFractionDigits(0)))
}
