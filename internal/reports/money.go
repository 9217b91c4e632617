package reports

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var moneyPrinter = message.NewPrinter(language.Spanish)

// FormatARS renders a whole-peso amount with Spanish thousands separators,
// e.g. 15000 -> "$ 15.000".
func FormatARS(amount int64) string {
	return moneyPrinter.Sprintf("$ %d", amount)
}
