package dataflows

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// ValidateSymbol checks if a stock symbol is valid format
func ValidateSymbol(symbol string) error {
	symbol = NormalizeSymbol(symbol)
	if len(symbol) == 0 {
		return fmt.Errorf("symbol cannot be empty")
	}
	if len(symbol) > 10 {
		return fmt.Errorf("symbol too long: %s", symbol)
	}
	return nil
}

// NormalizeSymbol converts symbol to standard format
func NormalizeSymbol(symbol string) string {
	return strings.TrimSpace(strings.ToUpper(symbol))
}

// StripHTML flattens provider text that may embed markup.
func StripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return strings.TrimSpace(s)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.Join(strings.Fields(doc.Text()), " ")
}
