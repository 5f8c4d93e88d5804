package models

import (
	"errors"
	"strings"

	"golang.org/x/text/currency"
)

var ErrInvalidCurrency = errors.New("invalid currency code")

var currencyNames = map[string]string{
	"AOA": "Angolan Kwanza",
	"USD": "US Dollar",
	"EUR": "Euro",
	"NAD": "Namibian Dollar",
	"ZAR": "South African Rand",
}

var currencyFlags = map[string]string{
	"AOA": "🇦🇴",
	"USD": "🇺🇸",
	"EUR": "🇪🇺",
	"NAD": "🇳🇦",
	"ZAR": "🇿🇦",
}

// CurrencyName returns the display name for code, or code itself when unknown.
func CurrencyName(code string) string {
	if n, ok := currencyNames[strings.ToUpper(code)]; ok {
		return n
	}
	return code
}

func CurrencyFlag(code string) string {
	return currencyFlags[strings.ToUpper(code)]
}

// SupportedCurrencies lists the codes with display metadata, in a stable order.
func SupportedCurrencies() []string {
	return []string{"AOA", "EUR", "NAD", "USD", "ZAR"}
}

// NormalizeCurrency upper-cases code and checks it is a recognised ISO 4217 code.
func NormalizeCurrency(code string) (string, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if len(code) != 3 {
		return "", ErrInvalidCurrency
	}
	u, err := currency.ParseISO(code)
	if err != nil {
		return "", ErrInvalidCurrency
	}
	return u.String(), nil
}
