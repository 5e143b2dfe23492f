// Package contract handles option contract symbol parsing in OCC notation
// and derivation of the underlying symbol used for exposure correlation.
package contract

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Option rights.
const (
	RightCall = "C"
	RightPut  = "P"
)

// occRegex matches OCC option symbols: {underlying}{yymmdd}{C|P}{strike*1000, 8 digits}.
// Example: AAPL  240621C00190000 (underlying padded to 6 characters).
var occRegex = regexp.MustCompile(
	`^([A-Z]{1,6})\s*(\d{6})([CP])(\d{8})$`,
)

var (
	ErrInvalidSymbol = errors.New("contract: invalid OCC option symbol")
	ErrInvalidExpiry = errors.New("contract: invalid expiry date")
)

// Option represents a parsed OCC option contract.
type Option struct {
	Symbol     string          `json:"symbol"`
	Underlying string          `json:"underlying"`
	Expiry     time.Time       `json:"expiry"`
	Right      string          `json:"right"` // "C" or "P"
	Strike     decimal.Decimal `json:"strike"`
}

// ParseOption parses and validates an OCC option symbol.
// Format: {underlying padded to 6}{yymmdd}{C|P}{strike price * 1000, zero padded to 8}
func ParseOption(symbol string) (*Option, error) {
	matches := occRegex.FindStringSubmatch(symbol)
	if matches == nil {
		return nil, fmt.Errorf("%w: %s (expected {underlying}{yymmdd}{C|P}{strike*1000})",
			ErrInvalidSymbol, symbol)
	}

	underlying := matches[1]
	dateStr := matches[2]
	right := matches[3]
	strikeStr := matches[4]

	expiry, err := time.Parse("060102", dateStr)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidExpiry, dateStr)
	}

	strike, err := decimal.NewFromString(strikeStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid strike %s", ErrInvalidSymbol, strikeStr)
	}
	strike = strike.Div(decimal.NewFromInt(1000))

	return &Option{
		Symbol:     symbol,
		Underlying: underlying,
		Expiry:     expiry,
		Right:      right,
		Strike:     strike,
	}, nil
}

// IsOption reports whether symbol parses as an OCC option symbol.
func IsOption(symbol string) bool {
	return occRegex.MatchString(strings.TrimSpace(symbol))
}

// Underlying returns the underlying symbol for correlation purposes: the
// OCC underlying for options, the symbol itself otherwise. AAPL stock and
// AAPL option legs share one underlying and therefore correlated risk.
func Underlying(symbol string) string {
	trimmed := strings.TrimSpace(symbol)
	if opt, err := ParseOption(trimmed); err == nil {
		return opt.Underlying
	}
	return trimmed
}
