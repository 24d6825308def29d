package stocks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stockviz/internal/finnhub"
)

// Quote is a snapshot of a single symbol's current price and derived metrics.
// Prices are decimals, never binary floats, so repeated cache population
// cannot accumulate rounding drift.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Name          string          `json:"name"`
	CurrentPrice  decimal.Decimal `json:"currentPrice"`
	Change        decimal.Decimal `json:"change"`
	ChangePercent decimal.Decimal `json:"changePercent"`
	Open          decimal.Decimal `json:"open"`
	High          decimal.Decimal `json:"high"`
	Low           decimal.Decimal `json:"low"`
	PreviousClose decimal.Decimal `json:"previousClose"`
	Volume        int64           `json:"volume"`
	Timestamp     int64           `json:"timestamp"`
}

var oneHundred = decimal.NewFromInt(100)

// BuildQuote combines a raw /quote payload and a /stock/profile2 payload into
// a normalized Quote. change = current − previousClose; changePercent is the
// ratio rounded half-up at 4 fractional digits, times 100. A zero previous
// close yields ErrDivisionByZero rather than an infinity.
func BuildQuote(symbol string, q finnhub.QuotePayload, p finnhub.ProfilePayload, now time.Time) (Quote, error) {
	current, err := requireDecimal("c", q.Current)
	if err != nil {
		return Quote{}, err
	}
	previousClose, err := requireDecimal("pc", q.PreviousClose)
	if err != nil {
		return Quote{}, err
	}
	open, err := requireDecimal("o", q.Open)
	if err != nil {
		return Quote{}, err
	}
	high, err := requireDecimal("h", q.High)
	if err != nil {
		return Quote{}, err
	}
	low, err := requireDecimal("l", q.Low)
	if err != nil {
		return Quote{}, err
	}

	if previousClose.IsZero() {
		return Quote{}, fmt.Errorf("change percent for %s: %w", symbol, ErrDivisionByZero)
	}
	change := current.Sub(previousClose)
	changePercent := change.DivRound(previousClose, 4).Mul(oneHundred)

	name := p.Name
	if name == "" {
		name = symbol
	}

	return Quote{
		Symbol:        symbol,
		Name:          name,
		CurrentPrice:  current,
		Change:        change,
		ChangePercent: changePercent,
		Open:          open,
		High:          high,
		Low:           low,
		PreviousClose: previousClose,
		Timestamp:     now.UnixMilli(),
	}, nil
}

// requireDecimal parses a required numeric field. DivRound and Round on the
// resulting decimals round half away from zero, which is half-up for the
// non-negative prices handled here.
func requireDecimal(field string, n *json.Number) (decimal.Decimal, error) {
	if n == nil {
		return decimal.Decimal{}, &MalformedDataError{Field: field}
	}
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Decimal{}, &MalformedDataError{Field: field}
	}
	return d, nil
}
