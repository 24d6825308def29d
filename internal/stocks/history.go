package stocks

import (
	"hash/fnv"
	"math/rand"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// HistoryPoint is a single synthetic daily candle, prices rounded to 2
// decimal places.
type HistoryPoint struct {
	Timestamp int64           `json:"timestamp"`
	Open      decimal.Decimal `json:"open"`
	High      decimal.Decimal `json:"high"`
	Low       decimal.Decimal `json:"low"`
	Close     decimal.Decimal `json:"close"`
	Volume    int64           `json:"volume"`
}

// HistorySeries is an ordered synthetic daily price series for a symbol over
// a range. Simulated is always true: this data is generated, not sourced,
// because the upstream API tier has no candle endpoint.
type HistorySeries struct {
	Symbol    string          `json:"symbol"`
	Range     string          `json:"range"`
	Simulated bool            `json:"simulated"`
	Data      []HistoryPoint  `json:"data"`
}

// defaultBasePrice anchors a series when no live quote is available.
var defaultBasePrice = decimal.RequireFromString("100.00")

var rangeDays = map[string]int{
	"1D": 1,
	"1W": 7,
	"1M": 30,
	"3M": 90,
	"1Y": 365,
}

// daysForRange maps a range code to a day count. Unknown codes fall back to
// 30 days; a permissive default, not an error.
func daysForRange(rangeCode string) int {
	if d, ok := rangeDays[strings.ToUpper(rangeCode)]; ok {
		return d
	}
	return 30
}

// seedFor derives a stable seed from the symbol. FNV-1a is stable across
// processes, unlike language object hashes, so repeated calls anywhere
// produce the same series.
func seedFor(symbol string) int64 {
	h := fnv.New64a()
	h.Write([]byte(symbol))
	return int64(h.Sum64())
}

// Synthesize deterministically generates a pseudo-historical daily series
// anchored at basePrice: one point per day, ascending, ending at now's day.
// Each day's reference price varies uniformly within ±15% of basePrice;
// open/close are drawn from ref×[0.98,1.02), high from ref×[1.00,1.03), low
// from ref×[0.97,1.00), volume from [1,000,000, 11,000,000).
func Synthesize(symbol, rangeCode string, basePrice decimal.Decimal, now time.Time) HistorySeries {
	days := daysForRange(rangeCode)
	r := rand.New(rand.NewSource(seedFor(symbol)))
	nowSec := now.Unix()
	const daySec = 24 * 60 * 60

	points := make([]HistoryPoint, 0, days+1)
	for i := days; i >= 0; i-- {
		ts := (nowSec - int64(i)*daySec) * 1000

		variation := (r.Float64() - 0.5) * 0.3
		ref := basePrice.Mul(decimal.NewFromFloat(1 + variation))

		open := ref.Mul(decimal.NewFromFloat(0.98 + r.Float64()*0.04)).Round(2)
		closep := ref.Mul(decimal.NewFromFloat(0.98 + r.Float64()*0.04)).Round(2)
		high := ref.Mul(decimal.NewFromFloat(1.00 + r.Float64()*0.03)).Round(2)
		low := ref.Mul(decimal.NewFromFloat(0.97 + r.Float64()*0.03)).Round(2)
		volume := 1_000_000 + r.Int63n(10_000_000)

		points = append(points, HistoryPoint{
			Timestamp: ts,
			Open:      open,
			High:      high,
			Low:       low,
			Close:     closep,
			Volume:    volume,
		})
	}

	return HistorySeries{Symbol: symbol, Range: rangeCode, Simulated: true, Data: points}
}
