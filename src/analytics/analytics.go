package analytics

import (
	"math"
	"time"

	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Derived metrics computation
// -----------------------------------------------------------------------------

// Compute builds the full analytics record for one instrument from its last
// tick and cached 52-week range. Either input may be nil or partially
// populated; every derived field whose inputs are missing comes out nil
// rather than zero, and this function never fails.
//
// Note the dfdl denominator is the day low, not cmp. The asymmetry with dfdh
// is intentional and must be preserved.
func Compute(exchange, symbol string, token int64, tick *models.MTick, rng *models.MWeekRange) models.MAnalytics {
	rec := models.MAnalytics{
		Symbol:   symbol,
		Exchange: exchange,
		Token:    token,
	}

	if rng != nil {
		rec.W52High = rng.High
		rec.W52Low = rng.Low
	}

	if tick == nil {
		return rec
	}

	cmp := tick.LastPrice
	if cmp > 0 {
		rec.CMP = f64(cmp)
	}

	var dayHigh, dayLow *float64
	if tick.High > 0 {
		dayHigh = f64(tick.High)
	}
	if tick.Low > 0 {
		dayLow = f64(tick.Low)
	}
	rec.DayHigh = dayHigh
	rec.DayLow = dayLow

	if cmp > 0 {
		if rec.W52Low != nil {
			rec.DFL = round2((cmp - *rec.W52Low) / cmp * 100)
		}
		if rec.W52High != nil {
			rec.DFH = round2((*rec.W52High - cmp) / cmp * 100)
		}
		if dayHigh != nil {
			rec.DFDH = round2((*dayHigh - cmp) / cmp * 100)
		}
	}

	if dayLow != nil && *dayLow > 0 && cmp > 0 {
		rec.DFDL = round2((cmp - *dayLow) / *dayLow * 100)
	}

	buyers := float64(tick.BuyQty)
	sellers := float64(tick.SellQty)
	rec.Buyers = f64(buyers)
	rec.Sellers = f64(sellers)
	if sellers > 0 {
		rec.BSR = round2(buyers / sellers)
	}

	rec.Change = f64(tick.Change)
	rec.Volume = f64(float64(tick.Volume))

	if tick.LastTradeTime > 0 {
		s := time.Unix(tick.LastTradeTime, 0).UTC().Format(time.RFC3339)
		rec.LastTradeTime = &s
	}

	return rec
}

// -----------------------------------------------------------------------------

func round2(v float64) *float64 {
	r := math.Round(v*100) / 100
	return &r
}

// -----------------------------------------------------------------------------

func f64(v float64) *float64 {
	return &v
}
