package models

import "time"

// MTick is the last known trade state for one instrument. Exactly one tick
// per instrument token is retained; every feed push overwrites the previous.
type MTick struct {
	Token         int64     `json:"token"`
	LastPrice     float64   `json:"last_price"`
	LastQty       int64     `json:"last_qty"`
	AvgPrice      float64   `json:"avg_price"`
	Volume        int64     `json:"volume"`
	BuyQty        int64     `json:"buy_qty"`
	SellQty       int64     `json:"sell_qty"`
	Open          float64   `json:"open"`
	High          float64   `json:"high"`
	Low           float64   `json:"low"`
	Close         float64   `json:"close"`
	Change        float64   `json:"change"`
	LastTradeTime int64     `json:"last_trade_time"` // unix seconds, 0 if unknown
	ReceivedAt    time.Time `json:"-"`
}

// MWeekRange is the cached 52-week high/low summary for an instrument.
// High/Low are nil when a year of daily bars could not be fetched.
type MWeekRange struct {
	High *float64 `json:"high"`
	Low  *float64 `json:"low"`
}

// MDailyBar is one daily candle from the broker's historical API.
type MDailyBar struct {
	Date   time.Time `json:"date"`
	Open   float64   `json:"open"`
	High   float64   `json:"high"`
	Low    float64   `json:"low"`
	Close  float64   `json:"close"`
	Volume int64     `json:"volume"`
}
