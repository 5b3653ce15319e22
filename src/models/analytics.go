package models

// MAnalytics is a fully computed, read-only snapshot for one instrument.
// It is rebuilt whole on every broadcast cycle; derived fields are nil
// (JSON null) when their inputs are missing, never zero.
//
// Field names match the stream consumers' expectations:
//
//	dfl  - distance from 52-week low   (cmp - low) / cmp * 100
//	dfh  - distance from 52-week high  (high - cmp) / cmp * 100
//	dfdl - distance from day low       (cmp - dl) / dl * 100
//	dfdh - distance from day high      (dh - cmp) / cmp * 100
//	bsr  - buy/sell quantity ratio
type MAnalytics struct {
	Symbol        string   `json:"symbol"`
	Exchange      string   `json:"exchange"`
	Token         int64    `json:"token"`
	CMP           *float64 `json:"cmp"`
	W52High       *float64 `json:"w52_high"`
	W52Low        *float64 `json:"w52_low"`
	DFL           *float64 `json:"dfl"`
	DFH           *float64 `json:"dfh"`
	DayLow        *float64 `json:"day_low"`
	DayHigh       *float64 `json:"day_high"`
	DFDL          *float64 `json:"dfdl"`
	DFDH          *float64 `json:"dfdh"`
	Buyers        *float64 `json:"buyers"`
	Sellers       *float64 `json:"sellers"`
	BSR           *float64 `json:"bsr"`
	Change        *float64 `json:"change"`
	Volume        *float64 `json:"volume"`
	LastTradeTime *string  `json:"last_trade_time"`
}
