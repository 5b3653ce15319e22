package models

// MInstrument is one row of the broker's instrument directory. The numeric
// token is the broker-assigned identifier used on the push feed; the
// (exchange, symbol) pair is the human key used everywhere else.
type MInstrument struct {
	Token    int64   `json:"token"`
	Symbol   string  `json:"symbol"`
	Name     string  `json:"name"`
	Exchange string  `json:"exchange"`
	Segment  string  `json:"segment"`
	TickSize float64 `json:"tick_size"`
}
