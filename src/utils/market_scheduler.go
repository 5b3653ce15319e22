package utils

import (
	"sync"
	"time"

	"tickstream/src/logger"
)

// MarketScheduler tracks trading calendars for the configured exchanges.
// Used to damp feed reconnect attempts off-hours and for the status surface.
type MarketScheduler struct {
	Calendars map[string]*TradingCalendar
	Logger    *logger.Logger
	mu        sync.RWMutex
}

// -----------------------------------------------------------------------------

func NewMarketScheduler(exchanges []string, l *logger.Logger) *MarketScheduler {
	ms := &MarketScheduler{
		Calendars: make(map[string]*TradingCalendar),
		Logger:    l,
	}
	ms.MapExchangesToCalendars(exchanges)
	return ms
}

// -----------------------------------------------------------------------------

// MapExchangesToCalendars maps a list of exchanges to their calendars.
func (ms *MarketScheduler) MapExchangesToCalendars(exchanges []string) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.Calendars = make(map[string]*TradingCalendar)
	for _, exchange := range exchanges {
		if cal := GetCalendar(exchange); cal != nil {
			ms.Calendars[exchange] = cal
		}
	}

	ms.Logger.Info("MarketScheduler: Mapped %d exchanges to calendars.", len(ms.Calendars))
}

// -----------------------------------------------------------------------------

// AnyMarketOpen checks if ANY tracked market is currently open.
func (ms *MarketScheduler) AnyMarketOpen() bool {
	now := time.Now().UTC()

	ms.mu.RLock()
	defer ms.mu.RUnlock()

	// No calendars configured: assume open rather than stalling the feed.
	if len(ms.Calendars) == 0 {
		return true
	}

	for _, cal := range ms.Calendars {
		if cal.IsOpenOnMinute(now) {
			return true
		}
	}
	return false
}
