package utils

import (
	"log"
	"time"

	"github.com/scmhub/calendar"
)

// TradingCalendar wraps scmhub/calendar for one exchange.
type TradingCalendar struct {
	Calendar *calendar.Calendar
	Fallback bool
	Timezone *time.Location
}

// -----------------------------------------------------------------------------

// GetCalendar maps an exchange code to its trading calendar.
// See scmhub/calendar for supported MICs (ISO 10383).
func GetCalendar(exchange string) *TradingCalendar {
	mic := ""
	switch exchange {
	case "NSE", "NFO":
		mic = "xnse"
	case "BSE":
		mic = "xbom"
	case "MCX":
		mic = "xmcx"
	}

	if mic != "" {
		if cal := calendar.GetCalendar(mic); cal != nil {
			return &TradingCalendar{Calendar: cal, Fallback: false, Timezone: cal.Loc}
		}
	}

	log.Printf("WARNING: No calendar for exchange '%s'. Using simple fallback (Mon-Fri 09:15-15:30 IST).", exchange)
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		loc = time.UTC // Worst case
	}
	return &TradingCalendar{Fallback: true, Timezone: loc}
}

// -----------------------------------------------------------------------------

func (tc *TradingCalendar) IsTradingDay(date time.Time) bool {
	if tc.Timezone != nil {
		date = date.In(tc.Timezone)
	}

	if tc.Fallback {
		weekday := date.Weekday()
		return weekday != time.Saturday && weekday != time.Sunday
	}
	return tc.Calendar.IsBusinessDay(date)
}

// -----------------------------------------------------------------------------

// IsOpenOnMinute checks if the market is open at a specific minute.
func (tc *TradingCalendar) IsOpenOnMinute(t time.Time) bool {
	if tc.Timezone != nil {
		t = t.In(tc.Timezone)
	}

	if tc.Fallback {
		if !tc.IsTradingDay(t) {
			return false
		}

		hour := t.Hour()
		minute := t.Minute()

		// 09:15 - 15:30 IST
		if (hour > 9 || (hour == 9 && minute >= 15)) &&
			(hour < 15 || (hour == 15 && minute <= 30)) {
			return true
		}
		return false
	}

	return tc.Calendar.IsOpen(t)
}
