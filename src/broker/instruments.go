package broker

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"tickstream/src/logger"
	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// InstrumentDirectory
// -----------------------------------------------------------------------------

// InstrumentDirectory lazily loads and caches the broker's instrument dump
// per exchange. The token↔symbol mapping is immutable for a process lifetime
// once resolved; Clear (on logout/auth failure) forces a re-resolve.
// A failed load for one exchange never blocks resolution on another.
type InstrumentDirectory struct {
	session *Session
	Logger  *logger.Logger

	mu       sync.RWMutex
	bySymbol map[string]models.MInstrument // "EXCHANGE:SYMBOL" -> instrument
	loaded   map[string]bool               // exchange -> dump loaded
}

// -----------------------------------------------------------------------------

func NewInstrumentDirectory(session *Session, log *logger.Logger) *InstrumentDirectory {
	return &InstrumentDirectory{
		session:  session,
		Logger:   log,
		bySymbol: make(map[string]models.MInstrument),
		loaded:   make(map[string]bool),
	}
}

// -----------------------------------------------------------------------------

// Resolve maps (exchange, symbol) to the broker's instrument token.
func (d *InstrumentDirectory) Resolve(exchange, symbol string) (int64, error) {
	if err := d.ensureLoaded(exchange); err != nil {
		return 0, err
	}

	d.mu.RLock()
	inst, ok := d.bySymbol[exchange+":"+symbol]
	d.mu.RUnlock()

	if !ok {
		return 0, fmt.Errorf("%s:%s: %w", exchange, symbol, ErrInstrumentNotFound)
	}
	return inst.Token, nil
}

// -----------------------------------------------------------------------------

// Search returns up to limit instruments on an exchange whose symbol
// contains query (case-insensitive).
func (d *InstrumentDirectory) Search(exchange, query string, limit int) ([]models.MInstrument, error) {
	if err := d.ensureLoaded(exchange); err != nil {
		return nil, err
	}

	query = strings.ToUpper(query)
	prefix := exchange + ":"

	d.mu.RLock()
	defer d.mu.RUnlock()

	var results []models.MInstrument
	for key, inst := range d.bySymbol {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		if strings.Contains(inst.Symbol, query) {
			results = append(results, inst)
			if len(results) >= limit {
				break
			}
		}
	}
	return results, nil
}

// -----------------------------------------------------------------------------

// Clear drops all cached dumps.
func (d *InstrumentDirectory) Clear() {
	d.mu.Lock()
	d.bySymbol = make(map[string]models.MInstrument)
	d.loaded = make(map[string]bool)
	d.mu.Unlock()
}

// -----------------------------------------------------------------------------

func (d *InstrumentDirectory) ensureLoaded(exchange string) error {
	d.mu.RLock()
	done := d.loaded[exchange]
	d.mu.RUnlock()
	if done {
		return nil
	}

	if !d.session.IsAuthenticated() {
		return ErrNotAuthenticated
	}

	ctx, cancel := d.session.callContext()
	defer cancel()

	d.Logger.Info("Loading instrument dump for %s...", exchange)
	url := fmt.Sprintf("%s/instruments/%s", d.session.Config.Broker.APIBaseURL, exchange)
	body, err := d.session.Network.Get(ctx, url, nil, d.session.authHeaders())
	if err != nil {
		return classify(body, err)
	}

	instruments, err := parseInstrumentDump(exchange, body)
	if err != nil {
		return err
	}

	d.mu.Lock()
	for _, inst := range instruments {
		d.bySymbol[inst.Exchange+":"+inst.Symbol] = inst
	}
	d.loaded[exchange] = true
	d.mu.Unlock()

	d.Logger.Info("Loaded %d instruments for %s", len(instruments), exchange)
	return nil
}

// -----------------------------------------------------------------------------

// parseInstrumentDump reads the broker's CSV dump. Expected header:
// instrument_token,exchange_token,tradingsymbol,name,last_price,expiry,
// strike,tick_size,lot_size,instrument_type,segment,exchange
func parseInstrumentDump(exchange string, data []byte) ([]models.MInstrument, error) {
	r := csv.NewReader(strings.NewReader(string(data)))
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err != nil {
		return nil, fmt.Errorf("empty instrument dump for %s: %w", exchange, err)
	}

	col := make(map[string]int, len(header))
	for i, name := range header {
		col[strings.TrimSpace(name)] = i
	}
	for _, required := range []string{"instrument_token", "tradingsymbol", "exchange"} {
		if _, ok := col[required]; !ok {
			return nil, fmt.Errorf("instrument dump for %s missing column %q", exchange, required)
		}
	}

	var instruments []models.MInstrument
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// Skip the malformed row, keep the rest of the dump.
			continue
		}

		token, err := strconv.ParseInt(field(row, col, "instrument_token"), 10, 64)
		if err != nil {
			continue
		}

		inst := models.MInstrument{
			Token:    token,
			Symbol:   field(row, col, "tradingsymbol"),
			Name:     field(row, col, "name"),
			Exchange: field(row, col, "exchange"),
			Segment:  field(row, col, "segment"),
		}
		if ts := field(row, col, "tick_size"); ts != "" {
			inst.TickSize, _ = strconv.ParseFloat(ts, 64)
		}
		instruments = append(instruments, inst)
	}

	return instruments, nil
}

// -----------------------------------------------------------------------------

func field(row []string, col map[string]int, name string) string {
	i, ok := col[name]
	if !ok || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
