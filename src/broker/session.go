package broker

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"tickstream/src/config"
	"tickstream/src/interfaces"
	"tickstream/src/logger"
	"tickstream/src/models"
)

const brokerAPIVersion = "3"

// -----------------------------------------------------------------------------
// Session
// -----------------------------------------------------------------------------

// Session is the authenticated REST connection to the brokerage. All calls
// go through the shared network manager (rate limited, retried); the caller's
// context bounds each call so one slow instrument cannot stall a broadcast
// cycle.
type Session struct {
	Config  *config.Config
	Logger  *logger.Logger
	Network interfaces.INetworkManager

	mu          sync.RWMutex
	accessToken string

	directory *InstrumentDirectory
}

// -----------------------------------------------------------------------------

func NewSession(cfg *config.Config, netMgr interfaces.INetworkManager, log *logger.Logger) *Session {
	s := &Session{
		Config:      cfg,
		Logger:      log,
		Network:     netMgr,
		accessToken: cfg.AccessToken,
	}
	s.directory = NewInstrumentDirectory(s, logger.NewLogger(cfg.LogLevel, "InstrumentDirectory"))
	return s
}

// -----------------------------------------------------------------------------

func (s *Session) IsAuthenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Config.APIKey != "" && s.accessToken != ""
}

// -----------------------------------------------------------------------------

func (s *Session) LoginURL() string {
	return fmt.Sprintf("%s?v=%s&api_key=%s", s.Config.Broker.LoginURL, brokerAPIVersion, s.Config.APIKey)
}

// -----------------------------------------------------------------------------

// ExchangeToken swaps the request token from the login redirect for an
// access token (checksum = sha256(api_key + request_token + api_secret)).
func (s *Session) ExchangeToken(requestToken string) (string, error) {
	if s.Config.APIKey == "" || s.Config.APISecret == "" {
		return "", fmt.Errorf("api key or secret not configured")
	}

	sum := sha256.Sum256([]byte(s.Config.APIKey + requestToken + s.Config.APISecret))
	form := map[string]string{
		"api_key":       s.Config.APIKey,
		"request_token": requestToken,
		"checksum":      hex.EncodeToString(sum[:]),
	}
	headers := map[string]string{"X-Broker-Version": brokerAPIVersion}

	ctx, cancel := s.callContext()
	defer cancel()

	body, err := s.Network.PostForm(ctx, s.Config.Broker.APIBaseURL+"/session/token", form, headers)
	if err != nil {
		return "", classify(body, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("malformed token response: %w", err)
	}
	var data struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil || data.AccessToken == "" {
		return "", fmt.Errorf("token exchange failed: %s", env.Message)
	}

	s.SetAccessToken(data.AccessToken)
	if err := s.Config.SaveAccessToken(data.AccessToken); err != nil {
		s.Logger.Warning("Could not persist access token: %v", err)
	}
	s.Logger.Info("Access token exchanged successfully")
	return data.AccessToken, nil
}

// -----------------------------------------------------------------------------

func (s *Session) SetAccessToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

// -----------------------------------------------------------------------------

// InvalidateToken drops the access token and the instrument directory. The
// directory is re-resolved lazily after the next successful login.
func (s *Session) InvalidateToken() {
	s.mu.Lock()
	s.accessToken = ""
	s.mu.Unlock()
	s.directory.Clear()
}

// -----------------------------------------------------------------------------

func (s *Session) FeedCredentials() (string, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Config.APIKey, s.accessToken
}

// -----------------------------------------------------------------------------

func (s *Session) ResolveInstrument(exchange, symbol string) (int64, error) {
	return s.directory.Resolve(exchange, symbol)
}

// -----------------------------------------------------------------------------

func (s *Session) SearchInstruments(exchange, query string, limit int) ([]models.MInstrument, error) {
	return s.directory.Search(exchange, query, limit)
}

// -----------------------------------------------------------------------------

// HistoricalRange returns daily bars for [from, to], oldest first.
func (s *Session) HistoricalRange(ctx context.Context, token int64, from, to time.Time) ([]models.MDailyBar, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	url := fmt.Sprintf("%s/instruments/historical/%d/day", s.Config.Broker.APIBaseURL, token)
	params := map[string]string{
		"from": from.Format("2006-01-02"),
		"to":   to.Format("2006-01-02"),
	}

	body, err := s.Network.Get(ctx, url, params, s.authHeaders())
	if err != nil {
		return nil, classify(body, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed historical response: %w", err)
	}
	var data struct {
		Candles [][]json.RawMessage `json:"candles"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed candles payload: %w", err)
	}

	bars := make([]models.MDailyBar, 0, len(data.Candles))
	for _, c := range data.Candles {
		bar, err := parseCandle(c)
		if err != nil {
			s.Logger.Warning("Skipping malformed candle for token %d: %v", token, err)
			continue
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

// -----------------------------------------------------------------------------

// Quote fetches a one-shot snapshot. Used only to bridge the gap before the
// first push tick arrives for an instrument.
func (s *Session) Quote(ctx context.Context, exchange, symbol string) (*models.MTick, error) {
	if !s.IsAuthenticated() {
		return nil, ErrNotAuthenticated
	}

	key := exchange + ":" + symbol
	body, err := s.Network.Get(ctx, s.Config.Broker.APIBaseURL+"/quote", map[string]string{"i": key}, s.authHeaders())
	if err != nil {
		return nil, classify(body, err)
	}

	var env apiEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("malformed quote response: %w", err)
	}
	var data map[string]quotePayload
	if err := json.Unmarshal(env.Data, &data); err != nil {
		return nil, fmt.Errorf("malformed quote payload: %w", err)
	}
	q, ok := data[key]
	if !ok {
		return nil, fmt.Errorf("no quote returned for %s", key)
	}

	tick := q.toTick()
	return &tick, nil
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

func (s *Session) authHeaders() map[string]string {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()

	return map[string]string{
		"X-Broker-Version": brokerAPIVersion,
		"Authorization":    fmt.Sprintf("token %s:%s", s.Config.APIKey, token),
	}
}

// -----------------------------------------------------------------------------

func (s *Session) callContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(s.Config.Broker.RequestTimeout) * time.Second
	return context.WithTimeout(context.Background(), timeout)
}

// -----------------------------------------------------------------------------

// quotePayload is the broker's snapshot shape for one instrument.
type quotePayload struct {
	InstrumentToken int64   `json:"instrument_token"`
	LastPrice       float64 `json:"last_price"`
	LastQuantity    int64   `json:"last_quantity"`
	AveragePrice    float64 `json:"average_price"`
	Volume          int64   `json:"volume"`
	BuyQuantity     int64   `json:"buy_quantity"`
	SellQuantity    int64   `json:"sell_quantity"`
	NetChange       float64 `json:"net_change"`
	LastTradeTime   string  `json:"last_trade_time"`
	OHLC            struct {
		Open  float64 `json:"open"`
		High  float64 `json:"high"`
		Low   float64 `json:"low"`
		Close float64 `json:"close"`
	} `json:"ohlc"`
}

func (q quotePayload) toTick() models.MTick {
	tick := models.MTick{
		Token:      q.InstrumentToken,
		LastPrice:  q.LastPrice,
		LastQty:    q.LastQuantity,
		AvgPrice:   q.AveragePrice,
		Volume:     q.Volume,
		BuyQty:     q.BuyQuantity,
		SellQty:    q.SellQuantity,
		Open:       q.OHLC.Open,
		High:       q.OHLC.High,
		Low:        q.OHLC.Low,
		Close:      q.OHLC.Close,
		Change:     q.NetChange,
		ReceivedAt: time.Now().UTC(),
	}
	if q.LastTradeTime != "" {
		if t, err := time.Parse("2006-01-02 15:04:05", q.LastTradeTime); err == nil {
			tick.LastTradeTime = t.Unix()
		}
	}
	return tick
}

// -----------------------------------------------------------------------------

// parseCandle decodes one [timestamp, open, high, low, close, volume] row.
func parseCandle(raw []json.RawMessage) (models.MDailyBar, error) {
	if len(raw) < 6 {
		return models.MDailyBar{}, fmt.Errorf("candle has %d fields", len(raw))
	}

	var dateStr string
	if err := json.Unmarshal(raw[0], &dateStr); err != nil {
		return models.MDailyBar{}, err
	}
	date, err := time.Parse(time.RFC3339, dateStr)
	if err != nil {
		// The broker also ships bare dates for daily candles.
		date, err = time.Parse("2006-01-02", dateStr)
		if err != nil {
			return models.MDailyBar{}, err
		}
	}

	nums := make([]float64, 5)
	for i := 1; i <= 5; i++ {
		if err := json.Unmarshal(raw[i], &nums[i-1]); err != nil {
			return models.MDailyBar{}, err
		}
	}

	return models.MDailyBar{
		Date:   date,
		Open:   nums[0],
		High:   nums[1],
		Low:    nums[2],
		Close:  nums[3],
		Volume: int64(nums[4]),
	}, nil
}
