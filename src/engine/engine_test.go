package engine

import (
	"context"
	"sync"
	"time"

	"tickstream/src/broker"
	"tickstream/src/logger"
	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Test doubles
// -----------------------------------------------------------------------------

type fakeBroker struct {
	mu            sync.Mutex
	authenticated bool
	tokens        map[string]int64 // "EXCH:SYM" -> token
	quotes        map[string]*models.MTick
	quoteErr      error
	bars          []models.MDailyBar
	barsErr       error
	invalidated   bool
	quoteCalls    int
	rangeCalls    int
}

func newFakeBroker() *fakeBroker {
	return &fakeBroker{
		authenticated: true,
		tokens:        map[string]int64{},
		quotes:        map[string]*models.MTick{},
	}
}

func (b *fakeBroker) IsAuthenticated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.authenticated
}

func (b *fakeBroker) LoginURL() string { return "https://broker.example/login" }

func (b *fakeBroker) ExchangeToken(requestToken string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authenticated = true
	return "access-token", nil
}

func (b *fakeBroker) SetAccessToken(token string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authenticated = true
}

func (b *fakeBroker) InvalidateToken() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.authenticated = false
	b.invalidated = true
}

func (b *fakeBroker) FeedCredentials() (string, string) { return "key", "token" }

func (b *fakeBroker) ResolveInstrument(exchange, symbol string) (int64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	token, ok := b.tokens[exchange+":"+symbol]
	if !ok {
		return 0, broker.ErrInstrumentNotFound
	}
	return token, nil
}

func (b *fakeBroker) SearchInstruments(exchange, query string, limit int) ([]models.MInstrument, error) {
	return nil, nil
}

func (b *fakeBroker) HistoricalRange(ctx context.Context, token int64, from, to time.Time) ([]models.MDailyBar, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rangeCalls++
	if b.barsErr != nil {
		return nil, b.barsErr
	}
	return b.bars, nil
}

func (b *fakeBroker) Quote(ctx context.Context, exchange, symbol string) (*models.MTick, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.quoteCalls++
	if b.quoteErr != nil {
		return nil, b.quoteErr
	}
	if q, ok := b.quotes[exchange+":"+symbol]; ok {
		return q, nil
	}
	return nil, broker.ErrInstrumentNotFound
}

// -----------------------------------------------------------------------------

type fakeFeed struct {
	mu           sync.Mutex
	subscribeErr error
	subscribed   [][]int64
	unsubscribed [][]int64
	marked       bool
	ticks        chan models.MTick
	state        models.FeedState
}

func newFakeFeed() *fakeFeed {
	return &fakeFeed{ticks: make(chan models.MTick, 16), state: models.FeedConnected}
}

func (f *fakeFeed) Start(ctx context.Context, wg *sync.WaitGroup) error { return nil }

func (f *fakeFeed) Subscribe(tokens []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.subscribeErr != nil {
		return f.subscribeErr
	}
	f.subscribed = append(f.subscribed, tokens)
	return nil
}

func (f *fakeFeed) Unsubscribe(tokens []int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.unsubscribed = append(f.unsubscribed, tokens)
	return nil
}

func (f *fakeFeed) State() models.FeedState { return f.state }

func (f *fakeFeed) Ticks() <-chan models.MTick { return f.ticks }

func (f *fakeFeed) MarkUnauthenticated() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = true
}

func (f *fakeFeed) subscribeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.subscribed)
}

// -----------------------------------------------------------------------------

type fakeStore struct {
	mu      sync.Mutex
	entries []models.MWatchlistEntry
	lists   []models.MWatchlist
	err     error
}

func (s *fakeStore) Initialize() error { return nil }

func (s *fakeStore) All() ([]models.MWatchlist, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lists, s.err
}

func (s *fakeStore) Get(id string) (models.MWatchlist, error) { return models.MWatchlist{}, nil }

func (s *fakeStore) Create(name string) (models.MWatchlist, error) { return models.MWatchlist{}, nil }

func (s *fakeStore) Rename(id, name string) error { return nil }

func (s *fakeStore) Delete(id string) error { return nil }

func (s *fakeStore) AddEntry(id, symbol, exchange string) (models.MWatchlist, error) {
	return models.MWatchlist{}, nil
}

func (s *fakeStore) RemoveEntry(id, symbol, exchange string) (models.MWatchlist, error) {
	return models.MWatchlist{}, nil
}

func (s *fakeStore) AllEntries() ([]models.MWatchlistEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries, s.err
}

func (s *fakeStore) Close() error { return nil }

func (s *fakeStore) setEntries(entries []models.MWatchlistEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = entries
}

// -----------------------------------------------------------------------------

type fakePublisher struct {
	mu       sync.Mutex
	viewers  int
	messages []*models.MStreamMessage
}

func (p *fakePublisher) Broadcast(msg *models.MStreamMessage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, msg)
}

func (p *fakePublisher) ViewerCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.viewers
}

func (p *fakePublisher) messageCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.messages)
}

// -----------------------------------------------------------------------------

func testConfig() *models.MConfig {
	return &models.MConfig{
		Name: "test",
		Engine: models.MEngineConfig{
			BroadcastIntervalSeconds: 1,
			ReconcileIntervalSeconds: 1,
			RangeTTLHours:            24,
			FetchTimeoutMs:           800,
		},
	}
}

func newTestEngine() (*Engine, *fakeBroker, *fakeFeed, *fakeStore, *fakePublisher) {
	b := newFakeBroker()
	f := newFakeFeed()
	s := &fakeStore{}
	p := &fakePublisher{}

	e := NewEngine(testConfig(), b, f, s, logger.NewLogger("error", "test"))
	e.AttachPublisher(p)
	return e, b, f, s, p
}
