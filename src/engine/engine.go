package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tickstream/src/cache"
	"tickstream/src/interfaces"
	"tickstream/src/logger"
	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Engine
// -----------------------------------------------------------------------------

// Engine is the coordination core: it drains the feed into the tick cache,
// reconciles feed subscriptions against the stored watchlists, and drives
// the periodic broadcast of computed analytics to connected viewers.
type Engine struct {
	Config    *models.MConfig
	Logger    *logger.Logger
	Broker    interfaces.IBrokerSession
	Feed      interfaces.ITickerFeed
	Store     interfaces.IWatchlistStore
	Publisher interfaces.IViewerPublisher
	Cache     *cache.TickCache

	// watchlistChanged wakes the reconciler ahead of its timer after a
	// watchlist mutation. Buffered so notifiers never block.
	watchlistChanged chan struct{}

	// subscribed mirrors the token set the feed has accepted. Only the
	// reconciler mutates it; the auth-failure path clears it.
	subMu      sync.Mutex
	subscribed map[int64]struct{}

	// resolved caches (exchange, symbol) -> token for the broadcast cycle.
	resMu    sync.RWMutex
	resolved map[string]int64

	isRunning bool
	mu        sync.Mutex
}

// -----------------------------------------------------------------------------

func NewEngine(cfg *models.MConfig, broker interfaces.IBrokerSession, feed interfaces.ITickerFeed, store interfaces.IWatchlistStore, log *logger.Logger) *Engine {
	ttl := time.Duration(cfg.Engine.RangeTTLHours) * time.Hour
	return &Engine{
		Config:           cfg,
		Logger:           log,
		Broker:           broker,
		Feed:             feed,
		Store:            store,
		Cache:            cache.NewTickCache(ttl),
		watchlistChanged: make(chan struct{}, 1),
		subscribed:       make(map[int64]struct{}),
		resolved:         make(map[string]int64),
	}
}

// -----------------------------------------------------------------------------

// AttachPublisher installs the viewer hub. Must be called before Start.
func (e *Engine) AttachPublisher(p interfaces.IViewerPublisher) {
	e.Publisher = p
}

// -----------------------------------------------------------------------------

// Start launches the tick consumer, reconciler and broadcast loops.
func (e *Engine) Start(ctx context.Context, wg *sync.WaitGroup) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.isRunning {
		return fmt.Errorf("engine is already running")
	}
	if e.Publisher == nil {
		return fmt.Errorf("engine has no viewer publisher attached")
	}
	e.isRunning = true

	wg.Add(3)
	go e.consumeTicks(ctx, wg)
	go e.reconcileLoop(ctx, wg)
	go e.broadcastLoop(ctx, wg)

	e.Logger.Info("Engine started")
	return nil
}

// -----------------------------------------------------------------------------

// IsReady reports whether broadcast cycles can produce data: the broker
// session must be authenticated and the feed must not be parked on an
// auth failure. A merely disconnected feed still counts as ready since
// records can be served from quote fallbacks.
func (e *Engine) IsReady() bool {
	return e.Broker.IsAuthenticated() && e.Feed.State() != models.FeedUnauthenticated
}

// -----------------------------------------------------------------------------

// NotifyWatchlistChanged wakes the reconciler ahead of its timer.
func (e *Engine) NotifyWatchlistChanged() {
	select {
	case e.watchlistChanged <- struct{}{}:
	default:
	}
}

// -----------------------------------------------------------------------------

// Logout tears down the authenticated state: token invalidated, caches and
// subscriptions dropped, feed parked.
func (e *Engine) Logout() {
	e.Logger.Info("Logging out")
	e.Broker.InvalidateToken()
	e.teardownAuthState()
}

// -----------------------------------------------------------------------------

// HandleAuthFailure is the single funnel for broker-reported credential
// failures, from either the REST path or the feed.
func (e *Engine) HandleAuthFailure() {
	e.Logger.Error("Broker reported an authentication failure; clearing session state")
	e.Broker.InvalidateToken()
	e.teardownAuthState()
}

// -----------------------------------------------------------------------------

func (e *Engine) teardownAuthState() {
	e.Cache.Clear()

	e.subMu.Lock()
	e.subscribed = make(map[int64]struct{})
	e.subMu.Unlock()

	e.resMu.Lock()
	e.resolved = make(map[string]int64)
	e.resMu.Unlock()

	e.Feed.MarkUnauthenticated()
}

// -----------------------------------------------------------------------------
// Tick consumer
// -----------------------------------------------------------------------------

func (e *Engine) consumeTicks(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-e.Feed.Ticks():
			if !ok {
				return
			}
			e.Cache.RecordTick(tick)
		}
	}
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

// GetSnapshot computes the analytics record for one instrument on demand,
// using the same tick/quote and range fallbacks as the broadcast cycle.
func (e *Engine) GetSnapshot(ctx context.Context, exchange, symbol string) (models.MAnalytics, error) {
	token, err := e.resolveToken(exchange, symbol)
	if err != nil {
		return models.MAnalytics{}, err
	}
	return e.buildRecord(ctx, exchange, symbol, token), nil
}

// -----------------------------------------------------------------------------

// InitialSnapshot is the first frame a newly connected viewer receives:
// every watchlist plus the current analytics batch.
func (e *Engine) InitialSnapshot(ctx context.Context) (*models.MStreamMessage, error) {
	watchlists, err := e.Store.All()
	if err != nil {
		return nil, err
	}

	entries, err := e.Store.AllEntries()
	if err != nil {
		return nil, err
	}

	return &models.MStreamMessage{
		Type:       models.MsgTypeInitial,
		Data:       e.buildBatch(ctx, entries),
		Watchlists: watchlists,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// -----------------------------------------------------------------------------

// resolveToken memoizes broker directory lookups for the process lifetime.
// The cache is cleared with the rest of the auth state.
func (e *Engine) resolveToken(exchange, symbol string) (int64, error) {
	key := exchange + ":" + symbol

	e.resMu.RLock()
	token, ok := e.resolved[key]
	e.resMu.RUnlock()
	if ok {
		return token, nil
	}

	token, err := e.Broker.ResolveInstrument(exchange, symbol)
	if err != nil {
		return 0, err
	}

	e.resMu.Lock()
	e.resolved[key] = token
	e.resMu.Unlock()
	return token, nil
}
