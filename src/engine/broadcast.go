package engine

import (
	"context"
	"sync"
	"time"

	"tickstream/src/analytics"
	"tickstream/src/broker"
	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Broadcast cycle
// -----------------------------------------------------------------------------

// broadcastLoop pushes a fresh analytics batch to the viewer hub on a fixed
// cadence. Cycles are skipped entirely while no viewer is connected or the
// session is unauthenticated; per-instrument fetch failures degrade that
// instrument's record instead of aborting the batch.
func (e *Engine) broadcastLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := time.Duration(e.Config.Engine.BroadcastIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if e.Publisher.ViewerCount() == 0 || !e.IsReady() {
			continue
		}
		e.runBroadcastCycle(ctx)
	}
}

// -----------------------------------------------------------------------------

func (e *Engine) runBroadcastCycle(ctx context.Context) {
	// One bad cycle must never kill the loop.
	defer func() {
		if r := recover(); r != nil {
			e.Logger.Error("Broadcast cycle panicked: %v", r)
			time.Sleep(time.Second)
		}
	}()

	entries, err := e.Store.AllEntries()
	if err != nil {
		e.Logger.Error("Broadcast: cannot read watchlists: %v", err)
		return
	}
	if len(entries) == 0 {
		return
	}

	batch := e.buildBatch(ctx, entries)
	if batch == nil {
		return // auth failure mid-cycle
	}

	e.Publisher.Broadcast(&models.MStreamMessage{
		Type:      models.MsgTypeTickUpdate,
		Data:      batch,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// -----------------------------------------------------------------------------

// buildBatch computes one record per resolvable watchlist entry. A nil
// return means the broker rejected our credentials mid-batch and the auth
// state was torn down.
func (e *Engine) buildBatch(ctx context.Context, entries []models.MWatchlistEntry) []models.MAnalytics {
	batch := make([]models.MAnalytics, 0, len(entries))
	for _, entry := range entries {
		token, err := e.resolveToken(entry.Exchange, entry.Symbol)
		if err != nil {
			if broker.IsAuthError(err) {
				e.HandleAuthFailure()
				return nil
			}
			continue
		}
		rec := e.buildRecord(ctx, entry.Exchange, entry.Symbol, token)
		// A fetch inside buildRecord may have torn down the auth state.
		if !e.Broker.IsAuthenticated() {
			return nil
		}
		batch = append(batch, rec)
	}
	return batch
}

// -----------------------------------------------------------------------------

// buildRecord assembles the analytics for one instrument: last tick from
// the cache with a one-shot quote fallback, 52-week range from the cache
// with a historical refetch when stale or absent. Both fallbacks are bounded
// by the configured fetch timeout; on failure the record simply carries nil
// fields.
func (e *Engine) buildRecord(ctx context.Context, exchange, symbol string, token int64) models.MAnalytics {
	var tick *models.MTick
	if t, ok := e.Cache.GetTick(token); ok {
		tick = &t
	} else {
		if q := e.fetchQuote(ctx, exchange, symbol); q != nil {
			e.Cache.RecordTick(*q)
			tick = q
		}
	}

	var rng *models.MWeekRange
	if r, ok := e.Cache.GetRange(token); ok {
		rng = &r
	} else {
		if r := e.fetchRange(ctx, token); r != nil {
			e.Cache.PutRange(token, *r, time.Now())
			rng = r
		}
	}

	return analytics.Compute(exchange, symbol, token, tick, rng)
}

// -----------------------------------------------------------------------------

func (e *Engine) fetchQuote(ctx context.Context, exchange, symbol string) *models.MTick {
	fctx, cancel := e.fetchContext(ctx)
	defer cancel()

	q, err := e.Broker.Quote(fctx, exchange, symbol)
	if err != nil {
		if broker.IsAuthError(err) {
			e.HandleAuthFailure()
			return nil
		}
		e.Logger.Debug("Quote fallback failed for %s:%s: %v", exchange, symbol, err)
		return nil
	}
	return q
}

// -----------------------------------------------------------------------------

// fetchRange derives the 52-week range from a year of daily bars.
func (e *Engine) fetchRange(ctx context.Context, token int64) *models.MWeekRange {
	fctx, cancel := e.fetchContext(ctx)
	defer cancel()

	to := time.Now()
	from := to.AddDate(0, 0, -365)

	bars, err := e.Broker.HistoricalRange(fctx, token, from, to)
	if err != nil {
		if broker.IsAuthError(err) {
			e.HandleAuthFailure()
			return nil
		}
		e.Logger.Debug("Range fetch failed for token %d: %v", token, err)
		return nil
	}
	if len(bars) == 0 {
		return nil
	}

	high := bars[0].High
	low := bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return &models.MWeekRange{High: &high, Low: &low}
}

// -----------------------------------------------------------------------------

func (e *Engine) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := time.Duration(e.Config.Engine.FetchTimeoutMs) * time.Millisecond
	if timeout <= 0 {
		timeout = 800 * time.Millisecond
	}
	return context.WithTimeout(ctx, timeout)
}
