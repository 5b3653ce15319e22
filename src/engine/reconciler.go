package engine

import (
	"context"
	"sync"
	"time"

	"tickstream/src/broker"
)

// -----------------------------------------------------------------------------
// Subscription reconciler
// -----------------------------------------------------------------------------

// reconcileLoop keeps the feed's subscription set equal to the union of all
// watchlist entries. It runs on a timer and whenever a watchlist mutation
// fires NotifyWatchlistChanged.
func (e *Engine) reconcileLoop(ctx context.Context, wg *sync.WaitGroup) {
	defer wg.Done()

	interval := time.Duration(e.Config.Engine.ReconcileIntervalSeconds) * time.Second
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-e.watchlistChanged:
		}

		if !e.Broker.IsAuthenticated() {
			continue
		}
		e.reconcile()
	}
}

// -----------------------------------------------------------------------------

// reconcile computes the desired token set from the watchlist union and
// applies the delta. The mirror set is only updated after the feed accepts
// the change, so a failed call is retried on the next pass.
func (e *Engine) reconcile() {
	entries, err := e.Store.AllEntries()
	if err != nil {
		e.Logger.Error("Reconcile: cannot read watchlists: %v", err)
		return
	}

	desired := make(map[int64]struct{}, len(entries))
	for _, entry := range entries {
		token, err := e.resolveToken(entry.Exchange, entry.Symbol)
		if err != nil {
			if broker.IsAuthError(err) {
				e.HandleAuthFailure()
				return
			}
			// Unknown symbols stay in the watchlist but get no stream.
			e.Logger.Warning("Reconcile: skipping %s:%s: %v", entry.Exchange, entry.Symbol, err)
			continue
		}
		desired[token] = struct{}{}
	}

	e.subMu.Lock()
	current := make(map[int64]struct{}, len(e.subscribed))
	for t := range e.subscribed {
		current[t] = struct{}{}
	}
	e.subMu.Unlock()

	toAdd, toRemove := Diff(desired, current)
	if len(toAdd) == 0 && len(toRemove) == 0 {
		return
	}

	if len(toRemove) > 0 {
		if err := e.Feed.Unsubscribe(toRemove); err != nil {
			e.Logger.Error("Reconcile: unsubscribe failed: %v", err)
			return
		}
		e.subMu.Lock()
		for _, t := range toRemove {
			delete(e.subscribed, t)
		}
		e.subMu.Unlock()
	}

	if len(toAdd) > 0 {
		if err := e.Feed.Subscribe(toAdd); err != nil {
			e.Logger.Error("Reconcile: subscribe failed: %v", err)
			return
		}
		e.subMu.Lock()
		for _, t := range toAdd {
			e.subscribed[t] = struct{}{}
		}
		e.subMu.Unlock()
	}

	e.Logger.Info("Reconciled subscriptions: +%d -%d (now %d)", len(toAdd), len(toRemove), len(desired))
}

// -----------------------------------------------------------------------------

// Diff returns the tokens to subscribe (in desired, not current) and to
// unsubscribe (in current, not desired).
func Diff(desired, current map[int64]struct{}) (toAdd, toRemove []int64) {
	for t := range desired {
		if _, ok := current[t]; !ok {
			toAdd = append(toAdd, t)
		}
	}
	for t := range current {
		if _, ok := desired[t]; !ok {
			toRemove = append(toRemove, t)
		}
	}
	return toAdd, toRemove
}
