package engine

import (
	"context"
	"testing"
	"time"

	"tickstream/src/broker"
	"tickstream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRecordFromCache(t *testing.T) {
	e, b, _, _, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1

	high, low := 150.0, 80.0
	e.Cache.RecordTick(models.MTick{Token: 1, LastPrice: 100, High: 110, Low: 95})
	e.Cache.PutRange(1, models.MWeekRange{High: &high, Low: &low}, time.Now())

	rec := e.buildRecord(context.Background(), "NSE", "INFY", 1)

	require.NotNil(t, rec.CMP)
	assert.Equal(t, 100.0, *rec.CMP)
	require.NotNil(t, rec.DFL)
	assert.Equal(t, 20.0, *rec.DFL)

	// Everything came from the cache.
	assert.Equal(t, 0, b.quoteCalls)
	assert.Equal(t, 0, b.rangeCalls)
}

func TestQuoteFallbackSeedsCache(t *testing.T) {
	e, b, _, _, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quotes["NSE:INFY"] = &models.MTick{Token: 1, LastPrice: 42}

	rec := e.buildRecord(context.Background(), "NSE", "INFY", 1)

	require.NotNil(t, rec.CMP)
	assert.Equal(t, 42.0, *rec.CMP)
	assert.Equal(t, 1, b.quoteCalls)

	// The quote now serves from the cache.
	e.buildRecord(context.Background(), "NSE", "INFY", 1)
	assert.Equal(t, 1, b.quoteCalls)
}

func TestRangeFetchDerivesHighLow(t *testing.T) {
	e, b, _, _, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quoteErr = broker.ErrInstrumentNotFound
	b.bars = []models.MDailyBar{
		{High: 120, Low: 90},
		{High: 150, Low: 100},
		{High: 130, Low: 80},
	}

	rec := e.buildRecord(context.Background(), "NSE", "INFY", 1)

	require.NotNil(t, rec.W52High)
	assert.Equal(t, 150.0, *rec.W52High)
	require.NotNil(t, rec.W52Low)
	assert.Equal(t, 80.0, *rec.W52Low)
	assert.Equal(t, 1, b.rangeCalls)

	// Second build hits the range cache.
	e.buildRecord(context.Background(), "NSE", "INFY", 1)
	assert.Equal(t, 1, b.rangeCalls)
}

func TestRecordWithNoData(t *testing.T) {
	e, b, _, _, _ := newTestEngine()
	b.tokens["NSE:GHOST"] = 9
	b.quoteErr = broker.ErrInstrumentNotFound
	b.barsErr = broker.ErrInstrumentNotFound

	rec := e.buildRecord(context.Background(), "NSE", "GHOST", 9)

	assert.Equal(t, "GHOST", rec.Symbol)
	assert.Equal(t, int64(9), rec.Token)
	assert.Nil(t, rec.CMP)
	assert.Nil(t, rec.W52High)
	assert.Nil(t, rec.DFL)
}

func TestBuildBatchSkipsUnresolvable(t *testing.T) {
	e, b, _, _, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quotes["NSE:INFY"] = &models.MTick{Token: 1, LastPrice: 10}

	batch := e.buildBatch(context.Background(), []models.MWatchlistEntry{
		{Symbol: "INFY", Exchange: "NSE"},
		{Symbol: "NOSUCH", Exchange: "NSE"},
	})

	require.Len(t, batch, 1)
	assert.Equal(t, "INFY", batch[0].Symbol)
}

func TestAuthFailureMidCycle(t *testing.T) {
	e, b, f, _, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quoteErr = broker.ErrNotAuthenticated

	e.Cache.RecordTick(models.MTick{Token: 99, LastPrice: 5})

	batch := e.buildBatch(context.Background(), []models.MWatchlistEntry{
		{Symbol: "INFY", Exchange: "NSE"},
	})

	assert.Nil(t, batch)
	assert.True(t, b.invalidated)
	assert.True(t, f.marked)
	assert.Equal(t, 0, e.Cache.TickCount())
}

func TestBroadcastCyclePublishes(t *testing.T) {
	e, b, _, s, p := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quotes["NSE:INFY"] = &models.MTick{Token: 1, LastPrice: 10}
	s.setEntries([]models.MWatchlistEntry{{Symbol: "INFY", Exchange: "NSE"}})
	p.viewers = 1

	e.runBroadcastCycle(context.Background())

	require.Equal(t, 1, p.messageCount())
	msg := p.messages[0]
	assert.Equal(t, models.MsgTypeTickUpdate, msg.Type)
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "INFY", msg.Data[0].Symbol)
	assert.NotEmpty(t, msg.Timestamp)
}

func TestBroadcastCycleEmptyWatchlists(t *testing.T) {
	e, _, _, s, p := newTestEngine()
	s.setEntries(nil)
	p.viewers = 1

	e.runBroadcastCycle(context.Background())

	assert.Equal(t, 0, p.messageCount())
}

func TestInitialSnapshot(t *testing.T) {
	e, b, _, s, _ := newTestEngine()
	b.tokens["NSE:INFY"] = 1
	b.quotes["NSE:INFY"] = &models.MTick{Token: 1, LastPrice: 10}
	s.lists = []models.MWatchlist{{ID: "default", Name: "Default"}}
	s.setEntries([]models.MWatchlistEntry{{Symbol: "INFY", Exchange: "NSE"}})

	msg, err := e.InitialSnapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, models.MsgTypeInitial, msg.Type)
	require.Len(t, msg.Watchlists, 1)
	require.Len(t, msg.Data, 1)
	assert.Equal(t, "INFY", msg.Data[0].Symbol)
}

func TestLogoutClearsState(t *testing.T) {
	e, b, f, _, _ := newTestEngine()
	e.Cache.RecordTick(models.MTick{Token: 1, LastPrice: 5})

	e.Logout()

	assert.True(t, b.invalidated)
	assert.True(t, f.marked)
	assert.Equal(t, 0, e.Cache.TickCount())
}
