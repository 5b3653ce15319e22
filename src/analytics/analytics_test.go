package analytics

import (
	"testing"

	"tickstream/src/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fullTick() *models.MTick {
	return &models.MTick{
		Token:     256265,
		LastPrice: 100,
		High:      110,
		Low:       95,
		BuyQty:    1000,
		SellQty:   500,
		Change:    1.25,
		Volume:    123456,
	}
}

func fullRange() *models.MWeekRange {
	high, low := 133.33, 80.0
	return &models.MWeekRange{High: &high, Low: &low}
}

func TestComputeFullRecord(t *testing.T) {
	rec := Compute("NSE", "INFY", 256265, fullTick(), fullRange())

	require.NotNil(t, rec.CMP)
	assert.Equal(t, 100.0, *rec.CMP)

	require.NotNil(t, rec.DFL)
	assert.Equal(t, 20.0, *rec.DFL)

	require.NotNil(t, rec.DFH)
	assert.Equal(t, 33.33, *rec.DFH)

	require.NotNil(t, rec.DFDH)
	assert.Equal(t, 10.0, *rec.DFDH)

	// Day-low distance is relative to the day low itself.
	require.NotNil(t, rec.DFDL)
	assert.Equal(t, 5.26, *rec.DFDL)

	require.NotNil(t, rec.BSR)
	assert.Equal(t, 2.0, *rec.BSR)

	assert.Equal(t, "INFY", rec.Symbol)
	assert.Equal(t, "NSE", rec.Exchange)
	assert.Equal(t, int64(256265), rec.Token)
}

func TestComputeNoTick(t *testing.T) {
	rec := Compute("NSE", "INFY", 1, nil, fullRange())

	assert.Nil(t, rec.CMP)
	assert.Nil(t, rec.DFL)
	assert.Nil(t, rec.DFH)
	assert.Nil(t, rec.DFDL)
	assert.Nil(t, rec.DFDH)
	assert.Nil(t, rec.BSR)
	require.NotNil(t, rec.W52High)
	assert.Equal(t, 133.33, *rec.W52High)
}

func TestComputeNoRange(t *testing.T) {
	rec := Compute("NSE", "INFY", 1, fullTick(), nil)

	assert.Nil(t, rec.W52High)
	assert.Nil(t, rec.W52Low)
	assert.Nil(t, rec.DFL)
	assert.Nil(t, rec.DFH)
	require.NotNil(t, rec.DFDH)
	require.NotNil(t, rec.DFDL)
}

func TestComputeNothing(t *testing.T) {
	rec := Compute("NSE", "XYZ", 1, nil, nil)

	assert.Nil(t, rec.CMP)
	assert.Nil(t, rec.W52High)
	assert.Nil(t, rec.W52Low)
	assert.Nil(t, rec.DFL)
	assert.Nil(t, rec.DFH)
	assert.Nil(t, rec.DayHigh)
	assert.Nil(t, rec.DayLow)
	assert.Nil(t, rec.BSR)
	assert.Equal(t, "XYZ", rec.Symbol)
}

func TestComputeZeroSellers(t *testing.T) {
	tick := fullTick()
	tick.SellQty = 0
	rec := Compute("NSE", "INFY", 1, tick, nil)

	assert.Nil(t, rec.BSR)
	require.NotNil(t, rec.Buyers)
	assert.Equal(t, 1000.0, *rec.Buyers)
	require.NotNil(t, rec.Sellers)
	assert.Equal(t, 0.0, *rec.Sellers)
}

func TestComputeZeroPrice(t *testing.T) {
	tick := fullTick()
	tick.LastPrice = 0
	rec := Compute("NSE", "INFY", 1, tick, fullRange())

	assert.Nil(t, rec.CMP)
	assert.Nil(t, rec.DFL)
	assert.Nil(t, rec.DFH)
	assert.Nil(t, rec.DFDH)
	assert.Nil(t, rec.DFDL)
}

func TestComputeSigns(t *testing.T) {
	// Above the 52-week high: dfh goes negative, dfl stays positive.
	tick := fullTick()
	tick.LastPrice = 140
	tick.High = 141
	tick.Low = 138
	rec := Compute("NSE", "INFY", 1, tick, fullRange())

	require.NotNil(t, rec.DFH)
	assert.Negative(t, *rec.DFH)
	require.NotNil(t, rec.DFL)
	assert.Positive(t, *rec.DFL)
}

func TestComputeRounding(t *testing.T) {
	low := 30.0
	tick := &models.MTick{LastPrice: 33.33}
	rec := Compute("NSE", "ABC", 1, tick, &models.MWeekRange{Low: &low})

	// (33.33 - 30) / 33.33 * 100 = 9.9909...
	require.NotNil(t, rec.DFL)
	assert.Equal(t, 9.99, *rec.DFL)
}

func TestComputeLastTradeTime(t *testing.T) {
	tick := fullTick()
	tick.LastTradeTime = 1700000000
	rec := Compute("NSE", "INFY", 1, tick, nil)

	require.NotNil(t, rec.LastTradeTime)
	assert.Equal(t, "2023-11-14T22:13:20Z", *rec.LastTradeTime)
}
