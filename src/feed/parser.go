package feed

import (
	"encoding/binary"
	"fmt"
	"time"

	"tickstream/src/models"
)

// -----------------------------------------------------------------------------
// Binary quote-packet parsing
// -----------------------------------------------------------------------------

// Packet sizes on the push feed. Everything is big-endian int32; prices are
// in 1/100 units.
const (
	packetLTP   = 8
	packetQuote = 44
	packetFull  = 184
)

// ParseBinaryTicks decodes one binary feed message:
//
//	[2B packet count] then per packet [2B length][payload]
//
// A message shorter than 2 bytes is the feed's heartbeat and yields no
// ticks. Individual short/oversized packets make the whole message
// malformed; callers drop and log it.
func ParseBinaryTicks(data []byte) ([]models.MTick, error) {
	if len(data) < 2 {
		return nil, nil // heartbeat
	}

	count := int(binary.BigEndian.Uint16(data[0:2]))
	offset := 2
	now := time.Now().UTC()

	ticks := make([]models.MTick, 0, count)
	for i := 0; i < count; i++ {
		if offset+2 > len(data) {
			return nil, fmt.Errorf("truncated packet header at %d", offset)
		}
		plen := int(binary.BigEndian.Uint16(data[offset : offset+2]))
		offset += 2

		if offset+plen > len(data) {
			return nil, fmt.Errorf("truncated packet body at %d (want %d bytes)", offset, plen)
		}
		packet := data[offset : offset+plen]
		offset += plen

		tick, err := parsePacket(packet)
		if err != nil {
			return nil, err
		}
		tick.ReceivedAt = now
		ticks = append(ticks, tick)
	}

	return ticks, nil
}

// -----------------------------------------------------------------------------

func parsePacket(p []byte) (models.MTick, error) {
	if len(p) < packetLTP {
		return models.MTick{}, fmt.Errorf("packet too short: %d bytes", len(p))
	}

	tick := models.MTick{
		Token:     int64(int32(binary.BigEndian.Uint32(p[0:4]))),
		LastPrice: price(p, 4),
	}

	if len(p) >= packetQuote {
		tick.LastQty = qty(p, 8)
		tick.AvgPrice = price(p, 12)
		tick.Volume = qty(p, 16)
		tick.BuyQty = qty(p, 20)
		tick.SellQty = qty(p, 24)
		tick.Open = price(p, 28)
		tick.High = price(p, 32)
		tick.Low = price(p, 36)
		tick.Close = price(p, 40)

		if tick.Close > 0 {
			tick.Change = (tick.LastPrice - tick.Close) / tick.Close * 100
		}
	}

	if len(p) >= packetFull {
		tick.LastTradeTime = qty(p, 44)
	}

	return tick, nil
}

// -----------------------------------------------------------------------------

func price(p []byte, off int) float64 {
	return float64(int32(binary.BigEndian.Uint32(p[off:off+4]))) / 100
}

// -----------------------------------------------------------------------------

func qty(p []byte, off int) int64 {
	return int64(int32(binary.BigEndian.Uint32(p[off : off+4])))
}
