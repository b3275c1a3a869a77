package domain

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Ticker row layouts accepted on the wire.
// NDAX sends 10 columns (inside bid/ask included); the compact layout omits them.
const (
	tickerColumnsCompact = 8
	tickerColumnsFull    = 10
)

// TickerBar is one OHLCV aggregation interval for an instrument.
type TickerBar struct {
	TimestampMs     int64           `gorm:"column:timestamp_ms;uniqueIndex:idx_tkr_instrument_ts,priority:2;not null" json:"timestamp_ms"`
	High            decimal.Decimal `gorm:"column:high;type:decimal(32,18);not null" json:"high"`
	Low             decimal.Decimal `gorm:"column:low;type:decimal(32,18);not null" json:"low"`
	Open            decimal.Decimal `gorm:"column:open;type:decimal(32,18);not null" json:"open"`
	Close           decimal.Decimal `gorm:"column:close;type:decimal(32,18);not null" json:"close"`
	Volume          decimal.Decimal `gorm:"column:volume;type:decimal(32,18);not null" json:"volume"`
	InsideBid       decimal.Decimal `gorm:"column:inside_bid_price;type:decimal(32,18)" json:"inside_bid_price"`
	InsideAsk       decimal.Decimal `gorm:"column:inside_ask_price;type:decimal(32,18)" json:"inside_ask_price"`
	InstrumentID    int64           `gorm:"column:tkr_id;uniqueIndex:idx_tkr_instrument_ts,priority:1;not null" json:"tkr_id"`
	IntervalStartMs int64           `gorm:"column:timestamp_beg_ms;not null" json:"timestamp_beg_ms"`
}

// TableName pins the table used by the persistence backend.
func (TickerBar) TableName() string { return "ndax_tkr_data" }

// ParseTickerRows maps the positional ticker payload onto TickerBars.
// Price and volume columns are parsed as exact decimals from their textual form.
func ParseTickerRows(payload []byte) ([]TickerBar, error) {
	var rows [][]json.RawMessage
	if err := json.Unmarshal(payload, &rows); err != nil {
		return nil, fmt.Errorf("decode ticker rows: %w", err)
	}

	bars := make([]TickerBar, 0, len(rows))
	for i, row := range rows {
		bar, err := parseTickerRow(row)
		if err != nil {
			return nil, fmt.Errorf("ticker row %d: %w", i, err)
		}
		bars = append(bars, bar)
	}
	return bars, nil
}

func parseTickerRow(row []json.RawMessage) (TickerBar, error) {
	var bar TickerBar
	var err error

	switch len(row) {
	case tickerColumnsFull, tickerColumnsCompact:
	default:
		return bar, fmt.Errorf("unexpected column count %d", len(row))
	}

	if bar.TimestampMs, err = parseInt(row[0]); err != nil {
		return bar, fmt.Errorf("timestamp: %w", err)
	}
	if bar.High, err = parseDecimal(row[1]); err != nil {
		return bar, fmt.Errorf("high: %w", err)
	}
	if bar.Low, err = parseDecimal(row[2]); err != nil {
		return bar, fmt.Errorf("low: %w", err)
	}
	if bar.Open, err = parseDecimal(row[3]); err != nil {
		return bar, fmt.Errorf("open: %w", err)
	}
	if bar.Close, err = parseDecimal(row[4]); err != nil {
		return bar, fmt.Errorf("close: %w", err)
	}
	if bar.Volume, err = parseDecimal(row[5]); err != nil {
		return bar, fmt.Errorf("volume: %w", err)
	}

	rest := row[6:]
	if len(row) == tickerColumnsFull {
		if bar.InsideBid, err = parseDecimal(row[6]); err != nil {
			return bar, fmt.Errorf("inside bid: %w", err)
		}
		if bar.InsideAsk, err = parseDecimal(row[7]); err != nil {
			return bar, fmt.Errorf("inside ask: %w", err)
		}
		rest = row[8:]
	}

	if bar.InstrumentID, err = parseInt(rest[0]); err != nil {
		return bar, fmt.Errorf("instrument id: %w", err)
	}
	if bar.IntervalStartMs, err = parseInt(rest[1]); err != nil {
		return bar, fmt.Errorf("interval start: %w", err)
	}
	return bar, nil
}

// parseDecimal accepts both JSON numbers and quoted numeric strings.
func parseDecimal(raw json.RawMessage) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.Trim(string(raw), `"`))
}

// parseInt tolerates exponent notation (1.7e12) as long as the value is integral.
func parseInt(raw json.RawMessage) (int64, error) {
	d, err := parseDecimal(raw)
	if err != nil {
		return 0, err
	}
	if !d.Equal(d.Truncate(0)) {
		return 0, fmt.Errorf("%s is not an integer", d.String())
	}
	return d.IntPart(), nil
}
