package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Level1Quote is a top-of-book snapshot for one instrument.
// TimestampMs is the local receive time, not the exchange's.
type Level1Quote struct {
	TimestampMs    int64           `gorm:"column:timestamp_ms;uniqueIndex:idx_lvl1_instrument_ts,priority:2;not null" json:"timestamp_ms"`
	InstrumentID   int64           `gorm:"column:tkr_id;uniqueIndex:idx_lvl1_instrument_ts,priority:1;not null" json:"tkr_id"`
	BestBid        decimal.Decimal `gorm:"column:best_bid;type:decimal(32,18);not null" json:"best_bid"`
	BestAsk        decimal.Decimal `gorm:"column:best_ask;type:decimal(32,18);not null" json:"best_ask"`
	LastTradePrice decimal.Decimal `gorm:"column:last_trade_price;type:decimal(32,18);not null" json:"last_trade_price"`
	LastTradeQty   decimal.Decimal `gorm:"column:last_trade_qty;type:decimal(32,18);not null" json:"last_trade_qty"`
	LastTradeTime  int64           `gorm:"column:last_trade_time;not null" json:"last_trade_time"`
	TickerSymbol   string          `gorm:"column:tkr;type:varchar(20)" json:"tkr"`
}

// TableName pins the table used by the persistence backend.
func (Level1Quote) TableName() string { return "ndax_lvl1_data" }

// level1Payload is the exchange's Level1UpdateEvent body.
// decimal.Decimal decodes both JSON numbers and quoted strings from their literal text.
type level1Payload struct {
	InstrumentID  int64           `json:"InstrumentId"`
	BestBid       decimal.Decimal `json:"BestBid"`
	BestOffer     decimal.Decimal `json:"BestOffer"`
	LastTradedPx  decimal.Decimal `json:"LastTradedPx"`
	LastTradedQty decimal.Decimal `json:"LastTradedQty"`
	LastTradeTime int64           `json:"LastTradeTime"`
}

// ParseLevel1 decodes a level1 payload and stamps it with receivedMs.
// The ticker symbol is left for the caller to resolve.
func ParseLevel1(payload []byte, receivedMs int64) (Level1Quote, error) {
	var p level1Payload
	if err := json.Unmarshal(payload, &p); err != nil {
		return Level1Quote{}, fmt.Errorf("decode level1: %w", err)
	}
	return Level1Quote{
		TimestampMs:    receivedMs,
		InstrumentID:   p.InstrumentID,
		BestBid:        p.BestBid,
		BestAsk:        p.BestOffer,
		LastTradePrice: p.LastTradedPx,
		LastTradeQty:   p.LastTradedQty,
		LastTradeTime:  p.LastTradeTime,
	}, nil
}

// BroadcastQuote is the wire-safe rendering of a Level1Quote sent to local subscribers.
type BroadcastQuote struct {
	TimestampMs    int64   `json:"timestamp_ms"`
	InstrumentID   int64   `json:"tkr_id"`
	TickerSymbol   string  `json:"tkr"`
	BestBid        float64 `json:"best_bid"`
	BestAsk        float64 `json:"best_ask"`
	LastTradePrice float64 `json:"last_trade_price"`
	LastTradeQty   float64 `json:"last_trade_qty"`
	LastTradeTime  int64   `json:"last_trade_time"`
}

// ToBroadcast narrows every decimal field to float64.
// This is the only place quotes lose precision.
func (q Level1Quote) ToBroadcast() BroadcastQuote {
	return BroadcastQuote{
		TimestampMs:    q.TimestampMs,
		InstrumentID:   q.InstrumentID,
		TickerSymbol:   q.TickerSymbol,
		BestBid:        q.BestBid.InexactFloat64(),
		BestAsk:        q.BestAsk.InexactFloat64(),
		LastTradePrice: q.LastTradePrice.InexactFloat64(),
		LastTradeQty:   q.LastTradeQty.InexactFloat64(),
		LastTradeTime:  q.LastTradeTime,
	}
}

// BroadcastMessage is the envelope local subscribers receive.
type BroadcastMessage struct {
	Action string         `json:"action"`
	Data   BroadcastQuote `json:"data"`
}

// Spread returns ask minus bid.
func (q Level1Quote) Spread() decimal.Decimal {
	return q.BestAsk.Sub(q.BestBid)
}
