package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func TestParseLevel1(t *testing.T) {
	t.Run("quoted decimals", func(t *testing.T) {
		payload := []byte(`{"InstrumentId":3,"BestBid":"100.5","BestOffer":"101.0","LastTradedPx":"100.8","LastTradedQty":"0.01","LastTradeTime":1700000000}`)

		q, err := ParseLevel1(payload, 1700000000123)
		if err != nil {
			t.Fatalf("ParseLevel1 failed: %v", err)
		}
		if q.TimestampMs != 1700000000123 {
			t.Errorf("TimestampMs = %d, want receive time", q.TimestampMs)
		}
		if q.InstrumentID != 3 {
			t.Errorf("InstrumentID = %d", q.InstrumentID)
		}
		if !q.BestBid.Equal(decimal.RequireFromString("100.5")) {
			t.Errorf("BestBid = %s", q.BestBid)
		}
		if !q.BestAsk.Equal(decimal.RequireFromString("101")) {
			t.Errorf("BestAsk = %s", q.BestAsk)
		}
		if q.LastTradeQty.String() != "0.01" {
			t.Errorf("LastTradeQty = %s", q.LastTradeQty)
		}
		if q.LastTradeTime != 1700000000 {
			t.Errorf("LastTradeTime = %d", q.LastTradeTime)
		}
		if q.TickerSymbol != "" {
			t.Error("Symbol is resolved by the caller")
		}
	})

	t.Run("numeric decimals keep their literal text", func(t *testing.T) {
		payload := []byte(`{"InstrumentId":1,"BestBid":0.1,"BestOffer":0.30000000000000004,"LastTradedPx":2,"LastTradedQty":3,"LastTradeTime":4}`)

		q, err := ParseLevel1(payload, 0)
		if err != nil {
			t.Fatalf("ParseLevel1 failed: %v", err)
		}
		if q.BestAsk.String() != "0.30000000000000004" {
			t.Errorf("BestAsk = %s", q.BestAsk)
		}
	})

	t.Run("malformed", func(t *testing.T) {
		if _, err := ParseLevel1([]byte(`{"BestBid":"abc"}`), 0); err == nil {
			t.Error("Expected error for non-numeric bid")
		}
		if _, err := ParseLevel1([]byte(`[`), 0); err == nil {
			t.Error("Expected error for truncated payload")
		}
	})
}

func TestLevel1Quote_ToBroadcast(t *testing.T) {
	q := Level1Quote{
		TimestampMs:    10,
		InstrumentID:   3,
		BestBid:        decimal.RequireFromString("100.5"),
		BestAsk:        decimal.RequireFromString("101.0"),
		LastTradePrice: decimal.RequireFromString("100.8"),
		LastTradeQty:   decimal.RequireFromString("0.01"),
		LastTradeTime:  1700000000,
		TickerSymbol:   "BTCUSD",
	}

	b := q.ToBroadcast()
	if b.BestBid != 100.5 || b.BestAsk != 101.0 || b.LastTradePrice != 100.8 || b.LastTradeQty != 0.01 {
		t.Errorf("Unexpected floats: %+v", b)
	}
	if b.TickerSymbol != "BTCUSD" || b.InstrumentID != 3 {
		t.Errorf("Identity fields lost: %+v", b)
	}

	raw, err := json.Marshal(BroadcastMessage{Action: "lvl1", Data: b})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}
	data := decoded["data"].(map[string]any)
	if _, ok := data["best_bid"].(float64); !ok {
		t.Errorf("best_bid should be a JSON number, got %T", data["best_bid"])
	}
	if data["tkr"] != "BTCUSD" {
		t.Errorf("tkr = %v", data["tkr"])
	}

	// Source quote is untouched.
	if q.BestBid.String() != "100.5" {
		t.Error("ToBroadcast must not mutate the quote")
	}
}

func TestLevel1Quote_Spread(t *testing.T) {
	q := Level1Quote{BestBid: decimal.RequireFromString("100.5"), BestAsk: decimal.RequireFromString("101")}
	if q.Spread().String() != "0.5" {
		t.Errorf("Spread = %s", q.Spread())
	}
}
