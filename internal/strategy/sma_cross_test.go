package strategy_test

import (
	"testing"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/strategy"

	"github.com/shopspring/decimal"
)

func TestSMACrossStrategy(t *testing.T) {
	// Setup: Short=3, Long=5
	strat, err := strategy.NewSMACrossStrategy(3, 3, 5, decimal.RequireFromString("0.01"))
	if err != nil {
		t.Fatal(err)
	}

	push := func(price int64) []strategy.Action {
		return strat.OnTicker(domain.TickerBar{InstrumentID: 3, Close: decimal.NewFromInt(price)})
	}

	// T1-T5: All 100. The first full window only primes the state.
	for i := 0; i < 5; i++ {
		actions := push(100)
		if len(actions) > 0 {
			t.Errorf("T%d: Expected no actions, got %v", i, actions)
		}
	}

	// T6: 200 -> Short 133.3 > Long 120 => GOLDEN CROSS (BUY)
	actions := push(200)
	if len(actions) != 1 {
		t.Fatalf("T6: Expected 1 action (BUY), got %d", len(actions))
	}
	if actions[0].Side != domain.SideBuy {
		t.Errorf("T6: Expected BUY, got %s", actions[0].Side)
	}
	if !actions[0].Price.Equal(decimal.NewFromInt(200)) || actions[0].Qty.String() != "0.01" {
		t.Errorf("T6: unexpected price/qty %s/%s", actions[0].Price, actions[0].Qty)
	}
	if actions[0].InstrumentID != 3 {
		t.Errorf("T6: Expected instrument 3, got %d", actions[0].InstrumentID)
	}

	// T7: 50 -> Short 116.7 > Long 110, still above
	actions = push(50)
	if len(actions) != 0 {
		t.Errorf("T7: Expected no actions, got %v", actions)
	}

	// T8: 0 -> Short 83.3 < Long 90 => DEAD CROSS (SELL)
	actions = push(0)
	if len(actions) != 1 {
		t.Fatalf("T8: Expected 1 action (SELL), got %d", len(actions))
	}
	if actions[0].Side != domain.SideSell {
		t.Errorf("T8: Expected SELL, got %s", actions[0].Side)
	}
}

func TestSMACrossStrategy_OtherInstrument(t *testing.T) {
	strat, err := strategy.NewSMACrossStrategy(3, 2, 3, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	for _, p := range []int64{1, 1, 1, 1, 100} {
		if actions := strat.OnTicker(domain.TickerBar{InstrumentID: 5, Close: decimal.NewFromInt(p)}); actions != nil {
			t.Errorf("expected bars of other instruments to be ignored, got %v", actions)
		}
	}
}

func TestSMACrossStrategy_ExactDecimals(t *testing.T) {
	// Flat prices that drift in the 8th decimal still cross exactly.
	strat, err := strategy.NewSMACrossStrategy(3, 1, 2, decimal.NewFromInt(1))
	if err != nil {
		t.Fatal(err)
	}
	prices := []string{"0.10000000", "0.10000000", "0.10000001"}
	var actions []strategy.Action
	for _, p := range prices {
		actions = strat.OnTicker(domain.TickerBar{InstrumentID: 3, Close: decimal.RequireFromString(p)})
	}
	if len(actions) != 1 || actions[0].Side != domain.SideBuy {
		t.Errorf("expected BUY on a one-satoshi rise, got %v", actions)
	}
}

func TestNewSMACrossStrategy_Invalid(t *testing.T) {
	tests := []struct {
		name        string
		short, long int
		qty         decimal.Decimal
	}{
		{"short equals long", 5, 5, decimal.NewFromInt(1)},
		{"short above long", 6, 5, decimal.NewFromInt(1)},
		{"zero short", 0, 5, decimal.NewFromInt(1)},
		{"zero qty", 2, 5, decimal.Zero},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := strategy.NewSMACrossStrategy(3, tt.short, tt.long, tt.qty); err == nil {
				t.Error("expected error")
			}
		})
	}
}
