package engine

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/strategy"

	"github.com/shopspring/decimal"
)

// scriptedStrategy returns one queued action list per bar.
type scriptedStrategy struct {
	script [][]strategy.Action
}

func (s *scriptedStrategy) OnTicker(bar domain.TickerBar) []strategy.Action {
	if len(s.script) == 0 {
		return nil
	}
	next := s.script[0]
	s.script = s.script[1:]
	return next
}

type panicStrategy struct{}

func (panicStrategy) OnTicker(bar domain.TickerBar) []strategy.Action {
	panic("boom")
}

type barRecorder struct {
	got int
}

func (r *barRecorder) UpdateBars(bars []domain.TickerBar) { r.got += len(bars) }

func buy(qty, price string) strategy.Action {
	return strategy.Action{
		Side:         domain.SideBuy,
		InstrumentID: 3,
		Qty:          decimal.RequireFromString(qty),
		Price:        decimal.RequireFromString(price),
	}
}

func sell(qty, price string) strategy.Action {
	a := buy(qty, price)
	a.Side = domain.SideSell
	return a
}

func testConfig(live bool) Config {
	return Config{
		Live:         live,
		FiatID:       6,
		InstrumentID: 3,
		TradingFee:   decimal.RequireFromString("0.002"),
	}
}

func get(t *testing.T, q *event.Queue) event.Envelope {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	env, err := q.Get(ctx)
	if err != nil {
		t.Fatalf("waiting on %s: %v", q.Name(), err)
	}
	return env
}

func start(e *Engine, ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() { done <- e.Run(ctx) }()
	return done
}

func wait(t *testing.T, done <-chan error) {
	t.Helper()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("engine returned %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("engine did not stop")
	}
}

func TestEngine_PaperOrders(t *testing.T) {
	fabric := event.NewFabric(event.DefaultCapacity)
	strat := &scriptedStrategy{script: [][]strategy.Action{
		{buy("0.1", "40000")},
		{sell("5", "40000")}, // more than held: skipped
		{sell("0.1", "41000")},
	}}
	bars := &barRecorder{}
	e := NewEngine(testConfig(false), fabric, strat, bars)
	done := start(e, context.Background())

	ctx := context.Background()
	batch := []domain.TickerBar{{InstrumentID: 3}, {InstrumentID: 3}, {InstrumentID: 3}}
	if err := fabric.MarketData.Put(ctx, event.Envelope{Action: event.ActionTicker, Payload: batch}); err != nil {
		t.Fatal(err)
	}

	first := get(t, fabric.Commands)
	if first.Action != event.ActionOrder {
		t.Fatalf("expected order, got %s", first)
	}
	cmd := first.Payload.(domain.OrderCommand)
	if cmd.Side != domain.SideBuy || !cmd.ReferencePrice.Equal(decimal.NewFromInt(40000)) {
		t.Errorf("unexpected command %+v", cmd)
	}

	second := get(t, fabric.Commands).Payload.(domain.OrderCommand)
	if second.Side != domain.SideSell || second.ClientOrderID <= cmd.ClientOrderID {
		t.Errorf("expected a later sell, got %+v", second)
	}

	if err := fabric.MarketData.Put(ctx, event.Quit()); err != nil {
		t.Fatal(err)
	}
	if !get(t, fabric.Commands).IsQuit() {
		t.Error("expected quit on commands")
	}
	wait(t, done)

	s := e.Snapshot()
	if s.OrdersEmitted != 2 || s.OrdersSkipped != 1 || s.BarsSeen != 3 {
		t.Errorf("unexpected counters %+v", s)
	}
	// 10000 - 4000 - 8 + 4100 - 8.2
	if want := decimal.RequireFromString("10083.8"); !s.Portfolio.Fiat.Equal(want) {
		t.Errorf("fiat = %s, want %s", s.Portfolio.Fiat, want)
	}
	if !s.Portfolio.Crypto.IsZero() {
		t.Errorf("crypto = %s, want 0", s.Portfolio.Crypto)
	}
	if bars.got != 3 {
		t.Errorf("bar sink saw %d bars", bars.got)
	}
	if !fabric.MarketData.Abandoned() {
		t.Error("market data should be abandoned after stop")
	}
}

func TestEngine_LiveFlow(t *testing.T) {
	fabric := event.NewFabric(event.DefaultCapacity)
	e := NewEngine(testConfig(true), fabric, nil, nil)
	done := start(e, context.Background())
	ctx := context.Background()

	if env := get(t, fabric.Commands); env.Action != event.ActionAcct {
		t.Fatalf("live start should request positions, got %s", env)
	}

	positions := []domain.AccountPosition{
		{ProductID: 6, Amount: decimal.NewFromInt(500)},
		{ProductID: 3, Amount: decimal.RequireFromString("0.25")},
	}
	fabric.MarketData.Put(ctx, event.Envelope{Action: event.ActionAcct, Payload: positions})
	fabric.MarketData.Put(ctx, event.Envelope{Action: event.ActionAck, Payload: domain.OrderAck{Status: "Rejected", ErrorMsg: "funds"}})
	fabric.MarketData.Put(ctx, event.Envelope{Action: event.ActionAck, Payload: domain.OrderAck{Status: "Accepted", OrderID: 9}})

	if env := get(t, fabric.Commands); env.Action != event.ActionAcct {
		t.Errorf("accepted ack should refresh positions, got %s", env)
	}

	fabric.MarketData.Put(ctx, event.Quit())
	if !get(t, fabric.Commands).IsQuit() {
		t.Error("expected quit")
	}
	wait(t, done)

	s := e.Snapshot()
	if !s.Portfolio.Fiat.Equal(decimal.NewFromInt(500)) || s.Portfolio.Crypto.String() != "0.25" {
		t.Errorf("positions not applied: %+v", s.Portfolio)
	}
	if s.LastAck == nil || s.LastAck.OrderID != 9 {
		t.Errorf("last ack = %+v", s.LastAck)
	}
}

func TestEngine_CancellationStartsCascade(t *testing.T) {
	fabric := event.NewFabric(event.DefaultCapacity)
	e := NewEngine(testConfig(false), fabric, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := start(e, ctx)

	cancel()
	if !get(t, fabric.Commands).IsQuit() {
		t.Error("cancellation should push quit onto commands")
	}
	wait(t, done)
}

func TestEngine_ProcessorGone(t *testing.T) {
	fabric := event.NewFabric(event.DefaultCapacity)
	fabric.Commands.Abandon()
	e := NewEngine(testConfig(false), fabric, nil, nil)
	done := start(e, context.Background())

	fabric.MarketData.Put(context.Background(), event.Quit())
	wait(t, done)
}

func TestEngine_PanicDumpsState(t *testing.T) {
	fabric := event.NewFabric(event.DefaultCapacity)
	cfg := testConfig(false)
	cfg.DumpPath = filepath.Join(t.TempDir(), "dump.json")
	e := NewEngine(cfg, fabric, panicStrategy{}, nil)

	fabric.MarketData.Put(context.Background(), event.Envelope{Action: event.ActionTicker, Payload: []domain.TickerBar{{InstrumentID: 3}}})

	func() {
		defer func() {
			if r := recover(); r == nil {
				t.Error("engine should halt on strategy panic")
			}
		}()
		e.Run(context.Background())
	}()

	if _, err := os.Stat(cfg.DumpPath); err != nil {
		t.Errorf("state dump missing: %v", err)
	}
}
