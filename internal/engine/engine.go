package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/strategy"

	"github.com/shopspring/decimal"
)

// paperStartingFiat is the simulated fiat balance of a paper run.
var paperStartingFiat = decimal.NewFromInt(10000)

// BarSink receives every ticker batch the engine sees.
type BarSink interface {
	UpdateBars(bars []domain.TickerBar)
}

// Config holds the engine parameters.
type Config struct {
	Live         bool
	FiatID       int64
	InstrumentID int64
	TradingFee   decimal.Decimal
	DumpPath     string
}

// State is a snapshot of the engine for external reads.
type State struct {
	Live          bool             `json:"live"`
	Portfolio     domain.Portfolio `json:"portfolio"`
	BarsSeen      uint64           `json:"bars_seen"`
	OrdersEmitted uint64           `json:"orders_emitted"`
	OrdersSkipped uint64           `json:"orders_skipped"`
	LastAck       *domain.OrderAck `json:"last_ack,omitempty"`
}

// Engine is the strategy side of the bridge. It consumes market data,
// runs the strategy and emits commands. It is the only component that
// stops on context cancellation, which starts the shutdown cascade.
type Engine struct {
	cfg      Config
	fabric   *event.Fabric
	strategy strategy.Strategy
	bars     BarSink
	now      func() time.Time

	nextClientID int64

	mu    sync.RWMutex // guards state for external reads
	state State

	logger *slog.Logger
}

// NewEngine creates an engine. strat and bars may be nil.
func NewEngine(cfg Config, fabric *event.Fabric, strat strategy.Strategy, bars BarSink) *Engine {
	if cfg.DumpPath == "" {
		cfg.DumpPath = "engine_panic_dump.json"
	}
	return &Engine{
		cfg:          cfg,
		fabric:       fabric,
		strategy:     strat,
		bars:         bars,
		now:          time.Now,
		nextClientID: time.Now().Unix(),
		state: State{
			Live:      cfg.Live,
			Portfolio: *domain.NewPortfolio(cfg.FiatID, cfg.InstrumentID),
		},
		logger: slog.Default().With("module", "engine"),
	}
}

// Run consumes the market-data queue until quit or ctx cancellation, then
// pushes quit onto the command queue.
func (e *Engine) Run(ctx context.Context) error {
	e.logger.Info("engine started", slog.Bool("live", e.cfg.Live))

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("CRITICAL_PANIC_DETECTED", slog.Any("panic", r))
			e.DumpState(e.cfg.DumpPath)
			// Halt after dump.
			panic(fmt.Sprintf("HALTED: %v", r))
		}
	}()
	defer e.fabric.MarketData.Abandon()

	if err := e.loadPositions(ctx); err != nil {
		e.logger.Warn("position request failed", slog.Any("error", err))
	}

	for {
		env, err := e.fabric.MarketData.Get(ctx)
		if err != nil {
			e.logger.Info("engine cancelled, initiating shutdown")
			return e.shutdown()
		}
		if env.IsQuit() {
			e.logger.Info("quit received, initiating shutdown")
			return e.shutdown()
		}
		if err := e.handle(ctx, env); err != nil {
			if ctx.Err() != nil {
				return e.shutdown()
			}
			e.logger.Warn("command not queued", slog.String("envelope", env.String()), slog.Any("error", err))
		}
	}
}

// loadPositions seeds paper balances or asks the exchange for live ones.
func (e *Engine) loadPositions(ctx context.Context) error {
	if !e.cfg.Live {
		e.mu.Lock()
		e.state.Portfolio.Seed(paperStartingFiat, decimal.Zero)
		e.state.Portfolio.LastUpdateMs = e.now().UnixMilli()
		e.mu.Unlock()
		return nil
	}
	return e.fabric.Commands.Put(ctx, event.Envelope{Action: event.ActionAcct})
}

func (e *Engine) handle(ctx context.Context, env event.Envelope) error {
	switch env.Action {
	case event.ActionTicker:
		bars, ok := env.Payload.([]domain.TickerBar)
		if !ok {
			return fmt.Errorf("unexpected ticker payload %T", env.Payload)
		}
		return e.onBars(ctx, bars)

	case event.ActionAcct:
		positions, ok := env.Payload.([]domain.AccountPosition)
		if !ok {
			return fmt.Errorf("unexpected account payload %T", env.Payload)
		}
		e.mu.Lock()
		n := e.state.Portfolio.Apply(positions, e.now().UnixMilli())
		p := e.state.Portfolio
		e.mu.Unlock()
		e.logger.Info("positions updated",
			slog.Int("applied", n),
			slog.String("fiat", p.Fiat.String()),
			slog.String("crypto", p.Crypto.String()))

	case event.ActionAck:
		ack, ok := env.Payload.(domain.OrderAck)
		if !ok {
			return fmt.Errorf("unexpected ack payload %T", env.Payload)
		}
		e.mu.Lock()
		e.state.LastAck = &ack
		e.mu.Unlock()
		if !ack.IsAccepted() {
			e.logger.Warn("order rejected", slog.String("status", ack.Status), slog.String("error", ack.ErrorMsg))
			return nil
		}
		e.logger.Info("order accepted", slog.Int64("order_id", ack.OrderID))
		// Balances changed on the exchange; refresh them.
		return e.fabric.Commands.Put(ctx, event.Envelope{Action: event.ActionAcct})

	default:
		e.logger.Warn("unknown market-data action", slog.String("action", string(env.Action)))
	}
	return nil
}

func (e *Engine) onBars(ctx context.Context, bars []domain.TickerBar) error {
	if e.bars != nil {
		e.bars.UpdateBars(bars)
	}
	e.mu.Lock()
	e.state.BarsSeen += uint64(len(bars))
	e.mu.Unlock()

	if e.strategy == nil {
		return nil
	}
	for _, bar := range bars {
		for _, action := range e.strategy.OnTicker(bar) {
			if err := e.emit(ctx, action); err != nil {
				return err
			}
		}
	}
	return nil
}

// emit turns a strategy action into an order command if the portfolio can
// cover it. Paper fills are booked immediately at the action price.
func (e *Engine) emit(ctx context.Context, action strategy.Action) error {
	e.nextClientID++
	cmd := domain.OrderCommand{
		InstrumentID:   action.InstrumentID,
		ClientOrderID:  e.nextClientID,
		Side:           action.Side,
		Quantity:       action.Qty,
		ReferencePrice: action.Price,
	}
	rec := domain.NewOrderRecord(cmd, e.now().UnixMilli(), e.cfg.TradingFee)

	e.mu.Lock()
	if !e.state.Portfolio.CanAfford(rec) {
		e.state.OrdersSkipped++
		e.mu.Unlock()
		e.logger.Info("STRATEGY_ACTION_SKIPPED",
			slog.String("side", cmd.Side.String()),
			slog.String("qty", cmd.Quantity.String()),
			slog.String("price", cmd.ReferencePrice.String()))
		return nil
	}
	if !e.cfg.Live {
		e.state.Portfolio.Fill(rec)
	}
	e.state.OrdersEmitted++
	e.mu.Unlock()

	e.logger.Info("STRATEGY_ACTION",
		slog.Int64("client_order_id", cmd.ClientOrderID),
		slog.String("side", cmd.Side.String()),
		slog.String("qty", cmd.Quantity.String()),
		slog.String("price", cmd.ReferencePrice.String()))
	return e.fabric.Commands.Put(ctx, event.Envelope{Action: event.ActionOrder, Payload: cmd})
}

// shutdown pushes quit onto the command queue. It ignores cancellation so
// the quit still reaches the processor.
func (e *Engine) shutdown() error {
	err := e.fabric.Commands.Put(context.Background(), event.Quit())
	if errors.Is(err, domain.ErrQueueAbandoned) {
		e.logger.Warn("command processor already stopped")
		return nil
	}
	return err
}

// Snapshot returns a copy of the engine state (external read).
func (e *Engine) Snapshot() State {
	e.mu.RLock()
	defer e.mu.RUnlock()

	s := e.state
	if s.LastAck != nil {
		ack := *s.LastAck
		s.LastAck = &ack
	}
	return s
}

// DumpState writes the entire internal state to a file (for post-mortem).
func (e *Engine) DumpState(filename string) {
	e.logger.Info("Dumping internal state...", slog.String("file", filename))

	data := struct {
		NextClientID int64 `json:"next_client_id"`
		State        State `json:"state"`
	}{
		NextClientID: e.nextClientID,
		State:        e.state,
	}

	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		e.logger.Error("Failed to marshal state", slog.Any("error", err))
		return
	}

	if err := os.WriteFile(filename, b, 0644); err != nil {
		e.logger.Error("Failed to write state dump", slog.Any("error", err))
	}
}
