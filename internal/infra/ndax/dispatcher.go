package ndax

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"
)

var errUnknownMessage = errors.New("unknown message name")

// FrameReader yields raw inbound frames. *Session implements it.
type FrameReader interface {
	ReadMessage() ([]byte, error)
}

// QuoteSink receives every decoded level1 quote.
type QuoteSink interface {
	Update(q domain.Level1Quote)
}

// AckMatcher pairs a SendOrder reply with the command that caused it.
// It returns a trade history record only for accepted orders.
type AckMatcher interface {
	Match(ack domain.OrderAck, nowMs int64) (domain.OrderRecord, bool)
}

// DispatcherConfig holds the routing inputs of a Dispatcher.
type DispatcherConfig struct {
	Instruments     domain.InstrumentTable
	BroadcastFilter map[int64]struct{}
	Quotes          QuoteSink  // optional
	Acks            AckMatcher // optional, live mode only
}

// Dispatcher reads exchange frames and routes typed envelopes to the queues.
type Dispatcher struct {
	reader FrameReader
	fabric *event.Fabric
	cfg    DispatcherConfig
	now    func() time.Time
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher reading from reader.
func NewDispatcher(reader FrameReader, fabric *event.Fabric, cfg DispatcherConfig) *Dispatcher {
	if cfg.BroadcastFilter == nil {
		cfg.BroadcastFilter = map[int64]struct{}{}
	}
	return &Dispatcher{
		reader: reader,
		fabric: fabric,
		cfg:    cfg,
		now:    time.Now,
		logger: slog.Default().With("module", "ndax_dispatcher"),
	}
}

// Run reads until the exchange confirms logout or the connection ends.
// Cancelling ctx does not stop it; it waits for its terminal message.
// A connection lost without Close is returned as *domain.ConnectionError.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	d.logger.Info("Dispatcher started")

	for {
		raw, err := d.reader.ReadMessage()
		if err != nil {
			return d.terminate(ctx, err)
		}

		start := time.Now()
		stop := d.handle(ctx, raw)
		infra.GlobalMetrics.RecordFrame(time.Since(start).Nanoseconds())
		if stop {
			d.logger.Info("Dispatcher stopped after logout")
			return nil
		}
	}
}

func (d *Dispatcher) terminate(ctx context.Context, cause error) error {
	d.pushQuit(ctx)

	if errors.Is(cause, domain.ErrSessionClosed) {
		d.logger.Info("Dispatcher stopped, session closed")
		return nil
	}
	infra.GlobalMetrics.RecordError()
	d.logger.Error("Connection lost", slog.Any("error", cause))
	return cause
}

func (d *Dispatcher) pushQuit(ctx context.Context) {
	d.put(ctx, d.fabric.Persistence, event.Quit())
	d.put(ctx, d.fabric.Broadcast, event.Quit())
}

// handle routes one frame and reports whether the dispatcher should stop.
func (d *Dispatcher) handle(ctx context.Context, raw []byte) bool {
	frame, payload, err := DecodeFrame(raw)
	if err != nil {
		d.discard(&domain.MalformedMessageError{Reason: err})
		return false
	}

	switch Classify(frame.N) {
	case KindTicker:
		bars, err := domain.ParseTickerRows(payload)
		if err != nil {
			d.discard(&domain.MalformedMessageError{Name: frame.N, Reason: err})
			return false
		}
		env := event.Envelope{Action: event.ActionTicker, Payload: bars}
		d.put(ctx, d.fabric.MarketData, env)
		d.put(ctx, d.fabric.Persistence, env)

	case KindLevel1:
		quote, err := domain.ParseLevel1(payload, d.now().UnixMilli())
		if err != nil {
			d.discard(&domain.MalformedMessageError{Name: frame.N, Reason: err})
			return false
		}
		d.routeLevel1(ctx, quote)

	case KindAccountPositions:
		positions, err := domain.ParseAccountPositions(payload)
		if err != nil {
			d.discard(&domain.MalformedMessageError{Name: frame.N, Reason: err})
			return false
		}
		d.put(ctx, d.fabric.MarketData, event.Envelope{Action: event.ActionAcct, Payload: positions})

	case KindSendOrder:
		ack, err := domain.ParseOrderAck(payload)
		if err != nil {
			d.discard(&domain.MalformedMessageError{Name: frame.N, Reason: err})
			return false
		}
		d.routeAck(ctx, ack)

	case KindLogOut:
		d.logger.Info("Logout confirmed", slog.String("reply", frame.O))
		d.pushQuit(ctx)
		return true

	case KindAuthenticate:
		d.logger.Debug("Ignoring late authentication reply")

	default:
		d.discard(&domain.MalformedMessageError{Name: frame.N, Reason: errUnknownMessage})
	}
	return false
}

func (d *Dispatcher) routeLevel1(ctx context.Context, quote domain.Level1Quote) {
	symbol, ok := d.cfg.Instruments.Symbol(quote.InstrumentID)
	if !ok {
		d.logger.Warn("Level1 for unknown instrument", slog.Int64("instrument_id", quote.InstrumentID))
	}
	quote.TickerSymbol = symbol

	if d.cfg.Quotes != nil {
		d.cfg.Quotes.Update(quote)
	}

	env := event.Envelope{Action: event.ActionLevel1, Payload: quote}
	d.put(ctx, d.fabric.Persistence, env)
	if _, ok := d.cfg.BroadcastFilter[quote.InstrumentID]; ok {
		d.put(ctx, d.fabric.Broadcast, env)
	}
}

func (d *Dispatcher) routeAck(ctx context.Context, ack domain.OrderAck) {
	if ack.IsAccepted() {
		d.logger.Info("Order accepted", slog.Int64("order_id", ack.OrderID))
	} else {
		d.logger.Warn("Order not accepted", slog.String("status", ack.Status), slog.String("error", ack.ErrorMsg))
	}

	d.put(ctx, d.fabric.MarketData, event.Envelope{Action: event.ActionAck, Payload: ack})

	if d.cfg.Acks == nil {
		return
	}
	if rec, ok := d.cfg.Acks.Match(ack, d.now().UnixMilli()); ok {
		d.put(ctx, d.fabric.Persistence, event.Envelope{Action: event.ActionOrder, Payload: rec})
	}
}

func (d *Dispatcher) discard(err error) {
	infra.GlobalMetrics.RecordDiscard()
	d.logger.Warn("Discarding frame", slog.Any("error", err))
}

// put drops env when the consumer has already stopped.
func (d *Dispatcher) put(ctx context.Context, q *event.Queue, env event.Envelope) {
	if err := q.Put(ctx, env); err != nil {
		d.logger.Debug("Dropped envelope",
			slog.String("queue", q.Name()),
			slog.String("action", string(env.Action)),
			slog.Any("error", err))
	}
}
