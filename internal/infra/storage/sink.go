package storage

import (
	"context"
	"fmt"
	"log/slog"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"
)

// Mirror receives a copy of every persisted envelope.
type Mirror interface {
	Publish(ctx context.Context, env event.Envelope) error
	Close() error
}

// Sink drains the persistence queue into a MarketDataStore.
type Sink struct {
	store  domain.MarketDataStore
	queue  *event.Queue
	mirror Mirror
	logger *slog.Logger
}

// NewSink creates a sink. mirror may be nil.
func NewSink(store domain.MarketDataStore, queue *event.Queue, mirror Mirror) *Sink {
	return &Sink{
		store:  store,
		queue:  queue,
		mirror: mirror,
		logger: slog.Default().With("module", "persistence"),
	}
}

// Run consumes until quit, then closes the store. A failed save closes the
// store and is returned as *domain.PersistenceError.
// Cancellation of ctx does not stop the sink; only quit does.
func (s *Sink) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	defer s.queue.Abandon()
	s.logger.Info("persistence sink started")

	for {
		env, err := s.queue.Get(ctx)
		if err != nil {
			return s.close(fmt.Errorf("persistence queue: %w", err))
		}

		if env.IsQuit() {
			s.logger.Info("quit received, closing storage")
			return s.close(nil)
		}

		saved, err := s.save(ctx, env)
		if err != nil {
			infra.GlobalMetrics.RecordError()
			s.logger.Error("save failed", slog.String("action", string(env.Action)), slog.Any("error", err))
			return s.close(err)
		}

		if saved && s.mirror != nil {
			if err := s.mirror.Publish(ctx, env); err != nil {
				s.logger.Warn("mirror publish failed", slog.String("action", string(env.Action)), slog.Any("error", err))
			}
		}
	}
}

// save reports whether env was stored. Envelopes it cannot store are
// logged and skipped.
func (s *Sink) save(ctx context.Context, env event.Envelope) (bool, error) {
	switch env.Action {
	case event.ActionTicker:
		bars, ok := env.Payload.([]domain.TickerBar)
		if !ok {
			return s.discard(env), nil
		}
		if err := s.store.SaveTickerBars(ctx, bars); err != nil {
			return false, &domain.PersistenceError{Op: "save_tkr", Err: err}
		}
		infra.GlobalMetrics.RecordPersisted(len(bars))

	case event.ActionLevel1:
		quote, ok := env.Payload.(domain.Level1Quote)
		if !ok {
			return s.discard(env), nil
		}
		if err := s.store.SaveLevel1(ctx, quote); err != nil {
			return false, &domain.PersistenceError{Op: "save_lvl1", Err: err}
		}
		infra.GlobalMetrics.RecordPersisted(1)

	case event.ActionOrder:
		rec, ok := env.Payload.(domain.OrderRecord)
		if !ok {
			return s.discard(env), nil
		}
		if err := s.store.SaveOrder(ctx, rec); err != nil {
			return false, &domain.PersistenceError{Op: "save_order", Err: err}
		}
		infra.GlobalMetrics.RecordPersisted(1)

	default:
		return s.discard(env), nil
	}
	return true, nil
}

// discard logs an envelope the sink cannot store. It never stops the sink.
func (s *Sink) discard(env event.Envelope) bool {
	s.logger.Warn("unexpected envelope discarded", slog.String("envelope", env.String()))
	return false
}

func (s *Sink) close(cause error) error {
	if s.mirror != nil {
		if err := s.mirror.Close(); err != nil {
			s.logger.Warn("mirror close failed", slog.Any("error", err))
		}
	}
	if err := s.store.Close(); err != nil {
		s.logger.Error("storage close failed", slog.Any("error", err))
		if cause == nil {
			return &domain.PersistenceError{Op: "close", Err: err}
		}
	}
	return cause
}
