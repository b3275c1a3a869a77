package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/engine"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/execution"
	"ndax_bridge/internal/infra"
	"ndax_bridge/internal/infra/admin"
	"ndax_bridge/internal/infra/broadcast"
	"ndax_bridge/internal/infra/ndax"
	"ndax_bridge/internal/infra/storage"
	"ndax_bridge/internal/infra/stream"
	"ndax_bridge/internal/service"
	"ndax_bridge/internal/strategy"

	"golang.org/x/sync/errgroup"
)

// Bootstrap orchestrates the application startup sequence
type Bootstrap struct {
	Config      *infra.Config
	Instruments domain.InstrumentTable
	Storage     *storage.Storage
	Fabric      *event.Fabric
	Quotes      *service.QuoteBook
	Session     *ndax.Session
}

// NewBootstrap creates a new Bootstrap instance
func NewBootstrap() *Bootstrap {
	return &Bootstrap{}
}

// Initialize loads the config file and sets up logging and storage.
func (b *Bootstrap) Initialize(configPath string) error {
	cfg, err := infra.LoadConfig(configPath)
	if err != nil {
		return err // Let main handle the error
	}

	slog.SetDefault(infra.NewLogger(cfg))
	return b.InitializeWithConfig(cfg)
}

// InitializeWithConfig performs core system initialization from a loaded config.
func (b *Bootstrap) InitializeWithConfig(cfg *infra.Config) error {
	b.Config = cfg
	slog.Info("Bootstrapping NDAX bridge", slog.Bool("live", cfg.App.Live))

	// 1. Instrument table
	instruments, err := infra.LoadInstrumentTable(cfg.NDAX.InstrumentsFile)
	if err != nil {
		return err
	}
	b.Instruments = instruments

	// 2. Storage (DB)
	store, err := storage.NewStorage(cfg)
	if err != nil {
		return err
	}
	b.Storage = store
	slog.Info("Database initialized", slog.String("driver", cfg.Database.Driver), slog.String("order_table", store.OrderTable()))

	if !cfg.App.Live {
		n, err := store.ClearPaperOrders(context.Background())
		if err != nil {
			return fmt.Errorf("clear paper orders: %w", err)
		}
		slog.Info("Cleared paper trade history", slog.Int64("rows", n))
	}

	// 3. Queues and shared state
	b.Fabric = event.NewFabric(cfg.App.QueueCapacity)
	b.Quotes = service.NewQuoteBook()
	b.Session = ndax.NewSession(cfg.NDAX.WSURI, cfg.Credential(), ndax.WithTickerInterval(cfg.NDAX.TickerIntervalSec))
	return nil
}

// Connect dials the exchange and authenticates. A dial failure is fatal;
// an authentication failure is not: it has already queued quit, and Run
// then unwinds through the shutdown cascade.
func (b *Bootstrap) Connect(ctx context.Context) error {
	if err := b.Session.Connect(ctx); err != nil {
		b.Storage.Close()
		return err
	}

	if err := b.Session.Authenticate(ctx, b.Fabric.MarketData); err != nil {
		slog.Warn("Authentication failed, shutting down", slog.Any("error", err))
		return nil
	}

	ids := b.Instruments.IDs()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if b.Config.NDAX.SubscribeTicker {
			if err := b.Session.Subscribe(ctx, id, domain.SubscriptionTicker); err != nil {
				slog.Warn("Ticker subscription failed", slog.Int64("instrument_id", id), slog.Any("error", err))
			}
		}
		if b.Config.NDAX.SubscribeLevel1 {
			if err := b.Session.Subscribe(ctx, id, domain.SubscriptionLevel1); err != nil {
				slog.Warn("Level1 subscription failed", slog.Int64("instrument_id", id), slog.Any("error", err))
			}
		}
	}
	return nil
}

// Run starts every component and blocks until the shutdown cascade has
// completed. Cancelling ctx enters the cascade through the engine; if it has
// not finished within the configured grace, the session is closed. The
// session is always closed on return.
func (b *Bootstrap) Run(ctx context.Context) error {
	cfg := b.Config
	fabric := b.Fabric
	defer func() {
		if err := b.Session.Close(); err != nil {
			slog.Warn("Session close failed", slog.Any("error", err))
		}
	}()

	// Execution
	var (
		exec domain.Execution
		acks ndax.AckMatcher
	)
	if cfg.App.Live {
		live := execution.NewLiveExecution(b.Session, cfg.App.TradingFee)
		exec, acks = live, live
	} else {
		exec = execution.NewPaperExecution(fabric.Persistence, cfg.App.TradingFee)
	}

	// Strategy
	var strat strategy.Strategy
	if cfg.Strategy.ShortPeriod > 0 {
		sma, err := strategy.NewSMACrossStrategy(cfg.App.InstrumentID, cfg.Strategy.ShortPeriod, cfg.Strategy.LongPeriod, cfg.Strategy.OrderQty)
		if err != nil {
			return err
		}
		strat = sma
	}

	// Persistence mirror
	var mirror storage.Mirror
	if len(cfg.Kafka.Brokers) > 0 {
		mirror = stream.NewKafkaMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		slog.Info("Kafka mirror enabled", slog.String("topic", cfg.Kafka.Topic))
	}

	dispatcher := ndax.NewDispatcher(b.Session, fabric, ndax.DispatcherConfig{
		Instruments:     b.Instruments,
		BroadcastFilter: cfg.BroadcastFilter(),
		Quotes:          b.Quotes,
		Acks:            acks,
	})
	processor := ndax.NewProcessor(b.Session, fabric.Commands, exec)
	sink := storage.NewSink(b.Storage, fabric.Persistence, mirror)
	eng := engine.NewEngine(engine.Config{
		Live:         cfg.App.Live,
		FiatID:       cfg.App.FiatID,
		InstrumentID: cfg.App.InstrumentID,
		TradingFee:   cfg.App.TradingFee,
	}, fabric, strat, b.Quotes)
	hub := broadcast.NewHub(cfg.Broadcast.Port, fabric.Broadcast)

	g, gctx := errgroup.WithContext(ctx)
	auxCtx, stopAux := context.WithCancel(gctx)
	defer stopAux()

	var core sync.WaitGroup
	runCore := func(name string, run func(context.Context) error) {
		core.Add(1)
		g.Go(func() error {
			defer core.Done()
			if err := run(gctx); err != nil {
				slog.Error("Component stopped with error", slog.String("component", name), slog.Any("error", err))
				return fmt.Errorf("%s: %w", name, err)
			}
			slog.Info("Component stopped", slog.String("component", name))
			return nil
		})
	}
	runCore("dispatcher", dispatcher.Run)
	runCore("processor", processor.Run)
	runCore("persistence", sink.Run)
	runCore("engine", eng.Run)

	g.Go(func() error { return hub.Run(auxCtx) })
	if cfg.Admin.Addr != "" {
		srv := admin.NewServer(cfg.Admin.Addr, admin.Sources{
			Session:     b.Session,
			Quotes:      b.Quotes,
			Engine:      eng.Snapshot,
			QueueDepths: fabric.Depths,
			Subscribers: hub.SubscriberCount,
		})
		g.Go(func() error { return srv.Run(auxCtx) })
	}

	coreDone := make(chan struct{})
	go func() {
		core.Wait()
		close(coreDone)
		stopAux()
	}()
	g.Go(func() error {
		b.watchdog(gctx, coreDone)
		return nil
	})

	slog.Info("NDAX bridge fully operational")
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// watchdog forces the cascade when cancellation did not finish it in time.
func (b *Bootstrap) watchdog(ctx context.Context, coreDone <-chan struct{}) {
	select {
	case <-coreDone:
		return
	case <-ctx.Done():
	}

	timer := time.NewTimer(b.Config.ShutdownGrace())
	defer timer.Stop()
	select {
	case <-coreDone:
		return
	case <-timer.C:
	}

	slog.Warn("Shutdown grace expired, closing exchange session", slog.Duration("grace", b.Config.ShutdownGrace()))
	if err := b.Session.Close(); err != nil {
		slog.Error("Session close failed", slog.Any("error", err))
	}
	b.Fabric.Commands.TryPut(event.Quit())
	<-coreDone
}
