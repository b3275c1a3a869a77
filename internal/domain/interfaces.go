package domain

import "context"

// MarketDataStore is the persistence backend contract.
type MarketDataStore interface {
	SaveTickerBars(ctx context.Context, bars []TickerBar) error
	SaveLevel1(ctx context.Context, quote Level1Quote) error
	SaveOrder(ctx context.Context, rec OrderRecord) error
	Close() error
}

// Execution places orders, on the exchange or on paper.
type Execution interface {
	Execute(ctx context.Context, cmd OrderCommand) error
}
