package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/event"
	"ndax_bridge/internal/infra"

	"github.com/shopspring/decimal"
)

// maxRecentFills bounds the in-memory fill log; the full history is in the
// paper trade table.
const maxRecentFills = 100

// PaperExecution fills orders locally at their reference price.
// Nothing is sent to the exchange; fills go to the paper trade history.
type PaperExecution struct {
	persistence *event.Queue
	feeRate     decimal.Decimal
	now         func() time.Time

	mu       sync.Mutex
	fills    []domain.OrderRecord
	maxFills int

	logger *slog.Logger
}

// NewPaperExecution creates a paper executor writing fills to persistence.
func NewPaperExecution(persistence *event.Queue, feeRate decimal.Decimal) *PaperExecution {
	return &PaperExecution{
		persistence: persistence,
		feeRate:     feeRate,
		now:         time.Now,
		maxFills:    maxRecentFills,
		logger:      slog.Default().With("module", "paper_execution"),
	}
}

// Execute records a simulated fill.
func (p *PaperExecution) Execute(ctx context.Context, cmd domain.OrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("paper order %d: %w", cmd.ClientOrderID, err)
	}
	if !cmd.ReferencePrice.IsPositive() {
		return fmt.Errorf("paper order %d: no reference price", cmd.ClientOrderID)
	}

	rec := domain.NewOrderRecord(cmd, p.now().UnixMilli(), p.feeRate)

	p.mu.Lock()
	p.fills = append(p.fills, rec)
	if n := len(p.fills); n > p.maxFills {
		p.fills = append(p.fills[:0], p.fills[n-p.maxFills:]...)
	}
	p.mu.Unlock()

	infra.GlobalMetrics.RecordOrderSent()
	p.logger.Info("Simulated trade",
		slog.Int64("client_order_id", cmd.ClientOrderID),
		slog.String("side", cmd.Side.String()),
		slog.String("qty", rec.Quantity.String()),
		slog.String("price", rec.Price.String()),
		slog.String("fee", rec.Fee.String()))

	if err := p.persistence.Put(ctx, event.Envelope{Action: event.ActionOrder, Payload: rec}); err != nil {
		return fmt.Errorf("paper order %d: record fill: %w", cmd.ClientOrderID, err)
	}
	return nil
}

// GetFills returns a copy of the most recent simulated fills, oldest first.
func (p *PaperExecution) GetFills() []domain.OrderRecord {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.OrderRecord, len(p.fills))
	copy(out, p.fills)
	return out
}
