package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"ndax_bridge/internal/domain"
	"ndax_bridge/internal/infra"

	"github.com/shopspring/decimal"
)

// OrderSender writes an order to the exchange. *ndax.Session implements it.
type OrderSender interface {
	SendOrder(ctx context.Context, cmd domain.OrderCommand) error
}

// LiveExecution sends orders to the exchange and pairs the replies with
// the commands that caused them. Replies arrive in send order.
type LiveExecution struct {
	sender  OrderSender
	feeRate decimal.Decimal

	mu      sync.Mutex
	pending []domain.OrderCommand

	logger *slog.Logger
}

// NewLiveExecution creates a live executor.
func NewLiveExecution(sender OrderSender, feeRate decimal.Decimal) *LiveExecution {
	return &LiveExecution{
		sender:  sender,
		feeRate: feeRate,
		logger:  slog.Default().With("module", "live_execution"),
	}
}

// Execute sends cmd as a market order.
func (l *LiveExecution) Execute(ctx context.Context, cmd domain.OrderCommand) error {
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("live order %d: %w", cmd.ClientOrderID, err)
	}

	// Registered before the write so a fast reply always finds it.
	l.mu.Lock()
	l.pending = append(l.pending, cmd)
	l.mu.Unlock()

	if err := l.sender.SendOrder(ctx, cmd); err != nil {
		l.forget(cmd.ClientOrderID)
		return fmt.Errorf("live order %d: %w", cmd.ClientOrderID, err)
	}

	infra.GlobalMetrics.RecordOrderSent()
	l.logger.Info("Order sent",
		slog.Int64("client_order_id", cmd.ClientOrderID),
		slog.String("side", cmd.Side.String()),
		slog.String("qty", cmd.Quantity.String()))
	return nil
}

// Match consumes the oldest pending command for ack.
func (l *LiveExecution) Match(ack domain.OrderAck, nowMs int64) (domain.OrderRecord, bool) {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		l.logger.Warn("Order reply with no pending order", slog.Int64("order_id", ack.OrderID))
		return domain.OrderRecord{}, false
	}
	cmd := l.pending[0]
	l.pending = l.pending[1:]
	l.mu.Unlock()

	if !ack.IsAccepted() {
		return domain.OrderRecord{}, false
	}

	rec := domain.NewOrderRecord(cmd, nowMs, l.feeRate)
	rec.OrderID = ack.OrderID
	return rec, true
}

// Pending returns the number of orders awaiting a reply.
func (l *LiveExecution) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

func (l *LiveExecution) forget(clientOrderID int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := len(l.pending) - 1; i >= 0; i-- {
		if l.pending[i].ClientOrderID == clientOrderID {
			l.pending = append(l.pending[:i], l.pending[i+1:]...)
			return
		}
	}
}
