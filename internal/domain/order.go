package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Side follows the exchange's numeric encoding.
type Side int

const (
	SideBuy  Side = 0
	SideSell Side = 1
)

func (s Side) String() string {
	switch s {
	case SideBuy:
		return "BUY"
	case SideSell:
		return "SELL"
	default:
		return "UNKNOWN"
	}
}

// OrderCommand is a request from the strategy to place a market order.
// ReferencePrice is the price the decision was taken at, used for paper fills.
type OrderCommand struct {
	InstrumentID   int64
	ClientOrderID  int64
	Side           Side
	Quantity       decimal.Decimal
	ReferencePrice decimal.Decimal
}

// Validate rejects commands the exchange would refuse outright.
func (c OrderCommand) Validate() error {
	if c.Side != SideBuy && c.Side != SideSell {
		return fmt.Errorf("invalid side %d", c.Side)
	}
	if !c.Quantity.IsPositive() {
		return fmt.Errorf("quantity must be positive, got %s", c.Quantity)
	}
	if c.InstrumentID <= 0 {
		return fmt.Errorf("invalid instrument id %d", c.InstrumentID)
	}
	return nil
}

// Order status values reported in a SendOrder reply.
const (
	OrderStatusAccepted = "Accepted"
	OrderStatusRejected = "Rejected"
)

// OrderAck is the exchange's reply to SendOrder.
type OrderAck struct {
	Status   string `json:"status"`
	ErrorMsg string `json:"errormsg"`
	OrderID  int64  `json:"OrderId"`
}

// IsAccepted reports whether the exchange took the order.
func (a OrderAck) IsAccepted() bool {
	return a.Status == OrderStatusAccepted
}

// ParseOrderAck decodes a SendOrder reply payload.
func ParseOrderAck(payload []byte) (OrderAck, error) {
	var ack OrderAck
	if err := json.Unmarshal(payload, &ack); err != nil {
		return OrderAck{}, fmt.Errorf("decode order ack: %w", err)
	}
	return ack, nil
}

// OrderRecord is one row of trade history.
type OrderRecord struct {
	ID            uint            `gorm:"primaryKey;autoIncrement" json:"-"`
	TimestampMs   int64           `gorm:"column:timestamp_ms;not null" json:"timestamp_ms"`
	InstrumentID  int64           `gorm:"column:tkr_id;not null" json:"tkr_id"`
	ClientOrderID int64           `gorm:"column:client_order_id" json:"client_order_id"`
	OrderID       int64           `gorm:"column:order_id" json:"order_id"`
	Side          Side            `gorm:"column:side" json:"side"`
	Quantity      decimal.Decimal `gorm:"column:quantity;type:decimal(32,18);not null" json:"quantity"`
	Price         decimal.Decimal `gorm:"column:price;type:decimal(32,18);not null" json:"price"`
	Fee           decimal.Decimal `gorm:"column:fee;type:decimal(32,18);not null" json:"fee"`
}

// NewOrderRecord builds a history row for cmd filled at cmd.ReferencePrice.
// feeRate is a fraction of notional, e.g. 0.002.
func NewOrderRecord(cmd OrderCommand, timestampMs int64, feeRate decimal.Decimal) OrderRecord {
	return OrderRecord{
		TimestampMs:   timestampMs,
		InstrumentID:  cmd.InstrumentID,
		ClientOrderID: cmd.ClientOrderID,
		Side:          cmd.Side,
		Quantity:      cmd.Quantity,
		Price:         cmd.ReferencePrice,
		Fee:           cmd.ReferencePrice.Mul(cmd.Quantity).Mul(feeRate),
	}
}

// Notional returns price times quantity.
func (r OrderRecord) Notional() decimal.Decimal {
	return r.Price.Mul(r.Quantity)
}
