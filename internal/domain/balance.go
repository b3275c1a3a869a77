package domain

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// AccountPosition is one product balance reported by GetAccountPositions.
type AccountPosition struct {
	ProductID     int64           `json:"ProductId"`
	ProductSymbol string          `json:"ProductSymbol"`
	Amount        decimal.Decimal `json:"Amount"`
	Hold          decimal.Decimal `json:"Hold"`
}

// ParseAccountPositions decodes a GetAccountPositions reply payload.
func ParseAccountPositions(payload []byte) ([]AccountPosition, error) {
	var positions []AccountPosition
	if err := json.Unmarshal(payload, &positions); err != nil {
		return nil, fmt.Errorf("decode account positions: %w", err)
	}
	return positions, nil
}

// Portfolio tracks the fiat and crypto balances a strategy trades with.
// It is owned by a single goroutine.
type Portfolio struct {
	FiatID       int64           `json:"fiat_id"`
	CryptoID     int64           `json:"crypto_id"`
	Fiat         decimal.Decimal `json:"fiat"`
	Crypto       decimal.Decimal `json:"crypto"`
	LastUpdateMs int64           `json:"last_update_ms"`
}

// NewPortfolio creates an empty portfolio for the given product ids.
func NewPortfolio(fiatID, cryptoID int64) *Portfolio {
	return &Portfolio{FiatID: fiatID, CryptoID: cryptoID}
}

// Seed sets both balances directly, used for paper trading.
func (p *Portfolio) Seed(fiat, crypto decimal.Decimal) {
	p.Fiat = fiat
	p.Crypto = crypto
}

// Apply takes the amounts of the tracked products from positions.
// Positions for other products are ignored. Returns how many were applied.
func (p *Portfolio) Apply(positions []AccountPosition, nowMs int64) int {
	applied := 0
	for _, pos := range positions {
		switch pos.ProductID {
		case p.FiatID:
			p.Fiat = pos.Amount
		case p.CryptoID:
			p.Crypto = pos.Amount
		default:
			continue
		}
		applied++
	}
	if applied > 0 {
		p.LastUpdateMs = nowMs
	}
	return applied
}

// CanAfford reports whether a fill of rec fits the current balances.
func (p *Portfolio) CanAfford(rec OrderRecord) bool {
	switch rec.Side {
	case SideBuy:
		return p.Fiat.GreaterThanOrEqual(rec.Notional().Add(rec.Fee))
	case SideSell:
		return p.Crypto.GreaterThanOrEqual(rec.Quantity)
	default:
		return false
	}
}

// Fill books a filled order against the balances. Panics when the result
// would break VerifyInvariant; call CanAfford first.
func (p *Portfolio) Fill(rec OrderRecord) {
	switch rec.Side {
	case SideBuy:
		p.Fiat = p.Fiat.Sub(rec.Notional()).Sub(rec.Fee)
		p.Crypto = p.Crypto.Add(rec.Quantity)
	case SideSell:
		p.Crypto = p.Crypto.Sub(rec.Quantity)
		p.Fiat = p.Fiat.Add(rec.Notional()).Sub(rec.Fee)
	default:
		panic(fmt.Sprintf("PORTFOLIO_UNKNOWN_SIDE: %d", rec.Side))
	}
	p.LastUpdateMs = rec.TimestampMs
	p.VerifyInvariant()
}

// VerifyInvariant panics when a balance went negative.
func (p *Portfolio) VerifyInvariant() {
	if p.Fiat.IsNegative() {
		panic(fmt.Sprintf("PORTFOLIO_INVARIANT_NEGATIVE_FIAT: %s", p.Fiat))
	}
	if p.Crypto.IsNegative() {
		panic(fmt.Sprintf("PORTFOLIO_INVARIANT_NEGATIVE_CRYPTO: %s", p.Crypto))
	}
}

// Equity values the portfolio in fiat at price.
func (p *Portfolio) Equity(price decimal.Decimal) decimal.Decimal {
	return p.Fiat.Add(p.Crypto.Mul(price))
}
