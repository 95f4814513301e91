package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OpenPriceEntry is one fill in a Position's volume-weighted ledger.
type OpenPriceEntry struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	Time   time.Time
}

// Position is the netted, possibly-still-open result of one or more fills
// on a single Instrument. An active position has CloseTime == nil and
// Volume > 0 (spec §3 invariant).
type Position struct {
	Id         string
	Name       string // instrument key
	Side       OrderSide
	Volume     decimal.Decimal
	OpenPrice  decimal.Decimal
	OpenPrices []OpenPriceEntry
	Time       time.Time

	CloseTime  *time.Time
	ClosePrice *decimal.Decimal

	GainLoss       *decimal.Decimal
	GainLossPoints *decimal.Decimal

	// EstimatedGainLoss is mark-to-market and never affects Account.Balance.
	EstimatedGainLoss decimal.Decimal

	Orders []*Order // attached bracket children
}

// IsActive reports whether the position is still open.
func (p *Position) IsActive() bool {
	return p.CloseTime == nil && p.Volume.IsPositive()
}

// WeightedOpenPrice computes Σ(vᵢ·pᵢ)/Σvᵢ over the ledger.
func WeightedOpenPrice(entries []OpenPriceEntry) decimal.Decimal {
	num := decimal.Zero
	den := decimal.Zero
	for _, e := range entries {
		num = num.Add(e.Price.Mul(e.Volume))
		den = den.Add(e.Volume)
	}
	if den.IsZero() {
		return decimal.Zero
	}
	return num.Div(den)
}

// GainLossPointsFor computes (last - openPrice) * sign(side).
func GainLossPointsFor(side OrderSide, openPrice, last decimal.Decimal) decimal.Decimal {
	points := last.Sub(openPrice)
	if side.Sign() < 0 {
		return points.Neg()
	}
	return points
}

// GainLossFor applies ContractSize (defaulting to 1) to GainLossPoints.
func GainLossFor(points, volume decimal.Decimal, contractSize int64) decimal.Decimal {
	if contractSize == 0 {
		contractSize = 1
	}
	return points.Mul(volume).Mul(decimal.NewFromInt(contractSize))
}

// Recompute refreshes EstimatedGainLoss from the current mark, without
// touching realised P&L or Account.Balance.
func (p *Position) Recompute(last decimal.Decimal, contractSize int64) {
	points := GainLossPointsFor(p.Side, p.OpenPrice, last)
	p.EstimatedGainLoss = GainLossFor(points, p.Volume, contractSize)
}
