package model

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/tradeerrors"
)

// OrderSide is the direction of an order or position.
type OrderSide string

const (
	Buy  OrderSide = "Buy"
	Sell OrderSide = "Sell"
)

// Sign returns +1 for Buy, -1 for Sell, used by the GainLossPoints formula.
func (s OrderSide) Sign() int64 {
	if s == Sell {
		return -1
	}
	return 1
}

// Opposite returns the other side.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType is the admission/routing kind of an order.
type OrderType string

const (
	Market    OrderType = "Market"
	Limit     OrderType = "Limit"
	Stop      OrderType = "Stop"
	StopLimit OrderType = "StopLimit"
)

// OrderInstruction distinguishes a standalone order from a bracket parent
// or one leg of a bracket group.
type OrderInstruction string

const (
	InstructionSide  OrderInstruction = "Side"
	InstructionBrace OrderInstruction = "Brace"
	InstructionGroup OrderInstruction = "Group"
)

// OrderStatus is the lifecycle stage of an order. Status transitions
// monotonically forward: None -> Placed -> {Filled | Cancelled | Rejected}.
type OrderStatus string

const (
	StatusNone        OrderStatus = "None"
	StatusPlaced      OrderStatus = "Placed"
	StatusFilled      OrderStatus = "Filled"
	StatusPartitioned OrderStatus = "Partitioned"
	StatusCancelled   OrderStatus = "Cancelled"
	StatusClosed      OrderStatus = "Closed"
	StatusRejected    OrderStatus = "Rejected"
)

// statusRank gives the monotonic ordering used by CanTransition.
var statusRank = map[OrderStatus]int{
	StatusNone:        0,
	StatusPlaced:      1,
	StatusFilled:      2,
	StatusPartitioned: 2,
	StatusCancelled:   2,
	StatusClosed:      2,
	StatusRejected:    2,
}

// CanTransition reports whether moving from cur to next respects the
// forward-only lifecycle invariant in spec §3.
func CanTransition(cur, next OrderStatus) bool {
	return statusRank[next] >= statusRank[cur]
}

// Transaction is the execution record embedded in a filled/partially
// filled Order: the price/time/volume the matching engine or broker
// actually executed at, as opposed to the order's requested Price.
type Transaction struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
	Time   time.Time
}

// Order is a single order intent and its resulting lifecycle state.
//
// Order owns its bracket children (Orders) exclusively; it references its
// Instrument only by Name (Name field), looked up through the Account's
// Instruments map rather than held as an owning pointer.
type Order struct {
	Id          string
	Name        string // instrument key
	Side        OrderSide
	Type        OrderType
	Instruction OrderInstruction
	Volume      decimal.Decimal
	Price       decimal.Decimal // required for non-Market types
	Status      OrderStatus
	Time        time.Time
	Transaction Transaction
	Orders      []*Order // attached bracket children (take-profit, stop-loss)

	// ParentId links a bracket child back to its parent order by Id.
	ParentId string
}

// Validate runs the admission checks from spec §4.3: non-empty instrument,
// a defined side, positive volume, and a price for non-Market types.
func (o *Order) Validate() error {
	if o.Name == "" {
		return tradeerrors.New(tradeerrors.Validation, "order has no instrument name")
	}
	if o.Side != Buy && o.Side != Sell {
		return tradeerrors.New(tradeerrors.Validation, "order has invalid side %q", o.Side)
	}
	if !o.Volume.IsPositive() {
		return tradeerrors.New(tradeerrors.Validation, "order volume must be > 0, got %s", o.Volume)
	}
	if o.Type != Market && !o.Price.IsPositive() {
		return tradeerrors.New(tradeerrors.Validation, "order type %s requires a positive price", o.Type)
	}
	return nil
}

// Triggered reports whether the resting order o should fire given the
// latest tick for its instrument, per the resting-order evaluation rules
// in spec §4.3.
func (o *Order) Triggered(last Point) bool {
	switch {
	case o.Type == Stop && o.Side == Buy, o.Type == StopLimit && o.Side == Buy:
		return last.Ask.GreaterThanOrEqual(o.Price)
	case o.Type == Limit && o.Side == Sell:
		return last.Ask.GreaterThanOrEqual(o.Price)
	case o.Type == Stop && o.Side == Sell, o.Type == StopLimit && o.Side == Sell:
		return last.Bid.LessThanOrEqual(o.Price)
	case o.Type == Limit && o.Side == Buy:
		return last.Bid.LessThanOrEqual(o.Price)
	}
	return false
}
