// Package account implements the Account state machine (spec §4.2): the
// single mutator of balance, orders and positions, enforcing the
// at-most-one-net-position-per-instrument and order-id-uniqueness
// invariants from spec §3/§4.2.
//
// Account is the sole owner of its Orders/Positions/Instruments maps
// (spec §3 "Lifecycle ownership"); the matching engine and live adapters
// are its only callers, never strategies directly. This mirrors the
// teacher's core.Engine, which is the only goroutine touching
// e.positions, guarded by a single mutex (core/engine.go).
package account

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
	"github.com/marketforge/tradecore/tradeerrors"
)

// Account is the broker-visible state of one trading session.
type Account struct {
	mu sync.RWMutex

	Descriptor     string
	InitialBalance decimal.Decimal
	Balance        decimal.Decimal

	Instruments     map[string]*model.Instrument
	Orders          []*model.Order
	ActiveOrders    map[string]*model.Order
	Positions       []*model.Position
	ActivePositions map[string]*model.Position // keyed by instrument Name
	Deals           []*model.Deal

	OrderStream    *stream.Stream[model.Order]
	PositionStream *stream.Stream[model.Position]
}

// New creates an Account with InitialBalance seeded into Balance, matching
// §8's invariant: Balance = InitialBalance + Σ realised GainLoss.
func New(descriptor string, initialBalance decimal.Decimal) *Account {
	return &Account{
		Descriptor:      descriptor,
		InitialBalance:  initialBalance,
		Balance:         initialBalance,
		Instruments:     make(map[string]*model.Instrument),
		ActiveOrders:    make(map[string]*model.Order),
		ActivePositions: make(map[string]*model.Position),
		OrderStream:     stream.New[model.Order](),
		PositionStream:  stream.New[model.Position](),
	}
}

// EnsureInstrument registers inst if its Name is not already known, and
// returns the (possibly pre-existing) registered Instrument.
func (a *Account) EnsureInstrument(inst *model.Instrument) *model.Instrument {
	a.mu.Lock()
	defer a.mu.Unlock()
	if existing, ok := a.Instruments[inst.Name]; ok {
		return existing
	}
	a.Instruments[inst.Name] = inst
	return inst
}

// Instrument looks up a registered instrument by Name.
func (a *Account) Instrument(name string) (*model.Instrument, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	inst, ok := a.Instruments[name]
	return inst, ok
}

// ActivePosition returns the current net position on name, if any.
func (a *Account) ActivePosition(name string) (*model.Position, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	p, ok := a.ActivePositions[name]
	return p, ok
}

// Snapshot returns a point-in-time copy of every slice/map an external
// reader (gateway adapters, strategies) might otherwise touch directly
// without holding a.mu. Callers must not rely on anything beyond the
// moment Snapshot returns.
type Snapshot struct {
	Balance         decimal.Decimal
	Orders          []*model.Order
	ActiveOrders    []*model.Order
	Positions       []*model.Position
	ActivePositions []*model.Position
}

// Snap takes a consistent snapshot of the account's exported collections.
func (a *Account) Snap() Snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()

	active := make([]*model.Order, 0, len(a.ActiveOrders))
	for _, o := range a.ActiveOrders {
		active = append(active, o)
	}
	activePos := make([]*model.Position, 0, len(a.ActivePositions))
	for _, p := range a.ActivePositions {
		activePos = append(activePos, p)
	}

	return Snapshot{
		Balance:         a.Balance,
		Orders:          append([]*model.Order{}, a.Orders...),
		ActiveOrders:    active,
		Positions:       append([]*model.Position{}, a.Positions...),
		ActivePositions: activePos,
	}
}

// HasActiveOrder reports whether id is currently resting in ActiveOrders.
// Exposed so callers outside this package (the matching engine) never
// touch the map field directly (spec §5: Account maps are mutated only
// under a.mu, and read only through an accessor).
func (a *Account) HasActiveOrder(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.ActiveOrders[id]
	return ok
}

// RestingOrders returns a snapshot of the active, Placed orders on
// instrument name. Callers can safely iterate the result while triggering
// orders, which mutates ActiveOrders under a.mu as each one fills.
func (a *Account) RestingOrders(name string) []*model.Order {
	a.mu.RLock()
	defer a.mu.RUnlock()
	var out []*model.Order
	for _, o := range a.ActiveOrders {
		if o.Name == name && o.Status == model.StatusPlaced {
			out = append(out, o)
		}
	}
	return out
}

// AddOrder admits a new order into ActiveOrders. Id must be unique across
// both the active set and the append-only history (spec §4.2); a
// collision is an InvariantViolation, not a ValidationError, since ids
// are caller-provided and a collision indicates a caller bug, not a bad
// order.
func (a *Account) AddOrder(o *model.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.addOrderLocked(o)
}

// addOrderLocked is AddOrder's body, callable from contexts (bracket
// attachment during netting) that already hold a.mu.
func (a *Account) addOrderLocked(o *model.Order) error {
	if _, ok := a.ActiveOrders[o.Id]; ok {
		return tradeerrors.New(tradeerrors.Invariant, "order id %q collides with an active order", o.Id)
	}
	for _, existing := range a.Orders {
		if existing.Id == o.Id {
			return tradeerrors.New(tradeerrors.Invariant, "order id %q collides with a historical order", o.Id)
		}
	}

	if !isTerminal(o.Status) {
		a.ActiveOrders[o.Id] = o
	}
	a.Orders = append(a.Orders, o)
	a.OrderStream.Publish(stream.Message[model.Order]{Action: stream.Create, Next: *o})
	log.Info().Str("order", o.Id).Str("name", o.Name).Str("status", string(o.Status)).Msg("order added")
	return nil
}

// PublishRejection emits a Rejected order event without storing the order
// anywhere in Account state — spec §4.3: "Validation failures emit
// Rejected without mutating account state."
func (a *Account) PublishRejection(o *model.Order) {
	a.OrderStream.Publish(stream.Message[model.Order]{Action: stream.Create, Next: *o})
	log.Warn().Str("order", o.Id).Str("name", o.Name).Msg("order rejected")
}

// UpdateOrder replaces the stored order matching o.Id in place (by value,
// since Order is looked up by Id, not held by the caller) and publishes an
// Update event with both old and new snapshots. Terminal statuses
// (Filled, Cancelled, Rejected, Closed) remove the order from ActiveOrders
// while it remains in the append-only Orders history.
func (a *Account) UpdateOrder(o *model.Order) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	cur, ok := a.ActiveOrders[o.Id]
	if !ok {
		return tradeerrors.New(tradeerrors.Invariant, "update on unknown active order %q", o.Id)
	}
	if !model.CanTransition(cur.Status, o.Status) {
		return tradeerrors.New(tradeerrors.Invariant, "order %q cannot move from %s to %s", o.Id, cur.Status, o.Status)
	}

	prev := *cur
	*cur = *o

	if isTerminal(cur.Status) {
		delete(a.ActiveOrders, cur.Id)
	}

	a.OrderStream.Publish(stream.Message[model.Order]{Action: stream.Update, Previous: &prev, Next: *cur})
	log.Info().Str("order", cur.Id).Str("from", string(prev.Status)).Str("to", string(cur.Status)).Msg("order updated")
	return nil
}

// RemoveOrder cancels an active order by Id. Cancelling an already
// terminal or nonexistent order is a no-op, per spec §8's
// DeleteOrders-on-cancelled-order idempotence property.
func (a *Account) RemoveOrder(id string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.removeOrderLocked(id)
}

func (a *Account) removeOrderLocked(id string) {
	cur, ok := a.ActiveOrders[id]
	if !ok {
		return
	}
	prev := *cur
	cur.Status = model.StatusCancelled
	delete(a.ActiveOrders, id)

	for _, child := range cur.Orders {
		a.removeOrderLocked(child.Id)
	}

	a.OrderStream.Publish(stream.Message[model.Order]{Action: stream.Delete, Previous: &prev, Next: *cur})
	log.Info().Str("order", cur.Id).Str("name", cur.Name).Msg("order cancelled")
}

// isTerminal reports whether status ends the order's active lifetime.
func isTerminal(s model.OrderStatus) bool {
	switch s {
	case model.StatusFilled, model.StatusCancelled, model.StatusRejected, model.StatusClosed:
		return true
	}
	return false
}

// Recompute refreshes EstimatedGainLoss on every active position from its
// instrument's latest tick, without mutating Balance (mark-to-market is
// informational only, per spec §4.2).
func (a *Account) Recompute() {
	a.mu.Lock()
	defer a.mu.Unlock()

	for name, pos := range a.ActivePositions {
		inst, ok := a.Instruments[name]
		if !ok {
			continue
		}
		last, ok := inst.Last()
		if !ok {
			continue
		}
		pos.Recompute(last.Last, inst.Size())
	}
}

// ClosePosition closes an active position by Id at the given price/time,
// realising its GainLoss into Balance and cancelling its outstanding
// bracket children. Closing a nonexistent position is a no-op (spec §4.3
// failure semantics).
func (a *Account) ClosePosition(id string, price decimal.Decimal, when time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var pos *model.Position
	for _, p := range a.ActivePositions {
		if p.Id == id {
			pos = p
			break
		}
	}
	if pos == nil {
		log.Debug().Str("position", id).Msg("close requested for unknown position")
		return
	}
	log.Info().Str("position", id).Str("name", pos.Name).Str("price", price.String()).Msg("position closed manually")
	a.closePositionLocked(pos, price, when)
}

// closePositionLocked archives pos into Positions, realises its P&L into
// Balance, and cancels its bracket children. Caller must hold a.mu.
//
// Only a true closure cancels brackets: a partial reduce (netting.go's
// reduceLocked) archives the old position's P&L the same way but must
// carry its brackets forward onto the surviving smaller position, so it
// calls archivePositionLocked directly instead of this method.
func (a *Account) closePositionLocked(pos *model.Position, price decimal.Decimal, when time.Time) {
	a.archivePositionLocked(pos, price, when)

	for _, child := range pos.Orders {
		a.removeOrderLocked(child.Id)
	}
}

// archivePositionLocked realises pos's P&L at price/when, moves it from
// ActivePositions into the historical Positions log, and adds the
// realised gain/loss to Balance, without touching its bracket children.
// Caller must hold a.mu.
func (a *Account) archivePositionLocked(pos *model.Position, price decimal.Decimal, when time.Time) {
	inst := a.Instruments[pos.Name]
	var contractSize int64 = 1
	if inst != nil {
		contractSize = inst.Size()
	}

	points := model.GainLossPointsFor(pos.Side, pos.OpenPrice, price)
	gainLoss := model.GainLossFor(points, pos.Volume, contractSize)

	closeTime := when
	pos.CloseTime = &closeTime
	pos.ClosePrice = &price
	pos.GainLossPoints = &points
	pos.GainLoss = &gainLoss

	delete(a.ActivePositions, pos.Name)
	a.Positions = append(a.Positions, pos)
	a.Balance = a.Balance.Add(gainLoss)

	a.PositionStream.Publish(stream.Message[model.Position]{Action: stream.Delete, Next: *pos})
	log.Info().Str("position", pos.Id).Str("name", pos.Name).Str("gain_loss", gainLoss.String()).
		Str("balance", a.Balance.String()).Msg("position archived")
}
