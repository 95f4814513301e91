// Package match implements the simulated matching engine (spec §4.3): the
// hardest piece of the core. It consumes the merged tick stream and order
// intents, validating admission, routing by order type, evaluating
// resting orders against every tick, and netting fills into the account's
// positions.
//
// Grounding: the tick-processing loop generalizes the teacher's
// core.Engine.processTick (core/engine.go) from "strategy signal -> risk
// -> executor" into "tick -> resting-order triggers -> admission ->
// netting"; the per-instrument trigger scan generalizes core.Router's
// per-market strategy fan-out (core/router.go) into a fan-out over active
// orders; the trigger/exit check generalizes risk.TPSLManager.CheckExit
// (risk/tp_sl.go), minus the trailing-stop and max-hold-time extensions
// spec.md does not call for.
package match

import (
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketforge/tradecore/account"
	"github.com/marketforge/tradecore/model"
)

// Engine is the simulator's order router and netting engine. It holds no
// state of its own beyond a reference to the Account it mutates — all
// durable state lives in Account, per spec §3's lifecycle-ownership rule.
type Engine struct {
	acc *account.Account
}

// New creates a matching Engine bound to acc.
func New(acc *account.Account) *Engine {
	return &Engine{acc: acc}
}

// SubmitOrder admits an order per spec §4.3: validate, then route by
// type. Market orders fill immediately against the instrument's latest
// tick. Limit/Stop/StopLimit orders rest in ActiveOrders with status
// Placed and are evaluated on the next OnTick call for their instrument.
func (e *Engine) SubmitOrder(o *model.Order) error {
	if err := o.Validate(); err != nil {
		o.Status = model.StatusRejected
		e.acc.PublishRejection(o)
		log.Debug().Str("order", o.Id).Str("name", o.Name).Err(err).Msg("order rejected at admission")
		return nil
	}

	inst, ok := e.acc.Instrument(o.Name)
	if !ok {
		o.Status = model.StatusRejected
		e.acc.PublishRejection(o)
		log.Debug().Str("order", o.Id).Str("name", o.Name).Msg("order rejected: unknown instrument")
		return nil
	}

	if o.Type == model.Market {
		return e.fillMarket(o, inst)
	}

	o.Status = model.StatusPlaced
	return e.acc.AddOrder(o)
}

// fillMarket executes o immediately at the current top-of-book: price =
// Ask for Buy, Bid for Sell, time = the instrument's most recent tick.
func (e *Engine) fillMarket(o *model.Order, inst *model.Instrument) error {
	last, ok := inst.Last()
	if !ok {
		o.Status = model.StatusRejected
		e.acc.PublishRejection(o)
		log.Debug().Str("order", o.Id).Str("name", o.Name).Msg("order rejected: no ticks yet")
		return nil
	}
	return e.execute(o, last, last.Time)
}

// execute fills o at the side-appropriate top-of-book price, records the
// order, and nets the resulting fill into the account's position for
// o.Name.
func (e *Engine) execute(o *model.Order, last model.Point, when time.Time) error {
	price := last.Ask
	if o.Side == model.Sell {
		price = last.Bid
	}

	wasResting := e.isKnown(o.Id)

	o.Status = model.StatusFilled
	o.Transaction = model.Transaction{Price: price, Volume: o.Volume, Time: when}

	if err := e.record(o, wasResting); err != nil {
		return err
	}

	fill := account.Fill{OrderId: o.Id, Side: o.Side, Price: price, Volume: o.Volume, Time: when}
	_, err := e.acc.OpenPosition(o.Name, fill, o.Orders)
	return err
}

// record stores o in Account state, routing through UpdateOrder for an
// order that was already resting (triggered Stop/Limit/StopLimit) or
// AddOrder for one that was not (Market, filled on submission).
func (e *Engine) record(o *model.Order, wasResting bool) error {
	if wasResting {
		return e.acc.UpdateOrder(o)
	}
	return e.acc.AddOrder(o)
}

func (e *Engine) isKnown(id string) bool {
	return e.acc.HasActiveOrder(id)
}

// CancelOrder cancels an active order. Cancelling an already-cancelled or
// unknown order is a no-op, per spec §8.
func (e *Engine) CancelOrder(id string) {
	e.acc.RemoveOrder(id)
}

// ClosePosition flattens the active position on name at the instrument's
// current top-of-book and tick time, for manual/administrative closes
// that bypass order submission entirely (spec §4.2's ClosePosition(Id)
// account operation). Closing an instrument with no active position, or
// one with no ticks yet, is a no-op — same failure semantics as closing a
// nonexistent position (spec §4.3).
func (e *Engine) ClosePosition(name string) error {
	pos, ok := e.acc.ActivePosition(name)
	if !ok {
		return nil
	}
	inst, ok := e.acc.Instrument(name)
	if !ok {
		return nil
	}
	last, ok := inst.Last()
	if !ok {
		return nil
	}

	price := last.Bid
	if pos.Side == model.Sell {
		price = last.Ask
	}
	e.acc.ClosePosition(pos.Id, price, last.Time)
	return nil
}

// OnTick feeds one tick for instrument name through: append to the
// instrument's series, then evaluate every resting order on that
// instrument for a trigger, routing triggered orders as Market fills at
// the triggering tick (spec §4.3's stated simplification: the fill price
// is the tick's Bid/Ask, not the order's own limit price).
func (e *Engine) OnTick(name string, p model.Point) error {
	inst, ok := e.acc.Instrument(name)
	if !ok {
		return nil
	}
	inst.Append(p)

	for _, o := range e.restingOrders(name) {
		if o.Triggered(p) {
			if err := e.execute(o, p, p.Time); err != nil {
				return err
			}
		}
	}

	e.acc.Recompute()
	return nil
}

// restingOrders snapshots the active orders on instrument name through
// Account's locked accessor, so that triggering one (which mutates
// ActiveOrders under Account's mutex) does not invalidate iteration over
// the rest, and so this goroutine never reads the map field unsynchronized
// against a concurrent caller mutating it (spec §5).
func (e *Engine) restingOrders(name string) []*model.Order {
	return e.acc.RestingOrders(name)
}
