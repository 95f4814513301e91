package account

import (
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

// Fill is the executed-price/volume/time triple the matching engine (or a
// live broker's fill report) hands to OpenPosition.
type Fill struct {
	OrderId string
	Side    model.OrderSide
	Price   decimal.Decimal
	Volume  decimal.Decimal
	Time    time.Time
}

// OpenPosition nets a new Fill against any existing active position on
// the fill's instrument, implementing the four netting rules of spec
// §4.3: increase (same side), flat close, partial reduce and reverse
// (opposite side, by relative volume). It returns the resulting active
// position (nil if the fill flattened the account on that instrument) and
// publishes the bracket-cancel/position events that follow from closing
// the previous position.
//
// bracketOrders are the incoming order's attached take-profit/stop-loss
// children (spec §4.3 "On every active-position creation..."); they are
// admitted with status Placed only when OpenPosition actually creates a brand new
// position (rules: no prior position, reverse, or increase) — a partial
// reduce does not get a fresh bracket, it keeps inheriting the parent's.
func (a *Account) OpenPosition(name string, fill Fill, bracketOrders []*model.Order) (*model.Position, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.recordDealLocked(name, fill)

	existing, hasExisting := a.ActivePositions[name]
	if !hasExisting {
		pos := a.newPositionLocked(name, fill)
		a.ActivePositions[name] = pos
		a.PositionStream.Publish(stream.Message[model.Position]{Action: stream.Create, Next: *pos})
		log.Info().Str("name", name).Str("side", string(fill.Side)).Str("price", fill.Price.String()).
			Str("volume", fill.Volume.String()).Msg("position opened")
		if err := a.attachBrackets(pos, bracketOrders); err != nil {
			log.Warn().Str("name", name).Err(err).Msg("bracket attachment failed on new position")
			return pos, err
		}
		return pos, nil
	}

	if existing.Side == fill.Side {
		log.Info().Str("name", name).Str("position", existing.Id).Msg("netting: increase")
		return a.increaseLocked(existing, fill, bracketOrders)
	}

	switch {
	case fill.Volume.Equal(existing.Volume):
		log.Info().Str("name", name).Str("position", existing.Id).Msg("netting: flat close")
		a.closePositionLocked(existing, fill.Price, fill.Time)
		return nil, nil
	case fill.Volume.LessThan(existing.Volume):
		log.Info().Str("name", name).Str("position", existing.Id).Msg("netting: partial reduce")
		return a.reduceLocked(existing, fill), nil
	default: // fill.Volume > existing.Volume: reverse
		log.Info().Str("name", name).Str("position", existing.Id).Msg("netting: reverse")
		return a.reverseLocked(existing, fill, bracketOrders)
	}
}

// recordDealLocked appends one audit-log entry per fill, independent of
// which netting rule the fill resolves to (spec §3: Deals is "append-only,
// written once per fill"). Caller must hold a.mu.
func (a *Account) recordDealLocked(name string, fill Fill) {
	a.Deals = append(a.Deals, &model.Deal{
		Id:         newID(),
		OrderId:    fill.OrderId,
		Name:       name,
		Side:       fill.Side,
		Price:      fill.Price,
		Volume:     fill.Volume,
		Time:       fill.Time,
		Commission: decimal.Zero,
	})
}

func (a *Account) newPositionLocked(name string, fill Fill) *model.Position {
	return &model.Position{
		Id:         newID(),
		Name:       name,
		Side:       fill.Side,
		Volume:     fill.Volume,
		OpenPrice:  fill.Price,
		OpenPrices: []model.OpenPriceEntry{{Price: fill.Price, Volume: fill.Volume, Time: fill.Time}},
		Time:       fill.Time,
	}
}

// increaseLocked implements netting rule 1: same-side fill grows the
// position. The prior position is archived with ClosePrice equal to the
// *new* averaged open price, and its attached brackets are cancelled —
// preserved exactly as spec.md §9 flags it, unusual accounting included.
func (a *Account) increaseLocked(existing *model.Position, fill Fill, bracketOrders []*model.Order) (*model.Position, error) {
	mergedLedger := append(append([]model.OpenPriceEntry{}, existing.OpenPrices...),
		model.OpenPriceEntry{Price: fill.Price, Volume: fill.Volume, Time: fill.Time})

	newOpenPrice := model.WeightedOpenPrice(mergedLedger)

	a.closePositionLocked(existing, newOpenPrice, fill.Time)

	pos := &model.Position{
		Id:         newID(),
		Name:       existing.Name,
		Side:       existing.Side,
		Volume:     existing.Volume.Add(fill.Volume),
		OpenPrice:  newOpenPrice,
		OpenPrices: mergedLedger,
		Time:       fill.Time,
	}
	a.ActivePositions[pos.Name] = pos
	a.PositionStream.Publish(stream.Message[model.Position]{Action: stream.Create, Next: *pos})

	if err := a.attachBrackets(pos, bracketOrders); err != nil {
		return pos, err
	}
	return pos, nil
}

// reduceLocked implements netting rule 3: the fill partially offsets the
// position. The old position closes at the fill price; a smaller position
// on the same side survives with a proportionally trimmed ledger and
// inherits the old position's bracket children, each re-linked to it by
// ParentId (spec §4.3: a partial reduce does not get a fresh bracket).
func (a *Account) reduceLocked(existing *model.Position, fill Fill) *model.Position {
	remaining := existing.Volume.Sub(fill.Volume)
	ratio := remaining.Div(existing.Volume)

	trimmed := make([]model.OpenPriceEntry, len(existing.OpenPrices))
	for i, e := range existing.OpenPrices {
		trimmed[i] = model.OpenPriceEntry{Price: e.Price, Volume: e.Volume.Mul(ratio), Time: e.Time}
	}

	a.archivePositionLocked(existing, fill.Price, fill.Time)

	pos := &model.Position{
		Id:         newID(),
		Name:       existing.Name,
		Side:       existing.Side,
		Volume:     remaining,
		OpenPrice:  existing.OpenPrice,
		OpenPrices: trimmed,
		Time:       fill.Time,
		Orders:     existing.Orders,
	}
	for _, child := range pos.Orders {
		child.ParentId = pos.Id
	}

	a.ActivePositions[pos.Name] = pos
	a.PositionStream.Publish(stream.Message[model.Position]{Action: stream.Create, Next: *pos})
	return pos
}

// reverseLocked implements netting rule 4: the fill overshoots the
// existing position. The old position closes at the fill price; a fresh
// position opens on the fill's side with the excess volume and a clean
// ledger.
func (a *Account) reverseLocked(existing *model.Position, fill Fill, bracketOrders []*model.Order) (*model.Position, error) {
	excess := fill.Volume.Sub(existing.Volume)

	a.closePositionLocked(existing, fill.Price, fill.Time)

	pos := &model.Position{
		Id:         newID(),
		Name:       existing.Name,
		Side:       fill.Side,
		Volume:     excess,
		OpenPrice:  fill.Price,
		OpenPrices: []model.OpenPriceEntry{{Price: fill.Price, Volume: excess, Time: fill.Time}},
		Time:       fill.Time,
	}
	a.ActivePositions[pos.Name] = pos
	a.PositionStream.Publish(stream.Message[model.Position]{Action: stream.Create, Next: *pos})

	if err := a.attachBrackets(pos, bracketOrders); err != nil {
		return pos, err
	}
	return pos, nil
}

// attachBrackets admits pos's take-profit/stop-loss children through the
// same validation+admission path AddOrder uses, copying the parent
// instrument onto each child and linking ParentId, per spec §4.3. Caller
// must hold a.mu.
func (a *Account) attachBrackets(pos *model.Position, bracketOrders []*model.Order) error {
	for _, child := range bracketOrders {
		child.Name = pos.Name
		child.ParentId = pos.Id
		if err := child.Validate(); err != nil {
			return err
		}
		child.Status = model.StatusPlaced
		if err := a.addOrderLocked(child); err != nil {
			return err
		}
		pos.Orders = append(pos.Orders, child)
		log.Debug().Str("position", pos.Id).Str("bracket", child.Id).Msg("bracket order attached")
	}
	return nil
}
