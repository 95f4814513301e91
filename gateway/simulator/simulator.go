// Package simulator implements the gateway.Gateway contract (spec §4.5)
// against the local matching engine (match.Engine) fed by a virtual-clock
// merge scheduler (merge.Scheduler) instead of a live broker connection.
//
// Grounding: the central orchestrator shape — mutex-guarded running flag,
// stopCh, a single background loop wired to the feed — generalizes the
// teacher's core.Engine (core/engine.go); here the "feed" is the merge
// scheduler and the "strategy/risk/sizing/execution" pipeline collapses
// into match.Engine, since netting and bracket logic already live there.
package simulator

import (
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/account"
	"github.com/marketforge/tradecore/gateway"
	"github.com/marketforge/tradecore/match"
	"github.com/marketforge/tradecore/merge"
	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

// Simulator is a Gateway backed by an in-memory matching engine replaying
// tick files at a configurable virtual rate.
type Simulator struct {
	mu sync.RWMutex

	sourceDir string
	speed     time.Duration

	acc       *account.Account
	engine    *match.Engine
	scheduler *merge.Scheduler

	sources   map[string]merge.TickSource
	connected bool

	pointStream *stream.Stream[model.Point]
	errorStream *stream.Stream[gateway.ErrorDetail]
}

// New creates a disconnected Simulator. sourceDir is the directory of
// per-instrument tick files (spec §6); speed is the scheduler's pacing
// period.
func New(descriptor string, initialBalance decimal.Decimal, sourceDir string, speed time.Duration) *Simulator {
	acc := account.New(descriptor, initialBalance)
	return &Simulator{
		sourceDir:   sourceDir,
		speed:       speed,
		acc:         acc,
		engine:      match.New(acc),
		sources:     make(map[string]merge.TickSource),
		pointStream: stream.New[model.Point](),
		errorStream: stream.New[gateway.ErrorDetail](),
	}
}

// Connect is idempotent: it disconnects first (spec §4.5), reopens every
// currently subscribed instrument's tick file from its start (a previous
// scheduler closes its sources when it stops), then starts the merge
// scheduler over them.
func (s *Simulator) Connect() gateway.Response[gateway.Status] {
	s.Disconnect()

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.sources) == 0 {
		log.Debug().Msg("simulator connect with no subscriptions yet")
	}
	for name, old := range s.sources {
		_ = old.Close()
		src, err := merge.NewFileTickSource(s.sourceDir, name)
		if err != nil {
			return gateway.FailErr[gateway.Status](gateway.CodeConnection, err)
		}
		s.sources[name] = src
	}

	s.scheduler = merge.NewScheduler(s.speed, s.sources)
	go s.scheduler.Run(s.onTick)
	s.connected = true

	log.Info().Str("source", s.sourceDir).Dur("speed", s.speed).Msg("simulator connected")
	return gateway.Ok(gateway.Status{Connected: true})
}

// Disconnect stops the scheduler and releases every tick source handle.
// Safe to call on an already-disconnected Simulator (spec §4.5).
func (s *Simulator) Disconnect() gateway.Response[gateway.Status] {
	s.mu.Lock()
	sched := s.scheduler
	s.scheduler = nil
	s.connected = false
	s.mu.Unlock()

	if sched != nil {
		sched.Stop()
	}
	return gateway.Ok(gateway.Status{Connected: false})
}

// Subscribe registers inst with the account and opens its tick file as a
// merge source. If the scheduler is already running, the new source only
// takes effect on the next Connect (spec §5: partial Unsubscribe removes
// a live source; adding one mid-run requires reconnecting the scheduler,
// which this engine does not attempt, since its intended use is batch
// replay of a fixed instrument set).
func (s *Simulator) Subscribe(inst *model.Instrument) gateway.Response[gateway.Status] {
	s.acc.EnsureInstrument(inst)

	src, err := merge.NewFileTickSource(s.sourceDir, inst.Name)
	if err != nil {
		return gateway.FailErr[gateway.Status](gateway.CodeConnection, err)
	}

	s.mu.Lock()
	s.sources[inst.Name] = src
	s.mu.Unlock()

	return gateway.Ok(gateway.Status{Connected: s.isConnected()})
}

// Unsubscribe removes name's tick source and closes it. A scheduler
// already running then finds that source exhausted, so at most its one
// buffered tick for name is still delivered; the next Connect leaves name
// out.
func (s *Simulator) Unsubscribe(name string) gateway.Response[gateway.Status] {
	s.mu.Lock()
	src, ok := s.sources[name]
	delete(s.sources, name)
	s.mu.Unlock()

	if ok {
		if err := src.Close(); err != nil {
			log.Warn().Str("instrument", name).Err(err).Msg("error closing tick source on unsubscribe")
		}
	}
	return gateway.Ok(gateway.Status{Connected: s.isConnected()})
}

func (s *Simulator) isConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// onTick is the scheduler's callback: it publishes the tick, then routes
// it into the matching engine.
func (s *Simulator) onTick(name string, p model.Point) {
	s.pointStream.Publish(stream.Message[model.Point]{Action: stream.Create, Next: p})
	if err := s.engine.OnTick(name, p); err != nil {
		s.errorStream.Publish(stream.Message[gateway.ErrorDetail]{
			Action: stream.Create,
			Next:   gateway.ErrorDetail{Code: gateway.CodeInvariant, Message: err.Error()},
		})
	}
}

// GetAccount returns a snapshot of current balance, positions and orders.
func (s *Simulator) GetAccount(_ gateway.AccountCriteria) gateway.Response[gateway.AccountSnapshot] {
	snap := s.acc.Snap()
	return gateway.Ok(gateway.AccountSnapshot{
		Descriptor: s.acc.Descriptor,
		Balance:    snap.Balance.String(),
		Positions:  snap.Positions,
		Orders:     snap.Orders,
	})
}

// CreateOrders submits each order to the matching engine, returning the
// (possibly Rejected) orders as submitted.
func (s *Simulator) CreateOrders(orders ...*model.Order) gateway.Response[[]*model.Order] {
	for _, o := range orders {
		if err := s.engine.SubmitOrder(o); err != nil {
			return gateway.FailErr[[]*model.Order](gateway.CodeInvariant, err)
		}
	}
	return gateway.Ok(orders)
}

// DeleteOrders cancels each order by id. Cancelling an already-cancelled
// order is a no-op (spec §8).
func (s *Simulator) DeleteOrders(orders ...*model.Order) gateway.Response[gateway.Status] {
	for _, o := range orders {
		s.engine.CancelOrder(o.Id)
	}
	return gateway.Ok(gateway.Status{Connected: s.isConnected()})
}

// FlattenPosition manually closes the active position on name at the
// instrument's current top-of-book, without going through order
// submission — the adapter-initiated counterpart to spec §4.2's
// Account.ClosePosition(Id), exposed here keyed by instrument name since
// that's how callers outside the account package identify a position.
func (s *Simulator) FlattenPosition(name string) gateway.Response[gateway.Status] {
	if err := s.engine.ClosePosition(name); err != nil {
		return gateway.FailErr[gateway.Status](gateway.CodeInvariant, err)
	}
	return gateway.Ok(gateway.Status{Connected: s.isConnected()})
}

// GetPoints returns the buffered tick history for name.
func (s *Simulator) GetPoints(name string) gateway.Response[[]model.Point] {
	inst, ok := s.acc.Instrument(name)
	if !ok {
		return gateway.Fail[[]model.Point](gateway.CodeValidation, "unknown instrument "+name)
	}
	return gateway.Ok(inst.PointsSnapshot())
}

// GetDom is not implemented: the simulator only models top-of-book (spec
// §1 Non-goals).
func (s *Simulator) GetDom(_ string) gateway.Response[gateway.DomSnapshot] {
	return gateway.NotImplemented[gateway.DomSnapshot]("GetDom")
}

// GetOptions is not implemented by the simulator.
func (s *Simulator) GetOptions(_ string) gateway.Response[[]gateway.OptionContract] {
	return gateway.NotImplemented[[]gateway.OptionContract]("GetOptions")
}

// GetPositions returns all currently active positions.
func (s *Simulator) GetPositions() gateway.Response[[]*model.Position] {
	return gateway.Ok(s.acc.Snap().ActivePositions)
}

// GetOrders returns all currently active orders.
func (s *Simulator) GetOrders() gateway.Response[[]*model.Order] {
	return gateway.Ok(s.acc.Snap().ActiveOrders)
}

// Points returns the tick event stream.
func (s *Simulator) Points() *stream.Stream[model.Point] { return s.pointStream }

// Orders returns the account's order event stream.
func (s *Simulator) Orders() *stream.Stream[model.Order] { return s.acc.OrderStream }

// Errors returns the adapter's error event stream.
func (s *Simulator) Errors() *stream.Stream[gateway.ErrorDetail] { return s.errorStream }

var _ gateway.Gateway = (*Simulator)(nil)
