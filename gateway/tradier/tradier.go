// Package tradier implements a live gateway.Gateway against the Tradier
// brokerage API (spec §4.6).
//
// Grounding: the poll-interval constant and HTTP-based tick shape follow
// the teacher's feeds.BinanceFeed (feeds/binance.go) — Tradier's
// streaming quotes endpoint is HTTP long-poll, not a persistent
// WebSocket, so this adapter drives broker.Session's read loop from a
// polling goroutine instead of a single Dial.
package tradier

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/account"
	"github.com/marketforge/tradecore/gateway"
	"github.com/marketforge/tradecore/gateway/broker"
	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

const pollInterval = 250 * time.Millisecond

// quoteWire is Tradier's quote JSON shape, trimmed to the fields the core
// model needs (spec §4.6: "translation is lossless for fields the core
// requires; unknown fields are dropped").
type quoteWire struct {
	Symbol    string  `json:"symbol"`
	Bid       float64 `json:"bid"`
	Ask       float64 `json:"ask"`
	Last      float64 `json:"last"`
	BidSize   float64 `json:"bidsize"`
	AskSize   float64 `json:"asksize"`
	Timestamp int64   `json:"trade_date"`
}

type orderAckWire struct {
	Order struct {
		ID string `json:"id"`
	} `json:"order"`
}

// mapper implements broker.Mapper for Tradier's wire format.
type mapper struct{}

func (mapper) DecodePoint(raw []byte) (string, model.Point, error) {
	var q quoteWire
	if err := json.Unmarshal(raw, &q); err != nil {
		return "", model.Point{}, fmt.Errorf("decode tradier quote: %w", err)
	}
	p := model.Point{
		Time:    time.UnixMilli(q.Timestamp),
		Bid:     decimal.NewFromFloat(q.Bid),
		Ask:     decimal.NewFromFloat(q.Ask),
		Last:    decimal.NewFromFloat(q.Last),
		BidSize: decimal.NewFromFloat(q.BidSize),
		AskSize: decimal.NewFromFloat(q.AskSize),
	}
	return q.Symbol, p, nil
}

func (mapper) EncodeOrder(o *model.Order) ([]byte, error) {
	return json.Marshal(map[string]any{
		"symbol": o.Name,
		"side":   o.Side,
		"type":   o.Type,
		"price":  o.Price.String(),
		"volume": o.Volume.String(),
	})
}

func (mapper) DecodeOrderAck(raw []byte) (string, error) {
	var ack orderAckWire
	if err := json.Unmarshal(raw, &ack); err != nil {
		return "", fmt.Errorf("decode tradier order ack: %w", err)
	}
	return ack.Order.ID, nil
}

// Adapter is the Tradier live Gateway.
type Adapter struct {
	mu sync.RWMutex

	session *broker.Session
	acc     *account.Account

	subscribed map[string]bool
	stopCh     chan struct{}
}

// New creates a disconnected Tradier Adapter. apiKey is stored on the
// session but not sent with any HTTP call; dryRun mirrors the teacher's
// DRY_RUN switch in exec.Client.
func New(descriptor, baseURL, apiKey string, initialBalance decimal.Decimal, dryRun bool) *Adapter {
	acc := account.New(descriptor, initialBalance)
	return &Adapter{
		session:    broker.NewSession(baseURL, "", apiKey, dryRun, mapper{}),
		acc:        acc,
		subscribed: make(map[string]bool),
	}
}

// Connect starts the quote poll loop. It is idempotent (spec §4.5).
func (a *Adapter) Connect() gateway.Response[gateway.Status] {
	a.Disconnect()

	resp := a.session.Connect()
	if !resp.Succeeded() {
		return resp
	}

	a.mu.Lock()
	a.stopCh = make(chan struct{})
	stopCh := a.stopCh
	a.mu.Unlock()

	go a.pollLoop(stopCh)
	log.Info().Str("broker", "tradier").Msg("adapter connected")
	return resp
}

func (a *Adapter) pollLoop(stopCh chan struct{}) {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			a.pollOnce()
		}
	}
}

func (a *Adapter) pollOnce() {
	a.mu.RLock()
	empty := len(a.subscribed) == 0
	a.mu.RUnlock()
	if empty {
		return
	}
	if err := a.session.PollQuotes("/v1/markets/quotes"); err != nil {
		log.Debug().Err(err).Msg("tradier quote poll failed")
	}
}

// Disconnect stops the poll loop and the underlying session.
func (a *Adapter) Disconnect() gateway.Response[gateway.Status] {
	a.mu.Lock()
	stopCh := a.stopCh
	a.stopCh = nil
	a.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	return a.session.Disconnect()
}

// Subscribe adds name to the subscribed set. The poll loop requests
// quotes only while that set is non-empty; the request does not list the
// subscribed symbols.
func (a *Adapter) Subscribe(inst *model.Instrument) gateway.Response[gateway.Status] {
	a.acc.EnsureInstrument(inst)
	a.mu.Lock()
	a.subscribed[inst.Name] = true
	a.mu.Unlock()
	return gateway.Ok(gateway.Status{Connected: true})
}

// Unsubscribe removes name from the subscribed set.
func (a *Adapter) Unsubscribe(name string) gateway.Response[gateway.Status] {
	a.mu.Lock()
	delete(a.subscribed, name)
	a.mu.Unlock()
	return gateway.Ok(gateway.Status{Connected: true})
}

// GetAccount is not implemented; a real adapter would call Tradier's
// /accounts/{id}/balances and /positions endpoints and overwrite acc's
// state, per spec §4.5.
func (a *Adapter) GetAccount(_ gateway.AccountCriteria) gateway.Response[gateway.AccountSnapshot] {
	return gateway.NotImplemented[gateway.AccountSnapshot]("GetAccount")
}

// CreateOrders submits each order through the shared session.
func (a *Adapter) CreateOrders(orders ...*model.Order) gateway.Response[[]*model.Order] {
	for _, o := range orders {
		if err := a.session.SubmitOrder(o); err != nil {
			return gateway.FailErr[[]*model.Order](gateway.CodeConnection, err)
		}
	}
	return gateway.Ok(orders)
}

// DeleteOrders is not implemented in this adapter stub; a real
// implementation posts DELETE /v1/accounts/{id}/orders/{id}.
func (a *Adapter) DeleteOrders(_ ...*model.Order) gateway.Response[gateway.Status] {
	return gateway.NotImplemented[gateway.Status]("DeleteOrders")
}

// GetPoints is not implemented; Tradier has no historical-tick replay
// endpoint exposed here.
func (a *Adapter) GetPoints(_ string) gateway.Response[[]model.Point] {
	return gateway.NotImplemented[[]model.Point]("GetPoints")
}

// GetDom is not implemented; Tradier's depth endpoint requires a
// separate market-data entitlement this adapter does not model.
func (a *Adapter) GetDom(_ string) gateway.Response[gateway.DomSnapshot] {
	return gateway.NotImplemented[gateway.DomSnapshot]("GetDom")
}

// GetOptions is not implemented in this adapter stub; Tradier exposes an
// options-chain endpoint a full adapter would call here.
func (a *Adapter) GetOptions(_ string) gateway.Response[[]gateway.OptionContract] {
	return gateway.NotImplemented[[]gateway.OptionContract]("GetOptions")
}

// GetPositions returns the account's currently active positions.
func (a *Adapter) GetPositions() gateway.Response[[]*model.Position] {
	return gateway.Ok(a.acc.Snap().ActivePositions)
}

// GetOrders returns the account's currently active orders.
func (a *Adapter) GetOrders() gateway.Response[[]*model.Order] {
	return gateway.Ok(a.acc.Snap().ActiveOrders)
}

// Points returns the tick event stream.
func (a *Adapter) Points() *stream.Stream[model.Point] { return a.session.Points() }

// Orders returns the order event stream.
func (a *Adapter) Orders() *stream.Stream[model.Order] { return a.session.Orders() }

// Errors returns the error event stream.
func (a *Adapter) Errors() *stream.Stream[gateway.ErrorDetail] { return a.session.Errors() }

var _ gateway.Gateway = (*Adapter)(nil)
