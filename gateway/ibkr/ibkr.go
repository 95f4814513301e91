// Package ibkr implements a live gateway.Gateway against Interactive
// Brokers' web API (spec §4.6).
//
// Grounding: the primary/fallback session shape follows the teacher's
// feeds.ChainlinkFeed (feeds/chainlink.go), which falls back from its
// primary price source to a secondary one on failure; here the fallback
// is a secondary WS endpoint (IBKR's gateway occasionally requires a
// session re-handshake against a backup host) rather than a different
// price vendor.
package ibkr

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/marketforge/tradecore/account"
	"github.com/marketforge/tradecore/gateway"
	"github.com/marketforge/tradecore/gateway/broker"
	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

// tickWire is IBKR's market-data-snapshot JSON shape, trimmed to the
// fields the core model needs.
type tickWire struct {
	ConID   string  `json:"conid"`
	Bid     float64 `json:"31"`
	Ask     float64 `json:"84"`
	Last    float64 `json:"last"`
	BidSize float64 `json:"bidSize"`
	AskSize float64 `json:"askSize"`
}

type orderAckWire struct {
	OrderID string `json:"order_id"`
}

type mapper struct{}

func (mapper) DecodePoint(raw []byte) (string, model.Point, error) {
	var t tickWire
	if err := json.Unmarshal(raw, &t); err != nil {
		return "", model.Point{}, fmt.Errorf("decode ibkr tick: %w", err)
	}
	p := model.Point{
		Time:    time.Now().UTC(),
		Bid:     decimal.NewFromFloat(t.Bid),
		Ask:     decimal.NewFromFloat(t.Ask),
		Last:    decimal.NewFromFloat(t.Last),
		BidSize: decimal.NewFromFloat(t.BidSize),
		AskSize: decimal.NewFromFloat(t.AskSize),
	}
	return t.ConID, p, nil
}

func (mapper) EncodeOrder(o *model.Order) ([]byte, error) {
	return json.Marshal(map[string]any{
		"conid":  o.Name,
		"side":   o.Side,
		"orderType": o.Type,
		"price":  o.Price.String(),
		"quantity": o.Volume.String(),
	})
}

func (mapper) DecodeOrderAck(raw []byte) (string, error) {
	var ack orderAckWire
	if err := json.Unmarshal(raw, &ack); err != nil {
		return "", fmt.Errorf("decode ibkr order ack: %w", err)
	}
	return ack.OrderID, nil
}

// Adapter is the Interactive Brokers live Gateway. It holds a primary
// session and a backup session to the secondary gateway host, falling
// back when the primary dial fails (mirroring ChainlinkFeed's
// primary-then-fallback price lookup).
type Adapter struct {
	primary *broker.Session
	backup  *broker.Session
	acc     *account.Account
}

// New creates a disconnected IBKR Adapter. primaryURL/backupURL are the
// two gateway hosts IBKR's client portal API typically exposes for
// failover.
func New(descriptor, primaryURL, backupURL string, initialBalance decimal.Decimal, dryRun bool) *Adapter {
	acc := account.New(descriptor, initialBalance)
	m := mapper{}
	return &Adapter{
		primary: broker.NewSession(primaryURL, primaryURL+"/ws", "", dryRun, m),
		backup:  broker.NewSession(backupURL, backupURL+"/ws", "", dryRun, m),
		acc:     acc,
	}
}

// Connect tries the primary session first, falling back to the backup
// host on failure.
func (a *Adapter) Connect() gateway.Response[gateway.Status] {
	if resp := a.primary.Connect(); resp.Succeeded() {
		return resp
	}
	return a.backup.Connect()
}

// Disconnect releases both sessions; safe to call when neither is
// connected.
func (a *Adapter) Disconnect() gateway.Response[gateway.Status] {
	a.primary.Disconnect()
	return a.backup.Disconnect()
}

// Subscribe registers inst with the account only. No subscription
// message is sent to IBKR over either session, so the feed is not
// narrowed or widened by it.
func (a *Adapter) Subscribe(inst *model.Instrument) gateway.Response[gateway.Status] {
	a.acc.EnsureInstrument(inst)
	return gateway.Ok(gateway.Status{Connected: true})
}

// Unsubscribe is a no-op placeholder; see Subscribe.
func (a *Adapter) Unsubscribe(_ string) gateway.Response[gateway.Status] {
	return gateway.Ok(gateway.Status{Connected: true})
}

// GetAccount is not implemented; a full adapter calls IBKR's
// /portfolio/{id}/summary endpoint.
func (a *Adapter) GetAccount(_ gateway.AccountCriteria) gateway.Response[gateway.AccountSnapshot] {
	return gateway.NotImplemented[gateway.AccountSnapshot]("GetAccount")
}

// CreateOrders submits through the primary session.
func (a *Adapter) CreateOrders(orders ...*model.Order) gateway.Response[[]*model.Order] {
	for _, o := range orders {
		if err := a.primary.SubmitOrder(o); err != nil {
			return gateway.FailErr[[]*model.Order](gateway.CodeConnection, err)
		}
	}
	return gateway.Ok(orders)
}

// DeleteOrders is not implemented in this adapter stub.
func (a *Adapter) DeleteOrders(_ ...*model.Order) gateway.Response[gateway.Status] {
	return gateway.NotImplemented[gateway.Status]("DeleteOrders")
}

// GetPoints is not implemented; IBKR's historical-bars endpoint requires
// separate entitlements not modeled here.
func (a *Adapter) GetPoints(_ string) gateway.Response[[]model.Point] {
	return gateway.NotImplemented[[]model.Point]("GetPoints")
}

// GetDom is not implemented: market depth is not modeled here (spec §1
// Non-goals: "no order-book depth reconstruction").
func (a *Adapter) GetDom(_ string) gateway.Response[gateway.DomSnapshot] {
	return gateway.NotImplemented[gateway.DomSnapshot]("GetDom")
}

// GetOptions is not implemented in this adapter stub.
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

// Points returns the primary session's tick event stream.
func (a *Adapter) Points() *stream.Stream[model.Point] { return a.primary.Points() }

// Orders returns the primary session's order event stream.
func (a *Adapter) Orders() *stream.Stream[model.Order] { return a.primary.Orders() }

// Errors returns the primary session's error event stream.
func (a *Adapter) Errors() *stream.Stream[gateway.ErrorDetail] { return a.primary.Errors() }

var _ gateway.Gateway = (*Adapter)(nil)
