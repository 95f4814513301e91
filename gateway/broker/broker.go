// Package broker provides the shared skeleton every live adapter (spec
// §4.6) builds on: an HTTP client (requests carry no credentials; the
// stored apiKey is not sent), a WebSocket session, a
// Mapper translating wire messages to the core model, and reconciliation
// of broker-assigned order ids back onto submitted orders.
//
// Grounding: the struct shape (baseURL, httpClient, apiKey/secret,
// dryRun) generalizes exec.Client (exec/client.go) minus its EIP-712
// signing and Polygon contract fields, which have no home outside the
// Polymarket domain; the WS dial-and-read-loop generalizes
// feeds.PolymarketFeed's websocket session (feeds/polymarket_ws.go).
package broker

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/marketforge/tradecore/gateway"
	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

// Mapper translates between the core's Point/Order model and one
// broker's wire format. Each live adapter (gateway/tradier,
// gateway/ibkr, ...) supplies its own Mapper.
type Mapper interface {
	// DecodePoint parses one inbound WS message into a Point. Unknown
	// fields are dropped silently (spec §4.6); an unparseable message
	// returns an error and is skipped by the caller.
	DecodePoint(raw []byte) (name string, p model.Point, err error)

	// EncodeOrder renders a core Order as the broker's order-submission
	// payload.
	EncodeOrder(o *model.Order) ([]byte, error)

	// DecodeOrderAck parses an order-acknowledgement response, returning
	// the broker-assigned id to reconcile onto the submitted Order.
	DecodeOrderAck(raw []byte) (brokerID string, err error)
}

// Session is the shared base every live Gateway holds: HTTP for
// request/response calls (order submission, quote polling) and a
// WebSocket for streaming ticks. apiKey is stored but no request sends it.
type Session struct {
	mu sync.RWMutex

	baseURL string
	wsURL   string
	apiKey  string
	dryRun  bool

	httpClient *http.Client
	conn       *websocket.Conn

	mapper Mapper

	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}

	points *stream.Stream[model.Point]
	orders *stream.Stream[model.Order]
	errs   *stream.Stream[gateway.ErrorDetail]
}

// NewSession builds a disconnected Session. dryRun, when true, makes
// Connect skip the socket dial and SubmitOrder encode and log each order
// without sending it (mirrors the teacher's DRY_RUN short-circuit in
// exec.Client). An empty wsURL makes Connect skip the dial as well.
func NewSession(baseURL, wsURL, apiKey string, dryRun bool, mapper Mapper) *Session {
	return &Session{
		baseURL:    baseURL,
		wsURL:      wsURL,
		apiKey:     apiKey,
		dryRun:     dryRun,
		mapper:     mapper,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		points:     stream.New[model.Point](),
		orders:     stream.New[model.Order](),
		errs:       stream.New[gateway.ErrorDetail](),
	}
}

// Connect is idempotent: it disconnects any prior session, then dials
// the WebSocket endpoint and starts the read loop. In dry-run mode, or
// when the Session has no wsURL (HTTP-polling adapters), no socket is
// dialed.
func (s *Session) Connect() gateway.Response[gateway.Status] {
	s.Disconnect()

	if s.wsURL == "" && !s.dryRun {
		log.Info().Str("url", s.baseURL).Msg("broker session connected over HTTP only, no socket dialed")
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return gateway.Ok(gateway.Status{Connected: true})
	}

	if s.dryRun {
		log.Info().Str("url", s.baseURL).Msg("broker session connected in dry-run mode, no socket dialed")
		s.mu.Lock()
		s.running = true
		s.mu.Unlock()
		return gateway.Ok(gateway.Status{Connected: true})
	}

	conn, _, err := websocket.DefaultDialer.Dial(s.wsURL, nil)
	if err != nil {
		return gateway.FailErr[gateway.Status](gateway.CodeConnection, err)
	}

	s.mu.Lock()
	s.conn = conn
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	go s.readLoop(conn, stopCh, doneCh)

	log.Info().Str("url", s.wsURL).Msg("broker session connected")
	return gateway.Ok(gateway.Status{Connected: true})
}

// Disconnect releases the socket and stops the read loop. Safe to call
// on an already-disconnected Session.
func (s *Session) Disconnect() gateway.Response[gateway.Status] {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return gateway.Ok(gateway.Status{Connected: false})
	}
	conn, stopCh, doneCh := s.conn, s.stopCh, s.doneCh
	s.conn = nil
	s.running = false
	s.mu.Unlock()

	if stopCh != nil {
		close(stopCh)
	}
	if conn != nil {
		_ = conn.Close()
	}
	if doneCh != nil {
		<-doneCh
	}
	return gateway.Ok(gateway.Status{Connected: false})
}

// readLoop pumps inbound WS frames through the Mapper and onto the point
// stream until stopCh closes or the connection errors.
func (s *Session) readLoop(conn *websocket.Conn, stopCh, doneCh chan struct{}) {
	defer close(doneCh)
	for {
		select {
		case <-stopCh:
			return
		default:
		}

		_, raw, err := conn.ReadMessage()
		if err != nil {
			s.errs.Publish(stream.Message[gateway.ErrorDetail]{
				Action: stream.Create,
				Next:   gateway.ErrorDetail{Code: gateway.CodeConnection, Message: err.Error()},
			})
			return
		}

		name, p, err := s.mapper.DecodePoint(raw)
		if err != nil {
			log.Debug().Err(err).Msg("dropping unparseable broker message")
			continue
		}
		p.Instrument = name
		s.points.Publish(stream.Message[model.Point]{Action: stream.Create, Next: p})
	}
}

// SubmitOrder encodes and posts one order, reconciling the broker's
// assigned id back onto o. In dry-run mode it encodes and logs the
// payload, leaves o.Id unchanged and never calls the network.
func (s *Session) SubmitOrder(o *model.Order) error {
	payload, err := s.mapper.EncodeOrder(o)
	if err != nil {
		return err
	}

	if s.dryRun {
		log.Debug().Str("order", o.Id).Bytes("payload", payload).Msg("dry-run order, not sent")
		return nil
	}

	resp, err := s.httpClient.Post(s.baseURL+"/orders", "application/json", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("submit order: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read order ack: %w", err)
	}

	brokerID, err := s.mapper.DecodeOrderAck(raw)
	if err != nil {
		return err
	}
	o.Id = brokerID
	return nil
}

// PollQuotes issues one HTTP GET against path and decodes the response
// body as a sequence of newline-delimited wire messages, publishing each
// through the Mapper onto the point stream. Used by adapters (Tradier)
// whose market data is HTTP long-poll rather than a persistent socket.
func (s *Session) PollQuotes(path string) error {
	resp, err := s.httpClient.Get(s.baseURL + path)
	if err != nil {
		return fmt.Errorf("poll quotes: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read quotes: %w", err)
	}

	for _, line := range bytes.Split(raw, []byte("\n")) {
		if len(line) == 0 {
			continue
		}
		name, p, err := s.mapper.DecodePoint(line)
		if err != nil {
			log.Debug().Err(err).Msg("dropping unparseable polled quote")
			continue
		}
		p.Instrument = name
		s.points.Publish(stream.Message[model.Point]{Action: stream.Create, Next: p})
	}
	return nil
}

// Points returns the tick event stream.
func (s *Session) Points() *stream.Stream[model.Point] { return s.points }

// Orders returns the order event stream.
func (s *Session) Orders() *stream.Stream[model.Order] { return s.orders }

// Errors returns the error event stream.
func (s *Session) Errors() *stream.Stream[gateway.ErrorDetail] { return s.errs }
