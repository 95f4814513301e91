// Package gateway defines the uniform broker-facing contract (spec §4.5)
// that every adapter — simulated or live — implements identically, so
// strategy code never distinguishes between them.
//
// Grounding: the Response envelope replaces the teacher's
// exception-across-the-boundary style in exec/client.go (which returns
// (T, error) pairs from HTTP calls) with the explicit {Data, Errors}
// struct spec.md calls for; the interface shape generalizes
// execution.Adapter (execution/adapter.go).
package gateway

import (
	"github.com/marketforge/tradecore/model"
	"github.com/marketforge/tradecore/stream"
)

// ErrorDetail is one entry in a Response's Errors slice.
type ErrorDetail struct {
	Code    string
	Message string
}

// Response is the envelope every Gateway method returns instead of an
// error: a success has Data set and Errors empty; a failure has Errors
// populated and Data left at its zero value. Adapters never panic or
// return a bare Go error across this boundary (spec §4.5/§7).
type Response[T any] struct {
	Data   T
	Errors []ErrorDetail
}

// Ok wraps data as a successful Response.
func Ok[T any](data T) Response[T] {
	return Response[T]{Data: data}
}

// Fail wraps a single error message as a failed Response.
func Fail[T any](code, message string) Response[T] {
	return Response[T]{Errors: []ErrorDetail{{Code: code, Message: message}}}
}

// FailErr wraps a Go error as a failed Response, using err's message.
func FailErr[T any](code string, err error) Response[T] {
	return Response[T]{Errors: []ErrorDetail{{Code: code, Message: err.Error()}}}
}

// Succeeded reports whether the envelope carries no errors.
func (r Response[T]) Succeeded() bool {
	return len(r.Errors) == 0
}

// Status is the outcome payload of Connect/Disconnect.
type Status struct {
	Connected bool
}

// AccountCriteria narrows a GetAccount refresh; empty means "everything".
type AccountCriteria struct {
	Instruments []string
}

// Gateway is the uniform broker contract. Every method returns a
// Response; no method panics or returns a bare error, per spec §4.5.
type Gateway interface {
	Connect() Response[Status]
	Disconnect() Response[Status]

	Subscribe(inst *model.Instrument) Response[Status]
	Unsubscribe(name string) Response[Status]

	GetAccount(criteria AccountCriteria) Response[AccountSnapshot]
	CreateOrders(orders ...*model.Order) Response[[]*model.Order]
	DeleteOrders(orders ...*model.Order) Response[Status]

	GetPoints(name string) Response[[]model.Point]
	GetDom(name string) Response[DomSnapshot]
	GetOptions(name string) Response[[]OptionContract]
	GetPositions() Response[[]*model.Position]
	GetOrders() Response[[]*model.Order]

	Points() *stream.Stream[model.Point]
	Orders() *stream.Stream[model.Order]
	Errors() *stream.Stream[ErrorDetail]
}

// AccountSnapshot is the refreshed view GetAccount returns.
type AccountSnapshot struct {
	Descriptor string
	Balance    string
	Positions  []*model.Position
	Orders     []*model.Order
}

// DomSnapshot is a depth-of-market query result. Adapters that only model
// top-of-book (spec §1 Non-goals: "no order-book depth reconstruction")
// return NotImplementedError via Response.Errors.
type DomSnapshot struct {
	Name string
	Bids []DomLevel
	Asks []DomLevel
}

// DomLevel is one price/size rung of a DomSnapshot.
type DomLevel struct {
	Price string
	Size  string
}

// OptionContract is a minimal options-chain entry for GetOptions.
type OptionContract struct {
	Name   string
	Strike string
	Expiry string
}

// Error codes used in ErrorDetail.Code, mirroring the taxonomy of spec §7.
const (
	CodeValidation     = "VALIDATION"
	CodeConnection     = "CONNECTION"
	CodeParse          = "PARSE"
	CodeNotImplemented = "NOT_IMPLEMENTED"
	CodeInvariant      = "INVARIANT"
)

// NotImplemented builds the canned Response for an unsupported query.
func NotImplemented[T any](op string) Response[T] {
	return Fail[T](CodeNotImplemented, op+" is not implemented by this adapter")
}
