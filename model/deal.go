package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Deal is one append-only audit-log entry, written once per fill.
// Account.Deals never shrinks and is never replayed back into state —
// it exists purely for post-hoc inspection, the in-memory analogue of
// the teacher's persisted trade log without a database underneath it.
type Deal struct {
	Id         string
	OrderId    string
	Name       string // instrument key
	Side       OrderSide
	Price      decimal.Decimal
	Volume     decimal.Decimal
	Time       time.Time
	Commission decimal.Decimal
}
