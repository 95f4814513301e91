package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Point is a single top-of-book observation for one Instrument.
//
// Point back-references its Instrument by Name rather than by pointer —
// cyclic Instrument<->Point references are broken by keying through the
// account/instrument registry instead of holding an owning pointer back
// up the tree.
type Point struct {
	Instrument string
	Time       time.Time
	Bid        decimal.Decimal
	Ask        decimal.Decimal
	Last       decimal.Decimal
	BidSize    decimal.Decimal
	AskSize    decimal.Decimal
}

// normalize fills Last from Ask/Bid per spec: Ask when AskSize>0, else Bid.
func (p *Point) normalize() {
	if p.Last.IsZero() {
		if p.AskSize.IsPositive() {
			p.Last = p.Ask
		} else {
			p.Last = p.Bid
		}
	}
}

// Valid reports whether the tick satisfies Bid <= Ask when both are set.
func (p Point) Valid() bool {
	if p.Bid.IsPositive() && p.Ask.IsPositive() {
		return p.Bid.LessThanOrEqual(p.Ask)
	}
	return true
}

// ParsePointLine parses the default text tick format:
//
//	<unixSeconds> <bid> <bidSize> <ask> <askSize>
//
// Malformed lines return an error; callers (merge.FileTickSource) skip
// them and continue rather than aborting the stream.
func ParsePointLine(line string) (Point, error) {
	fields := strings.Fields(line)
	if len(fields) < 5 {
		return Point{}, fmt.Errorf("tick line has %d fields, want 5", len(fields))
	}

	epoch, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return Point{}, fmt.Errorf("parse epoch %q: %w", fields[0], err)
	}

	bid, err := decimal.NewFromString(fields[1])
	if err != nil {
		return Point{}, fmt.Errorf("parse bid %q: %w", fields[1], err)
	}
	bidSize, err := decimal.NewFromString(fields[2])
	if err != nil {
		return Point{}, fmt.Errorf("parse bidSize %q: %w", fields[2], err)
	}
	ask, err := decimal.NewFromString(fields[3])
	if err != nil {
		return Point{}, fmt.Errorf("parse ask %q: %w", fields[3], err)
	}
	askSize, err := decimal.NewFromString(fields[4])
	if err != nil {
		return Point{}, fmt.Errorf("parse askSize %q: %w", fields[4], err)
	}

	p := Point{
		Time:    time.Unix(epoch, 0).UTC(),
		Bid:     bid,
		BidSize: bidSize,
		Ask:     ask,
		AskSize: askSize,
	}
	p.normalize()
	return p, nil
}

// FormatPointLine is the inverse of ParsePointLine, used by the round-trip
// test in §8: parsing a tick line then formatting it yields the same
// fields (Last is derived, so it is not part of the wire line).
func FormatPointLine(p Point) string {
	// Keep the parsed number of decimal places, so "100.50" stays "100.50".
	field := func(d decimal.Decimal) string {
		if d.Exponent() < 0 {
			return d.StringFixed(-d.Exponent())
		}
		return d.String()
	}
	return fmt.Sprintf("%d %s %s %s %s",
		p.Time.UTC().Unix(),
		field(p.Bid),
		field(p.BidSize),
		field(p.Ask),
		field(p.AskSize),
	)
}
