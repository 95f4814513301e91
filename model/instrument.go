package model

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// InstrumentType classifies the tradable asset behind an Instrument.
type InstrumentType string

const (
	Equity InstrumentType = "Equity"
	Future InstrumentType = "Future"
	Option InstrumentType = "Option"
	FX     InstrumentType = "FX"
	Crypto InstrumentType = "Crypto"
)

// Instrument is the identity and tick history of one tradable symbol.
//
// Instrument owns its Points and PointGroups exclusively; nothing outside
// the Account/Instrument pair mutates them (see lifecycle ownership notes
// in the account package).
type Instrument struct {
	mu sync.RWMutex

	Name      string
	Exchange  string
	Type      InstrumentType
	TimeFrame time.Duration
	Basis     string // underlying instrument Name, for derivatives

	// ContractSize multiplies GainLossPoints into GainLoss. Defaults to 1.
	ContractSize int64

	Points      []Point
	PointGroups []PointGroup
}

// NewInstrument constructs an Instrument with ContractSize defaulted to 1.
func NewInstrument(name string, kind InstrumentType, timeFrame time.Duration) *Instrument {
	return &Instrument{
		Name:         name,
		Type:         kind,
		TimeFrame:    timeFrame,
		ContractSize: 1,
		Points:       make([]Point, 0),
		PointGroups:  make([]PointGroup, 0),
	}
}

// Append adds a tick to the instrument's series and folds it into the
// current (or a freshly opened) time-bucketed PointGroup.
func (i *Instrument) Append(p Point) {
	p.Instrument = i.Name
	p.normalize()

	i.mu.Lock()
	defer i.mu.Unlock()

	i.Points = append(i.Points, p)
	i.foldGroup(p)
}

// foldGroup bucketizes p into PointGroups by TimeFrame. Must be called
// with mu held.
func (i *Instrument) foldGroup(p Point) {
	if i.TimeFrame <= 0 {
		return
	}

	bucket := p.Time.Truncate(i.TimeFrame)

	if n := len(i.PointGroups); n > 0 && i.PointGroups[n-1].Time.Equal(bucket) {
		i.PointGroups[n-1].merge(p)
		return
	}

	i.PointGroups = append(i.PointGroups, newPointGroup(bucket, p))
}

// Last returns the most recently appended tick and true, or the zero
// Point and false when the instrument has no ticks yet.
func (i *Instrument) Last() (Point, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	if len(i.Points) == 0 {
		return Point{}, false
	}
	return i.Points[len(i.Points)-1], true
}

// PointsSnapshot returns a copy of the instrument's full tick history.
func (i *Instrument) PointsSnapshot() []Point {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return append([]Point{}, i.Points...)
}

// Size returns ContractSize, defaulting to 1 when unset.
func (i *Instrument) Size() int64 {
	if i.ContractSize == 0 {
		return 1
	}
	return i.ContractSize
}

// PointGroup is a time-bucketed OHLC aggregate of an instrument's ticks.
type PointGroup struct {
	Time   time.Time
	Open   Point
	High   Point
	Low    Point
	Close  Point
	Volume decimal.Decimal
}

func newPointGroup(bucket time.Time, p Point) PointGroup {
	return PointGroup{
		Time:   bucket,
		Open:   p,
		High:   p,
		Low:    p,
		Close:  p,
		Volume: p.BidSize.Add(p.AskSize),
	}
}

func (g *PointGroup) merge(p Point) {
	if p.Last.GreaterThan(g.High.Last) {
		g.High = p
	}
	if g.Low.Last.IsZero() || p.Last.LessThan(g.Low.Last) {
		g.Low = p
	}
	g.Close = p
	g.Volume = g.Volume.Add(p.BidSize).Add(p.AskSize)
}
