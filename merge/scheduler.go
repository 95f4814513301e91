// Package merge implements the virtual-clock k-way merge scheduler (spec
// §4.4): it turns per-instrument tick sources into a single globally
// time-ordered flow, paced by a periodic timer, tie-broken
// deterministically by instrument name.
//
// Grounding: the running/stopCh start-stop skeleton generalizes the
// teacher's feeds.BinanceFeed.Start/Stop poll loop (feeds/binance.go); the
// timer-gated emission loop generalizes the same file's pollLoop ticker.
package merge

import (
	"bufio"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/marketforge/tradecore/model"
)

// TickSource is a lazy, restartable sequence of ticks in non-decreasing
// time order. Next returns false once the source is exhausted; Close
// releases any underlying handle (file descriptor, socket).
type TickSource interface {
	Next() (model.Point, bool)
	Close() error
}

// FileTickSource reads one instrument's ticks from a text file in the
// format described by spec §6: one tick per line, fields
// "<unixSeconds> <bid> <bidSize> <ask> <askSize>". Malformed lines are
// skipped, per spec §4.4's parsing contract.
type FileTickSource struct {
	name string
	f    *os.File
	sc   *bufio.Scanner
}

// NewFileTickSource opens the tick file for instrument name under dir
// (filename equals the instrument Name, per spec §6).
func NewFileTickSource(dir, name string) (*FileTickSource, error) {
	f, err := os.Open(filepath.Join(dir, name))
	if err != nil {
		return nil, err
	}
	return &FileTickSource{name: name, f: f, sc: bufio.NewScanner(f)}, nil
}

// Next returns the next valid tick, skipping malformed lines.
func (s *FileTickSource) Next() (model.Point, bool) {
	for s.sc.Scan() {
		line := strings.TrimSpace(s.sc.Text())
		if line == "" {
			continue
		}
		p, err := model.ParsePointLine(line)
		if err != nil {
			log.Debug().Str("instrument", s.name).Str("line", line).Err(err).Msg("skipping malformed tick line")
			continue
		}
		p.Instrument = s.name
		return p, true
	}
	return model.Point{}, false
}

// Close releases the underlying file handle.
func (s *FileTickSource) Close() error {
	return s.f.Close()
}

// lookahead holds one buffered tick per source, or the exhausted flag.
type lookahead struct {
	name      string
	source    TickSource
	point     model.Point
	hasPoint  bool
	exhausted bool
}

func (l *lookahead) fill() {
	if l.hasPoint || l.exhausted {
		return
	}
	p, ok := l.source.Next()
	if !ok {
		l.exhausted = true
		return
	}
	l.point = p
	l.hasPoint = true
}

// Scheduler performs the k-way merge of spec §4.4: one lookahead tick per
// source, emitting the minimum (Time, Name) pair once per Speed period.
type Scheduler struct {
	speed   time.Duration
	sources []*lookahead

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewScheduler creates a Scheduler over sources, pacing emissions at one
// tick per speed interval.
func NewScheduler(speed time.Duration, sources map[string]TickSource) *Scheduler {
	names := make([]string, 0, len(sources))
	for name := range sources {
		names = append(names, name)
	}
	sort.Strings(names)

	las := make([]*lookahead, 0, len(sources))
	for _, name := range names {
		las = append(las, &lookahead{name: name, source: sources[name]})
	}

	return &Scheduler{speed: speed, sources: las}
}

// Run starts the scheduler loop, delivering each emitted tick to onTick
// until all sources are exhausted or Stop is called. Run blocks until the
// loop exits; callers typically invoke it in its own goroutine.
func (s *Scheduler) Run(onTick func(name string, p model.Point)) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.doneCh = make(chan struct{})
	s.mu.Unlock()

	defer close(s.doneCh)
	defer s.releaseAll()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	ticker := time.NewTicker(s.speed)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			log.Debug().Msg("merge scheduler stopped")
			return
		case <-ticker.C:
			name, p, ok := s.next()
			if !ok {
				log.Debug().Msg("merge scheduler exhausted all sources")
				return
			}
			onTick(name, p)
		}
	}
}

// next advances the winning source's lookahead and returns its tick. The
// minimum (Time, Name) pair wins; sources are pre-sorted by name so the
// first minimum encountered during the scan is the lexicographically
// smallest name among ties.
func (s *Scheduler) next() (string, model.Point, bool) {
	var winner *lookahead
	for _, la := range s.sources {
		la.fill()
		if !la.hasPoint {
			continue
		}
		if winner == nil || la.point.Time.Before(winner.point.Time) {
			winner = la
		}
	}
	if winner == nil {
		return "", model.Point{}, false
	}

	p := winner.point
	name := winner.name
	winner.hasPoint = false
	return name, p, true
}

// Stop signals the run loop to exit and blocks until it has released
// every source handle. Safe to call more than once or before Run.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	stopCh, doneCh := s.stopCh, s.doneCh
	s.mu.Unlock()

	close(stopCh)
	<-doneCh
}

// releaseAll closes every source's underlying handle, guaranteeing
// release on cancellation (spec §4.4/§5).
func (s *Scheduler) releaseAll() {
	for _, la := range s.sources {
		if err := la.source.Close(); err != nil {
			log.Warn().Str("instrument", la.name).Err(err).Msg("error releasing tick source")
		}
	}
}
