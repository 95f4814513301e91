package merge

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/marketforge/tradecore/model"
)

// sliceSource is an in-memory TickSource for tests, avoiding the
// filesystem entirely.
type sliceSource struct {
	points []model.Point
	i      int
	closed bool
}

func (s *sliceSource) Next() (model.Point, bool) {
	if s.i >= len(s.points) {
		return model.Point{}, false
	}
	p := s.points[s.i]
	s.i++
	return p, true
}

func (s *sliceSource) Close() error {
	s.closed = true
	return nil
}

func pointAt(sec int64) model.Point {
	return model.Point{Time: time.Unix(sec, 0).UTC()}
}

func TestScenario5_MergeTieBreak(t *testing.T) {
	aaa := &sliceSource{points: []model.Point{pointAt(5)}}
	bbb := &sliceSource{points: []model.Point{pointAt(5)}}

	sched := NewScheduler(time.Millisecond, map[string]TickSource{"AAA": aaa, "BBB": bbb})

	name, _, ok := sched.next()
	require.True(t, ok)
	assert.Equal(t, "AAA", name)

	name, _, ok = sched.next()
	require.True(t, ok)
	assert.Equal(t, "BBB", name)

	_, _, ok = sched.next()
	assert.False(t, ok)
}

func TestScheduler_NonDecreasingTime(t *testing.T) {
	a := &sliceSource{points: []model.Point{pointAt(1), pointAt(3), pointAt(7)}}
	b := &sliceSource{points: []model.Point{pointAt(2), pointAt(4)}}

	sched := NewScheduler(time.Millisecond, map[string]TickSource{"A": a, "B": b})

	var lastTime time.Time
	for {
		_, p, ok := sched.next()
		if !ok {
			break
		}
		assert.False(t, p.Time.Before(lastTime))
		lastTime = p.Time
	}
}

func TestScheduler_PerSourceOrderPreserved(t *testing.T) {
	a := &sliceSource{points: []model.Point{pointAt(1), pointAt(3), pointAt(7)}}
	b := &sliceSource{points: []model.Point{pointAt(2), pointAt(4)}}

	sched := NewScheduler(time.Millisecond, map[string]TickSource{"A": a, "B": b})

	var aTimes, bTimes []int64
	for {
		name, p, ok := sched.next()
		if !ok {
			break
		}
		if name == "A" {
			aTimes = append(aTimes, p.Time.Unix())
		} else {
			bTimes = append(bTimes, p.Time.Unix())
		}
	}

	assert.Equal(t, []int64{1, 3, 7}, aTimes)
	assert.Equal(t, []int64{2, 4}, bTimes)
}

func TestScheduler_RunReleasesSourcesOnExhaustion(t *testing.T) {
	a := &sliceSource{points: []model.Point{pointAt(1)}}
	sched := NewScheduler(time.Millisecond, map[string]TickSource{"A": a})

	var ticks int
	done := make(chan struct{})
	go func() {
		sched.Run(func(name string, p model.Point) { ticks++ })
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("scheduler did not exit on exhaustion")
	}

	assert.Equal(t, 1, ticks)
	assert.True(t, a.closed)
}

func TestScheduler_StopReleasesSources(t *testing.T) {
	a := &sliceSource{points: []model.Point{pointAt(1), pointAt(2), pointAt(3)}}
	sched := NewScheduler(50*time.Millisecond, map[string]TickSource{"A": a})

	go sched.Run(func(name string, p model.Point) {})
	time.Sleep(10 * time.Millisecond)
	sched.Stop()

	assert.True(t, a.closed)
}
