package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var start = time.Date(2026, 3, 9, 10, 30, 0, 0, time.UTC)

func TestManualClock_StartsAtGivenTime(t *testing.T) {
	clock := NewManualClock(start)
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_ConvertsToUTC(t *testing.T) {
	ist := time.FixedZone("IST", 5*3600+1800)
	clock := NewManualClock(time.Date(2026, 3, 9, 16, 0, 0, 0, ist))
	assert.Equal(t, time.UTC, clock.Now().Location())
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_Advance(t *testing.T) {
	clock := NewManualClock(start)

	got := clock.Advance(90 * time.Minute)
	assert.Equal(t, start.Add(90*time.Minute), got)
	assert.Equal(t, got, clock.Now())
}

func TestManualClock_AdvanceIgnoresNegative(t *testing.T) {
	clock := NewManualClock(start)
	clock.Advance(-time.Hour)
	assert.Equal(t, start, clock.Now())
}

func TestManualClock_Set(t *testing.T) {
	clock := NewManualClock(start)
	next := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	clock.Set(next)
	assert.Equal(t, next, clock.Now())
}

func TestManualClock_ThreadSafe(t *testing.T) {
	clock := NewManualClock(start)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.Advance(time.Second)
			_ = clock.Now()
		}()
	}
	wg.Wait()

	assert.Equal(t, start.Add(100*time.Second), clock.Now())
}
