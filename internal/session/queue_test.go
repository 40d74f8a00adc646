package session

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/formsync/internal/engine"
	"github.com/roach88/formsync/internal/ir"
)

func applyRequest(path, value string) request {
	return request{
		kind:  requestApply,
		event: engine.EventFieldChange{Path: path, Value: ir.IRString(value)},
	}
}

func TestRequestQueue_FIFO(t *testing.T) {
	q := newRequestQueue()

	for _, p := range []string{"a", "b", "c"} {
		require.True(t, q.Enqueue(applyRequest(p, "v")))
	}
	q.Enqueue(request{kind: requestSave})

	for _, want := range []string{"a", "b", "c"} {
		r, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, r.event.(engine.EventFieldChange).Path)
	}
	r, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, requestSave, r.kind)

	_, ok = q.TryDequeue()
	assert.False(t, ok)
}

func TestRequestQueue_SignalCoalesces(t *testing.T) {
	q := newRequestQueue()
	q.Enqueue(applyRequest("a", "1"))
	q.Enqueue(applyRequest("b", "2"))

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal")
	}
	select {
	case <-q.Wait():
		t.Fatal("signals should coalesce into one")
	default:
	}
	assert.Equal(t, 2, q.Len())
}

func TestRequestQueue_Close(t *testing.T) {
	q := newRequestQueue()

	woke := make(chan struct{})
	go func() {
		<-q.Wait()
		close(woke)
	}()

	assert.False(t, q.Closed())
	q.Close()
	q.Close()
	assert.True(t, q.Closed())

	select {
	case <-woke:
	case <-time.After(time.Second):
		t.Fatal("Close did not wake the waiter")
	}
	assert.False(t, q.Enqueue(applyRequest("a", "1")), "enqueue after close should fail")
}

func TestRequestQueue_ThreadSafe(t *testing.T) {
	q := newRequestQueue()

	const producers = 10
	const perProducer = 100

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(request{kind: requestSave})
			}
		}()
	}
	wg.Wait()

	n := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		n++
	}
	assert.Equal(t, producers*perProducer, n)
	assert.Equal(t, 0, q.Len())
}
