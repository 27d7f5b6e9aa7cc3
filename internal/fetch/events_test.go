package fetch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherFIFO(t *testing.T) {
	d := newDispatcher()
	require.True(t, d.emit(Event{Type: EventChunk, Handle: 1}))
	require.True(t, d.emit(Event{Type: EventStatusChange, Handle: 2}))
	require.True(t, d.emit(Event{Type: EventRolledBack}))
	assert.Equal(t, 3, d.len())

	first, ok := d.tryNext()
	require.True(t, ok)
	assert.Equal(t, EventChunk, first.Type)
	second, ok := d.tryNext()
	require.True(t, ok)
	assert.Equal(t, EventStatusChange, second.Type)
	third, ok := d.tryNext()
	require.True(t, ok)
	assert.Equal(t, EventRolledBack, third.Type)

	_, ok = d.tryNext()
	assert.False(t, ok)
}

func TestDispatcherEmitAfterClose(t *testing.T) {
	d := newDispatcher()
	d.close()
	assert.False(t, d.emit(Event{Type: EventError}))
	_, ok := d.tryNext()
	assert.False(t, ok)
}

func TestDispatcherWaitNilAfterClose(t *testing.T) {
	d := newDispatcher()
	require.NotNil(t, d.wait())

	// A waiter parked before close is woken exactly once.
	parked := d.wait()
	d.close()
	select {
	case <-parked:
	default:
		t.Fatal("close did not wake the parked waiter")
	}

	// Later waits get nil: a select on it parks instead of spinning.
	assert.Nil(t, d.wait())
}

func TestWorkerWaitNilAfterClose(t *testing.T) {
	w := newTestWorker(t)
	require.NotNil(t, w.Wait())
	w.Close()
	assert.Nil(t, w.Wait())
}
