package events

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishSubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var mu sync.Mutex
	var received []Event

	unsub := bus.Subscribe(EventInjectCSS, func(e Event) {
		mu.Lock()
		received = append(received, e)
		mu.Unlock()
	})
	defer unsub()

	bus.Publish(Event{Type: EventInjectCSS, Path: "css/main.min.css", Task: "compileStyles"})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, EventInjectCSS, received[0].Type)
	assert.Equal(t, "css/main.min.css", received[0].Path)
	assert.Equal(t, "compileStyles", received[0].Task)
	assert.False(t, received[0].Timestamp.IsZero(), "timestamp should be filled in")
}

func TestBus_MultipleSubscribers(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var count1, count2 atomic.Int32
	unsub1 := bus.Subscribe(EventReload, func(Event) { count1.Add(1) })
	defer unsub1()
	unsub2 := bus.Subscribe(EventReload, func(Event) { count2.Add(1) })
	defer unsub2()

	bus.Publish(Event{Type: EventReload})

	require.Eventually(t, func() bool {
		return count1.Load() == 1 && count2.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBus_NonBlocking(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	unsub := bus.Subscribe(EventReload, func(Event) {
		time.Sleep(100 * time.Millisecond)
	})
	defer unsub()

	start := time.Now()
	for i := 0; i < 10; i++ {
		bus.Publish(Event{Type: EventReload})
	}
	elapsed := time.Since(start)

	if elapsed > 50*time.Millisecond {
		t.Errorf("publish blocked for %v, expected non-blocking", elapsed)
	}
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var count atomic.Int32
	unsub := bus.Subscribe(EventReload, func(Event) { count.Add(1) })

	bus.Publish(Event{Type: EventReload})
	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)

	unsub()
	unsub() // second call is a no-op

	bus.Publish(Event{Type: EventReload})
	time.Sleep(50 * time.Millisecond)

	if got := count.Load(); got != 1 {
		t.Errorf("expected 1 event before unsubscribe, got %d", got)
	}
}

func TestBus_PanicRecovery(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var received atomic.Bool

	unsub1 := bus.Subscribe(EventReload, func(Event) {
		panic("subscriber failure")
	})
	defer unsub1()

	unsub2 := bus.Subscribe(EventReload, func(Event) {
		received.Store(true)
	})
	defer unsub2()

	bus.Publish(Event{Type: EventReload})

	require.Eventually(t, received.Load, time.Second, 5*time.Millisecond,
		"second subscriber did not receive event after first panicked")
}

func TestBus_EventTypes(t *testing.T) {
	bus := NewBus(10)
	defer bus.Close()

	var reloads, injects atomic.Int32
	unsub1 := bus.Subscribe(EventReload, func(Event) { reloads.Add(1) })
	defer unsub1()
	unsub2 := bus.Subscribe(EventInjectCSS, func(Event) { injects.Add(1) })
	defer unsub2()

	bus.Publish(Event{Type: EventReload})
	bus.Publish(Event{Type: EventInjectCSS})
	bus.Publish(Event{Type: EventReload})
	bus.Publish(Event{Type: EventTaskFinished})

	require.Eventually(t, func() bool {
		return reloads.Load() == 2 && injects.Load() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestBus_PublishAfterClose(t *testing.T) {
	bus := NewBus(10)
	bus.Close()

	// must not panic on a closed bus or a nil bus
	bus.Publish(Event{Type: EventReload})
	var nilBus *Bus
	nilBus.Publish(Event{Type: EventReload})

	unsub := bus.Subscribe(EventReload, func(Event) {})
	unsub()
}

func BenchmarkBus_Publish(b *testing.B) {
	bus := NewBus(100)
	defer bus.Close()

	for i := 0; i < 5; i++ {
		bus.Subscribe(EventReload, func(Event) {})
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		bus.Publish(Event{Type: EventReload, Task: "reloadClients"})
	}
}
