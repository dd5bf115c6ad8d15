// Package events provides the process-wide broadcast channel tasks use to
// notify live-reload clients.
package events

import (
	"sync"
	"time"
)

// EventType identifies what happened.
type EventType string

const (
	// EventReload asks every connected preview client to refresh the page.
	EventReload EventType = "reload"
	// EventInjectCSS tells clients a stylesheet changed and can be swapped
	// without a full reload. Path carries the output-relative stylesheet.
	EventInjectCSS EventType = "inject_css"
	// EventTaskFinished is published after every leaf task run.
	EventTaskFinished EventType = "task_finished"
)

// Event is one broadcast message.
type Event struct {
	Type      EventType
	Timestamp time.Time
	// Path is the output-relative file the event refers to, if any.
	Path string
	// Task is the name of the task that published the event, if any.
	Task string
	Err  error
}

// Subscriber receives events on its own goroutine.
type Subscriber func(Event)

// Bus is a non-blocking publish/subscribe hub. Each subscriber owns a
// buffered channel; when it is full the event is dropped for that
// subscriber only.
type Bus struct {
	mu          sync.RWMutex
	subscribers map[EventType][]chan Event
	bufferSize  int
	closed      bool
}

// NewBus creates a bus with bufferSize slots per subscriber.
func NewBus(bufferSize int) *Bus {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	return &Bus{
		subscribers: make(map[EventType][]chan Event),
		bufferSize:  bufferSize,
	}
}

// Subscribe registers fn for eventType and returns the unsubscribe func.
func (b *Bus) Subscribe(eventType EventType, fn Subscriber) func() {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, b.bufferSize)
	if b.closed {
		close(ch)
		return func() {}
	}
	b.subscribers[eventType] = append(b.subscribers[eventType], ch)

	go func() {
		for event := range ch {
			func() {
				defer func() {
					// a panicking subscriber must not take the bus down
					_ = recover()
				}()
				fn(event)
			}()
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()

			subs := b.subscribers[eventType]
			for i, subCh := range subs {
				if subCh == ch {
					b.subscribers[eventType] = append(subs[:i], subs[i+1:]...)
					close(ch)
					break
				}
			}
		})
	}
}

// Publish delivers event to every subscriber of its type without
// blocking.
func (b *Bus) Publish(event Event) {
	if b == nil {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	for _, ch := range b.subscribers[event.Type] {
		select {
		case ch <- event:
		default:
		}
	}
}

// Close closes all subscriber channels. Publishing afterwards is a no-op.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.subscribers {
		for _, ch := range subs {
			close(ch)
		}
		delete(b.subscribers, eventType)
	}
	b.closed = true
}
