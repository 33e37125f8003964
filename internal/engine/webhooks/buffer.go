package webhooks

import (
	"sync"
	"time"
)

// BufferCapacity bounds both the displayed event history and the duplicate window.
const BufferCapacity = 100

// eventBuffer is a fixed-size ring of recent events plus the ids of the most
// recent accepted events. Both are guarded by one mutex so a duplicate check
// and the append that follows it are a single step.
type eventBuffer struct {
	mu     sync.Mutex
	events []Event
	start  int
	count  int

	seen   map[string]struct{}
	window []string
	wStart int
	wCount int
}

func newEventBuffer(capacity int) *eventBuffer {
	return &eventBuffer{
		events: make([]Event, capacity),
		seen:   make(map[string]struct{}, capacity),
		window: make([]string, capacity),
	}
}

// admit stamps and classifies a verified event under the lock, so buffer order
// matches ReceivedAt. A fresh event is offered to deliver before it is
// recorded; if deliver refuses it, nothing is recorded, its id stays out of the
// window and admit returns false. Duplicates are recorded and never delivered.
func (b *eventBuffer) admit(ev Event, deliver func(Event) bool) (Event, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.ReceivedAt = time.Now().UTC()
	if _, dup := b.seen[ev.EventID]; dup {
		ev.Status = StatusDuplicate
		b.push(ev)
		return ev, true
	}

	ev.Status = StatusReceived
	if !deliver(ev) {
		return ev, false
	}
	b.remember(ev.EventID)
	b.push(ev)
	return ev, true
}

func (b *eventBuffer) reject(ev Event) Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ev.ReceivedAt = time.Now().UTC()
	ev.Status = StatusRejected
	b.push(ev)
	return ev
}

func (b *eventBuffer) push(ev Event) {
	capacity := len(b.events)
	if b.count < capacity {
		b.events[(b.start+b.count)%capacity] = ev
		b.count++
		return
	}
	b.events[b.start] = ev
	b.start = (b.start + 1) % capacity
}

func (b *eventBuffer) remember(id string) {
	capacity := len(b.window)
	if b.wCount == capacity {
		delete(b.seen, b.window[b.wStart])
		b.window[b.wStart] = id
		b.wStart = (b.wStart + 1) % capacity
	} else {
		b.window[(b.wStart+b.wCount)%capacity] = id
		b.wCount++
	}
	b.seen[id] = struct{}{}
}

// snapshot returns the buffered events, oldest first.
func (b *eventBuffer) snapshot() []Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]Event, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.events[(b.start+i)%len(b.events)]
	}
	return out
}

func (b *eventBuffer) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}
