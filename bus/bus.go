// Package bus implements the per-run ordered event log with multi-subscriber
// fan-out. A late joiner receives a snapshot reconstructing the run's current
// state (latest plan, latest status per task, pending input requests,
// terminal event) followed by a live tail, so every observer sees the same
// relative event order without replaying the full history.
package bus

import (
	"sync"

	"github.com/hupe1980/missionmesh/core"
)

// DefaultSubscriberBuffer is the per-subscriber queue capacity. When a slow
// subscriber's queue is full the oldest queued event is dropped so the
// publisher never blocks.
const DefaultSubscriberBuffer = 256

// Subscription is one observer's live cursor into a run's event stream.
// Events arrive on C in sequence order. C is closed when the run reaches a
// terminal event or the subscription is closed.
type Subscription struct {
	bus  *Bus
	ch   chan core.Event
	once sync.Once
}

// C returns the live event channel.
func (s *Subscription) C() <-chan core.Event { return s.ch }

// Close detaches the subscriber. Safe to call more than once; the run itself
// is unaffected.
func (s *Subscription) Close() {
	s.bus.unsubscribe(s)
}

// Bus is the sole writer of one run's ordered event log.
//
// The log and sequence counter are guarded by mu; the subscriber set by
// subMu. Keeping them separate means subscriber churn never blocks
// publication ordering, while Subscribe takes both so the snapshot and the
// live-tail start point are consistent.
type Bus struct {
	mu  sync.Mutex
	seq uint64
	log []core.Event

	subMu  sync.Mutex
	subs   map[*Subscription]struct{}
	buffer int
}

// New creates an empty Bus with the default subscriber buffer.
func New() *Bus {
	return NewWithBuffer(DefaultSubscriberBuffer)
}

// NewWithBuffer creates a Bus with an explicit per-subscriber queue capacity.
func NewWithBuffer(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultSubscriberBuffer
	}
	return &Bus{subs: make(map[*Subscription]struct{}), buffer: buffer}
}

// Publish appends the event to the log with the next sequence number and
// fans it out to all current subscribers. A terminal event closes every
// subscription after delivery; later events are ignored.
func (b *Bus) Publish(ev core.Event) core.Event {
	b.mu.Lock()
	if b.closedLocked() {
		b.mu.Unlock()
		return ev
	}
	b.seq++
	ev.Seq = b.seq
	b.log = append(b.log, ev)

	// subMu is taken before mu is released, in the same order as Subscribe,
	// so a joiner can never snapshot this event and then also receive it
	// from the fan-out below.
	b.subMu.Lock()
	b.mu.Unlock()

	for sub := range b.subs {
		sub.push(ev)
	}
	if ev.Terminal() {
		for sub := range b.subs {
			delete(b.subs, sub)
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	b.subMu.Unlock()

	return ev
}

func (b *Bus) closedLocked() bool {
	n := len(b.log)
	return n > 0 && b.log[n-1].Terminal()
}

// push enqueues without ever blocking the publisher: when the subscriber's
// queue is full the oldest queued event is discarded first.
func (s *Subscription) push(ev core.Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Subscribe attaches a new observer. The returned snapshot reconstructs the
// run's current state; the subscription's channel then carries every event
// published after the snapshot point. For a finished run the snapshot ends
// with the terminal event and the channel is already closed.
func (b *Bus) Subscribe() ([]core.Event, *Subscription) {
	sub := &Subscription{bus: b, ch: make(chan core.Event, b.buffer)}

	// Both locks are held so no event can land between snapshot computation
	// and subscriber registration.
	b.mu.Lock()
	snapshot := b.snapshotLocked()
	terminal := b.closedLocked()
	b.subMu.Lock()
	if !terminal {
		b.subs[sub] = struct{}{}
	}
	b.subMu.Unlock()
	b.mu.Unlock()

	if terminal {
		sub.once.Do(func() { close(sub.ch) })
	}
	return snapshot, sub
}

// History returns a copy of the full event log, mainly for persistence and
// inspection.
func (b *Bus) History() []core.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]core.Event(nil), b.log...)
}

// snapshotLocked derives the coherent late-joiner view from the log: the
// most recent plan, the latest status of every task in first-seen order, any
// input request still awaiting submission, and the terminal event if the run
// has finished. Events keep their original sequence numbers, so two
// observers of the same finished run receive identical sequences.
func (b *Bus) snapshotLocked() []core.Event {
	var plan *core.Event
	latestStatus := make(map[string]core.Event)
	var taskOrder []string
	pendingInput := make(map[string]core.Event)
	var terminal *core.Event

	for i := range b.log {
		ev := b.log[i]
		switch ev.Type {
		case core.EventPlan:
			plan = &b.log[i]
		case core.EventStatus:
			if _, seen := latestStatus[ev.TaskID]; !seen {
				taskOrder = append(taskOrder, ev.TaskID)
			}
			latestStatus[ev.TaskID] = ev
			if ev.Status != core.TaskWaitingInput {
				delete(pendingInput, ev.TaskID)
			}
		case core.EventInputRequest:
			pendingInput[ev.TaskID] = ev
		case core.EventComplete, core.EventError:
			terminal = &b.log[i]
		}
	}

	var out []core.Event
	if plan != nil {
		out = append(out, *plan)
	}
	for _, id := range taskOrder {
		out = append(out, latestStatus[id])
		if req, ok := pendingInput[id]; ok {
			out = append(out, req)
		}
	}
	if terminal != nil {
		out = append(out, *terminal)
	}
	return out
}

// unsubscribe removes and closes the subscription under subMu, so a close
// can never race a publisher's in-flight send.
func (b *Bus) unsubscribe(sub *Subscription) {
	b.subMu.Lock()
	delete(b.subs, sub)
	sub.once.Do(func() { close(sub.ch) })
	b.subMu.Unlock()
}
