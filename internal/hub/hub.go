// Package hub fans committed DomainEvents out to unit-scoped subscribers.
//
// Each scope owns a strictly increasing sequence counter and a bounded ring
// of recent events (capped by count and by age, whichever bites first). A
// reconnecting subscriber supplies its last-seen sequence: if the gap is
// still inside the ring it is replayed in order before live delivery; if it
// has rolled out, the subscription starts live from the head with
// ResyncRequired set, and the client refreshes its state over the query API.
//
// The hub is a notification layer, not a log. Delivery is at-most-once plus
// bounded replay; the transactional store is always the source of truth.
package hub

import (
	"sync"
	"time"

	"cratekeeper/internal/events"
	"cratekeeper/internal/hub/metrics"
)

// SequencedEvent is a DomainEvent stamped with its scope-local sequence.
type SequencedEvent struct {
	Event    events.DomainEvent
	Scope    events.Scope
	Sequence int64
}

// Options bounds the per-scope replay ring and the per-subscriber queue.
type Options struct {
	ReplayDepth  int
	ReplayWindow time.Duration
	QueueDepth   int
}

func (o *Options) withDefaults() {
	if o.ReplayDepth <= 0 {
		o.ReplayDepth = 200
	}
	if o.ReplayWindow <= 0 {
		o.ReplayWindow = time.Minute
	}
	if o.QueueDepth <= 0 {
		// A fresh subscriber queue must be able to hold a full ring replay,
		// otherwise a reconnect over a deep gap could only be served
		// partially.
		o.QueueDepth = o.ReplayDepth
		if o.QueueDepth < 64 {
			o.QueueDepth = 64
		}
	}
}

// Hub owns all scope channels. Publishes to different scopes proceed in
// parallel; within one scope they are serialized to keep sequence order.
type Hub struct {
	mu      sync.Mutex
	scopes  map[events.Scope]*scopeChannel
	opts    Options
	metrics *metrics.Metrics
	clock   func() time.Time
}

func New(opts Options, m *metrics.Metrics) *Hub {
	opts.withDefaults()
	if m == nil {
		m = metrics.Nop()
	}
	return &Hub{
		scopes:  make(map[events.Scope]*scopeChannel),
		opts:    opts,
		metrics: m,
		clock:   time.Now,
	}
}

func (h *Hub) scope(scope events.Scope) *scopeChannel {
	h.mu.Lock()
	defer h.mu.Unlock()
	sc, ok := h.scopes[scope]
	if !ok {
		sc = &scopeChannel{
			scope:       scope,
			subscribers: make(map[*Subscription]struct{}),
		}
		h.scopes[scope] = sc
	}
	return sc
}

// Publish appends the event to each of its scopes and pushes it to live
// subscribers in sequence order. It never blocks on a slow subscriber: a
// full queue closes that subscription instead.
func (h *Hub) Publish(event events.DomainEvent) {
	h.metrics.EventsPublished.WithLabelValues(event.Entity).Inc()
	for _, scope := range event.Scopes {
		h.scope(scope).publish(event, h)
	}
}

// Subscribe registers for a scope. fromSequence > 0 requests replay of
// everything after it; 0 means live-only from the current head.
func (h *Hub) Subscribe(scope events.Scope, fromSequence int64) *Subscription {
	return h.scope(scope).subscribe(fromSequence, h)
}

// HeadSequence reports the scope's latest assigned sequence number.
func (h *Hub) HeadSequence(scope events.Scope) int64 {
	sc := h.scope(scope)
	sc.mu.Lock()
	defer sc.mu.Unlock()
	return sc.nextSequence
}

type scopeChannel struct {
	mu           sync.Mutex
	scope        events.Scope
	nextSequence int64
	ring         []SequencedEvent
	subscribers  map[*Subscription]struct{}
}

func (sc *scopeChannel) publish(event events.DomainEvent, h *Hub) {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sc.nextSequence++
	sequenced := SequencedEvent{Event: event, Scope: sc.scope, Sequence: sc.nextSequence}
	sc.ring = append(sc.ring, sequenced)
	sc.prune(h)

	for sub := range sc.subscribers {
		select {
		case sub.ch <- sequenced:
		default:
			// Slow consumer: unregister and close rather than stall the
			// publisher or the other subscribers.
			delete(sc.subscribers, sub)
			sub.close(true)
			h.metrics.SlowConsumerDrops.Inc()
			h.metrics.Subscribers.Dec()
		}
	}
}

// prune enforces both ring bounds. Caller holds sc.mu.
func (sc *scopeChannel) prune(h *Hub) {
	if over := len(sc.ring) - h.opts.ReplayDepth; over > 0 {
		sc.ring = append(sc.ring[:0:0], sc.ring[over:]...)
	}
	cutoff := h.clock().Add(-h.opts.ReplayWindow)
	firstFresh := 0
	for firstFresh < len(sc.ring) && sc.ring[firstFresh].Event.Timestamp.Before(cutoff) {
		firstFresh++
	}
	if firstFresh > 0 {
		sc.ring = append(sc.ring[:0:0], sc.ring[firstFresh:]...)
	}
}

func (sc *scopeChannel) subscribe(fromSequence int64, h *Hub) *Subscription {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	sub := &Subscription{
		scope: sc.scope,
		ch:    make(chan SequencedEvent, h.opts.QueueDepth),
		done:  make(chan struct{}),
		sc:    sc,
		hub:   h,
	}
	sub.head = sc.nextSequence

	if fromSequence > 0 && fromSequence < sc.nextSequence {
		// Age out stale ring entries before deciding whether the gap is
		// replayable; otherwise a reconnect after a quiet period could be
		// served events older than the replay window.
		sc.prune(h)
		missed := sc.missedSince(fromSequence)
		if missed == nil || len(missed) > cap(sub.ch) {
			// The gap rolled out of the ring or does not fit the queue. A
			// partial replay would be worse than none, so the client gets a
			// full-refresh signal and stays subscribed live from the head.
			sub.resyncRequired = true
			h.metrics.ResyncsSignalled.Inc()
		} else {
			for _, event := range missed {
				sub.ch <- event
				h.metrics.ReplayedEvents.Inc()
			}
		}
	}

	sc.subscribers[sub] = struct{}{}
	h.metrics.Subscribers.Inc()
	return sub
}

// missedSince returns the contiguous run of ring events after fromSequence,
// or nil when the ring no longer reaches back that far. Caller holds sc.mu.
func (sc *scopeChannel) missedSince(fromSequence int64) []SequencedEvent {
	if len(sc.ring) == 0 {
		return nil
	}
	oldest := sc.ring[0].Sequence
	if oldest > fromSequence+1 {
		return nil
	}
	start := fromSequence + 1 - oldest
	out := make([]SequencedEvent, len(sc.ring)-int(start))
	copy(out, sc.ring[start:])
	return out
}

func (sc *scopeChannel) unsubscribe(sub *Subscription, h *Hub) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	if _, ok := sc.subscribers[sub]; !ok {
		return
	}
	delete(sc.subscribers, sub)
	sub.close(false)
	h.metrics.Subscribers.Dec()
}

// Subscription is one registered consumer. Events arrive on C in sequence
// order; C is closed when the subscription ends from either side.
type Subscription struct {
	scope events.Scope
	ch    chan SequencedEvent
	done  chan struct{}
	sc    *scopeChannel
	hub   *Hub

	head           int64
	resyncRequired bool

	closeOnce sync.Once
	slow      bool
}

// C delivers replayed and live events in order.
func (s *Subscription) C() <-chan SequencedEvent { return s.ch }

// Scope returns the scope this subscription listens on.
func (s *Subscription) Scope() events.Scope { return s.scope }

// HeadSequence is the scope's head at subscribe time, for the
// connection_established frame.
func (s *Subscription) HeadSequence() int64 { return s.head }

// ResyncRequired reports that the requested replay gap was not satisfiable.
func (s *Subscription) ResyncRequired() bool { return s.resyncRequired }

// SlowConsumer reports that the hub force-closed this subscription because
// its queue overflowed.
func (s *Subscription) SlowConsumer() bool {
	select {
	case <-s.done:
		return s.slow
	default:
		return false
	}
}

// Close unregisters the subscription. Safe to call more than once and
// concurrently with publishes.
func (s *Subscription) Close() {
	s.sc.unsubscribe(s, s.hub)
}

func (s *Subscription) close(slow bool) {
	s.closeOnce.Do(func() {
		s.slow = slow
		close(s.done)
		close(s.ch)
	})
}
