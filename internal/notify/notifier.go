// Package notify delivers identifier-granular change events to watchers of
// previously returned result sets.
package notify

import (
	"log/slog"
	"sync"
	"time"

	"transitstore.org/internal/clock"
	"transitstore.org/internal/logging"
	"transitstore.org/internal/metrics"
	"transitstore.org/internal/planner"
	"transitstore.org/internal/resource"
)

// Event says that data at or below URI changed. No diff is carried.
type Event struct {
	URI resource.URI
	At  time.Time
}

// Subscription receives events overlapping its identifier. Pending events
// coalesce: a subscriber that falls behind sees only the latest one.
type Subscription struct {
	URI         resource.URI
	Descendants bool

	ch       chan Event
	notifier *Notifier
	once     sync.Once
}

// C is the event channel. It is closed by Close.
func (s *Subscription) C() <-chan Event {
	return s.ch
}

// Close unsubscribes. It is safe to call more than once.
func (s *Subscription) Close() {
	s.once.Do(func() { s.notifier.remove(s) })
}

func (s *Subscription) deliver(ev Event) {
	select {
	case s.ch <- ev:
		return
	default:
	}
	// Replace the stale pending event with the newer one.
	select {
	case <-s.ch:
	default:
	}
	select {
	case s.ch <- ev:
	default:
	}
}

// Notifier fans published changes out to overlapping subscriptions.
type Notifier struct {
	clock   clock.Clock
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu   sync.Mutex
	subs map[*Subscription]struct{}
}

func New(c clock.Clock, logger *slog.Logger, m *metrics.Metrics) *Notifier {
	return &Notifier{
		clock:   clock.OrReal(c),
		logger:  logging.Component(logger, "notifier"),
		metrics: m,
		subs:    make(map[*Subscription]struct{}),
	}
}

// Subscribe watches u, and everything below it when descendants is set.
func (n *Notifier) Subscribe(u resource.URI, descendants bool) *Subscription {
	s := &Subscription{
		URI:         u,
		Descendants: descendants,
		ch:          make(chan Event, 1),
		notifier:    n,
	}
	n.mu.Lock()
	n.subs[s] = struct{}{}
	n.mu.Unlock()
	return s
}

// Watch subscribes to the identifier a result set was produced for,
// including its descendants so that item-level writes reach listings.
func (n *Notifier) Watch(rs *planner.ResultSet) *Subscription {
	return n.Subscribe(rs.Origin, true)
}

// Publish notifies every subscription overlapping u without blocking.
func (n *Notifier) Publish(u resource.URI) {
	if n == nil {
		return
	}
	ev := Event{URI: u, At: n.clock.Now()}

	n.mu.Lock()
	var targets []*Subscription
	for s := range n.subs {
		if u.Overlaps(s.URI, s.Descendants) {
			targets = append(targets, s)
		}
	}
	for _, s := range targets {
		s.deliver(ev)
	}
	n.mu.Unlock()

	n.metrics.ObserveNotification(u.Authority)
	n.logger.Debug("change published",
		slog.String("uri", u.String()),
		slog.Int("subscribers", len(targets)))
}

// Len reports the number of live subscriptions.
func (n *Notifier) Len() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.subs)
}

func (n *Notifier) remove(s *Subscription) {
	n.mu.Lock()
	delete(n.subs, s)
	close(s.ch)
	n.mu.Unlock()
}
