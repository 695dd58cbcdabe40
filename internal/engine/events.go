package engine

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/roach88/brandquest/internal/brand"
	"github.com/roach88/brandquest/internal/ir"
	"github.com/roach88/brandquest/internal/mission"
	"github.com/roach88/brandquest/internal/phase"
	"github.com/roach88/brandquest/internal/syncer"
)

// EventKind distinguishes between event kinds.
type EventKind int

const (
	// KindPhaseChanged reports a run moving to a new phase or stage.
	KindPhaseChanged EventKind = iota + 1
	// KindSyncOutcome reports the result of one EnsureSynced call.
	KindSyncOutcome
	// KindMetricsUpdated reports the record's gamification values after a write.
	KindMetricsUpdated
)

func (k EventKind) String() string {
	switch k {
	case KindPhaseChanged:
		return "phase_changed"
	case KindSyncOutcome:
		return "sync_outcome"
	case KindMetricsUpdated:
		return "metrics_updated"
	}
	return "unknown"
}

// Metrics are the gamification values shown to the user.
type Metrics struct {
	XP            int
	XPToNextLevel int
	Clarity       int
	Percentile    int
	Unlocked      int
	Level         string
	Completed     []mission.ID
}

// MetricsOf reads the metrics held by rec. A nil record yields the values of
// a fresh record.
func MetricsOf(rec *brand.Record) Metrics {
	if rec == nil {
		return Metrics{Unlocked: int(mission.Discovery)}
	}
	return Metrics{
		XP:            rec.XP,
		XPToNextLevel: rec.XPToNextLevel,
		Clarity:       rec.ClarityScore,
		Percentile:    rec.ComparativePercentile,
		Unlocked:      max(rec.UnlockedMission, int(mission.Discovery)),
		Level:         rec.LevelLabel,
		Completed:     slices.Clone(rec.CompletedMissions),
	}
}

// Event is one observable engine change.
type Event struct {
	Seq      int64
	Kind     EventKind
	RecordID string
	Mission  mission.ID

	// PhaseChanged
	Phase phase.Phase
	Stage string

	// SyncOutcome
	Status      syncer.Status
	Skipped     bool
	Fingerprint ir.Fingerprint
	Err         string

	// MetricsUpdated
	Metrics Metrics
}

// String renders the event as a single trace line. Fingerprints are left
// out so traces stay readable.
func (e Event) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "seq=%d %s record=%s", e.Seq, e.Kind, e.RecordID)
	switch e.Kind {
	case KindPhaseChanged:
		fmt.Fprintf(&b, " mission=%s phase=%s", e.Mission.Key(), e.Phase)
		if e.Stage != "" {
			fmt.Fprintf(&b, " stage=%s", e.Stage)
		}
	case KindSyncOutcome:
		fmt.Fprintf(&b, " mission=%s status=%s", e.Mission.Key(), e.Status)
		if e.Skipped {
			b.WriteString(" skipped=true")
		}
		if e.Err != "" {
			fmt.Fprintf(&b, " error=%q", e.Err)
		}
	case KindMetricsUpdated:
		m := e.Metrics
		fmt.Fprintf(&b, " xp=%d next=%d clarity=%d percentile=%d unlocked=%d level=%s",
			m.XP, m.XPToNextLevel, m.Clarity, m.Percentile, m.Unlocked, m.Level)
	}
	return b.String()
}

// EventStream is a thread-safe FIFO of engine events.
//
// The stream is unbounded so publishing never blocks a run. Consumers read
// with Next, which waits on a buffered signal channel and honours ctx.
type EventStream struct {
	mu     sync.Mutex
	events []Event
	closed bool
	signal chan struct{} // buffered, size 1
}

// NewEventStream creates an empty stream.
func NewEventStream() *EventStream {
	return &EventStream{
		events: make([]Event, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Publish appends e. Returns false if the stream is closed.
func (s *EventStream) Publish(e Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return false
	}
	s.events = append(s.events, e)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case s.signal <- struct{}{}:
	default:
	}
	return true
}

// TryNext removes and returns the oldest event without blocking.
func (s *EventStream) TryNext() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.events) == 0 {
		return Event{}, false
	}
	e := s.events[0]
	s.events[0] = Event{}
	if len(s.events) == 1 {
		s.events = s.events[:0]
	} else {
		s.events = s.events[1:]
	}
	return e, true
}

// Next blocks until an event is available, the stream is closed and empty
// (ok false), or ctx ends.
func (s *EventStream) Next(ctx context.Context) (Event, bool, error) {
	for {
		if e, ok := s.TryNext(); ok {
			return e, true, nil
		}
		s.mu.Lock()
		done := s.closed && len(s.events) == 0
		s.mu.Unlock()
		if done {
			return Event{}, false, nil
		}

		select {
		case <-ctx.Done():
			return Event{}, false, ctx.Err()
		case <-s.signal:
		}
	}
}

// Drain removes and returns every queued event.
func (s *EventStream) Drain() []Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := slices.Clone(s.events)
	clear(s.events)
	s.events = s.events[:0]
	return out
}

// Len returns the number of queued events.
func (s *EventStream) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.events)
}

// Close stops further publishing and wakes blocked readers.
func (s *EventStream) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	s.closed = true
	close(s.signal)
}
