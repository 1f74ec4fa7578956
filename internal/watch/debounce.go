// Package watch implements the Watcher Debouncer (spec.md §4.8): it
// accepts a stream of file-change events and emits deduplicated batches
// to feed the Scanner for rescan, coalescing bursts of edits into one
// pass instead of re-indexing on every keystroke.
package watch

import (
	"time"
)

// EventKind is the kind of filesystem change observed.
type EventKind string

const (
	Created  EventKind = "Created"
	Modified EventKind = "Modified"
	Deleted  EventKind = "Deleted"
	Renamed  EventKind = "Renamed"
)

// Event is one observed filesystem change. For Renamed, Path holds the
// destination and From holds the source.
type Event struct {
	Kind EventKind
	Path string
	From string // set only for Renamed
}

// Config controls the debounce window and overflow threshold.
type Config struct {
	DebounceWindow time.Duration
	BatchThreshold int
}

// Debouncer coalesces a stream of Events into batches: the window
// resets on every event unless accumulated events reach BatchThreshold,
// in which case the batch flushes immediately (spec.md §4.8).
type Debouncer struct {
	cfg     Config
	in      chan Event
	out     chan []Event
	done    chan struct{}
	newTimer func(d time.Duration) *time.Timer
}

// New starts a Debouncer. Callers send to In() and receive coalesced
// batches from Out(); Close stops the internal goroutine.
func New(cfg Config) *Debouncer {
	if cfg.DebounceWindow <= 0 {
		cfg.DebounceWindow = 500 * time.Millisecond
	}
	if cfg.BatchThreshold <= 0 {
		cfg.BatchThreshold = 1000
	}
	d := &Debouncer{
		cfg:      cfg,
		in:       make(chan Event, 256),
		out:      make(chan []Event),
		done:     make(chan struct{}),
		newTimer: time.NewTimer,
	}
	go d.run()
	return d
}

// In is the channel callers send observed filesystem events to.
func (d *Debouncer) In() chan<- Event { return d.in }

// Out is the channel callers receive coalesced, deduplicated batches
// from.
func (d *Debouncer) Out() <-chan []Event { return d.out }

// Close stops accepting events and shuts down the internal goroutine.
// Any partially accumulated batch is flushed first.
func (d *Debouncer) Close() {
	close(d.done)
}

func (d *Debouncer) run() {
	pending := newBatch()
	var timer *time.Timer
	var timerC <-chan time.Time

	flush := func() {
		if pending.empty() {
			return
		}
		batch := pending.events()
		pending = newBatch()
		if timer != nil {
			timer.Stop()
			timer = nil
			timerC = nil
		}
		d.out <- batch
	}

	for {
		select {
		case <-d.done:
			flush()
			return
		case ev, ok := <-d.in:
			if !ok {
				flush()
				return
			}
			pending.add(ev)
			if pending.len() >= d.cfg.BatchThreshold {
				flush()
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = d.newTimer(d.cfg.DebounceWindow)
			timerC = timer.C
		case <-timerC:
			flush()
		}
	}
}

// batch deduplicates by path, keeping only the most recent event per
// path, and expands Renamed into Deleted(from) + Created(to) as the
// event is added (spec.md §4.8) so downstream consumers
// never need to special-case renames.
type batch struct {
	order []string
	byKey map[string]Event
}

func newBatch() *batch {
	return &batch{byKey: make(map[string]Event)}
}

func (b *batch) add(ev Event) {
	if ev.Kind == Renamed {
		b.upsert(ev.From, Event{Kind: Deleted, Path: ev.From})
		b.upsert(ev.Path, Event{Kind: Created, Path: ev.Path})
		return
	}
	b.upsert(ev.Path, ev)
}

func (b *batch) upsert(key string, ev Event) {
	if _, exists := b.byKey[key]; !exists {
		b.order = append(b.order, key)
	}
	b.byKey[key] = ev
}

func (b *batch) len() int { return len(b.byKey) }

func (b *batch) empty() bool { return len(b.byKey) == 0 }

func (b *batch) events() []Event {
	out := make([]Event, 0, len(b.order))
	for _, key := range b.order {
		out = append(out, b.byKey[key])
	}
	return out
}
