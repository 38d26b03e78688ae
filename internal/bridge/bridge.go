// Package bridge hands the latest engine outputs from the sampling loop to
// concurrent scrape handlers.
//
// Every publish builds a new immutable Snapshot and swaps it in with a
// single atomic store. Readers load the pointer and never see a snapshot
// that mixes two publishes.
package bridge

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/bsec-exporter/internal/engine"
)

// Entry is the latest value of one subscribed output. Available is false
// until the engine has produced the output at least once.
type Entry struct {
	Kind      engine.OutputKind
	Value     float64
	Accuracy  engine.Accuracy
	Timestamp time.Time
	Available bool
}

// Snapshot is a complete, read-only view of all subscribed outputs.
type Snapshot struct {
	// Seq counts publishes; zero means nothing has been published yet.
	Seq       uint64
	Published time.Time

	entries map[engine.OutputKind]Entry
	order   []engine.OutputKind
}

// Get returns the entry for kind. ok is false if kind is not subscribed.
func (s *Snapshot) Get(kind engine.OutputKind) (Entry, bool) {
	e, ok := s.entries[kind]
	return e, ok
}

// Entries returns every subscribed entry in output order.
func (s *Snapshot) Entries() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		out = append(out, s.entries[k])
	}
	return out
}

// Available returns only the entries that carry a value.
func (s *Snapshot) Available() []Entry {
	out := make([]Entry, 0, len(s.order))
	for _, k := range s.order {
		if e := s.entries[k]; e.Available {
			out = append(out, e)
		}
	}
	return out
}

// Len is the number of subscribed outputs.
func (s *Snapshot) Len() int {
	return len(s.order)
}

// Bridge holds the current snapshot. Publish is meant for a single writer;
// Read may be called from any number of goroutines.
type Bridge struct {
	mu      sync.Mutex
	current atomic.Pointer[Snapshot]
	now     func() time.Time
}

// New creates a bridge where every subscribed output is not yet available.
func New(subscribed []engine.OutputKind) *Bridge {
	order := append([]engine.OutputKind(nil), subscribed...)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	entries := make(map[engine.OutputKind]Entry, len(order))
	uniq := order[:0]
	for _, k := range order {
		if _, dup := entries[k]; dup {
			continue
		}
		entries[k] = Entry{Kind: k}
		uniq = append(uniq, k)
	}

	b := &Bridge{now: time.Now}
	b.current.Store(&Snapshot{entries: entries, order: uniq})

	return b
}

// Read returns the current snapshot. The result must not be modified.
func (b *Bridge) Read() *Snapshot {
	return b.current.Load()
}

// Publish merges outputs over the current snapshot and makes the result
// visible atomically. Outputs for kinds that are not subscribed are
// ignored. An empty publish leaves the current snapshot in place.
func (b *Bridge) Publish(outputs []engine.Output) *Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()

	cur := b.current.Load()
	if len(outputs) == 0 {
		return cur
	}

	entries := make(map[engine.OutputKind]Entry, len(cur.entries))
	for k, e := range cur.entries {
		entries[k] = e
	}

	for _, o := range outputs {
		if _, ok := entries[o.Kind]; !ok {
			continue
		}
		entries[o.Kind] = Entry{
			Kind:      o.Kind,
			Value:     o.Value,
			Accuracy:  o.Accuracy,
			Timestamp: o.Timestamp,
			Available: true,
		}
	}

	next := &Snapshot{
		Seq:       cur.Seq + 1,
		Published: b.now(),
		entries:   entries,
		order:     cur.order,
	}
	b.current.Store(next)

	return next
}
