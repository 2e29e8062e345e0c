// Package patchlog keeps a raw, in-memory record of the patch batches a store
// delivers. It records only; nothing is ever replayed.
package patchlog

import (
	"encoding/json"
	"sync"
	"time"

	stand "github.com/goliatone/go-stand"
	"github.com/google/uuid"
)

// Batch is the patch sequence of one update.
type Batch struct {
	Seq        uint64        `json:"seq"`
	ID         string        `json:"id"`
	Patches    []stand.Patch `json:"patches"`
	RecordedAt time.Time     `json:"recorded_at"`
}

// Paths returns the patch paths of the batch in write order.
func (b Batch) Paths() []string {
	paths := make([]string, len(b.Patches))
	for i, patch := range b.Patches {
		paths[i] = patch.Path
	}
	return paths
}

// ToJSON serialises the batch for logging or transport.
func (b Batch) ToJSON() ([]byte, error) {
	type alias Batch
	return json.Marshal(alias(b))
}

// BatchFromJSON deserialises a payload produced by ToJSON.
func BatchFromJSON(payload []byte) (Batch, error) {
	type alias Batch
	var batch alias
	if err := json.Unmarshal(payload, &batch); err != nil {
		return Batch{}, err
	}
	return Batch(batch), nil
}

// Option configures a Log.
type Option func(*Log)

// WithLimit keeps at most n batches, dropping the oldest first. Zero keeps
// every batch.
func WithLimit(n int) Option {
	return func(l *Log) {
		if n > 0 {
			l.limit = n
		}
	}
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(l *Log) {
		if now != nil {
			l.now = now
		}
	}
}

// Log is an append-only list of batches safe for concurrent use. Sequence
// numbers keep increasing across Reset.
type Log struct {
	mu      sync.RWMutex
	batches []Batch
	seq     uint64
	limit   int
	now     func() time.Time
}

// New constructs an empty log.
func New(opts ...Option) *Log {
	l := &Log{now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(l)
		}
	}
	return l
}

// Record appends patches as a new batch. Its signature matches
// stand.Listener, so a log can be subscribed directly.
func (l *Log) Record(_ map[string]any, patches []stand.Patch) {
	l.Append(patches)
}

// Append stores a copy of patches and returns the recorded batch.
func (l *Log) Append(patches []stand.Patch) Batch {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.seq++
	batch := Batch{
		Seq:        l.seq,
		ID:         uuid.NewString(),
		Patches:    append([]stand.Patch{}, patches...),
		RecordedAt: l.now(),
	}
	l.batches = append(l.batches, batch)
	if l.limit > 0 && len(l.batches) > l.limit {
		l.batches = append([]Batch(nil), l.batches[len(l.batches)-l.limit:]...)
	}
	return batch
}

// Attach subscribes the log to store.
func (l *Log) Attach(store *stand.Store) (detach func()) {
	return store.Subscribe(l.Record)
}

// Entries returns a copy of every retained batch, oldest first.
func (l *Log) Entries() []Batch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return append([]Batch(nil), l.batches...)
}

// Since returns the retained batches with a sequence number above seq.
func (l *Log) Since(seq uint64) []Batch {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []Batch
	for _, batch := range l.batches {
		if batch.Seq > seq {
			out = append(out, batch)
		}
	}
	return out
}

// Len returns the number of retained batches.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.batches)
}

// Reset drops every retained batch.
func (l *Log) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.batches = nil
}

// MarshalJSON encodes the retained batches as a JSON array.
func (l *Log) MarshalJSON() ([]byte, error) {
	entries := l.Entries()
	if entries == nil {
		entries = []Batch{}
	}
	return json.Marshal(entries)
}
