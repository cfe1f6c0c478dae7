package refresh

import (
	"reflect"
	"sync"
)

type Outcome int

const (
	Applied Outcome = iota
	// Unchanged means the response equals what is shown; the view can skip re-rendering.
	Unchanged
	// Stale means a newer request already committed; the response is dropped.
	Stale
)

// Latest keeps the value of the most recent request that completed, so a slow
// response can never overwrite a newer one.
type Latest[T any] struct {
	mu        sync.Mutex
	issued    uint64
	committed uint64
	val       T
	has       bool
}

// Begin returns the sequence number for a new request.
func (l *Latest[T]) Begin() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.issued++
	return l.issued
}

func (l *Latest[T]) Commit(seq uint64, v T) Outcome {
	l.mu.Lock()
	defer l.mu.Unlock()
	if seq <= l.committed {
		return Stale
	}
	l.committed = seq
	if l.has && reflect.DeepEqual(l.val, v) {
		return Unchanged
	}
	l.val, l.has = v, true
	return Applied
}

func (l *Latest[T]) Value() (T, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.val, l.has
}

// Reset forgets the stored value but keeps sequencing, so in-flight responses
// issued before the reset are still dropped.
func (l *Latest[T]) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	var zero T
	l.val, l.has = zero, false
	l.committed = l.issued
}
