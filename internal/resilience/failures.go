package resilience

import (
	"sort"
	"sync"
	"time"
)

// Failure records one work item that could not be completed in a run, so it
// can be reported and retried by a later run.
type Failure struct {
	Item     string    `json:"item"`
	Stage    string    `json:"stage"`
	Error    string    `json:"error"`
	Kind     string    `json:"kind"`
	Attempts int       `json:"attempts"`
	At       time.Time `json:"at"`
}

// Retryable reports whether a later run may succeed.
func (f Failure) Retryable() bool {
	return f.Kind == "transient"
}

// FailureLog collects failures from concurrent workers.
type FailureLog struct {
	mu    sync.Mutex
	items []Failure
}

// Add records err against item. A nil err is ignored.
func (l *FailureLog) Add(item, stage string, attempts int, err error) {
	if err == nil {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items = append(l.items, Failure{
		Item:     item,
		Stage:    stage,
		Error:    err.Error(),
		Kind:     Classify(err),
		Attempts: attempts,
		At:       time.Now().UTC(),
	})
}

// Len returns the number of recorded failures.
func (l *FailureLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.items)
}

// Items returns the failures ordered by item then stage.
func (l *FailureLog) Items() []Failure {
	l.mu.Lock()
	out := make([]Failure, len(l.items))
	copy(out, l.items)
	l.mu.Unlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Item != out[j].Item {
			return out[i].Item < out[j].Item
		}
		return out[i].Stage < out[j].Stage
	})
	return out
}
