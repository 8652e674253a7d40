package runs

import (
	"errors"
	"sync"
	"time"

	"video-pipeline-go/internal/pipeline"
)

type Status string

const (
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// ErrFull is returned by Start when every slot holds a run still in flight.
var ErrFull = errors.New("runs: registry is full of in-flight runs")

// Record is the externally visible state of one triggered run.
type Record struct {
	ID         string           `json:"id"`
	Status     Status           `json:"status"`
	Input      pipeline.Input   `json:"input"`
	Result     *pipeline.Result `json:"result,omitempty"`
	CreatedAt  time.Time        `json:"createdAt"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// Registry keeps the most recent runs in memory. When full, the oldest
// finished run is evicted to make room; in-flight runs are never evicted.
type Registry struct {
	mu    sync.RWMutex
	limit int
	order []string
	byID  map[string]*Record
	now   func() time.Time
}

func NewRegistry(capacity int) *Registry {
	if capacity <= 0 {
		capacity = 256
	}
	return &Registry{limit: capacity, byID: make(map[string]*Record, capacity), now: time.Now}
}

func (r *Registry) Start(id string, in pipeline.Input) (Record, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byID[id]; exists {
		return Record{}, errors.New("runs: duplicate run id " + id)
	}
	if len(r.order) >= r.limit && !r.evictLocked() {
		return Record{}, ErrFull
	}
	rec := &Record{ID: id, Status: StatusRunning, Input: in, CreatedAt: r.now()}
	r.byID[id] = rec
	r.order = append(r.order, id)
	return *rec, nil
}

// Finish stores the final result of id. Unknown ids are ignored.
func (r *Registry) Finish(id string, res pipeline.Result) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.byID[id]
	if !ok {
		return
	}
	at := r.now()
	rec.Result = &res
	rec.FinishedAt = &at
	rec.Status = StatusFailed
	if res.Success {
		rec.Status = StatusSucceeded
	}
}

func (r *Registry) Get(id string) (Record, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.byID[id]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// Len is the number of tracked runs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// InFlight counts runs that have not finished.
func (r *Registry) InFlight() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, rec := range r.byID {
		if rec.Status == StatusRunning {
			n++
		}
	}
	return n
}

func (r *Registry) evictLocked() bool {
	for i, id := range r.order {
		if r.byID[id].Status == StatusRunning {
			continue
		}
		delete(r.byID, id)
		r.order = append(r.order[:i], r.order[i+1:]...)
		return true
	}
	return false
}
