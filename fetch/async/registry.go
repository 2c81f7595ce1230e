package async

import (
	"sort"
	"strconv"
	"sync"
)

const (
	// SubscriberChannelBufferSize is the buffer size for subscriber channels
	SubscriberChannelBufferSize = 100
)

// Registry is the in-memory table of live jobs for one kind (fetch or
// authorize). Every accessor works on copies: callers never touch the
// stored record directly, so HTTP handlers and the runner goroutine cannot
// race each other through a shared pointer.
//
// Process handles live in a side table under the same lock. A handle may be
// cleared while its job record lingers (records outlive processes by the
// cleanup grace period), never the other way around.
type Registry struct {
	mu          sync.RWMutex
	jobs        map[string]*Job
	procs       map[string]*Handle
	nextID      int
	subscribers []chan *Job // Channels to notify of job updates
}

// NewRegistry creates an empty job registry with its own id sequence.
func NewRegistry() *Registry {
	return &Registry{
		jobs:        make(map[string]*Job),
		procs:       make(map[string]*Handle),
		subscribers: make([]chan *Job, 0),
	}
}

// Create allocates the next id, stores a queued job, and returns a copy.
func (r *Registry) Create(kind JobKind, profile string) *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	job := NewJob(strconv.Itoa(r.nextID), kind, profile)
	r.jobs[job.ID] = job

	r.notifySubscribers(job)
	return job.Clone()
}

// Get returns a copy of the job, or false when no record exists. Absent ids
// are an expected outcome, not an error: records are reclaimed shortly
// after reaching a terminal status.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	return job.Clone(), true
}

// List returns copies of every live job in creation order.
func (r *Registry) List() []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	jobs := make([]*Job, 0, len(r.jobs))
	for _, job := range r.jobs {
		jobs = append(jobs, job.Clone())
	}
	sort.Slice(jobs, func(i, j int) bool {
		a, _ := strconv.Atoi(jobs[i].ID)
		b, _ := strconv.Atoi(jobs[j].ID)
		return a < b
	})
	return jobs
}

// Update applies fn to the stored job under the lock. fn reports whether it
// changed anything; subscribers are notified only on change. Returns a copy
// of the (possibly updated) job, or false when the record is gone.
func (r *Registry) Update(id string, fn func(*Job) bool) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}

	if fn(job) {
		r.notifySubscribers(job)
	}
	return job.Clone(), true
}

// Finalize applies fn only while the job is still active (queued or
// running). The first finalizer wins: when a cancel request races natural
// completion, whichever reaches the lock first decides the terminal status
// and the loser's attempt reports false.
func (r *Registry) Finalize(id string, fn func(*Job)) (*Job, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[id]
	if !ok {
		return nil, false
	}
	if job.Status.Terminal() {
		return job.Clone(), false
	}

	fn(job)
	r.notifySubscribers(job)
	return job.Clone(), true
}

// Remove deletes a job record. Removing an absent id is a no-op, so the
// delayed cleanup goroutine and an explicit removal can both fire safely.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.jobs, id)
	delete(r.procs, id)
}

// SetProc records the process handle for a running job.
func (r *Registry) SetProc(id string, h *Handle) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procs[id] = h
}

// Proc returns the process handle for a job, if one is still tracked.
func (r *Registry) Proc(id string) (*Handle, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.procs[id]
	return h, ok
}

// ClearProc drops the process handle once the subprocess has been reaped.
// The job record itself stays until cleanup removes it.
func (r *Registry) ClearProc(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.procs, id)
}

// ActiveForProfile returns copies of queued/running jobs for the profile,
// used by profile deletion to cancel everything it is about to orphan.
func (r *Registry) ActiveForProfile(profile string) []*Job {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var active []*Job
	for _, job := range r.jobs {
		if job.Profile == profile && job.Status.Cancellable() {
			active = append(active, job.Clone())
		}
	}
	return active
}

// RunningCount returns how many jobs are currently executing.
func (r *Registry) RunningCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, job := range r.jobs {
		if job.Status == JobStatusRunning {
			count++
		}
	}
	return count
}

// ActiveCount returns how many jobs are queued or running.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count := 0
	for _, job := range r.jobs {
		if job.Status.Cancellable() {
			count++
		}
	}
	return count
}

// Len returns the number of live records, terminal ones included.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.jobs)
}

// Subscribe returns a channel that receives job updates.
// The caller is responsible for calling Unsubscribe when done.
// The returned channel is buffered to prevent blocking the notifier.
func (r *Registry) Subscribe() chan *Job {
	r.mu.Lock()
	defer r.mu.Unlock()

	ch := make(chan *Job, SubscriberChannelBufferSize) // Buffered to avoid blocking
	r.subscribers = append(r.subscribers, ch)
	return ch
}

// Unsubscribe removes a subscriber channel from the registry.
// The channel is NOT closed by this method - callers should close it themselves
// after unsubscribing if needed. This prevents double-close panics.
func (r *Registry) Unsubscribe(ch chan *Job) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, sub := range r.subscribers {
		if sub == ch {
			// Remove from slice without closing - caller manages channel lifecycle
			r.subscribers = append(r.subscribers[:i], r.subscribers[i+1:]...)
			return
		}
	}
}

// notifySubscribers sends a copy of the job to all subscribers.
// REQUIRES: r.mu must be held by caller (either Lock or RLock).
// Uses non-blocking send to avoid stalling if a subscriber is slow.
func (r *Registry) notifySubscribers(job *Job) {
	if len(r.subscribers) == 0 {
		return
	}
	snapshot := job.Clone()
	for _, ch := range r.subscribers {
		select {
		case ch <- snapshot:
			// Sent successfully
		default:
			// Channel full, skip (non-blocking)
		}
	}
}
