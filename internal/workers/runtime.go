// Package workers implements the task queue the long-running work executes
// on: named tasks, delayed submission, chains, bounded in-body retries, and
// per-task result state. Two queues are distinguished so transcodes cannot
// starve general work.
package workers

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/archivarr/archivarr/internal/locks"
)

// Queue identifies a worker pool
type Queue string

const (
	// QueueGeneral runs indexing, downloads, and maintenance
	QueueGeneral Queue = "general"
	// QueueTranscode runs CPU-bound transcode tasks
	QueueTranscode Queue = "transcode"
)

// State is the lifecycle state of one task invocation
type State string

const (
	StatePending State = "pending"
	StateStarted State = "started"
	StateRetry   State = "retry"
	StateSuccess State = "success"
	StateFailure State = "failure"
	StateIgnored State = "ignored"
)

// Result is the recorded outcome of one task invocation
type Result struct {
	ID        string
	Task      string
	State     State
	Meta      string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kwargs carries task arguments
type Kwargs map[string]any

// TaskFunc is a task body. Returning a retryError (via Invocation.Retry)
// schedules another attempt; any other error marks the invocation Failure.
type TaskFunc func(inv *Invocation) error

// Invocation is the per-attempt context handed to a task body
type Invocation struct {
	TaskID  string
	Task    string
	Attempt int
	Kwargs  Kwargs
}

// Retry asks the runtime to re-run this invocation after countdown.
// Attempts are bounded by the task's max-retries registration option.
func (inv *Invocation) Retry(countdown time.Duration) error {
	return &retryError{countdown: countdown}
}

type retryError struct {
	countdown time.Duration
}

func (e *retryError) Error() string {
	return fmt.Sprintf("retry requested after %s", e.countdown)
}

// ContentionPolicy decides what a task does when its named-resource lock is
// held by another invocation.
type ContentionPolicy int

const (
	// ContentionRetry reschedules the task after the guard's countdown
	ContentionRetry ContentionPolicy = iota
	// ContentionIgnore marks the invocation Ignored and drops it
	ContentionIgnore
)

// guard is a named-resource lock applied at task entry
type guard struct {
	keyFunc   func(kwargs Kwargs) string
	ttl       time.Duration
	policy    ContentionPolicy
	countdown time.Duration
}

type taskDef struct {
	name       string
	fn         TaskFunc
	queue      Queue
	maxRetries int
	retryDelay time.Duration
	guard      *guard
}

// Option customises a task registration
type Option func(*taskDef)

// WithQueue routes the task to a specific queue
func WithQueue(q Queue) Option {
	return func(d *taskDef) { d.queue = q }
}

// WithMaxRetries bounds in-body retries (default 3)
func WithMaxRetries(n int) Option {
	return func(d *taskDef) { d.maxRetries = n }
}

// WithRetryDelay sets the default delay for in-body retries
func WithRetryDelay(delay time.Duration) Option {
	return func(d *taskDef) { d.retryDelay = delay }
}

// WithNamedLock guards the task entry with a named-resource lock. keyFunc
// derives the resource name from the kwargs; policy decides the contention
// behaviour.
func WithNamedLock(keyFunc func(Kwargs) string, ttl time.Duration, policy ContentionPolicy, countdown time.Duration) Option {
	return func(d *taskDef) {
		d.guard = &guard{keyFunc: keyFunc, ttl: ttl, policy: policy, countdown: countdown}
	}
}

type job struct {
	taskID  string
	task    string
	attempt int
	kwargs  Kwargs
	// Chain links submitted on success, in order
	chain []ChainLink
}

// ChainLink is one dependent task of a chain
type ChainLink struct {
	Task      string
	Kwargs    Kwargs
	Countdown time.Duration
}

// Runtime is the task runtime. Construct with NewRuntime, Register every
// task, then Start.
type Runtime struct {
	logger *logrus.Logger
	locks  *locks.Registry

	mu      sync.RWMutex
	tasks   map[string]*taskDef
	results map[string]*Result
	order   []string

	queues  map[Queue]chan job
	wg      sync.WaitGroup
	quit    chan struct{}
	started bool

	timerMu sync.Mutex
	timers  map[*time.Timer]struct{}
}

// NewRuntime creates a stopped runtime
func NewRuntime(registry *locks.Registry, logger *logrus.Logger) *Runtime {
	return &Runtime{
		logger:  logger,
		locks:   registry,
		tasks:   make(map[string]*taskDef),
		results: make(map[string]*Result),
		queues: map[Queue]chan job{
			QueueGeneral:   make(chan job, 1024),
			QueueTranscode: make(chan job, 256),
		},
		quit:   make(chan struct{}),
		timers: make(map[*time.Timer]struct{}),
	}
}

// Register adds a named task. Names follow the dotted convention, e.g.
// "downloads.download_provider_video".
func (r *Runtime) Register(name string, fn TaskFunc, opts ...Option) {
	def := &taskDef{
		name:       name,
		fn:         fn,
		queue:      QueueGeneral,
		maxRetries: 3,
		retryDelay: time.Minute,
	}
	for _, opt := range opts {
		opt(def)
	}
	r.mu.Lock()
	r.tasks[name] = def
	r.mu.Unlock()
}

// Start launches the worker pools
func (r *Runtime) Start(generalWorkers, transcodeWorkers int) {
	r.mu.Lock()
	r.started = true
	r.mu.Unlock()

	for i := 0; i < generalWorkers; i++ {
		r.wg.Add(1)
		go r.worker(QueueGeneral)
	}
	for i := 0; i < transcodeWorkers; i++ {
		r.wg.Add(1)
		go r.worker(QueueTranscode)
	}
}

// Stop refuses new tasks and waits for in-flight ones. Cancellation
// propagates only at task boundaries.
func (r *Runtime) Stop() {
	close(r.quit)
	r.timerMu.Lock()
	for t := range r.timers {
		t.Stop()
	}
	r.timerMu.Unlock()
	for _, ch := range r.queues {
		close(ch)
	}
	r.wg.Wait()
}

// Submit enqueues a task immediately. Returns the task id.
func (r *Runtime) Submit(task string, kwargs Kwargs) (string, error) {
	return r.submit(task, kwargs, nil)
}

// SubmitChain enqueues a task followed by dependent links that run only on
// success, each after its own countdown.
func (r *Runtime) SubmitChain(task string, kwargs Kwargs, chain ...ChainLink) (string, error) {
	return r.submit(task, kwargs, chain)
}

func (r *Runtime) submit(task string, kwargs Kwargs, chain []ChainLink) (string, error) {
	r.mu.RLock()
	def, ok := r.tasks[task]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown task %q", task)
	}

	taskID := uuid.NewString()
	r.setResult(&Result{ID: taskID, Task: task, State: StatePending, CreatedAt: time.Now()})

	select {
	case <-r.quit:
		return "", errors.New("runtime is stopping")
	case r.queues[def.queue] <- job{taskID: taskID, task: task, kwargs: kwargs, chain: chain}:
	}
	return taskID, nil
}

// SubmitDelayed enqueues a task after countdown
func (r *Runtime) SubmitDelayed(task string, kwargs Kwargs, countdown time.Duration) (string, error) {
	return r.submitDelayed(task, kwargs, nil, countdown, 0)
}

func (r *Runtime) submitDelayed(task string, kwargs Kwargs, chain []ChainLink, countdown time.Duration, attempt int) (string, error) {
	r.mu.RLock()
	def, ok := r.tasks[task]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("unknown task %q", task)
	}

	taskID := uuid.NewString()
	r.setResult(&Result{ID: taskID, Task: task, State: StatePending, CreatedAt: time.Now()})

	var timer *time.Timer
	timer = time.AfterFunc(countdown, func() {
		r.timerMu.Lock()
		delete(r.timers, timer)
		r.timerMu.Unlock()
		select {
		case <-r.quit:
		case r.queues[def.queue] <- job{taskID: taskID, task: task, attempt: attempt, kwargs: kwargs, chain: chain}:
		}
	})
	r.timerMu.Lock()
	r.timers[timer] = struct{}{}
	r.timerMu.Unlock()
	return taskID, nil
}

// SetState overrides a task result's state and meta
func (r *Runtime) SetState(taskID string, state State, meta string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if res, ok := r.results[taskID]; ok {
		res.State = state
		res.Meta = meta
		res.UpdatedAt = time.Now()
	}
}

// GetResult returns a copy of the task result, if known
func (r *Runtime) GetResult(taskID string) (Result, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if res, ok := r.results[taskID]; ok {
		return *res, true
	}
	return Result{}, false
}

// Results returns copies of results matching the filter, oldest first.
// A nil filter matches everything.
func (r *Runtime) Results(filter func(Result) bool) []Result {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Result
	for _, id := range r.order {
		res := r.results[id]
		if filter == nil || filter(*res) {
			out = append(out, *res)
		}
	}
	return out
}

// LastSuccess returns the most recent successful completion instant of the
// named task, or the zero time when it has never succeeded.
func (r *Runtime) LastSuccess(task string) time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var last time.Time
	for _, res := range r.results {
		if res.Task == task && res.State == StateSuccess && res.UpdatedAt.After(last) {
			last = res.UpdatedAt
		}
	}
	return last
}

func (r *Runtime) setResult(res *Result) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, seen := r.results[res.ID]; !seen {
		r.order = append(r.order, res.ID)
	}
	r.results[res.ID] = res
}

func (r *Runtime) worker(q Queue) {
	defer r.wg.Done()
	for j := range r.queues[q] {
		r.run(j)
	}
}

func (r *Runtime) run(j job) {
	r.mu.RLock()
	def := r.tasks[j.task]
	r.mu.RUnlock()

	if def.guard != nil {
		key := def.guard.keyFunc(j.kwargs)
		if err := r.locks.Acquire(key, def.guard.ttl); err != nil {
			switch def.guard.policy {
			case ContentionRetry:
				r.SetState(j.taskID, StateRetry, fmt.Sprintf("resource %s contended", key))
				r.submitDelayed(j.task, j.kwargs, j.chain, def.guard.countdown, j.attempt)
			default:
				r.SetState(j.taskID, StateIgnored, fmt.Sprintf("resource %s contended", key))
			}
			return
		}
		defer r.locks.Release(key)
	}

	r.SetState(j.taskID, StateStarted, "")
	err := def.fn(&Invocation{TaskID: j.taskID, Task: j.task, Attempt: j.attempt, Kwargs: j.kwargs})

	var retry *retryError
	switch {
	case err == nil:
		r.SetState(j.taskID, StateSuccess, "")
		if len(j.chain) > 0 {
			link := j.chain[0]
			countdown := link.Countdown
			if countdown <= 0 {
				countdown = time.Second
			}
			if _, serr := r.submitDelayed(link.Task, link.Kwargs, j.chain[1:], countdown, 0); serr != nil {
				r.logger.WithError(serr).WithField("task", link.Task).Error("Failed to submit chain link")
			}
		}
	case errors.As(err, &retry):
		if j.attempt >= def.maxRetries {
			r.SetState(j.taskID, StateFailure, fmt.Sprintf("max retries (%d) exhausted", def.maxRetries))
			return
		}
		countdown := retry.countdown
		if countdown <= 0 {
			countdown = def.retryDelay
		}
		r.SetState(j.taskID, StateRetry, "")
		r.submitDelayed(j.task, j.kwargs, j.chain, countdown, j.attempt+1)
	default:
		r.SetState(j.taskID, StateFailure, err.Error())
		r.logger.WithError(err).WithFields(logrus.Fields{
			"task":    j.task,
			"task_id": j.taskID,
			"attempt": j.attempt,
		}).Error("Task failed")
	}
}
