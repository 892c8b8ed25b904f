package tasks

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/shared"
	"golang.org/x/time/rate"
)

const (
	DefaultInterval       = 5 * time.Second
	DefaultWorkers        = 4
	DefaultRateLimit      = 10.0
	DefaultRequestTimeout = 30 * time.Second
)

// Poller fetches the current status of a task.
type Poller interface {
	TaskStatus(ctx context.Context, task models.Task) (*models.StatusReport, error)
}

// Options configures a [Tracker]. Zero values select the defaults.
type Options struct {
	Interval       time.Duration
	Workers        int
	RateLimit      float64 // status requests per second
	RequestTimeout time.Duration
	// MaxTransientFailures marks a task failed after this many consecutive transient poll
	// failures. Zero retries forever.
	MaxTransientFailures int
	Logger               *log.Logger
	Now                  func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.RateLimit <= 0 {
		o.RateLimit = DefaultRateLimit
	}
	if o.RequestTimeout <= 0 {
		o.RequestTimeout = DefaultRequestTimeout
	}
	if o.Logger == nil {
		o.Logger = shared.NewLogger(nil)
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Tracker owns the set of tracked tasks and the poll loop that advances them.
type Tracker struct {
	poller  Poller
	store   Store
	opts    Options
	logger  *log.Logger
	limiter *rate.Limiter

	// base is cancelled by Close and bounds every status request.
	base       context.Context
	cancelBase context.CancelFunc
	batches    sync.WaitGroup

	mu       sync.Mutex
	tasks    []models.Task
	failures map[string]int
	inflight map[string]bool
	subs     map[chan Event]struct{}
	closed   bool

	loopCancel context.CancelFunc
	loopDone   chan struct{}
}

// New builds a tracker, loading the tracked set from store once. A nil store keeps tasks in
// memory only. Polling starts immediately if any loaded task is active.
func New(ctx context.Context, poller Poller, store Store, opts Options) *Tracker {
	opts = opts.withDefaults()
	if store == nil {
		store = &MemoryStore{}
	}

	base, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		poller:     poller,
		store:      store,
		opts:       opts,
		logger:     opts.Logger.With("component", "tracker"),
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		base:       base,
		cancelBase: cancel,
		failures:   make(map[string]int),
		inflight:   make(map[string]bool),
		subs:       make(map[chan Event]struct{}),
	}

	t.tasks = t.load(ctx)

	t.mu.Lock()
	t.reconcileLocked()
	t.mu.Unlock()
	return t
}

// load reads the stored set, dropping entries without an id and duplicates after the first.
func (t *Tracker) load(ctx context.Context) []models.Task {
	stored, err := t.store.Load(ctx)
	if err != nil {
		serr, ok := err.(*StorageError)
		if !ok {
			serr = &StorageError{Err: err}
		}
		t.logger.Error("discarding unreadable task state", "error", serr)
		return []models.Task{}
	}

	seen := make(map[string]bool, len(stored))
	tasks := make([]models.Task, 0, len(stored))
	for _, task := range stored {
		if task.ID == "" || seen[task.ID] {
			continue
		}
		if task.Status == "" {
			task.Status = models.TaskPending
		}
		seen[task.ID] = true
		tasks = append(tasks, task)
	}
	if len(tasks) > 0 {
		t.logger.Info("restored tracked tasks", "count", len(tasks))
	}
	return tasks
}

func (t *Tracker) indexLocked(id string) int {
	return slices.IndexFunc(t.tasks, func(task models.Task) bool { return task.ID == id })
}

// Add registers task. It returns false and changes nothing when the id is already tracked.
//
// A zero AddedAt is stamped with the current time and an empty status defaults to pending.
func (t *Tracker) Add(task models.Task) bool {
	task.ID = strings.TrimSpace(task.ID)
	if task.ID == "" {
		return false
	}
	if task.Status == "" {
		task.Status = models.TaskPending
	}
	if task.AddedAt.IsZero() {
		task.AddedAt = t.opts.Now().UTC()
	}

	t.mu.Lock()
	if t.indexLocked(task.ID) >= 0 {
		t.mu.Unlock()
		return false
	}
	t.tasks = append(t.tasks, task)
	t.persistLocked()
	t.emitLocked(Event{Kind: TaskAdded, Task: task})
	done := t.reconcileLocked()
	t.mu.Unlock()

	wait(done)
	t.logger.Debug("task added", "task_id", task.ID, "kind", task.Kind, "status", task.Status)
	return true
}

// Update merges u into the task with id. It returns false when the id is not tracked.
func (t *Tracker) Update(id string, u models.TaskUpdate) bool {
	t.mu.Lock()
	_, ok, done := t.updateLocked(id, u)
	t.mu.Unlock()

	wait(done)
	return ok
}

func (t *Tracker) updateLocked(id string, u models.TaskUpdate) (models.Task, bool, chan struct{}) {
	i := t.indexLocked(id)
	if i < 0 {
		return models.Task{}, false, nil
	}

	prev := t.tasks[i]
	next := prev.Apply(u)
	t.tasks[i] = next
	if next.Status.Terminal() {
		delete(t.failures, id)
	}

	t.persistLocked()
	t.emitLocked(Event{Kind: TaskUpdated, Task: next, Previous: prev.Status})
	return next, true, t.reconcileLocked()
}

// Remove stops tracking the task with id. It returns false when the id is not tracked.
func (t *Tracker) Remove(id string) bool {
	t.mu.Lock()
	i := t.indexLocked(id)
	if i < 0 {
		t.mu.Unlock()
		return false
	}
	removed := t.tasks[i]
	t.tasks = slices.Delete(t.tasks, i, i+1)
	delete(t.failures, id)

	t.persistLocked()
	t.emitLocked(Event{Kind: TaskRemoved, Task: removed})
	done := t.reconcileLocked()
	t.mu.Unlock()

	wait(done)
	t.logger.Debug("task removed", "task_id", id)
	return true
}

// List returns a copy of the tracked set in insertion order.
func (t *Tracker) List() []models.Task {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.tasks)
}

// Get returns the task with id.
func (t *Tracker) Get(id string) (models.Task, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if i := t.indexLocked(id); i >= 0 {
		return t.tasks[i], true
	}
	return models.Task{}, false
}

// ActiveCount returns how many tasks are pending or processing.
func (t *Tracker) ActiveCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.activeCountLocked()
}

func (t *Tracker) activeCountLocked() int {
	n := 0
	for _, task := range t.tasks {
		if task.Status.Active() {
			n++
		}
	}
	return n
}

// Polling reports whether the poll loop is running.
func (t *Tracker) Polling() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.loopCancel != nil
}

// Subscribe returns a channel receiving every change and a function that unsubscribes and
// closes it. Events are dropped when the channel buffer is full.
func (t *Tracker) Subscribe(buffer int) (<-chan Event, func()) {
	ch := make(chan Event, buffer)

	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	t.subs[ch] = struct{}{}
	t.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			t.mu.Lock()
			defer t.mu.Unlock()
			if _, ok := t.subs[ch]; ok {
				delete(t.subs, ch)
				close(ch)
			}
		})
	}
}

func (t *Tracker) emitLocked(ev Event) {
	for ch := range t.subs {
		send(ch, ev)
	}
}

// persistLocked writes the whole set. Failures are logged; the in-memory set stays authoritative.
func (t *Tracker) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), t.opts.RequestTimeout)
	defer cancel()
	if err := t.store.Save(ctx, slices.Clone(t.tasks)); err != nil {
		t.logger.Error("failed to persist tracked tasks", "error", err)
	}
}

// Close stops the poll loop, cancels in-flight status requests and waits for them to return.
// Subscriber channels are closed. The tracked set remains in the store.
func (t *Tracker) Close() error {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return nil
	}
	t.closed = true
	done := t.stopLocked()
	t.mu.Unlock()

	t.cancelBase()
	wait(done)
	t.batches.Wait()

	t.mu.Lock()
	for ch := range t.subs {
		delete(t.subs, ch)
		close(ch)
	}
	t.mu.Unlock()
	return nil
}

func wait(done chan struct{}) {
	if done != nil {
		<-done
	}
}
