package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/desertthunder/vqa/internal/models"
	"github.com/desertthunder/vqa/internal/services"
)

// reconcileLocked starts or stops the poll loop so that it runs iff a task is active.
// It returns the done channel of a loop it stopped, which the caller waits on after unlocking.
func (t *Tracker) reconcileLocked() chan struct{} {
	active := t.activeCountLocked()
	switch {
	case active > 0 && t.loopCancel == nil && !t.closed:
		t.startLocked()
	case active == 0 && t.loopCancel != nil:
		return t.stopLocked()
	}
	return nil
}

func (t *Tracker) startLocked() {
	ctx, cancel := context.WithCancel(t.base)
	done := make(chan struct{})
	t.loopCancel, t.loopDone = cancel, done

	go t.loop(ctx, done)
	t.emitLocked(Event{Kind: PollingStarted})
	t.logger.Debug("poll loop started", "interval", t.opts.Interval)
}

func (t *Tracker) stopLocked() chan struct{} {
	if t.loopCancel == nil {
		return nil
	}
	t.loopCancel()
	done := t.loopDone
	t.loopCancel, t.loopDone = nil, nil

	t.emitLocked(Event{Kind: PollingStopped})
	t.logger.Debug("poll loop stopped")
	return done
}

// loop fires a tick every interval until ctx is cancelled. Ticks do not wait for the previous
// tick's requests.
func (t *Tracker) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(t.opts.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.dispatch()
		}
	}
}

// claimLocked snapshots the active tasks that have no request in flight and marks them in flight.
func (t *Tracker) claimLocked() []models.Task {
	var batch []models.Task
	for _, task := range t.tasks {
		if task.Status.Active() && !t.inflight[task.ID] {
			t.inflight[task.ID] = true
			batch = append(batch, task)
		}
	}
	return batch
}

// dispatch polls a snapshot of the active tasks in the background.
func (t *Tracker) dispatch() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	batch := t.claimLocked()
	if len(batch) > 0 {
		t.batches.Add(1)
	}
	t.mu.Unlock()

	if len(batch) == 0 {
		return
	}
	go func() {
		defer t.batches.Done()
		t.pollBatch(t.base, batch)
	}()
}

// PollOnce polls every active task now and returns when all results are applied.
func (t *Tracker) PollOnce(ctx context.Context) {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	batch := t.claimLocked()
	t.batches.Add(1)
	t.mu.Unlock()
	defer t.batches.Done()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := context.AfterFunc(t.base, cancel)
	defer stop()

	t.pollBatch(ctx, batch)
}

type pollResult struct {
	task   models.Task
	report *models.StatusReport
	err    error
	// canceled is set when the batch context ended, which says nothing about the task.
	canceled bool
}

// pollBatch requests each task's status through a bounded worker pool.
func (t *Tracker) pollBatch(ctx context.Context, batch []models.Task) {
	if len(batch) == 0 {
		return
	}

	jobs := make(chan models.Task, len(batch))
	results := make(chan pollResult, len(batch))

	workers := min(t.opts.Workers, len(batch))
	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go t.pollWorker(ctx, &wg, jobs, results)
	}

	for _, task := range batch {
		jobs <- task
	}
	close(jobs)

	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		t.apply(res)
	}
}

func (t *Tracker) pollWorker(ctx context.Context, wg *sync.WaitGroup, jobs <-chan models.Task, results chan<- pollResult) {
	defer wg.Done()

	for task := range jobs {
		if err := t.limiter.Wait(ctx); err != nil {
			results <- pollResult{task: task, err: err, canceled: true}
			continue
		}

		reqCtx, cancel := context.WithTimeout(ctx, t.opts.RequestTimeout)
		report, err := t.poller.TaskStatus(reqCtx, task)
		cancel()
		results <- pollResult{task: task, report: report, err: err, canceled: err != nil && ctx.Err() != nil}
	}
}

// apply folds one poll result into the tracked set.
func (t *Tracker) apply(res pollResult) {
	id := res.task.ID

	t.mu.Lock()
	delete(t.inflight, id)

	i := t.indexLocked(id)
	if res.canceled || i < 0 || t.tasks[i].Status.Terminal() {
		t.mu.Unlock()
		return
	}
	current := t.tasks[i]

	var update *models.TaskUpdate
	switch {
	case res.err == nil && res.report != nil:
		delete(t.failures, id)
		if res.report.Status != "" && res.report.Status != current.Status {
			u := res.report.Update()
			update = &u
		}

	case res.err != nil && services.IsNotFound(res.err):
		t.logger.Warn("task no longer exists", "error", &TaskNotFoundError{TaskID: id, Err: res.err})
		failed, msg := models.TaskFailed, TaskNotFoundMessage
		update = &models.TaskUpdate{Status: &failed, ErrorMessage: &msg}

	case res.err != nil:
		t.failures[id]++
		perr := &PollTransientError{TaskID: id, Attempts: t.failures[id], Err: res.err}
		t.logger.Warn("status poll failed, retrying next tick", "error", perr)

		if limit := t.opts.MaxTransientFailures; limit > 0 && t.failures[id] >= limit {
			failed := models.TaskFailed
			msg := fmt.Sprintf("Status polling failed %d times: %v", t.failures[id], res.err)
			update = &models.TaskUpdate{Status: &failed, ErrorMessage: &msg}
		}
	}

	var done chan struct{}
	if update != nil {
		var next models.Task
		next, _, done = t.updateLocked(id, *update)
		t.logger.Info("task status changed", "task_id", id, "from", current.Status, "to", next.Status)
	}
	t.mu.Unlock()

	wait(done)
}
