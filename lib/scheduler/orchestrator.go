// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/history"
	"github.com/quartermaster-backup/quartermaster/lib/metrics"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
)

// pollInterval is the longest Run sleeps between checks.
const pollInterval = time.Minute

// Options configures an Orchestrator. Executor and State are required.
type Options struct {
	// Jobs returns the current job list. It is called on every check,
	// so a reloading implementation picks up schedule edits.
	Jobs func() ([]Job, error)

	State    *State
	Executor Executor

	// History, Metrics, and Notifier may be nil.
	History  *history.Store
	Metrics  *metrics.Metrics
	Notifier notify.Notifier

	// Parallelism bounds concurrently running tasks. Zero means 4.
	Parallelism int

	Clock  clock.Clock
	Logger *slog.Logger
}

// Orchestrator runs scheduled and ad-hoc tasks.
type Orchestrator struct {
	options Options
	clock   clock.Clock
	logger  *slog.Logger
	slots   chan struct{}

	mu        sync.Mutex
	tasks     map[string]*Task
	attempted map[string]time.Time
	active    map[string]bool
	listeners []func(Task)

	inflight sync.WaitGroup
}

// New returns an orchestrator for options.
func New(options Options) *Orchestrator {
	if options.Clock == nil {
		options.Clock = clock.Real()
	}
	if options.Logger == nil {
		options.Logger = slog.New(slog.DiscardHandler)
	}
	if options.Parallelism <= 0 {
		options.Parallelism = config.Default().Backup.Parallelism
	}
	if options.Jobs == nil {
		options.Jobs = func() ([]Job, error) { return nil, nil }
	}
	return &Orchestrator{
		options:   options,
		clock:     options.Clock,
		logger:    options.Logger,
		slots:     make(chan struct{}, options.Parallelism),
		tasks:     make(map[string]*Task),
		attempted: make(map[string]time.Time),
		active:    make(map[string]bool),
	}
}

// OnUpdate registers a callback for every task transition. Callbacks
// run synchronously on the task's goroutine and must not block.
func (o *Orchestrator) OnUpdate(callback func(Task)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, callback)
}

// lastRun is the later of a job's last success and its last attempt
// in this process, so a failing job waits for its next slot instead of
// retrying in a loop.
func (o *Orchestrator) lastRun(job string) time.Time {
	last := o.options.State.LastRun(job)
	o.mu.Lock()
	defer o.mu.Unlock()
	if attempted := o.attempted[job]; attempted.After(last) {
		return attempted
	}
	return last
}

// Due returns the jobs that RunDue would start now.
func (o *Orchestrator) Due() ([]Job, error) {
	jobs, err := o.options.Jobs()
	if err != nil {
		return nil, err
	}
	found := due(jobs, o.lastRun, o.clock.Now())
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.DeleteFunc(found, func(job Job) bool { return o.active[job.Name] }), nil
}

// RunDue runs every due job concurrently and returns the finished
// tasks. The error joins the failures of individual tasks.
func (o *Orchestrator) RunDue(ctx context.Context) ([]Task, error) {
	jobs, err := o.Due()
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, nil
	}

	tasks := make([]*Task, len(jobs))
	o.mu.Lock()
	for i, job := range jobs {
		tasks[i] = o.newTaskLocked(job.Name, job.Kind, "")
		o.active[job.Name] = true
		o.attempted[job.Name] = o.clock.Now()
	}
	o.mu.Unlock()
	for _, task := range tasks {
		o.publish(ctx, *task)
	}

	o.inflight.Add(1)
	defer o.inflight.Done()

	var group errgroup.Group
	group.SetLimit(o.options.Parallelism)
	for _, task := range tasks {
		group.Go(func() error {
			defer func() {
				o.mu.Lock()
				delete(o.active, task.Job)
				o.mu.Unlock()
			}()
			return o.execute(ctx, task)
		})
	}
	err = group.Wait()

	finished := make([]Task, len(tasks))
	o.mu.Lock()
	for i, task := range tasks {
		finished[i] = *task
	}
	o.mu.Unlock()

	var errs []error
	for _, task := range finished {
		if task.Status == TaskFailed {
			errs = append(errs, fmt.Errorf("job %s: %s", task.Job, task.Error))
		}
	}
	if len(errs) == 0 {
		return finished, err
	}
	return finished, errors.Join(errs...)
}

// Submit starts an ad-hoc task in the background and returns its ID.
// target narrows backup kinds to one item, retention to "<kind>/<item>",
// and mirror to one target name.
func (o *Orchestrator) Submit(ctx context.Context, kind, target string) (string, error) {
	if !slices.Contains(config.JobKinds, kind) {
		return "", fmt.Errorf("unknown task kind %q", kind)
	}
	o.mu.Lock()
	task := o.newTaskLocked("", kind, target)
	snapshot := *task
	o.mu.Unlock()
	o.publish(ctx, snapshot)

	o.inflight.Add(1)
	go func() {
		defer o.inflight.Done()
		o.execute(ctx, task)
	}()
	return task.ID, nil
}

// Wait blocks until every submitted task and RunDue call has finished.
func (o *Orchestrator) Wait() {
	o.inflight.Wait()
}

func (o *Orchestrator) newTaskLocked(job, kind, target string) *Task {
	task := &Task{
		ID:      uuid.NewString(),
		Job:     job,
		Kind:    kind,
		Target:  target,
		Status:  TaskPending,
		Created: o.clock.Now(),
	}
	o.tasks[task.ID] = task
	return task
}

// execute runs one task through its lifecycle. The returned error is
// always nil so sibling tasks keep running.
func (o *Orchestrator) execute(ctx context.Context, task *Task) error {
	select {
	case o.slots <- struct{}{}:
	case <-ctx.Done():
		o.transition(ctx, task, func(t *Task) {
			t.Status = TaskFailed
			t.Error = ctx.Err().Error()
			t.Completed = o.clock.Now()
		})
		return nil
	}
	defer func() { <-o.slots }()

	o.transition(ctx, task, func(t *Task) {
		t.Status = TaskRunning
		t.Started = o.clock.Now()
	})
	o.options.Metrics.TaskStarted()
	logger := o.logger.With("task", task.ID, "kind", task.Kind, "job", task.Job, "target", task.Target)
	logger.Info("task started")

	outcome, err := o.options.Executor.Execute(ctx, task.Kind, task.Target)
	o.options.Metrics.TaskFinished()

	status := classify(outcome, err)
	completed := o.clock.Now()
	final := o.transition(ctx, task, func(t *Task) {
		t.Status = status
		t.Message = outcome.Message
		if err != nil {
			t.Error = err.Error()
		}
		t.Completed = completed
	})

	switch status {
	case TaskFailed:
		logger.Error("task failed", "error", err, "duration", completed.Sub(final.Started))
		if o.options.Notifier != nil {
			o.options.Notifier.Notify(ctx, notify.Event{
				Kind:     notify.Failure,
				ItemKind: task.Kind,
				Item:     cmp.Or(task.Target, task.Job, task.Kind),
				Error:    final.Error,
			})
		}
	default:
		if err != nil {
			logger.Warn("task completed with failures", "error", err, "message", outcome.Message)
		} else {
			logger.Info("task finished", "status", status, "message", outcome.Message, "duration", completed.Sub(final.Started))
		}
		if recordErr := o.options.State.Record(task.Job, task.Kind, completed); recordErr != nil {
			logger.Error("recording last run", "error", recordErr)
		}
		o.options.Metrics.Succeeded(task.Kind, completed)
	}
	return nil
}

// classify maps an outcome to a task status: a task succeeds when at
// least one item succeeded and fails when every attempted item failed.
func classify(outcome Outcome, err error) TaskStatus {
	switch {
	case outcome.Succeeded > 0:
		return TaskCompleted
	case err != nil || outcome.Failed > 0:
		return TaskFailed
	case outcome.Skipped > 0:
		return TaskSkipped
	}
	return TaskCompleted
}

// transition applies change under the lock and publishes the result.
func (o *Orchestrator) transition(ctx context.Context, task *Task, change func(*Task)) Task {
	o.mu.Lock()
	change(task)
	snapshot := *task
	o.mu.Unlock()
	o.publish(ctx, snapshot)
	return snapshot
}

func (o *Orchestrator) publish(ctx context.Context, task Task) {
	o.mu.Lock()
	listeners := slices.Clone(o.listeners)
	o.mu.Unlock()
	for _, listener := range listeners {
		listener(task)
	}
	if o.options.History != nil {
		// History must survive the cancellation that ends a task.
		if err := o.options.History.Record(context.WithoutCancel(ctx), task.Entry()); err != nil {
			o.logger.Warn("recording task history", "task", task.ID, "error", err)
		}
	}
}

// Task returns a copy of a task by ID.
func (o *Orchestrator) Task(id string) (Task, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	task, ok := o.tasks[id]
	if !ok {
		return Task{}, false
	}
	return *task, true
}

// Tasks returns copies of every tracked task, oldest first.
func (o *Orchestrator) Tasks() []Task {
	o.mu.Lock()
	defer o.mu.Unlock()
	tasks := make([]Task, 0, len(o.tasks))
	for _, task := range o.tasks {
		tasks = append(tasks, *task)
	}
	slices.SortFunc(tasks, func(a, b Task) int { return a.Created.Compare(b.Created) })
	return tasks
}

// Running returns the tasks that are pending or running.
func (o *Orchestrator) Running() []Task {
	return slices.DeleteFunc(o.Tasks(), func(task Task) bool { return task.Status.Finished() })
}

// CleanupTasks forgets finished tasks that completed more than maxAge
// ago and returns how many were dropped. History keeps them.
func (o *Orchestrator) CleanupTasks(maxAge time.Duration) int {
	cutoff := o.clock.Now().Add(-maxAge)
	o.mu.Lock()
	defer o.mu.Unlock()
	dropped := 0
	for id, task := range o.tasks {
		if task.Status.Finished() && task.Completed.Before(cutoff) {
			delete(o.tasks, id)
			dropped++
		}
	}
	return dropped
}

// Run is the daemon loop. It runs due jobs, then sleeps until the next
// job is due or pollInterval passes, whichever is sooner. It returns
// when ctx is cancelled, after in-flight tasks have finished.
func (o *Orchestrator) Run(ctx context.Context) error {
	defer o.Wait()
	o.logger.Info("scheduler started", "parallelism", o.options.Parallelism)
	for {
		if ctx.Err() != nil {
			o.logger.Info("scheduler stopping")
			return nil
		}
		if _, err := o.RunDue(ctx); err != nil {
			o.logger.Error("scheduled run", "error", err)
		}
		o.CleanupTasks(24 * time.Hour)

		select {
		case <-ctx.Done():
			o.logger.Info("scheduler stopping")
			return nil
		case <-o.clock.After(o.sleep()):
		}
	}
}

// sleep is how long Run waits before the next check.
func (o *Orchestrator) sleep() time.Duration {
	jobs, err := o.options.Jobs()
	if err != nil {
		o.logger.Warn("loading jobs", "error", err)
		return pollInterval
	}
	now := o.clock.Now()
	next, ok := nextDue(jobs, o.lastRun, now)
	if !ok {
		return pollInterval
	}
	return min(max(next.Sub(now), time.Second), pollInterval)
}
