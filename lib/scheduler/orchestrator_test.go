// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/clock"
	"github.com/quartermaster-backup/quartermaster/lib/config"
	"github.com/quartermaster-backup/quartermaster/lib/history"
	"github.com/quartermaster-backup/quartermaster/lib/notify"
	"github.com/quartermaster-backup/quartermaster/lib/testutil"
)

// calls records Execute invocations.
type calls struct {
	mu    sync.Mutex
	kinds []string
}

func (c *calls) add(kind string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kinds = append(c.kinds, kind)
}

func (c *calls) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.kinds)
}

type notifications struct {
	mu     sync.Mutex
	events []notify.Event
}

func (n *notifications) Notify(_ context.Context, event notify.Event) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
}

func newOrchestrator(t *testing.T, jobs []Job, executor ExecutorFunc) (*Orchestrator, *clock.FakeClock, *State) {
	t.Helper()
	state, err := LoadState("")
	if err != nil {
		t.Fatal(err)
	}
	fake := clock.Fake(start)
	return New(Options{
		Jobs:        func() ([]Job, error) { return jobs, nil },
		State:       state,
		Executor:    executor,
		Parallelism: 2,
		Clock:       fake,
	}), fake, state
}

func TestRunDue(t *testing.T) {
	seen := &calls{}
	jobs := []Job{
		mustJob(t, "nightly", config.JobProjects, "0 2 * * *"),
		mustJob(t, "hourly", config.JobDatabases, "0 * * * *"),
	}
	orchestrator, fake, state := newOrchestrator(t, jobs, func(_ context.Context, kind, _ string) (Outcome, error) {
		seen.add(kind)
		return Outcome{Succeeded: 1, Message: "ok"}, nil
	})
	ctx := context.Background()

	tasks, err := orchestrator.RunDue(ctx)
	if err != nil {
		t.Fatalf("RunDue: %v", err)
	}
	if len(tasks) != 2 || seen.count() != 2 {
		t.Fatalf("ran %d tasks with %d calls, want 2", len(tasks), seen.count())
	}
	for _, task := range tasks {
		if task.Status != TaskCompleted || task.ID == "" || task.Message != "ok" {
			t.Errorf("task = %+v", task)
		}
		if !state.LastRun(task.Job).Equal(start) {
			t.Errorf("last run of %s not recorded", task.Job)
		}
	}

	if tasks, _ := orchestrator.RunDue(ctx); len(tasks) != 0 {
		t.Errorf("second RunDue ran %d tasks", len(tasks))
	}
	fake.Advance(time.Hour)
	tasks, err = orchestrator.RunDue(ctx)
	if err != nil || len(tasks) != 1 || tasks[0].Job != "hourly" {
		t.Errorf("RunDue after an hour = %+v, %v", tasks, err)
	}
}

func TestRunDueFailureWaitsForNextSlot(t *testing.T) {
	jobs := []Job{mustJob(t, "hourly", config.JobDatabases, "0 * * * *")}
	seen := &calls{}
	orchestrator, fake, state := newOrchestrator(t, jobs, func(_ context.Context, kind, _ string) (Outcome, error) {
		seen.add(kind)
		return Outcome{Failed: 2}, errors.New("dump failed")
	})
	sink := &notifications{}
	orchestrator.options.Notifier = sink
	ctx := context.Background()

	tasks, err := orchestrator.RunDue(ctx)
	if err == nil || len(tasks) != 1 || tasks[0].Status != TaskFailed || tasks[0].Error != "dump failed" {
		t.Fatalf("RunDue = %+v, %v", tasks, err)
	}
	if !state.LastRun("hourly").IsZero() {
		t.Error("failed run recorded as success")
	}
	if len(sink.events) != 1 || sink.events[0].Kind != notify.Failure {
		t.Errorf("notifications = %+v", sink.events)
	}

	if tasks, _ := orchestrator.RunDue(ctx); len(tasks) != 0 {
		t.Errorf("failed job retried immediately")
	}
	fake.Advance(time.Hour)
	if tasks, _ := orchestrator.RunDue(ctx); len(tasks) != 1 {
		t.Errorf("failed job not retried at its next slot")
	}
	if seen.count() != 2 {
		t.Errorf("executor called %d times, want 2", seen.count())
	}
}

func TestClassify(t *testing.T) {
	failure := errors.New("boom")
	tests := []struct {
		name    string
		outcome Outcome
		err     error
		want    TaskStatus
	}{
		{"all succeeded", Outcome{Succeeded: 3}, nil, TaskCompleted},
		{"some failed", Outcome{Succeeded: 1, Failed: 2}, failure, TaskCompleted},
		{"all failed", Outcome{Failed: 2}, failure, TaskFailed},
		{"error without items", Outcome{}, failure, TaskFailed},
		{"nothing to do", Outcome{Skipped: 2}, nil, TaskSkipped},
		{"empty", Outcome{}, nil, TaskCompleted},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := classify(test.outcome, test.err); got != test.want {
				t.Errorf("classify = %s, want %s", got, test.want)
			}
		})
	}
}

func TestSubmit(t *testing.T) {
	release := make(chan struct{})
	orchestrator, _, state := newOrchestrator(t, nil, func(ctx context.Context, kind, target string) (Outcome, error) {
		if kind != config.JobProjects || target != "site" {
			return Outcome{}, errors.New("unexpected task")
		}
		<-release
		return Outcome{Succeeded: 1}, nil
	})
	store, err := history.Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	defer store.Close()
	orchestrator.options.History = store

	updates := make(chan Task, 8)
	orchestrator.OnUpdate(func(task Task) { updates <- task })
	ctx := context.Background()

	if _, err := orchestrator.Submit(ctx, "laundry", ""); err == nil {
		t.Error("Submit accepted an unknown kind")
	}
	id, err := orchestrator.Submit(ctx, config.JobProjects, "site")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	pending := testutil.RequireReceive(t, updates, 5*time.Second, "pending update")
	running := testutil.RequireReceive(t, updates, 5*time.Second, "running update")
	if pending.Status != TaskPending || running.Status != TaskRunning || running.ID != id {
		t.Errorf("updates = %s, %s", pending.Status, running.Status)
	}
	if active := orchestrator.Running(); len(active) != 1 || active[0].ID != id {
		t.Errorf("Running = %+v", active)
	}

	close(release)
	done := testutil.RequireReceive(t, updates, 5*time.Second, "completed update")
	orchestrator.Wait()
	if done.Status != TaskCompleted {
		t.Errorf("final status = %s", done.Status)
	}
	task, ok := orchestrator.Task(id)
	if !ok || task.Status != TaskCompleted || task.Target != "site" {
		t.Errorf("Task(%s) = %+v, %v", id, task, ok)
	}
	if !state.KindLastRun(config.JobProjects).Equal(start) {
		t.Error("ad-hoc success did not advance the kind's last run")
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != id || entries[0].Status != string(TaskCompleted) {
		t.Errorf("history = %+v", entries)
	}
}

func TestCleanupTasks(t *testing.T) {
	orchestrator, fake, _ := newOrchestrator(t, nil, func(context.Context, string, string) (Outcome, error) {
		return Outcome{Succeeded: 1}, nil
	})
	ctx := context.Background()
	if _, err := orchestrator.Submit(ctx, config.JobVerify, ""); err != nil {
		t.Fatal(err)
	}
	orchestrator.Wait()

	if dropped := orchestrator.CleanupTasks(time.Hour); dropped != 0 {
		t.Errorf("dropped %d fresh tasks", dropped)
	}
	fake.Advance(2 * time.Hour)
	if dropped := orchestrator.CleanupTasks(time.Hour); dropped != 1 {
		t.Errorf("dropped %d tasks, want 1", dropped)
	}
	if len(orchestrator.Tasks()) != 0 {
		t.Error("task still tracked after cleanup")
	}
}

func TestRun(t *testing.T) {
	ran := make(chan string, 4)
	jobs := []Job{mustJob(t, "hourly", config.JobDatabases, "0 * * * *")}
	orchestrator, fake, _ := newOrchestrator(t, jobs, func(_ context.Context, kind, _ string) (Outcome, error) {
		ran <- kind
		return Outcome{Succeeded: 1}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan error, 1)
	go func() { stopped <- orchestrator.Run(ctx) }()

	testutil.RequireReceive(t, ran, 5*time.Second, "first run of a never-run job")
	fake.WaitForTimers(1)
	fake.Advance(time.Hour)
	testutil.RequireReceive(t, ran, 5*time.Second, "run at the next hour")
	fake.WaitForTimers(1)

	cancel()
	if err := testutil.RequireReceive(t, stopped, 5*time.Second, "Run returning"); err != nil {
		t.Errorf("Run = %v", err)
	}
}
