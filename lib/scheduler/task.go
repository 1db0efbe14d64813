// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/history"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskSkipped   TaskStatus = "skipped"
)

// Finished reports whether the status is terminal.
func (s TaskStatus) Finished() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskSkipped
}

// Task is one run of a job kind, scheduled or ad hoc.
type Task struct {
	ID string `json:"id"`

	// Job is empty for ad-hoc tasks.
	Job string `json:"job,omitempty"`

	Kind string `json:"kind"`

	// Target narrows the task to one item. Empty means every enabled
	// item of the kind.
	Target string `json:"target,omitempty"`

	Status  TaskStatus `json:"status"`
	Message string     `json:"message,omitempty"`
	Error   string     `json:"error,omitempty"`

	Created   time.Time `json:"created"`
	Started   time.Time `json:"started,omitzero"`
	Completed time.Time `json:"completed,omitzero"`
}

// Entry converts the task to its history record.
func (t Task) Entry() history.Entry {
	return history.Entry{
		ID:        t.ID,
		Job:       t.Job,
		Kind:      t.Kind,
		Target:    t.Target,
		Status:    string(t.Status),
		Message:   t.Message,
		Error:     t.Error,
		Created:   t.Created,
		Started:   t.Started,
		Completed: t.Completed,
	}
}
