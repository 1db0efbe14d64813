// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/atomicfile"
)

// State records when each job and each job kind last ran successfully.
// It is safe for concurrent use.
type State struct {
	path string

	mu    sync.Mutex
	jobs  map[string]time.Time
	kinds map[string]time.Time
}

type stateFile struct {
	Jobs  map[string]time.Time `json:"jobs"`
	Kinds map[string]time.Time `json:"kinds"`
}

// LoadState reads the state file at path. A missing file yields an
// empty state that will be created on the first Record.
func LoadState(path string) (*State, error) {
	state := &State{path: path, jobs: make(map[string]time.Time), kinds: make(map[string]time.Time)}
	var file stateFile
	if err := atomicfile.ReadJSON(path, &file); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return state, nil
		}
		return nil, fmt.Errorf("loading scheduler state: %w", err)
	}
	for job, at := range file.Jobs {
		state.jobs[job] = at
	}
	for kind, at := range file.Kinds {
		state.kinds[kind] = at
	}
	return state, nil
}

// LastRun returns the last successful run of a job, or zero.
func (s *State) LastRun(job string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[job]
}

// KindLastRun returns the last successful run of any job of kind.
func (s *State) KindLastRun(kind string) time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kinds[kind]
}

// Record stores a successful run and writes the file. job may be empty
// for ad-hoc tasks, which only advance their kind.
func (s *State) Record(job, kind string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if job != "" {
		s.jobs[job] = at
	}
	if at.After(s.kinds[kind]) {
		s.kinds[kind] = at
	}
	if s.path == "" {
		return nil
	}
	if err := atomicfile.WriteJSON(s.path, stateFile{Jobs: s.jobs, Kinds: s.kinds}, 0600); err != nil {
		return fmt.Errorf("saving scheduler state: %w", err)
	}
	return nil
}
