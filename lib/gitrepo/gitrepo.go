// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package gitrepo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotRepository is returned for directories outside any git
	// working tree.
	ErrNotRepository = errors.New("not a git repository")

	// ErrNothingToCommit is returned by Savepoint on a clean tree.
	ErrNothingToCommit = errors.New("no changes to commit")

	// ErrNoCommits is returned by Bundle for a repository without
	// history, which git refuses to bundle.
	ErrNoCommits = errors.New("repository has no commits")
)

// BackupRemote is the namespace FetchBundle writes bundle branches to.
const BackupRemote = "backup"

// Repository represents a git working tree at a specific directory.
// There is no default directory: callers always say which repository
// they mean.
type Repository struct {
	dir string
}

// NewRepository returns a Repository targeting dir.
func NewRepository(dir string) *Repository {
	return &Repository{dir: dir}
}

// Dir returns the repository directory.
func (r *Repository) Dir() string {
	return r.dir
}

// Run executes a git command targeting this repository and returns
// stdout. Stderr is included in the error on failure.
func (r *Repository) Run(ctx context.Context, args ...string) (string, error) {
	return run(ctx, append([]string{"-C", r.dir}, args...)...)
}

// Command returns an *exec.Cmd for a git command without running it,
// with the -C flag already prepended.
func (r *Repository) Command(ctx context.Context, args ...string) *exec.Cmd {
	fullArgs := append([]string{"-C", r.dir}, args...)
	return exec.CommandContext(ctx, "git", fullArgs...)
}

func run(ctx context.Context, args ...string) (string, error) {
	var stdout, stderr bytes.Buffer
	command := exec.CommandContext(ctx, "git", args...)
	command.Stdout = &stdout
	command.Stderr = &stderr
	command.WaitDelay = 5 * time.Second

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), ctx.Err())
		}
		return "", fmt.Errorf("git %s: %w (stderr: %s)",
			strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return stdout.String(), nil
}

// IsRepository reports whether the directory is inside a git working
// tree. A missing git binary reports false.
func (r *Repository) IsRepository(ctx context.Context) bool {
	output, err := r.Run(ctx, "rev-parse", "--is-inside-work-tree")
	return err == nil && strings.TrimSpace(output) == "true"
}

// Commit is one entry of the recent history.
type Commit struct {
	Hash        string    `json:"hash"`
	Author      string    `json:"author"`
	Date        time.Time `json:"date"`
	Message     string    `json:"message"`
	IsSavepoint bool      `json:"is_savepoint"`
}

// Remote is a configured remote and its fetch URL.
type Remote struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

// Status summarizes a working tree.
type Status struct {
	Branch         string   `json:"branch"`
	Dirty          bool     `json:"dirty"`
	ChangedFiles   []string `json:"changed_files"`
	UntrackedFiles []string `json:"untracked_files"`
	CommitCount    int      `json:"commit_count"`
	Commits        []Commit `json:"commits"`
	Remotes        []Remote `json:"remotes"`
}

// TotalChanges counts changed and untracked files together.
func (s Status) TotalChanges() int {
	return len(s.ChangedFiles) + len(s.UntrackedFiles)
}

// HasSavepoint reports whether any recent commit is a savepoint.
func (s Status) HasSavepoint() bool {
	for _, commit := range s.Commits {
		if commit.IsSavepoint {
			return true
		}
	}
	return false
}

// recentCommits is how many commits Status reports.
const recentCommits = 10

// Status collects branch, working tree, history, and remote state.
func (r *Repository) Status(ctx context.Context) (Status, error) {
	if !r.IsRepository(ctx) {
		return Status{}, fmt.Errorf("%s: %w", r.dir, ErrNotRepository)
	}
	var status Status

	branch, err := r.Run(ctx, "symbolic-ref", "--short", "-q", "HEAD")
	if err != nil || strings.TrimSpace(branch) == "" {
		status.Branch = "detached HEAD"
	} else {
		status.Branch = strings.TrimSpace(branch)
	}

	porcelain, err := r.Run(ctx, "status", "--porcelain=v1", "-z", "--untracked-files=all")
	if err != nil {
		return Status{}, err
	}
	status.ChangedFiles, status.UntrackedFiles = parsePorcelain(porcelain)
	status.Dirty = len(status.ChangedFiles) > 0

	// An unborn branch has no HEAD to count from.
	if count, err := r.Run(ctx, "rev-list", "--count", "HEAD"); err == nil {
		status.CommitCount, _ = strconv.Atoi(strings.TrimSpace(count))
	}
	if status.CommitCount > 0 {
		log, err := r.Run(ctx, "log", "-n", strconv.Itoa(recentCommits), "--format=%h%x1f%an <%ae>%x1f%cI%x1f%s")
		if err != nil {
			return Status{}, err
		}
		status.Commits = parseLog(log)
	}

	remotes, err := r.Run(ctx, "remote", "-v")
	if err != nil {
		return Status{}, err
	}
	status.Remotes = parseRemotes(remotes)
	return status, nil
}

// parsePorcelain splits "git status --porcelain=v1 -z" output into
// tracked changes and untracked files. Renames carry a second path,
// which is skipped.
func parsePorcelain(output string) (changed, untracked []string) {
	records := strings.Split(output, "\x00")
	for i := 0; i < len(records); i++ {
		record := records[i]
		if len(record) < 4 {
			continue
		}
		code, name := record[:2], record[3:]
		switch {
		case code == "??":
			untracked = append(untracked, name)
		case code == "!!":
		default:
			changed = append(changed, name)
			if code[0] == 'R' || code[0] == 'C' {
				i++
			}
		}
	}
	return changed, untracked
}

func parseLog(output string) []Commit {
	var commits []Commit
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Split(line, "\x1f")
		if len(fields) != 4 {
			continue
		}
		date, _ := time.Parse(time.RFC3339, fields[2])
		commits = append(commits, Commit{
			Hash:        fields[0],
			Author:      fields[1],
			Date:        date,
			Message:     fields[3],
			IsSavepoint: strings.Contains(strings.ToLower(fields[3]), "savepoint"),
		})
	}
	return commits
}

func parseRemotes(output string) []Remote {
	var remotes []Remote
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		fields := strings.Fields(line)
		if len(fields) == 3 && fields[2] == "(fetch)" {
			remotes = append(remotes, Remote{Name: fields[0], URL: fields[1]})
		}
	}
	return remotes
}

// Savepoint stages every change, including untracked files, and
// commits it. An empty message becomes "Savepoint - <time>". It
// returns the short hash of the new commit. When the repository has no
// user identity configured, a Quartermaster identity is used for this
// commit only.
func (r *Repository) Savepoint(ctx context.Context, message string) (string, error) {
	status, err := r.Status(ctx)
	if err != nil {
		return "", err
	}
	if status.TotalChanges() == 0 {
		return "", ErrNothingToCommit
	}
	if message == "" {
		message = "Savepoint - " + time.Now().Format("2006-01-02 15:04:05")
	}

	if _, err := r.Run(ctx, "add", "-A"); err != nil {
		return "", err
	}
	var identity []string
	if email, err := r.Run(ctx, "config", "user.email"); err != nil || strings.TrimSpace(email) == "" {
		identity = []string{"-c", "user.name=Quartermaster", "-c", "user.email=quartermaster@localhost"}
	}
	if _, err := r.Run(ctx, append(identity, "commit", "--no-verify", "-m", message)...); err != nil {
		return "", err
	}
	hash, err := r.Run(ctx, "rev-parse", "--short", "HEAD")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(hash), nil
}

// Bundle writes every ref of the repository to a bundle file at
// destination. The bundle is created under a temporary name in the
// same directory and renamed into place with mode 0600.
func (r *Repository) Bundle(ctx context.Context, destination string) error {
	if count, err := r.Run(ctx, "rev-list", "--count", "--all"); err != nil || strings.TrimSpace(count) == "0" {
		return fmt.Errorf("%s: %w", r.dir, ErrNoCommits)
	}
	absolute, err := filepath.Abs(destination)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(absolute), 0700); err != nil {
		return err
	}
	temporary := filepath.Join(filepath.Dir(absolute), "."+filepath.Base(absolute)+".tmp")
	defer os.Remove(temporary)

	if _, err := r.Run(ctx, "bundle", "create", temporary, "--all"); err != nil {
		return err
	}
	if err := os.Chmod(temporary, 0600); err != nil {
		return err
	}
	return os.Rename(temporary, absolute)
}

// VerifyBundle checks that a bundle file is well formed and complete.
// git only verifies inside a repository, so a throwaway bare one is
// created for the check.
func VerifyBundle(ctx context.Context, bundle string) error {
	_, err := inScratchRepository(ctx, bundle, "bundle", "verify")
	if err != nil {
		return fmt.Errorf("verifying bundle %s: %w", filepath.Base(bundle), err)
	}
	return nil
}

// BundleHeads lists the refs a bundle carries.
func BundleHeads(ctx context.Context, bundle string) ([]string, error) {
	output, err := inScratchRepository(ctx, bundle, "bundle", "list-heads")
	if err != nil {
		return nil, err
	}
	var refs []string
	for _, line := range strings.Split(strings.TrimSpace(output), "\n") {
		if _, ref, ok := strings.Cut(line, " "); ok {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

// inScratchRepository runs "git <args...> <bundle>" inside a new empty
// bare repository that is removed afterwards.
func inScratchRepository(ctx context.Context, bundle string, args ...string) (string, error) {
	absolute, err := filepath.Abs(bundle)
	if err != nil {
		return "", err
	}
	scratch, err := os.MkdirTemp("", "quartermaster-git-*")
	if err != nil {
		return "", err
	}
	defer os.RemoveAll(scratch)
	if _, err := run(ctx, "init", "--bare", "-q", scratch); err != nil {
		return "", err
	}
	return NewRepository(scratch).Run(ctx, append(args, absolute)...)
}

// CloneBundle creates a new repository at destination from a bundle.
// destination must not exist or must be empty.
func CloneBundle(ctx context.Context, bundle, destination string) (*Repository, error) {
	if _, err := run(ctx, "clone", bundle, destination); err != nil {
		return nil, err
	}
	return NewRepository(destination), nil
}

// FetchBundle fetches every branch of a bundle into
// refs/remotes/backup/ of this repository. Local branches and the
// working tree are left alone.
func (r *Repository) FetchBundle(ctx context.Context, bundle string) error {
	if !r.IsRepository(ctx) {
		return fmt.Errorf("%s: %w", r.dir, ErrNotRepository)
	}
	bundle, err := filepath.Abs(bundle)
	if err != nil {
		return err
	}
	if err := VerifyBundle(ctx, bundle); err != nil {
		return err
	}
	refspec := "+refs/heads/*:refs/remotes/" + BackupRemote + "/*"
	_, err = r.Run(ctx, "fetch", bundle, refspec)
	return err
}
