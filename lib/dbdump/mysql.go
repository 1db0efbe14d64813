// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package dbdump

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/secret"
)

// AllowedOptions are the mysqldump options a configuration may add. An
// option matches by the part before any "=".
var AllowedOptions = map[string]bool{
	"--single-transaction":     true,
	"--routines":               true,
	"--triggers":               true,
	"--events":                 true,
	"--quick":                  true,
	"--lock-tables":            true,
	"--skip-lock-tables":       true,
	"--add-drop-database":      true,
	"--add-drop-table":         true,
	"--skip-add-drop-table":    true,
	"--no-tablespaces":         true,
	"--no-data":                true,
	"--no-create-info":         true,
	"--extended-insert":        true,
	"--complete-insert":        true,
	"--hex-blob":               true,
	"--set-gtid-purged":        true,
	"--column-statistics":      true,
	"--skip-column-statistics": true,
	"--compress":               true,
	"--skip-triggers":          true,
	"--skip-routines":          true,
}

// DefaultOptions are used when a database configures none.
var DefaultOptions = []string{"--single-transaction", "--routines", "--triggers", "--events", "--quick"}

// ValidateOptions rejects options outside AllowedOptions.
func ValidateOptions(options []string) error {
	for _, option := range options {
		name, _, _ := strings.Cut(option, "=")
		if !AllowedOptions[name] {
			return fmt.Errorf("mysqldump option %q is not allowed", name)
		}
	}
	return nil
}

// MySQL dumps and restores MySQL or MariaDB databases with the client
// binaries.
type MySQL struct {
	Host     string
	Port     int
	User     string
	Password *secret.Buffer

	// Options are extra mysqldump options. Nil means DefaultOptions.
	Options []string

	// Timeout bounds each command. Zero means no limit beyond ctx.
	Timeout time.Duration

	// DumpBinary and ClientBinary override the executables, which
	// default to "mysqldump" and "mysql" on PATH.
	DumpBinary   string
	ClientBinary string

	Logger *slog.Logger
}

func (m *MySQL) host() string {
	if m.Host == "" {
		return "localhost"
	}
	return m.Host
}

func (m *MySQL) port() int {
	if m.Port == 0 {
		return 3306
	}
	return m.Port
}

func (m *MySQL) logger() *slog.Logger {
	if m.Logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return m.Logger
}

// Dump writes the SQL dump of database to w.
func (m *MySQL) Dump(ctx context.Context, database string, w io.Writer) error {
	options := m.Options
	if options == nil {
		options = DefaultOptions
	}
	if err := ValidateOptions(options); err != nil {
		return err
	}
	binary := m.DumpBinary
	if binary == "" {
		binary = "mysqldump"
	}

	args := append(append([]string{}, options...), database)
	m.logger().Debug("running mysqldump", "database", database, "host", m.host(), "options", strings.Join(options, " "))
	return m.run(ctx, binary, args, nil, w)
}

// Restore feeds the SQL read from r to the mysql client against
// database.
func (m *MySQL) Restore(ctx context.Context, database string, r io.Reader) error {
	binary := m.ClientBinary
	if binary == "" {
		binary = "mysql"
	}
	m.logger().Debug("running mysql restore", "database", database, "host", m.host())
	return m.run(ctx, binary, []string{database}, r, io.Discard)
}

// Size estimates the on-disk size of database from information_schema.
func (m *MySQL) Size(ctx context.Context, database string) (int64, error) {
	binary := m.ClientBinary
	if binary == "" {
		binary = "mysql"
	}
	// The name is a validated identifier; quoting guards the literal.
	query := fmt.Sprintf(
		"SELECT COALESCE(SUM(data_length + index_length), 0) FROM information_schema.tables WHERE table_schema = '%s'",
		strings.ReplaceAll(database, "'", "''"))
	var output bytes.Buffer
	if err := m.run(ctx, binary, []string{"--batch", "--skip-column-names", "-e", query}, nil, &output); err != nil {
		return 0, err
	}
	size, err := strconv.ParseInt(strings.TrimSpace(output.String()), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing size of %s: %w", database, err)
	}
	return size, nil
}

func (m *MySQL) run(ctx context.Context, binary string, args []string, stdin io.Reader, stdout io.Writer) error {
	optionFile, err := m.writeOptionFile()
	if err != nil {
		return err
	}
	defer os.Remove(optionFile)

	if m.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.Timeout)
		defer cancel()
	}

	// --defaults-extra-file must be the first argument.
	fullArgs := append([]string{"--defaults-extra-file=" + optionFile}, args...)
	var stderr bytes.Buffer
	command := exec.CommandContext(ctx, binary, fullArgs...)
	command.Stdin = stdin
	command.Stdout = stdout
	command.Stderr = &stderr
	command.WaitDelay = 5 * time.Second

	if err := command.Run(); err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("%s: %w", binary, ctx.Err())
		}
		return fmt.Errorf("%s failed: %w (stderr: %s)", binary, err, truncate(strings.TrimSpace(stderr.String()), 500))
	}
	return nil
}

func truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}
	return text[:limit] + "..."
}
