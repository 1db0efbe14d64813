// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/quartermaster-backup/quartermaster/lib/config"
)

func TestNewWritesBothSinks(t *testing.T) {
	directory := filepath.Join(t.TempDir(), "logs")
	var stderr bytes.Buffer
	logger, closer, err := New(Options{Dir: directory, Stderr: &stderr})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	logger.With("project", "site").Info("project backup complete", "size", 42)
	logger.Debug("hidden")
	if err := closer.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(directory, FileName))
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for name, output := range map[string]string{"file": string(data), "stderr": stderr.String()} {
		lines := strings.Split(strings.TrimSpace(output), "\n")
		if len(lines) != 1 {
			t.Fatalf("%s has %d lines, want 1: %q", name, len(lines), output)
		}
		var record map[string]any
		if err := json.Unmarshal([]byte(lines[0]), &record); err != nil {
			t.Fatalf("%s: %v", name, err)
		}
		if record["msg"] != "project backup complete" || record["project"] != "site" || record["size"] != float64(42) {
			t.Errorf("%s record = %v", name, record)
		}
	}
}

func TestNewWithoutFile(t *testing.T) {
	var stderr bytes.Buffer
	logger, closer, err := New(Options{Stderr: &stderr, Level: slog.LevelDebug})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer closer.Close()
	logger.Debug("visible")
	if !strings.Contains(stderr.String(), `"msg":"visible"`) {
		t.Errorf("stderr = %q", stderr.String())
	}
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Handle(context.Context, slog.Record) error { return errors.New("sink down") }

func TestFanoutContinuesPastFailure(t *testing.T) {
	var buffer bytes.Buffer
	handler := Fanout{
		failingHandler{slog.NewJSONHandler(&buffer, nil)},
		slog.NewJSONHandler(&buffer, nil),
	}
	err := handler.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "done", 0))
	if err == nil || !strings.Contains(err.Error(), "sink down") {
		t.Errorf("Handle error = %v, want sink down", err)
	}
	if !strings.Contains(buffer.String(), `"msg":"done"`) {
		t.Errorf("output = %q, want the healthy sink's record", buffer.String())
	}
}

func TestFanoutDerivedHandlers(t *testing.T) {
	var first, second bytes.Buffer
	logger := slog.New(Fanout{slog.NewJSONHandler(&first, nil), slog.NewJSONHandler(&second, nil)})
	logger.WithGroup("job").With("kind", "git").Info("done")
	for _, buffer := range []*bytes.Buffer{&first, &second} {
		if !strings.Contains(buffer.String(), `"job":{"kind":"git"}`) {
			t.Errorf("output = %q, want grouped attribute", buffer.String())
		}
	}
}

func TestFromConfig(t *testing.T) {
	options, err := FromConfig(config.LoggingConfig{Level: "debug", MaxSizeMB: 3, Compress: true}, "/var/log/qm")
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	if options.Level != slog.LevelDebug || options.MaxSizeMB != 3 || !options.Compress || options.Dir != "/var/log/qm" {
		t.Errorf("options = %+v", options)
	}
	if _, err := FromConfig(config.LoggingConfig{Level: "loud"}, ""); err == nil {
		t.Error("FromConfig accepted an unknown level")
	}
}
