// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package notify

import (
	"context"
	"log/slog"
	"os/exec"
	"time"
)

const desktopTimeout = 10 * time.Second

// Desktop shows events with notify-send.
type Desktop struct {
	// Binary defaults to "notify-send" on PATH.
	Binary string

	Logger *slog.Logger
}

// NewDesktop returns a desktop notifier, or nil when notify-send is not
// installed.
func NewDesktop(logger *slog.Logger) *Desktop {
	path, err := exec.LookPath("notify-send")
	if err != nil {
		if logger != nil {
			logger.Debug("desktop notifications unavailable", "error", err)
		}
		return nil
	}
	return &Desktop{Binary: path, Logger: logger}
}

// Notify runs notify-send and logs, rather than returns, a failure.
func (d *Desktop) Notify(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	binary := d.Binary
	if binary == "" {
		binary = "notify-send"
	}
	ctx, cancel := context.WithTimeout(ctx, desktopTimeout)
	defer cancel()
	command := exec.CommandContext(ctx, binary,
		"--urgency="+event.Urgency(),
		"--icon", event.Icon(),
		event.Title(),
		event.Body())
	if output, err := command.CombinedOutput(); err != nil && d.Logger != nil {
		d.Logger.Warn("desktop notification failed", "error", err, "output", string(output))
	}
}
