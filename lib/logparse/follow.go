// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package logparse

import (
	"context"
	"fmt"
	"io"

	"github.com/hpcloud/tail"
)

// Follow calls fn with each line appended to path until ctx is done or
// fn returns an error. Lines already in the file are skipped. A rotated
// or recreated file is reopened.
func Follow(ctx context.Context, path string, fn func(line string) error) error {
	follower, err := tail.TailFile(path, tail.Config{
		Follow:    true,
		ReOpen:    true,
		MustExist: true,
		Location:  &tail.SeekInfo{Offset: 0, Whence: io.SeekEnd},
		Logger:    tail.DiscardingLogger,
	})
	if err != nil {
		return fmt.Errorf("following %s: %w", path, err)
	}
	defer follower.Cleanup()
	defer follower.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-follower.Lines:
			if !ok {
				return follower.Err()
			}
			if line.Err != nil {
				return fmt.Errorf("following %s: %w", path, line.Err)
			}
			if err := fn(line.Text); err != nil {
				return err
			}
		}
	}
}
