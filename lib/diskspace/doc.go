// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package diskspace reports free space on the volume holding a path and
// estimates the size of directory trees before they are archived.
//
// [Check] is the pre-flight gate used before every archive build: it
// compares the bytes available to an unprivileged writer with the
// requirement and returns [ErrInsufficient] with both figures rendered
// in human units.
package diskspace
