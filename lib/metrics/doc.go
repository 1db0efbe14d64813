// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package metrics defines Quartermaster's Prometheus instruments on a
// private registry. Every recording method is safe on a nil *Metrics,
// so libraries take an optional *Metrics and call it unconditionally;
// only the daemon creates one and serves [Metrics.Handler].
package metrics
