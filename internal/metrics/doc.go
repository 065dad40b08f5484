// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics exposes Prometheus metrics for rigrun-chat.
//
// # Key Types
//
//   - Registry: owns the Prometheus registry and every rigrun-chat metric;
//     it implements render.Observer
//
// # Usage
//
//	m := metrics.New()
//	renderer := render.NewDefault(logger, render.WithObserver(m))
//	mux.Handle("/metrics", promhttp.HandlerFor(m.Gatherer(), promhttp.HandlerOpts{}))
package metrics
