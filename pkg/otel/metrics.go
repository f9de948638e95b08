// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"errors"

	"go.opentelemetry.io/otel/metric"
)

type EngineMetrics struct {
	ProcessesStarted   metric.Int64Counter
	ProcessesEnded     metric.Int64Counter
	ProcessesRunning   metric.Int64UpDownCounter
	TokensSpawned      metric.Int64Counter
	ActivitiesInvoked  metric.Int64Counter
	ActivitiesFailed   metric.Int64Counter
	ActivitiesInFlight metric.Int64UpDownCounter
	JoinsFired         metric.Int64Counter
	TokensMerged       metric.Int64Counter
	ActivityDuration   metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*EngineMetrics, error) {
	var errJoin error

	processesStartedTotal, err := meter.Int64Counter("processes_started", metric.WithDescription("Number of processes started"))
	errJoin = errors.Join(errJoin, err)

	processesEndedTotal, err := meter.Int64Counter("processes_ended", metric.WithDescription("Number of processes that reached a terminal state"))
	errJoin = errors.Join(errJoin, err)

	processesRunning, err := meter.Int64UpDownCounter("processes_running", metric.WithDescription("Number of processes currently running"))
	errJoin = errors.Join(errJoin, err)

	tokensSpawned, err := meter.Int64Counter("tokens_spawned", metric.WithDescription("Number of tokens created"))
	errJoin = errors.Join(errJoin, err)

	activitiesInvoked, err := meter.Int64Counter("activities_invoked", metric.WithDescription("Number of activity invocations"))
	errJoin = errors.Join(errJoin, err)

	activitiesFailed, err := meter.Int64Counter("activities_failed", metric.WithDescription("Number of failed activity invocations"))
	errJoin = errors.Join(errJoin, err)

	activitiesInFlight, err := meter.Int64UpDownCounter("activities_in_flight", metric.WithDescription("Number of activity invocations currently running"))
	errJoin = errors.Join(errJoin, err)

	joinsFired, err := meter.Int64Counter("joins_fired", metric.WithDescription("Number of AND joins that released a continuation token"))
	errJoin = errors.Join(errJoin, err)

	tokensMerged, err := meter.Int64Counter("tokens_merged", metric.WithDescription("Number of tokens discarded by an OR merge"))
	errJoin = errors.Join(errJoin, err)

	activityDuration, err := meter.Float64Histogram("activity_duration", metric.WithDescription("Duration of activity invocations"), metric.WithUnit("s"))
	errJoin = errors.Join(errJoin, err)

	metrics := EngineMetrics{
		ProcessesStarted:   processesStartedTotal,
		ProcessesEnded:     processesEndedTotal,
		ProcessesRunning:   processesRunning,
		TokensSpawned:      tokensSpawned,
		ActivitiesInvoked:  activitiesInvoked,
		ActivitiesFailed:   activitiesFailed,
		ActivitiesInFlight: activitiesInFlight,
		JoinsFired:         joinsFired,
		TokensMerged:       tokensMerged,
		ActivityDuration:   activityDuration,
	}
	return &metrics, errJoin
}
