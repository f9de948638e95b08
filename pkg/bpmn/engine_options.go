// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type EngineOption = func(*Engine)

// FailurePolicy decides what happens to the rest of an instance when an activity fails
type FailurePolicy string

const (
	// FailurePolicyFailFast records the first failure, fails the instance and terminates every other token
	FailurePolicyFailFast FailurePolicy = "FAIL_FAST"
	// FailurePolicyContinue terminates only the failing token; the instance fails with all
	// failures joined once no token is live anymore
	FailurePolicyContinue FailurePolicy = "CONTINUE"
)

// ParseFailurePolicy accepts the policy names case insensitively, an empty string is FailurePolicyFailFast
func ParseFailurePolicy(policy string) (FailurePolicy, error) {
	switch FailurePolicy(strings.ToUpper(strings.TrimSpace(policy))) {
	case "", FailurePolicyFailFast:
		return FailurePolicyFailFast, nil
	case FailurePolicyContinue:
		return FailurePolicyContinue, nil
	}
	return "", fmt.Errorf("unknown failure policy %q", policy)
}

func EngineWithExporter(exporter exporter.EventExporter) EngineOption {
	return func(engine *Engine) { engine.AddEventExporter(exporter) }
}

// EngineWithStorage makes the engine write instance and token snapshots after every transition
func EngineWithStorage(persistence storage.Storage) EngineOption {
	return func(engine *Engine) {
		engine.persistence = persistence
	}
}

func EngineWithName(name string) EngineOption {
	return func(engine *Engine) {
		engine.name = name
	}
}

func EngineWithLogger(logger hclog.Logger) EngineOption {
	return func(engine *Engine) {
		engine.logger = logger
	}
}

// EngineWithInvoker sets the invoker used for activities no task handler matches
func EngineWithInvoker(invoker ActivityInvoker) EngineOption {
	return func(engine *Engine) {
		engine.invoker = invoker
	}
}

func EngineWithChoicePolicy(policy ChoicePolicy) EngineOption {
	return func(engine *Engine) {
		engine.choicePolicy = policy
	}
}

func EngineWithFailurePolicy(policy FailurePolicy) EngineOption {
	return func(engine *Engine) {
		engine.failurePolicy = policy
	}
}

// EngineWithMaxConcurrentActivities caps the number of activity invocations running at once
// across all instances. Tokens waiting at a join never hold a slot. Zero means no limit.
func EngineWithMaxConcurrentActivities(limit int) EngineOption {
	return func(engine *Engine) {
		engine.maxConcurrentActivities = limit
	}
}

func EngineWithMeter(meter metric.Meter) EngineOption {
	return func(engine *Engine) {
		engine.meter = meter
	}
}

func EngineWithTracerProvider(provider trace.TracerProvider) EngineOption {
	return func(engine *Engine) {
		engine.tracerProvider = provider
	}
}

// EngineWithInstanceCache bounds how many finished instances stay available through FindProcessInstance, and for how long
func EngineWithInstanceCache(size int, ttl time.Duration) EngineOption {
	return func(engine *Engine) {
		engine.instanceCacheSize = size
		engine.instanceCacheTTL = ttl
	}
}

// EngineWithTokenHistory bounds how many finished tokens each instance keeps in memory, the oldest are dropped first.
// Dropped tokens stay available through storage. A negative limit keeps every token.
func EngineWithTokenHistory(limit int) EngineOption {
	return func(engine *Engine) {
		engine.tokenHistory = limit
	}
}

type InstanceOption = func(*ProcessInstance)

// InstanceWithDefinitionId records which process definition the graph was loaded from
func InstanceWithDefinitionId(definitionId string) InstanceOption {
	return func(instance *ProcessInstance) {
		instance.definitionId = definitionId
	}
}
