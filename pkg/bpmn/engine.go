// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package bpmn executes process graphs built with the model package.
//
// Every Active token of a process instance is advanced by its own goroutine.
// Tokens only interact through the instance's token set, which is guarded by the
// instance lock, and through the JoinTracker, which counts arrivals at AND joins.
package bpmn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/pbinitiative/zenflow/pkg/zenflake"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

const instrumentationName = "bpmn-engine"

const (
	// DefaultTokenHistory is the number of finished tokens an instance keeps in memory
	DefaultTokenHistory = 1000
	// DefaultStopTimeout bounds how long Stop waits for token goroutines
	DefaultStopTimeout = 30 * time.Second
)

type Engine struct {
	name             string
	logger           hclog.Logger
	invoker          ActivityInvoker
	taskHandlers     []*taskHandler
	taskhandlersMu   *sync.RWMutex
	choicePolicy     ChoicePolicy
	failurePolicy    FailurePolicy
	activitySlots    *semaphore.Weighted
	exporters        []exporter.EventExporter
	persistence      storage.Storage
	snowflake        *snowflake.Node
	joins            *JoinTracker
	runningInstances *RunningInstancesCache
	tracerProvider   trace.TracerProvider
	tracer           trace.Tracer
	meter            metric.Meter
	metrics          *otelPkg.EngineMetrics
	// running token goroutines
	tokens       sync.WaitGroup
	tokenWorkers atomic.Int64

	maxConcurrentActivities int
	instanceCacheSize       int
	instanceCacheTTL        time.Duration
	tokenHistory            int
}

// NewEngine creates a new instance of the BPMN Engine;
func NewEngine(options ...EngineOption) *Engine {
	node := zenflake.Global()
	engine := Engine{
		name:           fmt.Sprintf("Bpmn-Engine-%d", node.Generate().Int64()),
		logger:         hclog.Default().Named(instrumentationName),
		taskHandlers:   []*taskHandler{},
		taskhandlersMu: &sync.RWMutex{},
		choicePolicy:   FirstDeclaredChoice,
		failurePolicy:  FailurePolicyFailFast,
		snowflake:      node,
		exporters:      []exporter.EventExporter{},
		persistence:    nil,
		joins:          NewJoinTracker(),
		tokenHistory:   DefaultTokenHistory,
	}

	for _, option := range options {
		option(&engine)
	}

	if engine.maxConcurrentActivities > 0 {
		engine.activitySlots = semaphore.NewWeighted(int64(engine.maxConcurrentActivities))
	}
	if engine.tracerProvider == nil {
		engine.tracerProvider = otel.GetTracerProvider()
	}
	engine.tracer = engine.tracerProvider.Tracer(instrumentationName)
	if engine.meter == nil {
		engine.meter = otel.GetMeterProvider().Meter(instrumentationName)
	}
	metrics, err := otelPkg.NewMetrics(engine.meter)
	if err != nil {
		engine.logger.Warn("failed to register engine metrics, metrics are disabled", "err", err)
		metrics, _ = otelPkg.NewMetrics(noop.NewMeterProvider().Meter(instrumentationName))
	}
	engine.metrics = metrics
	engine.runningInstances = newRunningInstancesCache(engine.instanceCacheSize, engine.instanceCacheTTL)

	return &engine
}

// Name returns the name of the engine, only useful in case you control multiple ones
func (engine *Engine) Name() string {
	return engine.name
}

// JoinTracker exposes the tracker counting arrivals at AND joins of every instance of this engine
func (engine *Engine) JoinTracker() *JoinTracker {
	return engine.joins
}

// CreateInstance creates a new Ready instance of the graph, call Start to run it.
// The provided variables can be nil, they are copied into the instance.
func (engine *Engine) CreateInstance(graph *model.Graph, variables map[string]any, options ...InstanceOption) (*ProcessInstance, error) {
	if graph == nil {
		return nil, newEngineErrorf("can't create a process instance without a graph")
	}
	instance := newProcessInstance(engine, graph, variables)
	for _, option := range options {
		option(instance)
	}
	engine.runningInstances.add(instance)
	instance.mu.Lock()
	instance.instanceDirty = true
	instance.exportLocked(func(exp exporter.EventExporter) {
		exp.NewProcessInstanceEvent(&exporter.ProcessInstanceEvent{
			ProcessId:          instance.definitionId,
			ProcessInstanceKey: instance.key,
			State:              string(runtime.ProcessInstanceStateReady),
		})
	})
	instance.mu.Unlock()
	instance.flush()
	return instance, nil
}

// CreateAndStartInstance creates a new instance and starts it immediately.
// It does not wait for the instance to finish, use ProcessInstance.AwaitCompletion for that.
func (engine *Engine) CreateAndStartInstance(ctx context.Context, graph *model.Graph, variables map[string]any, options ...InstanceOption) (*ProcessInstance, error) {
	instance, err := engine.CreateInstance(graph, variables, options...)
	if err != nil {
		return nil, err
	}
	if _, err := instance.Start(ctx); err != nil {
		return instance, errors.Join(newEngineErrorf("failed to start process instance %d", instance.key), err)
	}
	return instance, nil
}

// FindProcessInstance returns a running instance, or a finished one that is still in the instance cache
func (engine *Engine) FindProcessInstance(key int64) (*ProcessInstance, error) {
	instance, ok := engine.runningInstances.get(key)
	if !ok {
		return nil, errors.Join(newEngineErrorf("no process instance with key %d", key), storage.ErrNotFound)
	}
	return instance, nil
}

// RunningInstances returns every instance that was created and did not finish yet, ordered by key
func (engine *Engine) RunningInstances() []*ProcessInstance {
	return engine.runningInstances.running()
}

// Stop cancels every running instance and waits up to DefaultStopTimeout for the token goroutines to return
func (engine *Engine) Stop() {
	ctx, cancel := context.WithTimeout(context.Background(), DefaultStopTimeout)
	defer cancel()
	_ = engine.StopContext(ctx)
}

// StopContext cancels every running instance and waits until all token goroutines have returned or ctx is done.
// Goroutines stuck in an invoker that ignores cancellation are left behind and reported.
func (engine *Engine) StopContext(ctx context.Context) error {
	for _, instance := range engine.RunningInstances() {
		instance.Cancel()
	}
	stopped := make(chan struct{})
	go func() {
		engine.tokens.Wait()
		close(stopped)
	}()
	select {
	case <-stopped:
		engine.logger.Info("engine stopped", "name", engine.name)
		return nil
	case <-ctx.Done():
		running := engine.tokenWorkers.Load()
		engine.logger.Warn("engine stopped before all token goroutines returned", "name", engine.name, "running", running, "err", ctx.Err())
		return fmt.Errorf("%d token goroutines still running: %w", running, ctx.Err())
	}
}

func (engine *Engine) persist(snapshot *storage.ProcessInstance, tokens []runtime.Token) {
	if engine.persistence == nil || (snapshot == nil && len(tokens) == 0) {
		return
	}
	// runs after the instance context may have been cancelled, the final snapshot still has to be written
	ctx := context.Background()
	batch := engine.persistence.NewBatch()
	var errJoin error
	if snapshot != nil {
		errJoin = errors.Join(errJoin, batch.SaveProcessInstance(ctx, *snapshot))
	}
	for _, token := range tokens {
		errJoin = errors.Join(errJoin, batch.SaveToken(ctx, token))
	}
	errJoin = errors.Join(errJoin, batch.Flush(ctx))
	if errJoin != nil {
		engine.logger.Warn("failed to persist process instance state", "err", errJoin)
	}
}
