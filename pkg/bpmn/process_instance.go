// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Status of a process instance, Reason is only set for ProcessInstanceStateFailed
type Status struct {
	State  runtime.ProcessInstanceState
	Reason error
}

func (s Status) String() string {
	if s.Reason != nil {
		return fmt.Sprintf("%s: %s", s.State, s.Reason)
	}
	return string(s.State)
}

// ProcessInstance is one execution of a graph.
// All token state lives in tokens and is only touched with mu held; side effects
// (exporters and storage) are queued while holding mu and delivered by flush in order.
type ProcessInstance struct {
	engine       *Engine
	logger       hclog.Logger
	key          int64
	definitionId string
	graph        *model.Graph
	variables    *runtime.VariableHolder
	createdAt    time.Time

	mu        sync.Mutex
	state     runtime.ProcessInstanceState
	reason    error
	failures  []error
	tokens    map[int64]*runtime.Token
	retired   []int64
	active    int
	waiting   int
	passes    map[model.ElementKey]uint64
	ctx       context.Context
	cancel    context.CancelFunc
	span      trace.Span
	updatedAt time.Time

	exportMu      sync.Mutex
	pending       []func(exp exporter.EventExporter)
	dirty         map[int64]struct{}
	instanceDirty bool
	doneClosed    bool
	done          chan struct{}
}

func newProcessInstance(engine *Engine, graph *model.Graph, variables map[string]any) *ProcessInstance {
	key := engine.generateKey()
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	return &ProcessInstance{
		engine:    engine,
		logger:    engine.logger.With("instanceKey", key),
		key:       key,
		graph:     graph,
		variables: runtime.NewVariableHolder(variables),
		createdAt: now,
		updatedAt: now,
		state:     runtime.ProcessInstanceStateReady,
		tokens:    make(map[int64]*runtime.Token),
		passes:    make(map[model.ElementKey]uint64),
		ctx:       ctx,
		cancel:    cancel,
		dirty:     make(map[int64]struct{}),
		done:      make(chan struct{}),
	}
}

func (pi *ProcessInstance) Key() int64 {
	return pi.key
}

func (pi *ProcessInstance) DefinitionId() string {
	return pi.definitionId
}

func (pi *ProcessInstance) Graph() *model.Graph {
	return pi.graph
}

func (pi *ProcessInstance) CreatedAt() time.Time {
	return pi.createdAt
}

// Start places one Active token on the start element of the graph and returns the instance key.
// Only Ready instances can be started. The instance keeps running when ctx is cancelled, use Cancel to stop it.
func (pi *ProcessInstance) Start(ctx context.Context) (int64, error) {
	pi.mu.Lock()
	if pi.state != runtime.ProcessInstanceStateReady {
		state := pi.state
		pi.mu.Unlock()
		return pi.key, fmt.Errorf("%w: instance %d is %s", ErrInstanceAlreadyStarted, pi.key, state)
	}
	ctx, pi.span = pi.engine.tracer.Start(context.WithoutCancel(ctx), fmt.Sprintf("process-instance:%d", pi.key), trace.WithAttributes(
		attribute.Int64(otelPkg.AttributeProcessInstanceKey, pi.key),
		attribute.String(otelPkg.AttributeProcessId, pi.definitionId),
		attribute.String(otelPkg.AttributeFailurePolicy, string(pi.engine.failurePolicy)),
	))
	pi.cancel()
	pi.ctx, pi.cancel = context.WithCancel(ctx)
	pi.state = runtime.ProcessInstanceStateRunning
	pi.instanceDirty = true
	pi.engine.metrics.ProcessesStarted.Add(ctx, 1)
	pi.engine.metrics.ProcessesRunning.Add(ctx, 1)
	token := pi.newTokenLocked(0, pi.graph.Start(), nil, nil)
	pi.mu.Unlock()
	pi.flush()

	pi.logger.Info("process instance started", "start", token.ElementId)
	pi.spawn(token.Key)
	return pi.key, nil
}

// Status returns the current state, it never blocks on running activities
func (pi *ProcessInstance) Status() Status {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return Status{State: pi.state, Reason: pi.reason}
}

// Cancel terminates every live token and releases the join records of the instance.
// Results of activities still running are discarded. Calling Cancel on a finished instance does nothing.
func (pi *ProcessInstance) Cancel() {
	pi.mu.Lock()
	if pi.state.IsTerminal() {
		pi.mu.Unlock()
		return
	}
	pi.finishLocked(runtime.ProcessInstanceStateCancelled, nil)
	pi.mu.Unlock()
	pi.flush()
}

// AwaitCompletion blocks until the instance reached a terminal state or ctx is done
func (pi *ProcessInstance) AwaitCompletion(ctx context.Context) (Status, error) {
	select {
	case <-pi.done:
		return pi.Status(), nil
	case <-ctx.Done():
		return pi.Status(), ctx.Err()
	}
}

// Done is closed once the instance is terminal and every event about it was exported
func (pi *ProcessInstance) Done() <-chan struct{} {
	return pi.done
}

// Tokens returns a snapshot of the live tokens and the most recently finished ones, ordered by key.
// See EngineWithTokenHistory for how many finished tokens are kept.
func (pi *ProcessInstance) Tokens() []runtime.Token {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	res := make([]runtime.Token, 0, len(pi.tokens))
	for _, token := range pi.tokens {
		res = append(res, token.Clone())
	}
	slices.SortFunc(res, func(a, b runtime.Token) int {
		switch {
		case a.Key < b.Key:
			return -1
		case a.Key > b.Key:
			return 1
		}
		return 0
	})
	return res
}

// Variables returns a snapshot of the instance variables
func (pi *ProcessInstance) Variables() map[string]any {
	return pi.variables.Variables()
}

// Failures returns the activity failures collected under FailurePolicyContinue
func (pi *ProcessInstance) Failures() []error {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return slices.Clone(pi.failures)
}

// Snapshot returns the instance as it is written into storage
func (pi *ProcessInstance) Snapshot() storage.ProcessInstance {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	return pi.snapshotLocked()
}

func (pi *ProcessInstance) snapshotLocked() storage.ProcessInstance {
	snapshot := storage.ProcessInstance{
		Key:          pi.key,
		DefinitionId: pi.definitionId,
		State:        pi.state,
		Variables:    pi.variables.Variables(),
		CreatedAt:    pi.createdAt,
		UpdatedAt:    pi.updatedAt,
	}
	if pi.reason != nil {
		snapshot.Reason = pi.reason.Error()
	}
	return snapshot
}

// spawn starts one goroutine per token key
func (pi *ProcessInstance) spawn(tokenKeys ...int64) {
	for _, tokenKey := range tokenKeys {
		pi.engine.tokens.Add(1)
		pi.engine.tokenWorkers.Add(1)
		go func() {
			defer pi.engine.tokens.Done()
			defer pi.engine.tokenWorkers.Add(-1)
			pi.runToken(tokenKey)
		}()
	}
}

// flush delivers queued exporter events and storage writes.
// exportMu keeps deliveries in the order the transitions happened.
func (pi *ProcessInstance) flush() {
	pi.exportMu.Lock()
	defer pi.exportMu.Unlock()

	pi.mu.Lock()
	events := pi.pending
	pi.pending = nil
	tokens := make([]runtime.Token, 0, len(pi.dirty))
	for key := range pi.dirty {
		tokens = append(tokens, pi.tokens[key].Clone())
	}
	clear(pi.dirty)
	pi.pruneRetiredLocked()
	var snapshot *storage.ProcessInstance
	if pi.instanceDirty {
		s := pi.snapshotLocked()
		snapshot = &s
		pi.instanceDirty = false
	}
	closeDone := pi.state.IsTerminal() && !pi.doneClosed
	if closeDone {
		pi.doneClosed = true
	}
	pi.mu.Unlock()

	pi.engine.persist(snapshot, tokens)
	for _, event := range events {
		for _, exp := range pi.engine.exporters {
			event(exp)
		}
	}
	if closeDone {
		pi.engine.runningInstances.archive(pi)
		close(pi.done)
	}
}

// pruneRetiredLocked drops the oldest finished tokens beyond the history limit.
// It must run after the dirty tokens were copied for persistence, finished tokens never change again.
func (pi *ProcessInstance) pruneRetiredLocked() {
	limit := pi.engine.tokenHistory
	if limit < 0 || len(pi.retired) <= limit {
		return
	}
	drop := len(pi.retired) - limit
	for _, key := range pi.retired[:drop] {
		delete(pi.tokens, key)
	}
	pi.retired = slices.Delete(pi.retired, 0, drop)
}

func (pi *ProcessInstance) touchLocked(token *runtime.Token) {
	now := time.Now()
	token.UpdatedAt = now
	pi.updatedAt = now
	pi.dirty[token.Key] = struct{}{}
}

// activeTokenLocked returns the token if it is still Active and the instance is running
func (pi *ProcessInstance) activeTokenLocked(tokenKey int64) (*runtime.Token, bool) {
	if pi.state != runtime.ProcessInstanceStateRunning {
		return nil, false
	}
	token, ok := pi.tokens[tokenKey]
	if !ok || token.State != runtime.TokenStateActive {
		return nil, false
	}
	return token, true
}

func (pi *ProcessInstance) newTokenLocked(parentKey int64, elementKey model.ElementKey, scopes []int64, passes map[model.ElementKey]uint64) *runtime.Token {
	now := time.Now()
	element := pi.graph.Element(elementKey)
	token := &runtime.Token{
		Key:         pi.engine.generateKey(),
		InstanceKey: pi.key,
		ParentKey:   parentKey,
		ElementKey:  elementKey,
		ElementId:   element.Id,
		State:       runtime.TokenStateActive,
		Scopes:      slices.Clone(scopes),
		Passes:      maps.Clone(passes),
		CreatedAt:   now,
	}
	pi.tokens[token.Key] = token
	pi.active++
	pi.touchLocked(token)
	pi.engine.metrics.TokensSpawned.Add(pi.ctx, 1)
	pi.exportTokenLocked(token, element.Id, exporter.ElementActivated)
	return token
}

// finishTokenLocked moves a live token into a final state
func (pi *ProcessInstance) finishTokenLocked(token *runtime.Token, state runtime.TokenState, subState runtime.TokenSubState) {
	switch token.State {
	case runtime.TokenStateActive:
		pi.active--
	case runtime.TokenStateWaitingAtJoin:
		pi.waiting--
	default:
		panic(fmt.Sprintf("token %d is already %s", token.Key, token.State))
	}
	token.State = state
	token.SubState = subState
	pi.touchLocked(token)
	pi.retired = append(pi.retired, token.Key)
}

func (pi *ProcessInstance) waitAtJoinLocked(token *runtime.Token) {
	if token.State != runtime.TokenStateActive {
		panic(fmt.Sprintf("token %d is %s, only active tokens can wait at a join", token.Key, token.State))
	}
	pi.active--
	pi.waiting++
	token.State = runtime.TokenStateWaitingAtJoin
	pi.touchLocked(token)
	pi.exportTokenLocked(token, token.ElementId, exporter.TokenWaiting)
}

// moveTokenLocked advances the token along the flow
func (pi *ProcessInstance) moveTokenLocked(token *runtime.Token, flow model.Edge) {
	pi.exportTokenLocked(token, token.ElementId, exporter.ElementCompleted)
	pi.exportTokenLocked(token, flow.Id, exporter.SequenceFlowTaken)
	target := pi.graph.Element(flow.Target)
	token.ElementKey = flow.Target
	token.ElementId = target.Id
	pi.touchLocked(token)
	pi.exportTokenLocked(token, target.Id, exporter.ElementActivated)
}

// forkLocked retires the parent and creates one child per flow, the children descend from a new fork scope
func (pi *ProcessInstance) forkLocked(parent *runtime.Token, flows []model.Edge) []int64 {
	scopes := append(slices.Clone(parent.Scopes), parent.Key)
	children := make([]int64, 0, len(flows))
	pi.exportTokenLocked(parent, parent.ElementId, exporter.ElementCompleted)
	for _, flow := range flows {
		pi.exportTokenLocked(parent, flow.Id, exporter.SequenceFlowTaken)
		child := pi.newTokenLocked(parent.Key, flow.Target, scopes, parent.Passes)
		children = append(children, child.Key)
	}
	pi.finishTokenLocked(parent, runtime.TokenStateCompleted, runtime.TokenSubStateForked)
	pi.exportTokenLocked(parent, parent.ElementId, exporter.TokenForked)
	pi.logger.Debug("token forked", "token", parent.Key, "elementId", parent.ElementId, "children", children)
	return children
}

// followFlowsLocked leaves the current element: no flow ends the token, one flow moves it, more flows fork it.
// It returns true when the same token continues.
func (pi *ProcessInstance) followFlowsLocked(token *runtime.Token) (bool, []int64) {
	flows := pi.graph.OutgoingFlows(token.ElementKey)
	switch len(flows) {
	case 0:
		pi.exportTokenLocked(token, token.ElementId, exporter.ElementCompleted)
		pi.finishTokenLocked(token, runtime.TokenStateCompleted, runtime.TokenSubStateEnd)
		pi.logger.Debug("token reached end", "token", token.Key, "elementId", token.ElementId)
		return false, nil
	case 1:
		pi.moveTokenLocked(token, flows[0])
		return true, nil
	default:
		return false, pi.forkLocked(token, flows)
	}
}

// checkProgressLocked finishes the instance once no token is Active anymore
func (pi *ProcessInstance) checkProgressLocked() {
	if pi.state != runtime.ProcessInstanceStateRunning || pi.active > 0 {
		return
	}
	if len(pi.failures) > 0 {
		pi.finishLocked(runtime.ProcessInstanceStateFailed, errors.Join(pi.failures...))
		return
	}
	if pi.waiting > 0 {
		var stalled *runtime.Token
		for _, token := range pi.tokens {
			if token.State == runtime.TokenStateWaitingAtJoin && (stalled == nil || token.Key < stalled.Key) {
				stalled = token
			}
		}
		pi.finishLocked(runtime.ProcessInstanceStateFailed, &ExecutionError{
			Kind:      ErrStalledJoin,
			ElementId: stalled.ElementId,
			TokenKey:  stalled.Key,
			Err:       fmt.Errorf("%d tokens wait at joins and no token is active", pi.waiting),
		})
		return
	}
	pi.finishLocked(runtime.ProcessInstanceStateCompleted, nil)
}

// executionFailedLocked fails the instance because of an engine invariant violation
func (pi *ProcessInstance) executionFailedLocked(token *runtime.Token, kind error, err error) {
	executionErr := &ExecutionError{
		Kind:      kind,
		ElementId: token.ElementId,
		TokenKey:  token.Key,
		Err:       err,
	}
	pi.finishTokenLocked(token, runtime.TokenStateTerminated, runtime.TokenSubStateFailed)
	pi.exportTokenLocked(token, token.ElementId, exporter.ElementFailed)
	pi.logger.Error("execution failed", "token", token.Key, "elementId", token.ElementId, "err", executionErr)
	pi.finishLocked(runtime.ProcessInstanceStateFailed, executionErr)
}

// activityFailedLocked applies the failure policy of the engine
func (pi *ProcessInstance) activityFailedLocked(token *runtime.Token, err error) {
	failure := &ActivityFailure{
		ElementId: token.ElementId,
		TokenKey:  token.Key,
		Err:       err,
	}
	pi.finishTokenLocked(token, runtime.TokenStateTerminated, runtime.TokenSubStateFailed)
	pi.exportTokenLocked(token, token.ElementId, exporter.ElementFailed)
	pi.logger.Warn("activity failed", "token", token.Key, "elementId", token.ElementId, "err", err)
	switch pi.engine.failurePolicy {
	case FailurePolicyContinue:
		pi.failures = append(pi.failures, failure)
		pi.checkProgressLocked()
	default:
		pi.failures = append(pi.failures, failure)
		pi.finishLocked(runtime.ProcessInstanceStateFailed, failure)
	}
}

// finishLocked moves the instance into a terminal state and terminates every token that is still live
func (pi *ProcessInstance) finishLocked(state runtime.ProcessInstanceState, reason error) {
	wasRunning := pi.state == runtime.ProcessInstanceStateRunning
	pi.state = state
	pi.reason = reason
	pi.updatedAt = time.Now()
	pi.instanceDirty = true

	keys := make([]int64, 0, pi.active+pi.waiting)
	for key, token := range pi.tokens {
		if token.State.IsLive() {
			keys = append(keys, key)
		}
	}
	slices.Sort(keys)
	for _, key := range keys {
		token := pi.tokens[key]
		pi.finishTokenLocked(token, runtime.TokenStateTerminated, runtime.TokenSubStateCancelled)
		pi.exportTokenLocked(token, token.ElementId, exporter.TokenTerminated)
	}
	pi.cancel()
	pi.engine.joins.Release(pi.key)

	ctx := context.WithoutCancel(pi.ctx)
	if wasRunning {
		pi.engine.metrics.ProcessesRunning.Add(ctx, -1)
	}
	pi.engine.metrics.ProcessesEnded.Add(ctx, 1, metricWithOutcome(state))
	if pi.span != nil {
		if reason != nil {
			pi.span.RecordError(reason)
			pi.span.SetStatus(codes.Error, reason.Error())
		}
		pi.span.SetAttributes(attribute.String(otelPkg.AttributeOutcome, string(state)))
		pi.span.End()
	}

	event := exporter.ProcessInstanceEvent{
		ProcessId:          pi.definitionId,
		ProcessInstanceKey: pi.key,
		State:              string(state),
	}
	if reason != nil {
		event.Reason = reason.Error()
	}
	pi.exportLocked(func(exp exporter.EventExporter) {
		exp.EndProcessEvent(&event)
	})

	switch state {
	case runtime.ProcessInstanceStateFailed:
		pi.logger.Warn("process instance failed", "reason", reason)
	default:
		pi.logger.Info("process instance finished", "state", state, "terminatedTokens", len(keys))
	}
}

func metricWithOutcome(state runtime.ProcessInstanceState) metric.AddOption {
	return metric.WithAttributes(attribute.String(otelPkg.AttributeOutcome, string(state)))
}
