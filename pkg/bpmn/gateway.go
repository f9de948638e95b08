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

	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// PARALLEL_GATEWAY ==============================================

func (pi *ProcessInstance) executeParallelGateway(tokenKey int64, element model.FlowElement) bool {
	pi.mu.Lock()
	token, ok := pi.activeTokenLocked(tokenKey)
	if !ok {
		pi.mu.Unlock()
		return false
	}
	var continues bool
	var spawned []int64
	if pi.graph.IsJoin(token.ElementKey) {
		spawned = pi.joinLocked(token, element)
	} else {
		continues, spawned = pi.followFlowsLocked(token)
	}
	pi.checkProgressLocked()
	pi.mu.Unlock()
	pi.flush()
	pi.spawn(spawned...)
	return continues
}

// joinLocked registers the arrival of the token at an AND join.
// The arrival that seals the generation retires every contributor and creates the continuation token.
func (pi *ProcessInstance) joinLocked(token *runtime.Token, element model.FlowElement) []int64 {
	expected := pi.graph.IncomingCount(token.ElementKey)
	outcome, err := pi.engine.joins.Arrive(pi.key, token.ElementKey, token.Key, expected)
	if err != nil {
		kind := err
		switch {
		case errors.Is(err, ErrDuplicateJoinArrival):
			kind = ErrDuplicateJoinArrival
		case errors.Is(err, ErrJoinGenerationSealed):
			kind = ErrJoinGenerationSealed
		}
		pi.executionFailedLocked(token, kind, err)
		return nil
	}

	switch outcome.State {
	case JoinWaiting:
		pi.waitAtJoinLocked(token)
		pi.logger.Debug("token waits at join", "token", token.Key, "elementId", element.Id,
			"arrived", outcome.Arrived, "expected", outcome.Expected, "generation", outcome.Generation)
		return nil
	case JoinSealed:
		contributors := make([]runtime.Token, 0, len(outcome.Contributors))
		for _, key := range outcome.Contributors {
			contributor := pi.tokens[key]
			contributors = append(contributors, contributor.Clone())
			pi.finishTokenLocked(contributor, runtime.TokenStateCompleted, runtime.TokenSubStateJoined)
			pi.exportTokenLocked(contributor, element.Id, exporter.TokenJoined)
		}
		flow := pi.graph.OutgoingFlows(token.ElementKey)[0]
		pi.exportTokenLocked(token, element.Id, exporter.ElementCompleted)
		pi.exportTokenLocked(token, flow.Id, exporter.SequenceFlowTaken)
		continuation := pi.newTokenLocked(token.Key, flow.Target, runtime.CommonScopes(contributors...), runtime.LatestPasses(contributors...))
		pi.engine.metrics.JoinsFired.Add(pi.ctx, 1)
		pi.logger.Debug("join fired", "elementId", element.Id, "generation", outcome.Generation,
			"contributors", outcome.Contributors, "continuation", continuation.Key)
		return []int64{continuation.Key}
	default:
		panic(fmt.Sprintf("unknown join state %d", outcome.State))
	}
}

// EXCLUSIVE_GATEWAY ==============================================

func (pi *ProcessInstance) executeOrGateway(tokenKey int64, element model.FlowElement) bool {
	pi.mu.Lock()
	token, ok := pi.activeTokenLocked(tokenKey)
	if !ok {
		pi.mu.Unlock()
		return false
	}
	if pi.graph.IsJoin(token.ElementKey) && pi.mergeLocked(token, element) {
		pi.checkProgressLocked()
		pi.mu.Unlock()
		pi.flush()
		return false
	}

	flows := pi.graph.OutgoingFlows(token.ElementKey)
	if len(flows) < 2 {
		continues, spawned := pi.followFlowsLocked(token)
		pi.checkProgressLocked()
		pi.mu.Unlock()
		pi.flush()
		pi.spawn(spawned...)
		return continues
	}
	choice := Choice{
		InstanceKey: pi.key,
		TokenKey:    token.Key,
		Gateway:     element,
		Flows:       flows,
		Variables:   pi.variables.Variables(),
	}
	pi.mu.Unlock()
	pi.flush()

	flow, err := pi.choose(pi.ctx, choice)

	pi.mu.Lock()
	defer pi.flush()
	defer pi.mu.Unlock()
	token, ok = pi.activeTokenLocked(tokenKey)
	if !ok {
		return false
	}
	if err == nil && !containsFlow(flows, flow) {
		err = fmt.Errorf("flow %q does not leave gateway %s", flow.Id, element.Id)
	}
	if err != nil {
		pi.executionFailedLocked(token, ErrNoBranchSelected, err)
		return false
	}
	pi.moveTokenLocked(token, flow)
	return true
}

// mergeLocked applies first arrival wins per pass of the OR join. It returns true when the token was discarded.
// A token that already went through the current pass, or descends from one that did, opens the next pass;
// every other arrival belongs to a pass that was already taken.
func (pi *ProcessInstance) mergeLocked(token *runtime.Token, element model.FlowElement) bool {
	current := pi.passes[token.ElementKey]
	if token.Pass(token.ElementKey) < current {
		pi.finishTokenLocked(token, runtime.TokenStateCompleted, runtime.TokenSubStateMerged)
		pi.exportTokenLocked(token, element.Id, exporter.TokenMerged)
		pi.engine.metrics.TokensMerged.Add(pi.ctx, 1)
		pi.logger.Debug("token merged", "token", token.Key, "elementId", element.Id, "pass", current)
		return true
	}
	pi.passes[token.ElementKey] = current + 1
	if token.Passes == nil {
		token.Passes = make(map[model.ElementKey]uint64)
	}
	token.Passes[token.ElementKey] = current + 1
	pi.touchLocked(token)
	return false
}

func (pi *ProcessInstance) choose(ctx context.Context, choice Choice) (flow model.Edge, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("choice policy panicked: %v", r)
		}
	}()
	return pi.engine.choicePolicy.Choose(ctx, choice)
}

func containsFlow(flows []model.Edge, flow model.Edge) bool {
	for _, f := range flows {
		if f.Id == flow.Id && f.Source == flow.Source {
			return true
		}
	}
	return false
}
