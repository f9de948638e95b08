// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
)

type JoinState int

const (
	JoinWaiting JoinState = iota
	JoinSealed
)

func (s JoinState) String() string {
	switch s {
	case JoinWaiting:
		return "WAITING"
	case JoinSealed:
		return "SEALED"
	}
	return fmt.Sprintf("JoinState(%d)", int(s))
}

// JoinOutcome of a single arrival. Contributors is only set for the arrival that sealed the generation
// and lists every token that arrived in it, in arrival order.
type JoinOutcome struct {
	State        JoinState
	Generation   uint64
	Arrived      int
	Expected     int
	Contributors []int64
}

type joinRecord struct {
	expected int
	tokens   []int64
	arrived  map[int64]struct{}
}

// gatewayJoins holds every generation of one gateway in one instance.
// Generations below open are sealed, sealed keeps the ones above it that fired out of order.
type gatewayJoins struct {
	mu      sync.Mutex
	open    uint64
	sealed  map[uint64]struct{}
	records map[uint64]*joinRecord
}

type gatewayJoinKey struct {
	instanceKey int64
	gateway     model.ElementKey
}

// JoinTracker counts arrivals at AND joins.
// Each (instance, gateway) pair has its own lock, so arrivals at different joins never contend.
type JoinTracker struct {
	mu       sync.Mutex
	gateways map[gatewayJoinKey]*gatewayJoins
}

func NewJoinTracker() *JoinTracker {
	return &JoinTracker{
		gateways: make(map[gatewayJoinKey]*gatewayJoins),
	}
}

func (jt *JoinTracker) gatewayJoins(instanceKey int64, gateway model.ElementKey) *gatewayJoins {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	key := gatewayJoinKey{instanceKey: instanceKey, gateway: gateway}
	gj, ok := jt.gateways[key]
	if !ok {
		gj = &gatewayJoins{
			sealed:  make(map[uint64]struct{}),
			records: make(map[uint64]*joinRecord),
		}
		jt.gateways[key] = gj
	}
	return gj
}

// RegisterArrival records the arrival of tokenKey in the given generation.
// Exactly one arrival per generation gets JoinSealed, the one that makes arrived reach expected.
func (jt *JoinTracker) RegisterArrival(instanceKey int64, gateway model.ElementKey, generation uint64, tokenKey int64, expected int) (JoinOutcome, error) {
	gj := jt.gatewayJoins(instanceKey, gateway)
	gj.mu.Lock()
	defer gj.mu.Unlock()
	return gj.register(generation, tokenKey, expected)
}

// Arrive registers tokenKey in the currently open generation of the gateway
func (jt *JoinTracker) Arrive(instanceKey int64, gateway model.ElementKey, tokenKey int64, expected int) (JoinOutcome, error) {
	gj := jt.gatewayJoins(instanceKey, gateway)
	gj.mu.Lock()
	defer gj.mu.Unlock()
	return gj.register(gj.open, tokenKey, expected)
}

func (gj *gatewayJoins) register(generation uint64, tokenKey int64, expected int) (JoinOutcome, error) {
	if expected < 1 {
		return JoinOutcome{}, newEngineErrorf("join expects %d arrivals, at least 1 is required", expected)
	}
	if _, sealed := gj.sealed[generation]; sealed || generation < gj.open {
		return JoinOutcome{}, fmt.Errorf("%w: generation %d, token %d", ErrJoinGenerationSealed, generation, tokenKey)
	}
	record, ok := gj.records[generation]
	if !ok {
		record = &joinRecord{
			expected: expected,
			arrived:  make(map[int64]struct{}, expected),
		}
		gj.records[generation] = record
	}
	if _, dup := record.arrived[tokenKey]; dup {
		return JoinOutcome{}, fmt.Errorf("%w: generation %d, token %d", ErrDuplicateJoinArrival, generation, tokenKey)
	}
	record.arrived[tokenKey] = struct{}{}
	record.tokens = append(record.tokens, tokenKey)

	outcome := JoinOutcome{
		State:      JoinWaiting,
		Generation: generation,
		Arrived:    len(record.tokens),
		Expected:   record.expected,
	}
	if outcome.Arrived < record.expected {
		return outcome, nil
	}

	outcome.State = JoinSealed
	outcome.Contributors = record.tokens
	delete(gj.records, generation)
	gj.sealed[generation] = struct{}{}
	for {
		if _, ok := gj.sealed[gj.open]; !ok {
			break
		}
		delete(gj.sealed, gj.open)
		gj.open++
	}
	return outcome, nil
}

// OpenGeneration returns the generation the next Arrive call registers into
func (jt *JoinTracker) OpenGeneration(instanceKey int64, gateway model.ElementKey) uint64 {
	gj := jt.gatewayJoins(instanceKey, gateway)
	gj.mu.Lock()
	defer gj.mu.Unlock()
	return gj.open
}

// OpenRecords returns the number of join records of the instance that are waiting for arrivals
func (jt *JoinTracker) OpenRecords(instanceKey int64) int {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	count := 0
	for key, gj := range jt.gateways {
		if key.instanceKey != instanceKey {
			continue
		}
		gj.mu.Lock()
		count += len(gj.records)
		gj.mu.Unlock()
	}
	return count
}

// Release drops every join record of the instance
func (jt *JoinTracker) Release(instanceKey int64) {
	jt.mu.Lock()
	defer jt.mu.Unlock()
	for key := range jt.gateways {
		if key.instanceKey == instanceKey {
			delete(jt.gateways, key)
		}
	}
}
