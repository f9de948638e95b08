// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"sync"
	"testing"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/stretchr/testify/assert"
)

func TestCommonScopes(t *testing.T) {
	tests := map[string]struct {
		tokens   []Token
		expected []int64
	}{
		"no tokens":       {tokens: nil, expected: nil},
		"root tokens":     {tokens: []Token{{}, {}}, expected: []int64{}},
		"same fork":       {tokens: []Token{{Scopes: []int64{1, 2}}, {Scopes: []int64{1, 2}}}, expected: []int64{1, 2}},
		"nested fork":     {tokens: []Token{{Scopes: []int64{1}}, {Scopes: []int64{1, 5}}}, expected: []int64{1}},
		"different forks": {tokens: []Token{{Scopes: []int64{1, 2}}, {Scopes: []int64{3}}}, expected: []int64{}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CommonScopes(tt.tokens...))
		})
	}
}

func TestTokenScopeAndClone(t *testing.T) {
	token := Token{Key: 1, Scopes: []int64{7, 9}, Passes: map[model.ElementKey]uint64{3: 1}}

	clone := token.Clone()
	clone.Scopes[1] = 42
	clone.Passes[3] = 2

	assert.Equal(t, int64(9), token.Scope())
	assert.Equal(t, int64(42), clone.Scope())
	assert.Equal(t, int64(0), Token{}.Scope())
	assert.Equal(t, uint64(1), token.Pass(3))
	assert.Equal(t, uint64(2), clone.Pass(3))
	assert.Equal(t, uint64(0), Token{}.Pass(3))
}

func TestLatestPasses(t *testing.T) {
	tests := map[string]struct {
		tokens   []Token
		expected map[model.ElementKey]uint64
	}{
		"no tokens":        {tokens: nil, expected: nil},
		"no passes":        {tokens: []Token{{}, {}}, expected: nil},
		"one contributor":  {tokens: []Token{{}, {Passes: map[model.ElementKey]uint64{1: 2}}}, expected: map[model.ElementKey]uint64{1: 2}},
		"highest pass":     {tokens: []Token{{Passes: map[model.ElementKey]uint64{1: 3}}, {Passes: map[model.ElementKey]uint64{1: 1}}}, expected: map[model.ElementKey]uint64{1: 3}},
		"several gateways": {tokens: []Token{{Passes: map[model.ElementKey]uint64{1: 1}}, {Passes: map[model.ElementKey]uint64{2: 4}}}, expected: map[model.ElementKey]uint64{1: 1, 2: 4}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tt.expected, LatestPasses(tt.tokens...))
		})
	}
}

func TestStates(t *testing.T) {
	assert.True(t, TokenStateActive.IsLive())
	assert.True(t, TokenStateWaitingAtJoin.IsLive())
	assert.False(t, TokenStateCompleted.IsLive())
	assert.False(t, TokenStateTerminated.IsLive())

	assert.False(t, ProcessInstanceStateReady.IsTerminal())
	assert.False(t, ProcessInstanceStateRunning.IsTerminal())
	assert.True(t, ProcessInstanceStateCompleted.IsTerminal())
	assert.True(t, ProcessInstanceStateFailed.IsTerminal())
	assert.True(t, ProcessInstanceStateCancelled.IsTerminal())
}

func TestVariableHolderCopiesInput(t *testing.T) {
	// given
	input := map[string]any{"a": 1}
	vh := NewVariableHolder(input)

	// when
	input["a"] = 2
	vh.SetVariables(map[string]any{"b": "x"})
	snapshot := vh.Variables()
	snapshot["c"] = true

	// then
	assert.Equal(t, 1, vh.GetVariable("a"))
	assert.Equal(t, "x", vh.GetVariable("b"))
	assert.Nil(t, vh.GetVariable("c"))

	vh.DeleteVariable("a")
	assert.Nil(t, vh.GetVariable("a"))
}

func TestVariableHolderConcurrentWrites(t *testing.T) {
	vh := NewVariableHolder(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			vh.SetVariable("last", i)
			_ = vh.Variables()
		}(i)
	}
	wg.Wait()

	assert.NotNil(t, vh.GetVariable("last"))
}
