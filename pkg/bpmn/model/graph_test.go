// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forkJoinElements() []FlowElement {
	return []FlowElement{
		Activity("a", "A"),
		AndGateway("split"),
		Activity("b", "B"),
		Activity("c", "C"),
		AndGateway("join"),
		Activity("d", "D"),
	}
}

func forkJoinFlows() []Flow {
	return []Flow{
		SequenceFlow("a", "split"),
		SequenceFlow("split", "b"),
		SequenceFlow("split", "c"),
		SequenceFlow("b", "join"),
		SequenceFlow("c", "join"),
		SequenceFlow("join", "d"),
	}
}

func TestBuildForkJoinGraph(t *testing.T) {
	// when
	g, err := Build(forkJoinElements(), forkJoinFlows(), "a")

	// then
	require.NoError(t, err)
	assert.Equal(t, 6, g.Len())

	start := g.Element(g.Start())
	assert.Equal(t, "a", start.Id)

	split, ok := g.Lookup("split")
	require.True(t, ok)
	assert.True(t, g.IsSplit(split))
	assert.False(t, g.IsJoin(split))
	assert.Len(t, g.OutgoingFlows(split), 2)

	join, _ := g.Lookup("join")
	assert.True(t, g.IsJoin(join))
	assert.Equal(t, 2, g.IncomingCount(join))

	d, _ := g.Lookup("d")
	assert.Empty(t, g.OutgoingFlows(d))
}

func TestOutgoingFlowsKeepDeclarationOrder(t *testing.T) {
	// given
	elements := []FlowElement{Activity("a", ""), OrGateway("or"), Activity("x", ""), Activity("y", ""), Activity("z", "")}
	flows := []Flow{
		SequenceFlow("a", "or"),
		{Id: "to-z", SourceRef: "or", TargetRef: "z"},
		{Id: "to-x", SourceRef: "or", TargetRef: "x", Condition: "amount > 10"},
		MessageFlow("or", "y"),
	}

	// when
	g, err := Build(elements, flows, "a")
	require.NoError(t, err)
	or, _ := g.Lookup("or")
	outgoing := g.OutgoingFlows(or)

	// then
	require.Len(t, outgoing, 3)
	assert.Equal(t, "to-z", outgoing[0].Id)
	assert.Equal(t, "to-x", outgoing[1].Id)
	assert.Equal(t, "amount > 10", outgoing[1].GetConditionExpression())
	assert.Equal(t, FlowTypeMessage, outgoing[2].Type)
	assert.Equal(t, FlowTypeSequence, outgoing[0].Type)
	for i, edge := range outgoing {
		assert.Equal(t, i, edge.Order)
		assert.Equal(t, or, edge.Source)
	}
}

func TestActivityNamesMayRepeat(t *testing.T) {
	elements := []FlowElement{Activity("a1", "Review"), Activity("a2", "Review")}

	g, err := Build(elements, []Flow{SequenceFlow("a1", "a2")}, "a1")

	require.NoError(t, err)
	assert.Equal(t, 2, g.Len())
}

func TestBuildErrors(t *testing.T) {
	tests := map[string]struct {
		elements []FlowElement
		flows    []Flow
		start    string
		expected error
	}{
		"dangling target": {
			elements: []FlowElement{Activity("a", "")},
			flows:    []Flow{SequenceFlow("a", "missing")},
			start:    "a",
			expected: ErrDanglingFlowTarget,
		},
		"dangling source": {
			elements: []FlowElement{Activity("a", "")},
			flows:    []Flow{SequenceFlow("missing", "a")},
			start:    "a",
			expected: ErrDanglingFlowTarget,
		},
		"unknown start": {
			elements: []FlowElement{Activity("a", "")},
			start:    "b",
			expected: ErrNoStartElement,
		},
		"empty start": {
			elements: []FlowElement{Activity("a", "")},
			start:    "",
			expected: ErrNoStartElement,
		},
		"start with incoming flows": {
			elements: []FlowElement{Activity("a", ""), Activity("b", "")},
			flows:    []Flow{SequenceFlow("a", "b"), SequenceFlow("b", "a")},
			start:    "a",
			expected: ErrInvalidStart,
		},
		"join with two outgoing flows": {
			elements: []FlowElement{Activity("a", ""), AndGateway("split"), AndGateway("join"), Activity("x", ""), Activity("y", "")},
			flows: []Flow{
				SequenceFlow("a", "split"),
				SequenceFlow("split", "join"),
				SequenceFlow("split", "join"),
				SequenceFlow("join", "x"),
				SequenceFlow("join", "y"),
			},
			start:    "a",
			expected: ErrMalformedJoinGateway,
		},
		"join without outgoing flow": {
			elements: []FlowElement{Activity("a", ""), AndGateway("split"), AndGateway("join")},
			flows: []Flow{
				SequenceFlow("a", "split"),
				SequenceFlow("split", "join"),
				SequenceFlow("split", "join"),
			},
			start:    "a",
			expected: ErrMalformedJoinGateway,
		},
		"gateway without outgoing flow": {
			elements: []FlowElement{Activity("a", ""), OrGateway("choice")},
			flows:    []Flow{SequenceFlow("a", "choice")},
			start:    "a",
			expected: ErrInvalidElement,
		},
		"gateway as the only element": {
			elements: []FlowElement{AndGateway("g")},
			start:    "g",
			expected: ErrInvalidElement,
		},
		"unreachable gateway": {
			elements: []FlowElement{Activity("a", ""), OrGateway("orphan"), Activity("b", "")},
			flows:    []Flow{SequenceFlow("orphan", "b")},
			start:    "a",
			expected: ErrInvalidElement,
		},
		"duplicate element id": {
			elements: []FlowElement{Activity("a", "first"), Activity("a", "second")},
			start:    "a",
			expected: ErrDuplicateElementId,
		},
		"duplicate flow id": {
			elements: []FlowElement{Activity("a", ""), Activity("b", "")},
			flows:    []Flow{{Id: "f", SourceRef: "a", TargetRef: "b"}, {Id: "f", SourceRef: "a", TargetRef: "b"}},
			start:    "a",
			expected: ErrDuplicateElementId,
		},
		"flow id shared with element": {
			elements: []FlowElement{Activity("a", ""), Activity("b", "")},
			flows:    []Flow{{Id: "b", SourceRef: "a", TargetRef: "b"}},
			start:    "a",
			expected: ErrDuplicateElementId,
		},
		"empty id": {
			elements: []FlowElement{Activity("", "nameless")},
			start:    "",
			expected: ErrInvalidElement,
		},
		"unknown gateway type": {
			elements: []FlowElement{{Id: "g", Kind: ElementKindGateway, Gateway: "XOR"}},
			start:    "g",
			expected: ErrInvalidElement,
		},
		"activity with gateway type": {
			elements: []FlowElement{{Id: "a", Kind: ElementKindActivity, Gateway: GatewayTypeAnd}},
			start:    "a",
			expected: ErrInvalidElement,
		},
		"unknown flow type": {
			elements: []FlowElement{Activity("a", ""), Activity("b", "")},
			flows:    []Flow{{Type: "DATA", SourceRef: "a", TargetRef: "b"}},
			start:    "a",
			expected: ErrInvalidElement,
		},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			g, err := Build(tt.elements, tt.flows, tt.start)

			assert.Nil(t, g)
			assert.ErrorIs(t, err, tt.expected)
			var graphErr *GraphError
			assert.True(t, errors.As(err, &graphErr))
		})
	}
}

func TestAndGatewayWithSingleIncomingIsPassThrough(t *testing.T) {
	elements := []FlowElement{Activity("a", ""), AndGateway("g"), Activity("b", "")}

	g, err := Build(elements, []Flow{SequenceFlow("a", "g"), SequenceFlow("g", "b")}, "a")

	require.NoError(t, err)
	key, _ := g.Lookup("g")
	assert.False(t, g.IsJoin(key))
	assert.False(t, g.IsSplit(key))
}

func TestGatewayMayBeTheStartElement(t *testing.T) {
	elements := []FlowElement{AndGateway("split"), Activity("b", ""), Activity("c", "")}

	g, err := Build(elements, []Flow{SequenceFlow("split", "b"), SequenceFlow("split", "c")}, "split")

	require.NoError(t, err)
	split, _ := g.Lookup("split")
	assert.Equal(t, split, g.Start())
	assert.True(t, g.IsSplit(split))
}

func TestLoopsAreAllowed(t *testing.T) {
	elements := []FlowElement{Activity("start", ""), OrGateway("merge"), Activity("work", ""), OrGateway("again")}
	flows := []Flow{
		SequenceFlow("start", "merge"),
		SequenceFlow("merge", "work"),
		SequenceFlow("work", "again"),
		SequenceFlow("again", "merge"),
	}

	g, err := Build(elements, flows, "start")

	require.NoError(t, err)
	merge, _ := g.Lookup("merge")
	assert.True(t, g.IsJoin(merge))
}

func TestGraphIsSafeForConcurrentReads(t *testing.T) {
	g, err := Build(forkJoinElements(), forkJoinFlows(), "a")
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for key := 0; key < g.Len(); key++ {
				_ = g.Element(ElementKey(key))
				_ = g.OutgoingFlows(ElementKey(key))
				_ = g.IncomingCount(ElementKey(key))
			}
		}()
	}
	wg.Wait()
}

func TestElementsReturnsCopy(t *testing.T) {
	g, err := Build(forkJoinElements(), forkJoinFlows(), "a")
	require.NoError(t, err)

	elements := g.Elements()
	elements[0].Name = "changed"

	assert.Equal(t, "A", g.Element(0).Name)
}
