// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package model holds the immutable process graph the engine executes.
//
// A Graph is an arena of FlowElements addressed by ElementKey, with the
// outgoing flows of each element stored in declaration order and the incoming
// flow count of each element computed once at build time. After Build returns,
// nothing in a Graph is ever mutated, so one Graph can be shared by any number
// of concurrently running process instances without synchronization.
package model

import "fmt"

type Graph struct {
	elements []FlowElement
	index    map[string]ElementKey
	outgoing [][]Edge
	incoming []int
	start    ElementKey
}

// Build validates the given elements and flows and returns the resulting Graph.
// The returned error is always a *GraphError.
func Build(elements []FlowElement, flows []Flow, startId string) (*Graph, error) {
	g := Graph{
		elements: make([]FlowElement, 0, len(elements)),
		index:    make(map[string]ElementKey, len(elements)),
		outgoing: make([][]Edge, len(elements)),
		incoming: make([]int, len(elements)),
	}

	for _, element := range elements {
		if err := validateElement(element); err != nil {
			return nil, err
		}
		if _, ok := g.index[element.Id]; ok {
			return nil, newGraphErrorf(ErrDuplicateElementId, element.Id, "multiple flow elements share this id")
		}
		g.index[element.Id] = ElementKey(len(g.elements))
		g.elements = append(g.elements, element)
	}

	flowIds := make(map[string]struct{}, len(flows))
	for i, flow := range flows {
		source, ok := g.index[flow.SourceRef]
		if !ok {
			return nil, newGraphErrorf(ErrDanglingFlowTarget, flow.SourceRef, "flow %d references a source that isn't in the graph", i)
		}
		target, ok := g.index[flow.TargetRef]
		if !ok {
			return nil, newGraphErrorf(ErrDanglingFlowTarget, flow.TargetRef, "flow %d from %q references a target that isn't in the graph", i, flow.SourceRef)
		}
		flowType := flow.Type
		switch flowType {
		case "":
			flowType = FlowTypeSequence
		case FlowTypeSequence, FlowTypeMessage:
		default:
			return nil, newGraphErrorf(ErrInvalidElement, flow.SourceRef, "flow %d has unknown type %q", i, flow.Type)
		}
		flowId := flow.Id
		if flowId == "" {
			flowId = fmt.Sprintf("%s->%s#%d", flow.SourceRef, flow.TargetRef, i)
		}
		if _, ok := flowIds[flowId]; ok {
			return nil, newGraphErrorf(ErrDuplicateElementId, flowId, "multiple flows share this id")
		}
		if _, ok := g.index[flowId]; ok {
			return nil, newGraphErrorf(ErrDuplicateElementId, flowId, "a flow and a flow element share this id")
		}
		flowIds[flowId] = struct{}{}

		g.outgoing[source] = append(g.outgoing[source], Edge{
			Id:        flowId,
			Type:      flowType,
			Source:    source,
			Target:    target,
			Condition: flow.Condition,
			Order:     len(g.outgoing[source]),
		})
		g.incoming[target]++
	}

	start, ok := g.index[startId]
	if startId == "" || !ok {
		return nil, newGraphErrorf(ErrNoStartElement, startId, "the start element isn't in the graph")
	}
	if g.incoming[start] > 0 {
		return nil, newGraphErrorf(ErrInvalidStart, startId, "the start element has %d incoming flows, but it has to have 0", g.incoming[start])
	}
	g.start = start

	for key, element := range g.elements {
		if element.Kind != ElementKindGateway {
			continue
		}
		incoming, outgoing := g.incoming[key], len(g.outgoing[key])
		if element.Gateway == GatewayTypeAnd && incoming > 1 && outgoing != 1 {
			return nil, newGraphErrorf(ErrMalformedJoinGateway, element.Id,
				"the AND gateway joins %d incoming flows and has %d outgoing flows, but a join has to have exactly 1", incoming, outgoing)
		}
		if outgoing == 0 {
			return nil, newGraphErrorf(ErrInvalidElement, element.Id, "the %s gateway has no outgoing flows", element.Gateway)
		}
		if incoming == 0 && ElementKey(key) != start {
			return nil, newGraphErrorf(ErrInvalidElement, element.Id, "the %s gateway has no incoming flows and isn't the start element", element.Gateway)
		}
	}

	return &g, nil
}

func validateElement(element FlowElement) error {
	if element.Id == "" {
		return newGraphErrorf(ErrInvalidElement, "", "flow element %q has an empty id", element.Name)
	}
	switch element.Kind {
	case ElementKindActivity:
		if element.Gateway != "" {
			return newGraphErrorf(ErrInvalidElement, element.Id, "activities can't have a gateway type")
		}
	case ElementKindGateway:
		switch element.Gateway {
		case GatewayTypeAnd, GatewayTypeOr:
		default:
			return newGraphErrorf(ErrInvalidElement, element.Id, "unknown gateway type %q", element.Gateway)
		}
	default:
		return newGraphErrorf(ErrInvalidElement, element.Id, "unknown element kind %q", element.Kind)
	}
	return nil
}

// Start returns the designated start element, it has no incoming flows.
func (g *Graph) Start() ElementKey {
	return g.start
}

// Len returns the number of flow elements in the graph
func (g *Graph) Len() int {
	return len(g.elements)
}

// Element returns the flow element stored under key; it panics for keys not produced by this graph.
func (g *Graph) Element(key ElementKey) FlowElement {
	return g.elements[key]
}

// Elements returns a copy of all flow elements in arena order
func (g *Graph) Elements() []FlowElement {
	res := make([]FlowElement, len(g.elements))
	copy(res, g.elements)
	return res
}

// Lookup finds the key of the flow element with the given id
func (g *Graph) Lookup(id string) (ElementKey, bool) {
	key, ok := g.index[id]
	return key, ok
}

// OutgoingFlows returns the outgoing flows of an element in declaration order.
// The returned slice is shared and must not be modified.
func (g *Graph) OutgoingFlows(key ElementKey) []Edge {
	return g.outgoing[key]
}

// IncomingCount returns the number of flows targeting the element
func (g *Graph) IncomingCount(key ElementKey) int {
	return g.incoming[key]
}

// IsJoin reports whether the element is a gateway merging more than one incoming flow
func (g *Graph) IsJoin(key ElementKey) bool {
	return g.elements[key].Kind == ElementKindGateway && g.incoming[key] > 1
}

// IsSplit reports whether the element has more than one outgoing flow
func (g *Graph) IsSplit(key ElementKey) bool {
	return len(g.outgoing[key]) > 1
}
