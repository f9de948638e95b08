// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

type ElementKind string
type GatewayType string
type FlowType string

const (
	ElementKindActivity ElementKind = "ACTIVITY"
	ElementKindGateway  ElementKind = "GATEWAY"

	// GatewayTypeAnd forks into all outgoing flows and synchronizes all incoming flows
	GatewayTypeAnd GatewayType = "AND"
	// GatewayTypeOr chooses exactly one outgoing flow and merges incoming flows without synchronization
	GatewayTypeOr GatewayType = "OR"

	FlowTypeSequence FlowType = "SEQUENCE"
	// FlowTypeMessage is a cross participant signal, unconditional for control flow
	FlowTypeMessage FlowType = "MESSAGE"
)

// ElementKey addresses a FlowElement inside the arena of one Graph.
// Keys are dense, starting at 0, in the order elements were given to Build.
type ElementKey int

// FlowElement is a node of the process graph: either an activity or a gateway.
// The Id has to be unique within a graph, the Name is informational and may repeat.
type FlowElement struct {
	Id      string      `json:"id" yaml:"id"`
	Name    string      `json:"name,omitempty" yaml:"name,omitempty"`
	Kind    ElementKind `json:"kind" yaml:"kind"`
	Gateway GatewayType `json:"gateway,omitempty" yaml:"gateway,omitempty"`
}

func (e FlowElement) GetId() string {
	return e.Id
}

func (e FlowElement) GetName() string {
	return e.Name
}

func (e FlowElement) IsActivity() bool {
	return e.Kind == ElementKindActivity
}

func (e FlowElement) IsGateway() bool {
	return e.Kind == ElementKindGateway
}

// Activity creates an activity element
func Activity(id string, name string) FlowElement {
	return FlowElement{Id: id, Name: name, Kind: ElementKindActivity}
}

// AndGateway creates a parallel gateway element
func AndGateway(id string) FlowElement {
	return FlowElement{Id: id, Kind: ElementKindGateway, Gateway: GatewayTypeAnd}
}

// OrGateway creates an exclusive gateway element
func OrGateway(id string) FlowElement {
	return FlowElement{Id: id, Kind: ElementKindGateway, Gateway: GatewayTypeOr}
}

// Flow is the caller supplied description of a directed edge between two elements,
// referenced by their ids. Condition is optional and only read by condition based choice policies.
type Flow struct {
	Id        string   `json:"id,omitempty" yaml:"id,omitempty"`
	Type      FlowType `json:"type,omitempty" yaml:"type,omitempty"`
	SourceRef string   `json:"source" yaml:"source"`
	TargetRef string   `json:"target" yaml:"target"`
	Condition string   `json:"condition,omitempty" yaml:"condition,omitempty"`
}

// SequenceFlow creates an unconditional sequence flow
func SequenceFlow(source string, target string) Flow {
	return Flow{Type: FlowTypeSequence, SourceRef: source, TargetRef: target}
}

// MessageFlow creates a message flow
func MessageFlow(source string, target string) Flow {
	return Flow{Type: FlowTypeMessage, SourceRef: source, TargetRef: target}
}

// ConditionalFlow creates a sequence flow guarded by an expression
func ConditionalFlow(source string, target string, condition string) Flow {
	return Flow{Type: FlowTypeSequence, SourceRef: source, TargetRef: target, Condition: condition}
}

// Edge is a Flow resolved against the arena of a Graph.
type Edge struct {
	Id        string
	Type      FlowType
	Source    ElementKey
	Target    ElementKey
	Condition string
	// Order is the declaration order of the flow among the outgoing flows of its source
	Order int
}

func (e Edge) GetId() string {
	return e.Id
}

func (e Edge) GetConditionExpression() string {
	return e.Condition
}
