// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package exporter

// EventExporter receives the events of every process instance of an engine.
// Events of one instance are delivered in order, from one goroutine at a time.
type EventExporter interface {
	NewProcessInstanceEvent(event *ProcessInstanceEvent)
	EndProcessEvent(event *ProcessInstanceEvent)
	NewElementEvent(event *ProcessInstanceEvent, elementInfo *ElementInfo)
}

type Intent string

const (
	ElementActivated  Intent = "ELEMENT_ACTIVATED"
	ElementCompleted  Intent = "ELEMENT_COMPLETED"
	ElementFailed     Intent = "ELEMENT_FAILED"
	SequenceFlowTaken Intent = "SEQUENCE_FLOW_TAKEN"
	TokenForked       Intent = "TOKEN_FORKED"
	TokenWaiting      Intent = "TOKEN_WAITING"
	TokenJoined       Intent = "TOKEN_JOINED"
	TokenMerged       Intent = "TOKEN_MERGED"
	TokenTerminated   Intent = "TOKEN_TERMINATED"
	Created           Intent = "CREATED"
)

type ProcessInstanceEvent struct {
	ProcessId          string
	ProcessInstanceKey int64
	TokenKey           int64
	// State of the process instance when the event was produced
	State string
	// Reason is set on EndProcessEvent when the instance failed
	Reason string
}

type ElementInfo struct {
	ElementKind string
	ElementId   string
	ElementKey  int64
	Intent      string // ELEMENT_ACTIVATED || ELEMENT_COMPLETED || SEQUENCE_FLOW_TAKEN || TOKEN_*
}
