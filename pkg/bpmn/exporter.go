// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"github.com/pbinitiative/zenflow/pkg/bpmn/exporter"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// AddEventExporter registers an EventExporter instance, it must be called before instances are created
func (engine *Engine) AddEventExporter(exporter exporter.EventExporter) {
	engine.exporters = append(engine.exporters, exporter)
}

func (pi *ProcessInstance) exportLocked(event func(exp exporter.EventExporter)) {
	if len(pi.engine.exporters) == 0 {
		return
	}
	pi.pending = append(pi.pending, event)
}

func (pi *ProcessInstance) exportTokenLocked(token *runtime.Token, elementId string, intent exporter.Intent) {
	kind := "SEQUENCE_FLOW"
	if key, ok := pi.graph.Lookup(elementId); ok {
		kind = string(pi.graph.Element(key).Kind)
	}
	event := exporter.ProcessInstanceEvent{
		ProcessId:          pi.definitionId,
		ProcessInstanceKey: pi.key,
		TokenKey:           token.Key,
		State:              string(pi.state),
	}
	info := exporter.ElementInfo{
		ElementKind: kind,
		ElementId:   elementId,
		ElementKey:  token.Key,
		Intent:      string(intent),
	}
	pi.exportLocked(func(exp exporter.EventExporter) {
		exp.NewElementEvent(&event, &info)
	})
}
