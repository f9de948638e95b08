// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package exporter

import (
	"fmt"
	"sync"
)

// RecordingExporter keeps every event in memory, it is meant for tests and debugging
type RecordingExporter struct {
	mu     sync.Mutex
	events []string
}

var _ EventExporter = &RecordingExporter{}

func (r *RecordingExporter) NewProcessInstanceEvent(event *ProcessInstanceEvent) {
	r.record(fmt.Sprintf("%d:%s", event.ProcessInstanceKey, Created))
}

func (r *RecordingExporter) EndProcessEvent(event *ProcessInstanceEvent) {
	r.record(fmt.Sprintf("%d:%s", event.ProcessInstanceKey, event.State))
}

func (r *RecordingExporter) NewElementEvent(event *ProcessInstanceEvent, elementInfo *ElementInfo) {
	r.record(fmt.Sprintf("%d:%s:%s", event.ProcessInstanceKey, elementInfo.ElementId, elementInfo.Intent))
}

func (r *RecordingExporter) record(event string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events in delivery order
func (r *RecordingExporter) Events() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	res := make([]string, len(r.events))
	copy(res, r.events)
	return res
}
