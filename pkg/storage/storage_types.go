// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storage

import (
	"errors"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

var ErrNotFound = errors.New("not found")

// ProcessInstance is the persisted snapshot of a running or finished process instance
type ProcessInstance struct {
	Key          int64                        `json:"key"`
	DefinitionId string                       `json:"definitionId,omitempty"`
	State        runtime.ProcessInstanceState `json:"state"`
	Reason       string                       `json:"reason,omitempty"`
	Variables    map[string]any               `json:"variables,omitempty"`
	CreatedAt    time.Time                    `json:"createdAt"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
}
