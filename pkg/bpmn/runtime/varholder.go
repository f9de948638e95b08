// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"maps"
	"sync"
)

// VariableHolder keeps the variables of a process instance.
// Tokens read and write it concurrently, so every access goes through the lock.
type VariableHolder struct {
	mu        sync.RWMutex
	variables map[string]any
}

// NewVariableHolder creates a VariableHolder with a copy of the given variables, nil is allowed.
func NewVariableHolder(variables map[string]any) *VariableHolder {
	vh := VariableHolder{
		variables: make(map[string]any, len(variables)),
	}
	maps.Copy(vh.variables, variables)
	return &vh
}

func (vh *VariableHolder) GetVariable(key string) any {
	vh.mu.RLock()
	defer vh.mu.RUnlock()
	return vh.variables[key]
}

func (vh *VariableHolder) SetVariable(key string, value any) {
	vh.mu.Lock()
	defer vh.mu.Unlock()
	vh.variables[key] = value
}

func (vh *VariableHolder) DeleteVariable(key string) {
	vh.mu.Lock()
	defer vh.mu.Unlock()
	delete(vh.variables, key)
}

// SetVariables merges the given variables, later writers win
func (vh *VariableHolder) SetVariables(variables map[string]any) {
	if len(variables) == 0 {
		return
	}
	vh.mu.Lock()
	defer vh.mu.Unlock()
	maps.Copy(vh.variables, variables)
}

// Variables returns a snapshot copy of all variables
func (vh *VariableHolder) Variables() map[string]any {
	vh.mu.RLock()
	defer vh.mu.RUnlock()
	return maps.Clone(vh.variables)
}
