// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"fmt"
	"runtime/debug"
)

// Activation describes one activity execution handed to the ActivityInvoker
type Activation struct {
	InstanceKey  int64
	TokenKey     int64
	DefinitionId string
	ElementId    string
	ElementName  string
	// Variables is a snapshot of the instance variables, the invoker may keep it
	Variables map[string]any
}

// ActivityInvoker runs the work behind an activity.
// Invoke may block; ctx is cancelled when the process instance ends, and a result
// returned after that is discarded. Returned variables are merged into the instance.
type ActivityInvoker interface {
	Invoke(ctx context.Context, activation Activation) (map[string]any, error)
}

type InvokerFunc func(ctx context.Context, activation Activation) (map[string]any, error)

func (f InvokerFunc) Invoke(ctx context.Context, activation Activation) (map[string]any, error) {
	return f(ctx, activation)
}

// invokeActivity calls the matching task handler, or the configured invoker, and turns panics into errors
func (engine *Engine) invokeActivity(ctx context.Context, activation Activation) (variables map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			engine.logger.Error("activity panicked", "elementId", activation.ElementId, "token", activation.TokenKey, "panic", r, "stack", string(debug.Stack()))
			variables = nil
			err = fmt.Errorf("activity panicked: %v", r)
		}
	}()
	if handler := engine.findTaskHandler(activation); handler != nil {
		return engine.runTaskHandler(ctx, handler, activation)
	}
	if engine.invoker != nil {
		return engine.invoker.Invoke(ctx, activation)
	}
	return nil, fmt.Errorf("%w %s", ErrNoActivityHandler, activation.ElementId)
}
