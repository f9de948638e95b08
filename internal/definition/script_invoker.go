// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package definition

import (
	"context"
	"fmt"

	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/script"
)

// ScriptInvoker runs the JavaScript attached to an activity of a registered definition.
// Activities without a script complete immediately without output.
type ScriptInvoker struct {
	registry *Registry
	js       script.JsRuntime
}

var _ bpmn.ActivityInvoker = &ScriptInvoker{}

func NewScriptInvoker(registry *Registry, js script.JsRuntime) *ScriptInvoker {
	return &ScriptInvoker{
		registry: registry,
		js:       js,
	}
}

func (i *ScriptInvoker) Invoke(ctx context.Context, activation bpmn.Activation) (map[string]any, error) {
	d, err := i.registry.Get(activation.DefinitionId)
	if err != nil {
		return nil, err
	}
	source, ok := d.Script(activation.ElementId)
	if !ok {
		return nil, nil
	}
	out, err := i.js.RunActivityScript(ctx, source, activation.Variables)
	if err != nil {
		return nil, fmt.Errorf("script of activity %s failed: %w", activation.ElementId, err)
	}
	return out, nil
}
