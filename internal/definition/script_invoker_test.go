// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package definition

import (
	"context"
	"testing"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/script/js"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newInvoker(t *testing.T) (*ScriptInvoker, *Registry) {
	d, err := Parse([]byte(orderDefinition))
	require.NoError(t, err)
	registry := NewRegistry()
	registry.Register(d)
	return NewScriptInvoker(registry, js.NewJsRuntime(t.Context(), 2, 1)), registry
}

func TestScriptInvokerRunsActivityScript(t *testing.T) {
	// given
	invoker, _ := newInvoker(t)

	// when
	out, err := invoker.Invoke(t.Context(), bpmn.Activation{
		DefinitionId: "order",
		ElementId:    "receive",
		Variables:    map[string]any{"price": 5, "quantity": 3},
	})

	// then
	require.NoError(t, err)
	assert.EqualValues(t, 15, out["total"])
}

func TestScriptInvokerActivityWithoutScript(t *testing.T) {
	invoker, _ := newInvoker(t)

	out, err := invoker.Invoke(t.Context(), bpmn.Activation{DefinitionId: "order", ElementId: "pack"})

	assert.NoError(t, err)
	assert.Empty(t, out)
}

func TestScriptInvokerUnknownDefinition(t *testing.T) {
	invoker, _ := newInvoker(t)

	_, err := invoker.Invoke(t.Context(), bpmn.Activation{DefinitionId: "missing", ElementId: "pack"})

	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestScriptInvokerScriptError(t *testing.T) {
	// given
	d, err := Parse([]byte("id: failing\nstart: a\nelements:\n  - id: a\n    kind: ACTIVITY\n    script: throw new Error('out of stock')\n"))
	require.NoError(t, err)
	registry := NewRegistry()
	registry.Register(d)
	invoker := NewScriptInvoker(registry, js.NewJsRuntime(t.Context(), 1, 1))

	// when
	_, err = invoker.Invoke(t.Context(), bpmn.Activation{DefinitionId: "failing", ElementId: "a"})

	// then
	require.Error(t, err)
	assert.Contains(t, err.Error(), "out of stock")
}

func TestScriptInvokerDrivesEngine(t *testing.T) {
	// given
	invoker, registry := newInvoker(t)
	d, err := registry.Get("order")
	require.NoError(t, err)
	engine := bpmn.NewEngine(bpmn.EngineWithInvoker(invoker))
	t.Cleanup(engine.Stop)

	// when
	instance, err := engine.CreateAndStartInstance(t.Context(), d.Graph, map[string]any{"price": 2, "quantity": 4}, bpmn.InstanceWithDefinitionId(d.Id))
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(t.Context(), 5*time.Second)
	defer cancel()
	status, err := instance.AwaitCompletion(ctx)

	// then
	require.NoError(t, err)
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, status.State)
	assert.EqualValues(t, 8, instance.Variables()["total"])
}
