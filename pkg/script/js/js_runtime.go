// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package js

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/pbinitiative/zenflow/pkg/script"
)

type JsRuntime struct {
	pool *script.RunnerPool[*JsRunner]
}

var _ script.JsRuntime = &JsRuntime{}

func NewJsRuntime(ctx context.Context, maxVmPoolSize int, minVmPoolSize int) *JsRuntime {
	return &JsRuntime{
		pool: script.NewRunnerPool(ctx, newJsRunner, maxVmPoolSize, minVmPoolSize),
	}
}

func (r *JsRuntime) RunScript(script string) (any, error) {
	runner, err := r.pool.Acquire(context.Background())
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(runner)

	resp, err := runner.runScript(script)
	if err != nil {
		return nil, err
	}
	return resp.Export(), nil
}

// RunActivityScript implements script.JsRuntime.
// The script may read every variable by its name and returns an object with the output variables, or nothing.
func (r *JsRuntime) RunActivityScript(ctx context.Context, script string, variableContext map[string]any) (map[string]any, error) {
	jsRunner, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer r.pool.Release(jsRunner)

	stop := context.AfterFunc(ctx, func() {
		jsRunner.vm.Interrupt(ctx.Err())
	})
	defer func() {
		stop()
		jsRunner.vm.ClearInterrupt()
	}()

	resp, err := jsRunner.runWithVariables("(function(){\n"+script+"\n})()", variableContext)
	if err != nil {
		return nil, err
	}
	if resp == nil || goja.IsUndefined(resp) || goja.IsNull(resp) {
		return map[string]any{}, nil
	}
	out, ok := resp.Export().(map[string]any)
	if !ok {
		return nil, fmt.Errorf("activity script has to return an object, got %T", resp.Export())
	}
	return out, nil
}

// UnaryTest evaluates expression as a javascript condition with the variables in scope
func (r *JsRuntime) UnaryTest(expression string, variableContext map[string]any) (bool, error) {
	runner, err := r.pool.Acquire(context.Background())
	if err != nil {
		return false, err
	}
	defer r.pool.Release(runner)

	resp, err := runner.runWithVariables("("+expression+")", variableContext)
	if err != nil {
		return false, err
	}
	res, ok := resp.Export().(bool)
	if !ok {
		return false, fmt.Errorf("expression \"%s\" did not evaluate to a boolean, got %T", expression, resp.Export())
	}
	return res, nil
}

type JsRunner struct {
	vm *goja.Runtime
}

func (r *JsRunner) Runner() {}

func newJsRunner() *JsRunner {
	r := JsRunner{vm: goja.New()}
	return &r
}

func (r *JsRunner) runScript(script string) (goja.Value, error) {
	resp, err := r.vm.RunString(script)
	if err != nil {
		return resp, fmt.Errorf("error running script \"%s\" : %w", script, err)
	}
	return resp, nil
}

// runWithVariables exposes the variables as globals for a single run, runners are reused so they are removed afterward
func (r *JsRunner) runWithVariables(script string, variableContext map[string]any) (goja.Value, error) {
	global := r.vm.GlobalObject()
	defer func() {
		for name := range variableContext {
			global.Delete(name)
		}
	}()
	for name, value := range variableContext {
		if err := r.vm.Set(name, value); err != nil {
			return nil, fmt.Errorf("failed to set variable %s: %w", name, err)
		}
	}
	return r.runScript(script)
}
