// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"testing"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/script/feel"
	"github.com/pbinitiative/zenflow/pkg/script/js"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// priceGraph builds A -> OR split with the given flows to task-a and task-b
func priceGraph(t *testing.T, flows ...model.Flow) *model.Graph {
	return buildGraph(t,
		[]model.FlowElement{model.Activity("A", ""), model.OrGateway("price-check"), model.Activity("task-a", ""), model.Activity("task-b", "")},
		append([]model.Flow{model.SequenceFlow("A", "price-check")}, flows...),
		"A")
}

func Test_exclusive_gateway_with_expressions_selects_one_and_not_the_other(t *testing.T) {
	// setup
	cp := CallPath{}
	engine := newTestEngine(t, EngineWithInvoker(&cp), EngineWithChoicePolicy(ConditionChoice(feel.NewFeelRuntime())))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "= price > 0"),
		model.ConditionalFlow("price-check", "task-b", "= price <= 0"),
	)
	variables := map[string]any{
		"price": float64(-50),
	}

	// when
	_, status := runInstance(t, engine, graph, variables)

	// then
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, status.State)
	assert.Equal(t, "A,task-b", cp.String())
}

func Test_exclusive_gateway_with_expressions_selects_default(t *testing.T) {
	// setup
	cp := CallPath{}
	engine := newTestEngine(t, EngineWithInvoker(&cp), EngineWithChoicePolicy(ConditionChoice(feel.NewFeelRuntime())))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "= price > 0"),
		model.SequenceFlow("price-check", "task-b"),
	)
	variables := map[string]any{
		"price": float64(-1),
	}

	// when
	_, status := runInstance(t, engine, graph, variables)

	// then
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, status.State)
	assert.Equal(t, "A,task-b", cp.String())
}

func Test_exclusive_gateway_uses_activity_output(t *testing.T) {
	// setup
	cp := CallPath{}
	engine := newTestEngine(t,
		EngineWithChoicePolicy(ConditionChoice(feel.NewFeelRuntime())),
		EngineWithInvoker(InvokerFunc(func(ctx context.Context, activation Activation) (map[string]any, error) {
			cp.record(activation.ElementId)
			if activation.ElementId == "A" {
				return map[string]any{"price": float64(10)}, nil
			}
			return nil, nil
		})))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "= price > 0"),
		model.SequenceFlow("price-check", "task-b"),
	)

	// when
	_, status := runInstance(t, engine, graph, nil)

	// then
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, status.State)
	assert.Equal(t, "A,task-a", cp.String())
}

func Test_exclusive_gateway_executes_just_no_matching_no_default_error_thrown(t *testing.T) {
	// setup
	cp := CallPath{}
	engine := newTestEngine(t, EngineWithInvoker(&cp), EngineWithChoicePolicy(ConditionChoice(feel.NewFeelRuntime())))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "= price > 100"),
		model.ConditionalFlow("price-check", "task-b", "= price > 200"),
	)

	// when
	instance, status := runInstance(t, engine, graph, map[string]any{"price": float64(1)})

	// then
	assert.Equal(t, runtime.ProcessInstanceStateFailed, status.State)
	assert.ErrorIs(t, status.Reason, ErrNoBranchSelected)
	var evalErr *ExpressionEvaluationError
	assert.ErrorAs(t, status.Reason, &evalErr)
	assert.Equal(t, "A", cp.String())
	token := tokenAt(t, instance, "price-check")
	assert.Equal(t, runtime.TokenSubStateFailed, token.SubState)
}

func Test_evaluation_error_percolates_up(t *testing.T) {
	// setup
	engine := newTestEngine(t, EngineWithInvoker(&CallPath{}), EngineWithChoicePolicy(ConditionChoice(feel.NewFeelRuntime())))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "= price >"),
		model.SequenceFlow("price-check", "task-b"),
	)

	// when
	_, status := runInstance(t, engine, graph, map[string]any{"price": float64(1)})

	// then
	assert.Equal(t, runtime.ProcessInstanceStateFailed, status.State)
	var evalErr *ExpressionEvaluationError
	require.ErrorAs(t, status.Reason, &evalErr)
	assert.Contains(t, evalErr.Msg, "price-check")
}

func Test_exclusive_gateway_with_javascript_conditions(t *testing.T) {
	// setup
	cp := CallPath{}
	runtimeJs := js.NewJsRuntime(t.Context(), 2, 1)
	engine := newTestEngine(t, EngineWithInvoker(&cp), EngineWithChoicePolicy(ConditionChoice(runtimeJs)))

	// given
	graph := priceGraph(t,
		model.ConditionalFlow("price-check", "task-a", "price > 100 && customer === 'vip'"),
		model.SequenceFlow("price-check", "task-b"),
	)

	// when
	_, status := runInstance(t, engine, graph, map[string]any{"price": 150, "customer": "vip"})

	// then
	assert.Equal(t, runtime.ProcessInstanceStateCompleted, status.State)
	assert.Equal(t, "A,task-a", cp.String())
}

func Test_choice_policy_returning_foreign_flow_fails(t *testing.T) {
	// setup
	foreign := ChoicePolicyFunc(func(ctx context.Context, choice Choice) (model.Edge, error) {
		return model.Edge{Id: "somewhere-else"}, nil
	})
	engine := newTestEngine(t, EngineWithInvoker(&CallPath{}), EngineWithChoicePolicy(foreign))

	// when
	_, status := runInstance(t, engine, priceGraph(t,
		model.SequenceFlow("price-check", "task-a"),
		model.SequenceFlow("price-check", "task-b"),
	), nil)

	// then
	assert.Equal(t, runtime.ProcessInstanceStateFailed, status.State)
	assert.ErrorIs(t, status.Reason, ErrNoBranchSelected)
}

func Test_choice_policy_error_fails_instance(t *testing.T) {
	// setup
	policyErr := errors.New("no route")
	failing := ChoicePolicyFunc(func(ctx context.Context, choice Choice) (model.Edge, error) {
		assert.Len(t, choice.Flows, 2)
		assert.Equal(t, "price-check", choice.Gateway.Id)
		return model.Edge{}, policyErr
	})
	engine := newTestEngine(t, EngineWithInvoker(&CallPath{}), EngineWithChoicePolicy(failing))

	// when
	_, status := runInstance(t, engine, priceGraph(t,
		model.SequenceFlow("price-check", "task-a"),
		model.SequenceFlow("price-check", "task-b"),
	), nil)

	// then
	assert.ErrorIs(t, status.Reason, ErrNoBranchSelected)
	assert.ErrorIs(t, status.Reason, policyErr)
}

func Test_boolean_expression_evaluates(t *testing.T) {
	variables := map[string]any{
		"aValue": float64(3),
	}

	result, err := feel.NewFeelRuntime().UnaryTest("aValue > 1", variables)

	assert.Nil(t, err)
	assert.True(t, result)
}

func Test_boolean_expression_with_equal_sign_evaluates(t *testing.T) {
	variables := map[string]any{
		"aValue": float64(3),
	}

	result, err := feel.NewFeelRuntime().UnaryTest("= aValue > 1", variables)

	assert.Nil(t, err)
	assert.True(t, result)
}

func Test_condition_flows_are_evaluated_in_declaration_order(t *testing.T) {
	// given
	flows := []model.Edge{
		{Id: "default"},
		{Id: "second", Condition: "= x > 1"},
		{Id: "third", Condition: "= x > 0"},
	}

	// when
	flow, err := exclusivelyFilterByConditionExpression(model.OrGateway("g"), flows, feel.NewFeelRuntime(), map[string]any{"x": float64(5)})

	// then
	require.NoError(t, err)
	assert.Equal(t, "second", flow.Id)
}
