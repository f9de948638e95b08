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
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
)

// Choice is the decision an OR split asks its ChoicePolicy to make
type Choice struct {
	InstanceKey int64
	TokenKey    int64
	Gateway     model.FlowElement
	// Flows are the outgoing flows of the gateway in declaration order, there are always at least two
	Flows     []model.Edge
	Variables map[string]any
}

// ChoicePolicy selects exactly one outgoing flow of an OR split
type ChoicePolicy interface {
	Choose(ctx context.Context, choice Choice) (model.Edge, error)
}

type ChoicePolicyFunc func(ctx context.Context, choice Choice) (model.Edge, error)

func (f ChoicePolicyFunc) Choose(ctx context.Context, choice Choice) (model.Edge, error) {
	return f(ctx, choice)
}

// FirstDeclaredChoice always takes the first outgoing flow in declaration order.
// It ignores conditions, which keeps executions reproducible in tests.
var FirstDeclaredChoice ChoicePolicy = ChoicePolicyFunc(func(ctx context.Context, choice Choice) (model.Edge, error) {
	return choice.Flows[0], nil
})

// ConditionEvaluator evaluates a flow condition against the instance variables
type ConditionEvaluator interface {
	UnaryTest(expression string, variableContext map[string]any) (bool, error)
}

// ConditionChoice returns a ChoicePolicy that evaluates flow conditions with the given evaluator
func ConditionChoice(evaluator ConditionEvaluator) ChoicePolicy {
	return ChoicePolicyFunc(func(ctx context.Context, choice Choice) (model.Edge, error) {
		return exclusivelyFilterByConditionExpression(choice.Gateway, choice.Flows, evaluator, choice.Variables)
	})
}

// exclusivelyFilterByConditionExpression
// [From BPMN 2.0 Specification, chapter 10.5.2 Exclusive Gateway]
// A diverging Exclusive Gateway (Decision) is used to create alternative paths within a Process flow. For a given
// instance of the Process, only one of the paths can be taken.
// A default path can optionally be identified, to be taken in the event that none of the conditional Expressions evaluate
// to true. If a default path is not specified and the Process is executed such that none of the conditional Expressions
// evaluates to true, a runtime exception occurs.
//
// Conditional flows are evaluated in declaration order and the first one evaluating to true is taken.
// The first flow without a condition acts as the default path.
func exclusivelyFilterByConditionExpression(gateway model.FlowElement, flows []model.Edge, evaluator ConditionEvaluator, variableContext map[string]any) (model.Edge, error) {
	var defaultFlow *model.Edge
	flowIds := strings.Builder{}
	for i, flow := range flows {
		expression := flow.GetConditionExpression()
		if expression == "" {
			if defaultFlow == nil {
				defaultFlow = &flows[i]
			}
			continue
		}
		flowIds.WriteString(fmt.Sprintf("[id='%s']", flow.GetId()))
		out, err := evaluator.UnaryTest(expression, variableContext)
		if err != nil {
			return model.Edge{}, &ExpressionEvaluationError{
				Msg: fmt.Sprintf("Error evaluating expression in flow element id='%s' of gateway id='%s'", flow.GetId(), gateway.GetId()),
				Err: err,
			}
		}
		if out {
			return flow, nil
		}
	}
	if defaultFlow == nil {
		return model.Edge{}, &ExpressionEvaluationError{
			Msg: fmt.Sprintf("No default flow, nor matching expressions found, for flow elements: %s", flowIds.String()),
			Err: nil,
		}
	}
	return *defaultFlow, nil
}
