// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package feel

import (
	"fmt"
	"strings"

	"github.com/pbinitiative/feel"
	"github.com/pbinitiative/zenflow/pkg/script"
)

// FeelRuntime evaluates FEEL expressions, the interpreter keeps no state between calls so no runner pool is needed
type FeelRuntime struct {
}

var _ script.FeelRuntime = &FeelRuntime{}

func NewFeelRuntime() *FeelRuntime {
	return &FeelRuntime{}
}

// UnaryTest evaluates the expression and requires a boolean result.
// A leading '=' as used in condition expressions of BPMN modelers is ignored.
func (r *FeelRuntime) UnaryTest(expression string, variableContext map[string]any) (bool, error) {
	res, err := r.Evaluate(expression, variableContext)
	if err != nil {
		return false, err
	}
	b, ok := res.(bool)
	if !ok {
		return false, fmt.Errorf("expression \"%s\" did not evaluate to a boolean, got %T", expression, res)
	}
	return b, nil
}

func (r *FeelRuntime) Evaluate(expression string, variableContext map[string]any) (any, error) {
	expression = strings.TrimPrefix(strings.TrimSpace(expression), "=")
	if variableContext == nil {
		variableContext = map[string]any{}
	}
	res, err := feel.EvalStringWithScope(expression, variableContext)
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate feel expression \"%s\": %w", expression, err)
	}
	return res, nil
}
