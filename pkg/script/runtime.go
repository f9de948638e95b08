// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script

import "context"

type FeelRuntime interface {
	UnaryTest(expression string, variableContext map[string]any) (bool, error)
	Evaluate(expression string, variableContext map[string]any) (any, error)
}

type JsRuntime interface {
	RunScript(script string) (any, error)
	// RunActivityScript runs script as a function body with the variables in scope,
	// the returned object becomes the output variables.
	RunActivityScript(ctx context.Context, script string, variableContext map[string]any) (map[string]any, error)
	UnaryTest(expression string, variableContext map[string]any) (bool, error)
}
