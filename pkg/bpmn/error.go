// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateJoinArrival the same token arrived twice in one generation of an AND join
	ErrDuplicateJoinArrival = errors.New("duplicate join arrival")
	// ErrJoinGenerationSealed an arrival was registered for a generation that already fired
	ErrJoinGenerationSealed = errors.New("join generation already sealed")
	// ErrNoBranchSelected the choice policy of an OR split could not select an outgoing flow
	ErrNoBranchSelected = errors.New("no branch selected")
	// ErrStalledJoin tokens wait at an AND join, but no active token is left that could complete it
	ErrStalledJoin = errors.New("join can not be completed")

	ErrInstanceAlreadyStarted = errors.New("process instance already started")
	ErrNoActivityHandler      = errors.New("no handler for activity")
	ErrJobNotResolved         = errors.New("job was neither completed nor failed")
)

type BpmnEngineError struct {
	Msg string
}

func (e *BpmnEngineError) Error() string {
	return e.Msg
}

// newEngineErrorf uses fmt.Sprintf(format, a...) to format the message
func newEngineErrorf(format string, a ...interface{}) error {
	return &BpmnEngineError{
		Msg: fmt.Sprintf(format, a...),
	}
}

type ExpressionEvaluationError struct {
	Msg string
	Err error
}

func (e *ExpressionEvaluationError) Error() string {
	if e.Err != nil {
		return e.Msg + "\nerror: " + e.Err.Error()
	}
	return e.Msg
}

func (e *ExpressionEvaluationError) Unwrap() error {
	return e.Err
}

// ExecutionError is an engine invariant violation found while advancing a token.
// It always fails the whole process instance, regardless of the failure policy.
type ExecutionError struct {
	Kind      error
	ElementId string
	TokenKey  int64
	Err       error
}

func (e *ExecutionError) Error() string {
	msg := fmt.Sprintf("%s at element %s (token %d)", e.Kind, e.ElementId, e.TokenKey)
	if e.Err != nil {
		return msg + ": " + e.Err.Error()
	}
	return msg
}

func (e *ExecutionError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// ActivityFailure is a business failure reported by the activity invoker
type ActivityFailure struct {
	ElementId string
	TokenKey  int64
	Err       error
}

func (e *ActivityFailure) Error() string {
	return fmt.Sprintf("activity %s (token %d) failed: %s", e.ElementId, e.TokenKey, e.Err)
}

func (e *ActivityFailure) Unwrap() error {
	return e.Err
}
