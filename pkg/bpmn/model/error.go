// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package model

import (
	"errors"
	"fmt"
)

var (
	ErrDanglingFlowTarget   = errors.New("dangling flow target")
	ErrNoStartElement       = errors.New("no start element")
	ErrInvalidStart         = errors.New("invalid start element")
	ErrMalformedJoinGateway = errors.New("malformed join gateway")
	ErrDuplicateElementId   = errors.New("duplicate element id")
	ErrInvalidElement       = errors.New("invalid element")
)

// GraphError is returned by Build when the given elements and flows do not form a valid graph.
// Use errors.Is with one of the Err* sentinels to find out what went wrong.
type GraphError struct {
	Kind      error
	ElementId string
	Msg       string
}

func (e *GraphError) Error() string {
	if e.ElementId != "" {
		return fmt.Sprintf("%s (element id=%q): %s", e.Kind, e.ElementId, e.Msg)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *GraphError) Unwrap() error {
	return e.Kind
}

func newGraphErrorf(kind error, elementId string, format string, a ...any) error {
	return &GraphError{
		Kind:      kind,
		ElementId: elementId,
		Msg:       fmt.Sprintf(format, a...),
	}
}
