// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package appcontext

import (
	"context"
)

type EXECUTION_CONTEXT string

var (
	RequestIdKey   EXECUTION_CONTEXT = "requestId"
	InstanceKeyKey EXECUTION_CONTEXT = "instanceKey"
)

// WithRequestId stores the id of the REST request that triggered the work
func WithRequestId(ctx context.Context, requestId string) context.Context {
	return context.WithValue(ctx, RequestIdKey, requestId)
}

func RequestIdFromContext(ctx context.Context) (string, bool) {
	requestId, ok := ctx.Value(RequestIdKey).(string)
	return requestId, ok && requestId != ""
}

// WithInstanceKey stores the key of the process instance the work belongs to
func WithInstanceKey(ctx context.Context, instanceKey int64) context.Context {
	return context.WithValue(ctx, InstanceKeyKey, instanceKey)
}

func InstanceKeyFromContext(ctx context.Context) (int64, bool) {
	instanceKey, ok := ctx.Value(InstanceKeyKey).(int64)
	return instanceKey, ok
}
