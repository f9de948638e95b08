// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package appcontext

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRequestId(t *testing.T) {
	ctx := WithRequestId(context.Background(), "abc")

	valFromCtx, found := RequestIdFromContext(ctx)
	assert.True(t, found)
	assert.Equal(t, "abc", valFromCtx)

	valFromCtx, found = RequestIdFromContext(context.Background())
	assert.False(t, found)
	assert.Equal(t, "", valFromCtx)
}

func TestInstanceKey(t *testing.T) {
	ctx := WithInstanceKey(context.Background(), 7)

	valFromCtx, found := InstanceKeyFromContext(ctx)
	assert.True(t, found)
	assert.Equal(t, int64(7), valFromCtx)

	_, found = InstanceKeyFromContext(context.Background())
	assert.False(t, found)
}
