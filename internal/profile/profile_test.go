// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package profile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	assert.Equal(t, PROD, Parse("prod", DEV))
	assert.Equal(t, TEST, Parse(" Test ", DEV))
	assert.Equal(t, DEV, Parse("", DEV))
	assert.Equal(t, TEST, Parse("staging", TEST))
}
