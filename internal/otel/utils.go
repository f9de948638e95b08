// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package otel

import (
	"go.opentelemetry.io/otel/attribute"
)

const (
	// WroteBytesKey is the total number of bytes written to the response, set when anything was written
	WroteBytesKey = attribute.Key("http.wrote_bytes")

	AttributeRequestId = "http.request_id"
)

// TransferHeaderKey is the context key of a configured transfer header
type TransferHeaderKey string
