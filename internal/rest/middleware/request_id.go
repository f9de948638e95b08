// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package middleware

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/pbinitiative/zenflow/internal/appcontext"
)

const RequestIdHeader = "X-Request-Id"

// RequestId takes the request id from the X-Request-Id header or generates a new one.
// The id is stored in the request context and echoed in the response header.
func RequestId() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestId := r.Header.Get(RequestIdHeader)
			if requestId == "" {
				requestId = uuid.NewString()
			}
			w.Header().Set(RequestIdHeader, requestId)
			next.ServeHTTP(w, r.WithContext(appcontext.WithRequestId(r.Context(), requestId)))
		})
	}
}
