// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package error holds the error body returned by the REST API
package error

const (
	TypeBadRequest = "BAD_REQUEST"
	TypeNotFound   = "NOT_FOUND"
	TypeConflict   = "CONFLICT"
	TypeError      = "ERROR"
)

type ApiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
}

func (e ApiError) Error() string {
	return e.Type + ": " + e.Message
}
