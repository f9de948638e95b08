// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package profile

import (
	"fmt"
	"os"
	"strings"
)

type ProfileType string

var Current = DEV // dev profile as default

const (
	DEV  ProfileType = "DEV"
	TEST ProfileType = "TEST"
	PROD ProfileType = "PROD"
)

// InitProfile reads the PROFILE environment variable, unknown values keep the current profile
func InitProfile() {
	Current = Parse(os.Getenv("PROFILE"), Current)
	fmt.Printf("Current profile: %s\n", Current)
}

func Parse(value string, fallback ProfileType) ProfileType {
	switch ProfileType(strings.ToUpper(strings.TrimSpace(value))) {
	case DEV:
		return DEV
	case TEST:
		return TEST
	case PROD:
		return PROD
	}
	return fallback
}
