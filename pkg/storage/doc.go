// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package storage contains the snapshot types and interfaces persistence layers implement.
// The engine writes the instance snapshot and every changed token after each transition,
// so a store always holds the last observable state of an instance.
//
// Implementations must:
//   - return ErrNotFound if the method is looking for one exact item and it is not found
//   - return an empty slice for methods that can return multiple results and no result is found
package storage
