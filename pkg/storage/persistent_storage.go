// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package storage

import (
	"context"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
)

// Storage interface for reading and writing instance snapshots into a (persistent) state.
// The engine writes a snapshot after every token transition, so the store always reflects
// the latest observable state of each instance.
//
// Methods that are expected to return exactly one match MUST return ErrNotFound when the result does not exist
type Storage interface {
	ProcessInstanceStorageReader
	ProcessInstanceStorageWriter
	TokenStorageReader
	TokenStorageWriter

	GenerateId() int64
	NewBatch() Batch
}

type Batch interface {
	ProcessInstanceStorageWriter
	TokenStorageWriter

	// Flush will write the batch into the storage and prepares the batch for new statements
	Flush(ctx context.Context) error
}

type ProcessInstanceStorageReader interface {
	FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (ProcessInstance, error)
	// FindProcessInstancesByState returns instances in any of the given states, all instances when no state is given.
	// Result is ordered by key.
	FindProcessInstancesByState(ctx context.Context, states ...runtime.ProcessInstanceState) ([]ProcessInstance, error)
}

type ProcessInstanceStorageWriter interface {
	// SaveProcessInstance persists the instance
	// and potentially overwrites prior data stored with given process instance key
	SaveProcessInstance(ctx context.Context, processInstance ProcessInstance) error
}

type TokenStorageReader interface {
	// GetLiveTokens returns the Active and WaitingAtJoin tokens of all instances
	GetLiveTokens(ctx context.Context) ([]runtime.Token, error)
	// GetTokensForProcessInstance returns every token ever created for the instance, ordered by key
	GetTokensForProcessInstance(ctx context.Context, processInstanceKey int64) ([]runtime.Token, error)
}

type TokenStorageWriter interface {
	// SaveToken persists the token
	// and potentially overwrites prior data stored with given token key
	SaveToken(ctx context.Context, token runtime.Token) error
}
