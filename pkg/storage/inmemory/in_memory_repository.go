// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package inmemory

import (
	"cmp"
	"context"
	"maps"
	"math/rand"
	"slices"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

// Storage keeps process information in memory,
// please use NewStorage to create a new object of this type.
type Storage struct {
	mu               sync.RWMutex
	ProcessInstances map[int64]storage.ProcessInstance
	Tokens           map[int64]runtime.Token
}

func (mem *Storage) GenerateId() int64 {
	return rand.Int63()
}

func NewStorage() *Storage {
	return &Storage{
		ProcessInstances: make(map[int64]storage.ProcessInstance),
		Tokens:           make(map[int64]runtime.Token),
	}
}

var _ storage.Storage = &Storage{}

func (mem *Storage) NewBatch() storage.Batch {
	return &StorageBatch{
		db:        mem,
		stmtToRun: make([]func(), 0, 10),
	}
}

var _ storage.ProcessInstanceStorageReader = &Storage{}

func (mem *Storage) FindProcessInstanceByKey(ctx context.Context, processInstanceKey int64) (storage.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res, ok := mem.ProcessInstances[processInstanceKey]
	if !ok {
		return res, storage.ErrNotFound
	}
	res.Variables = maps.Clone(res.Variables)
	return res, nil
}

func (mem *Storage) FindProcessInstancesByState(ctx context.Context, states ...runtime.ProcessInstanceState) ([]storage.ProcessInstance, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]storage.ProcessInstance, 0)
	for _, instance := range mem.ProcessInstances {
		if len(states) > 0 && !slices.Contains(states, instance.State) {
			continue
		}
		instance.Variables = maps.Clone(instance.Variables)
		res = append(res, instance)
	}
	slices.SortFunc(res, func(a, b storage.ProcessInstance) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return res, nil
}

var _ storage.ProcessInstanceStorageWriter = &Storage{}

func (mem *Storage) SaveProcessInstance(ctx context.Context, processInstance storage.ProcessInstance) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.saveProcessInstance(processInstance)
	return nil
}

func (mem *Storage) saveProcessInstance(processInstance storage.ProcessInstance) {
	processInstance.Variables = maps.Clone(processInstance.Variables)
	mem.ProcessInstances[processInstance.Key] = processInstance
}

var _ storage.TokenStorageReader = &Storage{}

// GetTokensForProcessInstance implements storage.TokenStorageReader.
func (mem *Storage) GetTokensForProcessInstance(ctx context.Context, processInstanceKey int64) ([]runtime.Token, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	res := make([]runtime.Token, 0)
	for _, tok := range mem.Tokens {
		if tok.InstanceKey == processInstanceKey {
			res = append(res, tok.Clone())
		}
	}
	slices.SortFunc(res, func(a, b runtime.Token) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return res, nil
}

// GetLiveTokens implements storage.TokenStorageReader.
func (mem *Storage) GetLiveTokens(ctx context.Context) ([]runtime.Token, error) {
	mem.mu.RLock()
	defer mem.mu.RUnlock()
	liveTokens := make([]runtime.Token, 0)
	for _, token := range mem.Tokens {
		if token.State.IsLive() {
			liveTokens = append(liveTokens, token.Clone())
		}
	}
	return liveTokens, nil
}

var _ storage.TokenStorageWriter = &Storage{}

// SaveToken implements storage.TokenStorageWriter.
func (mem *Storage) SaveToken(ctx context.Context, token runtime.Token) error {
	mem.mu.Lock()
	defer mem.mu.Unlock()
	mem.Tokens[token.Key] = token.Clone()
	return nil
}

// StorageBatch collects writes and applies them under a single lock on Flush
type StorageBatch struct {
	db        *Storage
	stmtToRun []func()
}

var _ storage.Batch = &StorageBatch{}

func (b *StorageBatch) Flush(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, stmt := range b.stmtToRun {
		stmt()
	}
	b.stmtToRun = make([]func(), 0)
	return nil
}

var _ storage.ProcessInstanceStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveProcessInstance(ctx context.Context, processInstance storage.ProcessInstance) error {
	processInstance.Variables = maps.Clone(processInstance.Variables)
	b.stmtToRun = append(b.stmtToRun, func() {
		b.db.saveProcessInstance(processInstance)
	})
	return nil
}

var _ storage.TokenStorageWriter = &StorageBatch{}

func (b *StorageBatch) SaveToken(ctx context.Context, token runtime.Token) error {
	token = token.Clone()
	b.stmtToRun = append(b.stmtToRun, func() {
		b.db.Tokens[token.Key] = token
	})
	return nil
}
