// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package storagetest is a conformance suite every storage.Storage implementation has to pass.
package storagetest

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	stdruntime "runtime"

	bpmnruntime "github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
	"github.com/stretchr/testify/assert"
)

type StorageTestFunc func(s storage.Storage, t *testing.T) func(t *testing.T)

type StorageTester struct {
	processInstance storage.ProcessInstance
}

func (st *StorageTester) GetTests() map[string]StorageTestFunc {
	tests := map[string]StorageTestFunc{}

	// all test functions need to be registered here
	functions := []StorageTestFunc{
		st.TestProcessInstanceStorageWriter,
		st.TestProcessInstanceStorageReader,
		st.TestProcessInstanceNotFound,
		st.TestTokenStorageWriter,
		st.TestTokenStorageReader,
		st.TestBatchWriter,
	}

	for _, function := range functions {
		funcName := getFunctionName(function)
		strippedName := funcName[strings.LastIndex(funcName, ".")+1:]
		strippedName = strings.TrimSuffix(strippedName, "-fm")
		tests[strippedName] = function
	}
	return tests
}

func getFunctionName(i any) string {
	return stdruntime.FuncForPC(reflect.ValueOf(i).Pointer()).Name()
}

func getProcessInstance(r int64) storage.ProcessInstance {
	return storage.ProcessInstance{
		Key:          r,
		DefinitionId: fmt.Sprintf("definition-%d", r),
		State:        bpmnruntime.ProcessInstanceStateRunning,
		Variables:    map[string]any{"amount": 42.0},
		CreatedAt:    time.Now().Truncate(time.Millisecond),
		UpdatedAt:    time.Now().Truncate(time.Millisecond),
	}
}

func (st *StorageTester) PrepareTestData(s storage.Storage, t *testing.T) {
	r := s.GenerateId()

	st.processInstance = getProcessInstance(r)
	err := s.SaveProcessInstance(t.Context(), st.processInstance)
	assert.NoError(t, err)
}

func (st *StorageTester) TestProcessInstanceStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		instance := getProcessInstance(r)
		err := s.SaveProcessInstance(t.Context(), instance)
		assert.NoError(t, err)

		instance.State = bpmnruntime.ProcessInstanceStateFailed
		instance.Reason = "activity a failed"
		err = s.SaveProcessInstance(t.Context(), instance)
		assert.NoError(t, err)

		stored, err := s.FindProcessInstanceByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, bpmnruntime.ProcessInstanceStateFailed, stored.State)
		assert.Equal(t, "activity a failed", stored.Reason)
	}
}

func (st *StorageTester) TestProcessInstanceStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		instance, err := s.FindProcessInstanceByKey(t.Context(), st.processInstance.Key)
		assert.NoError(t, err)
		assert.Equal(t, st.processInstance.Key, instance.Key)
		assert.Equal(t, st.processInstance.DefinitionId, instance.DefinitionId)
		assert.Equal(t, st.processInstance.Variables, instance.Variables)

		running, err := s.FindProcessInstancesByState(t.Context(), bpmnruntime.ProcessInstanceStateRunning)
		assert.NoError(t, err)
		found := false
		for _, pi := range running {
			assert.Equal(t, bpmnruntime.ProcessInstanceStateRunning, pi.State)
			if pi.Key == st.processInstance.Key {
				found = true
			}
		}
		assert.True(t, found, "expected to find prepared instance among running instances")

		all, err := s.FindProcessInstancesByState(t.Context())
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, len(all), len(running))
	}
}

func (st *StorageTester) TestProcessInstanceNotFound(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		_, err := s.FindProcessInstanceByKey(t.Context(), -1)
		assert.True(t, errors.Is(err, storage.ErrNotFound))

		tokens, err := s.GetTokensForProcessInstance(t.Context(), -1)
		assert.NoError(t, err)
		assert.NotNil(t, tokens)
		assert.Empty(t, tokens)
	}
}

func (st *StorageTester) TestTokenStorageWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		token := bpmnruntime.Token{
			Key:         r,
			InstanceKey: st.processInstance.Key,
			ElementId:   "test-elem",
			State:       bpmnruntime.TokenStateWaitingAtJoin,
			Scopes:      []int64{1, 2},
		}

		err := s.SaveToken(t.Context(), token)
		assert.Nil(t, err)
	}
}

func (st *StorageTester) TestTokenStorageReader(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()

		token := bpmnruntime.Token{
			Key:         r,
			InstanceKey: st.processInstance.Key,
			ElementId:   "test-elem",
			State:       bpmnruntime.TokenStateActive,
		}

		err := s.SaveToken(t.Context(), token)
		assert.Nil(t, err)

		tokens, err := s.GetLiveTokens(t.Context())
		assert.Nil(t, err)

		matched := false
		for _, tok := range tokens {
			assert.True(t, tok.State.IsLive())
			if tok.Key == token.Key {
				matched = true
			}
		}
		assert.True(t, matched, "expected to find created token among live tokens")

		token.State = bpmnruntime.TokenStateCompleted
		token.SubState = bpmnruntime.TokenSubStateEnd
		err = s.SaveToken(t.Context(), token)
		assert.Nil(t, err)

		instanceTokens, err := s.GetTokensForProcessInstance(t.Context(), st.processInstance.Key)
		assert.Nil(t, err)
		matched = false
		for _, tok := range instanceTokens {
			assert.Equal(t, st.processInstance.Key, tok.InstanceKey)
			if tok.Key == token.Key {
				matched = true
				assert.Equal(t, bpmnruntime.TokenStateCompleted, tok.State)
				assert.Equal(t, bpmnruntime.TokenSubStateEnd, tok.SubState)
			}
		}
		assert.True(t, matched, "expected to find created token among instance tokens")
	}
}

func (st *StorageTester) TestBatchWriter(s storage.Storage, t *testing.T) func(t *testing.T) {
	return func(t *testing.T) {
		r := s.GenerateId()
		instance := getProcessInstance(r)
		token := bpmnruntime.Token{
			Key:         s.GenerateId(),
			InstanceKey: r,
			ElementId:   "batched",
			State:       bpmnruntime.TokenStateActive,
		}

		batch := s.NewBatch()
		assert.NoError(t, batch.SaveProcessInstance(t.Context(), instance))
		assert.NoError(t, batch.SaveToken(t.Context(), token))

		_, err := s.FindProcessInstanceByKey(t.Context(), r)
		assert.ErrorIs(t, err, storage.ErrNotFound, "batch must not write before flush")

		assert.NoError(t, batch.Flush(t.Context()))

		stored, err := s.FindProcessInstanceByKey(t.Context(), r)
		assert.NoError(t, err)
		assert.Equal(t, instance.Key, stored.Key)
		tokens, err := s.GetTokensForProcessInstance(t.Context(), r)
		assert.NoError(t, err)
		assert.Len(t, tokens, 1)
	}
}
