// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct{ id int64 }

func (*countingRunner) Runner() {}

type countingFactory struct{ created atomic.Int64 }

func (f *countingFactory) newRunner() *countingRunner {
	return &countingRunner{id: f.created.Add(1)}
}

func TestRunnerPoolStartsMinRunners(t *testing.T) {
	factory := &countingFactory{}

	pool := NewRunnerPool(t.Context(), factory.newRunner, 4, 2)

	assert.Equal(t, int64(2), factory.created.Load())
	assert.Equal(t, 2, pool.ActiveRunners())
}

func TestRunnerPoolReusesRunners(t *testing.T) {
	// given
	factory := &countingFactory{}
	pool := NewRunnerPool(t.Context(), factory.newRunner, 2, 0)

	// when
	first, err := pool.Acquire(t.Context())
	require.NoError(t, err)
	pool.Release(first)
	second, err := pool.Acquire(t.Context())
	require.NoError(t, err)

	// then
	assert.Same(t, first, second)
	assert.Equal(t, int64(1), factory.created.Load())
}

func TestRunnerPoolBlocksAtMaxSize(t *testing.T) {
	// given
	factory := &countingFactory{}
	pool := NewRunnerPool(t.Context(), factory.newRunner, 1, 0)
	held, err := pool.Acquire(t.Context())
	require.NoError(t, err)

	// when
	got := make(chan *countingRunner, 1)
	go func() {
		r, _ := pool.Acquire(context.Background())
		got <- r
	}()

	// then
	select {
	case <-got:
		t.Fatal("pool handed out more runners than its max size")
	case <-time.After(50 * time.Millisecond):
	}
	pool.Release(held)
	select {
	case r := <-got:
		assert.Same(t, held, r)
	case <-time.After(time.Second):
		t.Fatal("waiting caller did not get the released runner")
	}
	assert.Equal(t, int64(1), factory.created.Load())
}

func TestRunnerPoolAcquireHonoursContext(t *testing.T) {
	// given
	pool := NewRunnerPool(t.Context(), (&countingFactory{}).newRunner, 1, 1)
	_, err := pool.Acquire(t.Context())
	require.NoError(t, err)

	// when
	ctx, cancel := context.WithTimeout(t.Context(), 20*time.Millisecond)
	defer cancel()
	_, err = pool.Acquire(ctx)

	// then
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, pool.ActiveRunners())
}

func TestRunnerPoolShrinksToMin(t *testing.T) {
	pool := NewRunnerPool(t.Context(), (&countingFactory{}).newRunner, 3, 1)
	var held []*countingRunner
	for range 3 {
		r, err := pool.Acquire(t.Context())
		require.NoError(t, err)
		held = append(held, r)
	}
	for _, r := range held {
		pool.Release(r)
	}

	pool.shrink()

	assert.Equal(t, 1, pool.ActiveRunners())
}

func TestRunnerPoolRejectsInvalidSizes(t *testing.T) {
	newRunner := (&countingFactory{}).newRunner
	assert.Panics(t, func() { NewRunnerPool(t.Context(), newRunner, 1, 2) })
	assert.Panics(t, func() { NewRunnerPool(t.Context(), newRunner, 0, 0) })
}
