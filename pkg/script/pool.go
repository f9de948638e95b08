// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package script

import (
	"context"
	"sync"
	"time"
)

type Runner interface {
	Runner()
}

// RunnerPool keeps between min and max runners; runners are not safe for concurrent use,
// so each caller holds one exclusively between Acquire and Release.
type RunnerPool[R Runner] struct {
	pool      chan R
	newRunner func() R

	mu     sync.Mutex
	active int

	maxSize int
	minSize int
}

const cleanupInterval = 10 * time.Minute

func NewRunnerPool[R Runner](ctx context.Context, newRunner func() R, maxSize int, minSize int) *RunnerPool[R] {
	if maxSize < minSize {
		panic("vm pool min size is bigger than vm pool max size")
	}
	if maxSize < 1 {
		panic("vm pool max size has to be at least 1")
	}

	p := &RunnerPool[R]{
		pool:      make(chan R, maxSize),
		newRunner: newRunner,
		maxSize:   maxSize,
		minSize:   minSize,
	}
	for range minSize {
		p.pool <- newRunner()
		p.active++
	}

	// idle runners above the minimum are dropped periodically
	go func() {
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				p.shrink()
			case <-ctx.Done():
				return
			}
		}
	}()
	return p
}

func (p *RunnerPool[R]) shrink() {
	for len(p.pool) > p.minSize {
		select {
		case <-p.pool:
			p.mu.Lock()
			p.active--
			p.mu.Unlock()
		default:
			return
		}
	}
}

// Acquire returns an idle runner, creates a new one while under the max size, otherwise waits
// until a runner is released or ctx is done.
func (p *RunnerPool[R]) Acquire(ctx context.Context) (R, error) {
	select {
	case runner := <-p.pool:
		return runner, nil
	default:
	}
	p.mu.Lock()
	if p.active < p.maxSize {
		p.active++
		p.mu.Unlock()
		return p.newRunner(), nil
	}
	p.mu.Unlock()

	select {
	case runner := <-p.pool:
		return runner, nil
	case <-ctx.Done():
		var zero R
		return zero, ctx.Err()
	}
}

func (p *RunnerPool[R]) Release(runner R) {
	select {
	case p.pool <- runner:
	default:
		// pool is full, the runner is dropped
		p.mu.Lock()
		p.active--
		p.mu.Unlock()
	}
}

// ActiveRunners returns the number of runners created and not yet discarded
func (p *RunnerPool[R]) ActiveRunners() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}
