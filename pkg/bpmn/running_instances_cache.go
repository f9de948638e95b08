// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"slices"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

const (
	defaultInstanceCacheSize = 1000
	defaultInstanceCacheTTL  = time.Hour
)

// RunningInstancesCache keeps the instances that have live tokens,
// finished ones move into a size and time bounded archive.
type RunningInstancesCache struct {
	processInstances map[int64]*ProcessInstance
	finished         *expirable.LRU[int64, *ProcessInstance]
	mu               *sync.RWMutex
}

func newRunningInstancesCache(size int, ttl time.Duration) *RunningInstancesCache {
	if size <= 0 {
		size = defaultInstanceCacheSize
	}
	if ttl <= 0 {
		ttl = defaultInstanceCacheTTL
	}
	return &RunningInstancesCache{
		processInstances: make(map[int64]*ProcessInstance),
		finished:         expirable.NewLRU[int64, *ProcessInstance](size, nil, ttl),
		mu:               &sync.RWMutex{},
	}
}

func (c *RunningInstancesCache) add(instance *ProcessInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.processInstances[instance.key] = instance
}

func (c *RunningInstancesCache) archive(instance *ProcessInstance) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.processInstances, instance.key)
	c.finished.Add(instance.key, instance)
}

func (c *RunningInstancesCache) get(key int64) (*ProcessInstance, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if instance, ok := c.processInstances[key]; ok {
		return instance, true
	}
	return c.finished.Get(key)
}

// running returns the not yet finished instances ordered by key
func (c *RunningInstancesCache) running() []*ProcessInstance {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]*ProcessInstance, 0, len(c.processInstances))
	for _, instance := range c.processInstances {
		res = append(res, instance)
	}
	slices.SortFunc(res, func(a, b *ProcessInstance) int {
		switch {
		case a.key < b.key:
			return -1
		case a.key > b.key:
			return 1
		}
		return 0
	})
	return res
}
