// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package definition

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/pbinitiative/zenflow/pkg/storage"
)

type Registry struct {
	mu          sync.RWMutex
	definitions map[string]*Definition
}

func NewRegistry() *Registry {
	return &Registry{
		definitions: make(map[string]*Definition),
	}
}

// Register adds the definitions, a definition with an already registered id replaces the old one.
// Running instances keep the graph they were started with.
func (r *Registry) Register(definitions ...*Definition) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range definitions {
		r.definitions[d.Id] = d
	}
}

func (r *Registry) Get(id string) (*Definition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.definitions[id]
	if !ok {
		return nil, fmt.Errorf("process definition %s: %w", id, storage.ErrNotFound)
	}
	return d, nil
}

// List returns every registered definition ordered by id
func (r *Registry) List() []*Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]*Definition, 0, len(r.definitions))
	for _, d := range r.definitions {
		res = append(res, d)
	}
	slices.SortFunc(res, func(a, b *Definition) int {
		return strings.Compare(a.Id, b.Id)
	})
	return res
}
