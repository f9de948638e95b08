// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// ActivatedJob is handed to a task handler for one activity execution.
// The handler has to call Complete or Fail before it returns; the first call wins.
type ActivatedJob interface {
	// Key is the key of the token executing the activity
	Key() int64
	ProcessInstanceKey() int64
	// DefinitionId of the process definition the instance was created from, can be empty
	DefinitionId() string
	ElementId() string
	ElementName() string
	// Context is cancelled when the process instance ends
	Context() context.Context
	CreatedAt() time.Time

	// Variable from the snapshot of the instance variables taken when the activity started
	Variable(key string) any
	// SetOutputVariable sets a variable that is merged into the process instance on Complete
	SetOutputVariable(key string, value any)
	GetLocalVariables() map[string]any
	GetOutputVariables() map[string]any

	Fail(reason string)
	Complete()
}

type activatedJob struct {
	ctx        context.Context
	activation Activation
	createdAt  time.Time

	mu       sync.Mutex
	output   map[string]any
	resolved bool
	failure  error
}

func newActivatedJob(ctx context.Context, activation Activation) *activatedJob {
	return &activatedJob{
		ctx:        ctx,
		activation: activation,
		createdAt:  time.Now(),
		output:     map[string]any{},
	}
}

func (aj *activatedJob) Key() int64                { return aj.activation.TokenKey }
func (aj *activatedJob) ProcessInstanceKey() int64 { return aj.activation.InstanceKey }
func (aj *activatedJob) DefinitionId() string      { return aj.activation.DefinitionId }
func (aj *activatedJob) ElementId() string         { return aj.activation.ElementId }
func (aj *activatedJob) ElementName() string       { return aj.activation.ElementName }
func (aj *activatedJob) Context() context.Context  { return aj.ctx }
func (aj *activatedJob) CreatedAt() time.Time      { return aj.createdAt }

func (aj *activatedJob) Variable(key string) any {
	return aj.activation.Variables[key]
}

func (aj *activatedJob) GetLocalVariables() map[string]any {
	return aj.activation.Variables
}

func (aj *activatedJob) SetOutputVariable(key string, value any) {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	aj.output[key] = value
}

func (aj *activatedJob) GetOutputVariables() map[string]any {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	return aj.output
}

func (aj *activatedJob) Fail(reason string) {
	aj.resolve(errors.New(reason))
}

func (aj *activatedJob) Complete() {
	aj.resolve(nil)
}

func (aj *activatedJob) resolve(failure error) {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	if aj.resolved {
		return
	}
	aj.resolved = true
	aj.failure = failure
}

// result is what the activity produced once the handler returned
func (aj *activatedJob) result() (map[string]any, error) {
	aj.mu.Lock()
	defer aj.mu.Unlock()
	if !aj.resolved {
		return nil, fmt.Errorf("%w: %s", ErrJobNotResolved, aj.activation.ElementId)
	}
	if aj.failure != nil {
		return nil, aj.failure
	}
	return aj.output, nil
}
