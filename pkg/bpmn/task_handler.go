// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"context"
	"slices"
)

type taskMatcher func(activation Activation) bool

type taskHandlerType string

const (
	taskHandlerForId   = "TASK_HANDLER_ID"
	taskHandlerForName = "TASK_HANDLER_NAME"
)

type taskHandler struct {
	handlerType taskHandlerType
	matches     taskMatcher
	handler     func(job ActivatedJob)
}

type newTaskHandlerCommand struct {
	handlerType taskHandlerType
	matcher     taskMatcher
	append      func(handler *taskHandler)
}

type NewTaskHandlerCommand2 interface {
	// Handler is the actual handler to be executed
	Handler(func(job ActivatedJob)) *taskHandler
}

type NewTaskHandlerCommand1 interface {
	// Id defines a handler for a given element ID.
	// This is 1:1 relation between a handler and an activity (since IDs are unique within a graph).
	Id(id string) NewTaskHandlerCommand2

	// Name defines a handler for every activity with the given name.
	// Names may repeat, so a single handler can serve multiple activities.
	Name(name string) NewTaskHandlerCommand2
}

// NewTaskHandler registers a handler function to be called for activities.
// Handlers take precedence over the invoker configured with EngineWithInvoker.
func (engine *Engine) NewTaskHandler() NewTaskHandlerCommand1 {
	cmd := newTaskHandlerCommand{
		append: func(handler *taskHandler) {
			engine.taskhandlersMu.Lock()
			defer engine.taskhandlersMu.Unlock()
			engine.taskHandlers = append(engine.taskHandlers, handler)
		},
	}
	return cmd
}

// Id implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Id(id string) NewTaskHandlerCommand2 {
	thc.matcher = func(activation Activation) bool {
		return activation.ElementId == id
	}
	thc.handlerType = taskHandlerForId
	return thc
}

// Name implements NewTaskHandlerCommand1
func (thc newTaskHandlerCommand) Name(name string) NewTaskHandlerCommand2 {
	thc.matcher = func(activation Activation) bool {
		return activation.ElementName == name
	}
	thc.handlerType = taskHandlerForName
	return thc
}

// Handler implements NewTaskHandlerCommand2
func (thc newTaskHandlerCommand) Handler(f func(job ActivatedJob)) *taskHandler {
	th := taskHandler{
		handlerType: thc.handlerType,
		matches:     thc.matcher,
		handler:     f,
	}
	thc.append(&th)
	return &th
}

// RemoveHandler removes the handler created by Handler method
func (engine *Engine) RemoveHandler(handler *taskHandler) {
	engine.taskhandlersMu.Lock()
	defer engine.taskhandlersMu.Unlock()
	for i, hand := range engine.taskHandlers {
		if hand == handler {
			engine.taskHandlers = slices.Delete(engine.taskHandlers, i, i+1)
			return
		}
	}
}

func (engine *Engine) findTaskHandler(activation Activation) func(job ActivatedJob) {
	engine.taskhandlersMu.RLock()
	defer engine.taskhandlersMu.RUnlock()
	searchOrder := []taskHandlerType{taskHandlerForId, taskHandlerForName}
	for _, handlerType := range searchOrder {
		for _, handler := range engine.taskHandlers {
			if handler.handlerType == handlerType {
				if handler.matches(activation) {
					return handler.handler
				}
			}
		}
	}
	return nil
}

// runTaskHandler calls the handler synchronously, the handler has to resolve the job before it returns
func (engine *Engine) runTaskHandler(ctx context.Context, handler func(job ActivatedJob), activation Activation) (map[string]any, error) {
	job := newActivatedJob(ctx, activation)
	handler(job)
	return job.result()
}
