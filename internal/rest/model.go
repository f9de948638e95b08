// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package rest

import (
	"time"

	"github.com/pbinitiative/zenflow/internal/definition"
	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"github.com/pbinitiative/zenflow/pkg/bpmn/runtime"
	"github.com/pbinitiative/zenflow/pkg/storage"
)

type SystemStatus struct {
	Name             string    `json:"name"`
	StartedAt        time.Time `json:"startedAt"`
	Definitions      int       `json:"definitions"`
	RunningInstances int       `json:"runningInstances"`
}

type ProcessDefinitionSimple struct {
	Id       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Start    string `json:"start"`
	Elements int    `json:"elements"`
}

type ProcessDefinitionDetail struct {
	ProcessDefinitionSimple
	FlowElements []model.FlowElement `json:"flowElements"`
	Flows        []model.Flow        `json:"flows"`
}

type ProcessDefinitionsPage struct {
	Items []ProcessDefinitionSimple `json:"items"`
	Count int                       `json:"count"`
}

type CreateProcessInstanceRequest struct {
	Variables map[string]any `json:"variables,omitempty"`
}

type CreateProcessInstanceResponse struct {
	Key int64 `json:"key,string"`
}

type ProcessInstanceSimple struct {
	Key          int64                        `json:"key,string"`
	DefinitionId string                       `json:"definitionId,omitempty"`
	State        runtime.ProcessInstanceState `json:"state"`
	Reason       string                       `json:"reason,omitempty"`
	CreatedAt    time.Time                    `json:"createdAt"`
	UpdatedAt    time.Time                    `json:"updatedAt"`
}

type ProcessInstanceDetail struct {
	ProcessInstanceSimple
	Variables map[string]any  `json:"variables"`
	Tokens    []runtime.Token `json:"tokens"`
}

type ProcessInstancePage struct {
	Items []ProcessInstanceSimple `json:"items"`
	Page  int                     `json:"page"`
	Size  int                     `json:"size"`
	Count int                     `json:"count"`
	Total int                     `json:"total"`
}

func toProcessDefinitionSimple(d *definition.Definition) ProcessDefinitionSimple {
	return ProcessDefinitionSimple{
		Id:       d.Id,
		Name:     d.Name,
		Start:    d.Start,
		Elements: len(d.Elements),
	}
}

func toProcessDefinitionDetail(d *definition.Definition) ProcessDefinitionDetail {
	elements := make([]model.FlowElement, 0, len(d.Elements))
	for _, element := range d.Elements {
		elements = append(elements, element.FlowElement)
	}
	flows := d.Flows
	if flows == nil {
		flows = []model.Flow{}
	}
	return ProcessDefinitionDetail{
		ProcessDefinitionSimple: toProcessDefinitionSimple(d),
		FlowElements:            elements,
		Flows:                   flows,
	}
}

func toProcessInstanceSimple(snapshot storage.ProcessInstance) ProcessInstanceSimple {
	return ProcessInstanceSimple{
		Key:          snapshot.Key,
		DefinitionId: snapshot.DefinitionId,
		State:        snapshot.State,
		Reason:       snapshot.Reason,
		CreatedAt:    snapshot.CreatedAt,
		UpdatedAt:    snapshot.UpdatedAt,
	}
}

func toProcessInstanceDetail(snapshot storage.ProcessInstance, tokens []runtime.Token) ProcessInstanceDetail {
	variables := snapshot.Variables
	if variables == nil {
		variables = map[string]any{}
	}
	if tokens == nil {
		tokens = []runtime.Token{}
	}
	return ProcessInstanceDetail{
		ProcessInstanceSimple: toProcessInstanceSimple(snapshot),
		Variables:             variables,
		Tokens:                tokens,
	}
}
