// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package bpmn

import (
	"fmt"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	otelPkg "github.com/pbinitiative/zenflow/pkg/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// runToken advances one token until it ends, waits at a join, is replaced by other tokens or the instance stops.
// Each execute function returns true when the same token moved on to the next element.
func (pi *ProcessInstance) runToken(tokenKey int64) {
	for {
		pi.mu.Lock()
		token, ok := pi.activeTokenLocked(tokenKey)
		if !ok {
			pi.mu.Unlock()
			return
		}
		element := pi.graph.Element(token.ElementKey)
		pi.mu.Unlock()

		var continues bool
		switch element.Kind {
		case model.ElementKindActivity:
			continues = pi.executeActivity(tokenKey, element)
		case model.ElementKindGateway:
			switch element.Gateway {
			case model.GatewayTypeAnd:
				continues = pi.executeParallelGateway(tokenKey, element)
			case model.GatewayTypeOr:
				continues = pi.executeOrGateway(tokenKey, element)
			default:
				panic(fmt.Sprintf("unsupported gateway type %q of element %s", element.Gateway, element.Id))
			}
		default:
			panic(fmt.Sprintf("unsupported element kind %q of element %s", element.Kind, element.Id))
		}
		if !continues {
			return
		}
	}
}

// executeActivity invokes the activity outside of the instance lock and applies its result afterwards.
// A pool slot is only held while the invoker runs.
func (pi *ProcessInstance) executeActivity(tokenKey int64, element model.FlowElement) bool {
	engine := pi.engine
	if engine.activitySlots != nil {
		if err := engine.activitySlots.Acquire(pi.ctx, 1); err != nil {
			// instance was cancelled while waiting for a slot
			return false
		}
	}

	pi.mu.Lock()
	if _, ok := pi.activeTokenLocked(tokenKey); !ok {
		pi.mu.Unlock()
		if engine.activitySlots != nil {
			engine.activitySlots.Release(1)
		}
		return false
	}
	activation := Activation{
		InstanceKey:  pi.key,
		TokenKey:     tokenKey,
		DefinitionId: pi.definitionId,
		ElementId:    element.Id,
		ElementName:  element.Name,
		Variables:    pi.variables.Variables(),
	}
	pi.mu.Unlock()

	ctx, span := engine.tracer.Start(pi.ctx, fmt.Sprintf("activity:%s", element.Id), trace.WithAttributes(
		attribute.Int64(otelPkg.AttributeProcessInstanceKey, pi.key),
		attribute.String(otelPkg.AttributeElementId, element.Id),
		attribute.String(otelPkg.AttributeElementName, element.Name),
		attribute.String(otelPkg.AttributeElementKind, string(element.Kind)),
		attribute.Int64(otelPkg.AttributeTokenKey, tokenKey),
	))
	elementAttr := metric.WithAttributes(attribute.String(otelPkg.AttributeElementId, element.Id))
	engine.metrics.ActivitiesInvoked.Add(ctx, 1, elementAttr)
	engine.metrics.ActivitiesInFlight.Add(ctx, 1)
	started := time.Now()

	variables, err := engine.invokeActivity(ctx, activation)

	engine.metrics.ActivityDuration.Record(ctx, time.Since(started).Seconds(), elementAttr)
	engine.metrics.ActivitiesInFlight.Add(ctx, -1)
	if engine.activitySlots != nil {
		engine.activitySlots.Release(1)
	}
	if err != nil {
		engine.metrics.ActivitiesFailed.Add(ctx, 1, elementAttr)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()

	pi.mu.Lock()
	token, ok := pi.activeTokenLocked(tokenKey)
	if !ok {
		pi.mu.Unlock()
		pi.logger.Debug("discarding activity result of a stopped token", "token", tokenKey, "elementId", element.Id)
		return false
	}
	if err != nil {
		pi.activityFailedLocked(token, err)
		pi.mu.Unlock()
		pi.flush()
		return false
	}
	pi.variables.SetVariables(variables)
	continues, children := pi.followFlowsLocked(token)
	pi.checkProgressLocked()
	pi.mu.Unlock()
	pi.flush()
	pi.spawn(children...)
	return continues
}
