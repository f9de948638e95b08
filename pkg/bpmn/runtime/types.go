// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package runtime

import (
	"maps"
	"slices"
	"time"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
)

// TokenState of a single thread of control:
//
//	             fork / join release / start
//	                       |
//	                       v
//	                   ┌──────┐  arrives at AND join  ┌─────────────┐
//	                   │Active│ --------------------->│WaitingAtJoin│
//	                   └──────┘                       └─────────────┘
//	     end / forked / merged |  \ failure, cancel        |  join fires  \ cancel
//	                           v   v                       v               v
//	                ┌─────────┐ ┌──────────┐          ┌─────────┐    ┌──────────┐
//	                │Completed│ │Terminated│          │Completed│    │Terminated│
//	                └─────────┘ └──────────┘          └─────────┘    └──────────┘
type TokenState string

const (
	TokenStateActive        TokenState = "ACTIVE"
	TokenStateWaitingAtJoin TokenState = "WAITING_AT_JOIN"
	TokenStateCompleted     TokenState = "COMPLETED"
	TokenStateTerminated    TokenState = "TERMINATED"
)

// IsLive reports whether a token in this state still keeps its process instance running
func (s TokenState) IsLive() bool {
	return s == TokenStateActive || s == TokenStateWaitingAtJoin
}

// TokenSubState tells why a token reached its final state
type TokenSubState string

const (
	TokenSubStateNone TokenSubState = ""
	// TokenSubStateEnd the token reached an element without outgoing flows
	TokenSubStateEnd TokenSubState = "END"
	// TokenSubStateForked the token was retired by a fork, its children carry on
	TokenSubStateForked TokenSubState = "FORKED"
	// TokenSubStateJoined the token was consumed by an AND join
	TokenSubStateJoined TokenSubState = "JOINED"
	// TokenSubStateMerged the token arrived late at an OR join and was discarded
	TokenSubStateMerged TokenSubState = "MERGED"
	// TokenSubStateFailed the token was terminated by its own failure
	TokenSubStateFailed TokenSubState = "FAILED"
	// TokenSubStateCancelled the token was terminated because its instance ended
	TokenSubStateCancelled TokenSubState = "CANCELLED"
)

// Token is one thread of control inside a process instance.
// Scopes holds the fork lineage: the keys of the forks this token descends from, innermost last.
// Passes records, per OR join, the last merge pass this token or its ancestors went through.
type Token struct {
	Key         int64                       `json:"key"`
	InstanceKey int64                       `json:"instanceKey"`
	ParentKey   int64                       `json:"parentKey,omitempty"`
	ElementKey  model.ElementKey            `json:"elementKey"`
	ElementId   string                      `json:"elementId"`
	State       TokenState                  `json:"state"`
	SubState    TokenSubState               `json:"subState,omitempty"`
	Scopes      []int64                     `json:"scopes,omitempty"`
	Passes      map[model.ElementKey]uint64 `json:"passes,omitempty"`
	CreatedAt   time.Time                   `json:"createdAt"`
	UpdatedAt   time.Time                   `json:"updatedAt"`
}

// Scope returns the innermost fork this token descends from, 0 for the root scope
func (t Token) Scope() int64 {
	if len(t.Scopes) == 0 {
		return 0
	}
	return t.Scopes[len(t.Scopes)-1]
}

// Clone returns a deep copy, safe to hand out of the instance lock
func (t Token) Clone() Token {
	t.Scopes = slices.Clone(t.Scopes)
	t.Passes = maps.Clone(t.Passes)
	return t
}

// Pass returns the last merge pass of the OR join seen by this token, 0 if it never went through it
func (t Token) Pass(gateway model.ElementKey) uint64 {
	return t.Passes[gateway]
}

// LatestPasses combines the merge passes of the given tokens, keeping the highest pass per OR join
func LatestPasses(tokens ...Token) map[model.ElementKey]uint64 {
	var passes map[model.ElementKey]uint64
	for _, t := range tokens {
		for gateway, pass := range t.Passes {
			if passes == nil {
				passes = make(map[model.ElementKey]uint64, len(t.Passes))
			}
			if pass > passes[gateway] {
				passes[gateway] = pass
			}
		}
	}
	return passes
}

// CommonScopes returns the longest common prefix of the fork lineages of the given tokens
func CommonScopes(tokens ...Token) []int64 {
	if len(tokens) == 0 {
		return nil
	}
	prefix := tokens[0].Scopes
	for _, t := range tokens[1:] {
		n := 0
		for n < len(prefix) && n < len(t.Scopes) && prefix[n] == t.Scopes[n] {
			n++
		}
		prefix = prefix[:n]
	}
	return slices.Clone(prefix)
}

// ProcessInstanceState as observed through ProcessInstance.Status()
type ProcessInstanceState string

const (
	ProcessInstanceStateReady     ProcessInstanceState = "READY"
	ProcessInstanceStateRunning   ProcessInstanceState = "RUNNING"
	ProcessInstanceStateCompleted ProcessInstanceState = "COMPLETED"
	ProcessInstanceStateFailed    ProcessInstanceState = "FAILED"
	ProcessInstanceStateCancelled ProcessInstanceState = "CANCELLED"
)

// IsTerminal reports whether no further state change can happen
func (s ProcessInstanceState) IsTerminal() bool {
	switch s {
	case ProcessInstanceStateCompleted, ProcessInstanceStateFailed, ProcessInstanceStateCancelled:
		return true
	}
	return false
}
