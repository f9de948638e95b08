// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

package zenflake

import (
	"hash/adler32"
	"os"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	// NodeBits holds the number of bits to use for Node
	// Remember, you have a total 22 bits to share between Node/Step
	NodeBits uint8 = 10

	// StepBits holds the number of bits to use for Step
	// Remember, you have a total 22 bits to share between Node/Step
	StepBits uint8 = 12

	// internal values of bwmarrin/snowflake
	nodeMax   int64 = -1 ^ (-1 << NodeBits)
	nodeMask        = nodeMax << StepBits
	timeShift       = NodeBits + StepBits
	nodeShift       = StepBits
)

var (
	globalNode     *snowflake.Node
	globalNodeOnce sync.Once
)

// Global returns the process wide key generator.
// constraints: see also NewNode
func Global() *snowflake.Node {
	globalNodeOnce.Do(func() {
		globalNode = NewNode()
	})
	return globalNode
}

// NewNode creates a new key generator seeded from the process environment,
// constraints: creating two new instances within a few microseconds, will create generators with the same seed
func NewNode() *snowflake.Node {
	hash32 := adler32.New()
	for _, e := range os.Environ() {
		_, _ = hash32.Write([]byte(e))
	}
	node, err := NewNodeWithId(int64(hash32.Sum32()) & nodeMax)
	if err != nil {
		panic("can't initialize snowflake ID generator. Message: " + err.Error())
	}
	return node
}

// NewNodeWithId creates a key generator for an explicit node id (0..1023).
func NewNodeWithId(nodeId int64) (*snowflake.Node, error) {
	return snowflake.NewNode(nodeId)
}

// GetNodeId extracts the generator node id from a key.
func GetNodeId(key int64) int64 {
	return (key & nodeMask) >> int64(nodeShift)
}

// GetTime extracts the creation time encoded in a key.
func GetTime(key int64) time.Time {
	millis := (key >> int64(timeShift)) + snowflake.Epoch
	return time.UnixMilli(millis)
}
