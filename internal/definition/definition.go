// Copyright 2021-present ZenBPM Contributors
// (based on git commit history).
//
// ZenBPM project is available under two licenses:
//  - SPDX-License-Identifier: AGPL-3.0-or-later (See LICENSE-AGPL.md)
//  - Enterprise License (See LICENSE-ENTERPRISE.md)

// Package definition loads process definitions from YAML documents and keeps them in a Registry.
//
// A definition document looks like this:
//
//	id: order
//	name: Order fulfilment
//	start: receive
//	elements:
//	  - id: receive
//	    kind: ACTIVITY
//	    script: "return {total: price * quantity}"
//	  - id: split
//	    kind: GATEWAY
//	    gateway: AND
//	  - id: pack
//	    kind: ACTIVITY
//	  - id: invoice
//	    kind: ACTIVITY
//	flows:
//	  - source: receive
//	    target: split
//	  - source: split
//	    target: pack
//	  - source: split
//	    target: invoice
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pbinitiative/zenflow/pkg/bpmn/model"
	"gopkg.in/yaml.v3"
)

var ErrInvalidDefinition = errors.New("invalid process definition")

// Element is a flow element together with the script that implements it, if any
type Element struct {
	model.FlowElement `yaml:",inline"`
	Script            string `yaml:"script,omitempty"`
}

// Definition is a parsed and validated process definition.
// Graph is built once and shared by every instance of the definition.
type Definition struct {
	Id       string       `yaml:"id"`
	Name     string       `yaml:"name,omitempty"`
	Start    string       `yaml:"start"`
	Elements []Element    `yaml:"elements"`
	Flows    []model.Flow `yaml:"flows"`

	Graph   *model.Graph      `yaml:"-"`
	scripts map[string]string `yaml:"-"`
}

// Script returns the script of the activity with the given id
func (d *Definition) Script(elementId string) (string, bool) {
	script, ok := d.scripts[elementId]
	return script, ok
}

// Parse decodes a YAML document and builds its graph
func Parse(data []byte) (*Definition, error) {
	var d Definition
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&d); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidDefinition, err)
	}
	if d.Id == "" {
		return nil, fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}

	elements := make([]model.FlowElement, 0, len(d.Elements))
	d.scripts = make(map[string]string)
	for _, element := range d.Elements {
		if element.Script != "" {
			if !element.IsActivity() {
				return nil, fmt.Errorf("%w: %s: only activities can have a script", ErrInvalidDefinition, element.Id)
			}
			d.scripts[element.Id] = element.Script
		}
		elements = append(elements, element.FlowElement)
	}
	graph, err := model.Build(elements, d.Flows, d.Start)
	if err != nil {
		return nil, fmt.Errorf("%w %s: %w", ErrInvalidDefinition, d.Id, err)
	}
	d.Graph = graph
	return &d, nil
}

func LoadFile(fileName string) (*Definition, error) {
	data, err := os.ReadFile(fileName)
	if err != nil {
		return nil, fmt.Errorf("failed to read definition %s: %w", fileName, err)
	}
	d, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fileName, err)
	}
	return d, nil
}

// LoadDir loads every *.yaml and *.yml file of dir, in file name order.
// All files are attempted, the returned error joins every failure.
func LoadDir(dir string) ([]*Definition, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read definitions directory %s: %w", dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if entry.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, entry.Name())
	}
	slices.Sort(names)

	var errJoin error
	definitions := make([]*Definition, 0, len(names))
	for _, name := range names {
		d, err := LoadFile(filepath.Join(dir, name))
		if err != nil {
			errJoin = errors.Join(errJoin, err)
			continue
		}
		definitions = append(definitions, d)
	}
	return definitions, errJoin
}
