// SPDX-License-Identifier: Apache-2.0

package registry

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Declarations is the on-disk form of both registries:
//
//	event_types:
//	  ET_LOGIN: 1
//	state_keys:
//	  SK_THEME: 1
type Declarations struct {
	EventTypes map[string]any `yaml:"event_types"`
	StateKeys  map[string]any `yaml:"state_keys"`
}

// Parse decodes a YAML declaration document into the two registries.
func Parse(data []byte) (*Registry, *Registry, error) {
	var decl Declarations
	if err := yaml.Unmarshal(data, &decl); err != nil {
		return nil, nil, fmt.Errorf("decode registry declarations: %w", err)
	}
	return EventTypes(decl.EventTypes), StateKeys(decl.StateKeys), nil
}

// LoadFile reads and parses a YAML declaration file.
func LoadFile(path string) (*Registry, *Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read registry file: %w", err)
	}
	return Parse(data)
}
