// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

// Package config defines the YAML-backed configuration types consumed when
// wiring a validator: policy_meta.yml, policy_init.yml, policy_group.yml, an
// SoC memory map, and the top-level validator config that names them. The
// policy DSL behind rule evaluation itself stays an external oracle; this
// package only turns YAML documents into the Go values that policy.Factory
// and validator.Validator are built from.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ConfigError reports a fatal configuration problem: a missing file, a
// malformed document, or a reference to an entity that does not exist.
// cmd/rvpipe does not test for this type: it exits 1 on every error that
// is not a tag-load failure, which covers every ConfigError.
type ConfigError struct {
	Path string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("config: %v", e.Err)
	}
	return fmt.Sprintf("config: %s: %v", e.Path, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

func wrap(path string, err error) error {
	if err == nil {
		return nil
	}
	return &ConfigError{Path: path, Err: err}
}

// PolicyMeta maps a label name to its integer id, as loaded from
// policy_meta.yml.
type PolicyMeta map[string]int

// PolicyGroup maps an opcode-group name to the label names applied to every
// member of that group, as loaded from policy_group.yml.
type PolicyGroup map[string][]string

// PolicyInitNode is one node of the dotted entity-path tree loaded from
// policy_init.yml. A node may carry its own metadata list and/or further
// named children; a leaf is a node with Metadata set and no Children.
type PolicyInitNode struct {
	Metadata []string
	Children map[string]*PolicyInitNode
}

// UnmarshalYAML splits the reserved "metadata" key from the rest of the
// mapping, treating every other key as a named child subtree.
func (n *PolicyInitNode) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("policy_init: expected mapping, got kind %d", value.Kind)
	}
	raw := make(map[string]yaml.Node)
	if err := value.Decode(&raw); err != nil {
		return err
	}
	n.Children = make(map[string]*PolicyInitNode)
	for key, node := range raw {
		node := node
		if key == "metadata" {
			if err := node.Decode(&n.Metadata); err != nil {
				return fmt.Errorf("policy_init: metadata: %w", err)
			}
			continue
		}
		child := &PolicyInitNode{}
		if err := child.UnmarshalYAML(&node); err != nil {
			return fmt.Errorf("policy_init: %s: %w", key, err)
		}
		n.Children[key] = child
	}
	return nil
}

// Flatten walks the tree and returns the entity_name -> []label_name map
// spec.md describes as the result of flattening policy_init.yml: a node's
// own path maps to its Metadata (if any), and every descendant path maps to
// its own Metadata in turn.
func (n *PolicyInitNode) Flatten(prefix string) map[string][]string {
	out := make(map[string][]string)
	n.flattenInto(prefix, out)
	return out
}

func (n *PolicyInitNode) flattenInto(prefix string, out map[string][]string) {
	if len(n.Metadata) > 0 {
		out[prefix] = n.Metadata
	}
	for name, child := range n.Children {
		path := name
		if prefix != "" {
			path = prefix + "." + name
		}
		child.flattenInto(path, out)
	}
}

// SoCRegion names one memory region of the system-on-chip memory map used
// to uniform-tag or back-tag ranges at validator startup.
type SoCRegion struct {
	Name           string `yaml:"name"`
	Start          uint64 `yaml:"start"`
	End            uint64 `yaml:"end"`
	TagGranularity uint64 `yaml:"tag_granularity"`
	Heterogeneous  bool   `yaml:"heterogeneous"`
}

// SoCConfig is the full list of regions loaded from an SoC config file.
type SoCConfig struct {
	Regions []SoCRegion `yaml:"regions"`
}

// RuleCacheConfig selects which rule cache implementation a validator uses
// and, for the bounded implementations, its capacity.
type RuleCacheConfig struct {
	Name     string `yaml:"name"`
	Capacity int    `yaml:"capacity"`
}

// ValidatorConfig is the top-level YAML document naming every other
// configuration input a validator needs to come up.
type ValidatorConfig struct {
	PolicyDir  string            `yaml:"policy_dir"`
	TagsFile   string            `yaml:"tags_file"`
	SoCCfgPath string            `yaml:"soc_cfg_path"`
	RuleCache  *RuleCacheConfig  `yaml:"rule_cache"`
	ApEntities map[string]string `yaml:"ap_entities"`
}

// LoadValidatorConfig reads and parses a top-level validator config file.
func LoadValidatorConfig(path string) (*ValidatorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	var cfg ValidatorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, wrap(path, err)
	}
	return &cfg, nil
}

// LoadPolicyMeta reads policy_meta.yml.
func LoadPolicyMeta(path string) (PolicyMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	meta := make(PolicyMeta)
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return nil, wrap(path, err)
	}
	return meta, nil
}

// LoadPolicyInit reads policy_init.yml.
func LoadPolicyInit(path string) (*PolicyInitNode, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	root := &PolicyInitNode{}
	if err := yaml.Unmarshal(data, root); err != nil {
		return nil, wrap(path, err)
	}
	return root, nil
}

// LoadPolicyGroup reads policy_group.yml.
func LoadPolicyGroup(path string) (PolicyGroup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	group := make(PolicyGroup)
	if err := yaml.Unmarshal(data, &group); err != nil {
		return nil, wrap(path, err)
	}
	return group, nil
}

// LoadSoCConfig reads the SoC memory-region config file.
func LoadSoCConfig(path string) (*SoCConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, wrap(path, err)
	}
	var cfg SoCConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, wrap(path, err)
	}
	return &cfg, nil
}
