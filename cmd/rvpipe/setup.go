// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.
//
// The ProbeChain is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The ProbeChain is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with the ProbeChain. If not, see <http://www.gnu.org/licenses/>.

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/probechain/rv-pipe/internal/config"
	"github.com/probechain/rv-pipe/internal/xlog"
	"github.com/probechain/rv-pipe/meta"
	"github.com/probechain/rv-pipe/policy"
	"github.com/probechain/rv-pipe/rulecache"
	"github.com/probechain/rv-pipe/tagbus"
	"github.com/probechain/rv-pipe/taginfo"
	"github.com/probechain/rv-pipe/validator"
)

// permitAllPolicy is the stub oracle this command ships with: the policy
// DSL it would otherwise call into is an external capability (spec.md §1's
// "policy oracle boundary" is explicitly out of scope), so this harness
// authorizes every step, exercising the gather/cache/commit loop against
// real tag data without deciding anything on its own.
type permitAllPolicy struct{}

func (permitAllPolicy) Eval(ctx *validator.Context, ops *validator.Operands, res *validator.Results) validator.Outcome {
	return validator.PolicySuccess
}

func buildValidator(configPath string, firmware bool) (*validator.Validator, error) {
	cfg, err := config.LoadValidatorConfig(configPath)
	if err != nil {
		return nil, err
	}

	policyMeta, err := config.LoadPolicyMeta(filepath.Join(cfg.PolicyDir, "policy_meta.yml"))
	if err != nil {
		return nil, err
	}
	policyInit, err := config.LoadPolicyInit(filepath.Join(cfg.PolicyDir, "policy_init.yml"))
	if err != nil {
		return nil, err
	}
	policyGroup, err := config.LoadPolicyGroup(filepath.Join(cfg.PolicyDir, "policy_group.yml"))
	if err != nil {
		return nil, err
	}

	cache := meta.NewCache()
	factory, err := policy.NewFactory(cache, policyMeta, policyInit.Flatten(""), policyGroup)
	if err != nil {
		return nil, err
	}

	soc, err := config.LoadSoCConfig(cfg.SoCCfgPath)
	if err != nil {
		return nil, err
	}
	bus, err := buildBus(soc, cache)
	if err != nil {
		return nil, err
	}

	rcCfg := rulecache.Config{Name: "ideal"}
	if cfg.RuleCache != nil {
		rcCfg = rulecache.Config{Name: cfg.RuleCache.Name, Capacity: cfg.RuleCache.Capacity}
	}
	rc, err := rulecache.New(rcCfg)
	if err != nil {
		return nil, err
	}

	v := validator.New(cache, factory, bus, 64, rc, permitAllPolicy{})

	if err := loadTagsFile(v, cfg.TagsFile, firmware, cache); err != nil {
		return nil, &tagLoadError{err}
	}

	return v, nil
}

// buildBus installs one provider per SoC region: a BackedProvider for a
// heterogeneous region (distinct tags per tag_granularity-sized word) or a
// UniformProvider otherwise, both seeded to the empty tag until the tags
// file is loaded over them.
func buildBus(soc *config.SoCConfig, cache *meta.Cache) (*tagbus.Bus, error) {
	bus := tagbus.NewBus()
	for _, r := range soc.Regions {
		size := r.End - r.Start
		var provider tagbus.Provider
		if r.Heterogeneous {
			provider = tagbus.NewBackedProvider(size, r.TagGranularity, meta.Zero)
		} else {
			provider = tagbus.NewUniformProvider(size, meta.Zero)
		}
		if err := bus.AddProvider(r.Start, r.End, provider); err != nil {
			return nil, fmt.Errorf("soc region %q: %w", r.Name, err)
		}
	}
	return bus, nil
}

func loadTagsFile(v *validator.Validator, path string, firmware bool, cache *meta.Cache) error {
	if path == "" {
		return nil
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	var mm *taginfo.MetadataMemoryMap
	if firmware {
		ff, err := taginfo.DecodeFirmware(f)
		if err != nil {
			return err
		}
		mm = ff.ToMemoryMap(cache)
	} else {
		mm = taginfo.NewMetadataMemoryMap(cache)
		if err := taginfo.LoadSimulation(f, mm, cache); err != nil {
			return err
		}
	}

	argsPath := path + ".args"
	if _, err := os.Stat(argsPath); err == nil {
		af, err := os.Open(argsPath)
		if err != nil {
			return err
		}
		defer af.Close()
		taf, err := taginfo.LoadTagArgs(af)
		if err != nil {
			return err
		}
		taf.Apply(mm, cache)
		xlog.Debug("applied taginfo-args sidecar", "path", argsPath)
	}

	for _, r := range mm.Ranges() {
		if err := v.Bus.LoadTagRange(r.Start, r.End, r.Tag, tagbus.MinTagGranularity); err != nil {
			return err
		}
	}

	return nil
}
