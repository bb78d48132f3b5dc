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

// Package validator orchestrates the per-instruction gather/evaluate/commit
// loop that is the reason this repository exists: before a host simulator
// retires an instruction, it calls Validate with the pre-execution state;
// Validator gathers the relevant tags, consults the rule cache, and falls
// back to an external policy oracle, either authorizing the step or
// capturing a violation.
package validator

import (
	"github.com/probechain/rv-pipe/meta"
	"github.com/probechain/rv-pipe/rulecache"
)

// Outcome is the policy oracle's per-instruction verdict. Any value other
// than the three named below is treated as POLICY_ERROR_FAILURE.
type Outcome int32

const (
	PolicySuccess    Outcome = 1
	PolicyExpFailure Outcome = 0
	PolicyImpFailure Outcome = -1
)

// Classify renders o as one of the four policy-result classes the error
// taxonomy in spec.md §7 and the violation report in §7's "user-visible
// failure" both name, treating anything but the three defined Outcome
// values as ERROR_FAILURE.
func (o Outcome) Classify() string {
	switch o {
	case PolicySuccess:
		return "SUCCESS"
	case PolicyExpFailure:
		return "EXP_FAILURE"
	case PolicyImpFailure:
		return "IMP_FAILURE"
	default:
		return "ERROR_FAILURE"
	}
}

// Context carries the scratch fields a policy evaluation reads or writes
// besides the operand/result tags themselves: the faulting PC, a bad
// address for load/store instructions, the oracle's own verdict and
// message, and whether this evaluation is safe to memoize in the rule
// cache.
type Context struct {
	EPC          uint64
	BadAddr      uint64
	HasBadAddr   bool
	PolicyResult Outcome
	FailMsg      string
	RuleStr      string
	Cached       bool
}

// Operands is the gathered, pre-execution operand-tag tuple a policy
// evaluation and the rule cache both key on. It is exactly rulecache's key
// shape: pc and ci are always present, the rest carry a presence bit.
type Operands = rulecache.Operands

// Results is the raw, not-yet-canonicalized output of a policy evaluation:
// a policy DSL builds metadata sets directly, and Validator canonizes them
// into rule-cache-ready tags only once the step is confirmed allowed. That
// happens inside Validate, right after a successful evaluation; Commit only
// applies the tags already canonized there.
type Results struct {
	PC, RD, CSR                   meta.MetaSet
	PCResult, RDResult, CSRResult bool
}

// Policy is the eval_policy capability object: an external oracle the
// validator holds by reference and calls with borrowed Context/Operands/
// Results, per spec.md §9 "Policy oracle boundary". The policy DSL itself
// is out of scope (spec.md §1); Policy is the fixed interface a concrete
// implementation of that DSL would satisfy.
type Policy interface {
	Eval(ctx *Context, ops *Operands, res *Results) Outcome
}
