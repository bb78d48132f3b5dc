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

package validator

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/probechain/rv-pipe/meta"
	"github.com/probechain/rv-pipe/policy"
)

// Violation is the sticky first-failure capture spec.md §4.6/§7 describes:
// only the first policy failure in a run is retained, tagged with an ID so
// the structured log lines xlog emits around it can be correlated back to
// this one capture.
type Violation struct {
	ID       uuid.UUID
	Context  Context
	Operands Operands
}

// FormatViolation renders v as the multi-line human-readable report spec.md
// §7 requires: PC, bad address (if any), rendered operand tags, the policy
// result class, and any fail_msg from the oracle. renderer is typically a
// Validator's Render (a policy.RenderCache), so repeated tags across
// violation lines in a denial storm don't re-render their label list every
// time; a bare *policy.Factory also satisfies policy.Renderer.
func FormatViolation(v *Violation, cache *meta.Cache, renderer policy.Renderer) string {
	var b strings.Builder
	fmt.Fprintf(&b, "policy violation %s\n", v.ID)
	fmt.Fprintf(&b, "  pc:       %#x\n", v.Context.EPC)
	if v.Context.HasBadAddr {
		fmt.Fprintf(&b, "  bad_addr: %#x\n", v.Context.BadAddr)
	}
	fmt.Fprintf(&b, "  result:   %s\n", v.Context.PolicyResult.Classify())
	if v.Context.FailMsg != "" {
		fmt.Fprintf(&b, "  message:  %s\n", v.Context.FailMsg)
	}
	if v.Context.RuleStr != "" {
		fmt.Fprintf(&b, "  rule:     %s\n", v.Context.RuleStr)
	}
	fmt.Fprintf(&b, "  pc tag:   %s\n", renderer.Render(cache.Deref(v.Operands.PC), false))
	fmt.Fprintf(&b, "  ci tag:   %s\n", renderer.Render(cache.Deref(v.Operands.CI), false))
	if v.Operands.HasOp1 {
		fmt.Fprintf(&b, "  op1 tag:  %s\n", renderer.Render(cache.Deref(v.Operands.Op1), false))
	}
	if v.Operands.HasOp2 {
		fmt.Fprintf(&b, "  op2 tag:  %s\n", renderer.Render(cache.Deref(v.Operands.Op2), false))
	}
	if v.Operands.HasOp3 {
		fmt.Fprintf(&b, "  op3 tag:  %s\n", renderer.Render(cache.Deref(v.Operands.Op3), false))
	}
	if v.Operands.HasMem {
		fmt.Fprintf(&b, "  mem tag:  %s\n", renderer.Render(cache.Deref(v.Operands.Mem), false))
	}
	return b.String()
}
