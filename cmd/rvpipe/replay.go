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
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/probechain/rv-pipe/internal/xlog"
	"github.com/probechain/rv-pipe/validator"
)

// traceStep is one parsed line of the trace file: `pc insn [mem_addr]`,
// all hex, no 0x prefix. mem_addr is present only for loads/stores whose
// effective address the host has already computed, mirroring validate's
// validate_cached overload.
type traceStep struct {
	pc, insn   uint64
	memAddr    uint64
	hasMemAddr bool
}

func parseTraceLine(line string) (traceStep, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return traceStep{}, fmt.Errorf("trace: expected at least 2 fields, got %d", len(fields))
	}
	pc, err := strconv.ParseUint(fields[0], 16, 64)
	if err != nil {
		return traceStep{}, fmt.Errorf("trace: bad pc %q: %w", fields[0], err)
	}
	insn, err := strconv.ParseUint(fields[1], 16, 32)
	if err != nil {
		return traceStep{}, fmt.Errorf("trace: bad insn %q: %w", fields[1], err)
	}
	step := traceStep{pc: pc, insn: insn}
	if len(fields) >= 3 {
		addr, err := strconv.ParseUint(fields[2], 16, 64)
		if err != nil {
			return traceStep{}, fmt.Errorf("trace: bad mem_addr %q: %w", fields[2], err)
		}
		step.memAddr = addr
		step.hasMemAddr = true
	}
	return step, nil
}

func replay(v *validator.Validator, tracePath string) error {
	f, err := os.Open(tracePath)
	if err != nil {
		return err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNo := 0
	denied := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		step, err := parseTraceLine(line)
		if err != nil {
			return fmt.Errorf("line %d: %w", lineNo, err)
		}

		var allowed bool
		if step.hasMemAddr {
			allowed, _, err = v.ValidateCached(step.pc, uint32(step.insn), step.memAddr)
		} else {
			allowed, err = v.Validate(step.pc, uint32(step.insn))
		}
		if err != nil {
			return &tagLoadError{fmt.Errorf("line %d: %w", lineNo, err)}
		}

		if !allowed {
			denied++
			xlog.Warn("instruction denied", "line", lineNo, "pc", step.pc)
			continue
		}

		if hitWatch, err := v.Commit(); err != nil {
			return &tagLoadError{fmt.Errorf("line %d: commit: %w", lineNo, err)}
		} else if hitWatch {
			xlog.Info("watchpoint tripped", "line", lineNo, "pc", step.pc)
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}

	if viol := v.Violation(); viol != nil {
		fmt.Println(validator.FormatViolation(viol, v.Cache, v.Render))
	}
	xlog.Info("replay complete", "steps", lineNo, "denied", denied)
	return nil
}
