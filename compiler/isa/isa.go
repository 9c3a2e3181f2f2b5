package isa

import (
	"github.com/slowlang/lir/compiler/ir"
)

type (
	// Action identifies the expansion procedure the legalizer should
	// run for an instruction the target cannot encode. Dispatch is by
	// this identifier, not by per-instance callbacks.
	Action int

	Flags struct {
		JumpTables        bool // indirect jump table dispatch supported
		PinnedReg         bool // a register is pinned for runtime use
		PinnedRegHeapBase bool // the pinned register holds the heap base
	}

	// Target is the capability oracle: it either assigns a legal
	// encoding to an instruction or names the rewrite action that can
	// get rid of it.
	Target interface {
		Name() string
		PointerType() ir.Type
		Flags() Flags

		// Encode returns (encoding, ActionNone) for a legal
		// instruction, or (0, action) when it must be rewritten.
		Encode(f *ir.Func, in ir.Inst) (ir.Encoding, Action)
	}
)

const (
	ActionNone Action = iota
	ActionExpand
	ActionNarrow
)

func (a Action) String() string {
	switch a {
	case ActionNone:
		return "none"
	case ActionExpand:
		return "expand"
	case ActionNarrow:
		return "narrow"
	}

	return "?"
}
