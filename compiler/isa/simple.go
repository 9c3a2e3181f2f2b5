package isa

import (
	"github.com/slowlang/lir/compiler/ir"
)

type (
	// Simple is a register-machine model used by tests and the demo
	// command: base integer operations at native width or below are
	// encodable, pseudo instructions are not and report the action
	// that eliminates them.
	Simple struct {
		Ptr ir.Type
		F   Flags
	}
)

// Opcode recipes in encoding order. Slot 0 is "no encoding".
var recipes = []string{
	"iconst", "f32const", "f64const",
	"iadd", "iadd_imm", "iadd_cout", "iadd_cin",
	"icmp", "icmp_imm",
	"uextend", "bitcast",
	"global_get", "get_pinned_reg", "stack_addr",
	"load", "store",
	"trap",
	"jump", "brz", "brnz",
	"jump_table_base", "jump_table_entry", "indirect_jump_table_br",
	"call", "return",
}

var recipeIdx = func() map[string]ir.Encoding {
	m := make(map[string]ir.Encoding, len(recipes))

	for i, r := range recipes {
		m[r] = ir.Encoding(i + 1)
	}

	return m
}()

func NewSimple(ptr ir.Type, fl Flags) Simple {
	return Simple{Ptr: ptr, F: fl}
}

func (m Simple) Name() string {
	if m.Ptr == ir.I32 {
		return "simple32"
	}

	return "simple64"
}

func (m Simple) PointerType() ir.Type {
	return m.Ptr
}

func (m Simple) Flags() Flags {
	return m.F
}

func (m Simple) Encode(f *ir.Func, in ir.Inst) (ir.Encoding, Action) {
	x := f.Insts[in]
	w := m.Ptr.Bits()

	switch x := x.(type) {
	case ir.HeapAddr, ir.Select, ir.BrIcmp, ir.Trapz, ir.Trapnz,
		ir.BrTable, ir.F32const, ir.F64const,
		ir.StackLoad, ir.StackStore:
		return 0, ActionExpand
	case ir.Iconcat, ir.Isplit:
		// Resolved by the driver or left for later passes.
		return 0, ActionNarrow
	case ir.Load:
		if f.VType[f.Results[in][0]].Bits() > w {
			return 0, ActionNarrow
		}
	case ir.Store:
		if f.VType[x.Val].Bits() > w {
			return 0, ActionNarrow
		}
	case ir.Iadd:
		if f.VType[f.Results[in][0]].Bits() > w {
			return 0, ActionNarrow
		}
	case ir.JumpTableBase, ir.JumpTableEntry, ir.IndirectJumpTableBr:
		if !m.F.JumpTables {
			return 0, ActionExpand
		}
	case ir.GetPinnedReg:
		if !m.F.PinnedReg {
			return 0, ActionExpand
		}
	}

	if e, ok := recipeIdx[ir.Name(x)]; ok {
		return e, ActionNone
	}

	return 0, ActionExpand
}
