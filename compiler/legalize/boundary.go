package legalize

import (
	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

type (
	// ABILegalizer adapts the signature, calls and returns to the
	// target calling convention. The legalizer only drives it; a
	// rewrite reported true is re-scanned like any other.
	ABILegalizer interface {
		LegalizeSignature(f *ir.Func, tgt isa.Target)
		LegalizeCall(f *ir.Func, g *cfg.Graph, in ir.Inst) bool
		LegalizeReturn(f *ir.Func, g *cfg.Graph, in ir.Inst) bool
	}

	// LibcallExpander rewrites an instruction into a library call, the
	// last resort when no expansion pattern applies.
	LibcallExpander interface {
		TryExpandAsCall(f *ir.Func, tgt isa.Target, in ir.Inst) bool
	}

	// NativeABI assumes the function already matches the target
	// calling convention and changes nothing.
	NativeABI struct{}

	// NoLibcalls never rewrites.
	NoLibcalls struct{}
)

func (NativeABI) LegalizeSignature(*ir.Func, isa.Target) {}

func (NativeABI) LegalizeCall(*ir.Func, *cfg.Graph, ir.Inst) bool { return false }

func (NativeABI) LegalizeReturn(*ir.Func, *cfg.Graph, ir.Inst) bool { return false }

func (NoLibcalls) TryExpandAsCall(*ir.Func, isa.Target, ir.Inst) bool { return false }
