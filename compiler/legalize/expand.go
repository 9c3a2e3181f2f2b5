package legalize

import (
	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

// expand rewrites one instruction into an equivalent sequence the
// target has a better chance to encode. Reports false when no pattern
// applies.
func expand(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst) bool {
	switch x := f.Insts[in].(type) {
	case ir.HeapAddr:
		expandHeapAddr(f, g, tgt, in, x)
	case ir.Trapz, ir.Trapnz:
		expandCondTrap(f, g, in)
	case ir.BrTable:
		if tgt.Flags().JumpTables {
			expandBrTableJt(f, g, tgt, in, x)
		} else {
			expandBrTableConds(f, g, in, x)
		}
	case ir.Select:
		expandSelect(f, g, in, x)
	case ir.BrIcmp:
		expandBrIcmp(f, g, in, x)
	case ir.F32const, ir.F64const:
		expandFconst(f, in)
	case ir.StackLoad:
		expandStackLoad(f, tgt, in, x)
	case ir.StackStore:
		expandStackStore(f, tgt, in, x)
	default:
		return false
	}

	return true
}

// expandCondTrap rewrites trapz/trapnz into a branch around an
// unconditional trap block:
//
//	trapnz v0, code
//	..rest..
//
// becomes
//
//	brz v0, resume
//	jump trapblk
//
// trapblk:
//	trap code
//
// resume:
//	..rest..
func expandCondTrap(f *ir.Func, g *cfg.Graph, in ir.Inst) {
	var arg ir.Value
	var code ir.TrapCode
	var invert bool

	switch x := f.Insts[in].(type) {
	case ir.Trapz:
		arg, code = x.Arg, x.Code
		invert = true
	case ir.Trapnz:
		arg, code = x.Arg, x.Code
	default:
		panic(fault(f, in, "expected cond trap, got %v", ir.Name(x)))
	}

	old := f.IBlock[in]
	trapBlk := f.NewBlock()
	resume := f.NewBlock()

	if invert {
		f.Replace(in, ir.Brnz{Arg: arg, Dst: resume})
	} else {
		f.Replace(in, ir.Brz{Arg: arg, Dst: resume})
	}

	cur := ir.NewCursor(f).AfterInst(in)
	cur.Ins(ir.Jump{Dst: trapBlk})

	cur.InsertBlock(trapBlk)
	cur.Ins(ir.Trap{Code: code})

	cur.InsertBlock(resume)

	g.RecomputeBlock(f, old)
	g.RecomputeBlock(f, trapBlk)
	g.RecomputeBlock(f, resume)
}

// expandBrTableJt lowers br_table to an explicit range check and
// indirect dispatch through the table in memory.
func expandBrTableJt(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst, x ir.BrTable) {
	old := f.IBlock[in]
	jtb := f.NewBlock()

	cur := ir.NewCursor(f).AtInst(in)

	n := int64(len(f.Tables[x.Table]))
	oob := cur.Ins1(ir.IcmpImm{Cond: ir.Uge, L: x.Arg, Imm: n}, ir.B1)
	cur.Ins(ir.Brnz{Arg: oob, Dst: x.Default})
	cur.Ins(ir.Jump{Dst: jtb})

	cur.InsertBlock(jtb)

	addrTp := tgt.PointerType()

	arg := x.Arg
	if f.VType[arg].Bits() < addrTp.Bits() {
		arg = cur.Ins1(ir.Uextend{Arg: arg}, addrTp)
	}

	base := cur.Ins1(ir.JumpTableBase{Table: x.Table}, addrTp)
	entry := cur.Ins1(ir.JumpTableEntry{Arg: arg, Base: base, Size: 4, Table: x.Table}, addrTp)
	addr := cur.Ins1(ir.Iadd{L: base, R: entry}, addrTp)
	cur.Ins(ir.IndirectJumpTableBr{Addr: addr, Table: x.Table})

	cur.Remove(in)

	g.RecomputeBlock(f, old)
	g.RecomputeBlock(f, jtb)
}

// expandBrTableConds lowers br_table to a chain of equality branches
// for targets without indirect jumps.
func expandBrTableConds(f *ir.Func, g *cfg.Graph, in ir.Inst, x ir.BrTable) {
	old := f.IBlock[in]
	n := len(f.Tables[x.Table])

	failed := make([]ir.Block, 0, n)
	for i := 1; i < n; i++ {
		failed = append(failed, f.NewBlock())
	}

	cur := ir.NewCursor(f).AtInst(in)

	for i := 0; i < n; i++ {
		dst := f.Tables[x.Table][i]

		t := cur.Ins1(ir.IcmpImm{Cond: ir.Eq, L: x.Arg, Imm: int64(i)}, ir.B1)
		cur.Ins(ir.Brnz{Arg: t, Dst: dst})

		if i+1 < n {
			cur.Ins(ir.Jump{Dst: failed[i]})
			cur.InsertBlock(failed[i])
		}
	}

	cur.Ins(ir.Jump{Dst: x.Default})
	cur.Remove(in)

	g.RecomputeBlock(f, old)
	for _, fb := range failed {
		g.RecomputeBlock(f, fb)
	}
}

// expandSelect moves the result into a block parameter fed from both
// arms:
//
//	v2 = select v0, v1, vf
//
// becomes
//
//	brnz v0, nb(v1)
//	jump nb(vf)
//
// nb(v2):
func expandSelect(f *ir.Func, g *cfg.Graph, in ir.Inst, x ir.Select) {
	old := f.IBlock[in]
	res := f.Results[in][0]

	f.ClearResults(in)

	nb := f.NewBlock()
	f.AttachParam(nb, res)

	f.Replace(in, ir.Brnz{Arg: x.Ctrl, Dst: nb, Args: []ir.Value{x.T}})

	cur := ir.NewCursor(f).AfterInst(in)
	cur.Ins(ir.Jump{Dst: nb, Args: []ir.Value{x.F}})

	cur.InsertBlock(nb)

	g.RecomputeBlock(f, old)
	g.RecomputeBlock(f, nb)
}

// expandBrIcmp splits fused compare-and-branch into icmp + brnz.
func expandBrIcmp(f *ir.Func, g *cfg.Graph, in ir.Inst, x ir.BrIcmp) {
	old := f.IBlock[in]

	res := f.Replace(in, ir.Icmp{Cond: x.Cond, L: x.L, R: x.R}, ir.B1)

	cur := ir.NewCursor(f).AfterInst(in)
	cur.Ins(ir.Brnz{Arg: res[0], Dst: x.Dst, Args: x.Args})

	g.RecomputeBlock(f, old)
	g.RecomputeBlock(f, x.Dst)
}

// expandFconst materializes a scalar float constant through an integer
// register.
func expandFconst(f *ir.Func, in ir.Inst) {
	tp := f.VType[f.Results[in][0]]

	cur := ir.NewCursor(f).AtInst(in)

	var ival ir.Value

	switch x := f.Insts[in].(type) {
	case ir.F32const:
		if tp != ir.F32 {
			panic(fault(f, in, "expected scalar f32, got %v", tp))
		}

		ival = cur.Ins1(ir.Iconst{Imm: int64(x.Bits)}, ir.I32)
	case ir.F64const:
		if tp != ir.F64 {
			panic(fault(f, in, "expected scalar f64, got %v", tp))
		}

		ival = cur.Ins1(ir.Iconst{Imm: int64(x.Bits)}, ir.I64)
	default:
		panic(fault(f, in, "expected fconst, got %v", ir.Name(f.Insts[in])))
	}

	f.Replace(in, ir.Bitcast{Arg: ival}, tp)
}

// Stack slots are always accessible and aligned, the explicit address
// needs no further checks.

func expandStackLoad(f *ir.Func, tgt isa.Target, in ir.Inst, x ir.StackLoad) {
	tp := f.VType[f.Results[in][0]]

	cur := ir.NewCursor(f).AtInst(in)
	addr := cur.Ins1(ir.StackAddr{Slot: x.Slot, Off: x.Off}, tgt.PointerType())

	f.Replace(in, ir.Load{Flags: ir.TrustedFlags(), Ptr: addr}, tp)
}

func expandStackStore(f *ir.Func, tgt isa.Target, in ir.Inst, x ir.StackStore) {
	cur := ir.NewCursor(f).AtInst(in)
	addr := cur.Ins1(ir.StackAddr{Slot: x.Slot, Off: x.Off}, tgt.PointerType())

	f.Replace(in, ir.Store{Flags: ir.TrustedFlags(), Val: x.Val, Ptr: addr})
}
