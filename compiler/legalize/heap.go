package legalize

import (
	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

// expandHeapAddr turns heap_addr into a bounds check followed by plain
// pointer arithmetic. The access traps with heap_oob unless
// offset + size <= bound, offset and size taken as untrapped integers.
func expandHeapAddr(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst, x ir.HeapAddr) {
	offset := f.ResolveAlias(x.Offset)

	switch st := f.Heaps[x.Heap].Style.(type) {
	case ir.DynamicBound:
		dynamicAddr(f, tgt, in, x.Heap, offset, uint64(x.Size), st.BoundGV)
	case ir.StaticBound:
		staticAddr(f, g, tgt, in, x.Heap, offset, uint64(x.Size), st.Bound)
	default:
		panic(fault(f, in, "heap %v: unknown bound style %T", x.Heap, st))
	}
}

func dynamicAddr(f *ir.Func, tgt isa.Target, in ir.Inst, h ir.Heap, offset ir.Value, size uint64, boundGV ir.GlobalValue) {
	offTp := f.VType[offset]
	addrTp := f.VType[f.Results[in][0]]
	minSize := f.Heaps[h].MinSize

	cur := ir.NewCursor(f).AtInst(in)

	bound := cur.Ins1(ir.GlobalGet{GV: boundGV}, offTp)

	var oob ir.Value

	switch {
	case size == 1:
		// offset > bound-1 is the same as offset >= bound.
		oob = cur.Ins1(ir.Icmp{Cond: ir.Uge, L: offset, R: bound}, ir.B1)
	case size <= minSize:
		// bound >= min_size >= size, so bound-size cannot wrap.
		adj := cur.Ins1(ir.IaddImm{L: bound, Imm: -int64(size)}, offTp)
		oob = cur.Ins1(ir.Icmp{Cond: ir.Ugt, L: offset, R: adj}, ir.B1)
	default:
		// offset+size can wrap around; catch the carry explicitly.
		sz := cur.Ins1(ir.Iconst{Imm: int64(size)}, offTp)
		sum := cur.Ins(ir.IaddCout{L: offset, R: sz}, offTp, ir.B1)
		cur.Ins(ir.Trapnz{Arg: sum[1], Code: ir.TrapHeapOutOfBounds})
		oob = cur.Ins1(ir.Icmp{Cond: ir.Ugt, L: sum[0], R: bound}, ir.B1)
	}

	cur.Ins(ir.Trapnz{Arg: oob, Code: ir.TrapHeapOutOfBounds})

	computeAddr(f, tgt, in, h, addrTp, offset, offTp)
}

func staticAddr(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst, h ir.Heap, offset ir.Value, size, bound uint64) {
	offTp := f.VType[offset]
	addrTp := f.VType[f.Results[in][0]]

	cur := ir.NewCursor(f).AtInst(in)

	// The access cannot fit no matter the offset. Trap unconditionally
	// and leave a dummy address for the now unreachable users.
	if size > bound {
		old := f.IBlock[in]

		cur.Ins(ir.Trap{Code: ir.TrapHeapOutOfBounds})
		f.Replace(in, ir.Iconst{Imm: 0}, addrTp)

		nb := f.NewBlock()
		cur.InsertBlock(nb)

		g.RecomputeBlock(f, old)
		g.RecomputeBlock(f, nb)

		return
	}

	limit := bound - size

	// A 32-bit offset cannot exceed a limit of 2^32-1, the check would
	// be always false.
	if offTp != ir.I32 || limit < 0xffff_ffff {
		var oob ir.Value

		if limit&1 == 1 {
			// Test offset >= limit-1 when the limit is odd: the even
			// immediate is cheaper to materialize on most targets.
			oob = cur.Ins1(ir.IcmpImm{Cond: ir.Uge, L: offset, Imm: int64(limit) - 1}, ir.B1)
		} else {
			oob = cur.Ins1(ir.IcmpImm{Cond: ir.Ugt, L: offset, Imm: int64(limit)}, ir.B1)
		}

		cur.Ins(ir.Trapnz{Arg: oob, Code: ir.TrapHeapOutOfBounds})
	}

	computeAddr(f, tgt, in, h, addrTp, offset, offTp)
}

// computeAddr replaces the checked heap_addr with base + extended
// offset arithmetic.
func computeAddr(f *ir.Func, tgt isa.Target, in ir.Inst, h ir.Heap, addrTp ir.Type, offset ir.Value, offTp ir.Type) {
	cur := ir.NewCursor(f).AtInst(in)

	if offTp.Bits() < addrTp.Bits() {
		offset = cur.Ins1(ir.Uextend{Arg: offset}, addrTp)
	}

	fl := tgt.Flags()

	var base ir.Value
	if fl.PinnedReg && fl.PinnedRegHeapBase {
		base = cur.Ins1(ir.GetPinnedReg{}, addrTp)
	} else {
		base = cur.Ins1(ir.GlobalGet{GV: f.Heaps[h].Base}, addrTp)
	}

	f.Replace(in, ir.Iadd{L: base, R: offset}, addrTp)
}
