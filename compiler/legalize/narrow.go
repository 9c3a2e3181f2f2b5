package legalize

import (
	"math"

	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

// narrow rewrites an operation on a type wider than the target's
// native width into operations on the halves. Reports false when no
// pattern applies.
func narrow(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst) bool {
	w := tgt.PointerType().Bits()

	switch x := f.Insts[in].(type) {
	case ir.Load:
		if f.VType[f.Results[in][0]].Bits() > w {
			narrowLoad(f, in, x)
			return true
		}
	case ir.Store:
		if f.VType[f.ResolveAlias(x.Val)].Bits() > w {
			narrowStore(f, in, x)
			return true
		}
	case ir.Iadd:
		if f.VType[f.Results[in][0]].Bits() > w {
			narrowIadd(f, g, in, x)
			return true
		}
	}

	return false
}

// narrowLoad splits a wide load into two loads of the halves, low half
// at the original address.
func narrowLoad(f *ir.Func, in ir.Inst, x ir.Load) {
	tp := f.VType[f.Results[in][0]]

	half, ok := tp.Half()
	if !ok {
		panic(fault(f, in, "cannot narrow load of %v", tp))
	}

	cur := ir.NewCursor(f).AtInst(in)
	hioff := addOffset(f, in, x.Off, int32(half.Bits()/8))

	lo := cur.Ins1(ir.Load{Flags: x.Flags, Ptr: x.Ptr, Off: x.Off}, half)
	hi := cur.Ins1(ir.Load{Flags: x.Flags, Ptr: x.Ptr, Off: hioff}, half)

	f.Replace(in, ir.Iconcat{Lo: lo, Hi: hi}, tp)
}

// narrowStore splits the value and stores the halves separately.
func narrowStore(f *ir.Func, in ir.Inst, x ir.Store) {
	val := f.ResolveAlias(x.Val)
	tp := f.VType[val]

	half, ok := tp.Half()
	if !ok {
		panic(fault(f, in, "cannot narrow store of %v", tp))
	}

	cur := ir.NewCursor(f).AtInst(in)
	hioff := addOffset(f, in, x.Off, int32(half.Bits()/8))

	res := cur.Ins(ir.Isplit{Arg: val}, half, half)
	cur.Ins(ir.Store{Flags: x.Flags, Val: res[0], Ptr: x.Ptr, Off: x.Off})
	cur.Ins(ir.Store{Flags: x.Flags, Val: res[1], Ptr: x.Ptr, Off: hioff})

	cur.Remove(in)
}

// narrowIadd adds the halves chaining the carry.
func narrowIadd(f *ir.Func, g *cfg.Graph, in ir.Inst, x ir.Iadd) {
	tp := f.VType[f.Results[in][0]]

	half, ok := tp.Half()
	if !ok {
		panic(fault(f, in, "cannot narrow iadd of %v", tp))
	}

	cur := ir.NewCursor(f).AtInst(in)

	xl, xh := splitValue(f, g, cur, x.L)
	yl, yh := splitValue(f, g, cur, x.R)

	lo := cur.Ins(ir.IaddCout{L: xl, R: yl}, half, ir.B1)
	hi := cur.Ins1(ir.IaddCin{L: xh, R: yh, Cin: lo[1]}, half)

	f.Replace(in, ir.Iconcat{Lo: lo[0], Hi: hi}, tp)
}

func addOffset(f *ir.Func, in ir.Inst, off, d int32) int32 {
	if off > math.MaxInt32-d {
		panic(fault(f, in, "memory offset overflow: %d+%d", off, d))
	}

	return off + d
}
