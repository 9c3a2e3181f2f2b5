package legalize

import (
	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

// splitValue produces the low and high halves of a wide value.
//
// When the value is made by an iconcat, the halves already exist. A
// block parameter is split into two parameters fed from every
// predecessor. Anything else gets an isplit at the use point, which
// the driver resolves once the producer is narrowed into an iconcat.
func splitValue(f *ir.Func, g *cfg.Graph, cur *ir.Cursor, v ir.Value) (lo, hi ir.Value) {
	v = f.ResolveAlias(v)
	d := f.Vals[v]

	switch {
	case d.Inst != ir.Nil:
		if x, ok := f.Insts[d.Inst].(ir.Iconcat); ok {
			return f.ResolveAlias(x.Lo), f.ResolveAlias(x.Hi)
		}
	case d.Block != ir.Nil:
		return splitBlockParam(f, g, d.Block, d.Num, v)
	}

	half, ok := f.VType[v].Half()
	if !ok {
		panic(fault(f, ir.Nil, "cannot split value v%d of %v", v, f.VType[v]))
	}

	res := cur.Ins(ir.Isplit{Arg: v}, half, half)

	return res[0], res[1]
}

// splitBlockParam replaces the wide parameter with two half
// parameters, reconstructs the wide value with an iconcat at the block
// head for the remaining uses, and makes every predecessor pass both
// halves.
func splitBlockParam(f *ir.Func, g *cfg.Graph, b ir.Block, num int, v ir.Value) (lo, hi ir.Value) {
	tp := f.VType[v]

	half, ok := tp.Half()
	if !ok {
		panic(fault(f, ir.Nil, "cannot split parameter v%d of %v", v, tp))
	}

	lo, hi = f.SplitParam(b, num, half, half)

	cat := ir.NewCursor(f).AtBlockHead(b).Ins1(ir.Iconcat{Lo: lo, Hi: hi}, tp)
	f.ChangeToAlias(v, cat)

	// The hi half goes at the end of the argument list, mirroring
	// SplitParam appending the hi parameter at the end.
	for _, p := range g.Preds(b) {
		pcur := ir.NewCursor(f).AtInst(p.Inst)

		switch x := f.Insts[p.Inst].(type) {
		case ir.Jump:
			al, ah := splitValue(f, g, pcur, x.Args[num])
			x.Args[num] = al
			x.Args = append(x.Args, ah)
			f.Insts[p.Inst] = x
		case ir.Brz:
			al, ah := splitValue(f, g, pcur, x.Args[num])
			x.Args[num] = al
			x.Args = append(x.Args, ah)
			f.Insts[p.Inst] = x
		case ir.Brnz:
			al, ah := splitValue(f, g, pcur, x.Args[num])
			x.Args[num] = al
			x.Args = append(x.Args, ah)
			f.Insts[p.Inst] = x
		case ir.BrIcmp:
			al, ah := splitValue(f, g, pcur, x.Args[num])
			x.Args[num] = al
			x.Args = append(x.Args, ah)
			f.Insts[p.Inst] = x
		default:
			panic(fault(f, p.Inst, "%v predecessor cannot pass arguments", ir.Name(x)))
		}
	}

	return lo, hi
}

// splitBlockParams eagerly splits parameters wider than the native
// width, so later narrowing in any predecessor or in the block itself
// finds the halves ready.
func splitBlockParams(f *ir.Func, g *cfg.Graph, tgt isa.Target, b ir.Block) {
	// Entry parameters are the ABI's business.
	if b == f.EntryBlock() {
		return
	}

	w := tgt.PointerType().Bits()

	for num := 0; num < len(f.Params[b]); num++ {
		v := f.Params[b][num]
		tp := f.VType[v]

		if !tp.IsInt() || tp.Bits() <= w {
			continue
		}

		splitBlockParam(f, g, b, num, v)
	}
}

// simplifyBranchArgs resolves aliased operands of a branch in place,
// so expanders see the real values.
func simplifyBranchArgs(f *ir.Func, in ir.Inst) {
	switch x := f.Insts[in].(type) {
	case ir.Brz:
		x.Arg = f.ResolveAlias(x.Arg)
		resolveAliases(f, x.Args)
		f.Insts[in] = x
	case ir.Brnz:
		x.Arg = f.ResolveAlias(x.Arg)
		resolveAliases(f, x.Args)
		f.Insts[in] = x
	case ir.BrIcmp:
		x.L = f.ResolveAlias(x.L)
		x.R = f.ResolveAlias(x.R)
		resolveAliases(f, x.Args)
		f.Insts[in] = x
	case ir.BrTable:
		x.Arg = f.ResolveAlias(x.Arg)
		f.Insts[in] = x
	}
}

func resolveAliases(f *ir.Func, args []ir.Value) {
	for i, a := range args {
		args[i] = f.ResolveAlias(a)
	}
}
