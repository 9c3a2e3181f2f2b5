package legalize

import (
	"context"

	"nikand.dev/go/heap"
	"tlog.app/go/errors"
	"tlog.app/go/loc"
	"tlog.app/go/tlog"

	"github.com/slowlang/lir/compiler/cfg"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
	"github.com/slowlang/lir/compiler/set"
)

type (
	// Legalizer rewrites a function until every instruction either has
	// a legal encoding for the target or needs none. ABI and libcall
	// handling are pluggable collaborators.
	Legalizer struct {
		ABI  ABILegalizer
		Libc LibcallExpander

		// Rewrites is the number of instruction rewrites the last Func
		// call performed.
		Rewrites int
	}

	instResult int8
)

const (
	instDone instResult = iota
	instRewritten
	instSplitPending
)

func New() *Legalizer {
	return &Legalizer{}
}

// Func legalizes the function in place and keeps the control flow
// graph in sync with every structural edit.
func (l *Legalizer) Func(ctx context.Context, f *ir.Func, g *cfg.Graph, tgt isa.Target) (err error) {
	tr, ctx := tlog.SpawnFromContextAndWrap(ctx, "legalize func", "name", f.Name, "isa", tgt.Name())
	defer tr.Finish("err", &err)

	l.Rewrites = 0

	if tr.If("dump_func_before") {
		tr.Printw("func before", "text", f.String())
	}

	l.abi().LegalizeSignature(f, tgt)

	pos := ir.NewCursor(f)

	// isplit resolution can depend on an iconcat that does not exist
	// yet. Such instructions are retried once after the walk, in
	// handle order, which is the order they were first created in.
	pending := heap.Heap[ir.Inst]{
		Less: func(d []ir.Inst, i, j int) bool { return d[i] < d[j] },
	}
	queued := set.MakeBitmap(f.NumInsts())

	// Blocks are walked in layout order, so blocks appended by
	// expanders are visited when the walk reaches them.
	for b, ok := pos.NextBlock(); ok; b, ok = pos.NextBlock() {
		splitBlockParams(f, g, tgt, b)

		// Position before the instruction being processed, to double
		// back to when it gets rewritten.
		prev := pos.Pos()

		for in, ok := pos.NextInst(); ok; in, ok = pos.NextInst() {
			switch l.legalizeInst(ctx, f, g, tgt, in) {
			case instDone:
				prev = pos.Pos()
			case instRewritten:
				// Revisit the replacement sequence: it may need
				// further expansion and it needs encodings.
				l.Rewrites++
				pos.SetPos(prev)
			case instSplitPending:
				if !queued.IsSet(int(in)) {
					queued.Set(int(in))
					pending.Push(in)
				}
			}
		}
	}

	// By now every iconcat producer exists, so the deferred isplits
	// resolve on the spot.
	for pending.Len() != 0 {
		in := pending.Pop()

		// A re-scan may have resolved it already.
		if f.IBlock[in] == ir.Nil {
			continue
		}

		if l.legalizeInst(ctx, f, g, tgt, in) == instRewritten {
			l.Rewrites++
		}
	}

	// All br_tables are lowered to direct control flow when the target
	// has no indirect dispatch; the tables are garbage now.
	if !tgt.Flags().JumpTables {
		f.Tables = nil
	}

	tr.Printw("legalized", "rewrites", l.Rewrites, "insts", f.NumInsts())

	if tr.If("dump_func_after") {
		tr.Printw("func after", "text", f.String())
	}

	return nil
}

func (l *Legalizer) legalizeInst(ctx context.Context, f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst) instResult {
	tr := tlog.SpanFromContext(ctx)
	x := f.Insts[in]

	// ABI boundaries are converted to the legalized signature first.
	switch {
	case ir.IsCall(x):
		if l.abi().LegalizeCall(f, g, in) {
			return instRewritten
		}
	case ir.IsReturn(x):
		if l.abi().LegalizeReturn(f, g, in) {
			return instRewritten
		}
	case ir.IsBranch(x):
		simplifyBranchArgs(f, in)
	}

	if x, ok := x.(ir.Isplit); ok {
		return l.legalizeSplit(f, g, in, x)
	}

	enc, action := tgt.Encode(f, in)
	if action == isa.ActionNone {
		f.Enc[in] = enc

		return instDone
	}

	tr.V("rewrite").Printw("rewrite", "inst", in, "op", ir.Name(x), "action", action)

	if l.performAction(f, g, tgt, in, action) {
		return instRewritten
	}

	// No pattern either. Try a library call as a last resort.
	if l.libc().TryExpandAsCall(f, tgt, in) {
		return instRewritten
	}

	// Pure control transfer and value plumbing needs no encoding.
	return instDone
}

func (l *Legalizer) legalizeSplit(f *ir.Func, g *cfg.Graph, in ir.Inst, x ir.Isplit) instResult {
	arg := f.ResolveAlias(x.Arg)
	d := f.Vals[arg]

	if d.Inst != ir.Nil {
		if _, ok := f.Insts[d.Inst].(ir.Iconcat); !ok {
			// The producer is not an iconcat (yet). Resolving now
			// would re-insert the same isplit and loop forever.
			return instSplitPending
		}
	}

	res := f.Results[in]
	if len(res) != 2 {
		panic(fault(f, in, "isplit with %d results", len(res)))
	}

	resl, resh := res[0], res[1]

	cur := ir.NewCursor(f).AtInst(in)
	f.ClearResults(in)
	cur.Remove(in)

	lo, hi := splitValue(f, g, cur, arg)

	f.ChangeToAlias(resl, lo)
	f.ChangeToAlias(resh, hi)

	return instRewritten
}

func (l *Legalizer) performAction(f *ir.Func, g *cfg.Graph, tgt isa.Target, in ir.Inst, a isa.Action) bool {
	switch a {
	case isa.ActionExpand:
		return expand(f, g, tgt, in)
	case isa.ActionNarrow:
		return narrow(f, g, tgt, in)
	}

	panic(fault(f, in, "unknown rewrite action %v", a))
}

func (l *Legalizer) abi() ABILegalizer {
	if l.ABI == nil {
		return NativeABI{}
	}

	return l.ABI
}

func (l *Legalizer) libc() LibcallExpander {
	if l.Libc == nil {
		return NoLibcalls{}
	}

	return l.Libc
}

func (r instResult) String() string {
	switch r {
	case instDone:
		return "done"
	case instRewritten:
		return "rewritten"
	case instSplitPending:
		return "split_pending"
	}

	return "?"
}

func fault(f *ir.Func, in ir.Inst, format string, args ...any) error {
	args = append(args, f.Name, in, loc.Caller(1))

	return errors.New(format+" (func %v, inst %v, from %v)", args...)
}
