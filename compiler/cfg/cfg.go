package cfg

import (
	"github.com/slowlang/lir/compiler/ir"
)

type (
	// Graph is the derived predecessor/successor index over a
	// function's blocks. It is not authoritative: after a structural
	// edit only the touched blocks need RecomputeBlock, entries for
	// untouched blocks stay valid.
	Graph struct {
		preds [][]Pred
		succs [][]ir.Block
	}

	// Pred is an incoming edge: the branch or terminator instruction
	// and the block holding it.
	Pred struct {
		Block ir.Block
		Inst  ir.Inst
	}
)

func New(f *ir.Func) *Graph {
	g := &Graph{}
	g.Compute(f)

	return g
}

// Compute rebuilds the whole graph.
func (g *Graph) Compute(f *ir.Func) {
	g.preds = make([][]Pred, len(f.Params))
	g.succs = make([][]ir.Block, len(f.Params))

	for _, b := range f.Layout {
		g.computeBlock(f, b)
	}
}

// RecomputeBlock updates the edges out of b after its branch
// instructions changed. Newly created blocks are picked up here too.
func (g *Graph) RecomputeBlock(f *ir.Func, b ir.Block) {
	g.grow(len(f.Params))

	g.invalidate(b)
	g.computeBlock(f, b)
}

func (g *Graph) Preds(b ir.Block) []Pred {
	if int(b) >= len(g.preds) {
		return nil
	}

	return g.preds[b]
}

func (g *Graph) Succs(b ir.Block) []ir.Block {
	if int(b) >= len(g.succs) {
		return nil
	}

	return g.succs[b]
}

func (g *Graph) computeBlock(f *ir.Func, b ir.Block) {
	for _, in := range f.Code[b] {
		x := f.Insts[in]

		if !ir.IsBranch(x) && !ir.IsTerminator(x) {
			continue
		}

		for _, dst := range ir.BranchTargets(f, x) {
			g.addEdge(b, in, dst)
		}
	}
}

func (g *Graph) invalidate(b ir.Block) {
	for _, s := range g.succs[b] {
		preds := g.preds[s][:0]

		for _, p := range g.preds[s] {
			if p.Block != b {
				preds = append(preds, p)
			}
		}

		g.preds[s] = preds
	}

	g.succs[b] = g.succs[b][:0]
}

func (g *Graph) addEdge(b ir.Block, in ir.Inst, dst ir.Block) {
	for _, s := range g.succs[b] {
		if s == dst {
			goto havesucc
		}
	}

	g.succs[b] = append(g.succs[b], dst)

havesucc:
	for _, p := range g.preds[dst] {
		if p.Block == b && p.Inst == in {
			return
		}
	}

	g.preds[dst] = append(g.preds[dst], Pred{Block: b, Inst: in})
}

func (g *Graph) grow(n int) {
	for len(g.preds) < n {
		g.preds = append(g.preds, nil)
		g.succs = append(g.succs, nil)
	}
}
