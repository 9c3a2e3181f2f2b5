package legalize

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/slowlang/lir/compiler/interp"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

func simple64() isa.Simple {
	return isa.NewSimple(ir.I64, isa.Flags{})
}

func TestExpandCondTrap(t *testing.T) {
	build := func() *ir.Func {
		f := ir.NewFunc("cond_trap", ir.Signature{In: []ir.Type{ir.I64}, Out: []ir.Type{ir.I64}})

		entry := f.AddBlock()
		x := f.Param(entry, ir.I64)

		c := f.Emit1(entry, ir.IcmpImm{Cond: ir.Eq, L: x, Imm: 0}, ir.B1)
		f.Emit(entry, ir.Trapz{Arg: c, Code: ir.TrapUser})
		f.Emit(entry, ir.Return{Args: []ir.Value{x}})

		return f
	}

	f := build()
	entry := f.EntryBlock()

	_, g := legalizeFunc(t, f, simple64())

	// trapz branches over an unconditional trap block.
	d := cmp.Diff([]string{"icmp_imm", "brnz", "jump"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	require.Len(t, f.Layout, 3)
	trapBlk, resume := f.Layout[1], f.Layout[2]

	d = cmp.Diff([]string{"trap"}, blockOps(f, trapBlk))
	if d != "" {
		t.Errorf("trap block ops (-want +got):\n%s", d)
	}

	d = cmp.Diff([]string{"return"}, blockOps(f, resume))
	if d != "" {
		t.Errorf("resume ops (-want +got):\n%s", d)
	}

	assert.ElementsMatch(t, []ir.Block{trapBlk, resume}, g.Succs(entry))
	assert.Empty(t, g.Succs(trapBlk))

	for _, x := range []uint64{0, 5} {
		want, wantCode := run(t, interp.New(build()), x)
		got, code := run(t, interp.New(f), x)

		assert.Equal(t, wantCode, code, "x %d", x)
		assert.Equal(t, want, got, "x %d", x)
	}
}

func TestExpandSelect(t *testing.T) {
	build := func() *ir.Func {
		f := ir.NewFunc("pick", ir.Signature{In: []ir.Type{ir.I32, ir.I64, ir.I64}, Out: []ir.Type{ir.I64}})

		entry := f.AddBlock()
		c := f.Param(entry, ir.I32)
		a := f.Param(entry, ir.I64)
		b := f.Param(entry, ir.I64)

		s := f.Emit1(entry, ir.Select{Ctrl: c, T: a, F: b}, ir.I64)
		f.Emit(entry, ir.Return{Args: []ir.Value{s}})

		return f
	}

	f := build()
	entry := f.EntryBlock()

	_, g := legalizeFunc(t, f, simple64())

	d := cmp.Diff([]string{"brnz", "jump"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	require.Len(t, f.Layout, 2)
	join := f.Layout[1]

	// The select result became the join block parameter.
	require.Len(t, f.Params[join], 1)
	assert.Equal(t, []ir.Block{join}, g.Succs(entry))

	for _, c := range []uint64{0, 1, 7} {
		want, wantCode := run(t, interp.New(build()), c, 100, 200)
		got, code := run(t, interp.New(f), c, 100, 200)

		assert.Equal(t, wantCode, code, "ctrl %d", c)
		assert.Equal(t, want, got, "ctrl %d", c)
	}
}

func TestExpandBrIcmp(t *testing.T) {
	build := func() *ir.Func {
		f := ir.NewFunc("br_cmp", ir.Signature{In: []ir.Type{ir.I64, ir.I64}, Out: []ir.Type{ir.I64}})

		entry := f.AddBlock()
		bt := f.AddBlock()
		bf := f.AddBlock()

		a := f.Param(entry, ir.I64)
		b := f.Param(entry, ir.I64)

		f.Emit(entry, ir.BrIcmp{Cond: ir.Ult, L: a, R: b, Dst: bt})
		f.Emit(entry, ir.Jump{Dst: bf})

		one := f.Emit1(bt, ir.Iconst{Imm: 1}, ir.I64)
		f.Emit(bt, ir.Return{Args: []ir.Value{one}})

		zero := f.Emit1(bf, ir.Iconst{Imm: 0}, ir.I64)
		f.Emit(bf, ir.Return{Args: []ir.Value{zero}})

		return f
	}

	f := build()
	entry := f.EntryBlock()

	legalizeFunc(t, f, simple64())

	d := cmp.Diff([]string{"icmp", "brnz", "jump"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	for _, args := range [][]uint64{{1, 2}, {2, 1}, {3, 3}} {
		want, wantCode := run(t, interp.New(build()), args...)
		got, code := run(t, interp.New(f), args...)

		assert.Equal(t, wantCode, code, "args %v", args)
		assert.Equal(t, want, got, "args %v", args)
	}
}

func brTableFunc() *ir.Func {
	f := ir.NewFunc("dispatch", ir.Signature{In: []ir.Type{ir.I32}, Out: []ir.Type{ir.I64}})

	entry := f.AddBlock()
	b0 := f.AddBlock()
	b1 := f.AddBlock()
	b2 := f.AddBlock()
	def := f.AddBlock()
	tab := f.NewTable(b0, b1, b2)

	i := f.Param(entry, ir.I32)
	f.Emit(entry, ir.BrTable{Arg: i, Default: def, Table: tab})

	for k, b := range []ir.Block{b0, b1, b2} {
		v := f.Emit1(b, ir.Iconst{Imm: int64(k * 10)}, ir.I64)
		f.Emit(b, ir.Return{Args: []ir.Value{v}})
	}

	v := f.Emit1(def, ir.Iconst{Imm: 99}, ir.I64)
	f.Emit(def, ir.Return{Args: []ir.Value{v}})

	return f
}

func TestExpandBrTableJumpTable(t *testing.T) {
	f := brTableFunc()
	entry := f.EntryBlock()

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{JumpTables: true}))

	d := cmp.Diff([]string{"icmp_imm", "brnz", "jump"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	assert.Equal(t, 1, countOps(f, "indirect_jump_table_br"))
	assert.Equal(t, 1, countOps(f, "jump_table_base"))
	assert.Equal(t, 1, countOps(f, "jump_table_entry"))
	assert.Zero(t, countOps(f, "br_table"))
	assert.NotEmpty(t, f.Tables)
}

func TestExpandBrTableCondChain(t *testing.T) {
	f := brTableFunc()

	legalizeFunc(t, f, simple64())

	assert.Zero(t, countOps(f, "br_table"))
	assert.Zero(t, countOps(f, "indirect_jump_table_br"))
	assert.Equal(t, 3, countOps(f, "icmp_imm"))
	assert.Equal(t, 3, countOps(f, "brnz"))

	// The tables are cleared, nothing can use them anymore.
	assert.Empty(t, f.Tables)
}

func TestBrTableSemantics(t *testing.T) {
	jt := brTableFunc()
	legalizeFunc(t, jt, isa.NewSimple(ir.I64, isa.Flags{JumpTables: true}))

	chain := brTableFunc()
	legalizeFunc(t, chain, simple64())

	for i := uint64(0); i <= 4; i++ {
		want, wantCode := run(t, interp.New(brTableFunc()), i)

		got, code := run(t, interp.New(jt), i)
		assert.Equal(t, wantCode, code, "jt, index %d", i)
		assert.Equal(t, want, got, "jt, index %d", i)

		got, code = run(t, interp.New(chain), i)
		assert.Equal(t, wantCode, code, "chain, index %d", i)
		assert.Equal(t, want, got, "chain, index %d", i)
	}
}

func TestExpandFconst(t *testing.T) {
	const pi = 0x400921fb54442d18

	f := ir.NewFunc("fval", ir.Signature{Out: []ir.Type{ir.F64}})

	entry := f.AddBlock()
	v := f.Emit1(entry, ir.F64const{Bits: pi}, ir.F64)
	f.Emit(entry, ir.Return{Args: []ir.Value{v}})

	legalizeFunc(t, f, simple64())

	d := cmp.Diff([]string{"iconst", "bitcast", "return"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	res, code := run(t, interp.New(f))
	assert.Equal(t, ir.TrapCode(""), code)
	assert.Equal(t, []uint64{pi}, res)
}

func TestExpandStackAccess(t *testing.T) {
	build := func() *ir.Func {
		f := ir.NewFunc("spill", ir.Signature{In: []ir.Type{ir.I64}, Out: []ir.Type{ir.I64}})

		slot := f.NewSlot(16)

		entry := f.AddBlock()
		x := f.Param(entry, ir.I64)

		f.Emit(entry, ir.StackStore{Val: x, Slot: slot, Off: 8})
		y := f.Emit1(entry, ir.StackLoad{Slot: slot, Off: 8}, ir.I64)
		f.Emit(entry, ir.Return{Args: []ir.Value{y}})

		return f
	}

	f := build()
	entry := f.EntryBlock()

	legalizeFunc(t, f, simple64())

	d := cmp.Diff([]string{"stack_addr", "store", "stack_addr", "load", "return"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	// Stack accesses cannot trap and are aligned.
	for _, b := range f.Layout {
		for _, in := range f.Code[b] {
			switch x := f.Insts[in].(type) {
			case ir.Load:
				assert.Equal(t, ir.TrustedFlags(), x.Flags)
			case ir.Store:
				assert.Equal(t, ir.TrustedFlags(), x.Flags)
			}
		}
	}

	want, wantCode := run(t, interp.New(build()), 0xdead_beef)
	got, code := run(t, interp.New(f), 0xdead_beef)

	assert.Equal(t, wantCode, code)
	assert.Equal(t, want, got)
}
