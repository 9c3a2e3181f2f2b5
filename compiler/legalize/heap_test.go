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

// heapFunc loads 8 accessible bytes... the access size varies per
// test: f(off) { a = heap_addr h, off, size; return load a }.
//
// Globals: gv0 is the heap base, gv1 the dynamic bound.
func heapFunc(style any, minSize uint64, offTp ir.Type, size uint32) *ir.Func {
	f := ir.NewFunc("heap_access", ir.Signature{In: []ir.Type{offTp}, Out: []ir.Type{ir.I64}})

	base := f.NewGlobal("heap_base")
	f.NewGlobal("heap_bound")

	h := f.NewHeap(ir.HeapData{Base: base, MinSize: minSize, Style: style})

	b := f.AddBlock()
	off := f.Param(b, offTp)

	addr := f.Emit1(b, ir.HeapAddr{Heap: h, Offset: off, Size: size}, ir.I64)
	x := f.Emit1(b, ir.Load{Ptr: addr}, ir.I64)
	f.Emit(b, ir.Return{Args: []ir.Value{x}})

	return f
}

func heapMachine(f *ir.Func, bound uint64, memSize int) *interp.Machine {
	m := interp.New(f)

	m.Mem = make([]byte, memSize)
	for i := range m.Mem {
		m.Mem[i] = byte(i * 7)
	}

	m.Globals[0] = 0 // base
	m.Globals[1] = bound

	return m
}

func findIcmp(f *ir.Func) (ir.Icmp, bool) {
	for _, b := range f.Layout {
		for _, in := range f.Code[b] {
			if x, ok := f.Insts[in].(ir.Icmp); ok {
				return x, true
			}
		}
	}

	return ir.Icmp{}, false
}

func findIcmpImm(f *ir.Func) (ir.IcmpImm, bool) {
	for _, b := range f.Layout {
		for _, in := range f.Code[b] {
			if x, ok := f.Insts[in].(ir.IcmpImm); ok {
				return x, true
			}
		}
	}

	return ir.IcmpImm{}, false
}

func TestDynamicHeapByteAccess(t *testing.T) {
	f := heapFunc(ir.DynamicBound{BoundGV: 1}, 0x10000, ir.I32, 1)

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// size 1: offset >= bound, no bound adjustment at all.
	x, ok := findIcmp(f)
	require.True(t, ok, "icmp not found:\n%v", f)
	assert.Equal(t, ir.Uge, x.Cond)

	assert.Zero(t, countOps(f, "iadd_imm"))
	assert.Zero(t, countOps(f, "iadd_cout"))
}

func TestDynamicHeapSmallAccess(t *testing.T) {
	f := heapFunc(ir.DynamicBound{BoundGV: 1}, 0x10000, ir.I32, 8)

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// size <= min_size: bound-size cannot wrap, no overflow check.
	x, ok := findIcmp(f)
	require.True(t, ok, "icmp not found:\n%v", f)
	assert.Equal(t, ir.Ugt, x.Cond)

	assert.Equal(t, 1, countOps(f, "iadd_imm"))
	assert.Zero(t, countOps(f, "iadd_cout"))
	assert.Equal(t, 1, countOps(f, "trap"))
}

func TestDynamicHeapLargeAccess(t *testing.T) {
	f := heapFunc(ir.DynamicBound{BoundGV: 1}, 0, ir.I32, 8)

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// size > min_size: offset+size can wrap, the carry is checked.
	assert.Equal(t, 1, countOps(f, "iadd_cout"))
	assert.Equal(t, 2, countOps(f, "trap"))
}

func TestDynamicHeapSemantics(t *testing.T) {
	const bound = 0x10000

	for _, minSize := range []uint64{0, bound} {
		for _, off := range []uint64{0, 1, 0xfff0, 0xfff8, 0xfff9, 0xffff, 0x10000, 0x7fff_fff8, 0xffff_fff8} {
			want, wantCode := run(t, heapMachine(heapFunc(ir.DynamicBound{BoundGV: 1}, minSize, ir.I32, 8), bound, bound), off)

			f := heapFunc(ir.DynamicBound{BoundGV: 1}, minSize, ir.I32, 8)
			legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

			got, code := run(t, heapMachine(f, bound, bound), off)

			assert.Equal(t, wantCode, code, "min_size %#x, offset %#x", minSize, off)
			assert.Equal(t, want, got, "min_size %#x, offset %#x", minSize, off)
		}
	}
}

func TestStaticHeapEvenLimit(t *testing.T) {
	f := heapFunc(ir.StaticBound{Bound: 0x1000}, 0, ir.I32, 8)

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	x, ok := findIcmpImm(f)
	require.True(t, ok, "icmp_imm not found:\n%v", f)
	assert.Equal(t, ir.Ugt, x.Cond)
	assert.Equal(t, int64(0x1000-8), x.Imm)
}

func TestStaticHeapOddLimit(t *testing.T) {
	f := heapFunc(ir.StaticBound{Bound: 0x1000}, 0, ir.I32, 9)

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// Odd limit compares >= limit-1, the even immediate is cheaper.
	x, ok := findIcmpImm(f)
	require.True(t, ok, "icmp_imm not found:\n%v", f)
	assert.Equal(t, ir.Uge, x.Cond)
	assert.Equal(t, int64(0x1000-9-1), x.Imm)
}

func TestStaticHeapCheckOmitted(t *testing.T) {
	f := heapFunc(ir.StaticBound{Bound: 1 << 32}, 0, ir.I32, 1)

	entry := f.EntryBlock()

	legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// A 32-bit offset cannot break a 4 GB bound.
	d := cmp.Diff([]string{"uextend", "global_get", "iadd", "load", "return"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}
}

func TestStaticHeapAlwaysOOB(t *testing.T) {
	f := heapFunc(ir.StaticBound{Bound: 70000}, 0, ir.I32, 100000)

	entry := f.EntryBlock()

	_, g := legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

	// The access cannot fit: the trap is unconditional and terminates
	// the block, the rest is split into an unreachable block.
	d := cmp.Diff([]string{"trap"}, blockOps(f, entry))
	if d != "" {
		t.Errorf("entry ops (-want +got):\n%s", d)
	}

	require.Len(t, f.Layout, 2)
	assert.Empty(t, g.Succs(entry))

	dead := f.Layout[1]
	d = cmp.Diff([]string{"iconst", "load", "return"}, blockOps(f, dead))
	if d != "" {
		t.Errorf("dead block ops (-want +got):\n%s", d)
	}

	_, code := run(t, heapMachine(f, 0, 70000), 0)
	assert.Equal(t, ir.TrapHeapOutOfBounds, code)
}

func TestStaticHeapSemantics(t *testing.T) {
	const bound = 0x1000

	for _, off := range []uint64{0, 1, 0xff0, 0xff8, 0xff9, 0xfff, 0x1000, 0xffff_ffff} {
		want, wantCode := run(t, heapMachine(heapFunc(ir.StaticBound{Bound: bound}, 0, ir.I32, 8), 0, bound), off)

		f := heapFunc(ir.StaticBound{Bound: bound}, 0, ir.I32, 8)
		legalizeFunc(t, f, isa.NewSimple(ir.I64, isa.Flags{}))

		got, code := run(t, heapMachine(f, 0, bound), off)

		assert.Equal(t, wantCode, code, "offset %#x", off)
		assert.Equal(t, want, got, "offset %#x", off)
	}
}

func TestHeapPinnedRegBase(t *testing.T) {
	f := heapFunc(ir.DynamicBound{BoundGV: 1}, 0x10000, ir.I32, 8)

	fl := isa.Flags{PinnedReg: true, PinnedRegHeapBase: true}
	legalizeFunc(t, f, isa.NewSimple(ir.I64, fl))

	assert.Equal(t, 1, countOps(f, "get_pinned_reg"))

	// global_get is only used for the bound now.
	assert.Equal(t, 1, countOps(f, "global_get"))
}
