package main

import (
	"context"
	"fmt"
	"os"

	"nikand.dev/go/cli"
	"tlog.app/go/errors"
	"tlog.app/go/tlog"

	"github.com/slowlang/lir/compiler"
	"github.com/slowlang/lir/compiler/ir"
	"github.com/slowlang/lir/compiler/isa"
)

func main() {
	demoCmd := &cli.Command{
		Name:        "demo",
		Description: "legalize a built-in sample function and print it before and after",
		Action:      demoAct,
		Args:        cli.Args{},
	}

	app := &cli.Command{
		Name:        "lir",
		Description: "lir is a low level ir legalization playground",
		Commands: []*cli.Command{
			demoCmd,
		},
	}

	cli.RunAndExit(app, os.Args, os.Environ())
}

func demoAct(c *cli.Command) (err error) {
	ctx := context.Background()
	ctx = tlog.ContextWithSpan(ctx, tlog.Root())

	ptr := ir.I64
	fl := isa.Flags{JumpTables: true}

	for _, a := range c.Args {
		switch a {
		case "ptr=32":
			ptr = ir.I32
		case "ptr=64":
			ptr = ir.I64
		case "no-jump-tables":
			fl.JumpTables = false
		case "pinned-heap-base":
			fl.PinnedReg = true
			fl.PinnedRegHeapBase = true
		default:
			return errors.New("unknown option: %v", a)
		}
	}

	f := sampleFunc()

	fmt.Printf("; before\n%v\n", f)

	_, err = compiler.LegalizeFunc(ctx, f, isa.NewSimple(ptr, fl))
	if err != nil {
		return errors.Wrap(err, "legalize %v", f.Name)
	}

	fmt.Printf("; after\n%v\n", f)

	return nil
}

// sampleFunc exercises most rewrites at once: a dynamic heap access, a
// select, a branch table, a float constant, stack slots and 128-bit
// addition.
func sampleFunc() *ir.Func {
	f := ir.NewFunc("demo", ir.Signature{In: []ir.Type{ir.I32, ir.I32}, Out: []ir.Type{ir.I64}})

	base := f.NewGlobal("heap_base")
	bound := f.NewGlobal("heap_bound")
	h := f.NewHeap(ir.HeapData{Base: base, MinSize: 0x10000, Style: ir.DynamicBound{BoundGV: bound}})
	slot := f.NewSlot(16)

	entry := f.AddBlock()
	b1 := f.AddBlock()
	b2 := f.AddBlock()
	out := f.AddBlock()
	tab := f.NewTable(b1, b2)

	off := f.Param(entry, ir.I32)
	sel := f.Param(entry, ir.I32)

	addr := f.Emit1(entry, ir.HeapAddr{Heap: h, Offset: off, Size: 8}, ir.I64)
	x := f.Emit1(entry, ir.Load{Ptr: addr}, ir.I64)
	f.Emit(entry, ir.StackStore{Val: x, Slot: slot})
	f.Emit(entry, ir.BrTable{Arg: sel, Default: out, Table: tab})

	one := f.Emit1(b1, ir.Iconst{Imm: 1}, ir.I64)
	two := f.Emit1(b1, ir.Iconst{Imm: 2}, ir.I64)
	wide := f.Emit1(b1, ir.Iconcat{Lo: one, Hi: two}, ir.I128)
	dbl := f.Emit1(b1, ir.Iadd{L: wide, R: wide}, ir.I128)
	halves := f.Emit(b1, ir.Isplit{Arg: dbl}, ir.I64, ir.I64)
	cond := f.Emit1(b1, ir.Icmp{Cond: ir.Ult, L: halves[0], R: halves[1]}, ir.B1)
	y := f.Emit1(b1, ir.Select{Ctrl: cond, T: halves[0], F: halves[1]}, ir.I64)
	f.Emit(b1, ir.Return{Args: []ir.Value{y}})

	f.Emit(b2, ir.F64const{Bits: 0x400921fb54442d18}, ir.F64)
	wl := f.Emit1(b2, ir.StackLoad{Slot: slot}, ir.I64)
	f.Emit(b2, ir.Return{Args: []ir.Value{wl}})

	z := f.Emit1(out, ir.StackLoad{Slot: slot}, ir.I64)
	f.Emit(out, ir.Return{Args: []ir.Value{z}})

	return f
}
