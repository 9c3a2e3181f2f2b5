package ir

import "fmt"

// Name is the textual opcode of an instruction variant.
func Name(x any) string {
	switch x.(type) {
	case Iconst:
		return "iconst"
	case F32const:
		return "f32const"
	case F64const:
		return "f64const"
	case Iadd:
		return "iadd"
	case IaddImm:
		return "iadd_imm"
	case IaddCout:
		return "iadd_cout"
	case IaddCin:
		return "iadd_cin"
	case Icmp:
		return "icmp"
	case IcmpImm:
		return "icmp_imm"
	case Uextend:
		return "uextend"
	case Bitcast:
		return "bitcast"
	case Iconcat:
		return "iconcat"
	case Isplit:
		return "isplit"
	case Select:
		return "select"
	case GlobalGet:
		return "global_get"
	case GetPinnedReg:
		return "get_pinned_reg"
	case HeapAddr:
		return "heap_addr"
	case Load:
		return "load"
	case Store:
		return "store"
	case StackLoad:
		return "stack_load"
	case StackStore:
		return "stack_store"
	case StackAddr:
		return "stack_addr"
	case Trap:
		return "trap"
	case Trapz:
		return "trapz"
	case Trapnz:
		return "trapnz"
	case Jump:
		return "jump"
	case Brz:
		return "brz"
	case Brnz:
		return "brnz"
	case BrIcmp:
		return "br_icmp"
	case BrTable:
		return "br_table"
	case JumpTableBase:
		return "jump_table_base"
	case JumpTableEntry:
		return "jump_table_entry"
	case IndirectJumpTableBr:
		return "indirect_jump_table_br"
	case Call:
		return "call"
	case Return:
		return "return"
	}

	return fmt.Sprintf("%T", x)
}

func (t Type) String() string {
	switch t {
	case B1:
		return "b1"
	case I8:
		return "i8"
	case I16:
		return "i16"
	case I32:
		return "i32"
	case I64:
		return "i64"
	case I128:
		return "i128"
	case F32:
		return "f32"
	case F64:
		return "f64"
	}

	return fmt.Sprintf("type(%d)", int8(t))
}

func (f *Func) String() string {
	return string(f.Format(nil))
}

// Format appends a textual form of the function in layout order.
func (f *Func) Format(b []byte) []byte {
	b = fmt.Appendf(b, "func %v(", f.Name)

	for i, tp := range f.Sig.In {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = fmt.Appendf(b, "%v", tp)
	}

	b = append(b, ')')

	for i, tp := range f.Sig.Out {
		if i == 0 {
			b = append(b, " -> "...)
		} else {
			b = append(b, ", "...)
		}

		b = fmt.Appendf(b, "%v", tp)
	}

	b = append(b, " {\n"...)

	for _, blk := range f.Layout {
		b = fmt.Appendf(b, "block%d", blk)

		if len(f.Params[blk]) != 0 {
			b = append(b, '(')

			for i, v := range f.Params[blk] {
				if i != 0 {
					b = append(b, ", "...)
				}

				b = fmt.Appendf(b, "v%d: %v", v, f.VType[v])
			}

			b = append(b, ')')
		}

		b = append(b, ":\n"...)

		for _, in := range f.Code[blk] {
			b = append(b, '\t')
			b = f.formatInst(b, in)
			b = append(b, '\n')
		}
	}

	b = append(b, "}\n"...)

	return b
}

func (f *Func) formatInst(b []byte, in Inst) []byte {
	for i, v := range f.Results[in] {
		if i != 0 {
			b = append(b, ", "...)
		}

		b = fmt.Appendf(b, "v%d", v)
	}

	if len(f.Results[in]) != 0 {
		b = append(b, " = "...)
	}

	b = append(b, Name(f.Insts[in])...)

	if res := f.Results[in]; len(res) != 0 {
		b = fmt.Appendf(b, ".%v", f.VType[res[0]])
	}

	switch x := f.Insts[in].(type) {
	case Iconst:
		b = fmt.Appendf(b, " %d", x.Imm)
	case F32const:
		b = fmt.Appendf(b, " 0x%08x", x.Bits)
	case F64const:
		b = fmt.Appendf(b, " 0x%016x", x.Bits)
	case Iadd:
		b = fmt.Appendf(b, " v%d, v%d", x.L, x.R)
	case IaddImm:
		b = fmt.Appendf(b, " v%d, %d", x.L, x.Imm)
	case IaddCout:
		b = fmt.Appendf(b, " v%d, v%d", x.L, x.R)
	case IaddCin:
		b = fmt.Appendf(b, " v%d, v%d, v%d", x.L, x.R, x.Cin)
	case Icmp:
		b = fmt.Appendf(b, " %v v%d, v%d", x.Cond, x.L, x.R)
	case IcmpImm:
		b = fmt.Appendf(b, " %v v%d, %d", x.Cond, x.L, x.Imm)
	case Uextend:
		b = fmt.Appendf(b, " v%d", x.Arg)
	case Bitcast:
		b = fmt.Appendf(b, " v%d", x.Arg)
	case Iconcat:
		b = fmt.Appendf(b, " v%d, v%d", x.Lo, x.Hi)
	case Isplit:
		b = fmt.Appendf(b, " v%d", x.Arg)
	case Select:
		b = fmt.Appendf(b, " v%d, v%d, v%d", x.Ctrl, x.T, x.F)
	case GlobalGet:
		b = fmt.Appendf(b, " gv%d", x.GV)
	case GetPinnedReg:
	case HeapAddr:
		b = fmt.Appendf(b, " heap%d, v%d, %d", x.Heap, x.Offset, x.Size)
	case Load:
		b = f.formatFlags(b, x.Flags)
		b = fmt.Appendf(b, " v%d%+d", x.Ptr, x.Off)
	case Store:
		b = f.formatFlags(b, x.Flags)
		b = fmt.Appendf(b, " v%d, v%d%+d", x.Val, x.Ptr, x.Off)
	case StackLoad:
		b = fmt.Appendf(b, " ss%d%+d", x.Slot, x.Off)
	case StackStore:
		b = fmt.Appendf(b, " v%d, ss%d%+d", x.Val, x.Slot, x.Off)
	case StackAddr:
		b = fmt.Appendf(b, " ss%d%+d", x.Slot, x.Off)
	case Trap:
		b = fmt.Appendf(b, " %v", x.Code)
	case Trapz:
		b = fmt.Appendf(b, " v%d, %v", x.Arg, x.Code)
	case Trapnz:
		b = fmt.Appendf(b, " v%d, %v", x.Arg, x.Code)
	case Jump:
		b = f.formatDst(b, x.Dst, x.Args)
	case Brz:
		b = fmt.Appendf(b, " v%d,", x.Arg)
		b = f.formatDst(b, x.Dst, x.Args)
	case Brnz:
		b = fmt.Appendf(b, " v%d,", x.Arg)
		b = f.formatDst(b, x.Dst, x.Args)
	case BrIcmp:
		b = fmt.Appendf(b, " %v v%d, v%d,", x.Cond, x.L, x.R)
		b = f.formatDst(b, x.Dst, x.Args)
	case BrTable:
		b = fmt.Appendf(b, " v%d, block%d, jt%d", x.Arg, x.Default, x.Table)
	case JumpTableBase:
		b = fmt.Appendf(b, " jt%d", x.Table)
	case JumpTableEntry:
		b = fmt.Appendf(b, " v%d, v%d, %d, jt%d", x.Arg, x.Base, x.Size, x.Table)
	case IndirectJumpTableBr:
		b = fmt.Appendf(b, " v%d, jt%d", x.Addr, x.Table)
	case Call:
		b = fmt.Appendf(b, " %v", x.Func)
		b = f.formatArgs(b, x.Args)
	case Return:
		b = f.formatArgs(b, x.Args)
	default:
		b = fmt.Appendf(b, " %+v", x)
	}

	return b
}

func (f *Func) formatDst(b []byte, dst Block, args []Value) []byte {
	b = fmt.Appendf(b, " block%d", dst)

	if len(args) != 0 {
		b = append(b, '(')

		for i, v := range args {
			if i != 0 {
				b = append(b, ", "...)
			}

			b = fmt.Appendf(b, "v%d", v)
		}

		b = append(b, ')')
	}

	return b
}

func (f *Func) formatArgs(b []byte, args []Value) []byte {
	for i, v := range args {
		if i != 0 {
			b = append(b, ',')
		}

		b = fmt.Appendf(b, " v%d", v)
	}

	return b
}

func (f *Func) formatFlags(b []byte, fl MemFlags) []byte {
	if fl&FlagNotrap != 0 {
		b = append(b, " notrap"...)
	}

	if fl&FlagAligned != 0 {
		b = append(b, " aligned"...)
	}

	return b
}
