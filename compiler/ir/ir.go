package ir

type (
	// Handles into the function arenas. Instructions and values keep
	// their handle for their whole life, so positions and operand
	// references survive layout edits.
	Inst  int
	Block int
	Value int

	Heap        int
	Table       int
	GlobalValue int
	StackSlot   int

	Type int8

	Cond string

	TrapCode string

	MemFlags uint8

	Encoding uint16

	// ValueDef describes where a value comes from: an instruction
	// result, a block parameter, or an alias of another value.
	ValueDef struct {
		Inst  Inst
		Block Block
		Num   int
		Alias Value
	}

	Signature struct {
		In  []Type
		Out []Type
	}

	HeapData struct {
		Base    GlobalValue
		MinSize uint64
		Style   any // DynamicBound or StaticBound
	}

	DynamicBound struct {
		BoundGV GlobalValue
	}

	StaticBound struct {
		Bound uint64
	}

	GlobalData struct {
		Name string
	}

	StackSlotData struct {
		Size uint32
	}

	Func struct {
		Name string
		Sig  Signature

		Layout []Block // blocks in layout order

		// indexed by Block
		Params [][]Value
		Code   [][]Inst

		// indexed by Inst
		Insts   []any
		Results [][]Value
		Enc     []Encoding
		IBlock  []Block

		// indexed by Value
		Vals  []ValueDef
		VType []Type

		Heaps   []HeapData
		Tables  [][]Block
		Slots   []StackSlotData
		Globals []GlobalData
	}
)

// Instruction variants. Every variant carries exactly the operands its
// operation requires; a handler seeing the wrong variant is a bug in an
// earlier pass.
type (
	Iconst struct {
		Imm int64
	}

	F32const struct {
		Bits uint32
	}

	F64const struct {
		Bits uint64
	}

	Iadd struct {
		L, R Value
	}

	IaddImm struct {
		L   Value
		Imm int64
	}

	IaddCout struct { // results: sum, carry
		L, R Value
	}

	IaddCin struct {
		L, R, Cin Value
	}

	Icmp struct {
		Cond Cond
		L, R Value
	}

	IcmpImm struct {
		Cond Cond
		L    Value
		Imm  int64
	}

	Uextend struct {
		Arg Value
	}

	Bitcast struct {
		Arg Value
	}

	Iconcat struct {
		Lo, Hi Value
	}

	Isplit struct { // results: lo, hi
		Arg Value
	}

	Select struct {
		Ctrl, T, F Value
	}

	GlobalGet struct {
		GV GlobalValue
	}

	GetPinnedReg struct{}

	HeapAddr struct {
		Heap   Heap
		Offset Value
		Size   uint32
	}

	Load struct {
		Flags MemFlags
		Ptr   Value
		Off   int32
	}

	Store struct {
		Flags    MemFlags
		Val, Ptr Value
		Off      int32
	}

	StackLoad struct {
		Slot StackSlot
		Off  int32
	}

	StackStore struct {
		Val  Value
		Slot StackSlot
		Off  int32
	}

	StackAddr struct {
		Slot StackSlot
		Off  int32
	}

	Trap struct {
		Code TrapCode
	}

	Trapz struct {
		Arg  Value
		Code TrapCode
	}

	Trapnz struct {
		Arg  Value
		Code TrapCode
	}

	Jump struct {
		Dst  Block
		Args []Value
	}

	Brz struct {
		Arg  Value
		Dst  Block
		Args []Value
	}

	Brnz struct {
		Arg  Value
		Dst  Block
		Args []Value
	}

	BrIcmp struct {
		Cond Cond
		L, R Value
		Dst  Block
		Args []Value
	}

	BrTable struct {
		Arg     Value
		Default Block
		Table   Table
	}

	JumpTableBase struct {
		Table Table
	}

	JumpTableEntry struct {
		Arg, Base Value
		Size      uint8
		Table     Table
	}

	IndirectJumpTableBr struct {
		Addr  Value
		Table Table
	}

	Call struct {
		Func string
		Args []Value
	}

	Return struct {
		Args []Value
	}
)

const Nil = -1

const (
	B1 Type = 1 + iota
	I8
	I16
	I32
	I64
	I128
	F32
	F64
)

const (
	Eq  Cond = "eq"
	Ne  Cond = "ne"
	Ult Cond = "ult"
	Ule Cond = "ule"
	Ugt Cond = "ugt"
	Uge Cond = "uge"
	Slt Cond = "slt"
	Sle Cond = "sle"
	Sgt Cond = "sgt"
	Sge Cond = "sge"
)

const (
	TrapHeapOutOfBounds  TrapCode = "heap_oob"
	TrapTableOutOfBounds TrapCode = "table_oob"
	TrapStackOverflow    TrapCode = "stack_overflow"
	TrapUser             TrapCode = "user"
)

const (
	FlagNotrap MemFlags = 1 << iota
	FlagAligned
)

func TrustedFlags() MemFlags {
	return FlagNotrap | FlagAligned
}

func (t Type) Bits() int {
	switch t {
	case B1:
		return 1
	case I8:
		return 8
	case I16:
		return 16
	case I32, F32:
		return 32
	case I64, F64:
		return 64
	case I128:
		return 128
	}

	return 0
}

func (t Type) Half() (Type, bool) {
	switch t {
	case I128:
		return I64, true
	case I64:
		return I32, true
	case I32:
		return I16, true
	case I16:
		return I8, true
	}

	return t, false
}

func (t Type) IsInt() bool {
	switch t {
	case I8, I16, I32, I64, I128:
		return true
	}

	return false
}

func (t Type) IsFloat() bool {
	return t == F32 || t == F64
}

func NewFunc(name string, sig Signature) *Func {
	return &Func{
		Name: name,
		Sig:  sig,
	}
}

// NewBlock allocates a block outside the layout. Expanders place it
// with Cursor.InsertBlock.
func (f *Func) NewBlock() Block {
	b := Block(len(f.Params))

	f.Params = append(f.Params, nil)
	f.Code = append(f.Code, nil)

	return b
}

// AddBlock allocates a block and appends it to the layout.
func (f *Func) AddBlock() Block {
	b := f.NewBlock()
	f.Layout = append(f.Layout, b)

	return b
}

func (f *Func) EntryBlock() Block {
	if len(f.Layout) == 0 {
		return Nil
	}

	return f.Layout[0]
}

func (f *Func) newValue(d ValueDef, tp Type) Value {
	v := Value(len(f.Vals))

	f.Vals = append(f.Vals, d)
	f.VType = append(f.VType, tp)

	return v
}

// Param appends a new typed parameter to the block.
func (f *Func) Param(b Block, tp Type) Value {
	v := f.newValue(ValueDef{Inst: Nil, Block: b, Num: len(f.Params[b]), Alias: Nil}, tp)
	f.Params[b] = append(f.Params[b], v)

	return v
}

// SplitParam replaces parameter num of b with a fresh lo parameter in
// place and appends a fresh hi parameter at the end of the list. The
// old parameter value is detached; callers alias it to a combination
// of the halves.
func (f *Func) SplitParam(b Block, num int, lotp, hitp Type) (lo, hi Value) {
	lo = f.newValue(ValueDef{Inst: Nil, Block: b, Num: num, Alias: Nil}, lotp)
	f.Params[b][num] = lo

	hi = f.Param(b, hitp)

	return lo, hi
}

// AttachParam turns an existing value into a parameter of b.
func (f *Func) AttachParam(b Block, v Value) {
	f.Vals[v] = ValueDef{Inst: Nil, Block: b, Num: len(f.Params[b]), Alias: Nil}
	f.Params[b] = append(f.Params[b], v)
}

// MakeInst allocates an instruction and its result values. The
// instruction is not placed into any block yet.
func (f *Func) MakeInst(x any, restp ...Type) Inst {
	i := Inst(len(f.Insts))

	f.Insts = append(f.Insts, x)
	f.Enc = append(f.Enc, 0)
	f.IBlock = append(f.IBlock, Nil)

	var res []Value

	for n, tp := range restp {
		res = append(res, f.newValue(ValueDef{Inst: i, Block: Nil, Num: n, Alias: Nil}, tp))
	}

	f.Results = append(f.Results, res)

	return i
}

// PushInst appends a made instruction to the end of the block.
func (f *Func) PushInst(b Block, i Inst) {
	f.Code[b] = append(f.Code[b], i)
	f.IBlock[i] = b
}

// Emit is MakeInst+PushInst returning the result values.
func (f *Func) Emit(b Block, x any, restp ...Type) []Value {
	i := f.MakeInst(x, restp...)
	f.PushInst(b, i)

	return f.Results[i]
}

func (f *Func) Emit1(b Block, x any, restp Type) Value {
	return f.Emit(b, x, restp)[0]
}

// Replace swaps the instruction data keeping the handle and, when the
// result count matches, the result values, so existing uses keep
// referring to the replacement's results.
func (f *Func) Replace(i Inst, x any, restp ...Type) []Value {
	f.Insts[i] = x
	f.Enc[i] = 0

	if len(restp) == len(f.Results[i]) {
		for n, tp := range restp {
			f.VType[f.Results[i][n]] = tp
		}

		return f.Results[i]
	}

	f.ClearResults(i)

	var res []Value

	for n, tp := range restp {
		res = append(res, f.newValue(ValueDef{Inst: i, Block: Nil, Num: n, Alias: Nil}, tp))
	}

	f.Results[i] = res

	return res
}

// ClearResults detaches the result values from the instruction. The
// values stay allocated; callers alias them to replacements.
func (f *Func) ClearResults(i Inst) {
	for _, v := range f.Results[i] {
		if f.Vals[v].Inst == i {
			f.Vals[v].Inst = Nil
		}
	}

	f.Results[i] = nil
}

func (f *Func) ChangeToAlias(old, to Value) {
	f.Vals[old] = ValueDef{Inst: Nil, Block: Nil, Alias: to}
}

func (f *Func) ResolveAlias(v Value) Value {
	for f.Vals[v].Alias != Nil {
		v = f.Vals[v].Alias
	}

	return v
}

func (f *Func) NewHeap(h HeapData) Heap {
	f.Heaps = append(f.Heaps, h)

	return Heap(len(f.Heaps) - 1)
}

func (f *Func) NewTable(dst ...Block) Table {
	f.Tables = append(f.Tables, dst)

	return Table(len(f.Tables) - 1)
}

func (f *Func) NewGlobal(name string) GlobalValue {
	f.Globals = append(f.Globals, GlobalData{Name: name})

	return GlobalValue(len(f.Globals) - 1)
}

func (f *Func) NewSlot(size uint32) StackSlot {
	f.Slots = append(f.Slots, StackSlotData{Size: size})

	return StackSlot(len(f.Slots) - 1)
}

func (f *Func) NumInsts() int {
	return len(f.Insts)
}

func IsCall(x any) bool {
	_, ok := x.(Call)
	return ok
}

func IsReturn(x any) bool {
	_, ok := x.(Return)
	return ok
}

func IsBranch(x any) bool {
	switch x.(type) {
	case Brz, Brnz, BrIcmp, BrTable:
		return true
	}

	return false
}

func IsTerminator(x any) bool {
	switch x.(type) {
	case Jump, BrTable, IndirectJumpTableBr, Trap, Return:
		return true
	}

	return false
}

// BranchTargets lists the blocks an instruction may transfer control
// to, not counting fallthrough.
func BranchTargets(f *Func, x any) []Block {
	switch x := x.(type) {
	case Jump:
		return []Block{x.Dst}
	case Brz:
		return []Block{x.Dst}
	case Brnz:
		return []Block{x.Dst}
	case BrIcmp:
		return []Block{x.Dst}
	case BrTable:
		dst := []Block{x.Default}
		dst = append(dst, f.Tables[x.Table]...)

		return dst
	case IndirectJumpTableBr:
		return append([]Block{}, f.Tables[x.Table]...)
	}

	return nil
}
