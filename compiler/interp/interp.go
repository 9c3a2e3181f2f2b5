package interp

import (
	"math/bits"

	"tlog.app/go/errors"

	"github.com/slowlang/lir/compiler/ir"
)

type (
	// Machine evaluates a function directly over the instruction set,
	// before or after legalization, so both forms can be compared on
	// the same inputs.
	//
	// The address space is a single linear memory: Mem first, stack
	// slots laid out right after it. Heap base globals index into that
	// memory, jump tables live at address 0 with 4-byte entries.
	Machine struct {
		F *ir.Func

		Mem       []byte
		Globals   map[ir.GlobalValue]uint64
		PinnedReg uint64
		MaxSteps  int

		// Data is the working memory of the last Run: Mem plus the
		// stack area. Stores are visible here.
		Data []byte

		regs  []val
		slots []uint64 // slot offsets within Data
	}

	TrapError struct {
		Code ir.TrapCode
	}

	// values are lo/hi machine words; types narrower than 64 bits are
	// kept masked in lo.
	val struct {
		lo, hi uint64
	}
)

const jtEntrySize = 4

func (e TrapError) Error() string {
	return "trap: " + string(e.Code)
}

func New(f *ir.Func) *Machine {
	return &Machine{
		F:        f,
		Globals:  map[ir.GlobalValue]uint64{},
		MaxSteps: 100_000,
	}
}

// Run executes the function with the given entry arguments. Each
// result contributes its lo word to the returned slice, a 128-bit
// result contributes lo then hi.
func (m *Machine) Run(args ...uint64) (res []uint64, err error) {
	f := m.F

	m.regs = make([]val, len(f.Vals))

	m.Data = append([]byte(nil), m.Mem...)
	m.slots = make([]uint64, len(f.Slots))

	for i, s := range f.Slots {
		m.slots[i] = uint64(len(m.Data))
		m.Data = append(m.Data, make([]byte, s.Size)...)
	}

	b := f.EntryBlock()
	if b == ir.Nil {
		return nil, errors.New("no entry block")
	}

	if len(args) != len(f.Params[b]) {
		return nil, errors.New("want %d args, got %d", len(f.Params[b]), len(args))
	}

	for i, a := range args {
		v := f.Params[b][i]
		m.regs[v] = maskVal(f.VType[v], val{lo: a})
	}

	steps := 0

block:
	for {
		for _, in := range f.Code[b] {
			steps++
			if steps > m.MaxSteps {
				return nil, errors.New("no progress after %d steps", m.MaxSteps)
			}

			next, done, err := m.step(in)
			if te, ok := err.(TrapError); ok {
				return nil, te
			}
			if err != nil {
				return nil, errors.Wrap(err, "inst %v (%v)", in, ir.Name(f.Insts[in]))
			}
			if done {
				for _, a := range (f.Insts[in].(ir.Return)).Args {
					x := m.get(a)
					res = append(res, x.lo)

					if f.VType[f.ResolveAlias(a)].Bits() > 64 {
						res = append(res, x.hi)
					}
				}

				return res, nil
			}
			if next != ir.Nil {
				b = next
				continue block
			}
		}

		return nil, errors.New("block %v has no terminator", b)
	}
}

// step executes one instruction. It returns the next block when
// control transfers, or done on return.
func (m *Machine) step(in ir.Inst) (next ir.Block, done bool, err error) {
	f := m.F
	next = ir.Nil

	switch x := f.Insts[in].(type) {
	case ir.Iconst:
		m.set1(in, val{lo: uint64(x.Imm)})
	case ir.F32const:
		m.regs[f.Results[in][0]] = val{lo: uint64(x.Bits)}
	case ir.F64const:
		m.regs[f.Results[in][0]] = val{lo: x.Bits}
	case ir.Iadd:
		a, b := m.get(x.L), m.get(x.R)

		if f.VType[f.Results[in][0]] == ir.I128 {
			lo, c := bits.Add64(a.lo, b.lo, 0)
			hi, _ := bits.Add64(a.hi, b.hi, c)
			m.regs[f.Results[in][0]] = val{lo: lo, hi: hi}
		} else {
			m.set1(in, val{lo: a.lo + b.lo})
		}
	case ir.IaddImm:
		a := m.get(x.L)
		m.set1(in, val{lo: a.lo + uint64(x.Imm)})
	case ir.IaddCout:
		a, b := m.get(x.L), m.get(x.R)
		w := f.VType[f.Results[in][0]].Bits()

		var sum, carry uint64
		if w == 64 {
			sum, carry = bits.Add64(a.lo, b.lo, 0)
		} else {
			s := a.lo + b.lo
			carry = s >> w & 1
			sum = s
		}

		m.set1(in, val{lo: sum})
		m.regs[f.Results[in][1]] = val{lo: carry}
	case ir.IaddCin:
		a, b, c := m.get(x.L), m.get(x.R), m.get(x.Cin)
		m.set1(in, val{lo: a.lo + b.lo + c.lo})
	case ir.Icmp:
		a, b := m.get(x.L), m.get(x.R)
		m.cmp(in, x.Cond, a.lo, b.lo, f.VType[f.ResolveAlias(x.L)])
	case ir.IcmpImm:
		a := m.get(x.L)
		tp := f.VType[f.ResolveAlias(x.L)]
		m.cmp(in, x.Cond, a.lo, maskWord(tp, uint64(x.Imm)), tp)
	case ir.Uextend:
		m.set1(in, val{lo: m.get(x.Arg).lo})
	case ir.Bitcast:
		m.regs[f.Results[in][0]] = m.get(x.Arg)
	case ir.Iconcat:
		lo, hi := m.get(x.Lo), m.get(x.Hi)
		tp := f.VType[f.Results[in][0]]

		if tp == ir.I128 {
			m.regs[f.Results[in][0]] = val{lo: lo.lo, hi: hi.lo}
		} else {
			half, _ := tp.Half()
			m.set1(in, val{lo: lo.lo | hi.lo<<half.Bits()})
		}
	case ir.Isplit:
		a := m.get(x.Arg)
		tp := f.VType[f.ResolveAlias(x.Arg)]

		if tp == ir.I128 {
			m.regs[f.Results[in][0]] = val{lo: a.lo}
			m.regs[f.Results[in][1]] = val{lo: a.hi}
		} else {
			half, _ := tp.Half()
			m.regs[f.Results[in][0]] = maskVal(half, val{lo: a.lo})
			m.regs[f.Results[in][1]] = maskVal(half, val{lo: a.lo >> half.Bits()})
		}
	case ir.Select:
		if m.get(x.Ctrl).lo != 0 {
			m.regs[f.Results[in][0]] = m.get(x.T)
		} else {
			m.regs[f.Results[in][0]] = m.get(x.F)
		}
	case ir.GlobalGet:
		m.set1(in, val{lo: m.Globals[x.GV]})
	case ir.GetPinnedReg:
		m.set1(in, val{lo: m.PinnedReg})
	case ir.HeapAddr:
		h := f.Heaps[x.Heap]

		var bound uint64
		switch st := h.Style.(type) {
		case ir.DynamicBound:
			bound = m.Globals[st.BoundGV]
		case ir.StaticBound:
			bound = st.Bound
		default:
			return next, false, errors.New("unknown heap style %T", st)
		}

		off := m.get(x.Offset).lo
		size := uint64(x.Size)

		if size > bound || off > bound-size {
			return next, false, TrapError{Code: ir.TrapHeapOutOfBounds}
		}

		m.set1(in, val{lo: m.Globals[h.Base] + off})
	case ir.Load:
		tp := f.VType[f.Results[in][0]]

		v, err := m.load(m.get(x.Ptr).lo+uint64(int64(x.Off)), tp)
		if err != nil {
			return next, false, err
		}

		m.regs[f.Results[in][0]] = v
	case ir.Store:
		tp := f.VType[f.ResolveAlias(x.Val)]

		err := m.store(m.get(x.Ptr).lo+uint64(int64(x.Off)), tp, m.get(x.Val))
		if err != nil {
			return next, false, err
		}
	case ir.StackLoad:
		tp := f.VType[f.Results[in][0]]

		v, err := m.load(m.slots[x.Slot]+uint64(int64(x.Off)), tp)
		if err != nil {
			return next, false, err
		}

		m.regs[f.Results[in][0]] = v
	case ir.StackStore:
		tp := f.VType[f.ResolveAlias(x.Val)]

		err := m.store(m.slots[x.Slot]+uint64(int64(x.Off)), tp, m.get(x.Val))
		if err != nil {
			return next, false, err
		}
	case ir.StackAddr:
		m.set1(in, val{lo: m.slots[x.Slot] + uint64(int64(x.Off))})
	case ir.Trap:
		return next, false, TrapError{Code: x.Code}
	case ir.Trapz:
		if m.get(x.Arg).lo == 0 {
			return next, false, TrapError{Code: x.Code}
		}
	case ir.Trapnz:
		if m.get(x.Arg).lo != 0 {
			return next, false, TrapError{Code: x.Code}
		}
	case ir.Jump:
		m.bindParams(x.Dst, x.Args)
		next = x.Dst
	case ir.Brz:
		if m.get(x.Arg).lo == 0 {
			m.bindParams(x.Dst, x.Args)
			next = x.Dst
		}
	case ir.Brnz:
		if m.get(x.Arg).lo != 0 {
			m.bindParams(x.Dst, x.Args)
			next = x.Dst
		}
	case ir.BrIcmp:
		a, b := m.get(x.L), m.get(x.R)

		if cmpWords(x.Cond, a.lo, b.lo, f.VType[f.ResolveAlias(x.L)]) {
			m.bindParams(x.Dst, x.Args)
			next = x.Dst
		}
	case ir.BrTable:
		idx := m.get(x.Arg).lo

		if idx < uint64(len(f.Tables[x.Table])) {
			next = f.Tables[x.Table][idx]
		} else {
			next = x.Default
		}
	case ir.JumpTableBase:
		// Tables sit at address 0 in this machine.
		m.set1(in, val{lo: 0})
	case ir.JumpTableEntry:
		m.set1(in, val{lo: m.get(x.Arg).lo * uint64(x.Size)})
	case ir.IndirectJumpTableBr:
		idx := m.get(x.Addr).lo / jtEntrySize

		if idx >= uint64(len(f.Tables[x.Table])) {
			return next, false, errors.New("jump table index %d out of range", idx)
		}

		next = f.Tables[x.Table][idx]
	case ir.Call:
		return next, false, errors.New("call is not supported")
	case ir.Return:
		return next, true, nil
	default:
		return next, false, errors.New("unsupported op %v", ir.Name(x))
	}

	return next, done, nil
}

func (m *Machine) get(v ir.Value) val {
	return m.regs[m.F.ResolveAlias(v)]
}

func (m *Machine) set1(in ir.Inst, x val) {
	v := m.F.Results[in][0]
	m.regs[v] = maskVal(m.F.VType[v], x)
}

func (m *Machine) cmp(in ir.Inst, cond ir.Cond, a, b uint64, tp ir.Type) {
	var r uint64
	if cmpWords(cond, a, b, tp) {
		r = 1
	}

	m.regs[m.F.Results[in][0]] = val{lo: r}
}

func (m *Machine) bindParams(b ir.Block, args []ir.Value) {
	// Args are read before params are written, a jump b(v1, v0) to
	// b(v0, v1) must swap.
	tmp := make([]val, len(args))
	for i, a := range args {
		tmp[i] = m.get(a)
	}

	for i, v := range m.F.Params[b] {
		m.regs[v] = tmp[i]
	}
}

func (m *Machine) load(addr uint64, tp ir.Type) (val, error) {
	n := uint64(tp.Bits() / 8)

	if addr+n > uint64(len(m.Data)) || addr+n < addr {
		return val{}, errors.New("memory access %#x+%d out of %d bytes", addr, n, len(m.Data))
	}

	var x val
	for i := uint64(0); i < n && i < 8; i++ {
		x.lo |= uint64(m.Data[addr+i]) << (8 * i)
	}
	for i := uint64(8); i < n; i++ {
		x.hi |= uint64(m.Data[addr+i]) << (8 * (i - 8))
	}

	return x, nil
}

func (m *Machine) store(addr uint64, tp ir.Type, x val) error {
	n := uint64(tp.Bits() / 8)

	if addr+n > uint64(len(m.Data)) || addr+n < addr {
		return errors.New("memory access %#x+%d out of %d bytes", addr, n, len(m.Data))
	}

	for i := uint64(0); i < n && i < 8; i++ {
		m.Data[addr+i] = byte(x.lo >> (8 * i))
	}
	for i := uint64(8); i < n; i++ {
		m.Data[addr+i] = byte(x.hi >> (8 * (i - 8)))
	}

	return nil
}

func cmpWords(cond ir.Cond, a, b uint64, tp ir.Type) bool {
	switch cond {
	case ir.Eq:
		return a == b
	case ir.Ne:
		return a != b
	case ir.Ult:
		return a < b
	case ir.Ule:
		return a <= b
	case ir.Ugt:
		return a > b
	case ir.Uge:
		return a >= b
	}

	sa, sb := signExtend(tp, a), signExtend(tp, b)

	switch cond {
	case ir.Slt:
		return sa < sb
	case ir.Sle:
		return sa <= sb
	case ir.Sgt:
		return sa > sb
	case ir.Sge:
		return sa >= sb
	}

	panic("unknown condition " + string(cond))
}

func maskVal(tp ir.Type, x val) val {
	if tp == ir.I128 {
		return x
	}

	return val{lo: maskWord(tp, x.lo)}
}

func maskWord(tp ir.Type, x uint64) uint64 {
	w := tp.Bits()
	if w >= 64 {
		return x
	}

	return x & (1<<w - 1)
}

func signExtend(tp ir.Type, x uint64) int64 {
	w := tp.Bits()
	if w >= 64 {
		return int64(x)
	}

	return int64(x<<(64-w)) >> (64 - w)
}
