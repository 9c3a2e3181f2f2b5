package ir

import (
	"tlog.app/go/errors"
)

type (
	// Cursor is a position in the instruction stream. The position is
	// the gap before Code[b][i]; iteration, insertion and block
	// splitting all work relative to that gap. Saved positions refer
	// to instruction handles, not indexes, so they survive edits made
	// while the cursor was parked.
	Cursor struct {
		F *Func

		b  Block
		bi int // layout index of b
		i  int // cursor sits before Code[b][i]
	}

	// Pos is a saved cursor position: right after an instruction, or a
	// block head when After is Nil. The driver only saves positions at
	// already-accepted instructions, which are never removed later.
	Pos struct {
		B     Block
		After Inst
	}
)

func NewCursor(f *Func) *Cursor {
	return &Cursor{F: f, b: Nil, bi: -1}
}

// NextBlock advances to the next block in layout order, at its head.
func (c *Cursor) NextBlock() (Block, bool) {
	c.bi++

	if c.bi >= len(c.F.Layout) {
		c.b = Nil

		return Nil, false
	}

	c.b = c.F.Layout[c.bi]
	c.i = 0

	return c.b, true
}

// NextInst returns the instruction right after the cursor and moves
// past it.
func (c *Cursor) NextInst() (Inst, bool) {
	if c.b == Nil || c.i >= len(c.F.Code[c.b]) {
		return Nil, false
	}

	in := c.F.Code[c.b][c.i]
	c.i++

	return in, true
}

func (c *Cursor) Block() Block {
	return c.b
}

func (c *Cursor) Pos() Pos {
	if c.i == 0 {
		return Pos{B: c.b, After: Nil}
	}

	return Pos{B: c.b, After: c.F.Code[c.b][c.i-1]}
}

func (c *Cursor) SetPos(p Pos) *Cursor {
	c.b = p.B
	c.bi = c.layoutIndex(p.B)

	if p.After == Nil {
		c.i = 0
	} else {
		c.i = c.instIndex(p.B, p.After) + 1
	}

	return c
}

// AtBlockHead positions the cursor before the first instruction of b.
func (c *Cursor) AtBlockHead(b Block) *Cursor {
	c.b = b
	c.bi = c.layoutIndex(b)
	c.i = 0

	return c
}

// AtInst positions the cursor right before the instruction, so
// insertions land between it and its predecessors.
func (c *Cursor) AtInst(in Inst) *Cursor {
	c.b = c.F.IBlock[in]
	c.bi = c.layoutIndex(c.b)
	c.i = c.instIndex(c.b, in)

	return c
}

func (c *Cursor) AfterInst(in Inst) *Cursor {
	c.AtInst(in)
	c.i++

	return c
}

// Insert places a new instruction at the cursor and moves past it, so
// consecutive inserts appear in program order.
func (c *Cursor) Insert(x any, restp ...Type) Inst {
	in := c.F.MakeInst(x, restp...)

	code := c.F.Code[c.b]
	code = append(code, Nil)
	copy(code[c.i+1:], code[c.i:])
	code[c.i] = in

	c.F.Code[c.b] = code
	c.F.IBlock[in] = c.b
	c.i++

	return in
}

func (c *Cursor) Ins(x any, restp ...Type) []Value {
	return c.F.Results[c.Insert(x, restp...)]
}

func (c *Cursor) Ins1(x any, restp Type) Value {
	return c.Ins(x, restp)[0]
}

// Remove unlinks the instruction from its block. The handle and data
// stay allocated so stale references can still be formatted.
func (c *Cursor) Remove(in Inst) {
	b := c.F.IBlock[in]
	idx := c.instIndex(b, in)

	c.F.Code[b] = append(c.F.Code[b][:idx], c.F.Code[b][idx+1:]...)
	c.F.IBlock[in] = Nil

	if b == c.b && idx < c.i {
		c.i--
	}
}

// InsertBlock splits the current block at the cursor: everything after
// the cursor moves into nb, nb enters the layout right after the
// current block, and the cursor ends up at the head of nb.
func (c *Cursor) InsertBlock(nb Block) {
	f := c.F

	moved := f.Code[c.b][c.i:]
	f.Code[c.b] = f.Code[c.b][:c.i:c.i]
	f.Code[nb] = append(f.Code[nb], moved...)

	for _, in := range moved {
		f.IBlock[in] = nb
	}

	at := c.bi + 1
	f.Layout = append(f.Layout, Nil)
	copy(f.Layout[at+1:], f.Layout[at:])
	f.Layout[at] = nb

	c.b = nb
	c.bi = at
	c.i = 0
}

func (c *Cursor) layoutIndex(b Block) int {
	for i, x := range c.F.Layout {
		if x == b {
			return i
		}
	}

	panic(errors.New("block %v is not in the layout of %v", b, c.F.Name))
}

func (c *Cursor) instIndex(b Block, in Inst) int {
	for i, x := range c.F.Code[b] {
		if x == in {
			return i
		}
	}

	panic(errors.New("inst %v is not in block %v of %v", in, b, c.F.Name))
}
