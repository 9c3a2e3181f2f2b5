package set

import (
	"math/bits"

	"tlog.app/go/tlog/tlwire"
)

type (
	Bitmap struct {
		b []uint64
	}
)

func MakeBitmap(ln int) Bitmap {
	return Bitmap{b: make([]uint64, (ln+63)/64)}
}

func (s *Bitmap) Set(i int) {
	w := i / 64

	for w >= len(s.b) {
		s.b = append(s.b, 0)
	}

	s.b[w] |= 1 << (i % 64)
}

func (s *Bitmap) Clear(i int) {
	w := i / 64

	if w >= len(s.b) {
		return
	}

	s.b[w] &^= 1 << (i % 64)
}

func (s *Bitmap) IsSet(i int) bool {
	w := i / 64

	if w >= len(s.b) {
		return false
	}

	return s.b[w]&(1<<(i%64)) != 0
}

func (s *Bitmap) Size() (r int) {
	for _, c := range s.b {
		r += bits.OnesCount64(c)
	}

	return r
}

func (s *Bitmap) Reset() {
	for i := range s.b {
		s.b[i] = 0
	}
}

func (s *Bitmap) Range(f func(i int) bool) {
	for w, c := range s.b {
		for c != 0 {
			j := bits.TrailingZeros64(c)
			c &^= 1 << j

			if !f(w*64 + j) {
				return
			}
		}
	}
}

func (s Bitmap) TlogAppend(b []byte) []byte {
	var e tlwire.LowEncoder

	b = e.AppendTag(b, tlwire.Array, -1)

	s.Range(func(i int) bool {
		b = e.AppendInt(b, i)

		return true
	})

	b = e.AppendBreak(b)

	return b
}
