package blob

// Flagellum is a fixed-width key placed inline, immediately followed by one
// inline value word. It is the "(key, val)" pair type used as
// the element of a HashMap bucket's chain: the trailing word can itself be
// a raw value or a pointer to an out-of-line record, the same convention
// Vector elements use.

// ReserveFlagellum reserves a Flagellum with a keyWidth-byte key plus its
// value word, word-aligning the value so it stays independently
// addressable regardless of keyWidth.
func ReserveFlagellum(r *Reserve, keyWidth uint64) {
	r.Add(1, keyWidth, 1)
	r.Add(WordSize, 1, WordSize)
}

// WriteFlagellum writes key (exactly keyWidth bytes) followed by val.
func WriteFlagellum(w *Writer, key []byte, val uint64) uint64 {
	start := w.Pos()
	w.PutBytes(key)
	w.Align(WordSize)
	w.PutU64(val)
	return start
}

// Flagellum is a read-only view of a Flagellum at a given offset.
type Flagellum struct {
	buf      []byte
	off      uint64
	keyWidth uint64
}

func NewFlagellum(buf []byte, off, keyWidth uint64) Flagellum {
	return Flagellum{buf, off, keyWidth}
}

func (f Flagellum) Key() []byte { return f.buf[f.off : f.off+f.keyWidth] }

func (f Flagellum) valOff() uint64 { return AlignUp(f.off+f.keyWidth, WordSize) }

func (f Flagellum) Val() uint64 { return readU64(f.buf, f.valOff()) }

// End returns the offset immediately past this Flagellum's inline storage.
func (f Flagellum) End() uint64 { return f.valOff() + WordSize }

func ValidateFlagellum(buf []byte, off, keyWidth uint64) error {
	if !InBounds(buf, off, keyWidth) {
		return corrupt("flagellum key at offset %d (width %d) out of bounds", off, keyWidth)
	}
	f := NewFlagellum(buf, off, keyWidth)
	return CheckField(buf, f.valOff(), WordSize, WordSize)
}
