package blob

// Bytes is the byte-string special case of Vector: a usize length header
// followed by that many raw bytes (word-aligned start, byte-packed body).
// Keys, values, ext names and get-old names are all Bytes.

func ReserveBytes(r *Reserve, n int) {
	r.Add(WordSize, 1, WordSize)
	r.Add(1, uint64(n), 1)
}

func WriteBytes(w *Writer, b []byte) uint64 {
	w.Align(WordSize)
	start := w.PutU64(uint64(len(b)))
	w.PutBytes(b)
	return start
}

type Bytes struct {
	buf []byte
	off uint64
}

func NewBytes(buf []byte, off uint64) Bytes { return Bytes{buf, off} }

func (b Bytes) Len() uint64 { return readU64(b.buf, b.off) }

func (b Bytes) Slice() []byte {
	n := b.Len()
	return b.buf[b.off+WordSize : b.off+WordSize+n]
}

// End returns the offset immediately past this byte-string, unaligned —
// callers that need to place an aligned sibling after it call Align
// themselves, matching Vector.End's contract.
func (b Bytes) End() uint64 { return b.off + WordSize + b.Len() }

func ValidateBytes(buf []byte, off uint64) error {
	if err := CheckField(buf, off, WordSize, WordSize); err != nil {
		return err
	}
	n := NewBytes(buf, off).Len()
	return CheckField(buf, off, WordSize+n, WordSize)
}
