package blob

// VecMap lays out a Vector of fixed-width (key, val-pointer) items
// followed immediately by the values themselves, in the same order.
// Build is two-pass: WriteVecMap writes every item's key first,
// recording the slot holding that item's val pointer, then writes every
// value in turn and back-patches the matching slot. Used for a sparse
// compiled character state's pattern_trans: guards too large to expand
// into the byte-indexed HashMap stay here as (Guard, state*) pairs.

// vecMapItemStride is the per-item footprint: a keyWidth-byte key padded
// up to word alignment, followed by one val-pointer word.
func vecMapItemStride(keyWidth uint64) uint64 {
	return AlignUp(keyWidth, WordSize) + WordSize
}

// ReserveVecMap accounts for n fixed-width items plus, for each,
// whatever reserveValue adds for that item's out-of-line value.
func ReserveVecMap(r *Reserve, n int, keyWidth uint64, reserveValue func(i int, r *Reserve)) {
	r.Add(WordSize, 1, WordSize)
	r.Add(WordSize, uint64(n), vecMapItemStride(keyWidth))
	for i := 0; i < n; i++ {
		reserveValue(i, r)
	}
}

// WriteVecMap writes n items: writeKey(i, w) must return exactly keyWidth
// bytes for item i. Once every key has been written, writeValue(i, w) is
// called in the same order to serialize that item's value; the item's
// val-pointer slot is back-patched to wherever writeValue placed it.
func WriteVecMap(
	w *Writer,
	n int,
	keyWidth uint64,
	writeKey func(i int, w *Writer) []byte,
	writeValue func(i int, w *Writer) uint64,
) uint64 {
	w.Align(WordSize)
	start := w.PutU64(uint64(n))
	valSlots := make([]uint64, n)
	for i := 0; i < n; i++ {
		key := writeKey(i, w)
		w.PutBytes(key)
		w.Align(WordSize)
		valSlots[i] = w.PutU64(0)
	}
	for i := 0; i < n; i++ {
		v := writeValue(i, w)
		w.PatchU64(valSlots[i], v)
	}
	return start
}

// VecMap is a read-only view of a VecMap with keyWidth-byte keys.
type VecMap struct {
	buf      []byte
	off      uint64
	keyWidth uint64
}

func NewVecMap(buf []byte, off, keyWidth uint64) VecMap { return VecMap{buf, off, keyWidth} }

func (m VecMap) Len() uint64 { return readU64(m.buf, m.off) }

func (m VecMap) itemOff(i uint64) uint64 {
	return m.off + WordSize + i*vecMapItemStride(m.keyWidth)
}

func (m VecMap) Key(i uint64) []byte {
	o := m.itemOff(i)
	return m.buf[o : o+m.keyWidth]
}

func (m VecMap) Val(i uint64) uint64 {
	o := AlignUp(m.itemOff(i)+m.keyWidth, WordSize)
	return readU64(m.buf, o)
}

// Find returns the val pointer of the first item whose key matches, and
// ok=false if none does. Iteration order matches insertion order.
func (m VecMap) Find(match func(key []byte) bool) (uint64, bool) {
	n := m.Len()
	for i := uint64(0); i < n; i++ {
		if match(m.Key(i)) {
			return m.Val(i), true
		}
	}
	return 0, false
}

// Each visits every (key, val) pair in order.
func (m VecMap) Each(visit func(key []byte, val uint64)) {
	n := m.Len()
	for i := uint64(0); i < n; i++ {
		visit(m.Key(i), m.Val(i))
	}
}

func ValidateVecMap(buf []byte, off, keyWidth uint64, ref func(uint64) error) error {
	if err := CheckField(buf, off, WordSize, WordSize); err != nil {
		return err
	}
	n := readU64(buf, off)
	stride := vecMapItemStride(keyWidth)
	if err := CheckField(buf, off, WordSize+n*stride, WordSize); err != nil {
		return err
	}
	if ref != nil {
		m := NewVecMap(buf, off, keyWidth)
		for i := uint64(0); i < n; i++ {
			if err := ref(m.Val(i)); err != nil {
				return err
			}
		}
	}
	return nil
}
