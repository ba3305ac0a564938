package blob

// Sediment is a packed run of heterogeneously sized elements:
// a usize length header followed by that many elements placed back to
// back, each at whatever alignment its own type needs. There is no index;
// iteration is forward-only and the caller supplies, per element kind, a
// function that finds the offset of the next element (typically that
// element's own End()). This is how variable-sized composites — byte
// strings, key-val states — are packed into a flat array.

// ReserveSedimentHeader reserves just the length header; callers reserve
// each element themselves, in order, right after.
func ReserveSedimentHeader(r *Reserve) {
	r.Add(WordSize, 1, WordSize)
}

// SedimentBuilder accumulates a Sediment's elements during serialize.
type SedimentBuilder struct {
	w      *Writer
	lenOff uint64
	count  uint64
}

// BeginSediment reserves the length header (patched by Finish) and
// returns a builder positioned for the first element.
func BeginSediment(w *Writer) *SedimentBuilder {
	w.Align(WordSize)
	lenOff := w.PutU64(0)
	return &SedimentBuilder{w: w, lenOff: lenOff}
}

// Add serializes one element at the writer's current position via write,
// then counts it.
func (s *SedimentBuilder) Add(write func(w *Writer)) {
	write(s.w)
	s.count++
}

// Finish patches the length header with the final element count and
// returns the Sediment's start offset.
func (s *SedimentBuilder) Finish() uint64 {
	s.w.PatchU64(s.lenOff, s.count)
	return s.lenOff
}

// Sediment is a read-only view of a Sediment at a given offset.
type Sediment struct {
	buf []byte
	off uint64
}

func NewSediment(buf []byte, off uint64) Sediment { return Sediment{buf, off} }

func (s Sediment) Len() uint64 { return readU64(s.buf, s.off) }

// First returns the offset of the first element (valid only if Len() > 0).
func (s Sediment) First() uint64 { return s.off + WordSize }

// Each walks every element in order. next maps an element's offset to the
// offset of whatever follows it (that element's own End()); visit is
// called once per element with its offset.
func (s Sediment) Each(next func(elemOff uint64) uint64, visit func(elemOff uint64)) {
	off := s.First()
	n := s.Len()
	for i := uint64(0); i < n; i++ {
		visit(off)
		off = next(off)
	}
}

// ValidateSediment checks the header and then walks every element via
// validateElem, which must itself bounds-check the element and return the
// offset of the next one.
func ValidateSediment(buf []byte, off uint64, validateElem func(elemOff uint64) (next uint64, err error)) error {
	if err := CheckField(buf, off, WordSize, WordSize); err != nil {
		return err
	}
	n := readU64(buf, off)
	cur := off + WordSize
	for i := uint64(0); i < n; i++ {
		next, err := validateElem(cur)
		if err != nil {
			return err
		}
		cur = next
	}
	return nil
}
