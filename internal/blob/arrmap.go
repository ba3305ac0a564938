package blob

// ArrMap is a fixed 256-entry array indexed directly by byte value, each
// slot a pointer (or NullRef). Used for a dense compiled
// character state's transition table, where the state has enough distinct
// successors that expanding every byte to its own slot beats any sparse
// representation.

const ArrMapSize = 256

func ReserveArrMap(r *Reserve) {
	r.Add(WordSize, ArrMapSize, WordSize)
}

// WriteArrMap writes all 256 slots zeroed, then calls at(b) for each byte
// value in order and back-patches that byte's slot (NullRef for an absent
// transition). Two-pass so at may itself serialize the slot's out-of-line
// value: whatever it writes lands after the full slot array (the 256
// pointers first, then the values).
func WriteArrMap(w *Writer, at func(b byte) uint64) uint64 {
	w.Align(WordSize)
	start := w.Pos()
	for i := 0; i < ArrMapSize; i++ {
		w.PutU64(0)
	}
	for i := 0; i < ArrMapSize; i++ {
		w.PatchU64(start+uint64(i)*WordSize, at(byte(i)))
	}
	return start
}

// ArrMap is a read-only view of an ArrMap at a given offset.
type ArrMap struct {
	buf []byte
	off uint64
}

func NewArrMap(buf []byte, off uint64) ArrMap { return ArrMap{buf, off} }

func (a ArrMap) At(b byte) uint64 { return readU64(a.buf, a.off+uint64(b)*WordSize) }

func (a ArrMap) End() uint64 { return a.off + ArrMapSize*WordSize }

func ValidateArrMap(buf []byte, off uint64, ref func(uint64) error) error {
	if err := CheckField(buf, off, ArrMapSize*WordSize, WordSize); err != nil {
		return err
	}
	if ref != nil {
		a := NewArrMap(buf, off)
		for i := 0; i < ArrMapSize; i++ {
			if err := ref(a.At(byte(i))); err != nil {
				return err
			}
		}
	}
	return nil
}
