package blob

// ListMap is VecMap's intrusive-list counterpart: each node carries a next
// pointer and a val-pointer inline, followed by its key bytes, unpadded.
// Nodes store no key length: readers walk a map with one keyLen for every
// node, so all keys of one ListMap have that same length.
// Build is two-pass, mirroring VecMap's pass order over a
// chain rather than an array: WriteListMap writes the full (next,
// val-pointer, key) chain first, recording each node's val-pointer slot,
// then serializes every value afterward and back-patches the matching
// slot.
//
// Nothing in the compiled automaton currently needs a ListMap — the key-val NFA's own Tran chain (internal/keyval) already is an
// intrusive list, and both of a sparse char-state's maps have fixed-width
// keys (a Guard or a single byte). ListMap is still a first-class blob
// primitive, exercised by its own tests, rather than having an artificial
// call site invented for it in the automaton proper.

// ReserveListMapNode reserves one node's next-pointer, val-pointer and
// keyLen-byte key. Values are reserved separately by the caller, once per
// item, after every node.
func ReserveListMapNode(r *Reserve, keyLen int) {
	r.Add(WordSize, 1, WordSize)
	r.Add(WordSize, 1, WordSize)
	r.Add(1, uint64(keyLen), 1)
}

// WriteListMap writes n nodes in chain order — writeKey(i, w) must return
// item i's key bytes — then, once the whole chain is written, aligns to the
// next word boundary, calls writeValue(i, w) for each item in the same
// order and back-patches that item's val pointer. Returns the head offset,
// or NullRef if n == 0.
func WriteListMap(
	w *Writer,
	n int,
	writeKey func(i int, w *Writer) []byte,
	writeValue func(i int, w *Writer) uint64,
) uint64 {
	if n == 0 {
		return NullRef
	}
	starts := make([]uint64, n)
	nextSlots := make([]uint64, n)
	valSlots := make([]uint64, n)
	for i := 0; i < n; i++ {
		w.Align(WordSize)
		starts[i] = w.Pos()
		nextSlots[i] = w.PutU64(0)
		valSlots[i] = w.PutU64(0)
		key := writeKey(i, w)
		w.PutBytes(key)
	}
	for i := 0; i < n-1; i++ {
		w.PatchU64(nextSlots[i], starts[i+1])
	}
	w.PatchU64(nextSlots[n-1], NullRef)
	w.Align(WordSize)
	for i := 0; i < n; i++ {
		v := writeValue(i, w)
		w.PatchU64(valSlots[i], v)
	}
	return starts[0]
}

// ListMapNode is a read-only view of one ListMap node.
type ListMapNode struct {
	buf []byte
	off uint64
}

func NewListMapNode(buf []byte, off uint64) ListMapNode { return ListMapNode{buf, off} }

func (n ListMapNode) Next() uint64 { return readU64(n.buf, n.off) }

func (n ListMapNode) Val() uint64 { return readU64(n.buf, n.off+WordSize) }

// KeyOff is where this node's keyLen-byte key begins.
func (n ListMapNode) KeyOff() uint64 { return n.off + 2*WordSize }

// FindListMap walks the chain from head and returns the val pointer of the
// first node whose keyLen-byte key matches, per match.
func FindListMap(buf []byte, head, keyLen uint64, match func(key []byte) bool) (uint64, bool) {
	off := head
	for off != NullRef {
		n := NewListMapNode(buf, off)
		key := buf[n.KeyOff() : n.KeyOff()+keyLen]
		if match(key) {
			return n.Val(), true
		}
		off = n.Next()
	}
	return 0, false
}

// ValidateListMap walks the chain from head, bounds-checking each node's
// fixed header and keyLen-byte key and delegating value validation to ref.
func ValidateListMap(buf []byte, head, keyLen uint64, ref func(uint64) error) error {
	seen := map[uint64]bool{}
	off := head
	for off != NullRef {
		if seen[off] {
			return corrupt("cyclic list-map at offset %d", off)
		}
		seen[off] = true
		if err := CheckField(buf, off, 2*WordSize+keyLen, WordSize); err != nil {
			return err
		}
		n := NewListMapNode(buf, off)
		if ref != nil {
			if err := ref(n.Val()); err != nil {
				return err
			}
		}
		off = n.Next()
	}
	return nil
}
