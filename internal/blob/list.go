package blob

// IntrusiveList lays out nodes of {next: pointer, value: T inline} back to
// back in traversal order. The tail's next is NullRef. Used for
// a key-val state's chain of Tran records, where each Tran's own size
// varies with its transition's BDD, so the chain can't be a plain Vector.

// ReserveListNode reserves just the next-pointer word; the caller reserves
// the inline value immediately afterward.
func ReserveListNode(r *Reserve) {
	r.Add(WordSize, 1, WordSize)
}

// WriteIntrusiveList serializes n nodes in order, each produced by
// writeValue(i, w), and returns the offset of the head node (or NullRef if
// n == 0). Every node's next pointer is back-patched once the following
// node's start offset is known.
func WriteIntrusiveList(w *Writer, n int, writeValue func(i int, w *Writer)) uint64 {
	if n == 0 {
		return NullRef
	}
	starts := make([]uint64, n)
	nextSlots := make([]uint64, n)
	for i := 0; i < n; i++ {
		w.Align(WordSize)
		starts[i] = w.Pos()
		nextSlots[i] = w.PutU64(0)
		writeValue(i, w)
	}
	for i := 0; i < n-1; i++ {
		w.PatchU64(nextSlots[i], starts[i+1])
	}
	w.PatchU64(nextSlots[n-1], NullRef)
	return starts[0]
}

// ListNode is a read-only view of one intrusive-list node.
type ListNode struct {
	buf []byte
	off uint64
}

func NewListNode(buf []byte, off uint64) ListNode { return ListNode{buf, off} }

func (n ListNode) Next() uint64 { return readU64(n.buf, n.off) }

// ValueOff is where this node's inline value begins.
func (n ListNode) ValueOff() uint64 { return n.off + WordSize }

func (n ListNode) HasNext() bool { return n.Next() != NullRef }

// ValidateIntrusiveList walks the chain from head, bounds-checking each
// next pointer and delegating value validation to validateValue. The next
// node's location always comes from the node's own next field, and a
// revisited node is reported as a cyclic list.
func ValidateIntrusiveList(buf []byte, head uint64, validateValue func(valueOff uint64) error) error {
	seen := map[uint64]bool{}
	off := head
	for off != NullRef {
		if seen[off] {
			return corrupt("cyclic intrusive list at offset %d", off)
		}
		seen[off] = true
		if err := CheckField(buf, off, WordSize, WordSize); err != nil {
			return err
		}
		node := NewListNode(buf, off)
		if err := validateValue(node.ValueOff()); err != nil {
			return err
		}
		next := node.Next()
		if next != NullRef {
			if err := CheckField(buf, next, WordSize, WordSize); err != nil {
				return err
			}
		}
		off = next
	}
	return nil
}
