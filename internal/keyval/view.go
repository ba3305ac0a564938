package keyval

import "github.com/aledsdavies/configmaton/internal/blob"

// StateView is a read-only accessor over a serialized KeyValState.
type StateView struct {
	buf []byte
	off uint64
}

func NewStateView(buf []byte, off uint64) StateView { return StateView{buf, off} }

func (s StateView) head() uint64 { return blob.NewListNode(s.buf, s.off).Next() }

// Each visits every Tran in this state's chain, head to tail.
func (s StateView) Each(visit func(t TranView)) {
	off := s.head()
	for off != blob.NullRef {
		node := blob.NewListNode(s.buf, off)
		visit(TranView{s.buf, node.ValueOff()})
		off = node.Next()
	}
}

// TranView is a read-only accessor over one serialized Tran: a Bytes key,
// a Vector of character-automaton init offsets, and a BDD keyed on tags.
type TranView struct {
	buf []byte
	off uint64 // offset of the inline Key Bytes record
}

func (t TranView) Key() []byte { return blob.NewBytes(t.buf, t.off).Slice() }

func (t TranView) initsOff() uint64 {
	return blob.AlignUp(blob.NewBytes(t.buf, t.off).End(), blob.WordSize)
}

func (t TranView) Inits() blob.Vector { return blob.NewVector(t.buf, t.initsOff()) }

func (t TranView) finalsOff() uint64 {
	return blob.AlignUp(t.Inits().End(), blob.WordSize)
}

func (t TranView) Finals() blob.BDDView { return blob.NewBDDView(t.buf, t.finalsOff()) }

// End returns the offset immediately past this Tran's key, inits vector
// and the inline (owned) records of its BDD. BDD records reached only
// through a stored pointer may lie beyond it.
func (t TranView) End() uint64 {
	return t.Finals().End(func(leafOff uint64) uint64 { return leafEnd(t.buf, leafOff) })
}

// EachSuccessorState visits every state offset any Leaf reachable from t's
// BDD — both branches, unconditionally — can transition into. Used to
// build a global index of every reachable key-val state,
// which needs to know about every potential successor regardless of which
// branch an actual Read would take for some particular tag set.
func (t TranView) EachSuccessorState(visit func(off uint64)) {
	leafEndFn := func(leafOff uint64) uint64 { return leafEnd(t.buf, leafOff) }
	var walk func(n blob.BDDView)
	walk = func(n blob.BDDView) {
		if n.IsLeaf() {
			states := blob.NewVector(t.buf, n.LeafOff())
			for i := uint64(0); i < states.Len(); i++ {
				visit(states.At(i))
			}
			return
		}
		walk(n.Pos(leafEndFn))
		walk(n.Neg(leafEndFn))
	}
	walk(t.Finals())
}

// bytesSedimentEnd returns the offset immediately past a Sediment of Bytes
// elements, without validating — used by leafEnd and End, which
// assume a structurally valid image (Validate is what checks bounds).
func bytesSedimentEnd(buf []byte, off uint64) uint64 {
	sed := blob.NewSediment(buf, off)
	n := sed.Len()
	cur := sed.First()
	for i := uint64(0); i < n; i++ {
		cur = blob.AlignUp(blob.NewBytes(buf, cur).End(), blob.WordSize)
	}
	return cur
}

// leafEnd returns the offset immediately past a Leaf's full footprint
// (states vector, get_olds sediment, exts sediment), matching the order
// writeLeaf serializes them in.
func leafEnd(buf []byte, leafOff uint64) uint64 {
	states := blob.NewVector(buf, leafOff)
	getOldsOff := blob.AlignUp(states.End(), blob.WordSize)
	extsOff := blob.AlignUp(bytesSedimentEnd(buf, getOldsOff), blob.WordSize)
	return bytesSedimentEnd(buf, extsOff)
}

// LeafView is a read-only accessor over a BDD leaf's payload at a given
// offset (as returned by EvaluateBDD).
type LeafView struct {
	buf []byte
	off uint64
}

func NewLeafView(buf []byte, off uint64) LeafView { return LeafView{buf, off} }

func (l LeafView) States() blob.Vector { return blob.NewVector(l.buf, l.off) }

func (l LeafView) getOldsOff() uint64 {
	return blob.AlignUp(l.States().End(), blob.WordSize)
}

func (l LeafView) GetOlds() blob.Sediment { return blob.NewSediment(l.buf, l.getOldsOff()) }

func (l LeafView) extsOff() uint64 {
	return blob.AlignUp(bytesSedimentEnd(l.buf, l.getOldsOff()), blob.WordSize)
}

func (l LeafView) Exts() blob.Sediment { return blob.NewSediment(l.buf, l.extsOff()) }

func bytesNext(buf []byte) func(uint64) uint64 {
	return func(elemOff uint64) uint64 { return blob.AlignUp(blob.NewBytes(buf, elemOff).End(), blob.WordSize) }
}
