// Package keyval builds and serializes the key-value automaton: a run of
// KeyValStates, each an intrusive list of Trans keyed by a byte string,
// each Tran carrying the character-automaton states it starts and
// an ordered BDD whose leaves name successor states, get-old requests and
// external commands.
package keyval

import "github.com/aledsdavies/configmaton/internal/blob"

// LeafOrigin is a BDD leaf's payload before serialization: the key-val
// states a match transitions into, plus the byte-string keys this leaf
// asks the simulator to re-read (get_olds) and the byte-string commands it
// surfaces to the caller (exts).
type LeafOrigin struct {
	States  []*StateOrigin
	GetOlds [][]byte
	Exts    [][]byte
}

// TranOrigin is one transition out of a KeyValState: on seeing Key set,
// run a character automaton seeded at ResolveInits() over the new value,
// then evaluate Finals against the resulting tag set.
//
// Inits is resolved lazily via ResolveInits rather than stored as a plain
// []uint64: the character automata are compiled and reserved in the
// Automaton image after the key-val states (Char states are the last
// image section), so a Tran's init offsets are not known until that later
// reservation has run. InitCount lets Reserve size the inits Vector without
// forcing that ordering; ResolveInits is only ever called once offsets
// exist, during Write.
type TranOrigin struct {
	Key         []byte
	InitCount   int
	ResolveInits func() []uint64
	Finals      *blob.BDDOrigin[LeafOrigin]
}

// StateOrigin is a key-val state: an ordered list of Trans, serialized as
// an intrusive list.
type StateOrigin struct {
	Trans []*TranOrigin
}

func reserveLeaf(l *LeafOrigin, r *blob.Reserve) {
	blob.ReserveVector(r, len(l.States))
	blob.ReserveSedimentHeader(r)
	for _, g := range l.GetOlds {
		blob.ReserveBytes(r, len(g))
	}
	blob.ReserveSedimentHeader(r)
	for _, e := range l.Exts {
		blob.ReserveBytes(r, len(e))
	}
}

func reserveTran(r *blob.Reserve, t *TranOrigin) {
	blob.ReserveBytes(r, len(t.Key))
	blob.ReserveVector(r, t.InitCount)
	blob.ReserveBDD(r, t.Finals, reserveLeaf)
}

// ReserveStates computes, for every state in states, the byte size its
// serialized KeyValState will occupy, and returns each state's base offset
// — assigned before any state is written so that a Leaf's successor
// pointers (including a state pointing back into its own chain) can be
// written as plain already-known pointers.
func ReserveStates(r *blob.Reserve, states []*StateOrigin) []uint64 {
	offsets := make([]uint64, len(states))
	for i, s := range states {
		offsets[i] = blob.AlignUp(r.Bytes, blob.WordSize)
		r.Add(blob.WordSize, 1, blob.WordSize) // chain head pointer
		for _, t := range s.Trans {
			blob.ReserveListNode(r)
			reserveTran(r, t)
		}
	}
	return offsets
}

// StateOffsetOf resolves a *StateOrigin to the offset ReserveStates
// assigned it.
type StateOffsetOf func(s *StateOrigin) uint64

func writeLeaf(l *LeafOrigin, w *blob.Writer, stateOffsetOf StateOffsetOf) {
	items := make([]uint64, len(l.States))
	for i, s := range l.States {
		items[i] = stateOffsetOf(s)
	}
	blob.WriteVector(w, items)

	sb := blob.BeginSediment(w)
	for _, g := range l.GetOlds {
		sb.Add(func(w *blob.Writer) { blob.WriteBytes(w, g) })
	}
	sb.Finish()

	sb = blob.BeginSediment(w)
	for _, e := range l.Exts {
		sb.Add(func(w *blob.Writer) { blob.WriteBytes(w, e) })
	}
	sb.Finish()
}

func writeTran(w *blob.Writer, t *TranOrigin, stateOffsetOf StateOffsetOf) {
	blob.WriteBytes(w, t.Key)
	blob.WriteVector(w, t.ResolveInits())
	blob.WriteBDD(w, t.Finals, func(l *LeafOrigin, w *blob.Writer) {
		writeLeaf(l, w, stateOffsetOf)
	})
}

// WriteStates serializes every state of states, in the same order
// ReserveStates walked them, at the offsets ReserveStates computed.
func WriteStates(w *blob.Writer, states []*StateOrigin, stateOffsetOf StateOffsetOf) {
	for _, s := range states {
		w.Align(blob.WordSize)
		headSlot := w.PutU64(0)
		head := blob.WriteIntrusiveList(w, len(s.Trans), func(i int, w *blob.Writer) {
			writeTran(w, s.Trans[i], stateOffsetOf)
		})
		w.PatchU64(headSlot, head)
	}
}
