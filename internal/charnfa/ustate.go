package charnfa

import (
	"encoding/binary"

	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/aledsdavies/configmaton/internal/guard"
)

// U8State is the compiled, on-disk form of a DfaState: a tagged union of Sparse and Dense, chosen per state by
// Config's build heuristic. Both variants start with a tag word and a
// nullable tags-vector pointer. A Dense body is the inline 256-slot ArrMap;
// a Sparse body is a pointer to its explicit_trans HashMap followed by the
// inline pattern_trans VecMap.
const (
	U8SparseTag uint64 = 0
	U8DenseTag  uint64 = 1
)

// Config holds the build-time knobs for compiling the character
// automaton. GuardSizeKeep is the minimum byte-coverage a guard
// must have to stay in pattern_trans rather than being expanded into
// explicit_trans; DenseGuardCount is the transition count at or above which
// a state compiles Dense instead of Sparse; HashmapCapPowerFn sizes a
// Sparse state's explicit_trans bucket array (as a power of two) given its
// element count.
type Config struct {
	GuardSizeKeep     int
	DenseGuardCount   int
	HashmapCapPowerFn func(n int) int
}

// patternKeyWidth is a hard upper bound, not an arbitrary cap: a Guard over
// the 256 byte values has at most 128 disjoint, non-adjacent ranges (every
// range needs at least one byte of gap from its neighbor), so 1 count byte
// plus 128 (lo, hi) pairs always has room for any Guard whatsoever.
const patternKeyWidth = 1 + 128*2

// encodePatternKey fixed-width-encodes g for use as a pattern_trans VecMap
// key: a packed list of (lo, hi) ranges, but with a fixed
// stride so it can sit inline in a VecMap item rather than behind a
// pointer: a leading range count, then that many (lo, hi) pairs,
// zero-padded to patternKeyWidth.
func encodePatternKey(g guard.Guard) []byte {
	key := make([]byte, patternKeyWidth)
	key[0] = byte(len(g.Ranges))
	for i, r := range g.Ranges {
		key[1+i*2] = r.Lo
		key[1+i*2+1] = r.Hi
	}
	return key
}

func decodePatternKey(key []byte) guard.Guard {
	n := int(key[0])
	ranges := make([]guard.Range, n)
	for i := 0; i < n; i++ {
		ranges[i] = guard.Range{Lo: key[1+i*2], Hi: key[1+i*2+1]}
	}
	return guard.Guard{Ranges: ranges}
}

// explicitEntry is one fully-expanded single-byte transition of a Sparse
// state's explicit_trans.
type explicitEntry struct {
	b      byte
	target int
}

// patternEntry is one pattern_trans (Guard, target) pair.
type patternEntry struct {
	guard  guard.Guard
	target int
}

// plan is the Sparse/Dense decision and, for Sparse, the explicit/pattern
// split computed once per state and shared verbatim between ReserveDfa and
// WriteDfa so the two passes can never disagree about a state's shape.
type plan struct {
	dense    bool
	explicit []explicitEntry
	pattern  []patternEntry
	buckets  uint64
}

func planState(s *DfaState, cfg Config) plan {
	if len(s.Transitions) >= cfg.DenseGuardCount {
		return plan{dense: true}
	}
	p := plan{}
	for _, t := range s.Transitions {
		if t.Guard.Size() >= cfg.GuardSizeKeep {
			p.pattern = append(p.pattern, patternEntry{guard: t.Guard, target: t.To})
			continue
		}
		for _, r := range t.Guard.Ranges {
			for b := int(r.Lo); b <= int(r.Hi); b++ {
				p.explicit = append(p.explicit, explicitEntry{byte(b), t.To})
			}
		}
	}
	power := cfg.HashmapCapPowerFn(len(p.explicit))
	if power < 0 {
		power = 0
	}
	p.buckets = uint64(1) << uint(power)
	return p
}

// ReserveDfa computes, for every state in dfa.States, the byte size its
// compiled U8State will occupy and the plan it was sized from. Offsets are
// assigned by the caller's running Reserve total before any state is
// serialized, so WriteDfa can resolve transitions — including the cycles a
// Kleene star produces — as plain already-known pointers, with no
// back-patching needed at the Dfa level.
func ReserveDfa(r *blob.Reserve, dfa *Dfa, cfg Config) (offsets []uint64, plans []plan) {
	offsets = make([]uint64, len(dfa.States))
	plans = make([]plan, len(dfa.States))
	for i, s := range dfa.States {
		p := planState(s, cfg)
		plans[i] = p
		offsets[i] = reserveOneState(r, s, p)
	}
	return offsets, plans
}

func reserveOneState(r *blob.Reserve, s *DfaState, p plan) uint64 {
	base := blob.AlignUp(r.Bytes, blob.WordSize)
	r.Add(blob.WordSize, 1, blob.WordSize) // tag
	r.Add(blob.WordSize, 1, blob.WordSize) // tagsPtr
	if p.dense {
		blob.ReserveArrMap(r)
		// One successor vector per distinct target: Determinize never emits
		// two Transitions to the same target for one state, so this is
		// exactly len(s.Transitions), matching the dedup writeOneState's
		// dense branch performs via succOff.
		for range s.Transitions {
			blob.ReserveVector(r, 1)
		}
	} else {
		r.Add(blob.WordSize, 1, blob.WordSize) // explicitTransPtr
		blob.ReserveVecMap(r, len(p.pattern), patternKeyWidth, func(i int, r *blob.Reserve) {
			blob.ReserveVector(r, 1)
		})
		blob.ReserveHashMapHeader(r, p.buckets)
		for range p.explicit {
			blob.ReserveListNode(r)
			// Order matters: reserve must mirror writeOneState's
			// explicit-bucket write order (the Flagellum, then the
			// successor vector it points to) so the two passes accumulate
			// identical alignment padding.
			blob.ReserveFlagellum(r, 1)
			blob.ReserveVector(r, 1)
		}
	}
	// tagsPtr's target is placed out-of-line, after the body, so it never
	// shifts the body's own fixed offset from the header (bodyOff).
	if len(s.Tags) > 0 {
		blob.ReserveVector(r, len(s.Tags))
	}
	return base
}

// WriteDfa serializes every state of dfa, in the same order ReserveDfa
// walked them, at the offsets ReserveDfa computed. targetOf(i) must return
// offsets[i] — the caller typically closes over the slice ReserveDfa
// returned.
func WriteDfa(w *blob.Writer, dfa *Dfa, plans []plan, targetOf func(i int) uint64) {
	for i, s := range dfa.States {
		writeOneState(w, s, plans[i], targetOf)
	}
}

func writeOneState(w *blob.Writer, s *DfaState, p plan, targetOf func(i int) uint64) {
	w.Align(blob.WordSize)
	if p.dense {
		w.PutU64(U8DenseTag)
	} else {
		w.PutU64(U8SparseTag)
	}
	tagsSlot := w.PutU64(0)

	if p.dense {
		dense := make([]int, blob.ArrMapSize)
		for i := range dense {
			dense[i] = -1
		}
		for _, t := range s.Transitions {
			for _, r := range t.Guard.Ranges {
				for b := int(r.Lo); b <= int(r.Hi); b++ {
					dense[b] = t.To
				}
			}
		}
		// Each slot's successor vector is written lazily the first time a
		// byte resolving to a given target is seen, then reused for every
		// other byte sharing that target.
		succOff := make(map[int]uint64)
		blob.WriteArrMap(w, func(b byte) uint64 {
			target := dense[b]
			if target < 0 {
				return blob.NullRef
			}
			if off, ok := succOff[target]; ok {
				return off
			}
			off := blob.WriteVector(w, []uint64{targetOf(target)})
			succOff[target] = off
			return off
		})
	} else {
		explicitSlot := w.PutU64(0)
		blob.WriteVecMap(w, len(p.pattern), patternKeyWidth,
			func(i int, w *blob.Writer) []byte {
				return encodePatternKey(p.pattern[i].guard)
			},
			func(i int, w *blob.Writer) uint64 {
				return blob.WriteVector(w, []uint64{targetOf(p.pattern[i].target)})
			},
		)

		buckets := make([][]explicitEntry, p.buckets)
		for _, e := range p.explicit {
			h := blob.HashByte(e.b) % p.buckets
			buckets[h] = append(buckets[h], e)
		}
		explicitOff := blob.WriteHashMap(w, p.buckets, func(bi uint64, w *blob.Writer) uint64 {
			entries := buckets[bi]
			return blob.WriteIntrusiveList(w, len(entries), func(i int, w *blob.Writer) {
				// The node's inline value must start with the Flagellum so
				// HashMap.Find sees the key at ValueOff; the successor vector
				// lands after it and the val word is back-patched.
				fOff := blob.WriteFlagellum(w, []byte{entries[i].b}, 0)
				succOff := blob.WriteVector(w, []uint64{targetOf(entries[i].target)})
				w.PatchU64(blob.AlignUp(fOff+1, blob.WordSize), succOff)
			})
		})
		w.PatchU64(explicitSlot, explicitOff)
	}

	// tagsPtr's target is out-of-line, written last, so the body above
	// always starts at a fixed offset from the header regardless of
	// whether this state carries tags.
	if len(s.Tags) > 0 {
		items := make([]uint64, len(s.Tags))
		for i, t := range s.Tags {
			items[i] = uint64(t)
		}
		tagsOff := blob.WriteVector(w, items)
		w.PatchU64(tagsSlot, tagsOff)
	} else {
		w.PatchU64(tagsSlot, blob.NullRef)
	}
}

// View is a read-only accessor over a compiled U8State at a given offset.
type View struct {
	buf []byte
	off uint64
}

func NewView(buf []byte, off uint64) View { return View{buf, off} }

func readU64(buf []byte, off uint64) uint64 {
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

func (v View) tag() uint64   { return readU64(v.buf, v.off) }
func (v View) IsDense() bool { return v.tag() == U8DenseTag }

// Tags returns this state's attached tag set, or nil if it has none.
func (v View) Tags() []uint64 {
	ptr := readU64(v.buf, v.off+blob.WordSize)
	if ptr == blob.NullRef {
		return nil
	}
	return blob.NewVector(v.buf, ptr).Items()
}

func (v View) bodyOff() uint64 { return v.off + 2*blob.WordSize }

// Dense returns the ArrMap view for a Dense state. Callers must check
// IsDense first.
func (v View) Dense() blob.ArrMap { return blob.NewArrMap(v.buf, v.bodyOff()) }

// PatternTrans returns the inline VecMap view for a Sparse state's
// pattern_trans. Callers must check !IsDense first.
func (v View) PatternTrans() blob.VecMap {
	return blob.NewVecMap(v.buf, v.bodyOff()+blob.WordSize, patternKeyWidth)
}

// ExplicitTrans returns the HashMap view for a Sparse state's explicit_trans.
func (v View) ExplicitTrans() blob.HashMap {
	ptr := readU64(v.buf, v.bodyOff())
	return blob.NewHashMap(v.buf, ptr)
}

// Successors looks up byte b's transition and returns the target U8State
// offsets it leads to (one element from every producer in this package,
// but the runner unions across the whole vector regardless). ok is false
// if b has no transition from this state.
func (v View) Successors(b byte) (targets []uint64, ok bool) {
	if v.IsDense() {
		off := v.Dense().At(b)
		if off == blob.NullRef {
			return nil, false
		}
		return blob.NewVector(v.buf, off).Items(), true
	}
	pt := v.PatternTrans()
	if off, found := pt.Find(func(key []byte) bool {
		return decodePatternKey(key).Contains(b)
	}); found {
		return blob.NewVector(v.buf, off).Items(), true
	}
	if off, found := v.ExplicitTrans().Find([]byte{b}, blob.HashByte(b), 1); found {
		return blob.NewVector(v.buf, off).Items(), true
	}
	return nil, false
}

// ValidateU8State checks one compiled state's own fields and, via
// validateTarget, every successor pointer it stores.
func ValidateU8State(buf []byte, off uint64, validateTarget func(uint64) error) error {
	if err := blob.CheckField(buf, off, 2*blob.WordSize, blob.WordSize); err != nil {
		return err
	}
	v := NewView(buf, off)
	tagsPtr := readU64(buf, off+blob.WordSize)
	if tagsPtr != blob.NullRef {
		if err := blob.ValidateVector(buf, tagsPtr, nil); err != nil {
			return err
		}
	}
	validateSucc := func(succPtr uint64) error {
		return blob.ValidateVector(buf, succPtr, func(target uint64) error {
			return validateTarget(target)
		})
	}
	if v.tag() == U8DenseTag {
		return blob.ValidateArrMap(buf, v.bodyOff(), func(ref uint64) error {
			if ref == blob.NullRef {
				return nil
			}
			return validateSucc(ref)
		})
	}
	if v.tag() != U8SparseTag {
		return cerrors.Newf(cerrors.ImageCorrupt, "unknown u8state tag %d at offset %d", v.tag(), off)
	}
	if err := blob.ValidateVecMap(buf, v.bodyOff()+blob.WordSize, patternKeyWidth, validateSucc); err != nil {
		return err
	}
	explicitPtr := readU64(buf, v.bodyOff())
	return blob.ValidateHashMap(buf, explicitPtr, 1, validateSucc)
}
