package keyval

import (
	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/aledsdavies/configmaton/internal/charnfa"
)

// tranRef locates one Tran by the state it belongs to and its own inline
// value offset, so the index below can jump straight to a Tran on a given
// key without walking every active state's chain.
type tranRef struct {
	state uint64
	tran  uint64
}

// Index maps a key name to every Tran anywhere in the automaton that
// listens on it. Built once per loaded image and shared across every
// Simulation over that image, since it depends only on the automaton, not
// on which states happen to be active.
type Index map[string][]tranRef

// BuildIndex walks every reachable key-val state and records each of its
// Trans under its key.
func BuildIndex(buf []byte, stateOffsets []uint64) Index {
	idx := Index{}
	for _, off := range stateOffsets {
		so := off
		NewStateView(buf, so).Each(func(t TranView) {
			k := string(t.Key())
			idx[k] = append(idx[k], tranRef{state: so, tran: t.off})
		})
	}
	return idx
}

// Simulation tracks the active set of key-val states a sequence of Read
// calls has reached, mirroring charnfa.Runner's active-set tracking one
// level up: a key-val "byte" is a (key, value) pair instead of a single
// byte, and advancing a Tran means running its character automaton over
// value rather than matching one byte.
type Simulation struct {
	buf    []byte
	index  Index
	active map[uint64]bool
}

// NewSimulation starts a Simulation with start as the sole active state.
func NewSimulation(buf []byte, index Index, start uint64) *Simulation {
	return &Simulation{buf: buf, index: index, active: map[uint64]bool{start: true}}
}

// Active returns the current active state offsets, for diagnostics and for
// seeding a child Simulation.
func (s *Simulation) Active() []uint64 {
	out := make([]uint64, 0, len(s.active))
	for off := range s.active {
		out = append(out, off)
	}
	return out
}

// Clone returns an independent copy of s: mutating the clone's active set
// via Read never affects s, and vice versa. A forked Configmaton's
// Simulation must evolve independently from the same starting point.
func (s *Simulation) Clone() *Simulation {
	active := make(map[uint64]bool, len(s.active))
	for off, v := range s.active {
		active[off] = v
	}
	return &Simulation{buf: s.buf, index: s.index, active: active}
}

func (s *Simulation) SetActive(offsets []uint64) {
	active := make(map[uint64]bool, len(offsets))
	for _, off := range offsets {
		active[off] = true
	}
	s.active = active
}

// Read advances every active state's Tran on key, if any, by running that
// Tran's character automaton over value and evaluating its BDD against the
// resulting tag set:
//  1. narrow to this key's indexed Trans belonging to a currently active
//     state;
//  2. run each matching Tran's automaton over value to collect tags;
//  3. evaluate the Tran's BDD on those tags to reach a Leaf, replacing the
//     firing state with the Leaf's successor states and reporting its
//     get_olds (via getOld) and exts (via runExt).
//
// A get_old report asks the caller to re-issue Read for that key with its
// currently stored value — Read itself does not loop to a fixed point;
// that belongs to the caller driving the simulation (the public API's
// Set, which already knows every key's current value).
func (s *Simulation) Read(key string, value []byte, getOld func(key string), runExt func(ext []byte)) {
	refs := s.index[key]
	if len(refs) == 0 {
		return
	}
	next := map[uint64]bool{}
	consumed := map[uint64]bool{}
	for _, ref := range refs {
		if !s.active[ref.state] {
			continue
		}
		// Every Tran of an active state that listens on key fires; the
		// state itself leaves the active set exactly once.
		consumed[ref.state] = true
		s.fire(TranView{s.buf, ref.tran}, value, next, getOld, runExt)
	}
	for off := range s.active {
		if !consumed[off] {
			next[off] = true
		}
	}
	s.active = next
}

func (s *Simulation) fire(t TranView, value []byte, next map[uint64]bool, getOld func(string), runExt func([]byte)) {
	runner := charnfa.NewRunnerMulti(s.buf, t.Inits().Items())
	for _, b := range value {
		runner.Read(b)
	}
	tags := runner.GetTags()
	tagsInt := make([]int, len(tags))
	for i, tg := range tags {
		tagsInt[i] = int(tg)
	}

	leafOff := blob.EvaluateBDD(s.buf, t.finalsOff(), tagsInt, func(off uint64) uint64 { return leafEnd(s.buf, off) })
	leaf := NewLeafView(s.buf, leafOff)

	states := leaf.States()
	for i := uint64(0); i < states.Len(); i++ {
		next[states.At(i)] = true
	}
	leaf.GetOlds().Each(bytesNext(s.buf), func(elemOff uint64) {
		getOld(string(blob.NewBytes(s.buf, elemOff).Slice()))
	})
	leaf.Exts().Each(bytesNext(s.buf), func(elemOff uint64) {
		runExt(blob.NewBytes(s.buf, elemOff).Slice())
	})
}
