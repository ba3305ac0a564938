package keyval

import (
	"testing"

	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/aledsdavies/configmaton/internal/charnfa"
	"github.com/aledsdavies/configmaton/internal/restx"
	"github.com/stretchr/testify/require"
)

func capPower(n int) int {
	p := 0
	for (1 << uint(p)) < n {
		p++
	}
	return p
}

// build assembles a tiny two-state automaton with one Tran on key "lamp":
// matching "on" fires an ext and moves to state1; anything else loops on
// state0. It exercises the full keyval reserve/write pipeline sharing one
// Reserve/Writer pass with a character automaton, in the same section
// order as the Automaton image (KeyVal states before Char states).
func build(t *testing.T) (buf []byte, stateOffsets []uint64) {
	t.Helper()
	n, err := restx.Parse("on")
	require.NoError(t, err)
	nfa := charnfa.FromNode(n)
	dfa, err := charnfa.Determinize(nfa, 64, []int{1})
	require.NoError(t, err)

	state0 := &StateOrigin{}
	state1 := &StateOrigin{}

	var charOffsets []uint64
	tran := &TranOrigin{
		Key:          []byte("lamp"),
		InitCount:    1,
		ResolveInits: func() []uint64 { return []uint64{charOffsets[0]} },
		Finals: blob.NewBDDNode(1,
			blob.NewBDDLeaf(LeafOrigin{States: []*StateOrigin{state1}, Exts: [][]byte{[]byte("turn_on")}}),
			blob.NewBDDLeaf(LeafOrigin{States: []*StateOrigin{state0}}),
		),
	}
	state0.Trans = []*TranOrigin{tran}

	states := []*StateOrigin{state0, state1}

	r := &blob.Reserve{}
	stateOffsets = ReserveStates(r, states)
	cfg := charnfa.Config{GuardSizeKeep: 200, DenseGuardCount: 1000, HashmapCapPowerFn: capPower}
	charOffsets, dfaPlans := charnfa.ReserveDfa(r, dfa, cfg)

	indexOf := map[*StateOrigin]int{state0: 0, state1: 1}
	stateOffsetOf := func(s *StateOrigin) uint64 { return stateOffsets[indexOf[s]] }

	w := blob.NewWriter(r.Bytes)
	WriteStates(w, states, stateOffsetOf)
	charnfa.WriteDfa(w, dfa, dfaPlans, func(i int) uint64 { return charOffsets[i] })

	return w.Buf, stateOffsets
}

func TestReadFiresExtOnMatchAndLoopsOtherwise(t *testing.T) {
	buf, stateOffsets := build(t)
	idx := BuildIndex(buf, stateOffsets)

	sim := NewSimulation(buf, idx, stateOffsets[0])

	var exts [][]byte
	var getOlds []string
	sim.Read("lamp", []byte("xx"), func(k string) { getOlds = append(getOlds, k) }, func(e []byte) { exts = append(exts, e) })
	require.Empty(t, exts)
	require.Empty(t, getOlds)
	require.ElementsMatch(t, []uint64{stateOffsets[0]}, sim.Active(), "non-matching value should loop on state0")

	sim.Read("lamp", []byte("on"), func(k string) { getOlds = append(getOlds, k) }, func(e []byte) { exts = append(exts, e) })
	require.Equal(t, [][]byte{[]byte("turn_on")}, exts)
	require.ElementsMatch(t, []uint64{stateOffsets[1]}, sim.Active())
}

func TestValidateStatesAccepts(t *testing.T) {
	buf, stateOffsets := build(t)
	for _, off := range stateOffsets {
		err := ValidateState(buf, off,
			func(ref uint64) error { return blob.CheckRef(buf, ref) },
			func(ref uint64) error { return blob.CheckRef(buf, ref) },
		)
		require.NoError(t, err)
	}
}
