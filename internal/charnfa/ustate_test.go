package charnfa

import (
	"testing"

	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/stretchr/testify/require"
)

func capPower(n int) int {
	p := 0
	for (1 << uint(p)) < n {
		p++
	}
	return p
}

func compile(t *testing.T, dfa *Dfa, cfg Config) (buf []byte, offsets []uint64) {
	t.Helper()
	r := &blob.Reserve{}
	offsets, plans := ReserveDfa(r, dfa, cfg)
	w := blob.NewWriter(r.Bytes)
	WriteDfa(w, dfa, plans, func(i int) uint64 { return offsets[i] })

	for i, off := range offsets {
		err := ValidateU8State(w.Buf, off, func(target uint64) error { return nil })
		require.NoErrorf(t, err, "state %d", i)
	}
	return w.Buf, offsets
}

func TestCompileAndRunSparse(t *testing.T) {
	nfa := FromNode(mustParse(t, "ab"))
	dfa, err := Determinize(nfa, 64, []int{9})
	require.NoError(t, err)

	cfg := Config{GuardSizeKeep: 200, DenseGuardCount: 1000, HashmapCapPowerFn: capPower}
	buf, offsets := compile(t, dfa, cfg)

	runner := NewRunner(buf, offsets[0])
	runner.Read('a')
	require.False(t, runner.IsDead())
	runner.Read('b')
	require.False(t, runner.IsDead())
	require.Equal(t, []uint64{9}, runner.GetTags())

	runner.Reset(offsets[0])
	runner.Read('x')
	require.True(t, runner.IsDead())
	require.Nil(t, runner.GetTags())
}

func TestCompileAndRunDense(t *testing.T) {
	nfa := FromNode(mustParse(t, "[a-z]+"))
	dfa, err := Determinize(nfa, 64, []int{3})
	require.NoError(t, err)

	// DenseGuardCount: 1 forces every state with any transition to compile
	// Dense, exercising the ArrMap path instead of Sparse.
	cfg := Config{GuardSizeKeep: 1, DenseGuardCount: 1, HashmapCapPowerFn: capPower}
	buf, offsets := compile(t, dfa, cfg)

	runner := NewRunner(buf, offsets[0])
	for _, b := range []byte("hello") {
		runner.Read(b)
		require.False(t, runner.IsDead())
	}
	require.Equal(t, []uint64{3}, runner.GetTags())
}

func TestCompileSparseExpandsSmallGuardsToExplicit(t *testing.T) {
	nfa := FromNode(mustParse(t, "a"))
	dfa, err := Determinize(nfa, 64, []int{1})
	require.NoError(t, err)

	// GuardSizeKeep: 2 forces the single-byte 'a' guard (size 1) into
	// explicit_trans rather than pattern_trans.
	cfg := Config{GuardSizeKeep: 2, DenseGuardCount: 1000, HashmapCapPowerFn: capPower}
	buf, offsets := compile(t, dfa, cfg)

	v := NewView(buf, offsets[0])
	require.False(t, v.IsDense())
	require.Equal(t, uint64(0), v.PatternTrans().Len())

	targets, ok := v.Successors('a')
	require.True(t, ok)
	require.Equal(t, []uint64{offsets[1]}, targets)

	_, ok = v.Successors('z')
	require.False(t, ok)
}
