package charnfa

import (
	"testing"

	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/stretchr/testify/require"
)

func run(dfa *Dfa, s string) (state int, tags []int) {
	cur := 0
	for _, b := range []byte(s) {
		st := dfa.States[cur]
		next := -1
		for _, tr := range st.Transitions {
			if tr.Guard.Contains(b) {
				next = tr.To
				break
			}
		}
		if next < 0 {
			return -1, nil
		}
		cur = next
	}
	return cur, dfa.States[cur].Tags
}

func TestDeterminizeAlternationAccepts(t *testing.T) {
	nfa := FromNode(mustParse(t, "a|b"))
	dfa, err := Determinize(nfa, 64, []int{7})
	require.NoError(t, err)

	for _, s := range []string{"a", "b"} {
		state, tags := run(dfa, s)
		require.NotEqual(t, -1, state, "input %q should be accepted", s)
		require.Equal(t, []int{7}, tags)
	}
	state, _ := run(dfa, "c")
	require.Equal(t, -1, state, "input %q should be rejected", "c")
}

func TestDeterminizeStatesAreDisjointAndDeterministic(t *testing.T) {
	nfa := FromNode(mustParse(t, "(a|b)*c"))
	dfa, err := Determinize(nfa, 64, []int{1})
	require.NoError(t, err)

	for _, st := range dfa.States {
		require.True(t, st.IsDeterministic)
		for i := 0; i < 256; i++ {
			hits := 0
			for _, tr := range st.Transitions {
				if tr.Guard.Contains(byte(i)) {
					hits++
				}
			}
			require.LessOrEqual(t, hits, 1, "byte %d must resolve to at most one transition", i)
		}
	}
}

func TestDeterminizeRespectsStopSize(t *testing.T) {
	nfa := FromNode(mustParse(t, "(a|b)(a|b)(a|b)(a|b)(a|b)(a|b)"))
	dfa, err := Determinize(nfa, 2, []int{1})
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.OutOfBudget))
	require.NotNil(t, dfa)
	require.LessOrEqual(t, len(dfa.States), 2)
}
