package charnfa

import (
	"testing"

	"github.com/aledsdavies/configmaton/internal/restx"
	"github.com/stretchr/testify/require"
)

func mustParse(t *testing.T, pattern string) restx.Node {
	t.Helper()
	n, err := restx.Parse(pattern)
	require.NoError(t, err)
	return n
}

func TestFromNodeLiteralReachesAccept(t *testing.T) {
	nfa := FromNode(mustParse(t, "a"))
	cfg := nfa.ExpandConfig([]int{0})
	require.False(t, cfg.IsFinal)
	require.Len(t, cfg.States, 1)

	// Following the one transition on 'a' should close onto the accept
	// state.
	var to int
	for _, tr := range nfa.States[cfg.States[0]].Transitions {
		to = tr.To
	}
	after := nfa.ExpandConfig([]int{to})
	require.True(t, after.IsFinal)
}

func TestFromNodeRepetitionSelfLoops(t *testing.T) {
	nfa := FromNode(mustParse(t, "a*"))
	cfg := nfa.ExpandConfig([]int{0})
	require.True(t, cfg.IsFinal, "a* must accept the empty string")

	var to int
	var sawA bool
	for _, tr := range nfa.States[cfg.States[0]].Transitions {
		if tr.Guard.Contains('a') {
			sawA = true
			to = tr.To
		}
	}
	require.True(t, sawA)
	looped := nfa.ExpandConfig([]int{to})
	require.Equal(t, cfg.States, looped.States, "a* loops back to the same useful state set")
}

func TestFromNodeConcatenationRequiresBothLetters(t *testing.T) {
	nfa := FromNode(mustParse(t, "ab"))
	start := nfa.ExpandConfig([]int{0})
	require.False(t, start.IsFinal)

	var mid int
	for _, tr := range nfa.States[start.States[0]].Transitions {
		require.True(t, tr.Guard.Contains('a'))
		mid = tr.To
	}
	midCfg := nfa.ExpandConfig([]int{mid})
	require.False(t, midCfg.IsFinal)

	var end int
	for _, tr := range nfa.States[midCfg.States[0]].Transitions {
		require.True(t, tr.Guard.Contains('b'))
		end = tr.To
	}
	require.True(t, nfa.ExpandConfig([]int{end}).IsFinal)
}
