// Package charnfa builds a per-regex character NFA from a restx.Node,
// determinizes it into a guarded DFA with tag sets on final states, and
// compiles the result into the blob's tagged-union U8State
// (sparse/dense).
package charnfa

import (
	"sort"

	"github.com/aledsdavies/configmaton/internal/guard"
	"github.com/aledsdavies/configmaton/internal/restx"
)

// Trans is one origin NFA transition: on a byte in Guard, move to To.
type Trans struct {
	Guard guard.Guard
	To    int
}

// State is one origin (pre-determinization) NFA state: byte-range
// transitions plus epsilon transitions to other states.
type State struct {
	Transitions []Trans
	Epsilon     []int
}

// Nfa is a character NFA built by Thompson-style construction from a
// restx.Node, with a fixed start state 0 and accept state 1.
type Nfa struct {
	States []*State
}

// FromNode builds the ε-NFA for n, start state 0, accept state 1.
func FromNode(n restx.Node) *Nfa {
	nfa := &Nfa{States: []*State{{}, {}}}
	nfa.recur(n, 0, 1)
	return nfa
}

func (nfa *Nfa) recur(n restx.Node, pre, suc int) {
	switch v := n.(type) {
	case restx.Alternation:
		nfa.recur(v.A, pre, suc)
		nfa.recur(v.B, pre, suc)
	case restx.Range:
		nfa.States[pre].Transitions = append(nfa.States[pre].Transitions, Trans{
			Guard: guard.Of(v.Lo, v.Hi), To: suc,
		})
	case restx.Concatenation:
		mid := len(nfa.States)
		nfa.States = append(nfa.States, &State{})
		nfa.recur(v.A, pre, mid)
		nfa.recur(v.B, mid, suc)
	case restx.Repetition:
		nfa.States[pre].Epsilon = append(nfa.States[pre].Epsilon, suc)
		nfa.recur(v.A, pre, pre)
	case restx.Epsilon:
		nfa.States[pre].Epsilon = append(nfa.States[pre].Epsilon, suc)
	}
}

// Cfg is an expanded NFA configuration: the sorted set of "useful" states
// (those with outgoing byte transitions; pure epsilon-relay states are
// dropped) reached by closure, plus whether the accept state (1) is
// among the states the closure passed through.
type Cfg struct {
	States  []int
	IsFinal bool
}

// Key returns a value comparable with ==, suitable as a map key, so
// determinization can memoize one DFA state per distinct Cfg.
func (c Cfg) Key() string {
	b := make([]byte, 0, len(c.States)*4+1)
	for _, s := range c.States {
		b = append(b, byte(s>>24), byte(s>>16), byte(s>>8), byte(s))
	}
	if c.IsFinal {
		b = append(b, 1)
	}
	return string(b)
}

// ExpandConfig computes the epsilon closure of seeds, drops states with no
// outgoing byte transitions, and reports whether the accept state (1) was
// reached.
func (nfa *Nfa) ExpandConfig(seeds []int) Cfg {
	seen := map[int]bool{}
	var add func(q int)
	add = func(q int) {
		if seen[q] {
			return
		}
		seen[q] = true
		for _, e := range nfa.States[q].Epsilon {
			add(e)
		}
	}
	for _, s := range seeds {
		add(s)
	}
	isFinal := seen[1]

	var states []int
	for q := range seen {
		if len(nfa.States[q].Transitions) > 0 {
			states = append(states, q)
		}
	}
	sort.Ints(states)
	return Cfg{States: states, IsFinal: isFinal}
}
