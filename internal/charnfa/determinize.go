package charnfa

import (
	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/aledsdavies/configmaton/internal/guard"
)

// DfaState is one determinized character state in origin form: guards are
// pairwise disjoint when IsDeterministic is true.
// Tags carries the caller-assigned tag indices attached to every state
// whose Cfg reached the NFA's accept state — typically the identifier of
// the regex this automaton compiles, so that a downstream BDD can test
// "did this character sub-match complete" as one of its variables.
type DfaState struct {
	Transitions     []Trans
	Tags            []int
	IsDeterministic bool
}

// Dfa is the determinized form of an Nfa: State 0 is always the start
// state.
type Dfa struct {
	States []*DfaState
}

func unionInts(a, b []int) []int {
	out := make([]int, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// Determinize runs the subset construction: from the NFA's start
// configuration, repeatedly mintermizes the union of outgoing edges of
// every state in the current configuration, expands each resulting cell's
// raw successors into its own closure, and memoizes one DFA state per
// distinct closure.
//
// stopSize bounds the number of DFA states created. If the frontier is not
// exhausted by the time the bound is hit, Determinize returns the states
// built so far (with any never-expanded state left with IsDeterministic
// false and no transitions — a sound but coarser automaton: semantics are
// preserved, match cost may increase) alongside an
// OutOfBudget error. finalTags is attached to every DFA state whose Cfg
// reaches the NFA's accept state.
func Determinize(nfa *Nfa, stopSize int, finalTags []int) (*Dfa, error) {
	cfg0 := nfa.ExpandConfig([]int{0})
	index := map[string]int{cfg0.Key(): 0}
	dfa := &Dfa{States: []*DfaState{newDfaState(cfg0, finalTags)}}

	type frontierItem struct {
		raw []int
		ix  int
	}
	frontier := []frontierItem{{raw: cfg0.States, ix: 0}}

	var overBudget bool
	for len(frontier) > 0 {
		if len(dfa.States) >= stopSize {
			overBudget = true
			break
		}
		item := frontier[len(frontier)-1]
		frontier = frontier[:len(frontier)-1]

		var edges []guard.Tagged[[]int]
		for _, nfaIx := range item.raw {
			for _, t := range nfa.States[nfaIx].Transitions {
				edges = append(edges, guard.Tagged[[]int]{Guard: t.Guard, Tag: []int{t.To}})
			}
		}
		cells := guard.Mintermize(edges, nil, unionInts)

		byTarget := map[int]guard.Guard{}
		order := []int{}
		for _, cell := range cells {
			if len(cell.Tag) == 0 {
				continue
			}
			cfg := nfa.ExpandConfig(cell.Tag)
			key := cfg.Key()
			targetIx, ok := index[key]
			if !ok {
				targetIx = len(dfa.States)
				index[key] = targetIx
				dfa.States = append(dfa.States, newDfaState(cfg, finalTags))
				frontier = append(frontier, frontierItem{raw: cfg.States, ix: targetIx})
			}
			if g, ok := byTarget[targetIx]; ok {
				byTarget[targetIx] = g.Union(cell.Guard)
			} else {
				byTarget[targetIx] = cell.Guard
				order = append(order, targetIx)
			}
		}
		for _, targetIx := range order {
			dfa.States[item.ix].Transitions = append(dfa.States[item.ix].Transitions, Trans{
				Guard: byTarget[targetIx], To: targetIx,
			})
		}
		dfa.States[item.ix].IsDeterministic = true
	}

	if overBudget {
		return dfa, cerrors.Newf(cerrors.OutOfBudget,
			"character-nfa determinization exceeded stop_size=%d", stopSize)
	}
	return dfa, nil
}

func newDfaState(cfg Cfg, finalTags []int) *DfaState {
	s := &DfaState{}
	if cfg.IsFinal {
		s.Tags = append(s.Tags, finalTags...)
	}
	return s
}
