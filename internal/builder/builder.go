// Package builder lowers a declarative rule program — a vector of Match,
// Label and Goto commands — into the key-value automaton's
// origin form: a flat list of keyval.StateOrigin plus an initial LeafOrigin
// naming the starting states, up-front exts and up-front get-olds. Labels
// and gotos are resolved with a three-pass algorithm: collect label
// bodies, resolve eagerly with a cycle breaker, then parse the main
// command list.
package builder

import (
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"

	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/aledsdavies/configmaton/internal/charnfa"
	"github.com/aledsdavies/configmaton/internal/keyval"
	"github.com/aledsdavies/configmaton/internal/restx"
)

// Cmd is one node of a rule program.
type Cmd interface{ isCmd() }

// WhenClause is one (key, regex) conjunct of a Match. Order matters: it is
// the order the key-state chain is built in.
type WhenClause struct {
	Key   string
	Regex string
}

// Match fires Run (and cascades into Then) once every clause in When has
// been satisfied by the last-observed value of its key. An empty When
// always fires immediately.
type Match struct {
	When []WhenClause
	Run  [][]byte
	Then []Cmd
}

// Label names Body so a Goto elsewhere in the program can reference it.
type Label struct {
	Name string
	Body Cmd
}

// Goto substitutes the (possibly not-yet-parsed) body of the label it
// names.
type Goto struct {
	Name string
}

func (Match) isCmd() {}
func (Label) isCmd() {}
func (Goto) isCmd()  {}

// regexAutomaton is one memoized regex's compiled character automaton: a
// character-NFA determinized once (keyed by its parsed AST, so two textually
// different but structurally identical regexes still share one), a BDD
// variable index unique to this regex within the Parser, and — filled in
// only once the image's character-state section is reserved — the absolute
// offsets of its Dfa.States, indexed the same way Dfa.States is.
type regexAutomaton struct {
	varIx   int
	dfa     *charnfa.Dfa
	offsets []uint64
}

// resolveInits is a TranOrigin.ResolveInits value: every Tran that tests
// this regex starts its character runner at the regex's Dfa entry state
// (always index 0).
// It must not be called before offsets has been populated by
// Parser.ReserveChars.
func (r *regexAutomaton) resolveInits() []uint64 { return []uint64{r.offsets[0]} }

// Parser accumulates every keyval.StateOrigin a rule program lowers to, plus
// the memoized regex cache and label/goto bookkeeping.
type Parser struct {
	States []*keyval.StateOrigin

	// Warnings collects non-fatal OutOfBudget errors from regex
	// determinization: the degraded automaton stays sound, so build does
	// not abort over it, but callers may want to know.
	Warnings []error

	regexCache map[uint64]*regexAutomaton
	regexOrder []uint64

	labels     map[string]*keyval.LeafOrigin
	labelDefs  map[string]Cmd
	labelOrder []string
	parsing    map[string]bool

	stopSize int
}

// Parse lowers cmds into a Parser (holding every emitted keyval.StateOrigin)
// and the program's initial LeafOrigin. stopSize bounds character-NFA
// determinization; a non-positive value means unbounded.
func Parse(cmds []Cmd, stopSize int) (*Parser, *keyval.LeafOrigin, error) {
	p := &Parser{
		regexCache: map[uint64]*regexAutomaton{},
		labels:     map[string]*keyval.LeafOrigin{},
		labelDefs:  map[string]Cmd{},
		parsing:    map[string]bool{},
		stopSize:   stopSize,
	}
	p.collectLabels(cmds)
	for _, name := range p.labelOrder {
		if _, ok := p.labels[name]; ok {
			continue
		}
		if _, err := p.parseLabel(name, p.labelDefs[name]); err != nil {
			return nil, nil, err
		}
	}
	init, err := p.parseParallel(cmds)
	if err != nil {
		return nil, nil, err
	}
	return p, init, nil
}

func (p *Parser) collectLabels(cmds []Cmd) {
	for _, c := range cmds {
		p.collectLabelsCmd(c)
	}
}

func (p *Parser) collectLabelsCmd(c Cmd) {
	switch v := c.(type) {
	case Label:
		p.labelDefs[v.Name] = v.Body
		p.labelOrder = append(p.labelOrder, v.Name)
		p.collectLabelsCmd(v.Body)
	case Match:
		p.collectLabels(v.Then)
	case Goto:
		// nothing to collect
	}
}

func (p *Parser) parseCmd(c Cmd) (*keyval.LeafOrigin, error) {
	switch v := c.(type) {
	case Match:
		return p.parseMatch(v)
	case Label:
		return p.parseCmd(v.Body)
	case Goto:
		if leaf, ok := p.labels[v.Name]; ok {
			return leaf, nil
		}
		if body, ok := p.labelDefs[v.Name]; ok {
			return p.parseLabel(v.Name, body)
		}
		return nil, cerrors.Newf(cerrors.BuildRejected, "goto: unresolved label %q", v.Name)
	default:
		return nil, cerrors.Newf(cerrors.BuildRejected, "unknown command %T", c)
	}
}

// parseLabel resolves name's body, breaking cycles by returning an empty
// LeafOrigin to any recursive revisit of a label already being parsed: a
// self-referential label chain terminates with the cyclic branch matching
// nothing, rather than looping forever.
func (p *Parser) parseLabel(name string, body Cmd) (*keyval.LeafOrigin, error) {
	if p.parsing[name] {
		return &keyval.LeafOrigin{}, nil
	}
	if leaf, ok := p.labels[name]; ok {
		return leaf, nil
	}
	p.parsing[name] = true
	leaf, err := p.parseCmd(body)
	delete(p.parsing, name)
	if err != nil {
		return nil, err
	}
	p.labels[name] = leaf
	return leaf, nil
}

func (p *Parser) parseParallel(cmds []Cmd) (*keyval.LeafOrigin, error) {
	leaves := make([]*keyval.LeafOrigin, 0, len(cmds))
	for _, c := range cmds {
		leaf, err := p.parseCmd(c)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}
	return joinLeaves(leaves), nil
}

// joinLeaves unions the states/get_olds/exts of every target leaf a
// parallel group of commands reaches, deduplicating by identity (for
// States) or content (for GetOlds/Exts) while preserving first-seen order,
// so two builds of the same program lay out identical images.
func joinLeaves(leaves []*keyval.LeafOrigin) *keyval.LeafOrigin {
	out := &keyval.LeafOrigin{}
	seenStates := map[*keyval.StateOrigin]bool{}
	seenGetOlds := map[string]bool{}
	seenExts := map[string]bool{}
	for _, l := range leaves {
		for _, s := range l.States {
			if !seenStates[s] {
				seenStates[s] = true
				out.States = append(out.States, s)
			}
		}
		for _, g := range l.GetOlds {
			k := string(g)
			if !seenGetOlds[k] {
				seenGetOlds[k] = true
				out.GetOlds = append(out.GetOlds, g)
			}
		}
		for _, e := range l.Exts {
			k := string(e)
			if !seenExts[k] {
				seenExts[k] = true
				out.Exts = append(out.Exts, e)
			}
		}
	}
	return out
}

// parseMatch lowers one Match into a key-state chain: 2*len(When)-1 states
// (N-1 "waiters" plus N "checkers"), or, if When is empty, just the
// (Run, Then) leaf itself with no states at all. A checker state a waiter
// targets before it's built is a pre-allocated, not-yet-filled-in
// *StateOrigin (see TranOrigin.ResolveInits for the same forward-reference
// pattern one level down).
func (p *Parser) parseMatch(m Match) (*keyval.LeafOrigin, error) {
	thenLeaf, err := p.parseParallel(m.Then)
	if err != nil {
		return nil, err
	}
	then := &keyval.LeafOrigin{
		States:  thenLeaf.States,
		GetOlds: thenLeaf.GetOlds,
		Exts:    append(append([][]byte{}, thenLeaf.Exts...), m.Run...),
	}

	n := len(m.When)
	if n == 0 {
		return then, nil
	}

	type guard struct {
		key   []byte
		varIx int
		ra    *regexAutomaton
	}
	guards := make([]guard, n)
	for i, w := range m.When {
		ra, err := p.resolveRegex(w.Regex)
		if err != nil {
			return nil, err
		}
		guards[i] = guard{key: []byte(w.Key), varIx: ra.varIx, ra: ra}
	}

	checkers := make([]*keyval.StateOrigin, n)
	for g := range checkers {
		checkers[g] = &keyval.StateOrigin{}
	}

	// Waiters: "wait for the key to be (re-)set". Built innermost-guard
	// first (g = n-2 downto 0) so each iteration's `then` closes over the
	// previous one.
	for g := n - 2; g >= 0; g-- {
		gd := guards[g]
		waiter := &keyval.StateOrigin{Trans: []*keyval.TranOrigin{{
			Key:          gd.key,
			InitCount:    1,
			ResolveInits: gd.ra.resolveInits,
			Finals: blob.NewBDDNode(gd.varIx,
				blob.NewBDDLeaf(*then),
				blob.NewBDDLeaf(keyval.LeafOrigin{States: []*keyval.StateOrigin{checkers[g]}}),
			),
		}}}
		p.States = append(p.States, waiter)
		then = &keyval.LeafOrigin{GetOlds: [][]byte{gd.key}, States: []*keyval.StateOrigin{waiter}}
	}

	// Checkers: "verify the current value against the regex at key-set
	// time"; the neg branch self-loops until a matching value arrives.
	for g := n - 1; g >= 0; g-- {
		gd := guards[g]
		checker := checkers[g]
		checker.Trans = []*keyval.TranOrigin{{
			Key:          gd.key,
			InitCount:    1,
			ResolveInits: gd.ra.resolveInits,
			Finals: blob.NewBDDNode(gd.varIx,
				blob.NewBDDLeaf(*then),
				blob.NewBDDLeaf(keyval.LeafOrigin{States: []*keyval.StateOrigin{checker}}),
			),
		}}
		p.States = append(p.States, checker)
		then = &keyval.LeafOrigin{GetOlds: [][]byte{gd.key}, States: []*keyval.StateOrigin{checker}}
	}

	return then, nil
}

// canonicalAST lowers a regex AST into a type-tagged nested array so its
// CBOR encoding is injective across node kinds — Alternation and
// Concatenation share the same exported field shape, so marshaling the
// structs directly would give structurally different regexes identical
// keys.
func canonicalAST(n restx.Node) any {
	switch v := n.(type) {
	case restx.Range:
		return []any{"rng", v.Lo, v.Hi}
	case restx.Alternation:
		return []any{"alt", canonicalAST(v.A), canonicalAST(v.B)}
	case restx.Concatenation:
		return []any{"cat", canonicalAST(v.A), canonicalAST(v.B)}
	case restx.Repetition:
		return []any{"rep", canonicalAST(v.A)}
	default:
		return []any{"eps"}
	}
}

// resolveRegex parses pattern, memoizing the resulting character automaton
// by the CBOR encoding of its parsed AST hashed with the blob package's
// xxhash (the same hash the compiled automaton's HashMap uses): two rules
// spelling the same regex differently (e.g. "a|a" normalizing the same as
// some other text) still only determinize once if their ASTs coincide, and
// rules that spell it identically trivially share the cache entry.
func (p *Parser) resolveRegex(pattern string) (*regexAutomaton, error) {
	node, err := restx.Parse(pattern)
	if err != nil {
		return nil, err
	}
	data, err := cbor.Marshal(canonicalAST(node))
	if err != nil {
		return nil, cerrors.Wrap(cerrors.BuildRejected, "encoding regex AST for memoization key", err)
	}
	key := blob.HashBytes(data)
	if ra, ok := p.regexCache[key]; ok {
		return ra, nil
	}

	varIx := len(p.regexOrder)
	nfa := charnfa.FromNode(node)
	stopSize := p.stopSize
	if stopSize <= 0 {
		stopSize = 1 << 30
	}
	dfa, err := charnfa.Determinize(nfa, stopSize, []int{varIx})
	ra := &regexAutomaton{varIx: varIx, dfa: dfa}
	p.regexCache[key] = ra
	p.regexOrder = append(p.regexOrder, key)
	if err != nil {
		p.Warnings = append(p.Warnings, err)
	}
	return ra, nil
}

// ReserveChars reserves every memoized regex's compiled character automaton
// (in first-use order) against r, and returns a closure that serializes all
// of them, in the same order, once the final buffer exists. Keeping the
// per-regex plan values (an unexported charnfa type) inside the returned
// closure's captured scope, rather than a Parser field, is what lets this
// span the reserve/write boundary without naming that type.
func (p *Parser) ReserveChars(r *blob.Reserve, cfg charnfa.Config) func(w *blob.Writer) {
	var writers []func(w *blob.Writer)
	for _, key := range p.regexOrder {
		ra := p.regexCache[key]
		offsets, plans := charnfa.ReserveDfa(r, ra.dfa, cfg)
		ra.offsets = offsets
		dfa := ra.dfa
		writers = append(writers, func(w *blob.Writer) {
			charnfa.WriteDfa(w, dfa, plans, func(i int) uint64 { return offsets[i] })
		})
	}
	return func(w *blob.Writer) {
		for _, write := range writers {
			write(w)
		}
	}
}

// WriteDot renders the origin-form automaton (every state in p.States plus
// init) as Graphviz source.
func (p *Parser) WriteDot(w io.Writer, init *keyval.LeafOrigin) error {
	var b strings.Builder
	b.WriteString("digraph G {\n")

	stateIx := make(map[*keyval.StateOrigin]int, len(p.States))
	for i, s := range p.States {
		stateIx[s] = i
		fmt.Fprintf(&b, "  q%d\n", i)
	}

	tix, bix := 0, 0
	writeLeafDot(&b, init, "ti", "ei", stateIx)

	visited := map[*blob.BDDOrigin[keyval.LeafOrigin]]string{}
	for qi, s := range p.States {
		for gi, t := range s.Trans {
			g := fmt.Sprintf("g%d_%d", qi, gi)
			fmt.Fprintf(&b, "  %s [shape=\"diamond\"]\n", g)
			fmt.Fprintf(&b, "  q%d -> %s [label=%q]\n", qi, g, string(t.Key))
			root := writeBDDDot(&b, t.Finals, &bix, &tix, stateIx, visited)
			fmt.Fprintf(&b, "  %s -> %s\n", g, root)
		}
	}

	b.WriteString("}\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeLeafDot(b *strings.Builder, leaf *keyval.LeafOrigin, tiName, eiName string, stateIx map[*keyval.StateOrigin]int) {
	fmt.Fprintf(b, "  %s [shape=\"square\"]\n", tiName)
	fmt.Fprintf(b, "  %s [shape=\"diamond\"]\n", eiName)
	fmt.Fprintf(b, "  %s -> %s [label=%q]\n", tiName, eiName, fmtExts(leaf.Exts, leaf.GetOlds))
	for _, s := range leaf.States {
		fmt.Fprintf(b, "  %s -> q%d\n", eiName, stateIx[s])
	}
}

func writeBDDDot(
	b *strings.Builder,
	n *blob.BDDOrigin[keyval.LeafOrigin],
	bix, tix *int,
	stateIx map[*keyval.StateOrigin]int,
	visited map[*blob.BDDOrigin[keyval.LeafOrigin]]string,
) string {
	if name, ok := visited[n]; ok {
		return name
	}
	if n.IsLeaf() {
		name := fmt.Sprintf("t%d", *tix)
		ename := fmt.Sprintf("e%d", *tix)
		*tix++
		visited[n] = name
		fmt.Fprintf(b, "  %s [shape=\"square\"]\n", name)
		fmt.Fprintf(b, "  %s [shape=\"diamond\"]\n", ename)
		fmt.Fprintf(b, "  %s -> %s [label=%q]\n", name, ename, fmtExts(n.Leaf.Exts, n.Leaf.GetOlds))
		for _, s := range n.Leaf.States {
			fmt.Fprintf(b, "  %s -> q%d\n", ename, stateIx[s])
		}
		return name
	}
	me := fmt.Sprintf("b%d", *bix)
	*bix++
	visited[n] = me
	fmt.Fprintf(b, "  %s [shape=\"diamond\", label=%q]\n", me, fmt.Sprint(n.Var))
	pos := writeBDDDot(b, n.Pos, bix, tix, stateIx, visited)
	fmt.Fprintf(b, "  %s -> %s [color=green]\n", me, pos)
	neg := writeBDDDot(b, n.Neg, bix, tix, stateIx, visited)
	fmt.Fprintf(b, "  %s -> %s [color=red]\n", me, neg)
	return me
}

func fmtExts(exts, getOlds [][]byte) string {
	parts := make([]string, 0, len(exts)+len(getOlds))
	for _, e := range exts {
		parts = append(parts, string(e))
	}
	for _, g := range getOlds {
		parts = append(parts, fmt.Sprintf("GetOld(%s)", g))
	}
	return strings.Join(parts, ", ")
}
