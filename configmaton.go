// Package configmaton compiles a declarative rule program into a zero-copy
// binary image and runs it: a running Configmaton layers mutable key-value
// scopes (internal/onion) on top of one immutable compiled automaton,
// firing commands as conjunctions of key/regex conditions become
// satisfied.
package configmaton

import (
	"encoding/binary"
	"io"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/aledsdavies/configmaton/internal/blob"
	"github.com/aledsdavies/configmaton/internal/builder"
	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/aledsdavies/configmaton/internal/charnfa"
	"github.com/aledsdavies/configmaton/internal/keyval"
	"github.com/aledsdavies/configmaton/internal/onion"
)

// BuildConfig holds the layout knobs for compiling a rule program into an
// image. They affect density and lookup cost only, never runtime
// semantics.
type BuildConfig struct {
	// GuardSizeKeep is the minimum byte-coverage a character transition's
	// guard must have to stay in a Sparse compiled state's pattern_trans
	// rather than being expanded into explicit_trans.
	GuardSizeKeep int
	// DenseGuardCount is the transition count at or above which a
	// character state compiles Dense instead of Sparse.
	DenseGuardCount int
	// HashmapCapPowerFn sizes a Sparse state's explicit_trans bucket
	// array, as a power of two, given its element count.
	HashmapCapPowerFn func(n int) int
	// StopSize bounds character-NFA determinization (OutOfBudget once
	// exceeded). Zero or negative means unbounded.
	StopSize int
}

func (c BuildConfig) charConfig() charnfa.Config {
	return charnfa.Config{
		GuardSizeKeep:     c.GuardSizeKeep,
		DenseGuardCount:   c.DenseGuardCount,
		HashmapCapPowerFn: c.HashmapCapPowerFn,
	}
}

// DefaultBuildConfig returns the knobs the CLI builds with: GuardSizeKeep
// 10, a constant bucket power of 3, DenseGuardCount 15.
func DefaultBuildConfig() BuildConfig {
	return BuildConfig{
		GuardSizeKeep:     10,
		DenseGuardCount:   15,
		HashmapCapPowerFn: func(int) int { return 3 },
		StopSize:          1 << 20,
	}
}

// Serialize lowers cmds and compiles them into a binary image, per cfg.
// The returned Parser is kept only so a caller that
// also wants a Graphviz rendering (builder.Parser.WriteDot) does not have
// to re-parse; most callers can discard it.
func Serialize(cmds []builder.Cmd, cfg BuildConfig) ([]byte, *builder.Parser, error) {
	p, init, err := builder.Parse(cmds, cfg.StopSize)
	if err != nil {
		return nil, nil, err
	}
	return serializeAutomaton(p, init, cfg), p, nil
}

// serializeAutomaton assembles the compiled image: a 3-word root header
// holding the get_olds/exts/inits section offsets, followed by the
// top-level GetOlds sediment, the top-level Exts sediment, the Inits
// vector, every key-val state, then every compiled character state.
func serializeAutomaton(p *builder.Parser, init *keyval.LeafOrigin, cfg BuildConfig) []byte {
	r := &blob.Reserve{}
	r.Add(blob.WordSize, 3, blob.WordSize)

	blob.ReserveSedimentHeader(r)
	for _, g := range init.GetOlds {
		blob.ReserveBytes(r, len(g))
	}
	blob.ReserveSedimentHeader(r)
	for _, e := range init.Exts {
		blob.ReserveBytes(r, len(e))
	}
	blob.ReserveVector(r, len(init.States))

	stateOffsets := keyval.ReserveStates(r, p.States)
	writeChars := p.ReserveChars(r, cfg.charConfig())

	w := blob.NewWriter(r.Bytes)
	getOldsSlot := w.PutU64(0)
	extsSlot := w.PutU64(0)
	initsSlot := w.PutU64(0)

	sb := blob.BeginSediment(w)
	for _, g := range init.GetOlds {
		g := g
		sb.Add(func(w *blob.Writer) { blob.WriteBytes(w, g) })
	}
	getOldsOff := sb.Finish()

	sb = blob.BeginSediment(w)
	for _, e := range init.Exts {
		e := e
		sb.Add(func(w *blob.Writer) { blob.WriteBytes(w, e) })
	}
	extsOff := sb.Finish()

	indexOf := make(map[*keyval.StateOrigin]int, len(p.States))
	for i, s := range p.States {
		indexOf[s] = i
	}
	stateOffsetOf := func(s *keyval.StateOrigin) uint64 { return stateOffsets[indexOf[s]] }

	initItems := make([]uint64, len(init.States))
	for i, s := range init.States {
		initItems[i] = stateOffsetOf(s)
	}
	initsOff := blob.WriteVector(w, initItems)

	keyval.WriteStates(w, p.States, stateOffsetOf)
	writeChars(w)

	w.PatchU64(getOldsSlot, getOldsOff)
	w.PatchU64(extsSlot, extsOff)
	w.PatchU64(initsSlot, initsOff)

	return w.Buf
}

// Automaton is a validated, loaded compiled image. It is immutable: every
// Configmaton running against it shares the same buffer.
type Automaton struct {
	buf        []byte
	getOldsOff uint64
	extsOff    uint64
	initsOff   uint64
	stateIndex keyval.Index
}

// Buf returns the automaton's backing bytes. Exposed for tooling (e.g. a
// CLI's -o/--output) that writes an already-serialized image back out
// verbatim.
func (a *Automaton) Buf() []byte { return a.buf }

// Read validates and wraps an already-serialized image's bytes. A fresh
// image is validated once at load time, not on every subsequent access.
func Read(buf []byte) (*Automaton, error) {
	if err := blob.CheckField(buf, 0, 3*blob.WordSize, blob.WordSize); err != nil {
		return nil, cerrors.Wrap(cerrors.ImageCorrupt, "reading root header", err)
	}
	a := &Automaton{
		buf:        buf,
		getOldsOff: readHeaderWord(buf, 0),
		extsOff:    readHeaderWord(buf, 1),
		initsOff:   readHeaderWord(buf, 2),
	}
	if err := a.validate(); err != nil {
		return nil, err
	}
	a.stateIndex = keyval.BuildIndex(buf, a.reachableStates())
	return a, nil
}

func readHeaderWord(buf []byte, slot uint64) uint64 {
	off := slot * blob.WordSize
	return binary.LittleEndian.Uint64(buf[off : off+8])
}

// ReadFrom reads all of r into memory, then validates and loads it.
func ReadFrom(r io.Reader) (*Automaton, error) {
	buf, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return Read(buf)
}

// Image is an Automaton backed by a memory-mapped file rather than a plain
// in-memory buffer (the domain stack's edsrzf/mmap-go). Close unmaps it;
// the Automaton itself must not be used afterward.
type Image struct {
	*Automaton
	mm mmap.MMap
}

// Open memory-maps path read-only and validates it as a compiled image.
func Open(path string) (*Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, err
	}
	a, err := Read([]byte(m))
	if err != nil {
		m.Unmap()
		return nil, err
	}
	return &Image{Automaton: a, mm: m}, nil
}

// Close unmaps the underlying file.
func (img *Image) Close() error { return img.mm.Unmap() }

// validate walks every section reachable from the root header, bounds-
// checking offsets and rejecting cycles only where the format forbids them
// (a key-val state or character state may legitimately self-loop; the
// visited sets below exist to terminate the walk, not to reject cycles).
func (a *Automaton) validate() error {
	if err := validateBytesSediment(a.buf, a.getOldsOff); err != nil {
		return err
	}
	if err := validateBytesSediment(a.buf, a.extsOff); err != nil {
		return err
	}

	visitedState := map[uint64]bool{}
	visitedChar := map[uint64]bool{}

	var validateCharRef func(uint64) error
	validateCharRef = func(ref uint64) error {
		if ref == blob.NullRef || visitedChar[ref] {
			return nil
		}
		visitedChar[ref] = true
		return charnfa.ValidateU8State(a.buf, ref, validateCharRef)
	}

	var validateStateRef func(uint64) error
	validateStateRef = func(ref uint64) error {
		if ref == blob.NullRef || visitedState[ref] {
			return nil
		}
		visitedState[ref] = true
		return keyval.ValidateState(a.buf, ref, validateCharRef, validateStateRef)
	}

	return blob.ValidateVector(a.buf, a.initsOff, validateStateRef)
}

func validateBytesSediment(buf []byte, off uint64) error {
	return blob.ValidateSediment(buf, off, func(elemOff uint64) (uint64, error) {
		if err := blob.ValidateBytes(buf, elemOff); err != nil {
			return 0, err
		}
		n := blob.NewBytes(buf, elemOff).Len()
		return blob.AlignUp(elemOff+blob.WordSize+n, blob.WordSize), nil
	})
}

// reachableStates walks the Inits vector and every key-val state's Tran
// successor pointers, returning every distinct state offset so BuildIndex
// can be run once over the whole automaton.
func (a *Automaton) reachableStates() []uint64 {
	seen := map[uint64]bool{}
	var order []uint64
	var visit func(off uint64)
	visit = func(off uint64) {
		if off == blob.NullRef || seen[off] {
			return
		}
		seen[off] = true
		order = append(order, off)
		keyval.NewStateView(a.buf, off).Each(func(t keyval.TranView) {
			// Walk every Leaf this Tran's BDD can reach by following
			// both branches unconditionally; EvaluateBDD at runtime
			// takes one branch per actual tag set, but the index must
			// know about every state any branch could lead to.
			t.EachSuccessorState(visit)
		})
	}
	inits := blob.NewVector(a.buf, a.initsOff)
	for i := uint64(0); i < inits.Len(); i++ {
		visit(inits.At(i))
	}
	return order
}

// newBytesSeeds reads every element of a top-level bytes sediment into a
// plain [][]byte, used to seed get_olds/exts before any Read has run: the
// automaton's own top-level sections act as an implicit already-fired
// leaf.
func newBytesSeeds(buf []byte, off uint64) [][]byte {
	s := blob.NewSediment(buf, off)
	out := make([][]byte, 0, s.Len())
	s.Each(func(elemOff uint64) uint64 {
		n := blob.NewBytes(buf, elemOff).Len()
		return blob.AlignUp(elemOff+blob.WordSize+n, blob.WordSize)
	}, func(elemOff uint64) {
		out = append(out, blob.NewBytes(buf, elemOff).Slice())
	})
	return out
}

// Simulation drives the key-value automaton's fixed point over a single
// onion scope's get_old callback. It is cloned (not shared) whenever a
// Configmaton forks: each fork's subsequent Set calls only affect its own
// copy.
type Simulation struct {
	aut *Automaton
	sim *keyval.Simulation

	// exts is an insertion-ordered set: a command emitted again while a
	// previous emission is still pending coalesces with it, but once popped
	// it may be emitted anew.
	exts   [][]byte
	extSet map[string]bool
}

func (s *Simulation) pushExt(ext []byte) {
	k := string(ext)
	if s.extSet[k] {
		return
	}
	s.extSet[k] = true
	s.exts = append(s.exts, ext)
}

func newSimulation(aut *Automaton, db func(key string) ([]byte, bool)) *Simulation {
	sim := keyval.NewSimulation(aut.buf, aut.stateIndex, blob.NullRef)
	sim.SetActive(blob.NewVector(aut.buf, aut.initsOff).Items())

	s := &Simulation{aut: aut, sim: sim, extSet: map[string]bool{}}
	pendingGetOlds := newBytesSeeds(aut.buf, aut.getOldsOff)
	for _, e := range newBytesSeeds(aut.buf, aut.extsOff) {
		s.pushExt(e)
	}
	s.finishRead(pendingGetOlds, db)
	return s
}

func (s *Simulation) clone() *Simulation {
	extSet := make(map[string]bool, len(s.extSet))
	for k, v := range s.extSet {
		extSet[k] = v
	}
	return &Simulation{
		aut:    s.aut,
		sim:    s.sim.Clone(),
		exts:   append([][]byte(nil), s.exts...),
		extSet: extSet,
	}
}

// finishRead drains getOlds to a fixed point against db: each popped key
// that db can still answer is re-fed through Read, which may surface
// further get_olds to drain.
func (s *Simulation) finishRead(getOlds [][]byte, db func(key string) ([]byte, bool)) {
	pending := getOlds
	for len(pending) > 0 {
		key := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		val, ok := db(string(key))
		if !ok {
			continue
		}
		s.sim.Read(string(key), val,
			func(k string) { pending = append(pending, []byte(k)) },
			s.pushExt,
		)
	}
}

// Read advances the simulation on one key/value observation, then drains
// any get_olds it surfaces against db.
func (s *Simulation) Read(key string, value []byte, db func(key string) ([]byte, bool)) {
	var pending [][]byte
	s.sim.Read(key, value,
		func(k string) { pending = append(pending, []byte(k)) },
		s.pushExt,
	)
	s.finishRead(pending, db)
}

// Configmaton is the public runtime: a mutable key-value scope (Onion)
// layered on a compiled Automaton, plus the Simulation tracking which
// conjunctions are partway satisfied and which commands are pending.
type Configmaton struct {
	automaton *Automaton
	onion     *onion.Onion
	sim       *Simulation
}

// New starts a Configmaton with an empty root scope, seeding its
// Simulation from aut's own top-level get_olds/exts/inits as if an
// implicit leaf had already fired.
func New(aut *Automaton) *Configmaton {
	o := onion.New()
	sim := newSimulation(aut, func(key string) ([]byte, bool) { return o.Get(key) })
	return &Configmaton{automaton: aut, onion: o, sim: sim}
}

// MakeChild forks c into an independent scope: the child's own Set calls
// are invisible to c and to any sibling, but it still falls through to c's
// data for any key it has not itself overridden. The child's Simulation
// starts as a clone of c's, so both continue independently from the same
// partial-match state.
func (c *Configmaton) MakeChild() *Configmaton {
	child := c.onion.MakeChild()
	return &Configmaton{automaton: c.automaton, onion: child, sim: c.sim.clone()}
}

// ClearChildren detaches every descendant scope of c without touching c's
// own data.
func (c *Configmaton) ClearChildren() { c.onion.ClearChildren() }

// Get returns the value currently visible for key in c's scope (its own
// override, or the nearest ancestor's).
func (c *Configmaton) Get(key string) ([]byte, bool) { return c.onion.Get(key) }

// Set stores value under key in c's own scope, then advances c's
// Simulation on this observation, draining any get_old fixed point against
// c's own onion.
func (c *Configmaton) Set(key string, value []byte) {
	c.onion.Set(key, value)
	c.sim.Read(key, value, func(k string) ([]byte, bool) { return c.onion.Get(k) })
}

// PopCommand removes and returns the oldest pending command, if any.
func (c *Configmaton) PopCommand() ([]byte, bool) {
	if len(c.sim.exts) == 0 {
		return nil, false
	}
	cmd := c.sim.exts[0]
	c.sim.exts = c.sim.exts[1:]
	delete(c.sim.extSet, string(cmd))
	return cmd, true
}

// HandleCommands drains every currently pending command through f, in
// firing order, stopping early if f returns an error.
func (c *Configmaton) HandleCommands(f func(cmd []byte) error) error {
	for {
		cmd, ok := c.PopCommand()
		if !ok {
			return nil
		}
		if err := f(cmd); err != nil {
			return err
		}
	}
}

// SetAndHandle is Set followed by HandleCommands, the common case of a
// caller that wants every command a single key/value update produces
// handled immediately.
func (c *Configmaton) SetAndHandle(key string, value []byte, f func(cmd []byte) error) error {
	c.Set(key, value)
	return c.HandleCommands(f)
}
