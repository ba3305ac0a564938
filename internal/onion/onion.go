// Package onion implements the mutable key-value overlay a running
// Configmaton keeps on top of its immutable compiled automaton: a tree of
// scopes where a child's get() falls through to its parent for any key it
// does not itself hold.
//
// Unlike the Automaton image, an Onion is never serialized — it is pure
// runtime state that changes on every Set, so it is a plain Go struct
// rather than one of the blob containers in internal/blob.
package onion

// Onion is one scope: its own key/value overrides plus a link to the
// scope it falls back to. A root Onion has a nil Parent.
type Onion struct {
	parent   *Onion
	children []*Onion
	data     map[string][]byte
}

// New creates a root Onion with no parent.
func New() *Onion {
	return &Onion{data: map[string][]byte{}}
}

// MakeChild creates a new Onion scoped under o and returns it. Children are
// tracked so ClearChildren can detach them all at once, discarding every
// descendant scope without touching the parent's own data.
func (o *Onion) MakeChild() *Onion {
	child := &Onion{parent: o, data: map[string][]byte{}}
	o.children = append(o.children, child)
	return child
}

// ClearChildren detaches every child scope of o. Detached children remain
// valid on their own (their Parent link is unchanged) but o no longer
// reaches them, so they are collected once nothing else references them.
func (o *Onion) ClearChildren() {
	o.children = nil
}

// Set stores value under key in o's own scope, shadowing (but not
// mutating) whatever value an ancestor scope holds for the same key.
func (o *Onion) Set(key string, value []byte) {
	o.data[key] = value
}

// Get looks up key in o, then each ancestor in turn, returning the first
// value found. ok is false if no scope in the chain holds key.
func (o *Onion) Get(key string) (value []byte, ok bool) {
	for n := o; n != nil; n = n.parent {
		if v, found := n.data[key]; found {
			return v, true
		}
	}
	return nil, false
}

// Parent returns o's parent scope, or nil if o is a root.
func (o *Onion) Parent() *Onion { return o.parent }

// Keys returns every key visible from o — its own plus every ancestor's,
// nearest scope winning on a name collision — useful for a caller that
// needs to re-derive a get_old's current value across the whole chain.
func (o *Onion) Keys() []string {
	seen := map[string]bool{}
	var out []string
	for n := o; n != nil; n = n.parent {
		for k := range n.data {
			if !seen[k] {
				seen[k] = true
				out = append(out, k)
			}
		}
	}
	return out
}
