package configmaton

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/configmaton/internal/builder"
)

func whenMatch(key, regex string, run ...string) builder.Match {
	runBytes := make([][]byte, len(run))
	for i, r := range run {
		runBytes[i] = []byte(r)
	}
	return builder.Match{
		When: []builder.WhenClause{{Key: key, Regex: regex}},
		Run:  runBytes,
	}
}

func build(t *testing.T, cmds []builder.Cmd) *Automaton {
	t.Helper()
	buf, _, err := Serialize(cmds, DefaultBuildConfig())
	require.NoError(t, err)
	aut, err := Read(buf)
	require.NoError(t, err)
	return aut
}

func drain(c *Configmaton) [][]byte {
	var out [][]byte
	_ = c.HandleCommands(func(cmd []byte) error {
		out = append(out, cmd)
		return nil
	})
	return out
}

// Scenario 1: minimal single condition.
func TestScenarioMinimalSingleCondition(t *testing.T) {
	aut := build(t, []builder.Cmd{whenMatch("foo", "a", "bar")})
	c := New(aut)
	c.Set("foo", []byte("a"))
	require.Equal(t, [][]byte{[]byte("bar")}, drain(c))
}

// Scenario 2: conjunction over two keys, arriving out of order, then
// re-fired once more — the second write must not re-emit.
func TestScenarioConjunctionOutOfOrderFiresOnce(t *testing.T) {
	aut := build(t, []builder.Cmd{
		builder.Match{
			When: []builder.WhenClause{{Key: "foo", Regex: "a"}, {Key: "bar", Regex: "b"}},
			Run:  [][]byte{[]byte("win")},
		},
	})
	c := New(aut)
	c.Set("foo", []byte("a"))
	require.Empty(t, drain(c))
	c.Set("bar", []byte("b"))
	require.Equal(t, [][]byte{[]byte("win")}, drain(c))
	c.Set("foo", []byte("a"))
	require.Empty(t, drain(c), "re-setting foo after the rule already fired must not re-emit")
}

// Scenario 3: nested then.
func TestScenarioNestedThen(t *testing.T) {
	aut := build(t, []builder.Cmd{
		builder.Match{
			When: []builder.WhenClause{{Key: "foo", Regex: "baz"}},
			Run:  [][]byte{[]byte("m2")},
			Then: []builder.Cmd{
				whenMatch("qux", "a.*", "m3"),
				whenMatch("qux", "ahoy", "m4"),
			},
		},
	})
	root := New(aut)
	c := root.MakeChild()
	c.Set("foo", []byte("baz"))
	c.Set("qux", []byte("ahoy"))
	got := drain(c)
	require.ElementsMatch(t, [][]byte{[]byte("m2"), []byte("m3"), []byte("m4")}, got)
}

// Scenario 4: onion speculative fork — a child's processing never leaks
// back to the parent.
func TestScenarioOnionSpeculativeFork(t *testing.T) {
	aut := build(t, []builder.Cmd{
		builder.Match{
			When: []builder.WhenClause{{Key: "foo", Regex: "baz"}},
			Run:  [][]byte{[]byte("m2")},
			Then: []builder.Cmd{
				whenMatch("qux", "a.*", "m3"),
			},
		},
	})
	parent := New(aut)
	parent.Set("foo", []byte("baz"))
	require.Equal(t, [][]byte{[]byte("m2")}, drain(parent))

	child := parent.MakeChild()
	child.Set("qux", []byte("ahoy"))
	require.Equal(t, [][]byte{[]byte("m3")}, drain(child))

	parent.Set("zzz", []byte("noop"))
	require.Empty(t, drain(parent), "parent must not see the child's speculative emissions")
}

// Scenario 5: goto forward reference.
func TestScenarioGotoForwardReference(t *testing.T) {
	aut := build(t, []builder.Cmd{
		builder.Match{
			When: []builder.WhenClause{{Key: "t", Regex: "f"}},
			Then: []builder.Cmd{builder.Goto{Name: "X"}},
		},
		builder.Label{
			Name: "X",
			Body: whenMatch("action", "forward", "fired_x"),
		},
	})
	c := New(aut)
	c.Set("t", []byte("f"))
	c.Set("action", []byte("forward"))
	require.Equal(t, [][]byte{[]byte("fired_x")}, drain(c))
}

// Scenario 6: cycle-break — mutually recursive labels must build and load
// without looping forever, and match nothing beyond a single unrolled
// traversal.
func TestScenarioCycleBreak(t *testing.T) {
	aut := build(t, []builder.Cmd{
		builder.Label{Name: "A", Body: builder.Goto{Name: "B"}},
		builder.Label{Name: "B", Body: builder.Goto{Name: "A"}},
		builder.Goto{Name: "A"},
	})
	c := New(aut)
	c.Set("anything", []byte("x"))
	require.Empty(t, drain(c))
}

func TestMakeChildThenClearChildrenLeavesParentUsable(t *testing.T) {
	aut := build(t, []builder.Cmd{whenMatch("foo", "a", "bar")})
	c := New(aut)
	child := c.MakeChild()
	child.Set("foo", []byte("a"))
	c.ClearChildren()
	c.Set("foo", []byte("a"))
	require.Equal(t, [][]byte{[]byte("bar")}, drain(c))
}
