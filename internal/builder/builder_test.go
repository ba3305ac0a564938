package builder

import (
	"strings"
	"testing"

	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/stretchr/testify/require"
)

func TestParseEmptyWhenFiresImmediately(t *testing.T) {
	p, init, err := Parse([]Cmd{Match{Run: [][]byte{[]byte("go")}}}, 0)
	require.NoError(t, err)
	require.Empty(t, p.States)
	require.Equal(t, [][]byte{[]byte("go")}, init.Exts)
}

func TestParseSingleWhenBuildsOneCheckerState(t *testing.T) {
	p, init, err := Parse([]Cmd{
		Match{When: []WhenClause{{Key: "foo", Regex: "a"}}, Run: [][]byte{[]byte("bar")}},
	}, 0)
	require.NoError(t, err)
	require.Len(t, p.States, 1, "a single-clause match needs exactly one checker state")
	require.Empty(t, init.Exts)
	require.Equal(t, [][]byte{[]byte("foo")}, init.GetOlds)
	require.Len(t, init.States, 1)
}

func TestGotoForwardReferenceResolves(t *testing.T) {
	cmds := []Cmd{
		Match{When: []WhenClause{{Key: "t", Regex: "f"}}, Then: []Cmd{Goto{Name: "X"}}},
		Label{Name: "X", Body: Match{When: []WhenClause{{Key: "u", Regex: "g"}}, Run: [][]byte{[]byte("x")}}},
	}
	_, _, err := Parse(cmds, 0)
	require.NoError(t, err)
}

func TestGotoUnknownLabelIsBuildRejected(t *testing.T) {
	_, _, err := Parse([]Cmd{Goto{Name: "nope"}}, 0)
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.BuildRejected))
}

func TestCyclicLabelsTerminateAndBuildEmpty(t *testing.T) {
	cmds := []Cmd{
		Label{Name: "A", Body: Goto{Name: "B"}},
		Label{Name: "B", Body: Goto{Name: "A"}},
		Goto{Name: "A"},
	}
	p, init, err := Parse(cmds, 0)
	require.NoError(t, err)
	require.Empty(t, p.States)
	require.Empty(t, init.States)
	require.Empty(t, init.Exts)
}

func TestIdenticalRegexesShareOneCompiledAutomaton(t *testing.T) {
	cmds := []Cmd{
		Match{When: []WhenClause{{Key: "a", Regex: "xy"}}, Run: [][]byte{[]byte("m1")}},
		Match{When: []WhenClause{{Key: "b", Regex: "xy"}}, Run: [][]byte{[]byte("m2")}},
	}
	p, _, err := Parse(cmds, 0)
	require.NoError(t, err)
	require.Len(t, p.regexOrder, 1, "two rules spelling the same regex identically must memoize to one cache entry")
}

func TestWriteDotProducesGraphviz(t *testing.T) {
	cmds := []Cmd{Match{When: []WhenClause{{Key: "foo", Regex: "a"}}, Run: [][]byte{[]byte("bar")}}}
	p, init, err := Parse(cmds, 0)
	require.NoError(t, err)

	var b strings.Builder
	require.NoError(t, p.WriteDot(&b, init))
	out := b.String()
	require.True(t, strings.HasPrefix(out, "digraph G {"))
	require.Contains(t, out, "bar")
}
