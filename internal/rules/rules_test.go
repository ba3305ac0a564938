package rules

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/aledsdavies/configmaton/internal/builder"
	"github.com/aledsdavies/configmaton/internal/cerrors"
)

func TestParseMinimalMatch(t *testing.T) {
	cmds, err := Parse([]byte(`[{"when":{"foo":"a"},"run":["bar"]}]`))
	require.NoError(t, err)
	require.Len(t, cmds, 1)
	m, ok := cmds[0].(builder.Match)
	require.True(t, ok)
	require.Equal(t, []builder.WhenClause{{Key: "foo", Regex: "a"}}, m.When)
	require.Equal(t, [][]byte{[]byte("bar")}, m.Run)
}

func TestParseNestedThen(t *testing.T) {
	doc := `[{"when":{"foo":"baz"},"run":["m2"],"then":[
		{"when":{"qux":"a.*"},"run":["m3"]},
		{"when":{"qux":"ahoy"},"run":["m4"]}
	]}]`
	cmds, err := Parse([]byte(doc))
	require.NoError(t, err)
	m := cmds[0].(builder.Match)
	require.Len(t, m.Then, 2)
}

func TestParseLabelAndGoto(t *testing.T) {
	doc := `[
		{"when":{"t":"f"},"then":[{"goto":"X"}]},
		{"label":"X","body":{"when":{"u":"."},"run":["x"]}}
	]`
	cmds, err := Parse([]byte(doc))
	require.NoError(t, err)
	require.Len(t, cmds, 2)
	_, ok := cmds[0].(builder.Match).Then[0].(builder.Goto)
	require.True(t, ok)
	lbl, ok := cmds[1].(builder.Label)
	require.True(t, ok)
	require.Equal(t, "X", lbl.Name)
}

func TestParseRejectsMixedWhenAndGoto(t *testing.T) {
	_, err := Parse([]byte(`[{"when":{"foo":"a"},"goto":"X"}]`))
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.BuildRejected))
}

func TestParseRejectsUnknownField(t *testing.T) {
	_, err := Parse([]byte(`[{"when":{"foo":"a"},"bogus":1}]`))
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.BuildRejected))
}

func TestParseRejectsMissingWhen(t *testing.T) {
	_, err := Parse([]byte(`[{"run":["bar"]}]`))
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.BuildRejected))
}

func TestParseRejectsNonArrayDocument(t *testing.T) {
	_, err := Parse([]byte(`{"when":{"foo":"a"}}`))
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.BuildRejected))
}
