package restx

import (
	"testing"

	"github.com/aledsdavies/configmaton/internal/cerrors"
	"github.com/stretchr/testify/require"
)

func TestParseLiteral(t *testing.T) {
	n, err := Parse("a")
	require.NoError(t, err)
	require.Equal(t, Range{Lo: 'a', Hi: 'a'}, n)
}

func TestParseConcatenation(t *testing.T) {
	n, err := Parse("ab")
	require.NoError(t, err)
	require.Equal(t, Concatenation{A: Range{'a', 'a'}, B: Range{'b', 'b'}}, n)
}

func TestParseAlternationAndGroup(t *testing.T) {
	n, err := Parse("(a|bc)")
	require.NoError(t, err)
	require.Equal(t, Alternation{
		A: Range{'a', 'a'},
		B: Concatenation{A: Range{'b', 'b'}, B: Range{'c', 'c'}},
	}, n)
}

func TestParseRepetition(t *testing.T) {
	n, err := Parse("a*")
	require.NoError(t, err)
	require.Equal(t, Repetition{A: Range{'a', 'a'}}, n)
}

func TestParseDot(t *testing.T) {
	n, err := Parse(".")
	require.NoError(t, err)
	require.Equal(t, Range{Lo: 0, Hi: 255}, n)
}

func TestParseCharClassRangeAndUnion(t *testing.T) {
	n, err := Parse("[a-cX]")
	require.NoError(t, err)
	require.Equal(t, Alternation{A: Range{'a', 'c'}, B: Range{'X', 'X'}}, n)
}

func TestParseRejectsNegatedClass(t *testing.T) {
	_, err := Parse("[^a]")
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.RegexInvalid))
}

func TestParseRejectsAnchors(t *testing.T) {
	_, err := Parse("^a$")
	require.Error(t, err)
	require.True(t, cerrors.Is(err, cerrors.RegexInvalid))
}

func TestParseQuestionAndPlusDesugar(t *testing.T) {
	n, err := Parse("a?")
	require.NoError(t, err)
	require.Equal(t, Alternation{A: Range{'a', 'a'}, B: Epsilon{}}, n)

	n, err = Parse("a+")
	require.NoError(t, err)
	require.Equal(t, Concatenation{A: Range{'a', 'a'}, B: Repetition{A: Range{'a', 'a'}}}, n)
}
