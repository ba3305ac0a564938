package cerrors

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWrapUnwrapsToCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(ImageCorrupt, "loading image", cause)
	require.ErrorIs(t, err, cause)
	require.Equal(t, cause, errors.Unwrap(err))
}

func TestIsMatchesKindThroughWrapChain(t *testing.T) {
	inner := New(RegexInvalid, "bad pattern")
	outer := Wrap(BuildRejected, "lowering rule", inner)
	require.True(t, Is(outer, BuildRejected))
	require.True(t, Is(outer, RegexInvalid))
	require.False(t, Is(outer, OutOfBudget))
}

func TestWithAttachesContext(t *testing.T) {
	err := New(BuildRejected, "missing field").With("path", "/rules/0/when")
	require.Equal(t, "/rules/0/when", err.Context["path"])
}
