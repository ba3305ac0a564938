package guard

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func bytesOf(g Guard) []byte {
	var out []byte
	for b := 0; b < 256; b++ {
		if g.Contains(byte(b)) {
			out = append(out, byte(b))
		}
	}
	return out
}

func TestUnionCommutative(t *testing.T) {
	a := Of(10, 20)
	b := Of(15, 30)
	require.True(t, cmp.Equal(bytesOf(a.Union(b)), bytesOf(b.Union(a))))
}

func TestUnionAssociative(t *testing.T) {
	a, b, c := Of(1, 5), Of(4, 10), Of(20, 30)
	left := a.Union(b).Union(c)
	right := a.Union(b.Union(c))
	require.True(t, cmp.Equal(bytesOf(left), bytesOf(right)))
}

func TestIntersectionDistributesOverUnion(t *testing.T) {
	a, b, c := Of(0, 50), Of(10, 60), Of(40, 200)
	left := a.Intersect(b.Union(c))
	right := a.Intersect(b).Union(a.Intersect(c))
	require.True(t, cmp.Equal(bytesOf(left), bytesOf(right)))
}

func TestSubtractSelfIsEmpty(t *testing.T) {
	a := Of(5, 100)
	require.True(t, a.Subtract(a).IsEmpty())
}

func TestMergeAdjacentRanges(t *testing.T) {
	g := Of(0, 9).Union(Of(10, 20))
	require.Equal(t, []Range{{0, 20}}, g.Ranges)
}

func TestMintermizePartitionsAndCoversFull(t *testing.T) {
	in := []Tagged[[]int]{
		{Guard: Of(0, 100), Tag: []int{1}},
		{Guard: Of(50, 150), Tag: []int{2}},
	}
	join := func(a, b []int) []int { return append(append([]int{}, a...), b...) }
	cells := Mintermize(in, nil, join)

	covered := Guard{}
	for i, c := range cells {
		covered = covered.Union(c.Guard)
		for j, d := range cells {
			if i == j {
				continue
			}
			require.True(t, c.Guard.Intersect(d.Guard).IsEmpty())
		}
	}
	require.Equal(t, Full().Ranges, covered.Ranges)

	for _, c := range cells {
		if c.Guard.Contains(75) {
			require.ElementsMatch(t, []int{1, 2}, c.Tag)
		}
	}
}
