package sections

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trutils/internal/testcase"
)

// fixtureSections is two root trees, each three levels deep.
func fixtureSections() []testcase.Section {
	return []testcase.Section{
		testcase.NewSection(1, "Section 1"),
		testcase.NewSection(2, "Section 2"),
		testcase.NewChildSection(3, 1, "Child Section 1"),
		testcase.NewChildSection(4, 3, "Grandchild Section 1"),
		testcase.NewChildSection(5, 2, "Child Section 2"),
		testcase.NewChildSection(6, 5, "Grandchild Section 2"),
	}
}

func TestResolveDescendants(t *testing.T) {
	tests := []struct {
		name  string
		roots []int64
		want  []int64
	}{
		{"single root", []int64{1}, []int64{1, 3, 4}},
		{"middle of tree", []int64{5}, []int64{5, 6}},
		{"leaf", []int64{4}, []int64{4}},
		{"two roots", []int64{1, 2}, []int64{1, 2, 3, 4, 5, 6}},
		{"overlapping roots", []int64{1, 3}, []int64{1, 3, 4}},
		{"unknown root kept", []int64{99}, []int64{99}},
		{"no roots", nil, []int64{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveDescendants(tt.roots, fixtureSections())
			require.NoError(t, err)
			assert.Equal(t, tt.want, got.Sorted())
		})
	}
}

func TestResolveDescendantsIdempotent(t *testing.T) {
	secs := fixtureSections()
	for _, roots := range [][]int64{{1}, {2}, {3, 5}, {1, 2}, {6}} {
		first, err := ResolveDescendants(roots, secs)
		require.NoError(t, err)
		second, err := ResolveDescendants(first.Sorted(), secs)
		require.NoError(t, err)
		assert.Equal(t, first.Sorted(), second.Sorted(), "roots %v", roots)
	}
}

func TestResolveDescendantsMonotonic(t *testing.T) {
	secs := fixtureSections()
	small, err := ResolveDescendants([]int64{3}, secs)
	require.NoError(t, err)
	large, err := ResolveDescendants([]int64{3, 2}, secs)
	require.NoError(t, err)

	for id := range small {
		assert.True(t, large.Has(id), "section %d missing from superset closure", id)
	}
}

func TestResolveDescendantsCycle(t *testing.T) {
	secs := []testcase.Section{
		testcase.NewChildSection(1, 2, "a"),
		testcase.NewChildSection(2, 1, "b"),
	}

	_, err := ResolveDescendants([]int64{1}, secs)
	require.Error(t, err)

	var mh *MalformedHierarchyError
	require.True(t, errors.As(err, &mh))
	assert.Equal(t, int64(1), mh.SectionID)
	assert.Contains(t, mh.Error(), "cycle")
}

func TestResolveDescendantsCycleOutsideScope(t *testing.T) {
	secs := append(fixtureSections(),
		testcase.NewChildSection(10, 11, "loop a"),
		testcase.NewChildSection(11, 10, "loop b"),
	)

	got, err := ResolveDescendants([]int64{2}, secs)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 5, 6}, got.Sorted())
}

func TestNewTreeRejectsSelfParent(t *testing.T) {
	_, err := NewTree([]testcase.Section{testcase.NewChildSection(7, 7, "self")})
	var mh *MalformedHierarchyError
	require.ErrorAs(t, err, &mh)
	assert.Equal(t, int64(7), mh.SectionID)
}

func TestNewTreeDuplicateSections(t *testing.T) {
	_, err := NewTree([]testcase.Section{
		testcase.NewChildSection(3, 1, "x"),
		testcase.NewChildSection(3, 2, "x again"),
	})
	var mh *MalformedHierarchyError
	require.ErrorAs(t, err, &mh)

	tree, err := NewTree([]testcase.Section{
		testcase.NewSection(1, "root"),
		testcase.NewChildSection(3, 1, "x"),
		testcase.NewChildSection(3, 1, "x again"),
	})
	require.NoError(t, err)
	assert.Equal(t, []int64{3}, tree.Children(1))
	assert.True(t, tree.Known(3))
	assert.False(t, tree.Known(4))
}
