// Package sections expands a set of section ids to include every section
// nested below them.
package sections

import (
	"fmt"
	"sort"

	"github.com/roach88/trutils/internal/testcase"
)

// IDSet is a set of section ids.
type IDSet map[int64]struct{}

// NewIDSet builds a set from ids.
func NewIDSet(ids ...int64) IDSet {
	s := make(IDSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports membership.
func (s IDSet) Has(id int64) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the ids in ascending order.
func (s IDSet) Sorted() []int64 {
	out := make([]int64, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// MalformedHierarchyError reports section data that is not a forest.
type MalformedHierarchyError struct {
	SectionID int64
	Reason    string
}

func (e *MalformedHierarchyError) Error() string {
	return fmt.Sprintf("malformed section hierarchy at section %d: %s", e.SectionID, e.Reason)
}

// Tree is a parent to children index over one suite's sections.
type Tree struct {
	children map[int64][]int64
	known    map[int64]struct{}
}

// NewTree indexes sections. A section listed twice with different parents,
// or a section that is its own parent, is rejected.
func NewTree(secs []testcase.Section) (*Tree, error) {
	t := &Tree{
		children: make(map[int64][]int64),
		known:    make(map[int64]struct{}, len(secs)),
	}
	parents := make(map[int64]*int64, len(secs))

	for _, sec := range secs {
		if prev, dup := parents[sec.ID]; dup {
			if !sameParent(prev, sec.ParentID) {
				return nil, &MalformedHierarchyError{SectionID: sec.ID, Reason: "listed with two different parents"}
			}
			continue
		}
		parents[sec.ID] = sec.ParentID
		t.known[sec.ID] = struct{}{}

		if sec.ParentID == nil {
			continue
		}
		if *sec.ParentID == sec.ID {
			return nil, &MalformedHierarchyError{SectionID: sec.ID, Reason: "section is its own parent"}
		}
		t.children[*sec.ParentID] = append(t.children[*sec.ParentID], sec.ID)
	}
	return t, nil
}

// Children returns the direct children of a section in input order.
func (t *Tree) Children(id int64) []int64 {
	return t.children[id]
}

// Known reports whether the section appeared in the input.
func (t *Tree) Known(id int64) bool {
	_, ok := t.known[id]
	return ok
}

// Descendants returns root and every section below it. Reaching a section
// twice from the same root means the parent links loop, which is reported
// as a MalformedHierarchyError.
func (t *Tree) Descendants(root int64) (IDSet, error) {
	seen := NewIDSet(root)
	queue := []int64{root}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, child := range t.children[cur] {
			if seen.Has(child) {
				return nil, &MalformedHierarchyError{SectionID: child, Reason: fmt.Sprintf("cycle reached from root %d", root)}
			}
			seen[child] = struct{}{}
			queue = append(queue, child)
		}
	}
	return seen, nil
}

// ResolveDescendants returns the union of every root and all of its
// descendants. Roots that do not appear in secs are kept as-is.
func ResolveDescendants(roots []int64, secs []testcase.Section) (IDSet, error) {
	tree, err := NewTree(secs)
	if err != nil {
		return nil, err
	}

	out := make(IDSet)
	for _, root := range roots {
		sub, err := tree.Descendants(root)
		if err != nil {
			return nil, err
		}
		for id := range sub {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

func sameParent(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}
