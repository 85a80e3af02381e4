// Package merge decides, field by field, whether a candidate case needs a
// template's value and computes the merged result.
//
// The end marker splits a field into a templated part (before the marker)
// and a manually owned part (the marker and everything after it). Merging
// rewrites only the templated part:
//
//   - Scalars other than strings are overwritten whenever they differ.
//   - Strings are rewritten only when the candidate already contains the
//     marker. A diverged string without a marker is left alone.
//   - Steps are compared index by index up to the template's length. The
//     first step whose content contains the marker, and every step after
//     it, survive the rewrite. Without a marker step the whole sequence is
//     replaced.
//
// The marker is a value carried by Merger, never package state, so runs
// with different markers can share a process.
package merge
