// Package testcase defines the TestRail records the templater works on:
// cases, their typed field values, steps, and sections.
//
// Case fields arrive as untyped JSON. They are decoded once into the sealed
// Value interface so the merge code can switch over a closed set of shapes:
//   - String: free text, the only scalar that honours the end marker
//   - Steps: ordered content/expected pairs (separated steps fields)
//   - Null, Number, Bool, Opaque: compared for plain equality
//
// Opaque values (multi-selects, nested objects) are held as canonical JSON
// so two semantically equal documents compare equal regardless of key order
// or Unicode composition.
//
// This package imports nothing internal.
package testcase
