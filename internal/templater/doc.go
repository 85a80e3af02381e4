// Package templater propagates edits from template test cases onto the
// cases derived from them.
//
// A run reads one snapshot of the suite's cases (and sections, when child
// sections are requested), selects the template cases by section or by case
// id, finds every candidate carrying a matching template id, merges the
// configured fields with package merge, and writes each changed candidate
// back through the Collaborator.
//
// Runs are synchronous and single-threaded. A failed write is recorded
// against its case and the run moves on; a failed fetch, a malformed section
// tree, or a duplicate template id aborts the run before anything is
// written. No version check is made before a write, so another writer
// editing the same cases during a run can be overwritten.
package templater
