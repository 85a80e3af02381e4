// Package harness runs templater scenarios described in YAML against an
// in-memory TestRail suite and checks the outcome.
//
// # Scenario Format
//
//	name: scenario_name
//	description: "What this scenario validates"
//	dry_run: false
//	options:
//	  project_id: 1
//	  template_field: custom_templateid
//	  fields: [title, custom_steps_separated]
//	  sections: [10]
//	  include_children: true
//	sections:
//	  - {id: 10, name: Templates}
//	  - {id: 11, name: Nested, parent_id: 10}
//	cases:
//	  - {id: 1, section_id: 10, custom_templateid: T1, title: Base}
//	  - {id: 2, section_id: 20, custom_templateid: T1, title: "Old!ENDTEMPLATE! notes"}
//	fail_updates: [3]
//	expect:
//	  updated: [2]
//	  failed: [3]
//	assertions:
//	  - type: final_field
//	    case_id: 2
//	    field: title
//	    value: "Base!ENDTEMPLATE! notes"
//
// Cases are raw TestRail case objects; every key other than id and
// section_id is a case field. Expectation lists are only checked when
// present, so `updated: []` asserts that nothing was written while leaving
// the key out skips the check.
//
// # Determinism
//
// Every run uses a fixed run id (run_id, default "run-fixed") and a
// testutil.DeterministicClock, so reports can be compared byte for byte
// against golden files with RunWithGolden.
package harness
