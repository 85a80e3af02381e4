package selector

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trutils/internal/sections"
	"github.com/roach88/trutils/internal/testcase"
)

const tidField = "custom_templateid"

func tc(id, section int64, tid testcase.Value) testcase.Case {
	return testcase.NewCase(id, section, map[string]testcase.Value{
		tidField: tid,
		"title":  testcase.String("case"),
	})
}

func fixtureCases() []testcase.Case {
	return []testcase.Case{
		tc(1, 1, testcase.Number("1")),
		tc(2, 3, testcase.Number("2")),
		tc(3, 5, testcase.Number("1")),
		tc(4, 6, testcase.Number("2")),
		tc(5, 6, testcase.Null{}),
		tc(6, 7, testcase.String("")),
	}
}

func TestTemplatesBySection(t *testing.T) {
	got, err := TemplatesBySection(fixtureCases(), sections.NewIDSet(1, 3, 4), tidField)
	require.NoError(t, err)

	assert.Equal(t, []string{"1", "2"}, got.Order)
	assert.Equal(t, int64(1), got.ByID["1"].ID)
	assert.Equal(t, int64(2), got.ByID["2"].ID)
	assert.Empty(t, got.Unkeyed)
	assert.Equal(t, 2, got.Len())
}

func TestTemplatesBySectionUnkeyed(t *testing.T) {
	got, err := TemplatesBySection(fixtureCases(), sections.NewIDSet(6, 7), tidField)
	require.NoError(t, err)

	// case 4 carries "2"; cases 5 and 6 have no template id
	assert.Equal(t, []string{"2"}, got.Order)
	assert.Equal(t, []int64{5, 6}, got.Unkeyed)
}

func TestTemplatesBySectionDuplicate(t *testing.T) {
	_, err := TemplatesBySection(fixtureCases(), sections.NewIDSet(1, 5), tidField)
	var dup *DuplicateTemplateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "1", dup.TemplateID)
	assert.Equal(t, []int64{1, 3}, dup.CaseIDs)
	assert.Contains(t, dup.Error(), "cases 1,3")
}

func TestTemplatesByIDs(t *testing.T) {
	got, err := TemplatesByIDs([]int64{2, 99, 1, 2}, fixtureCases(), tidField)
	require.NoError(t, err)

	// selection follows suite order, not request order
	assert.Equal(t, []string{"1", "2"}, got.Order)
	assert.Equal(t, []int64{99}, got.Missing)
	assert.Equal(t, map[int64]struct{}{1: {}, 2: {}}, got.CaseIDs())
}

func TestTemplatesByIDsDuplicate(t *testing.T) {
	_, err := TemplatesByIDs([]int64{2, 4}, fixtureCases(), tidField)
	var dup *DuplicateTemplateIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "2", dup.TemplateID)
}

func TestSelectCandidates(t *testing.T) {
	cases := fixtureCases()
	templates, err := TemplatesBySection(cases, sections.NewIDSet(1, 3), tidField)
	require.NoError(t, err)

	got := SelectCandidates([]string{"1", "2", "3"}, templates.CaseIDs(), cases, tidField)

	require.Len(t, got, 3)
	require.Len(t, got["1"], 1)
	assert.Equal(t, int64(3), got["1"][0].ID)
	require.Len(t, got["2"], 1)
	assert.Equal(t, int64(4), got["2"][0].ID)
	assert.NotNil(t, got["3"])
	assert.Empty(t, got["3"])
	assert.Equal(t, 2, got.Total())
}

func TestSelectCandidatesNeverIncludesTemplates(t *testing.T) {
	cases := fixtureCases()
	templateCaseIDs := map[int64]struct{}{1: {}, 2: {}, 3: {}, 4: {}}

	got := SelectCandidates([]string{"1", "2"}, templateCaseIDs, cases, tidField)
	for tid, list := range got {
		for _, c := range list {
			_, isTemplate := templateCaseIDs[c.ID]
			assert.False(t, isTemplate, "template case %d selected as candidate for %s", c.ID, tid)
		}
	}
	assert.Equal(t, 0, got.Total())
}

func TestSelectCandidatesReturnsClones(t *testing.T) {
	cases := fixtureCases()
	got := SelectCandidates([]string{"1"}, map[int64]struct{}{1: {}}, cases, tidField)
	require.Len(t, got["1"], 1)

	got["1"][0].SetField("title", testcase.String("changed"))
	title, _ := cases[2].Field("title")
	assert.Equal(t, testcase.String("case"), title)
}
