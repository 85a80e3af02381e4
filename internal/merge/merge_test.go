package merge

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/trutils/internal/testcase"
)

func step(c, e string) testcase.Step {
	return testcase.NewStep(c, e)
}

func TestNewDefaultsMarker(t *testing.T) {
	assert.Equal(t, DefaultMarker, New("").Marker())
	assert.Equal(t, "!M!", New("!M!").Marker())
}

func TestFieldScalar(t *testing.T) {
	m := New("!M!")

	got, changed, err := m.Field("priority_id", testcase.Number("5"), testcase.Number("5"))
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, testcase.Number("5"), got)

	got, changed, err = m.Field("priority_id", testcase.Number("5"), testcase.Number("7"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, testcase.Number("5"), got)

	got, changed, err = m.Field("custom_flag", testcase.Bool(true), testcase.Null{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, testcase.Bool(true), got)

	_, changed, err = m.Field("custom_multi", testcase.Opaque(`[1,2]`), testcase.Opaque(`[1,2]`))
	require.NoError(t, err)
	assert.False(t, changed)
}

func TestFieldString(t *testing.T) {
	m := New("!M!")

	tests := []struct {
		name      string
		template  string
		candidate string
		want      string
		changed   bool
	}{
		{"identical", "A", "A", "A", false},
		{"already applied", "A", "A !M! B", "A !M! B", false},
		{"template edited", "A2", "A !M! B", "A2!M! B", true},
		{"no marker left alone", "A2", "A B", "A B", false},
		{"only first marker splits", "X", "A!M!B!M!C", "X!M!B!M!C", true},
		{"marker at start", "X", "!M! mine", "X!M! mine", true},
		{"empty template", "", "A!M!B", "!M!B", true},
		{"trailing newline edit not propagated", "A\n\n", "A !M! B", "A !M! B", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := m.Field("custom_preconds", testcase.String(tt.template), testcase.String(tt.candidate))
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			assert.Equal(t, testcase.String(tt.want), got)
		})
	}
}

func TestFieldStringNullCandidate(t *testing.T) {
	got, changed, err := New("").Field("title", testcase.String("T"), testcase.Null{})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, testcase.Null{}, got)
}

func TestFieldStringShapeMismatch(t *testing.T) {
	_, changed, err := New("").Field("title", testcase.String("T"), testcase.Number("3"))
	assert.False(t, changed)

	var sm *ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, "title", sm.Field)
	assert.Equal(t, testcase.ShapeString, sm.Template)
	assert.Equal(t, "number", sm.Candidate)
}

func TestMergeStringEmptyMarker(t *testing.T) {
	got, changed := MergeString("new", "old", "")
	assert.False(t, changed)
	assert.Equal(t, "old", got)
}

func TestFieldSteps(t *testing.T) {
	const marker = "!M!"
	m := New(marker)
	s1 := step("Step 1", "Expected 1")
	s2 := step("Step 2", "Expected 2")
	s2mod := step("Step 2 Modified", "Expected 2")
	markerStep := step(marker, "")
	s4 := step("Non-Template Step", "Expected 4")
	template := testcase.Steps{s1, s2}

	tests := []struct {
		name      string
		candidate testcase.Steps
		want      testcase.Steps
		changed   bool
	}{
		{"identical", testcase.Steps{s1, s2}, testcase.Steps{s1, s2}, false},
		{"diverged without marker replaced", testcase.Steps{s1, s2mod}, testcase.Steps{s1, s2}, true},
		{"marker protects tail", testcase.Steps{s1, s2, markerStep, s4}, testcase.Steps{s1, s2, markerStep, s4}, false},
		{"marker tail kept on rewrite", testcase.Steps{s1, s2mod, markerStep, s4}, testcase.Steps{s1, s2, markerStep, s4}, true},
		{"extra unmarked trailing steps kept when prefix matches", testcase.Steps{s1, s2, s4}, testcase.Steps{s1, s2, s4}, false},
		{"shorter grows to template", testcase.Steps{s1}, testcase.Steps{s1, s2}, true},
		{"empty grows to template", testcase.Steps{}, testcase.Steps{s1, s2}, true},
		{"early marker", testcase.Steps{s1, markerStep, s4}, testcase.Steps{s1, s2, markerStep, s4}, true},
		{"late marker", testcase.Steps{s1, s2, s4, markerStep}, testcase.Steps{s1, s2, markerStep}, true},
		{"marker inside content", testcase.Steps{s1, s2mod, step("own "+marker+" steps", "")}, testcase.Steps{s1, s2, step("own "+marker+" steps", "")}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, changed, err := m.Field("custom_steps_separated", template, tt.candidate)
			require.NoError(t, err)
			assert.Equal(t, tt.changed, changed)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("merged steps mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestFieldEmptyTemplateSteps(t *testing.T) {
	const marker = "!M!"
	m := New(marker)
	own := step("manual", "x")
	markerStep := step(marker, "")
	tail := step("after marker", "y")

	decoded, err := testcase.DecodeValue([]byte(`[]`))
	require.NoError(t, err)
	require.Equal(t, testcase.Opaque("[]"), decoded)

	templates := map[string]testcase.Value{
		"empty array": decoded,
		"null":        testcase.Null{},
	}
	tests := []struct {
		name      string
		candidate testcase.Steps
		want      testcase.Steps
		changed   bool
	}{
		{"no marker left alone", testcase.Steps{own}, testcase.Steps{own}, false},
		{"marker first left alone", testcase.Steps{markerStep, tail}, testcase.Steps{markerStep, tail}, false},
		{"marker tail kept", testcase.Steps{own, markerStep, tail}, testcase.Steps{markerStep, tail}, true},
		{"empty candidate", testcase.Steps{}, testcase.Steps{}, false},
	}

	for tname, template := range templates {
		for _, tt := range tests {
			t.Run(tname+"/"+tt.name, func(t *testing.T) {
				got, changed, err := m.Field("custom_steps_separated", template, tt.candidate)
				require.NoError(t, err)
				assert.Equal(t, tt.changed, changed)
				if diff := cmp.Diff(tt.want, got); diff != "" {
					t.Errorf("merged steps mismatch (-want +got):\n%s", diff)
				}
			})
		}
	}
}

func TestFieldEmptyTemplateScalarCandidate(t *testing.T) {
	got, changed, err := New("").Field("custom_multi", testcase.Opaque("[]"), testcase.Opaque("[1]"))
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, testcase.Opaque("[]"), got)
}

func TestFieldStepsNullCandidate(t *testing.T) {
	template := testcase.Steps{step("a", "b")}
	got, changed, err := New("").Field("steps", template, testcase.Null{})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, template, got)
}

func TestFieldStepsShapeMismatch(t *testing.T) {
	_, _, err := New("").Field("steps", testcase.Steps{step("a", "b")}, testcase.String("text"))
	var sm *ShapeMismatchError
	require.ErrorAs(t, err, &sm)
	assert.Equal(t, testcase.ShapeSteps, sm.Template)
}

func TestMergeStepsDoesNotAliasTemplate(t *testing.T) {
	template := testcase.Steps{step("a", "b")}
	got, changed := MergeSteps(template, testcase.Steps{step("x", "y")}, DefaultMarker)
	require.True(t, changed)

	got[0].Content = "mutated"
	assert.Equal(t, "a", template[0].Content)
}

func TestMarkerIndex(t *testing.T) {
	steps := testcase.Steps{step("a", ""), step("b "+DefaultMarker, ""), step(DefaultMarker, "")}
	assert.Equal(t, 1, MarkerIndex(steps, DefaultMarker))
	assert.Equal(t, -1, MarkerIndex(steps, "!OTHER!"))
	assert.Equal(t, -1, MarkerIndex(steps, ""))
}

func TestAlreadyTemplated(t *testing.T) {
	tpl := testcase.Steps{step("a", "1"), step("b", "2")}
	assert.True(t, AlreadyTemplated(tpl, testcase.Steps{step("a", "1"), step("b", "2")}, -1))
	assert.True(t, AlreadyTemplated(tpl, testcase.Steps{step("a", "1"), step("b", "2"), step("m", "")}, 2))
	assert.False(t, AlreadyTemplated(tpl, testcase.Steps{step("a", "1")}, -1))
	assert.False(t, AlreadyTemplated(tpl, testcase.Steps{step("a", "1"), step("m", ""), step("b", "2")}, 1))
	assert.False(t, AlreadyTemplated(tpl, testcase.Steps{step("a", "1"), step("b", "3")}, -1))

	empty := testcase.Steps{}
	assert.True(t, AlreadyTemplated(empty, testcase.Steps{step("x", "")}, -1))
	assert.True(t, AlreadyTemplated(empty, testcase.Steps{step("m", ""), step("x", "")}, 0))
	assert.False(t, AlreadyTemplated(empty, testcase.Steps{step("x", ""), step("m", "")}, 1))
}
