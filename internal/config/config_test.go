package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const fullConfig = `
testrail:
  url: https://example.testrail.io
  user: qa@example.com
  password: secret
  timeout_seconds: 10
  requests_per_minute: 180
templater:
  project_id: 1
  suite_id: 2
  template_field: custom_templateid
  fields: [custom_preconds, custom_steps_separated]
  sections: [10, 11]
  include_children: true
  marker: "--END--"
history_db: runs.db
`

func TestParseFullConfig(t *testing.T) {
	cfg, err := Parse("trutils.yaml", []byte(fullConfig))
	require.NoError(t, err)

	assert.Equal(t, "https://example.testrail.io", cfg.TestRail.URL)
	assert.Equal(t, int64(1), cfg.Templater.ProjectID)
	assert.Equal(t, []int64{10, 11}, cfg.Templater.Sections)
	assert.True(t, cfg.Templater.IncludeChildren)
	assert.Equal(t, "runs.db", cfg.HistoryDB)
	require.NoError(t, cfg.Validate())
	require.NoError(t, cfg.ValidateConnection())

	opts := cfg.Options()
	assert.Equal(t, "custom_templateid", opts.TemplateIDField)
	assert.Equal(t, []string{"custom_preconds", "custom_steps_separated"}, opts.Fields)
	assert.Equal(t, "--END--", opts.Marker)
	assert.Empty(t, opts.CaseIDs)

	client := cfg.Client()
	assert.Equal(t, 10*time.Second, client.Timeout)
	assert.Equal(t, 180, client.RequestsPerMinute)
	assert.Equal(t, "qa@example.com", client.User)
}

func TestParseEmptyDocument(t *testing.T) {
	cfg, err := Parse("empty.yaml", []byte("\n"))
	require.NoError(t, err)
	assert.Equal(t, Config{}, *cfg)
}

func TestParseSchemaErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want string
	}{
		{"unknown key", "templater:\n  projectid: 1\n", "projectid"},
		{"wrong type", "templater:\n  project_id: one\n", "project_id"},
		{"negative id", "templater:\n  sections: [1, -2]\n", "sections"},
		{"bad url", "testrail:\n  url: example.com\n", "url"},
		{"blank marker", "templater:\n  marker: \"  \"\n", "marker"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse("bad.yaml", []byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "trutils.yaml")
	require.NoError(t, os.WriteFile(path, []byte(fullConfig), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, int64(2), cfg.Templater.SuiteID)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestApplyEnvOverridesFile(t *testing.T) {
	cfg, err := Parse("trutils.yaml", []byte(fullConfig))
	require.NoError(t, err)

	t.Setenv(EnvURL, "https://other.testrail.io")
	t.Setenv(EnvUser, "")
	t.Setenv(EnvPassword, "from-env")
	cfg.ApplyEnv()

	assert.Equal(t, "https://other.testrail.io", cfg.TestRail.URL)
	assert.Equal(t, "qa@example.com", cfg.TestRail.User, "empty variables do not override")
	assert.Equal(t, "from-env", cfg.TestRail.Password)
}

func TestApplyEnvFile(t *testing.T) {
	cfg, err := Parse("trutils.yaml", []byte(fullConfig))
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), ".env")
	require.NoError(t, os.WriteFile(path, []byte("# credentials\nTR_USER=bot@example.com\nTR_PASS='s3cret'\nOTHER=x\n"), 0600))
	require.NoError(t, cfg.ApplyEnvFile(path))

	assert.Equal(t, "https://example.testrail.io", cfg.TestRail.URL)
	assert.Equal(t, "bot@example.com", cfg.TestRail.User)
	assert.Equal(t, "s3cret", cfg.TestRail.Password)
	assert.Empty(t, os.Getenv("OTHER"), "the process environment is not modified")

	err = cfg.ApplyEnvFile(filepath.Join(t.TempDir(), "missing.env"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "reading env file")
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{Templater: Templater{
			ProjectID:     1,
			TemplateField: "custom_templateid",
			Fields:        []string{"title"},
			Cases:         []int64{5},
		}}
	}

	require.NoError(t, base().Validate())

	cfg := base()
	cfg.Templater.ProjectID = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "templater.ProjectID")

	cfg = base()
	cfg.Templater.Fields = nil
	assert.Error(t, cfg.Validate())

	cfg = base()
	cfg.Templater.Cases = nil
	assert.ErrorContains(t, cfg.Validate(), "either sections or cases")

	cfg = base()
	cfg.Templater.Sections = []int64{3}
	assert.ErrorContains(t, cfg.Validate(), "mutually exclusive")
}

func TestValidateConnection(t *testing.T) {
	cfg := &Config{}
	err := cfg.ValidateConnection()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "testrail.URL")
	assert.Contains(t, err.Error(), "testrail.Password")

	cfg.TestRail = TestRail{URL: "https://x.testrail.io", User: "u", Password: "p"}
	assert.NoError(t, cfg.ValidateConnection())
}

func TestParseIDs(t *testing.T) {
	tests := []struct {
		in      string
		want    []int64
		wantErr bool
	}{
		{"", nil, false},
		{"1", []int64{1}, false},
		{" 1, 2 ,3", []int64{1, 2, 3}, false},
		{"1,,2", nil, true},
		{"1,x", nil, true},
		{"0", nil, true},
		{"-4", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseIDs(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseFields(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, ParseFields(" a, ,b "))
	assert.Nil(t, ParseFields(""))
}
