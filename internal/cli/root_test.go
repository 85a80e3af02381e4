package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandTree(t *testing.T) {
	root := NewRootCommand()
	assert.Equal(t, "trutils", root.Use)

	for _, name := range []string{"templater", "history", "test"} {
		sub, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, sub.Name())
	}
}

func TestFlagDefaults(t *testing.T) {
	root := NewRootCommand()

	tests := []struct {
		command   string
		flag      string
		shorthand string
		def       string
	}{
		{"", "verbose", "v", "false"},
		{"", "format", "", "text"},
		{"templater", "project", "p", "0"},
		{"templater", "template-field", "t", ""},
		{"templater", "fields", "f", ""},
		{"templater", "sections", "s", ""},
		{"templater", "cases", "i", ""},
		{"templater", "include-children", "c", "false"},
		{"templater", "dry-run", "", "false"},
		{"templater", "env-file", "", ""},
		{"history", "history-db", "", ""},
		{"history", "limit", "", "20"},
		{"history", "run", "", ""},
		{"history", "case", "", "0"},
		{"test", "update", "", "false"},
		{"test", "filter", "", ""},
		{"test", "golden-dir", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.command+"/"+tt.flag, func(t *testing.T) {
			cmd := root
			if tt.command != "" {
				var err error
				cmd, _, err = root.Find([]string{tt.command})
				require.NoError(t, err)
			}
			f := cmd.Flags().Lookup(tt.flag)
			if f == nil {
				f = cmd.PersistentFlags().Lookup(tt.flag)
			}
			require.NotNil(t, f)
			assert.Equal(t, tt.shorthand, f.Shorthand)
			assert.Equal(t, tt.def, f.DefValue)
		})
	}
}

func TestInvalidFormat(t *testing.T) {
	for _, format := range []string{"xml", "", "TEXT"} {
		t.Run(format, func(t *testing.T) {
			cmd := NewRootCommand()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--format", format, "test", "."})

			err := cmd.Execute()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "invalid format")
			assert.Equal(t, ExitCommandError, GetExitCode(err))
		})
	}
}

func TestSetupLoggingLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := setupLogging(&RootOptions{}, buf)
	logger.Debug("hidden")
	logger.Info("shown", "case_id", 7)
	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "case_id=7")

	buf.Reset()
	logger = setupLogging(&RootOptions{Verbose: true}, buf)
	logger.Debug("field changed", "field", "title")
	assert.Contains(t, buf.String(), "level=DEBUG")
	assert.Contains(t, buf.String(), "field=title")
}
