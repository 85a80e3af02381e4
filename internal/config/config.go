// Package config loads trutils settings from a YAML file, the environment
// and command line flags, in increasing order of precedence.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	cueyaml "cuelang.org/go/encoding/yaml"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roach88/trutils/internal/templater"
	"github.com/roach88/trutils/internal/testrail"
)

//go:embed schema.cue
var schemaCUE string

// Environment variables holding TestRail credentials.
const (
	EnvURL      = "TR_URL"
	EnvUser     = "TR_USER"
	EnvPassword = "TR_PASS"
)

// Config is the full set of settings for a run.
type Config struct {
	TestRail  TestRail  `yaml:"testrail"`
	Templater Templater `yaml:"templater"`

	// HistoryDB is the run history database path. Empty disables history.
	HistoryDB string `yaml:"history_db"`
}

// TestRail holds connection settings.
type TestRail struct {
	URL               string `yaml:"url" validate:"required,url"`
	User              string `yaml:"user" validate:"required"`
	Password          string `yaml:"password" validate:"required"`
	TimeoutSeconds    int    `yaml:"timeout_seconds" validate:"gte=0"`
	RequestsPerMinute int    `yaml:"requests_per_minute" validate:"gte=0"`
}

// Templater holds what to template.
type Templater struct {
	ProjectID       int64    `yaml:"project_id" validate:"gt=0"`
	SuiteID         int64    `yaml:"suite_id" validate:"gte=0"`
	TemplateField   string   `yaml:"template_field" validate:"required"`
	Fields          []string `yaml:"fields" validate:"min=1,dive,required"`
	Sections        []int64  `yaml:"sections" validate:"dive,gt=0"`
	Cases           []int64  `yaml:"cases" validate:"dive,gt=0"`
	IncludeChildren bool     `yaml:"include_children"`
	Marker          string   `yaml:"marker"`
	DryRun          bool     `yaml:"dry_run"`
}

var validate = validator.New()

// Load reads a YAML config file. The document is checked against the
// embedded schema first so unknown keys and wrong types carry positions.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	return Parse(path, data)
}

// Parse decodes a YAML config document. filename is used in messages.
func Parse(filename string, data []byte) (*Config, error) {
	var cfg Config
	if len(strings.TrimSpace(string(data))) == 0 {
		return &cfg, nil
	}
	if err := checkSchema(filename, data); err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("decoding config %s: %w", filename, err)
	}
	return &cfg, nil
}

func checkSchema(filename string, data []byte) error {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compiling config schema: %w", err)
	}
	def := schema.LookupPath(cue.ParsePath("#Config"))

	file, err := cueyaml.Extract(filename, data)
	if err != nil {
		return fmt.Errorf("parsing config %s: %s", filename, cueerrors.Details(err, nil))
	}
	doc := ctx.BuildFile(file)
	if err := doc.Err(); err != nil {
		return fmt.Errorf("parsing config %s: %s", filename, cueerrors.Details(err, nil))
	}

	if err := def.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("invalid config %s: %s", filename, strings.TrimSpace(cueerrors.Details(err, nil)))
	}
	return nil
}

// ApplyEnv overrides TestRail credentials with TR_URL, TR_USER and TR_PASS
// when they are set and non-empty.
func (c *Config) ApplyEnv() {
	c.applyCredentials(os.Getenv)
}

// ApplyEnvFile overrides TestRail credentials with the TR_* entries of a
// dotenv file. The process environment is left untouched.
func (c *Config) ApplyEnvFile(path string) error {
	vars, err := godotenv.Read(path)
	if err != nil {
		return fmt.Errorf("reading env file %s: %w", path, err)
	}
	c.applyCredentials(func(key string) string { return vars[key] })
	return nil
}

func (c *Config) applyCredentials(lookup func(string) string) {
	if v := lookup(EnvURL); v != "" {
		c.TestRail.URL = v
	}
	if v := lookup(EnvUser); v != "" {
		c.TestRail.User = v
	}
	if v := lookup(EnvPassword); v != "" {
		c.TestRail.Password = v
	}
}

// Validate checks the templater settings.
func (c *Config) Validate() error {
	if err := validate.Struct(c.Templater); err != nil {
		return describe("templater", err)
	}
	if len(c.Templater.Sections) == 0 && len(c.Templater.Cases) == 0 {
		return errors.New("templater: either sections or cases are required")
	}
	if len(c.Templater.Sections) > 0 && len(c.Templater.Cases) > 0 {
		return errors.New("templater: sections and cases are mutually exclusive")
	}
	return nil
}

// ValidateConnection checks the TestRail settings.
func (c *Config) ValidateConnection() error {
	if err := validate.Struct(c.TestRail); err != nil {
		return describe("testrail", err)
	}
	return nil
}

// describe turns validator errors into "section.field: rule" lines.
func describe(section string, err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("%s: %w", section, err)
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		rule := fe.Tag()
		if fe.Param() != "" {
			rule += "=" + fe.Param()
		}
		msgs = append(msgs, fmt.Sprintf("%s.%s: failed %q", section, fieldName(fe.Namespace()), rule))
	}
	return errors.New(strings.Join(msgs, "; "))
}

// fieldName drops the struct name from a validator namespace.
func fieldName(ns string) string {
	if i := strings.Index(ns, "."); i >= 0 {
		return ns[i+1:]
	}
	return ns
}

// Options converts the templater settings into run options.
func (c *Config) Options() templater.Options {
	return templater.Options{
		ProjectID:       c.Templater.ProjectID,
		SuiteID:         c.Templater.SuiteID,
		TemplateIDField: c.Templater.TemplateField,
		Fields:          append([]string(nil), c.Templater.Fields...),
		SectionIDs:      append([]int64(nil), c.Templater.Sections...),
		CaseIDs:         append([]int64(nil), c.Templater.Cases...),
		IncludeChildren: c.Templater.IncludeChildren,
		Marker:          c.Templater.Marker,
	}
}

// Client converts the TestRail settings into client configuration.
func (c *Config) Client() testrail.Config {
	return testrail.Config{
		URL:               c.TestRail.URL,
		User:              c.TestRail.User,
		Password:          c.TestRail.Password,
		Timeout:           time.Duration(c.TestRail.TimeoutSeconds) * time.Second,
		RequestsPerMinute: c.TestRail.RequestsPerMinute,
	}
}

// ParseIDs parses a comma separated list of positive ids. Whitespace around
// items is ignored; empty items are an error.
func ParseIDs(s string) ([]int64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	ids := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return nil, fmt.Errorf("empty id in %q", s)
		}
		id, err := strconv.ParseInt(p, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid id %q: must be a positive integer", p)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// ParseFields splits a comma separated field list, dropping blanks.
func ParseFields(s string) []string {
	var out []string
	for _, f := range strings.Split(s, ",") {
		if f = strings.TrimSpace(f); f != "" {
			out = append(out, f)
		}
	}
	return out
}
