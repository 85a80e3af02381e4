package templater

import (
	"errors"
	"fmt"
	"strings"
)

// ErrorKind categorizes templater errors.
type ErrorKind string

const (
	// KindConfiguration means required options are missing or invalid.
	// The run stops before any remote call.
	KindConfiguration ErrorKind = "CONFIGURATION"

	// KindMalformedHierarchy means section data loops or contradicts itself.
	KindMalformedHierarchy ErrorKind = "MALFORMED_HIERARCHY"

	// KindDuplicateTemplateID means two template cases share a template id.
	KindDuplicateTemplateID ErrorKind = "DUPLICATE_TEMPLATE_ID"

	// KindRemoteFetch means cases, sections or suites could not be read.
	KindRemoteFetch ErrorKind = "REMOTE_FETCH"

	// KindRemoteUpdate means one case could not be written.
	KindRemoteUpdate ErrorKind = "REMOTE_UPDATE"

	// KindShapeMismatch means a candidate field could not be merged.
	KindShapeMismatch ErrorKind = "SHAPE_MISMATCH"
)

// Error is the templater's structured error. CaseID, SectionID and
// TemplateID identify the record involved when there is one.
type Error struct {
	Kind       ErrorKind
	Message    string
	CaseID     int64
	SectionID  int64
	TemplateID string
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s", e.Kind, e.Message)

	var ctx []string
	if e.CaseID != 0 {
		ctx = append(ctx, fmt.Sprintf("case=%d", e.CaseID))
	}
	if e.SectionID != 0 {
		ctx = append(ctx, fmt.Sprintf("section=%d", e.SectionID))
	}
	if e.TemplateID != "" {
		ctx = append(ctx, fmt.Sprintf("template=%s", e.TemplateID))
	}
	if len(ctx) > 0 {
		fmt.Fprintf(&b, " (%s)", strings.Join(ctx, ", "))
	}
	if e.Err != nil {
		fmt.Fprintf(&b, ": %v", e.Err)
	}
	return b.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of a templater error, or "" for other errors.
// Uses errors.As to handle wrapped errors.
func KindOf(err error) ErrorKind {
	var te *Error
	if errors.As(err, &te) {
		return te.Kind
	}
	return ""
}

// IsConfigurationError reports whether err is a configuration error.
func IsConfigurationError(err error) bool {
	return KindOf(err) == KindConfiguration
}

// IsRemoteFetchError reports whether err is a fetch failure.
func IsRemoteFetchError(err error) bool {
	return KindOf(err) == KindRemoteFetch
}

func configError(format string, args ...any) *Error {
	return &Error{Kind: KindConfiguration, Message: fmt.Sprintf(format, args...)}
}

func fetchError(what string, err error) *Error {
	return &Error{Kind: KindRemoteFetch, Message: "fetching " + what, Err: err}
}
