package testcase

import (
	"encoding/json"
	"fmt"
)

// Step is one entry of a separated-steps field.
// Extra holds keys other than content and expected (for example
// additional_info or refs) so they survive a write back.
type Step struct {
	Content  string
	Expected string
	Extra    map[string]json.RawMessage
}

// NewStep builds a step with no extra keys.
func NewStep(content, expected string) Step {
	return Step{Content: content, Expected: expected}
}

// Matches compares the templated attributes only. Extra keys are ignored.
func (s Step) Matches(other Step) bool {
	return s.Content == other.Content && s.Expected == other.Expected
}

func (s Step) clone() Step {
	out := Step{Content: s.Content, Expected: s.Expected}
	if s.Extra != nil {
		out.Extra = make(map[string]json.RawMessage, len(s.Extra))
		for k, v := range s.Extra {
			out.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}
	return out
}

// UnmarshalJSON implements json.Unmarshaler. A null content or expected
// decodes as the empty string.
func (s *Step) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	var content, expected *string
	if v, ok := raw["content"]; ok {
		if err := json.Unmarshal(v, &content); err != nil {
			return fmt.Errorf("content: %w", err)
		}
		delete(raw, "content")
	}
	if v, ok := raw["expected"]; ok {
		if err := json.Unmarshal(v, &expected); err != nil {
			return fmt.Errorf("expected: %w", err)
		}
		delete(raw, "expected")
	}

	*s = Step{}
	if content != nil {
		s.Content = *content
	}
	if expected != nil {
		s.Expected = *expected
	}
	if len(raw) > 0 {
		s.Extra = raw
	}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(s.Extra)+2)
	for k, v := range s.Extra {
		out[k] = v
	}
	content, err := json.Marshal(s.Content)
	if err != nil {
		return nil, err
	}
	expected, err := json.Marshal(s.Expected)
	if err != nil {
		return nil, err
	}
	out["content"] = content
	out["expected"] = expected
	return json.Marshal(out)
}
