package testcase

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// Case is a TestRail test case.
//
// Fields holds every key of the server record, including id and section_id,
// so the complete record can be written back by update_case. ID and
// SectionID are lifted out for convenience and take precedence on marshal.
type Case struct {
	ID        int64
	SectionID int64
	Fields    map[string]Value
}

// NewCase builds a case with the given fields. Nil field values become Null.
func NewCase(id, sectionID int64, fields map[string]Value) Case {
	c := Case{ID: id, SectionID: sectionID, Fields: make(map[string]Value, len(fields))}
	for k, v := range fields {
		if v == nil {
			v = Null{}
		}
		c.Fields[k] = v
	}
	return c
}

// Field returns the value of a field. Absent fields report Null and false.
func (c *Case) Field(name string) (Value, bool) {
	v, ok := c.Fields[name]
	if !ok || v == nil {
		return Null{}, ok
	}
	return v, true
}

// SetField replaces a field value.
func (c *Case) SetField(name string, v Value) {
	if c.Fields == nil {
		c.Fields = make(map[string]Value)
	}
	if v == nil {
		v = Null{}
	}
	c.Fields[name] = v
}

// TemplateID returns the case's value in the named template id field as text,
// or "" when the field is absent, null or not a string/number.
func (c *Case) TemplateID(field string) string {
	v, _ := c.Field(field)
	return Text(v)
}

// Clone returns a deep copy of the case.
func (c Case) Clone() Case {
	out := Case{ID: c.ID, SectionID: c.SectionID, Fields: make(map[string]Value, len(c.Fields))}
	for k, v := range c.Fields {
		out.Fields[k] = CloneValue(v)
	}
	return out
}

// SortedFieldNames returns field names in byte order.
func (c *Case) SortedFieldNames() []string {
	names := make([]string, 0, len(c.Fields))
	for k := range c.Fields {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// UnmarshalJSON implements json.Unmarshaler. The record must carry an
// integer id; section_id may be absent or null.
func (c *Case) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	fields := make(map[string]Value, len(raw))
	for k, v := range raw {
		val, err := DecodeValue(v)
		if err != nil {
			return fmt.Errorf("case field %q: %w", k, err)
		}
		fields[k] = val
	}

	id, err := intField(fields, "id")
	if err != nil {
		return err
	}
	if id == nil {
		return fmt.Errorf("case record has no id")
	}
	sectionID, err := intField(fields, "section_id")
	if err != nil {
		return err
	}

	*c = Case{ID: *id, Fields: fields}
	if sectionID != nil {
		c.SectionID = *sectionID
	}
	return nil
}

// MarshalJSON implements json.Marshaler with keys in byte order.
func (c Case) MarshalJSON() ([]byte, error) {
	fields := make(map[string]Value, len(c.Fields)+2)
	for k, v := range c.Fields {
		fields[k] = v
	}
	fields["id"] = Number(strconv.FormatInt(c.ID, 10))
	if c.SectionID != 0 {
		fields["section_id"] = Number(strconv.FormatInt(c.SectionID, 10))
	}

	names := make([]string, 0, len(fields))
	for k := range fields {
		names = append(names, k)
	}
	sort.Strings(names)

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range names {
		if i > 0 {
			buf.WriteByte(',')
		}
		keyBytes, err := json.Marshal(k)
		if err != nil {
			return nil, fmt.Errorf("marshal key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := EncodeValue(fields[k])
		if err != nil {
			return nil, fmt.Errorf("marshal field %q: %w", k, err)
		}
		buf.Write(valBytes)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func intField(fields map[string]Value, name string) (*int64, error) {
	v, ok := fields[name]
	if !ok {
		return nil, nil
	}
	switch val := v.(type) {
	case Null:
		return nil, nil
	case Number:
		n, err := strconv.ParseInt(string(val), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("case field %q: not an integer: %s", name, val)
		}
		return &n, nil
	default:
		return nil, fmt.Errorf("case field %q: expected integer, got %T", name, v)
	}
}

// Section is a node of the suite's section tree. ParentID is nil for roots.
type Section struct {
	ID       int64  `json:"id"`
	ParentID *int64 `json:"parent_id"`
	SuiteID  int64  `json:"suite_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Depth    int    `json:"depth,omitempty"`
}

// IsRoot reports whether the section has no parent.
func (s Section) IsRoot() bool {
	return s.ParentID == nil
}

// NewSection builds a root section.
func NewSection(id int64, name string) Section {
	return Section{ID: id, Name: name}
}

// NewChildSection builds a section under parent.
func NewChildSection(id, parent int64, name string) Section {
	p := parent
	return Section{ID: id, ParentID: &p, Name: name}
}
