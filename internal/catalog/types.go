package catalog

import (
	"bytes"
	"encoding/json"

	"gopkg.in/yaml.v3"
)

// flexString accepts a JSON string or number. Converted spec files are
// inconsistent about quoting numeric attributes.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	if bytes.Equal(b, []byte("null")) {
		*s = ""
		return nil
	}
	*s = flexString(b)
	return nil
}

// fieldList accepts either a list of fields or a single field object, which
// is how the XML converter renders packets with one field.
type fieldList []fieldEntry

func (l *fieldList) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) > 0 && b[0] == '{' {
		var f fieldEntry
		if err := json.Unmarshal(b, &f); err != nil {
			return err
		}
		*l = fieldList{f}
		return nil
	}
	var fs []fieldEntry
	if err := json.Unmarshal(b, &fs); err != nil {
		return err
	}
	*l = fs
	return nil
}

func (l *fieldList) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.MappingNode {
		var f fieldEntry
		if err := n.Decode(&f); err != nil {
			return err
		}
		*l = fieldList{f}
		return nil
	}
	var fs []fieldEntry
	if err := n.Decode(&fs); err != nil {
		return err
	}
	*l = fs
	return nil
}

// unit is a field unit. Only plain string units are shown; structured
// units (alternative representations in some spec files) are kept out.
type unit struct {
	Text  string
	Plain bool
}

func (u *unit) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		u.Plain = true
		return json.Unmarshal(b, &u.Text)
	}
	*u = unit{}
	return nil
}

func (u *unit) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode && n.Tag == "!!str" {
		u.Plain = true
		u.Text = n.Value
		return nil
	}
	*u = unit{}
	return nil
}
