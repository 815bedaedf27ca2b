// Package schema describes the fields known for each configuration path.
//
// A Registry is built once and never mutated afterwards; the restrict and
// find-and-modify engines receive it explicitly.
package schema

import (
	"fmt"
	"sort"
	"strings"
)

// Field is the metadata of one field of a path.
type Field struct {
	Name string

	// Default is the value the device assumes when the field is unset.
	Default any

	// AbsentValue replaces the value when the field is missing from a
	// record entirely. Only used when HasAbsentValue is set.
	AbsentValue    any
	HasAbsentValue bool

	// DisableByEmptyString marks fields that are cleared by writing an empty
	// string instead of removing them with "!field" (for example comment).
	DisableByEmptyString bool

	CanDisable bool
	Required   bool
	ReadOnly   bool
}

// Path is the schema of one configuration path.
type Path struct {
	Name        string
	Fields      map[string]Field
	PrimaryKeys []string
}

// Field returns the descriptor of a field.
func (p *Path) Field(name string) (Field, bool) {
	f, ok := p.Fields[name]
	return f, ok
}

// Has reports whether the field is known for this path.
func (p *Path) Has(name string) bool {
	_, ok := p.Fields[name]
	return ok
}

// FieldNames returns the known field names in sorted order.
func (p *Path) FieldNames() []string {
	names := make([]string, 0, len(p.Fields))
	for n := range p.Fields {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Registry maps path names to their schema.
type Registry struct {
	paths map[string]*Path
}

// NewRegistry builds a registry. Paths are copied so later changes by the
// caller do not leak into the registry.
func NewRegistry(paths ...Path) (*Registry, error) {
	r := &Registry{paths: make(map[string]*Path, len(paths))}
	for _, p := range paths {
		name := NormalizePath(p.Name)
		if name == "" {
			return nil, fmt.Errorf("schema: path with empty name")
		}
		if _, dup := r.paths[name]; dup {
			return nil, fmt.Errorf("schema: duplicate path %q", name)
		}
		fields := make(map[string]Field, len(p.Fields))
		for fname, f := range p.Fields {
			if f.Name == "" {
				f.Name = fname
			}
			if f.Name != fname {
				return nil, fmt.Errorf("schema: path %q: field key %q does not match name %q", name, fname, f.Name)
			}
			fields[fname] = f
		}
		for _, pk := range p.PrimaryKeys {
			if _, ok := fields[pk]; !ok {
				return nil, fmt.Errorf("schema: path %q: primary key %q is not a field", name, pk)
			}
		}
		r.paths[name] = &Path{
			Name:        name,
			Fields:      fields,
			PrimaryKeys: append([]string(nil), p.PrimaryKeys...),
		}
	}
	return r, nil
}

// FieldsOf returns the schema of a path.
func (r *Registry) FieldsOf(path string) (*Path, error) {
	name := NormalizePath(path)
	p, ok := r.paths[name]
	if !ok {
		return nil, &SchemaError{Path: name, Msg: "unknown path"}
	}
	return p, nil
}

// Paths returns all registered path names, sorted.
func (r *Registry) Paths() []string {
	names := make([]string, 0, len(r.paths))
	for n := range r.paths {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// NormalizePath turns "/ip/address", "ip/address" and " ip  address " into
// the canonical "ip address".
func NormalizePath(path string) string {
	return strings.Join(strings.FieldsFunc(path, func(r rune) bool {
		return r == '/' || r == ' ' || r == '\t'
	}), " ")
}

// SchemaError reports a reference to an unknown field or an invalid
// combination of keys.
type SchemaError struct {
	Path  string
	Field string
	Msg   string
}

func (e *SchemaError) Error() string {
	switch {
	case e.Field != "" && e.Path != "":
		return fmt.Sprintf("%s: field %q: %s", e.Path, e.Field, e.Msg)
	case e.Field != "":
		return fmt.Sprintf("field %q: %s", e.Field, e.Msg)
	case e.Path != "":
		return fmt.Sprintf("%s: %s", e.Path, e.Msg)
	default:
		return e.Msg
	}
}
