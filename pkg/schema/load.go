package schema

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed embedded/builtin.yaml
var builtinSchema []byte

type document struct {
	Paths []pathDoc `yaml:"paths"`
}

type pathDoc struct {
	Path        string              `yaml:"path"`
	PrimaryKeys []string            `yaml:"primary_keys"`
	Fields      map[string]fieldDoc `yaml:"fields"`
}

type fieldDoc struct {
	Default              any  `yaml:"default"`
	AbsentValue          any  `yaml:"absent_value"`
	DisableByEmptyString bool `yaml:"disable_by_empty_string"`
	CanDisable           bool `yaml:"can_disable"`
	Required             bool `yaml:"required"`
	ReadOnly             bool `yaml:"read_only"`
}

// Load parses a YAML schema document and builds a registry from it.
func Load(r io.Reader) (*Registry, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if err == io.EOF {
			return NewRegistry()
		}
		return nil, fmt.Errorf("schema: decode: %w", err)
	}

	paths := make([]Path, 0, len(doc.Paths))
	for _, pd := range doc.Paths {
		p := Path{
			Name:        pd.Path,
			PrimaryKeys: pd.PrimaryKeys,
			Fields:      make(map[string]Field, len(pd.Fields)),
		}
		for name, fd := range pd.Fields {
			p.Fields[name] = Field{
				Name:                 name,
				Default:              fd.Default,
				AbsentValue:          fd.AbsentValue,
				HasAbsentValue:       fd.AbsentValue != nil,
				DisableByEmptyString: fd.DisableByEmptyString,
				CanDisable:           fd.CanDisable,
				Required:             fd.Required,
				ReadOnly:             fd.ReadOnly,
			}
		}
		paths = append(paths, p)
	}
	return NewRegistry(paths...)
}

// LoadFile reads a YAML schema document from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("schema: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Builtin returns the registry compiled into the binary.
func Builtin() *Registry {
	r, err := Load(bytes.NewReader(builtinSchema))
	if err != nil {
		panic("schema: embedded schema is invalid: " + err.Error())
	}
	return r
}
