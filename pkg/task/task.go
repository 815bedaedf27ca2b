// Package task decodes find-and-modify and restrict task documents, as
// written in YAML or JSON playbooks, into engine inputs.
package task

import (
	"context"
	"fmt"

	"github.com/go-viper/mapstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/restrict"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
)

// Rule is one restrict clause of a task document.
type Rule struct {
	Field         string  `mapstructure:"field"`
	MatchDisabled bool    `mapstructure:"match_disabled"`
	Invert        bool    `mapstructure:"invert"`
	Values        []any   `mapstructure:"values"`
	Regex         *string `mapstructure:"regex"`
}

// Restrict lists the records of a path that pass a set of rules.
type Restrict struct {
	Path          string `mapstructure:"path"`
	Rules         []Rule `mapstructure:"restrict"`
	Compat        bool   `mapstructure:"compat"`
	IgnoreDynamic bool   `mapstructure:"ignore_dynamic"`
	IgnoreBuiltin bool   `mapstructure:"ignore_builtin"`
}

// FindModify is a find-and-modify task.
type FindModify struct {
	Path              string         `mapstructure:"path"`
	Find              map[string]any `mapstructure:"find"`
	Values            map[string]any `mapstructure:"values"`
	RequireMatchesMin int            `mapstructure:"require_matches_min"`
	RequireMatchesMax *int           `mapstructure:"require_matches_max"`
	AllowNoMatches    *bool          `mapstructure:"allow_no_matches"`
	IgnoreDynamic     bool           `mapstructure:"ignore_dynamic"`
	IgnoreBuiltin     bool           `mapstructure:"ignore_builtin"`
	DryRun            bool           `mapstructure:"dry_run"`
	Diff              bool           `mapstructure:"diff"`
}

func decode(input map[string]any, out any) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           out,
		WeaklyTypedInput: true,
		ErrorUnused:      true,
	})
	if err != nil {
		return err
	}
	return dec.Decode(input)
}

func unmarshalYAML(data []byte) (map[string]any, error) {
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("task: %w", err)
	}
	if m == nil {
		m = map[string]any{}
	}
	return m, nil
}

// DecodeFindModify decodes a find-and-modify task. ignore_dynamic defaults
// to true.
func DecodeFindModify(input map[string]any) (*FindModify, error) {
	t := &FindModify{IgnoreDynamic: true}
	if err := decode(input, t); err != nil {
		return nil, fmt.Errorf("task: find-and-modify: %w", err)
	}
	if t.Path == "" {
		return nil, fmt.Errorf("task: find-and-modify: path is required")
	}
	if t.Find == nil {
		t.Find = map[string]any{}
	}
	if t.Values == nil {
		t.Values = map[string]any{}
	}
	return t, nil
}

// ParseFindModify decodes a find-and-modify task from YAML or JSON.
func ParseFindModify(data []byte) (*FindModify, error) {
	m, err := unmarshalYAML(data)
	if err != nil {
		return nil, err
	}
	return DecodeFindModify(m)
}

// Options converts the task into engine options.
func (t *FindModify) Options() findmodify.Options {
	return findmodify.Options{
		Path:              t.Path,
		Find:              findmodify.Spec(t.Find),
		Values:            findmodify.Spec(t.Values),
		RequireMatchesMin: t.RequireMatchesMin,
		RequireMatchesMax: t.RequireMatchesMax,
		AllowNoMatches:    t.AllowNoMatches,
		IgnoreDynamic:     t.IgnoreDynamic,
		IgnoreBuiltin:     t.IgnoreBuiltin,
		DryRun:            t.DryRun,
		Diff:              t.Diff,
	}
}

// DecodeRestrict decodes a restrict task. ignore_dynamic defaults to true.
func DecodeRestrict(input map[string]any) (*Restrict, error) {
	t := &Restrict{IgnoreDynamic: true}
	if err := decode(input, t); err != nil {
		return nil, fmt.Errorf("task: restrict: %w", err)
	}
	if t.Path == "" {
		return nil, fmt.Errorf("task: restrict: path is required")
	}
	return t, nil
}

// ParseRestrict decodes a restrict task from YAML or JSON.
func ParseRestrict(data []byte) (*Restrict, error) {
	m, err := unmarshalYAML(data)
	if err != nil {
		return nil, err
	}
	return DecodeRestrict(m)
}

// RawRules converts the task rules for restrict.Compile. A task without a
// restrict key yields nil.
func (t *Restrict) RawRules() []restrict.RawRule {
	if t.Rules == nil {
		return nil
	}
	out := make([]restrict.RawRule, len(t.Rules))
	for i, r := range t.Rules {
		out[i] = restrict.RawRule{
			Field:         r.Field,
			MatchDisabled: r.MatchDisabled,
			Invert:        r.Invert,
			Values:        r.Values,
			Regex:         r.Regex,
		}
	}
	return out
}

// Run reads the path and returns the accepted records.
func (t *Restrict) Run(ctx context.Context, sess session.Session, reg *schema.Registry) ([]entry.Record, error) {
	rules, path, err := restrict.Prepare(t.RawRules(), reg, t.Path, t.Compat)
	if err != nil {
		return nil, err
	}
	records, err := session.List(ctx, sess, path.Name, session.Filter{
		IgnoreDynamic: t.IgnoreDynamic,
		IgnoreBuiltin: t.IgnoreBuiltin,
	})
	if err != nil {
		return nil, err
	}
	return restrict.Filter(records, path, rules, t.Compat), nil
}
