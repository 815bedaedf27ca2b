// Package restrict compiles user supplied restriction rules against a path
// schema and evaluates records against them.
package restrict

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
)

// RawRule is a rule as written by the user.
type RawRule struct {
	Field         string
	MatchDisabled bool
	Invert        bool
	Values        []any   // nil when not given
	Regex         *string // nil when not given
}

// Rule is a validated, compiled rule bound to one field. Rules are only
// produced by Compile.
type Rule struct {
	field         string
	invert        bool
	matchDisabled bool
	values        []any
	hasValues     bool
	regex         *regexp.Regexp
	regexSource   string
}

func (r *Rule) Field() string { return r.field }
func (r *Rule) Invert() bool { return r.invert }
func (r *Rule) MatchDisabled() bool { return r.matchDisabled }
func (r *Rule) RegexSource() string { return r.regexSource }
func (r *Rule) HasRegex() bool { return r.regex != nil }
func (r *Rule) HasValues() bool { return r.hasValues }
func (r *Rule) Values() []any { return append([]any(nil), r.values...) }

// Rules is an ordered rule list. A nil Rules accepts every record.
type Rules []*Rule

// RegexCompileError reports a pattern that failed to compile.
type RegexCompileError struct {
	Pattern string
	Err     error
}

func (e *RegexCompileError) Error() string {
	return fmt.Sprintf("restrict: invalid regular expression %q: %v", e.Pattern, e.Err)
}

func (e *RegexCompileError) Unwrap() error { return e.Err }

// Validate checks the rules against the path schema without building
// anything.
func Validate(raw []RawRule, path *schema.Path) error {
	for _, rule := range raw {
		if strings.HasPrefix(rule.Field, "!") {
			return &schema.SchemaError{Path: path.Name, Field: rule.Field, Msg: `restrict: the field name must not start with "!"`}
		}
		if !path.Has(rule.Field) {
			return &schema.SchemaError{Path: path.Name, Field: rule.Field, Msg: "restrict: the field does not exist for this path"}
		}
		if rule.Regex != nil {
			if _, err := regexp.Compile(*rule.Regex); err != nil {
				return &RegexCompileError{Pattern: *rule.Regex, Err: err}
			}
		}
	}
	return nil
}

// Compile validates and builds the rule list. With compat unset, rule
// values are normalised to their text form. A nil or empty raw list yields
// nil, meaning no restriction.
func Compile(raw []RawRule, path *schema.Path, compat bool) (Rules, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	if err := Validate(raw, path); err != nil {
		return nil, err
	}

	rules := make(Rules, 0, len(raw))
	for _, r := range raw {
		rule := &Rule{
			field:         r.Field,
			invert:        r.Invert,
			matchDisabled: r.MatchDisabled,
		}
		if r.Values != nil {
			rule.hasValues = true
			if compat {
				rule.values = append([]any(nil), r.Values...)
			} else {
				rule.values = make([]any, len(r.Values))
				for i, v := range r.Values {
					rule.values[i] = normalize(v, compat)
				}
			}
		}
		if r.Regex != nil {
			// Patterns match at the start of the value only.
			re, err := regexp.Compile(`^(?:` + *r.Regex + `)`)
			if err != nil {
				return nil, &RegexCompileError{Pattern: *r.Regex, Err: err}
			}
			rule.regex = re
			rule.regexSource = *r.Regex
		}
		rules = append(rules, rule)
	}
	return rules, nil
}

// normalize returns the text form of v, keeping nil as nil.
func normalize(v any, compat bool) any {
	s := entry.ValueToString(v, compat, false)
	if s == nil {
		return nil
	}
	return *s
}

// RuleMatches evaluates a rule without applying its inversion.
func RuleMatches(value any, rule *Rule, compat bool) bool {
	if value == nil && rule.matchDisabled {
		return true
	}
	if rule.hasValues {
		v := value
		if !compat {
			v = normalize(value, compat)
		}
		for _, want := range rule.values {
			if entry.Equal(v, want) {
				return true
			}
		}
	}
	if rule.regex != nil && value != nil {
		if rule.regex.MatchString(entry.Text(value, compat)) {
			return true
		}
	}
	return false
}

// Accepted reports whether the record passes every rule.
func Accepted(rec entry.Record, path *schema.Path, rules Rules, compat bool) bool {
	if rules == nil {
		return true
	}
	for _, rule := range rules {
		field, _ := path.Field(rule.field)
		value, present := rec[rule.field]
		if value == nil {
			value = field.Default
		}
		if !present && field.HasAbsentValue {
			value = field.AbsentValue
		}

		ok := RuleMatches(value, rule, compat)
		if rule.invert {
			ok = !ok
		}
		if !ok {
			return false
		}
	}
	return true
}

// Filter returns the accepted records in their original order.
func Filter(records []entry.Record, path *schema.Path, rules Rules, compat bool) []entry.Record {
	if rules == nil {
		return records
	}
	out := make([]entry.Record, 0, len(records))
	for _, rec := range records {
		if Accepted(rec, path, rules, compat) {
			out = append(out, rec)
		}
	}
	return out
}

// Prepare looks up the path in the registry and compiles the rules for it.
func Prepare(raw []RawRule, reg *schema.Registry, path string, compat bool) (Rules, *schema.Path, error) {
	p, err := reg.FieldsOf(path)
	if err != nil {
		return nil, nil, err
	}
	rules, err := Compile(raw, p, compat)
	if err != nil {
		return nil, nil, err
	}
	return rules, p, nil
}
