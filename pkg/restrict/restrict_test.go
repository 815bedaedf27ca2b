package restrict

import (
	"errors"
	"testing"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
)

func testPath(t *testing.T) *schema.Path {
	t.Helper()
	reg, err := schema.NewRegistry(schema.Path{
		Name: "ip firewall filter",
		Fields: map[string]schema.Field{
			"chain":    {},
			"action":   {Default: "accept"},
			"disabled": {Default: false},
			"comment":  {DisableByEmptyString: true, CanDisable: true},
			"type":     {AbsentValue: "A", HasAbsentValue: true},
			"log":      {Default: false},
		},
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	p, err := reg.FieldsOf("/ip/firewall/filter")
	if err != nil {
		t.Fatalf("FieldsOf: %v", err)
	}
	return p
}

func mustCompile(t *testing.T, raw []RawRule, compat bool) Rules {
	t.Helper()
	rules, err := Compile(raw, testPath(t), compat)
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return rules
}

func strp(s string) *string { return &s }

func TestCompileEmpty(t *testing.T) {
	rules, err := Compile(nil, testPath(t), false)
	if err != nil || rules != nil {
		t.Fatalf("Compile(nil) = %v, %v; want nil, nil", rules, err)
	}
	rules, err = Compile([]RawRule{}, testPath(t), false)
	if err != nil || rules != nil {
		t.Fatalf("Compile([]) = %v, %v; want nil, nil", rules, err)
	}
	if !Accepted(entry.Record{"chain": "input"}, testPath(t), nil, false) {
		t.Error("nil rules must accept every record")
	}
}

func TestCompileErrors(t *testing.T) {
	p := testPath(t)

	_, err := Compile([]RawRule{{Field: "!chain"}}, p, false)
	var se *schema.SchemaError
	if !errors.As(err, &se) {
		t.Errorf("negated field: got %v, want SchemaError", err)
	}

	_, err = Compile([]RawRule{{Field: "nonexistent"}}, p, false)
	if !errors.As(err, &se) || se.Field != "nonexistent" {
		t.Errorf("unknown field: got %v, want SchemaError for nonexistent", err)
	}

	_, err = Compile([]RawRule{{Field: "chain", Regex: strp("(")}}, p, false)
	var re *RegexCompileError
	if !errors.As(err, &re) {
		t.Fatalf("bad regex: got %v, want RegexCompileError", err)
	}
	if re.Pattern != "(" {
		t.Errorf("Pattern = %q, want %q", re.Pattern, "(")
	}
	if re.Unwrap() == nil {
		t.Error("RegexCompileError must wrap the compiler error")
	}
}

func TestCompileNormalizesValues(t *testing.T) {
	rules := mustCompile(t, []RawRule{{Field: "log", Values: []any{true, 1, nil}}}, false)
	if !rules[0].HasValues() || rules[0].HasRegex() {
		t.Error("a values rule must report values and no regex")
	}
	got := rules[0].Values()
	want := []any{"yes", "1", nil}
	for i := range want {
		if !entry.Equal(got[i], want[i]) {
			t.Errorf("value %d = %#v, want %#v", i, got[i], want[i])
		}
	}

	rules = mustCompile(t, []RawRule{{Field: "log", Values: []any{true}}}, true)
	if !entry.Equal(rules[0].Values()[0], true) {
		t.Errorf("compat values must be kept as-is, got %#v", rules[0].Values()[0])
	}
}

func TestRuleMatchesTypeSensitive(t *testing.T) {
	intRule := mustCompile(t, []RawRule{{Field: "chain", Values: []any{1}}}, true)[0]
	strRule := mustCompile(t, []RawRule{{Field: "chain", Values: []any{"1"}}}, true)[0]

	if !RuleMatches(1, intRule, true) {
		t.Error("values [1] must match integer 1")
	}
	if RuleMatches(1, strRule, true) {
		t.Error("values ['1'] must not match integer 1 in compat mode")
	}

	// Without compat both sides are normalized to text first.
	strRule = mustCompile(t, []RawRule{{Field: "chain", Values: []any{"1"}}}, false)[0]
	if !RuleMatches(1, strRule, false) {
		t.Error("values ['1'] must match integer 1 after normalization")
	}
}

func TestRuleMatches(t *testing.T) {
	tests := []struct {
		name  string
		rule  RawRule
		value any
		want  bool
	}{
		{"disabled matches nil", RawRule{Field: "comment", MatchDisabled: true}, nil, true},
		{"nil without match-disabled", RawRule{Field: "comment"}, nil, false},
		{"value member", RawRule{Field: "chain", Values: []any{"input", "forward"}}, "forward", true},
		{"value not member", RawRule{Field: "chain", Values: []any{"input"}}, "output", false},
		{"nil member", RawRule{Field: "comment", Values: []any{nil}}, nil, true},
		{"regex anchored at start", RawRule{Field: "chain", Regex: strp("in")}, "input", true},
		{"regex not searched", RawRule{Field: "chain", Regex: strp("put")}, "input", false},
		{"regex whole alternative", RawRule{Field: "chain", Regex: strp("out|in")}, "input", true},
		{"regex on nil", RawRule{Field: "chain", Regex: strp(".*")}, nil, false},
		{"regex on bool text", RawRule{Field: "log", Regex: strp("yes")}, true, true},
		{"values then regex", RawRule{Field: "chain", Values: []any{"x"}, Regex: strp("f")}, "forward", true},
		{"no criteria", RawRule{Field: "chain"}, "input", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule := mustCompile(t, []RawRule{tt.rule}, false)[0]
			if got := RuleMatches(tt.value, rule, false); got != tt.want {
				t.Errorf("RuleMatches(%#v) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestAccepted(t *testing.T) {
	p := testPath(t)
	tests := []struct {
		name  string
		rules []RawRule
		rec   entry.Record
		want  bool
	}{
		{
			name:  "default used for nil value",
			rules: []RawRule{{Field: "action", Values: []any{"accept"}}},
			rec:   entry.Record{"action": nil},
			want:  true,
		},
		{
			name:  "default used for missing field",
			rules: []RawRule{{Field: "action", Values: []any{"accept"}}},
			rec:   entry.Record{},
			want:  true,
		},
		{
			name:  "absent value substituted",
			rules: []RawRule{{Field: "type", Values: []any{"A"}}},
			rec:   entry.Record{"name": "router.lan"},
			want:  true,
		},
		{
			name:  "absent value not used when present",
			rules: []RawRule{{Field: "type", Values: []any{"A"}}},
			rec:   entry.Record{"type": "CNAME"},
			want:  false,
		},
		{
			name:  "invert",
			rules: []RawRule{{Field: "chain", Values: []any{"input"}, Invert: true}},
			rec:   entry.Record{"chain": "input"},
			want:  false,
		},
		{
			name: "all rules must pass",
			rules: []RawRule{
				{Field: "chain", Values: []any{"forward"}},
				{Field: "action", Values: []any{"drop"}},
			},
			rec:  entry.Record{"chain": "forward", "action": "accept"},
			want: false,
		},
		{
			name:  "match disabled field",
			rules: []RawRule{{Field: "comment", MatchDisabled: true}},
			rec:   entry.Record{"chain": "input"},
			want:  true,
		},
		{
			name:  "bool default normalized",
			rules: []RawRule{{Field: "log", Values: []any{false}}},
			rec:   entry.Record{},
			want:  true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rules := mustCompile(t, tt.rules, false)
			if got := Accepted(tt.rec, p, rules, false); got != tt.want {
				t.Errorf("Accepted(%v) = %v, want %v", tt.rec, got, tt.want)
			}
		})
	}
}

func TestFilterKeepsOrder(t *testing.T) {
	p := testPath(t)
	records := []entry.Record{
		{".id": "*1", "chain": "input"},
		{".id": "*2", "chain": "forward"},
		{".id": "*3", "chain": "input"},
	}
	rules := mustCompile(t, []RawRule{{Field: "chain", Values: []any{"input"}}}, false)
	got := Filter(records, p, rules, false)
	if len(got) != 2 || got[0].ID() != "*1" || got[1].ID() != "*3" {
		t.Errorf("Filter = %v", got)
	}
}

func TestPrepare(t *testing.T) {
	reg := schema.Builtin()
	rules, p, err := Prepare([]RawRule{{Field: "list", Regex: strp("block")}}, reg, "/ip/firewall/address-list", false)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if p.Name != "ip firewall address-list" || len(rules) != 1 || rules[0].RegexSource() != "block" {
		t.Errorf("Prepare = %v, %v", rules, p.Name)
	}
	if !rules[0].HasRegex() || rules[0].HasValues() {
		t.Errorf("HasRegex = %v, HasValues = %v; want true, false", rules[0].HasRegex(), rules[0].HasValues())
	}
	if _, _, err := Prepare(nil, reg, "/no/such/path", false); err == nil {
		t.Error("Prepare on unknown path must fail")
	}
}

func TestHasValuesWithEmptyList(t *testing.T) {
	rule := mustCompile(t, []RawRule{{Field: "chain", Values: []any{}}}, false)[0]
	if !rule.HasValues() {
		t.Error("an empty values list is still a values criterion")
	}
	if RuleMatches("input", rule, false) {
		t.Error("an empty values list must match nothing")
	}
}
