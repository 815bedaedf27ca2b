package entry

import (
	"reflect"
	"testing"
)

func TestEqual(t *testing.T) {
	tests := []struct {
		a, b any
		want bool
	}{
		{nil, nil, true},
		{nil, "", false},
		{"", nil, false},
		{"a", "a", true},
		{"1", 1, false},
		{1, 1, true},
		{1, int64(1), false},
		{true, "yes", false},
		{true, true, true},
		{[]any{"a"}, []any{"a"}, true},
		{[]any{"a"}, []any{"b"}, false},
	}
	for _, tt := range tests {
		if got := Equal(tt.a, tt.b); got != tt.want {
			t.Errorf("Equal(%#v, %#v) = %v, want %v", tt.a, tt.b, got, tt.want)
		}
	}
}

func TestValueToString(t *testing.T) {
	tests := []struct {
		v           any
		compatBool  bool
		noneToEmpty bool
		want        *string
	}{
		{nil, false, false, nil},
		{nil, false, true, ptr("")},
		{true, false, false, ptr("yes")},
		{false, false, false, ptr("no")},
		{true, true, false, ptr("true")},
		{false, true, false, ptr("false")},
		{42, false, false, ptr("42")},
		{int64(-7), false, false, ptr("-7")},
		{uint16(8), false, false, ptr("8")},
		{1.5, false, false, ptr("1.5")},
		{"text", false, false, ptr("text")},
	}
	for _, tt := range tests {
		got := ValueToString(tt.v, tt.compatBool, tt.noneToEmpty)
		if !reflect.DeepEqual(got, tt.want) {
			t.Errorf("ValueToString(%#v, %v, %v) = %v, want %v",
				tt.v, tt.compatBool, tt.noneToEmpty, deref(got), deref(tt.want))
		}
	}
}

func TestParseWord(t *testing.T) {
	tests := []struct {
		in   string
		want any
	}{
		{"yes", true},
		{"true", true},
		{"no", false},
		{"false", false},
		{"42", 42},
		{"-3", -3},
		{"007", "007"},
		{"+1", "+1"},
		{"1d", "1d"},
		{"", ""},
		{"192.168.88.1/24", "192.168.88.1/24"},
	}
	for _, tt := range tests {
		got := ParseWord(tt.in)
		if !Equal(got, tt.want) {
			t.Errorf("ParseWord(%q) = %#v, want %#v", tt.in, got, tt.want)
		}
	}
}

func TestRecordFlags(t *testing.T) {
	rec := Record{
		IDKey:       "*1",
		DynamicKey:  true,
		BuiltinKey:  "yes",
		DisabledKey: "false",
		"comment":   nil,
	}
	if rec.ID() != "*1" {
		t.Errorf("ID() = %q", rec.ID())
	}
	if !rec.IsDynamic() || !rec.IsBuiltin() || rec.IsDisabled() {
		t.Errorf("flags: dynamic=%v builtin=%v disabled=%v",
			rec.IsDynamic(), rec.IsBuiltin(), rec.IsDisabled())
	}
	if !rec.Has("comment") || rec.Has("name") {
		t.Error("Has: nil-valued field must count as present")
	}
	want := []string{".id", "builtin", "comment", "disabled", "dynamic"}
	if got := rec.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if (Record{}).ID() != "" {
		t.Error("ID() of record without .id must be empty")
	}
}

func TestCloneIsIndependent(t *testing.T) {
	orig := []Record{{"a": 1}, {"b": "x"}}
	clone := CloneAll(orig)
	clone[0]["a"] = 2
	delete(clone[1], "b")
	if orig[0]["a"] != 1 || orig[1]["b"] != "x" {
		t.Errorf("original modified through clone: %v", orig)
	}
	if Record(nil).Clone() != nil {
		t.Error("Clone of nil record must be nil")
	}
}

func ptr(s string) *string { return &s }

func deref(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}
