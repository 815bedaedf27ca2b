package task

import (
	"context"
	"strings"
	"testing"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session/memory"
)

func TestParseFindModify(t *testing.T) {
	doc := `
path: /ip/dns/static
find:
  name: router.lan
  "!comment":
values:
  address: 192.168.88.1
  ttl: 300
require_matches_min: 1
require_matches_max: "2"
allow_no_matches: false
dry_run: true
`
	task, err := ParseFindModify([]byte(doc))
	if err != nil {
		t.Fatalf("ParseFindModify: %v", err)
	}
	o := task.Options()
	if o.Path != "/ip/dns/static" {
		t.Errorf("Path = %q", o.Path)
	}
	if v, ok := o.Find["!comment"]; !ok || v != nil {
		t.Errorf("Find[!comment] = %#v, %v", v, ok)
	}
	if o.Values["ttl"] != 300 {
		t.Errorf("Values[ttl] = %#v, want int 300", o.Values["ttl"])
	}
	if o.RequireMatchesMin != 1 || o.RequireMatchesMax == nil || *o.RequireMatchesMax != 2 {
		t.Errorf("counts = %d, %v", o.RequireMatchesMin, o.RequireMatchesMax)
	}
	if o.AllowNoMatches == nil || *o.AllowNoMatches {
		t.Errorf("AllowNoMatches = %v", o.AllowNoMatches)
	}
	if !o.IgnoreDynamic {
		t.Error("ignore_dynamic must default to true")
	}
	if !o.DryRun || o.Diff {
		t.Errorf("DryRun = %v, Diff = %v", o.DryRun, o.Diff)
	}
}

func TestDecodeFindModifyDefaults(t *testing.T) {
	task, err := DecodeFindModify(map[string]any{"path": "ip address", "ignore_dynamic": false})
	if err != nil {
		t.Fatalf("DecodeFindModify: %v", err)
	}
	if task.Find == nil || task.Values == nil {
		t.Error("find and values must default to empty maps")
	}
	if task.IgnoreDynamic {
		t.Error("explicit ignore_dynamic=false must be kept")
	}
	if task.RequireMatchesMax != nil || task.AllowNoMatches != nil {
		t.Error("unset optional fields must stay nil")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"missing path", "find: {}"},
		{"unknown key", "path: ip address\nfnid: {}"},
		{"bad yaml", "path: [unclosed"},
		{"empty document", ""},
	}
	for _, tt := range tests {
		if _, err := ParseFindModify([]byte(tt.doc)); err == nil {
			t.Errorf("find-and-modify %s: expected error", tt.name)
		}
		if _, err := ParseRestrict([]byte(tt.doc)); err == nil {
			t.Errorf("restrict %s: expected error", tt.name)
		}
	}
}

func TestParseRestrict(t *testing.T) {
	doc := `{"path": "ip firewall filter", "compat": true,
  "restrict": [{"field": "chain", "values": ["input"]}, {"field": "comment", "regex": "^keep", "invert": true}]}`
	task, err := ParseRestrict([]byte(doc))
	if err != nil {
		t.Fatalf("ParseRestrict: %v", err)
	}
	raw := task.RawRules()
	if len(raw) != 2 {
		t.Fatalf("RawRules() = %v", raw)
	}
	if raw[0].Field != "chain" || len(raw[0].Values) != 1 || raw[0].Regex != nil {
		t.Errorf("rule 0 = %+v", raw[0])
	}
	if raw[1].Regex == nil || *raw[1].Regex != "^keep" || !raw[1].Invert {
		t.Errorf("rule 1 = %+v", raw[1])
	}
	if !task.Compat || !task.IgnoreDynamic {
		t.Errorf("Compat = %v, IgnoreDynamic = %v", task.Compat, task.IgnoreDynamic)
	}

	task, err = ParseRestrict([]byte("path: ip address"))
	if err != nil {
		t.Fatal(err)
	}
	if task.RawRules() != nil {
		t.Error("a task without restrict must yield nil rules")
	}
}

func TestRestrictRun(t *testing.T) {
	dev := memory.New()
	dev.Add("ip firewall filter", entry.Record{"chain": "input", "action": "accept"})
	dev.Add("ip firewall filter", entry.Record{"chain": "forward", "action": "drop"})
	dev.Add("ip firewall filter", entry.Record{"chain": "input", "action": "drop", "dynamic": true})

	task, err := ParseRestrict([]byte(`
path: /ip/firewall/filter
restrict:
  - field: chain
    values: [input]
`))
	if err != nil {
		t.Fatal(err)
	}
	got, err := task.Run(context.Background(), dev, schema.Builtin())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(got) != 1 || got[0].ID() != "*1" {
		t.Errorf("Run = %v", got)
	}

	task.IgnoreDynamic = false
	got, err = task.Run(context.Background(), dev, schema.Builtin())
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Errorf("with dynamic records: %v", got)
	}

	task.Rules = []Rule{{Field: "bogus"}}
	if _, err := task.Run(context.Background(), dev, schema.Builtin()); err == nil || !strings.Contains(err.Error(), "bogus") {
		t.Errorf("unknown field: %v", err)
	}
}
