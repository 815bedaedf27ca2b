package cli

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/findmodify"
	"github.com/psaab/rosctl/pkg/quoting"
	"github.com/psaab/rosctl/pkg/restrict"
	"github.com/psaab/rosctl/pkg/session"
)

// parseSpec turns field=value and !field tokens into a specification.
// Values are typed with entry.ParseWord.
func parseSpec(tokens []string) (findmodify.Spec, error) {
	rec, err := quoting.ToRecord(tokens, false, false)
	if err != nil {
		return nil, err
	}
	spec := make(findmodify.Spec, len(rec))
	for k, v := range rec {
		if v == nil {
			if !strings.HasPrefix(k, "!") {
				return nil, fmt.Errorf("%q: expected field=value or !field", k)
			}
			spec[k] = nil
			continue
		}
		spec[k] = entry.ParseWord(*v)
	}
	return spec, nil
}

func (c *CLI) handlePrint(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("print: missing path")
	}
	find, err := parseSpec(args[1:])
	if err != nil {
		return err
	}
	records, err := c.engine.Find(ctx, args[0], find, session.Filter{})
	if err != nil {
		return err
	}
	c.printRecords(records)
	return nil
}

type setCommand struct {
	opts   findmodify.Options
	find   []string
	values []string
}

func parseSet(args []string) (*setCommand, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("set: missing path")
	}
	cmd := &setCommand{opts: findmodify.Options{Path: args[0], IgnoreDynamic: true}}
	section := ""
	for _, tok := range args[1:] {
		switch tok {
		case "find", "values":
			section = tok
			continue
		}
		switch section {
		case "find":
			cmd.find = append(cmd.find, tok)
			continue
		case "values":
			cmd.values = append(cmd.values, tok)
			continue
		}

		key, value, _ := strings.Cut(tok, "=")
		switch key {
		case "min":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("set: min: %w", err)
			}
			cmd.opts.RequireMatchesMin = n
		case "max":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("set: max: %w", err)
			}
			cmd.opts.RequireMatchesMax = &n
		case "allow-no-matches":
			b, ok := entry.ParseWord(value).(bool)
			if !ok {
				return nil, fmt.Errorf("set: allow-no-matches: expected yes or no")
			}
			cmd.opts.AllowNoMatches = &b
		case "dry-run":
			cmd.opts.DryRun = true
		case "include-dynamic":
			cmd.opts.IgnoreDynamic = false
		case "ignore-builtin":
			cmd.opts.IgnoreBuiltin = true
		default:
			return nil, fmt.Errorf("set: unknown option %q", tok)
		}
	}
	if section == "" {
		return nil, fmt.Errorf("set: expected 'find' and/or 'values'")
	}

	var err error
	if cmd.opts.Find, err = parseSpec(cmd.find); err != nil {
		return nil, err
	}
	if cmd.opts.Values, err = parseSpec(cmd.values); err != nil {
		return nil, err
	}
	return cmd, nil
}

func (c *CLI) handleSet(ctx context.Context, args []string) error {
	cmd, err := parseSet(args)
	if err != nil {
		return err
	}
	res, err := c.engine.Run(ctx, cmd.opts)
	if err != nil {
		return err
	}

	verb := "modified"
	if cmd.opts.DryRun {
		verb = "would modify"
	}
	fmt.Fprintf(c.out, "matched %d, %s %d\n", res.MatchCount, verb, res.ModifyCount)
	for _, mod := range res.Modifications {
		fmt.Fprintf(c.out, "  %s: %s\n", mod.ID, formatChanges(mod.Changes))
	}
	return nil
}

func parseRestrict(args []string) (path string, raw []restrict.RawRule, compat bool, err error) {
	if len(args) == 0 {
		return "", nil, false, fmt.Errorf("restrict: missing path")
	}
	path = args[0]
	for _, tok := range args[1:] {
		key, value, hasValue := strings.Cut(tok, "=")
		if key == "compat" && !hasValue {
			compat = true
			continue
		}
		if key == "field" {
			raw = append(raw, restrict.RawRule{Field: value})
			continue
		}
		if len(raw) == 0 {
			return "", nil, false, fmt.Errorf("restrict: %q must follow field=<name>", tok)
		}
		rule := &raw[len(raw)-1]
		switch key {
		case "values":
			for _, v := range strings.Split(value, ",") {
				rule.Values = append(rule.Values, entry.ParseWord(v))
			}
		case "regex":
			re := value
			rule.Regex = &re
		case "invert":
			rule.Invert = true
		case "match-disabled":
			rule.MatchDisabled = true
		default:
			return "", nil, false, fmt.Errorf("restrict: unknown option %q", tok)
		}
	}
	return path, raw, compat, nil
}

func (c *CLI) handleRestrict(ctx context.Context, args []string) error {
	path, raw, compat, err := parseRestrict(args)
	if err != nil {
		return err
	}
	rules, p, err := restrict.Prepare(raw, c.reg, path, compat)
	if err != nil {
		return err
	}
	records, err := session.List(ctx, c.sess, p.Name, session.Filter{})
	if err != nil {
		return err
	}
	c.printRecords(restrict.Filter(records, p, rules, compat))
	return nil
}

func (c *CLI) printRecords(records []entry.Record) {
	for i, rec := range records {
		fmt.Fprintln(c.out, formatRecord(i, rec))
	}
}

func formatValue(v any) string {
	return quoting.QuoteValue(entry.Text(v, false))
}

// formatRecord renders a record the way the device prints it: index,
// flags, then key=value pairs with .id first.
func formatRecord(i int, rec entry.Record) string {
	flags := ""
	if rec.IsDisabled() {
		flags += "X"
	}
	if rec.IsDynamic() {
		flags += "D"
	}

	tokens := make([]string, 0, len(rec))
	if id := rec.ID(); id != "" {
		tokens = append(tokens, entry.IDKey+"="+id)
	}
	for _, k := range rec.Keys() {
		if k == entry.IDKey {
			continue
		}
		tokens = append(tokens, k+"="+entry.Text(rec[k], false))
	}
	line, err := quoting.Join(tokens)
	if err != nil {
		line = fmt.Sprint(map[string]any(rec))
	}
	return fmt.Sprintf("%2d %-2s %s", i, flags, line)
}

// formatChanges renders a modification as a command line fragment.
func formatChanges(changes map[string]any) string {
	keys := make([]string, 0, len(changes))
	for k := range changes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	tokens := make([]string, 0, len(keys))
	for _, k := range keys {
		if strings.HasPrefix(k, "!") {
			tokens = append(tokens, k)
			continue
		}
		tokens = append(tokens, k+"="+entry.Text(changes[k], false))
	}
	line, err := quoting.Join(tokens)
	if err != nil {
		return fmt.Sprint(changes)
	}
	return line
}
