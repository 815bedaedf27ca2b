// Package findmodify finds configuration records matching a specification
// and moves them to a desired state with the smallest possible writes.
//
// A run goes through VALIDATE, MATCH, CHECK_COUNTS and DIFF, then either
// APPLY and REFETCH or SKIP (dry run, nothing to do), and finally REPORT.
// Writes are issued one at a time in discovery order. The first rejected
// write aborts the run; writes that already succeeded stay applied.
package findmodify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/journal"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
)

// Spec maps field names to values. A "!field" key stands for "field is
// unset" and must carry a nil or empty value.
type Spec map[string]any

// Options describes one run.
type Options struct {
	Path   string
	Find   Spec
	Values Spec

	RequireMatchesMin int
	RequireMatchesMax *int
	// AllowNoMatches defaults to RequireMatchesMin == 0 when nil.
	AllowNoMatches *bool

	IgnoreDynamic bool
	IgnoreBuiltin bool

	DryRun bool
	Diff   bool
}

func (o Options) allowNoMatches() bool {
	if o.AllowNoMatches != nil {
		return *o.AllowNoMatches
	}
	return o.RequireMatchesMin == 0
}

func (o Options) filter() session.Filter {
	return session.Filter{IgnoreDynamic: o.IgnoreDynamic, IgnoreBuiltin: o.IgnoreBuiltin}
}

// Modification is the write needed to move one record to its desired state.
type Modification struct {
	ID      string
	Changes map[string]any
}

// Diff holds the matched records before and after modification.
type Diff struct {
	Before []entry.Record
	After  []entry.Record
}

// Result is the report of a successful run.
type Result struct {
	OldData       []entry.Record
	NewData       []entry.Record
	MatchCount    int
	ModifyCount   int
	Modifications []Modification
	Diff          *Diff
}

// Changed reports whether any modification was queued.
func (r *Result) Changed() bool {
	return r.ModifyCount > 0
}

// Engine runs find-and-modify operations against a device session.
type Engine struct {
	session  session.Session
	registry *schema.Registry
	logger   *slog.Logger
	metrics  *Metrics
	journal  *journal.Journal
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger; slog.Default() is used otherwise.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = l
	}
}

// WithMetrics attaches run counters.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) {
		e.metrics = m
	}
}

// WithJournal records every applied write in j.
func WithJournal(j *journal.Journal) Option {
	return func(e *Engine) {
		e.journal = j
	}
}

// New creates an engine.
func New(sess session.Session, reg *schema.Registry, opts ...Option) *Engine {
	e := &Engine{
		session:  sess,
		registry: reg,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// clause is one normalised specification entry.
type clause struct {
	key  string
	want any
}

// Run executes one find-and-modify operation.
func (e *Engine) Run(ctx context.Context, o Options) (*Result, error) {
	res, err := e.run(ctx, o)
	switch {
	case err == nil && res.Changed() && !o.DryRun:
		e.metrics.run("modified")
	case err == nil:
		e.metrics.run("unchanged")
	default:
		e.metrics.run("failed")
	}
	return res, err
}

func (e *Engine) run(ctx context.Context, o Options) (*Result, error) {
	log := e.logger.With("path", schema.NormalizePath(o.Path))

	// VALIDATE
	path, err := e.registry.FieldsOf(o.Path)
	if err != nil {
		return nil, err
	}
	find, err := normalizeSpec(path, "find", o.Find)
	if err != nil {
		return nil, err
	}
	values, err := normalizeSpec(path, "values", o.Values)
	if err != nil {
		return nil, err
	}
	if err := validateValues(path, values); err != nil {
		return nil, err
	}

	// MATCH
	oldData, err := session.List(ctx, e.session, path.Name, o.filter())
	if err != nil {
		return nil, err
	}
	working := entry.CloneAll(oldData)
	var matched []int
	for i, rec := range working {
		if matches(path, rec, find) {
			matched = append(matched, i)
		}
	}
	log.Debug("find-and-modify matched records", "records", len(working), "matched", len(matched))
	e.metrics.matchedRecords(len(matched))

	// CHECK_COUNTS
	if err := checkCounts(len(matched), o); err != nil {
		return nil, err
	}

	// DIFF
	var mods []Modification
	for _, i := range matched {
		if changes := diff(path, working[i], values); len(changes) > 0 {
			mods = append(mods, Modification{ID: working[i].ID(), Changes: changes})
		}
	}

	res := &Result{
		OldData:       oldData,
		NewData:       oldData,
		MatchCount:    len(matched),
		ModifyCount:   len(mods),
		Modifications: mods,
	}
	if o.Diff {
		res.Diff = &Diff{
			Before: make([]entry.Record, 0, len(matched)),
			After:  make([]entry.Record, 0, len(matched)),
		}
		for _, i := range matched {
			res.Diff.Before = append(res.Diff.Before, oldData[i])
			res.Diff.After = append(res.Diff.After, working[i])
		}
	}

	if o.DryRun || len(mods) == 0 {
		log.Debug("find-and-modify skipping apply", "dry_run", o.DryRun, "modifications", len(mods))
		return res, nil
	}

	// APPLY
	for i, mod := range mods {
		if err := ctx.Err(); err != nil {
			e.metrics.applyError()
			e.record(path.Name, mods[:i], true)
			return nil, &ApplyError{ID: mod.ID, Err: err}
		}
		if err := e.session.UpdateRecord(ctx, path.Name, mod.ID, mod.Changes); err != nil {
			e.metrics.applyError()
			e.record(path.Name, mods[:i], true)
			log.Warn("update rejected", "id", mod.ID, "err", err)
			return nil, &ApplyError{ID: mod.ID, Err: err}
		}
		e.metrics.modifiedRecord()
		log.Info("record updated", "id", mod.ID, "changes", len(mod.Changes))
	}
	e.record(path.Name, mods, false)

	// REFETCH
	newData, err := session.List(ctx, e.session, path.Name, o.filter())
	if err != nil {
		return nil, err
	}
	res.NewData = newData
	return res, nil
}

// Find returns the records of a path matching find. It reads only and
// leaves the run metrics alone.
func (e *Engine) Find(ctx context.Context, pathName string, find Spec, filter session.Filter) ([]entry.Record, error) {
	path, err := e.registry.FieldsOf(pathName)
	if err != nil {
		return nil, err
	}
	clauses, err := normalizeSpec(path, "find", find)
	if err != nil {
		return nil, err
	}
	records, err := session.List(ctx, e.session, path.Name, filter)
	if err != nil {
		return nil, err
	}
	var out []entry.Record
	for _, rec := range records {
		if matches(path, rec, clauses) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// record adds the applied writes of a run to the journal.
func (e *Engine) record(path string, applied []Modification, failed bool) {
	if e.journal == nil || len(applied) == 0 {
		return
	}
	writes := make([]journal.Write, len(applied))
	for i, m := range applied {
		writes[i] = journal.Write{ID: m.ID, Changes: m.Changes}
	}
	e.journal.Push(&journal.Entry{
		Timestamp: time.Now(),
		Path:      path,
		Writes:    writes,
		Failed:    failed,
	})
}

// normalizeSpec validates a specification and turns "!key" entries into
// nil wants. Clauses come back sorted by key.
func normalizeSpec(path *schema.Path, name string, spec Spec) ([]clause, error) {
	keys := make([]string, 0, len(spec))
	for k := range spec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]clause, 0, len(keys))
	for _, k := range keys {
		v := spec[k]
		base, negated := strings.CutPrefix(k, "!")
		if !negated {
			clauses = append(clauses, clause{key: k, want: v})
			continue
		}
		if v != nil && !entry.Equal(v, "") {
			return nil, &schema.SchemaError{Path: path.Name, Field: k,
				Msg: fmt.Sprintf("the value for %q in `%s` must not be non-trivial", k, name)}
		}
		if _, both := spec[base]; both {
			return nil, &schema.SchemaError{Path: path.Name, Field: base,
				Msg: fmt.Sprintf("`%s` must not contain both %q and %q", name, base, k)}
		}
		clauses = append(clauses, clause{key: base, want: nil})
	}
	return clauses, nil
}

func validateValues(path *schema.Path, values []clause) error {
	for _, c := range values {
		if c.key == entry.IDKey {
			return &schema.SchemaError{Path: path.Name, Field: c.key, Msg: "`values` must not contain \".id\""}
		}
		f, ok := path.Field(c.key)
		if !ok {
			return &schema.SchemaError{Path: path.Name, Field: c.key, Msg: "the field does not exist for this path"}
		}
		if f.ReadOnly {
			return &schema.SchemaError{Path: path.Name, Field: c.key, Msg: "the field is read-only"}
		}
	}
	return nil
}

// current returns the stored value, treating an absent field as "" when
// the field is disabled by writing an empty string and "" is wanted.
func current(path *schema.Path, rec entry.Record, key string, want any) any {
	cur := rec[key]
	if cur == nil && entry.Equal(want, "") {
		if f, ok := path.Field(key); ok && f.DisableByEmptyString {
			return ""
		}
	}
	return cur
}

func matches(path *schema.Path, rec entry.Record, find []clause) bool {
	for _, c := range find {
		if !entry.Equal(current(path, rec, c.key, c.want), c.want) {
			return false
		}
	}
	return true
}

// diff computes the changes for one record and applies them to rec.
func diff(path *schema.Path, rec entry.Record, values []clause) map[string]any {
	changes := make(map[string]any)
	for _, c := range values {
		if entry.Equal(current(path, rec, c.key, c.want), c.want) {
			continue
		}
		if c.want == nil {
			key := "!" + c.key
			if f, ok := path.Field(c.key); ok && f.DisableByEmptyString {
				key = c.key
			}
			changes[key] = ""
			delete(rec, c.key)
			continue
		}
		changes[c.key] = c.want
		rec[c.key] = c.want
	}
	return changes
}

func checkCounts(n int, o Options) error {
	mismatch := &CountMismatchError{Found: n, Min: o.RequireMatchesMin, Max: o.RequireMatchesMax}
	switch {
	case n == 0:
		if !o.allowNoMatches() {
			return mismatch
		}
		return nil
	case n < o.RequireMatchesMin:
		return mismatch
	case o.RequireMatchesMax != nil && n > *o.RequireMatchesMax:
		return mismatch
	}
	return nil
}
