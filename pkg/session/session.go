// Package session defines the contract between the engines and a device
// holding configuration records.
package session

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
)

// ErrNoSuchRecord is returned by sessions when an update targets an
// identifier that does not exist.
var ErrNoSuchRecord = errors.New("no such item")

// Session is a sequential, blocking connection to a device.
type Session interface {
	// ListRecords returns the records of a path in device order.
	ListRecords(ctx context.Context, path string) ([]entry.Record, error)

	// UpdateRecord applies changes to one record. A "!field" key with an
	// empty value removes the field.
	UpdateRecord(ctx context.Context, path, id string, changes map[string]any) error
}

// Filter drops records the caller does not want to manage.
type Filter struct {
	IgnoreDynamic bool
	IgnoreBuiltin bool
}

// Apply returns the records passing the filter, in order.
func (f Filter) Apply(records []entry.Record) []entry.Record {
	if !f.IgnoreDynamic && !f.IgnoreBuiltin {
		return records
	}
	out := make([]entry.Record, 0, len(records))
	for _, r := range records {
		if f.IgnoreDynamic && r.IsDynamic() {
			continue
		}
		if f.IgnoreBuiltin && r.IsBuiltin() {
			continue
		}
		out = append(out, r)
	}
	return out
}

// List reads a path and applies the filter.
func List(ctx context.Context, s Session, path string, f Filter) ([]entry.Record, error) {
	records, err := s.ListRecords(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", path, err)
	}
	return f.Apply(records), nil
}

// SplitChanges separates an update into fields to set and fields to
// remove. "!field" removes the field. With a path schema, an empty string
// written to a field disabled by empty string removes it as well. The .id
// key is never touched.
func SplitChanges(changes map[string]any, path *schema.Path) (set map[string]any, del []string) {
	set = make(map[string]any, len(changes))
	for k, v := range changes {
		if k == entry.IDKey {
			continue
		}
		if name, ok := strings.CutPrefix(k, "!"); ok && name != "" {
			del = append(del, name)
			continue
		}
		if path != nil && entry.Equal(v, "") {
			if f, ok := path.Field(k); ok && f.DisableByEmptyString {
				del = append(del, k)
				continue
			}
		}
		set[k] = v
	}
	sort.Strings(del)
	return set, del
}

// ApplyChanges mutates rec the way a device applies an update. path may be
// nil.
func ApplyChanges(rec entry.Record, changes map[string]any, path *schema.Path) {
	set, del := SplitChanges(changes, path)
	for _, k := range del {
		delete(rec, k)
	}
	for k, v := range set {
		rec[k] = v
	}
}
