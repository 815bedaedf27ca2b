// Package memory implements an in-process device session. It backs the lab
// daemon and the engine tests.
package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
)

// Device holds records per path in insertion order.
type Device struct {
	mu       sync.RWMutex
	paths    map[string][]entry.Record
	nextID   int
	failOn   map[string]error
	updates  int
	registry *schema.Registry
}

// Option configures a Device.
type Option func(*Device)

// WithSchema makes updates clear fields that are disabled by writing an
// empty string, like a real device does.
func WithSchema(reg *schema.Registry) Option {
	return func(d *Device) {
		d.registry = reg
	}
}

// New creates an empty device.
func New(opts ...Option) *Device {
	d := &Device{
		paths:  make(map[string][]entry.Record),
		failOn: make(map[string]error),
		nextID: 1,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Add appends a record to a path and returns its identifier. A record that
// already carries an identifier keeps it.
func (d *Device) Add(path string, rec entry.Record) string {
	d.mu.Lock()
	defer d.mu.Unlock()

	path = schema.NormalizePath(path)
	rec = rec.Clone()
	if rec == nil {
		rec = entry.Record{}
	}
	id := rec.ID()
	if id == "" {
		id = "*" + strconv.FormatInt(int64(d.nextID), 16)
		d.nextID++
		rec[entry.IDKey] = id
	}
	d.paths[path] = append(d.paths[path], rec)
	return id
}

// Seed implements session.Seeder.
func (d *Device) Seed(_ context.Context, path string, rec entry.Record) (string, error) {
	return d.Add(path, rec), nil
}

// FailOn makes updates of the given identifier fail with err. A nil err
// clears the fault.
func (d *Device) FailOn(id string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.failOn, id)
		return
	}
	d.failOn[id] = err
}

// Updates returns the number of successful updates so far.
func (d *Device) Updates() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.updates
}

// Paths returns the paths holding at least one record.
func (d *Device) Paths() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]string, 0, len(d.paths))
	for p := range d.paths {
		out = append(out, p)
	}
	return out
}

// Snapshot returns a copy of the records of a path.
func (d *Device) Snapshot(path string) []entry.Record {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return entry.CloneAll(d.paths[schema.NormalizePath(path)])
}

// ListRecords implements session.Session.
func (d *Device) ListRecords(ctx context.Context, path string) ([]entry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return d.Snapshot(path), nil
}

// UpdateRecord implements session.Session.
func (d *Device) UpdateRecord(ctx context.Context, path, id string, changes map[string]any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	if err, ok := d.failOn[id]; ok {
		return err
	}
	var p *schema.Path
	if d.registry != nil {
		p, _ = d.registry.FieldsOf(path)
	}
	for _, rec := range d.paths[schema.NormalizePath(path)] {
		if rec.ID() == id {
			session.ApplyChanges(rec, changes, p)
			d.updates++
			return nil
		}
	}
	return fmt.Errorf("%s %s: %w", path, id, session.ErrNoSuchRecord)
}

var (
	_ session.Session = (*Device)(nil)
	_ session.Seeder  = (*Device)(nil)
)
