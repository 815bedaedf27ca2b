package session

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/psaab/rosctl/pkg/entry"
)

// Seed is initial device content, keyed by path.
type Seed map[string][]entry.Record

// Seeder is implemented by sessions that can be populated with records.
type Seeder interface {
	Seed(ctx context.Context, path string, rec entry.Record) (string, error)
}

// LoadSeed parses a YAML document of the form
//
//	ip address:
//	  - {address: 192.168.88.1/24, interface: bridge}
func LoadSeed(r io.Reader) (Seed, error) {
	var raw map[string][]map[string]any
	if err := yaml.NewDecoder(r).Decode(&raw); err != nil && err != io.EOF {
		return nil, fmt.Errorf("seed: %w", err)
	}
	seed := make(Seed, len(raw))
	for path, recs := range raw {
		for _, rec := range recs {
			seed[path] = append(seed[path], entry.Record(rec))
		}
	}
	return seed, nil
}

// LoadSeedFile reads a seed document from disk.
func LoadSeedFile(path string) (Seed, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("seed: %w", err)
	}
	defer f.Close()
	return LoadSeed(f)
}

// Apply stores every record, path by path in sorted order.
func (s Seed) Apply(ctx context.Context, dst Seeder) error {
	paths := make([]string, 0, len(s))
	for p := range s {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	for _, p := range paths {
		for _, rec := range s[p] {
			if _, err := dst.Seed(ctx, p, rec); err != nil {
				return err
			}
		}
	}
	return nil
}
