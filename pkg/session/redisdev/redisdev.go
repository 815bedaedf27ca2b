// Package redisdev implements a device session whose records live in Redis.
//
// Each path keeps an ordered list of record identifiers and one hash per
// record. Values are stored in their protocol text form and decoded with
// entry.ParseWord on the way out, the same way a device API client types
// the words it receives.
package redisdev

import (
	"context"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/psaab/rosctl/pkg/entry"
	"github.com/psaab/rosctl/pkg/schema"
	"github.com/psaab/rosctl/pkg/session"
)

// Session implements session.Session on top of Redis.
type Session struct {
	client   *redis.Client
	prefix   string
	registry *schema.Registry
}

// Option configures a Session.
type Option func(*Session)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(s *Session) {
		s.prefix = prefix
	}
}

// WithSchema makes updates clear fields that are disabled by writing an
// empty string.
func WithSchema(reg *schema.Registry) Option {
	return func(s *Session) {
		s.registry = reg
	}
}

// New connects to a Redis server.
func New(address, password string, db int, opts ...Option) *Session {
	return NewFromClient(redis.NewClient(&redis.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	}), opts...)
}

// NewFromClient wraps an existing client.
func NewFromClient(client *redis.Client, opts ...Option) *Session {
	s := &Session{
		client: client,
		prefix: "rosctl:device:",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close closes the underlying client.
func (s *Session) Close() error {
	return s.client.Close()
}

func (s *Session) idsKey(path string) string {
	return s.prefix + schema.NormalizePath(path) + ":ids"
}

func (s *Session) recordKey(path, id string) string {
	return s.prefix + schema.NormalizePath(path) + ":rec:" + id
}

func (s *Session) seqKey() string {
	return s.prefix + "seq"
}

// Seed stores a new record and returns its identifier. Records without an
// identifier get one allocated from a counter.
func (s *Session) Seed(ctx context.Context, path string, rec entry.Record) (string, error) {
	id := rec.ID()
	if id == "" {
		n, err := s.client.Incr(ctx, s.seqKey()).Result()
		if err != nil {
			return "", fmt.Errorf("allocate id: %w", err)
		}
		id = "*" + strconv.FormatInt(n, 16)
	}

	fields := map[string]any{entry.IDKey: id}
	for k, v := range rec {
		if k == entry.IDKey || v == nil {
			continue
		}
		fields[k] = entry.Text(v, false)
	}

	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordKey(path, id), fields)
		pipe.RPush(ctx, s.idsKey(path), id)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("seed %s: %w", path, err)
	}
	return id, nil
}

// ListRecords implements session.Session.
func (s *Session) ListRecords(ctx context.Context, path string) ([]entry.Record, error) {
	ids, err := s.client.LRange(ctx, s.idsKey(path), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list ids: %w", err)
	}
	if len(ids) == 0 {
		return []entry.Record{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, s.recordKey(path, id))
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}

	records := make([]entry.Record, 0, len(ids))
	for i, cmd := range cmds {
		raw := cmd.Val()
		if len(raw) == 0 {
			continue
		}
		rec := make(entry.Record, len(raw))
		for k, v := range raw {
			if k == entry.IDKey {
				rec[k] = v
				continue
			}
			rec[k] = entry.ParseWord(v)
		}
		rec[entry.IDKey] = ids[i]
		records = append(records, rec)
	}
	return records, nil
}

// UpdateRecord implements session.Session.
func (s *Session) UpdateRecord(ctx context.Context, path, id string, changes map[string]any) error {
	key := s.recordKey(path, id)
	n, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("lookup %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s %s: %w", schema.NormalizePath(path), id, session.ErrNoSuchRecord)
	}

	var p *schema.Path
	if s.registry != nil {
		p, _ = s.registry.FieldsOf(path)
	}
	set, del := session.SplitChanges(changes, p)
	for k, v := range set {
		set[k] = entry.Text(v, false)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		if len(del) > 0 {
			pipe.HDel(ctx, key, del...)
		}
		if len(set) > 0 {
			pipe.HSet(ctx, key, set)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", id, err)
	}
	return nil
}

var (
	_ session.Session = (*Session)(nil)
	_ session.Seeder  = (*Session)(nil)
)
