// SPDX-License-Identifier: Apache-2.0

package casestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultPrefix = "casecheck:"

// RedisStore keeps case records as JSON values with a TTL. A second key maps
// the case number to the case id.
type RedisStore struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRedisStore connects to the Redis server at url (redis://...) and checks
// the connection. A zero ttl keeps records forever.
func NewRedisStore(ctx context.Context, url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	return NewRedisStoreFromClient(client, defaultPrefix, ttl), nil
}

func NewRedisStoreFromClient(client *redis.Client, prefix string, ttl time.Duration) *RedisStore {
	return &RedisStore{client: client, prefix: prefix, ttl: ttl}
}

func (s *RedisStore) caseKey(id string) string       { return s.prefix + "case:" + id }
func (s *RedisStore) numberKey(number string) string { return s.prefix + "number:" + number }

func (s *RedisStore) Save(ctx context.Context, rec Record) error {
	if rec.Case == nil || rec.Case.ID == "" {
		return errors.New("case record without an id")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode case %s: %w", rec.Case.ID, err)
	}
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.caseKey(rec.Case.ID), data, s.ttl)
		p.Set(ctx, s.numberKey(rec.Case.CaseNumber), rec.Case.ID, s.ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to store case %s: %w", rec.Case.ID, err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, key string) (Record, error) {
	rec, err := s.load(ctx, key)
	if !errors.Is(err, ErrNotFound) {
		return rec, err
	}
	id, err := s.client.Get(ctx, s.numberKey(key)).Result()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to look up case number %s: %w", key, err)
	}
	return s.load(ctx, id)
}

func (s *RedisStore) load(ctx context.Context, id string) (Record, error) {
	data, err := s.client.Get(ctx, s.caseKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to get case %s: %w", id, err)
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode case %s: %w", id, err)
	}
	return rec, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
