package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// ObjectStore is a single-object key/value store such as an S3 bucket.
// Implementations return ErrNotFound for missing keys.
type ObjectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// ObjectBackend stores the record as one JSON object. Object PUTs replace
// the whole object, which gives the required atomicity.
type ObjectBackend struct {
	store ObjectStore
	key   string
}

func NewObjectBackend(store ObjectStore, key string) *ObjectBackend {
	return &ObjectBackend{store: store, key: key}
}

func (o *ObjectBackend) Load(ctx context.Context) (Record, error) {
	data, err := o.store.Get(ctx, o.key)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint object %q: %w", o.key, err)
	}
	return rec, nil
}

func (o *ObjectBackend) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return o.store.Put(ctx, o.key, data)
}

func (o *ObjectBackend) Delete(ctx context.Context) error {
	return o.store.Delete(ctx, o.key)
}

// RedisBackend stores the record under a single key. SET replaces the
// value atomically.
type RedisBackend struct {
	client redis.Cmdable
	key    string
}

func NewRedisBackend(client redis.Cmdable, key string) *RedisBackend {
	return &RedisBackend{client: client, key: key}
}

func (r *RedisBackend) Load(ctx context.Context) (Record, error) {
	data, err := r.client.Get(ctx, r.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return Record{}, ErrNotFound
	}
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("decode checkpoint key %q: %w", r.key, err)
	}
	return rec, nil
}

func (r *RedisBackend) Save(ctx context.Context, rec Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.key, data, 0).Err()
}

func (r *RedisBackend) Delete(ctx context.Context) error {
	n, err := r.client.Del(ctx, r.key).Result()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
