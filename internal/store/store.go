// Package store persists intermediate analysis artifacts keyed by session,
// parameter set and shuffle index. Every computation behind it is pure, so a
// cache miss only costs time.
package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"

	"github.com/vmihailenco/msgpack/v5"
)

// NoShuffle is the shuffle index of artifacts computed from the true model
const NoShuffle = -1

// ErrUnknownBackend is returned by Open for an unsupported backend name
var ErrUnknownBackend = errors.New("store: unknown backend")

// Key identifies one artifact
type Key struct {
	Session string
	// Kind separates artifact types computed from the same parameters
	Kind    string
	Params  string
	Shuffle int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s/%d", k.Session, k.Kind, k.Params, k.Shuffle)
}

// Store is a persisted artifact cache. Get reports whether the key was found
// and decodes the value into dst.
type Store interface {
	Get(ctx context.Context, key Key, dst any) (bool, error)
	Put(ctx context.Context, key Key, v any) error
	Close() error
}

// ParamsHash returns a stable hex digest of a parameter set. The set is
// first decoded into generic string-keyed maps so that every map is encoded
// with sorted keys.
func ParamsHash(params any) (string, error) {
	raw, err := msgpack.Marshal(params)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	var generic any
	if err := msgpack.Unmarshal(raw, &generic); err != nil {
		return "", fmt.Errorf("failed to normalize parameters: %w", err)
	}
	enc, err := marshal(generic)
	if err != nil {
		return "", fmt.Errorf("failed to encode parameters: %w", err)
	}
	h := fnv.New64a()
	h.Write(enc)
	return fmt.Sprintf("%016x", h.Sum64()), nil
}

// Memoize returns the stored value for key or computes and stores it
func Memoize[T any](ctx context.Context, s Store, key Key, compute func(ctx context.Context) (T, error)) (T, error) {
	var v T
	if s == nil {
		return compute(ctx)
	}

	found, err := s.Get(ctx, key, &v)
	if err != nil {
		return v, fmt.Errorf("failed to read %s: %w", key, err)
	}
	if found {
		return v, nil
	}

	v, err = compute(ctx)
	if err != nil {
		return v, err
	}
	if err := s.Put(ctx, key, v); err != nil {
		return v, fmt.Errorf("failed to write %s: %w", key, err)
	}
	return v, nil
}

// Open returns the backend named by kind: "memory", "sqlite" or "postgres".
// dsn is the SQLite path or the PostgreSQL connection string.
func Open(kind, dsn string) (Store, error) {
	switch kind {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(dsn)
	case "postgres":
		return NewPostgres(dsn)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, kind)
	}
}

func marshal(v any) ([]byte, error) {
	enc := msgpack.GetEncoder()
	defer msgpack.PutEncoder(enc)

	var buf bytes.Buffer
	enc.Reset(&buf)
	enc.SetSortMapKeys(true)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func unmarshal(data []byte, dst any) error {
	return msgpack.Unmarshal(data, dst)
}
