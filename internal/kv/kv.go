// Package kv is the durable key-value store used by the terminal client for
// its insight cache, notification read marker and session token.
package kv

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrNotFound is returned by Get when the key does not exist.
var ErrNotFound = errors.New("kv: key not found")

// Store is a small persistent map of byte values.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Clear removes every key owned by this store.
	Clear(ctx context.Context) error
}

// Options selects and configures a backend for Open.
type Options struct {
	Backend   string // file, redis or memory
	Dir       string
	RedisAddr string
	Prefix    string
}

// Open builds the store described by opts.
func Open(ctx context.Context, opts Options) (Store, error) {
	switch strings.ToLower(opts.Backend) {
	case "", "file":
		if opts.Dir == "" {
			return nil, errors.New("kv: file backend requires a directory")
		}
		fs, err := NewFileStore(opts.Dir)
		if err != nil {
			return nil, err
		}
		return fs, nil
	case "redis":
		if opts.RedisAddr == "" {
			return nil, errors.New("kv: redis backend requires an address")
		}
		rs, err := DialRedis(ctx, opts.RedisAddr, opts.Prefix)
		if err != nil {
			return nil, err
		}
		return rs, nil
	case "memory":
		return NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("kv: unknown backend %q", opts.Backend)
	}
}
