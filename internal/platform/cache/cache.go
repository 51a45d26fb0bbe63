package cache

import (
	"context"
	"errors"
	"time"
)

// ErrMiss is returned by Get when the key is absent or expired.
var ErrMiss = errors.New("cache miss")

// Store is a tagged key/value cache with TTL. Entries are written with the
// set of tags they belong to (one tag per hospital whose bed counts the entry
// reflects); InvalidateTags drops every entry carrying any of the given tags
// without scanning the keyspace.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// HospitalTag builds the invalidation tag for one hospital's cached entries.
func HospitalTag(hospitalID string) string {
	return "hospital:" + hospitalID
}
