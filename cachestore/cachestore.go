// Package cachestore is a small named-keyspace cache used for snapshots the
// workers refresh on an interval: the site-admin set, resolved persons,
// flair emoji lookups. Consumers read whatever snapshot is present; they
// never mutate shared maps in place.
package cachestore

import (
	"context"
)

type CacheStore interface {
	Get(ctx context.Context, name, key string) (string, error)
	Set(ctx context.Context, name, key string, val string) error
	Purge(ctx context.Context, name, key string) error
}
