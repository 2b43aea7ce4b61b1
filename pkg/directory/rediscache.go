package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCacheTTL = 30 * time.Second

// Cached is a read-through Redis cache in front of another Directory. Role
// lookups are cached with a short TTL; member activity checks always hit the
// inner directory. Snapshotting actor sets at step entry keeps instance
// correctness independent of cache staleness.
type Cached struct {
	inner  Directory
	client redis.UniversalClient
	ttl    time.Duration
	logger *slog.Logger
}

// NewCached wraps a directory with a Redis role-lookup cache.
func NewCached(inner Directory, client redis.UniversalClient, logger *slog.Logger) *Cached {
	return &Cached{
		inner:  inner,
		client: client,
		ttl:    defaultCacheTTL,
		logger: logger,
	}
}

func (c *Cached) ListMembersWithRole(ctx context.Context, scope Scope, role string) ([]string, error) {
	key := roleCacheKey(scope, role)

	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		var ids []string
		if err := json.Unmarshal(payload, &ids); err == nil {
			return ids, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		// Cache unavailable: fall through to the inner directory.
		c.logger.WarnContext(ctx, "membership cache read failed", "key", key, "error", err)
	}

	ids, err := c.inner.ListMembersWithRole(ctx, scope, role)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(ids); err == nil {
		if err := c.client.Set(ctx, key, payload, c.ttl).Err(); err != nil {
			c.logger.WarnContext(ctx, "membership cache write failed", "key", key, "error", err)
		}
	}

	return ids, nil
}

func (c *Cached) IsActiveMember(ctx context.Context, scope Scope, memberID string) (bool, error) {
	return c.inner.IsActiveMember(ctx, scope, memberID)
}

func roleCacheKey(scope Scope, role string) string {
	dept := "-"
	if scope.DepartmentID != nil {
		dept = *scope.DepartmentID
	}

	return fmt.Sprintf("approvio:directory:%s:%s:%s", scope.OrganizationID, dept, role)
}
