package partition

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultKeyPrefix = "alarm-evaluator:members:"

// Membership tracks which evaluator instances are alive.
type Membership interface {
	// Heartbeat announces memberID as alive for ttl.
	Heartbeat(ctx context.Context, memberID string, ttl time.Duration) error
	// Members lists live member ids in sorted order.
	Members(ctx context.Context) ([]string, error)
	Leave(ctx context.Context, memberID string) error
}

// RedisMembership keeps one expiring key per live member.
type RedisMembership struct {
	client redis.Cmdable
	prefix string
}

func NewRedisMembership(client redis.Cmdable, prefix string) *RedisMembership {
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	return &RedisMembership{client: client, prefix: prefix}
}

func (m *RedisMembership) Heartbeat(ctx context.Context, memberID string, ttl time.Duration) error {
	if err := m.client.Set(ctx, m.prefix+memberID, time.Now().Unix(), ttl).Err(); err != nil {
		return fmt.Errorf("failed to heartbeat member %s: %w", memberID, err)
	}
	return nil
}

func (m *RedisMembership) Members(ctx context.Context) ([]string, error) {
	var (
		cursor  uint64
		members []string
	)

	for {
		keys, next, err := m.client.Scan(ctx, cursor, m.prefix+"*", 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan members: %w", err)
		}
		for _, key := range keys {
			members = append(members, strings.TrimPrefix(key, m.prefix))
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}

	sort.Strings(members)
	return dedupe(members), nil
}

func (m *RedisMembership) Leave(ctx context.Context, memberID string) error {
	if err := m.client.Del(ctx, m.prefix+memberID).Err(); err != nil {
		return fmt.Errorf("failed to remove member %s: %w", memberID, err)
	}
	return nil
}

// dedupe drops adjacent duplicates; SCAN may return a key more than once.
func dedupe(sorted []string) []string {
	out := sorted[:0]
	for i, s := range sorted {
		if i > 0 && s == sorted[i-1] {
			continue
		}
		out = append(out, s)
	}
	return out
}
