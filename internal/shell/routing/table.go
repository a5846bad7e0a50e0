package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"
)

// KeyPrefix prefixes every routing table key.
const KeyPrefix = "domain:"

// RemovedPrefix prefixes removal markers. A marker records that the owner
// disconnected the domain, so a page record still naming it is stale.
const RemovedPrefix = "domain_removed:"

// ErrNotAcknowledged is returned when Redis answers a write with anything but OK.
var ErrNotAcknowledged = errors.New("routing table write not acknowledged")

// Key returns the routing table key for a normalized domain.
func Key(domain string) string {
	return KeyPrefix + domain
}

// RemovedKey returns the removal marker key for a normalized domain.
func RemovedKey(domain string) string {
	return RemovedPrefix + domain
}

// Table is the domain -> slug routing table.
// Set is last-write-wins. Claim is the conditional variant that refuses to
// overwrite a mapping owned by a different slug. Both clear the removal
// marker that GetAndDelete leaves behind.
type Table interface {
	Set(ctx context.Context, domain, slug string) error
	Get(ctx context.Context, domain string) (slug string, found bool, err error)
	GetAndDelete(ctx context.Context, domain string) (slug string, found bool, err error)
	Claim(ctx context.Context, domain, slug string) (owner string, claimed bool, err error)
	DeleteIf(ctx context.Context, domain, slug string) (deleted bool, err error)
	Removed(ctx context.Context, domain string) (bool, error)
	Scan(ctx context.Context, fn func(domain, slug string) error) error
}

// claimScript sets KEYS[1] to ARGV[1] unless it already holds another value,
// clearing the removal marker KEYS[2] on success.
// Returns {1, slug} when claimed, {0, current} otherwise.
var claimScript = redis.NewScript(`
local cur = redis.call('GET', KEYS[1])
if (not cur) or cur == ARGV[1] then
  redis.call('SET', KEYS[1], ARGV[1])
  redis.call('DEL', KEYS[2])
  return {1, ARGV[1]}
end
return {0, cur}
`)

// deleteIfScript deletes KEYS[1] only while it still holds ARGV[1].
var deleteIfScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  return redis.call('DEL', KEYS[1])
end
return 0
`)

// RedisTable implements Table on Redis.
type RedisTable struct {
	client redis.Cmdable
	logger *slog.Logger
}

// NewRedisTable creates a routing table over an existing client.
func NewRedisTable(client redis.Cmdable, logger *slog.Logger) *RedisTable {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisTable{
		client: client,
		logger: logger.With("component", "routing_table"),
	}
}

// Set maps domain to slug, replacing any previous mapping.
// The write only counts when Redis acknowledges it with OK.
func (t *RedisTable) Set(ctx context.Context, domain, slug string) error {
	key := Key(domain)

	var set *redis.StatusCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.Set(ctx, key, slug, 0)
		pipe.Del(ctx, RemovedKey(domain))
		return nil
	})
	if err != nil {
		t.logger.Error("routing table write failed", "key", key, "error", err)
		return fmt.Errorf("set %s: %w", key, err)
	}
	if res := set.Val(); res != "OK" {
		t.logger.Error("routing table write not acknowledged", "key", key, "reply", set.Val())
		return fmt.Errorf("set %s: %w", key, ErrNotAcknowledged)
	}

	t.logger.Debug("routing entry set", "key", key, "slug", slug)
	return nil
}

// Get returns the slug mapped to domain.
func (t *RedisTable) Get(ctx context.Context, domain string) (string, bool, error) {
	key := Key(domain)

	slug, err := t.client.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get %s: %w", key, err)
	}
	return slug, true, nil
}

// GetAndDelete atomically removes the mapping and returns the slug it held.
// In the same transaction it leaves a removal marker for the domain, whether
// or not a mapping existed. A missing mapping is not an error.
func (t *RedisTable) GetAndDelete(ctx context.Context, domain string) (string, bool, error) {
	key := Key(domain)

	var getdel *redis.StringCmd
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		getdel = pipe.GetDel(ctx, key)
		pipe.Set(ctx, RemovedKey(domain), "1", 0)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		t.logger.Error("routing table delete failed", "key", key, "error", err)
		return "", false, fmt.Errorf("getdel %s: %w", key, err)
	}

	slug, err := getdel.Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("getdel %s: %w", key, err)
	}

	t.logger.Debug("routing entry removed", "key", key, "slug", slug)
	return slug, true, nil
}

// Claim maps domain to slug unless another slug already holds it.
// It returns the slug that owns the domain afterwards.
func (t *RedisTable) Claim(ctx context.Context, domain, slug string) (string, bool, error) {
	key := Key(domain)

	res, err := claimScript.Run(ctx, t.client, []string{key, RemovedKey(domain)}, slug).Slice()
	if err != nil {
		t.logger.Error("routing table claim failed", "key", key, "error", err)
		return "", false, fmt.Errorf("claim %s: %w", key, err)
	}
	if len(res) != 2 {
		return "", false, fmt.Errorf("claim %s: unexpected reply %v", key, res)
	}

	claimed, _ := res[0].(int64)
	owner, _ := res[1].(string)
	return owner, claimed == 1, nil
}

// DeleteIf removes the mapping only while it still points at slug.
func (t *RedisTable) DeleteIf(ctx context.Context, domain, slug string) (bool, error) {
	key := Key(domain)

	n, err := deleteIfScript.Run(ctx, t.client, []string{key}, slug).Int64()
	if err != nil {
		return false, fmt.Errorf("delete %s: %w", key, err)
	}
	return n == 1, nil
}

// Removed reports whether the domain carries a removal marker.
func (t *RedisTable) Removed(ctx context.Context, domain string) (bool, error) {
	n, err := t.client.Exists(ctx, RemovedKey(domain)).Result()
	if err != nil {
		return false, fmt.Errorf("exists %s: %w", RemovedKey(domain), err)
	}
	return n == 1, nil
}

// Scan calls fn for every routing entry. Entries removed while scanning are skipped.
func (t *RedisTable) Scan(ctx context.Context, fn func(domain, slug string) error) error {
	const scanBatchSize = 100

	var cursor uint64
	for {
		keys, next, err := t.client.Scan(ctx, cursor, KeyPrefix+"*", scanBatchSize).Result()
		if err != nil {
			return fmt.Errorf("scan keys: %w", err)
		}

		for _, key := range keys {
			slug, err := t.client.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				continue
			}
			if err != nil {
				return fmt.Errorf("get %s: %w", key, err)
			}
			if err := fn(strings.TrimPrefix(key, KeyPrefix), slug); err != nil {
				return err
			}
		}

		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// Ping checks the connection; used by the readiness check.
func (t *RedisTable) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}
