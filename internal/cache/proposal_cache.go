package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rpattn/invoiceflow/internal/domain"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "invoiceflow:proposal:"

// kv is the subset of the redis client used by ProposalCache.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// ProposalCache keeps the last available mapping proposal per upload so the
// confirmation screen can be reloaded without another model call.
// A nil *ProposalCache is valid and caches nothing.
type ProposalCache struct {
	client kv
	ttl    time.Duration
}

// Options configures the redis connection.
type Options struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// NewProposalCache connects to redis. It returns nil without error when Addr is empty.
func NewProposalCache(ctx context.Context, opts Options) (*ProposalCache, error) {
	if opts.Addr == "" {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", opts.Addr, err)
	}
	return newProposalCache(client, opts.TTL), nil
}

func newProposalCache(client kv, ttl time.Duration) *ProposalCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &ProposalCache{client: client, ttl: ttl}
}

// Key returns the redis key for an upload's proposal.
func Key(uploadID int64) string {
	return fmt.Sprintf("%s%d", keyPrefix, uploadID)
}

// Get returns the cached proposal, reporting false on a miss.
func (c *ProposalCache) Get(ctx context.Context, uploadID int64) (domain.MappingProposal, bool, error) {
	if c == nil {
		return domain.MappingProposal{}, false, nil
	}
	val, err := c.client.Get(ctx, Key(uploadID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.MappingProposal{}, false, nil
		}
		return domain.MappingProposal{}, false, err
	}
	var proposal domain.MappingProposal
	if err := json.Unmarshal([]byte(val), &proposal); err != nil {
		return domain.MappingProposal{}, false, fmt.Errorf("corrupt cached proposal for upload %d: %w", uploadID, err)
	}
	return proposal, true, nil
}

// Set stores an available proposal. Unavailable proposals are not cached so the
// next request retries the model.
func (c *ProposalCache) Set(ctx context.Context, uploadID int64, proposal domain.MappingProposal) error {
	if c == nil || !proposal.Available {
		return nil
	}
	payload, err := json.Marshal(proposal)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, Key(uploadID), payload, c.ttl).Err()
}

// Delete drops the cached proposal for an upload.
func (c *ProposalCache) Delete(ctx context.Context, uploadID int64) error {
	if c == nil {
		return nil
	}
	return c.client.Del(ctx, Key(uploadID)).Err()
}

// Close releases the underlying connection when it owns one.
func (c *ProposalCache) Close() error {
	if c == nil {
		return nil
	}
	if closer, ok := c.client.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
