package api //nolint:revive // package name is intentional

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/BerriAI/litellm-go/caches/memory"
	"github.com/BerriAI/litellm-go/pkg/cache"
	"github.com/BerriAI/litellm-go/pkg/types"
)

const (
	responseKeyPrefix  = "litellm:response:"
	defaultResponseTTL = time.Hour
)

// responseStore persists completed responses so GET/DELETE/cancel on
// /v1/responses/{id} can answer after the originating call returned.
// Any cache.Cache backend works; a memory cache is the default.
type responseStore struct {
	cache cache.Cache
	ttl   time.Duration
}

func newResponseStore(c cache.Cache, ttl time.Duration) *responseStore {
	if c == nil {
		c = memory.New(memory.DefaultConfig())
	}
	if ttl <= 0 {
		ttl = defaultResponseTTL
	}
	return &responseStore{cache: c, ttl: ttl}
}

func (s *responseStore) Put(ctx context.Context, resp *types.ResponseResponse) error {
	if resp == nil || resp.ID == "" {
		return nil
	}
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	return s.cache.Set(ctx, responseKeyPrefix+resp.ID, data, s.ttl)
}

// Get returns the stored response, or nil when the ID is unknown.
// Backend errors and corrupt entries both read as a miss.
func (s *responseStore) Get(ctx context.Context, id string) *types.ResponseResponse {
	if id == "" {
		return nil
	}
	data, err := s.cache.Get(ctx, responseKeyPrefix+id)
	if err != nil || len(data) == 0 {
		return nil
	}
	var resp types.ResponseResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil
	}
	return &resp
}

func (s *responseStore) Delete(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.cache.Delete(ctx, responseKeyPrefix+id)
}
