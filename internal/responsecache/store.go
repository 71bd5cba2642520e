package responsecache

import (
	"context"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/sync/singleflight"

	"github.com/BerriAI/litellm-go/pkg/cache"
	"github.com/BerriAI/litellm-go/pkg/types"
)

// Directive is the per-request cache control carried in the request's
// "cache" extra field, mirroring the proxy's litellm_params.cache shape.
type Directive struct {
	TTL     int  `json:"ttl,omitempty"` // seconds
	NoCache bool `json:"no-cache,omitempty"`
	NoStore bool `json:"no-store,omitempty"`
}

// ParseDirective extracts the cache directive from a request's extras.
// Returns nil when the request carries none.
func ParseDirective(req *types.ChatRequest) *Directive {
	raw, ok := req.Extra["cache"]
	if !ok {
		return nil
	}
	var d Directive
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil
	}
	return &d
}

// Entry is the stored form of a cached response.
type Entry struct {
	StoredAt int64           `json:"stored_at"`
	Model    string          `json:"model,omitempty"`
	Response json.RawMessage `json:"response"`
}

// Config holds store tuning.
type Config struct {
	DefaultTTL time.Duration // entry TTL when the request carries none (default 1h)
	LockTTL    time.Duration // build-lock TTL; bounded by the max request duration (default 1m)
	MaxSize    int           // largest response body to store in bytes (default 10MB)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DefaultTTL: time.Hour,
		LockTTL:    time.Minute,
		MaxSize:    10 * 1024 * 1024,
	}
}

// Store is the response cache. Lookups and stores go through the shared
// cache backend; Do provides at-most-one-concurrent-build-per-fingerprint
// via a local singleflight group plus a cross-replica build lock when the
// backend supports SetNX.
type Store struct {
	cache  cache.Cache
	locker cache.Locker // nil when the backend has no set-if-absent
	group  singleflight.Group
	config Config
}

// New creates a response cache store over the given backend.
func New(c cache.Cache, cfg Config) *Store {
	if cfg.DefaultTTL <= 0 {
		cfg.DefaultTTL = time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = time.Minute
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	locker, _ := c.(cache.Locker)
	return &Store{cache: c, locker: locker, config: cfg}
}

// Lookup returns the cached response for the fingerprint, or nil on miss.
func (s *Store) Lookup(ctx context.Context, fingerprint string) (*types.ChatResponse, error) {
	data, err := s.cache.Get(ctx, fingerprint)
	if err != nil || data == nil {
		return nil, err
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entries read as misses.
		return nil, nil
	}

	var resp types.ChatResponse
	if err := json.Unmarshal(entry.Response, &resp); err != nil {
		return nil, nil
	}
	return &resp, nil
}

// Put stores a response under the fingerprint.
func (s *Store) Put(ctx context.Context, fingerprint string, resp *types.ChatResponse, ttl time.Duration) error {
	raw, err := json.Marshal(resp)
	if err != nil {
		return err
	}
	if len(raw) > s.config.MaxSize {
		return nil
	}

	entry := Entry{
		StoredAt: time.Now().Unix(),
		Model:    resp.Model,
		Response: raw,
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if ttl <= 0 {
		ttl = s.config.DefaultTTL
	}
	return s.cache.Set(ctx, fingerprint, data, ttl)
}

// BuildResult reports how Do satisfied the request.
type BuildResult struct {
	Response *types.ChatResponse
	CacheHit bool
}

// Do returns the cached response for the fingerprint or builds it exactly
// once per fingerprint across concurrent callers. Same-process duplicates
// collapse on the singleflight group; cross-replica duplicates contend on
// a SetNX build lock and poll for the winner's entry.
func (s *Store) Do(ctx context.Context, fingerprint string, ttl time.Duration, build func() (*types.ChatResponse, error)) (BuildResult, error) {
	if cached, err := s.Lookup(ctx, fingerprint); err == nil && cached != nil {
		return BuildResult{Response: cached, CacheHit: true}, nil
	}

	v, err, _ := s.group.Do(fingerprint, func() (any, error) {
		return s.buildLocked(ctx, fingerprint, ttl, build)
	})
	if err != nil {
		return BuildResult{}, err
	}
	result, _ := v.(BuildResult)
	return result, nil
}

func (s *Store) buildLocked(ctx context.Context, fingerprint string, ttl time.Duration, build func() (*types.ChatResponse, error)) (BuildResult, error) {
	// Re-check after winning the local flight: another replica (or an
	// earlier flight) may have stored the entry already.
	if cached, err := s.Lookup(ctx, fingerprint); err == nil && cached != nil {
		return BuildResult{Response: cached, CacheHit: true}, nil
	}

	if s.locker != nil {
		acquired, err := s.locker.SetNX(ctx, lockKey(fingerprint), []byte("1"), s.config.LockTTL)
		if err == nil && !acquired {
			// Another replica is building; wait for its entry.
			if resp, ok := s.waitForEntry(ctx, fingerprint); ok {
				return BuildResult{Response: resp, CacheHit: true}, nil
			}
			// Lock holder died or took too long; fall through and build.
		}
		if err == nil && acquired {
			defer func() {
				_ = s.cache.Delete(context.WithoutCancel(ctx), lockKey(fingerprint))
			}()
		}
	}

	resp, err := build()
	if err != nil {
		return BuildResult{}, err
	}
	_ = s.Put(ctx, fingerprint, resp, ttl)
	return BuildResult{Response: resp}, nil
}

// waitForEntry polls for the entry written by the lock holder until the
// lock TTL elapses or the context ends.
func (s *Store) waitForEntry(ctx context.Context, fingerprint string) (*types.ChatResponse, bool) {
	deadline := time.Now().Add(s.config.LockTTL)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return nil, false
		case <-ticker.C:
		}
		if resp, err := s.Lookup(ctx, fingerprint); err == nil && resp != nil {
			return resp, true
		}
	}
	return nil, false
}
