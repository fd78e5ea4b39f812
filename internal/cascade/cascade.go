// Package cascade resolves named settings from env -> regional cache -> durable store.
//
// DESIGN: Read path (Get):
//  1. Env var (upper-cased name). Parse success wins over everything.
//  2. Regional cache under "cfg:<name>". Errors and parse failures fall through.
//  3. Durable store. A parseable hit is mirrored into the cache in the
//     background and never delays the caller. Store errors return the default.
//
// Every write bumps a per-name generation. A mirror only lands if no write
// happened since its store read, so it cannot overwrite a newer value.
//
// Write path (Set/Delete): store first, then the cache synchronously.
// Store errors propagate; cache errors are logged and swallowed.
//
// Collaborators are opened on first use through EnsureOpen, which collapses
// concurrent first callers into one open.
package cascade

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/compresr/llm-relay/internal/cache"
	"github.com/compresr/llm-relay/internal/monitoring"
	"github.com/compresr/llm-relay/internal/store"
)

// CacheKeyPrefix namespaces cascade entries in the regional cache.
const CacheKeyPrefix = "cfg:"

const mirrorTimeout = 5 * time.Second

// ErrNotOpen is returned when collaborators could not be opened.
var ErrNotOpen = errors.New("config cascade is not open")

// Opener creates the durable store and regional cache.
type Opener func(ctx context.Context) (store.Store, cache.Cache, error)

// Options configures a Cascade.
type Options struct {
	// TTL is the max-age of entries written into the regional cache.
	TTL time.Duration
	// LookupEnv defaults to os.LookupEnv.
	LookupEnv func(string) (string, bool)
	Metrics   *monitoring.MetricsCollector
}

// Cascade is safe for concurrent use.
type Cascade struct {
	opener Opener
	opts   Options

	mu    sync.RWMutex
	store store.Store
	cache cache.Cache

	openGroup singleflight.Group
	mirrors   sync.WaitGroup

	genMu  sync.Mutex
	writes map[string]uint64
}

// New creates a cascade over already opened collaborators.
func New(st store.Store, c cache.Cache, opts Options) *Cascade {
	cc := newCascade(nil, opts)
	cc.store, cc.cache = st, c
	return cc
}

// NewLazy creates a cascade that opens its collaborators on first use.
func NewLazy(opener Opener, opts Options) *Cascade {
	return newCascade(opener, opts)
}

func newCascade(opener Opener, opts Options) *Cascade {
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	return &Cascade{opener: opener, opts: opts, writes: make(map[string]uint64)}
}

// EnsureOpen opens the collaborators once. Concurrent callers share one attempt;
// a failed attempt is retried by the next caller.
func (c *Cascade) EnsureOpen(ctx context.Context) error {
	if st, _ := c.handles(); st != nil {
		return nil
	}
	if c.opener == nil {
		return ErrNotOpen
	}
	_, err, _ := c.openGroup.Do("open", func() (any, error) {
		if st, _ := c.handles(); st != nil {
			return nil, nil
		}
		st, ca, err := c.opener(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotOpen, err)
		}
		c.mu.Lock()
		c.store, c.cache = st, ca
		c.mu.Unlock()
		log.Info().Msg("config cascade: collaborators opened")
		return nil, nil
	})
	return err
}

func (c *Cascade) handles() (store.Store, cache.Cache) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.store, c.cache
}

// Store returns the durable store, opening it if needed. The pool rotation
// counter is the only direct store user outside this package.
func (c *Cascade) Store(ctx context.Context) (store.Store, error) {
	if err := c.EnsureOpen(ctx); err != nil {
		return nil, err
	}
	st, _ := c.handles()
	return st, nil
}

// Cache returns the regional cache, opening it if needed.
func (c *Cascade) Cache(ctx context.Context) (cache.Cache, error) {
	if err := c.EnsureOpen(ctx); err != nil {
		return nil, err
	}
	_, ca := c.handles()
	return ca, nil
}

// EnvName returns the env variable consulted for name.
func EnvName(name string) string {
	return strings.ToUpper(name)
}

// CacheKey returns the regional cache key for name.
func CacheKey(name string) string {
	return CacheKeyPrefix + name
}

// Get resolves name through the tiers, returning def when no tier has a
// parseable value.
func Get[T any](ctx context.Context, c *Cascade, name string, parse Parser[T], def T) T {
	if raw, ok := c.opts.LookupEnv(EnvName(name)); ok && strings.TrimSpace(raw) != "" {
		v, err := parse(raw)
		if err == nil {
			c.opts.Metrics.RecordCascadeLookup("env")
			return v
		}
		log.Warn().Err(err).Str("name", name).Msg("config cascade: unparseable env value, ignoring")
	}

	if err := c.EnsureOpen(ctx); err != nil {
		log.Error().Err(err).Str("name", name).Msg("config cascade: returning default")
		c.opts.Metrics.RecordCascadeLookup("default")
		return def
	}
	st, ca := c.handles()

	if ca != nil {
		raw, ok, err := ca.Get(ctx, CacheKey(name))
		switch {
		case err != nil:
			c.opts.Metrics.RecordCacheError("get")
			log.Warn().Err(err).Str("name", name).Msg("config cascade: cache read failed")
		case ok:
			if v, err := parse(string(raw)); err == nil {
				c.opts.Metrics.RecordCascadeLookup("cache")
				return v
			}
			log.Warn().Str("name", name).Msg("config cascade: unparseable cache value, reading store")
		}
	}

	gen := c.generation(name)
	raw, ok, err := st.Get(ctx, name)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("config cascade: store read failed, returning default")
		c.opts.Metrics.RecordCascadeLookup("default")
		return def
	}
	if !ok {
		c.opts.Metrics.RecordCascadeLookup("default")
		return def
	}

	v, err := parse(raw)
	if err != nil {
		log.Error().Err(err).Str("name", name).Msg("config cascade: unparseable store value, returning default")
		c.opts.Metrics.RecordCascadeLookup("default")
		return def
	}
	c.mirror(ctx, ca, name, raw, gen)
	c.opts.Metrics.RecordCascadeLookup("store")
	return v
}

func (c *Cascade) generation(name string) uint64 {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	return c.writes[name]
}

// bump runs a cache write for name while no mirror of name can land, and
// invalidates mirrors read before it.
func (c *Cascade) bump(name string, write func()) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	c.writes[name]++
	write()
}

// mirror writes a store hit into the cache without blocking the caller.
// It is dropped when name was written after generation gen was observed.
func (c *Cascade) mirror(ctx context.Context, ca cache.Cache, name, raw string, gen uint64) {
	if ca == nil {
		return
	}
	c.mirrors.Add(1)
	go func() {
		defer c.mirrors.Done()
		c.genMu.Lock()
		defer c.genMu.Unlock()
		if c.writes[name] != gen {
			log.Debug().Str("name", name).Msg("config cascade: stale mirror dropped")
			return
		}
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), mirrorTimeout)
		defer cancel()
		if err := ca.Set(mctx, CacheKey(name), []byte(raw), c.opts.TTL); err != nil {
			c.opts.Metrics.RecordCacheError("mirror")
			log.Warn().Err(err).Str("name", name).Msg("config cascade: cache mirror failed")
		}
	}()
}

// WaitMirrors blocks until background cache mirrors have finished.
func (c *Cascade) WaitMirrors() {
	c.mirrors.Wait()
}

// Set writes raw for name. Empty values (blank, null, [] or {}) delete it.
func (c *Cascade) Set(ctx context.Context, name, raw string) error {
	if IsEmptyValue(raw) {
		return c.Delete(ctx, name)
	}
	if err := c.EnsureOpen(ctx); err != nil {
		return err
	}
	st, ca := c.handles()

	if err := st.Set(ctx, name, raw); err != nil {
		return fmt.Errorf("config cascade: write %s: %w", name, err)
	}
	if ca != nil {
		c.bump(name, func() {
			if err := ca.Set(ctx, CacheKey(name), []byte(raw), c.opts.TTL); err != nil {
				c.opts.Metrics.RecordCacheError("set")
				log.Warn().Err(err).Str("name", name).Msg("config cascade: cache write-through failed")
			}
		})
	}
	log.Info().Str("name", name).Msg("config cascade: value updated")
	return nil
}

// SetJSON encodes v as JSON and writes it.
func (c *Cascade) SetJSON(ctx context.Context, name string, v any) error {
	raw, err := marshalValue(v)
	if err != nil {
		return fmt.Errorf("config cascade: encode %s: %w", name, err)
	}
	return c.Set(ctx, name, raw)
}

// Delete removes name from the store and evicts it from the cache.
func (c *Cascade) Delete(ctx context.Context, name string) error {
	if err := c.EnsureOpen(ctx); err != nil {
		return err
	}
	st, ca := c.handles()

	if err := st.Delete(ctx, name); err != nil {
		return fmt.Errorf("config cascade: delete %s: %w", name, err)
	}
	if ca != nil {
		c.bump(name, func() {
			if err := ca.Delete(ctx, CacheKey(name)); err != nil {
				c.opts.Metrics.RecordCacheError("delete")
				log.Warn().Err(err).Str("name", name).Msg("config cascade: cache eviction failed")
			}
		})
	}
	log.Info().Str("name", name).Msg("config cascade: value deleted")
	return nil
}

// Reload copies names from the store into the cache, evicting names the
// store no longer has. It bounds staleness after cold starts and evictions.
func (c *Cascade) Reload(ctx context.Context, names []string) error {
	if err := c.EnsureOpen(ctx); err != nil {
		return err
	}
	st, ca := c.handles()
	if ca == nil {
		return nil
	}

	values, err := st.GetMany(ctx, names)
	if err != nil {
		return fmt.Errorf("config cascade: reload: %w", err)
	}

	var failed int
	for _, name := range names {
		c.bump(name, func() {
			if raw, ok := values[name]; ok {
				err = ca.Set(ctx, CacheKey(name), []byte(raw), c.opts.TTL)
			} else {
				err = ca.Delete(ctx, CacheKey(name))
			}
		})
		if err != nil {
			failed++
			c.opts.Metrics.RecordCacheError("reload")
			log.Warn().Err(err).Str("name", name).Msg("config cascade: reload entry failed")
		}
	}
	log.Debug().Int("names", len(names)).Int("present", len(values)).Int("failed", failed).Msg("config cascade: reloaded")
	return nil
}

// Close closes the collaborators after pending mirrors finish.
func (c *Cascade) Close() error {
	c.WaitMirrors()
	st, ca := c.handles()
	var errs []error
	if ca != nil {
		errs = append(errs, ca.Close())
	}
	if st != nil {
		errs = append(errs, st.Close())
	}
	return errors.Join(errs...)
}
