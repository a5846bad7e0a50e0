// Package revalidate caches public page payloads and drops them on demand.
//
// Every mutation of a page, its sections or its custom domain ends with an
// Invalidate call for the affected paths. The next public read reloads the
// payload from the store.
package revalidate

import (
	"container/list"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/artpar/pagehost/internal/core/domain"
	"github.com/artpar/pagehost/internal/shell/metrics"
	"github.com/artpar/pagehost/internal/shell/store"
	"golang.org/x/sync/singleflight"
)

// DefaultCapacity is used when New is given a capacity below 1.
const DefaultCapacity = 512

// DefaultLoadTimeout bounds a single payload load. Loads are shared by every
// caller waiting on the same path, so they run detached from any one
// caller's context.
const DefaultLoadTimeout = 10 * time.Second

// ErrPageNotFound is returned by Get when no page exists for the path.
var ErrPageNotFound = errors.New("page not found")

// Payload is the public content of a page.
type Payload struct {
	LandingPage *domain.Page     `json:"landingPage"`
	Sections    []domain.Section `json:"sections"`
}

// Loader fetches the payload for a slug from the source of truth.
type Loader func(ctx context.Context, slug string) (*Payload, error)

// PageReader is the subset of store.Store a StoreLoader needs.
type PageReader interface {
	GetPageBySlug(ctx context.Context, slug string) (*domain.Page, error)
	ListSectionsByPage(ctx context.Context, pageID string) ([]domain.Section, error)
}

// StoreLoader loads payloads from the tenant store.
func StoreLoader(s PageReader) Loader {
	return func(ctx context.Context, slug string) (*Payload, error) {
		page, err := s.GetPageBySlug(ctx, slug)
		if err != nil {
			if store.IsNotFound(err) {
				return nil, ErrPageNotFound
			}
			return nil, fmt.Errorf("load page %s: %w", slug, err)
		}
		sections, err := s.ListSectionsByPage(ctx, page.ID)
		if err != nil {
			return nil, fmt.Errorf("load sections of %s: %w", slug, err)
		}
		return &Payload{LandingPage: page, Sections: sections}, nil
	}
}

type entry struct {
	path    string
	payload *Payload
}

// Cache is an LRU of page payloads keyed by path ("/slug").
type Cache struct {
	load        Loader
	loadTimeout time.Duration
	logger      *slog.Logger
	sfg         singleflight.Group

	mu   sync.Mutex
	cap  int
	ll   *list.List
	dict map[string]*list.Element
	// gen is bumped by every invalidation; loads that started under an
	// older generation are returned but not stored.
	gen uint64
}

// New creates a cache holding at most capacity payloads.
func New(capacity int, load Loader, logger *slog.Logger) *Cache {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		load:        load,
		loadTimeout: DefaultLoadTimeout,
		logger:      logger.With("component", "revalidate"),
		cap:         capacity,
		ll:          list.New(),
		dict:        make(map[string]*list.Element, capacity),
	}
}

// Path returns the cache key for a slug.
func Path(slug string) string {
	return "/" + strings.TrimPrefix(slug, "/")
}

// Get returns the payload for slug, loading it on a miss. A caller whose
// context ends stops waiting; the load itself carries on for the others.
func (c *Cache) Get(ctx context.Context, slug string) (*Payload, error) {
	path := Path(slug)

	c.mu.Lock()
	if ele, hit := c.dict[path]; hit {
		c.ll.MoveToFront(ele)
		p := ele.Value.(*entry).payload
		c.mu.Unlock()
		metrics.PageCacheLookups.WithLabelValues("hit").Inc()
		return p, nil
	}
	c.mu.Unlock()
	metrics.PageCacheLookups.WithLabelValues("miss").Inc()

	ch := c.sfg.DoChan(path, func() (any, error) {
		return c.fill(context.WithoutCancel(ctx), path)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*Payload), nil
	}
}

// fill loads path and stores it unless an invalidation raced the load.
func (c *Cache) fill(ctx context.Context, path string) (*Payload, error) {
	ctx, cancel := context.WithTimeout(ctx, c.loadTimeout)
	defer cancel()

	c.mu.Lock()
	gen := c.gen
	c.mu.Unlock()

	payload, err := c.load(ctx, strings.TrimPrefix(path, "/"))
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.add(path, payload)
	}
	c.mu.Unlock()
	return payload, nil
}

// add inserts or replaces path. Caller holds mu.
func (c *Cache) add(path string, payload *Payload) {
	if ele, hit := c.dict[path]; hit {
		ele.Value.(*entry).payload = payload
		c.ll.MoveToFront(ele)
		return
	}
	c.dict[path] = c.ll.PushFront(&entry{path: path, payload: payload})
	if c.ll.Len() > c.cap {
		last := c.ll.Back()
		c.ll.Remove(last)
		delete(c.dict, last.Value.(*entry).path)
	}
}

// Invalidate drops the cached payload for each path. Paths may be given
// with or without the leading slash; empty paths are ignored.
func (c *Cache) Invalidate(paths ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	for _, p := range paths {
		if strings.TrimPrefix(p, "/") == "" {
			continue
		}
		path := Path(p)
		if ele, hit := c.dict[path]; hit {
			c.ll.Remove(ele)
			delete(c.dict, path)
			metrics.PageCacheInvalidations.Inc()
		}
		c.logger.Debug("path revalidated", "path", path)
	}
}

// Len reports the number of cached payloads.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}
