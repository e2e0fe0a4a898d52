// Package requestcontext carries the per-request collaborators of the gateway:
// caller identity, trace id and memoized loaders. The stitching core forwards
// it untouched through every delegation.
package requestcontext

import (
	"context"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/singleflight"
)

type contextKey struct{}

// LoadFunc fetches the value stored under key.
type LoadFunc func(ctx context.Context, key string) (interface{}, error)

// Loaders maps loader names to load functions.
type Loaders map[string]LoadFunc

// Context is owned by exactly one in-flight request.
type Context struct {
	UserID      string
	AccessToken string
	TraceID     string

	loaders map[string]*memoLoader
}

func New(userID, accessToken, traceID string, loaders Loaders) *Context {
	c := &Context{
		UserID:      userID,
		AccessToken: accessToken,
		TraceID:     traceID,
		loaders:     make(map[string]*memoLoader, len(loaders)),
	}
	for name, load := range loaders {
		c.loaders[name] = &memoLoader{load: load, values: map[string]interface{}{}}
	}
	return c
}

// Authenticated reports whether the request carries a user id and an access token.
func (c *Context) Authenticated() bool {
	return c != nil && c.UserID != "" && c.AccessToken != ""
}

func (c *Context) HasLoader(name string) bool {
	if c == nil {
		return false
	}
	_, ok := c.loaders[name]
	return ok
}

// LoaderNames returns the sorted names of the available loaders.
func (c *Context) LoaderNames() []string {
	if c == nil {
		return nil
	}
	names := make([]string, 0, len(c.loaders))
	for name := range c.loaders {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Load runs the loader name for key. Successful results are memoized for the
// lifetime of the request and concurrent loads of the same key share one call.
func (c *Context) Load(ctx context.Context, name, key string) (interface{}, error) {
	if c == nil {
		return nil, errors.Errorf("loader %s is not available", name)
	}
	loader, ok := c.loaders[name]
	if !ok {
		return nil, errors.Errorf("loader %s is not available", name)
	}
	return loader.get(ctx, key)
}

type memoLoader struct {
	load  LoadFunc
	group singleflight.Group

	mu     sync.RWMutex
	values map[string]interface{}
}

func (l *memoLoader) get(ctx context.Context, key string) (interface{}, error) {
	l.mu.RLock()
	value, ok := l.values[key]
	l.mu.RUnlock()
	if ok {
		return value, nil
	}

	value, err, _ := l.group.Do(key, func() (interface{}, error) {
		value, err := l.load(ctx, key)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.values[key] = value
		l.mu.Unlock()
		return value, nil
	})
	return value, err
}

func WithContext(ctx context.Context, c *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, c)
}

// FromContext returns the request context stored on ctx, if any.
func FromContext(ctx context.Context) (*Context, bool) {
	c, ok := ctx.Value(contextKey{}).(*Context)
	return c, ok && c != nil
}
