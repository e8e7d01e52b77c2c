// Package redis resolves documents requested by running templates from
// Redis string keys.
package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	backend "github.com/redis/go-redis/v9"

	"github.com/jacoelho/weffo"
)

// Resolver serves references such as urn:prefs:ada from the key
// prefix+reference. Missing keys are declined so the pipeline's fallback
// resolver can handle them.
type Resolver struct {
	client  backend.UniversalClient
	prefix  string
	schemes []string
	timeout time.Duration
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithPrefix sets the key prefix.
func WithPrefix(prefix string) Option {
	return func(r *Resolver) {
		r.prefix = prefix
	}
}

// WithSchemes restricts the resolver to references with one of the given
// URI schemes. Other references are declined without a Redis call.
func WithSchemes(schemes ...string) Option {
	return func(r *Resolver) {
		r.schemes = schemes
	}
}

// WithTimeout bounds each lookup.
func WithTimeout(d time.Duration) Option {
	return func(r *Resolver) {
		r.timeout = d
	}
}

// New returns a resolver reading from client.
func New(client backend.UniversalClient, opts ...Option) *Resolver {
	r := &Resolver{
		client:  client,
		prefix:  "weffo:doc:",
		timeout: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Key returns the Redis key holding href.
func (r *Resolver) Key(href string) string {
	return r.prefix + href
}

// Resolve implements weffo.Resolver.
func (r *Resolver) Resolve(href, _ string) (weffo.Source, error) {
	if !r.accepts(href) {
		return nil, nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	data, err := r.client.Get(ctx, r.Key(href)).Bytes()
	if errors.Is(err, backend.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis get %s: %w", href, err)
	}
	return weffo.BytesSource(data, href), nil
}

// Put stores a document under href.
func (r *Resolver) Put(ctx context.Context, href string, doc []byte, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.Key(href), doc, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", href, err)
	}
	return nil
}

func (r *Resolver) accepts(href string) bool {
	if len(r.schemes) == 0 {
		return true
	}
	scheme, _, ok := strings.Cut(href, ":")
	if !ok {
		return false
	}
	for _, s := range r.schemes {
		if strings.EqualFold(s, scheme) {
			return true
		}
	}
	return false
}
