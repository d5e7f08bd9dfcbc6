package service

import (
	"context"
	"errors"
)

// ErrNotFound is returned when a StructureDefinition cannot be found.
var ErrNotFound = errors.New("structure definition not found")

// --- Resolver Chain ---

// ResolverChain implements SchemaResolver by trying multiple resolvers in
// order. This follows the Chain of Responsibility pattern used by HAPI FHIR.
type ResolverChain struct {
	resolvers []SchemaResolver
}

// NewResolverChain creates a new resolver chain.
func NewResolverChain(resolvers ...SchemaResolver) *ResolverChain {
	return &ResolverChain{resolvers: resolvers}
}

// FetchStructureDefinition tries each resolver until one succeeds.
func (c *ResolverChain) FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error) {
	for _, resolver := range c.resolvers {
		sd, err := resolver.FetchStructureDefinition(ctx, url)
		if err == nil && sd != nil {
			return sd, nil
		}
		// Continue to next resolver if not found
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, ErrNotFound
}

// Add appends a resolver to the chain.
func (c *ResolverChain) Add(resolver SchemaResolver) {
	c.resolvers = append(c.resolvers, resolver)
}

// --- Caching Wrapper ---

// CachingResolver wraps a SchemaResolver with a ProfileCache.
type CachingResolver struct {
	resolver SchemaResolver
	cache    ProfileCache
}

// NewCachingResolver creates a caching wrapper.
func NewCachingResolver(resolver SchemaResolver, cache ProfileCache) *CachingResolver {
	return &CachingResolver{
		resolver: resolver,
		cache:    cache,
	}
}

// FetchStructureDefinition checks the cache first, then calls the wrapped
// resolver.
func (c *CachingResolver) FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error) {
	if sd, ok := c.cache.Get(url); ok {
		return sd, nil
	}

	sd, err := c.resolver.FetchStructureDefinition(ctx, url)
	if err != nil {
		return nil, err
	}

	c.cache.Set(url, sd)
	return sd, nil
}

// --- Null Implementations ---

// NullResolver is a no-op implementation that always returns ErrNotFound.
type NullResolver struct{}

// FetchStructureDefinition always returns ErrNotFound.
func (NullResolver) FetchStructureDefinition(_ context.Context, _ string) (*StructureDefinition, error) {
	return nil, ErrNotFound
}

// ResolverFunc adapts a function to the SchemaResolver interface.
type ResolverFunc func(ctx context.Context, url string) (*StructureDefinition, error)

// FetchStructureDefinition calls f.
func (f ResolverFunc) FetchStructureDefinition(ctx context.Context, url string) (*StructureDefinition, error) {
	return f(ctx, url)
}
