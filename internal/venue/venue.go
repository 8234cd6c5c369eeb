// Package venue defines the capability set every exchange adapter implements
// and the registry the supervisor uses to construct them.
package venue

import (
	"context"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/arbscan/arbscan/errs"
	"github.com/arbscan/arbscan/internal/schema"
)

// Stream is one live market-data subscription: a single (symbol, kind) feed.
// Quotes closes when the subscription ends; a terminal failure is delivered on
// Err before Quotes closes. Cancelled streams end without an error.
type Stream interface {
	Quotes() <-chan schema.TopOfBook
	Err() <-chan error
	Close() error
}

// Client is the per-venue adapter. One Watch call opens one subscription
// attempt; reconnecting is the caller's concern. Implementations normalize
// venue payloads into TopOfBook and drop one-sided quotes before the channel.
type Client interface {
	Name() schema.VenueID
	Symbols(ctx context.Context) ([]schema.Symbol, error)
	WatchTicker(ctx context.Context, symbol schema.Symbol) (Stream, error)
	WatchOrderBook(ctx context.Context, symbol schema.Symbol) (Stream, error)
	Close() error
}

// Options carries the shared collaborators handed to venue factories.
type Options struct {
	Logger zerolog.Logger
	// HTTPClient is used for REST symbol enumeration. Nil selects a client
	// with a 10 s timeout.
	HTTPClient *http.Client
}

// HTTPClientOrDefault returns the configured REST client, or one with a 10 s
// timeout when unset.
func (o Options) HTTPClientOrDefault() *http.Client {
	if o.HTTPClient != nil {
		return o.HTTPClient
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// Factory constructs a venue client.
type Factory func(opts Options) (Client, error)

// Registry maps venue identifiers to factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[schema.VenueID]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[schema.VenueID]Factory)}
}

// Register installs a factory under the venue name. Duplicate names are rejected.
func (r *Registry) Register(name schema.VenueID, factory Factory) error {
	if err := name.Validate(); err != nil {
		return err
	}
	if factory == nil {
		return errs.New(string(name), errs.CodeInvalid, errs.WithMessage("nil venue factory"))
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[name]; exists {
		return errs.New(string(name), errs.CodeInvalid, errs.WithMessage("venue factory already registered"))
	}
	r.factories[name] = factory
	return nil
}

// New constructs the named venue client.
func (r *Registry) New(name schema.VenueID, opts Options) (Client, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.New(string(name), errs.CodeInvalid, errs.WithMessage("unknown venue"))
	}
	return factory(opts)
}

// Names returns the registered venue identifiers, sorted.
func (r *Registry) Names() []schema.VenueID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]schema.VenueID, 0, len(r.factories))
	for name := range r.factories {
		out = append(out, name)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
