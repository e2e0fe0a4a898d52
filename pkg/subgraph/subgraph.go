//go:generate mockgen -destination=mock_subgraph/mock_subgraph.go -package=mock_subgraph . Transport

// Package subgraph turns a backend's schema and transport into an executable,
// namespaced proxy graph.
package subgraph

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/namespace"
)

// Transport sends an operation to a backend and returns the raw GraphQL
// response. Timeouts are the transport's concern.
type Transport interface {
	Do(ctx context.Context, request *graphql.Request) ([]byte, error)
}

type TransportFunc func(ctx context.Context, request *graphql.Request) ([]byte, error)

func (f TransportFunc) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	return f(ctx, request)
}

// Loader returns the SDL of a backend.
type Loader func(ctx context.Context) (string, error)

// Descriptor describes one backend. It is constructed once at boot.
type Descriptor struct {
	Name string
	// SDL is the backend schema. When empty, Loader is used and, without a
	// Loader, the schema is fetched through Transport.
	SDL       string
	Loader    Loader
	Transport Transport
	Rule      namespace.Rule
	// Denylist is appended to the deny-list of Rule.
	Denylist []string
}

func (d Descriptor) validate() error {
	if d.Name == "" {
		return errors.New("subgraph descriptor without name")
	}
	if d.Transport == nil {
		return errors.Errorf("%s: no transport", d.Name)
	}
	return nil
}

func (d Descriptor) rule() namespace.Rule {
	rule := d.Rule
	rule.Denylist = append(append([]string{}, d.Rule.Denylist...), d.Denylist...)
	return rule
}

func (d Descriptor) sdl(ctx context.Context) (string, error) {
	if d.SDL != "" {
		return d.SDL, nil
	}
	if d.Loader != nil {
		sdl, err := d.Loader(ctx)
		return sdl, errors.Wrapf(err, "%s: load schema", d.Name)
	}
	sdl, err := FetchSDL(ctx, d.Transport)
	return sdl, errors.Wrapf(err, "%s: fetch schema", d.Name)
}
