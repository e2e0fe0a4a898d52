// Package localgraph is the graph the gateway serves itself. It is backed by
// request scoped loaders over fixture data.
package localgraph

import (
	"context"
	_ "embed"

	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

// Name is the service name of the local graph.
const Name = "local"

//go:embed schema.graphql
var SDL string

// New builds the local executable. opts are applied after the defaults.
func New(opts ...graph.Option) (*graph.Executable, error) {
	schema, err := graph.LoadSchema(Name, SDL)
	if err != nil {
		return nil, errors.Wrap(err, "load local schema")
	}

	options := append([]graph.Option{
		graph.WithName(Name),
		graph.WithTypeResolver("Node", nodeType),
	}, opts...)

	return graph.NewExecutable(schema, resolvers(), options...)
}

func resolvers() graph.Resolvers {
	return graph.Resolvers{
		"Query": {
			"me":          {Resolve: resolveMe},
			"node":        {Resolve: resolveNode},
			"artwork":     {Resolve: byID(ArtworkLoader)},
			"artist":      {Resolve: byID(ArtistLoader)},
			"saleArtwork": {Resolve: byID(SaleArtworkLoader)},
		},
		"Artwork": {
			"artist": {Resolve: byParentKey(ArtistLoader, "artistID")},
		},
		"Artist": {
			"artworks": {
				Fragment: "internalID",
				Resolve:  byParentKey(ArtworksByArtistLoader, "internalID"),
			},
		},
		"SaleArtwork": {
			"artwork": {Resolve: byParentKey(ArtworkLoader, "artworkID")},
		},
	}
}

// resolveMe resolves to null for anonymous requests.
func resolveMe(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
	rc, ok := requestcontext.FromContext(ctx)
	if !ok || !rc.Authenticated() {
		return nil, nil
	}
	return rc.Load(ctx, MeLoader, rc.UserID)
}

func resolveNode(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
	id, _ := graph.StringArg(args, "id")
	rc, _ := requestcontext.FromContext(ctx)
	for _, loader := range []string{ArtworkLoader, ArtistLoader, SaleArtworkLoader} {
		value, err := rc.Load(ctx, loader, id)
		if err == nil {
			return value, nil
		}
		if !errors.Is(err, ErrNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func byID(loader string) graph.ResolveFunc {
	return func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
		id, _ := graph.StringArg(args, "id")
		return load(ctx, loader, id)
	}
}

func byParentKey(loader, key string) graph.ResolveFunc {
	return func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
		id := graph.String(parent, key)
		if id == "" {
			return nil, nil
		}
		return load(ctx, loader, id)
	}
}

// load resolves missing records to null.
func load(ctx context.Context, loader, key string) (interface{}, error) {
	rc, _ := requestcontext.FromContext(ctx)
	value, err := rc.Load(ctx, loader, key)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	return value, err
}

func nodeType(value interface{}) string {
	return graph.String(value, "__typename")
}
