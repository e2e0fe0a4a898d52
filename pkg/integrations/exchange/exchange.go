// Package exchange grafts orders of the commerce service onto the local graph.
// The commerce service must be namespaced with the Commerce prefix.
package exchange

import (
	"context"

	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/delegate"
	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

const (
	Name   = "exchange"
	Prefix = "Commerce"
)

const sdl = `
extend type Me {
  "Orders placed by the current user."
  orders(first: Int): [CommerceOrder!]!
}

extend type CommerceLineItem {
  artwork: Artwork
}
`

// Registration binds the unit to the proxy of service.
func Registration(service string) extension.Registration {
	return extension.Registration{
		Name:    Name,
		Service: service,
		Factory: Factory,
	}
}

func Factory(local *graph.Executable, proxy *subgraph.Proxy) (*extension.Unit, error) {
	if proxy == nil {
		return nil, errors.New("exchange needs the commerce service")
	}
	localTarget := delegate.Local(local.Name(), local)

	return &extension.Unit{
		SDL: sdl,
		Resolvers: graph.Resolvers{
			"Me": {
				"orders": {
					Fragment: "internalID",
					Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
						delegated := map[string]interface{}{"buyerId": graph.String(parent, "internalID")}
						if first, ok := graph.IntArg(args, "first"); ok {
							delegated["first"] = first
						}
						return delegate.Delegate(ctx, delegate.Request{
							Target:    proxy,
							FieldName: "commerceOrders",
							Args:      delegated,
							Info:      info,
						})
					},
				},
			},
			"CommerceLineItem": {
				"artwork": {
					Fragment: "artworkId",
					Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
						id := graph.String(parent, "artworkId")
						if id == "" {
							return nil, nil
						}
						return delegate.Delegate(ctx, delegate.Request{
							Target:    localTarget,
							FieldName: "artwork",
							Args:      map[string]interface{}{"id": id},
							Info:      info,
						})
					},
				},
			},
		},
	}, nil
}
