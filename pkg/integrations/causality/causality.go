// Package causality grafts the lot standings of the auctions service onto the
// local graph. Standings whose sale artwork cannot be loaded are dropped. The
// auctions service must be namespaced with the Auctions prefix.
package causality

import (
	"context"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wundergraph/graphql-stitch/pkg/delegate"
	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/localgraph"
	"github.com/wundergraph/graphql-stitch/pkg/reconcile"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

const (
	Name   = "causality"
	Prefix = "Auctions"
)

// concurrentLoads bounds the sale artwork loads of one connection.
const concurrentLoads = 8

const sdl = `
extend type Me {
  "Lot standings of the current user, limited to published sale artworks."
  auctionsLotStandingConnection(first: Int): AuctionsLotStandingConnection
}

extend type AuctionsLotStanding {
  saleArtwork: SaleArtwork
}
`

const requiredEdges = "edges { node { lot { internalID } } }"

func Registration(service string) extension.Registration {
	return extension.Registration{
		Name:    Name,
		Service: service,
		Factory: Factory,
	}
}

func Factory(local *graph.Executable, proxy *subgraph.Proxy) (*extension.Unit, error) {
	if proxy == nil {
		return nil, errors.New("causality needs the auctions service")
	}

	return &extension.Unit{
		SDL: sdl,
		Resolvers: graph.Resolvers{
			"Me": {
				"auctionsLotStandingConnection": {
					Fragment: "internalID",
					Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
						delegated := map[string]interface{}{"userId": graph.String(parent, "internalID")}
						if first, ok := graph.IntArg(args, "first"); ok {
							delegated["first"] = first
						}
						result, err := delegate.Execute(ctx, delegate.Request{
							Target:    proxy,
							FieldName: "auctionsLotStandingConnection",
							Args:      delegated,
							Info:      info,
							Require:   requiredEdges,
						})
						if err != nil || result.Data == nil {
							result.Report(info)
							return nil, err
						}
						connection, errs := publishedStandings(ctx, result, info)
						for _, err := range errs {
							info.ReportError(err)
						}
						return connection, nil
					},
				},
			},
			"AuctionsLotStanding": {
				"saleArtwork": {
					Fragment: "lot { internalID }",
					Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
						rc, _ := requestcontext.FromContext(ctx)
						return rc.Load(ctx, localgraph.SaleArtworkLoader, lotID(parent))
					},
				},
			},
		},
	}, nil
}

// publishedStandings drops the edges whose sale artwork fails to load. Every
// response key of edges is filtered with the same indexes and the errors
// below edges are moved along with them.
func publishedStandings(ctx context.Context, result delegate.Result, info *graph.ResolveInfo) (interface{}, gqlerror.List) {
	object, ok := result.Data.(graph.ResponseObject)
	if !ok {
		return result.Data, result.Errors
	}
	required, _ := graph.Field(object, "edges")
	edges, _ := required.([]interface{})

	rc, _ := requestcontext.FromContext(ctx)
	outcomes := reconcile.Reconcile(ctx, edges, func(ctx context.Context, edge interface{}) (interface{}, error) {
		node, _ := graph.Field(edge, "node")
		id := lotID(node)
		if id == "" {
			return nil, errors.New("lot standing without lot")
		}
		return rc.Load(ctx, localgraph.SaleArtworkLoader, id)
	},
		reconcile.WithLimit[interface{}](concurrentLoads),
		reconcile.WithLogger[interface{}](info.Executable.Logger()),
	)
	kept := reconcile.Indexes(outcomes)

	if len(kept) < len(edges) {
		info.Executable.Logger().Debug("causality.publishedStandings",
			log.Int("edges", len(edges)),
			log.Int("kept", len(kept)),
		)
	}

	keys := info.ResponseKeys("edges")
	filtered := make(graph.ResponseObject, len(object))
	for key, value := range object {
		filtered[key] = value
	}
	delete(filtered, graph.DependencyAliasPrefix+"edges")
	for _, key := range keys {
		list, ok := object[key].([]interface{})
		if !ok {
			continue
		}
		out := make([]interface{}, 0, len(kept))
		for _, index := range kept {
			if index < len(list) {
				out = append(out, list[index])
			}
		}
		filtered[key] = out
	}

	return filtered, remapErrors(result.Errors, keys, kept)
}

// remapErrors rewrites the edge index of errors below keys to the index the
// edge has after filtering. Errors of dropped edges and of the required
// selection are dropped.
func remapErrors(errs gqlerror.List, keys []string, kept []int) gqlerror.List {
	moved := make(map[int]int, len(kept))
	for to, from := range kept {
		moved[from] = to
	}
	filteredKeys := make(map[string]bool, len(keys))
	for _, key := range keys {
		filteredKeys[key] = true
	}

	out := make(gqlerror.List, 0, len(errs))
	for _, err := range errs {
		if len(err.Path) == 0 {
			out = append(out, err)
			continue
		}
		key, _ := err.Path[0].(ast.PathName)
		if string(key) == graph.DependencyAliasPrefix+"edges" {
			continue
		}
		if !filteredKeys[string(key)] || len(err.Path) < 2 {
			out = append(out, err)
			continue
		}
		index, ok := err.Path[1].(ast.PathIndex)
		if !ok {
			out = append(out, err)
			continue
		}
		to, ok := moved[int(index)]
		if !ok {
			continue
		}
		remapped := *err
		remapped.Path = append(ast.Path{key, ast.PathIndex(to)}, err.Path[2:]...)
		out = append(out, &remapped)
	}
	return out
}

func lotID(standing interface{}) string {
	lot, _ := graph.Field(standing, "lot")
	return graph.String(lot, "internalID")
}
