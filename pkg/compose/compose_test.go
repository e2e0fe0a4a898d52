package compose_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/wundergraph/graphql-stitch/pkg/compose"
	"github.com/wundergraph/graphql-stitch/pkg/delegate"
	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/namespace"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

const localSDL = `
type Query {
	me: Me
	artwork(id: ID!): Artwork
}

type Me {
	internalID: ID!
	name: String
}

type Artwork {
	id: ID!
	title: String
}
`

const commerceSDL = `
type Query {
	orders(buyerId: ID!): [Order!]!
}

type Order {
	id: ID!
	lineItems: [LineItem!]!
}

type LineItem {
	artworkId: String!
}
`

func newLocal(t *testing.T, sdl string) *graph.Executable {
	t.Helper()
	schema, err := graph.LoadSchema("local", sdl)
	require.NoError(t, err)

	resolvers := graph.Resolvers{}
	if schema.Query.Fields.ForName("me") != nil {
		resolvers.Set("Query", "me", &graph.FieldResolver{Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
			return map[string]interface{}{"internalID": "u1", "name": "Ada"}, nil
		}})
	}
	if schema.Query.Fields.ForName("artwork") != nil {
		resolvers.Set("Query", "artwork", &graph.FieldResolver{Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
			id, _ := graph.StringArg(args, "id")
			return map[string]interface{}{"id": id, "title": "Mona Lisa"}, nil
		}})
	}

	local, err := graph.NewExecutable(schema, resolvers, graph.WithName("local"))
	require.NoError(t, err)
	return local
}

type commerceBackend struct {
	mu      sync.Mutex
	queries []string
}

func (c *commerceBackend) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	c.mu.Lock()
	c.queries = append(c.queries, request.Query)
	c.mu.Unlock()
	return []byte(`{"data":{"` + responseKey(request.Query) + `":[{"id":"o1","lineItems":[{"_dep_artworkId":"a1"},{"_dep_artworkId":"a2"}]}]}}`), nil
}

// responseKey returns the response key of the first root field of query.
func responseKey(query string) string {
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	if err != nil || len(doc.Operations) == 0 || len(doc.Operations[0].SelectionSet) == 0 {
		return ""
	}
	field, _ := doc.Operations[0].SelectionSet[0].(*ast.Field)
	if field == nil {
		return ""
	}
	return field.Alias
}

func commerceDescriptor(transport subgraph.Transport) subgraph.Descriptor {
	return subgraph.Descriptor{
		Name:      "commerce",
		SDL:       commerceSDL,
		Transport: transport,
		Rule:      namespace.Prefix("Commerce"),
	}
}

type parentRecorder struct {
	mu      sync.Mutex
	parents map[string][]map[string]interface{}
}

func (p *parentRecorder) record(field string, parent interface{}) {
	object, _ := graph.Object(parent)
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.parents == nil {
		p.parents = map[string][]map[string]interface{}{}
	}
	p.parents[field] = append(p.parents[field], object)
}

func exchangeRegistration(recorder *parentRecorder) extension.Registration {
	return extension.Registration{
		Name:    "exchange",
		Service: "commerce",
		Factory: func(local *graph.Executable, proxy *subgraph.Proxy) (*extension.Unit, error) {
			localTarget := delegate.Local(local.Name(), local)
			return &extension.Unit{
				SDL: `
					extend type Me {
						orders: [CommerceOrder!]!
					}
					extend type CommerceLineItem {
						artwork: Artwork
					}
				`,
				Resolvers: graph.Resolvers{
					"Me": {
						"orders": {
							Fragment: "... on Me { internalID }",
							Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
								recorder.record("Me.orders", parent)
								return delegate.Delegate(ctx, delegate.Request{
									Target:    proxy,
									FieldName: "commerceOrders",
									Args:      map[string]interface{}{"buyerId": graph.String(parent, "internalID")},
									Info:      info,
								})
							},
						},
					},
					"CommerceLineItem": {
						"artwork": {
							Fragment: "artworkId",
							Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
								recorder.record("CommerceLineItem.artwork", parent)
								return delegate.Delegate(ctx, delegate.Request{
									Target:    localTarget,
									FieldName: "artwork",
									Args:      map[string]interface{}{"id": graph.String(parent, "artworkId")},
									Info:      info,
								})
							},
						},
					},
				},
			}, nil
		},
	}
}

func TestCompose(t *testing.T) {
	t.Run("resolves extension fields across graphs", func(t *testing.T) {
		backend := &commerceBackend{}
		recorder := &parentRecorder{}
		merged, err := compose.Compose(context.Background(), newLocal(t, localSDL),
			[]subgraph.Descriptor{commerceDescriptor(backend)},
			[]extension.Registration{exchangeRegistration(recorder)},
		)
		require.NoError(t, err)

		response := merged.Execute(context.Background(), &graphql.Request{
			Query: `{ me { name orders { id lineItems { artwork { title } } } } }`,
		})
		require.Empty(t, response.Errors)
		assert.JSONEq(t,
			`{"me":{"name":"Ada","orders":[{"id":"o1","lineItems":[{"artwork":{"title":"Mona Lisa"}},{"artwork":{"title":"Mona Lisa"}}]}]}}`,
			string(response.Data),
		)

		require.Len(t, backend.queries, 1)
		assert.Contains(t, backend.queries[0], "_dep_artworkId: artworkId")
		assert.NotContains(t, backend.queries[0], "artwork {")

		for field, parents := range recorder.parents {
			for _, parent := range parents {
				switch field {
				case "Me.orders":
					assert.Equal(t, "u1", parent["internalID"])
				case "CommerceLineItem.artwork":
					assert.NotEmpty(t, parent["artworkId"])
				}
			}
		}
		assert.Len(t, recorder.parents["CommerceLineItem.artwork"], 2)

		assert.Equal(t, "commerce", merged.Owner("CommerceOrder"))
		assert.Equal(t, "exchange", merged.Owner("Me.orders"))
		assert.Equal(t, "local", merged.Owner("Query.me"))
		assert.Equal(t, []string{"exchange"}, merged.Extensions())
		assert.NotNil(t, merged.Proxy("commerce"))
		assert.Equal(t, subgraph.Stats{Requests: 1}, merged.Proxy("commerce").Stats())
	})

	t.Run("root fields of sub-graphs are delegated", func(t *testing.T) {
		backend := &commerceBackend{}
		merged, err := compose.Compose(context.Background(), newLocal(t, localSDL),
			[]subgraph.Descriptor{commerceDescriptor(backend)}, nil,
		)
		require.NoError(t, err)

		out, err := merged.Execute(context.Background(), &graphql.Request{
			Query: `{ commerceOrders(buyerId: "u1") { id } }`,
		}).Marshal()
		require.NoError(t, err)
		assert.Equal(t, "o1", gjson.GetBytes(out, "data.commerceOrders.0.id").String())
	})

	t.Run("responses without the delegated field are errors", func(t *testing.T) {
		backend := subgraph.TransportFunc(func(ctx context.Context, request *graphql.Request) ([]byte, error) {
			return []byte(`{"data":{"orders":[]}}`), nil
		})
		merged, err := compose.Compose(context.Background(), newLocal(t, localSDL),
			[]subgraph.Descriptor{commerceDescriptor(backend)}, nil,
		)
		require.NoError(t, err)

		response := merged.Execute(context.Background(), &graphql.Request{
			Query: `{ commerceOrders(buyerId: "u1") { id } }`,
		})
		require.Len(t, response.Errors, 1)
		assert.Contains(t, response.Errors[0].Message, "response has no commerceOrders")
	})

	t.Run("is deterministic", func(t *testing.T) {
		composeOnce := func() *compose.MergedGraph {
			merged, err := compose.Compose(context.Background(), newLocal(t, localSDL),
				[]subgraph.Descriptor{commerceDescriptor(&commerceBackend{})},
				[]extension.Registration{exchangeRegistration(&parentRecorder{})},
			)
			require.NoError(t, err)
			return merged
		}

		first, second := composeOnce(), composeOnce()
		assert.Equal(t, first.Fingerprint(), second.Fingerprint())
		assert.Empty(t, cmp.Diff(first.Shape(), second.Shape()))
		assert.Equal(t, first.SDL(), second.SDL())
		assert.Equal(t, []string{"id", "lineItems"}, first.Shape()["CommerceOrder"])
		assert.Contains(t, first.Shape()["Me"], "orders")
	})

	t.Run("prints the merged SDL", func(t *testing.T) {
		merged, err := compose.Compose(context.Background(), newLocal(t, localSDL),
			[]subgraph.Descriptor{commerceDescriptor(&commerceBackend{})}, nil,
		)
		require.NoError(t, err)

		goldie.New(t).Assert(t, "merged_schema", []byte(merged.SDL()))
	})
}

func TestCompose_Errors(t *testing.T) {
	kindOf := func(t *testing.T, err error) compose.ErrorKind {
		t.Helper()
		require.Error(t, err)
		var composeErr *compose.Error
		require.True(t, errors.As(err, &composeErr), err.Error())
		return composeErr.Kind
	}

	t.Run("colliding type names", func(t *testing.T) {
		first := commerceDescriptor(&commerceBackend{})
		second := commerceDescriptor(&commerceBackend{})
		second.Name = "commerce-v2"
		second.Rule.RenameRootField = func(name string) string { return "v2" + name }

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{first, second}, nil)
		assert.Equal(t, compose.KindCollision, kindOf(t, err))
		assert.Contains(t, err.Error(), "collides with commerce")
	})

	t.Run("colliding root fields", func(t *testing.T) {
		first := commerceDescriptor(&commerceBackend{})
		second := commerceDescriptor(&commerceBackend{})
		second.Name = "commerce-v2"
		second.Rule = namespace.Rule{
			RenameType:      func(name string) string { return "V2" + name },
			RenameRootField: func(name string) string { return "commerce" + strings.ToUpper(name[:1]) + name[1:] },
		}

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{first, second}, nil)
		assert.Equal(t, compose.KindCollision, kindOf(t, err))
		assert.Contains(t, err.Error(), "root field Query.commerceOrders of commerce-v2 collides with commerce")
	})

	t.Run("sub-graph types colliding with the local graph", func(t *testing.T) {
		descriptor := commerceDescriptor(&commerceBackend{})
		descriptor.SDL = `type Query { me: Me } type Me { id: ID }`
		descriptor.Rule = namespace.Rule{RenameRootField: func(name string) string { return "commerce_" + name }}

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{descriptor}, nil)
		assert.Equal(t, compose.KindCollision, kindOf(t, err))
	})

	t.Run("duplicate service names", func(t *testing.T) {
		descriptor := commerceDescriptor(&commerceBackend{})
		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{descriptor, descriptor}, nil)
		assert.Equal(t, compose.KindCollision, kindOf(t, err))
	})

	t.Run("two extensions adding the same field", func(t *testing.T) {
		first := exchangeRegistration(&parentRecorder{})
		second := exchangeRegistration(&parentRecorder{})
		second.Name = "exchange-v2"

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL),
			[]subgraph.Descriptor{commerceDescriptor(&commerceBackend{})},
			[]extension.Registration{first, second},
		)
		assert.Equal(t, compose.KindExtension, kindOf(t, err))
		assert.Contains(t, err.Error(), "already declared by exchange")
	})

	t.Run("two extensions resolving the same field", func(t *testing.T) {
		resolve := func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
			return "x", nil
		}
		registration := func(name string) extension.Registration {
			return extension.Registration{Name: name, Factory: func(*graph.Executable, *subgraph.Proxy) (*extension.Unit, error) {
				return &extension.Unit{Resolvers: graph.Resolvers{"Me": {"name": {Resolve: resolve}}}}, nil
			}}
		}

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), nil,
			[]extension.Registration{registration("first"), registration("second")},
		)
		assert.Equal(t, compose.KindExtension, kindOf(t, err))
		assert.Contains(t, err.Error(), "field Me.name is resolved by first and second")
	})

	t.Run("unknown service", func(t *testing.T) {
		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), nil,
			[]extension.Registration{exchangeRegistration(&parentRecorder{})},
		)
		assert.Equal(t, compose.KindExtension, kindOf(t, err))
	})

	t.Run("dependencies on unknown fields", func(t *testing.T) {
		registration := extension.Registration{Name: "broken", Factory: func(*graph.Executable, *subgraph.Proxy) (*extension.Unit, error) {
			return &extension.Unit{
				SDL: `extend type Me { bids: Int }`,
				Resolvers: graph.Resolvers{"Me": {"bids": {
					Fragment: "userId",
					Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
						return 1, nil
					},
				}}},
			}, nil
		}}

		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), nil, []extension.Registration{registration})
		assert.Equal(t, compose.KindExtension, kindOf(t, err))
	})

	t.Run("unreachable interfaces", func(t *testing.T) {
		local := newLocal(t, localSDL+`
interface Node {
	id: ID!
}
`)
		_, err := compose.Compose(context.Background(), local, nil, nil)
		assert.Equal(t, compose.KindReachability, kindOf(t, err))
		assert.Contains(t, err.Error(), "interface Node has no implementation")
	})

	t.Run("root fields without resolvers", func(t *testing.T) {
		local := newLocal(t, `type Query { me: Me unresolved: String } type Me { internalID: ID! }`)
		_, err := compose.Compose(context.Background(), local, nil, nil)
		assert.Equal(t, compose.KindReachability, kindOf(t, err))
		assert.Contains(t, err.Error(), "root field Query.unresolved has no resolver")
	})

	t.Run("broken sub-graph schemas", func(t *testing.T) {
		descriptor := commerceDescriptor(&commerceBackend{})
		descriptor.SDL = `type Query { orders: [Order] }`
		_, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{descriptor}, nil)
		assert.Equal(t, compose.KindSchema, kindOf(t, err))
	})
}

func TestCompose_Mutation(t *testing.T) {
	descriptor := commerceDescriptor(subgraph.TransportFunc(func(ctx context.Context, request *graphql.Request) ([]byte, error) {
		return []byte(`{"data":{"commerceSubmit":true}}`), nil
	}))
	descriptor.SDL = commerceSDL + `type Mutation { submit(id: ID!): Boolean }`

	merged, err := compose.Compose(context.Background(), newLocal(t, localSDL), []subgraph.Descriptor{descriptor}, nil)
	require.NoError(t, err)
	require.NotNil(t, merged.Schema().Mutation)
	assert.NotNil(t, merged.Schema().Mutation.Fields.ForName("commerceSubmit"))

	response := merged.Execute(context.Background(), &graphql.Request{Query: `mutation { commerceSubmit(id: "o1") }`})
	require.Empty(t, response.Errors)
	assert.JSONEq(t, `{"commerceSubmit":true}`, string(response.Data))
}
