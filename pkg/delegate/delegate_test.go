package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
)

const backendSDL = `
type Query {
	order(id: ID!): Order
	orders: [Order!]!
}

type Order {
	id: ID!
	artworkId: String!
	total(currency: String): Int
}
`

const gatewaySDL = `
type Query {
	order(id: ID!): Order
	orders: [Order!]!
}

type Order {
	id: ID!
	artworkId: String!
	total(currency: String): Int
	artwork: Artwork
}

type Artwork {
	id: ID!
	title: String
}
`

type recordingTarget struct {
	Target

	mu       sync.Mutex
	requests []*graphql.Request
}

func (r *recordingTarget) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	r.mu.Lock()
	r.requests = append(r.requests, request)
	r.mu.Unlock()
	return r.Target.Do(ctx, request)
}

func newBackend(t *testing.T) *graph.Executable {
	t.Helper()
	schema, err := graph.LoadSchema("backend", backendSDL)
	require.NoError(t, err)

	order := func(id string) map[string]interface{} {
		return map[string]interface{}{"id": id, "artworkId": "a-" + id}
	}
	executable, err := graph.NewExecutable(schema, graph.Resolvers{
		"Query": {
			"order": {Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
				return order(args["id"].(string)), nil
			}},
			"orders": {Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
				return []interface{}{order("o1"), order("o2")}, nil
			}},
		},
		"Order": {
			"total": {Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
				if currency, _ := graph.StringArg(args, "currency"); currency == "EUR" {
					return 42, nil
				}
				return 50, nil
			}},
		},
	}, graph.WithName("backend"))
	require.NoError(t, err)
	return executable
}

type gatewayFixture struct {
	executable *graph.Executable
	target     *recordingTarget

	mu      sync.Mutex
	parents []map[string]interface{}
}

func newGateway(t *testing.T, required string) *gatewayFixture {
	t.Helper()
	schema, err := graph.LoadSchema("gateway", gatewaySDL)
	require.NoError(t, err)

	fixture := &gatewayFixture{
		target: &recordingTarget{Target: Local("backend", newBackend(t))},
	}
	delegateRoot := func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
		return Delegate(ctx, Request{
			Target:    fixture.target,
			Operation: ast.Query,
			FieldName: info.FieldName,
			Args:      args,
			Info:      info,
			Require:   required,
		})
	}

	fixture.executable, err = graph.NewExecutable(schema, graph.Resolvers{
		"Query": {
			"order":  {Resolve: delegateRoot},
			"orders": {Resolve: delegateRoot},
		},
		"Order": {
			"artwork": {
				Fragment: "... on Order { artworkId }",
				Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
					object, _ := graph.Object(parent)
					fixture.mu.Lock()
					fixture.parents = append(fixture.parents, object)
					fixture.mu.Unlock()

					id := graph.String(parent, "artworkId")
					return map[string]interface{}{"id": id, "title": "Title " + id}, nil
				},
			},
		},
	}, graph.WithName("gateway"))
	require.NoError(t, err)
	return fixture
}

func (f *gatewayFixture) execute(t *testing.T, query, variables string) *graphql.Response {
	t.Helper()
	request := &graphql.Request{Query: query}
	if variables != "" {
		request.Variables = json.RawMessage(variables)
	}
	return f.executable.Execute(context.Background(), request)
}

func normalize(t *testing.T, query string) string {
	t.Helper()
	doc, err := parser.ParseQuery(&ast.Source{Input: query})
	require.NoError(t, err)
	buf := &bytes.Buffer{}
	formatter.NewFormatter(buf).FormatQueryDocument(doc)
	return buf.String()
}

func TestDelegate(t *testing.T) {
	t.Run("replaces unknown fields by their dependencies", func(t *testing.T) {
		gateway := newGateway(t, "")

		response := gateway.execute(t,
			`query ($c: String) { order(id: "o1") { id artwork { title } ...Totals } } fragment Totals on Order { total(currency: $c) }`,
			`{"c":"EUR"}`,
		)
		require.Empty(t, response.Errors)
		assert.JSONEq(t, `{"order":{"id":"o1","artwork":{"title":"Title a-o1"},"total":42}}`, string(response.Data))

		require.Len(t, gateway.target.requests, 1)
		sent := gateway.target.requests[0]
		assert.Equal(t,
			normalize(t, `query ($_a0: ID!, $_v_c: String) { order(id: $_a0) { id _dep_artworkId: artworkId ... on Order { total(currency: $_v_c) } } }`),
			normalize(t, sent.Query),
		)
		assert.JSONEq(t, `{"_a0":"o1","_v_c":"EUR"}`, string(sent.Variables))

		require.Len(t, gateway.parents, 1)
		assert.Equal(t, "a-o1", gateway.parents[0]["artworkId"])
	})

	t.Run("client fields and dependencies do not clash", func(t *testing.T) {
		gateway := newGateway(t, "")

		response := gateway.execute(t, `{ order(id: "o2") { artworkId: id artwork { id } } }`, "")
		require.Empty(t, response.Errors)
		assert.JSONEq(t, `{"order":{"artworkId":"o2","artwork":{"id":"a-o2"}}}`, string(response.Data))
	})

	t.Run("require adds fields to the forwarded selection", func(t *testing.T) {
		gateway := newGateway(t, "id artworkId")

		response := gateway.execute(t, `{ orders { total } }`, "")
		require.Empty(t, response.Errors)
		assert.JSONEq(t, `{"orders":[{"total":50},{"total":50}]}`, string(response.Data))

		require.Len(t, gateway.target.requests, 1)
		assert.Equal(t,
			normalize(t, `query { orders { total _dep_id: id _dep_artworkId: artworkId } }`),
			normalize(t, gateway.target.requests[0].Query),
		)
	})

	t.Run("required fields do not clash with client aliases", func(t *testing.T) {
		gateway := newGateway(t, "artworkId")

		response := gateway.execute(t, `{ orders { artworkId: id } }`, "")
		require.Empty(t, response.Errors)
		assert.JSONEq(t, `{"orders":[{"artworkId":"o1"},{"artworkId":"o2"}]}`, string(response.Data))

		require.Len(t, gateway.target.requests, 1)
		assert.Equal(t,
			normalize(t, `query { orders { artworkId: id _dep_artworkId: artworkId } }`),
			normalize(t, gateway.target.requests[0].Query),
		)
	})

	t.Run("skip and include are forwarded", func(t *testing.T) {
		gateway := newGateway(t, "")

		response := gateway.execute(t, `query ($withTotal: Boolean!) { order(id: "o1") { id total @include(if: $withTotal) } }`, `{"withTotal":false}`)
		require.Empty(t, response.Errors)
		assert.JSONEq(t, `{"order":{"id":"o1"}}`, string(response.Data))
		assert.Equal(t,
			normalize(t, `query ($_a0: ID!, $_v_withTotal: Boolean!) { order(id: $_a0) { id total @include(if: $_v_withTotal) } }`),
			normalize(t, gateway.target.requests[0].Query),
		)
	})
}

func TestDelegate_Errors(t *testing.T) {
	backend := newBackend(t)

	t.Run("unknown root field", func(t *testing.T) {
		_, err := Delegate(context.Background(), Request{
			Target:    Local("backend", backend),
			FieldName: "nope",
			Info:      &graph.ResolveInfo{Executable: backend, ReturnType: ast.NamedType("String", nil)},
		})
		assert.EqualError(t, err, "delegate to backend: unknown query field nope")
	})

	t.Run("missing info", func(t *testing.T) {
		_, err := Delegate(context.Background(), Request{Target: Local("backend", backend), FieldName: "order"})
		assert.EqualError(t, err, "delegate to backend: no resolve info")
	})

	t.Run("missing target", func(t *testing.T) {
		_, err := Delegate(context.Background(), Request{})
		assert.EqualError(t, err, "delegate: no target")
	})
}

func TestDecodeResponse(t *testing.T) {
	backend := newBackend(t)
	req := Request{
		Target: Local("backend", backend),
		Info:   &graph.ResolveInfo{Executable: backend, FieldName: "order", ResponseKey: "order"},
	}

	result, err := decodeResponse(req, []byte(`{"data":{"order":{"id":"o1","tags":["a","b"],"count":3,"sold":true,"note":null,"escaped":"a\"b"}}}`))
	require.NoError(t, err)
	assert.Equal(t, graph.ResponseObject{
		"id":      "o1",
		"tags":    []interface{}{"a", "b"},
		"count":   json.Number("3"),
		"sold":    true,
		"note":    nil,
		"escaped": `a"b`,
	}, result.Data)
	assert.Empty(t, result.Errors)

	result, err = decodeResponse(req, []byte(`{"data":{"order":null}}`))
	require.NoError(t, err)
	assert.Nil(t, result.Data)

	_, err = decodeResponse(req, []byte(`{"data":{"order":null},"errors":[{"message":"boom","path":["order"]}]}`))
	assert.EqualError(t, err, "input: boom")

	_, err = decodeResponse(req, []byte(`{}`))
	assert.Error(t, err)

	t.Run("data under another response key", func(t *testing.T) {
		result, err := decodeResponse(req, []byte(`{"data":{"orders":{"id":"o1"}}}`))
		assert.EqualError(t, err, "delegate to backend: response has no order")
		assert.Nil(t, result.Data)
	})

	t.Run("errors next to data are relocated", func(t *testing.T) {
		result, err := decodeResponse(req, []byte(`{"data":{"order":{"id":"o1","note":null}},"errors":[{"message":"note is gone","path":["order","note"]}]}`))
		require.NoError(t, err)
		require.Len(t, result.Errors, 1)
		assert.Equal(t, ast.Path{ast.PathName("note")}, result.Errors[0].Path)
		assert.Equal(t, "note is gone", result.Errors[0].Message)
	})
}
