package causality_test

import (
	"context"
	"sync"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/wundergraph/graphql-stitch/pkg/compose"
	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/integrations/causality"
	"github.com/wundergraph/graphql-stitch/pkg/localgraph"
	"github.com/wundergraph/graphql-stitch/pkg/namespace"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

const auctionsSDL = `
type Query {
	lotStandingConnection(userId: ID!, first: Int): LotStandingConnection
}

type LotStandingConnection {
	edges: [LotStandingEdge!]!
}

type LotStandingEdge {
	node: LotStanding!
}

type LotStanding {
	isHighestBidder: Boolean!
	lot: Lot!
}

type Lot {
	internalID: ID!
	soldStatus: String
}
`

type standing struct {
	lot     string
	highest bool
}

// lot-3 is not published and lot-9 does not exist in the default fixtures.
var standings = []standing{{"lot-1", true}, {"lot-3", false}, {"lot-9", true}, {"lot-2", false}}

type auctionsBackend struct {
	executable *graph.Executable

	mu       sync.Mutex
	requests []*graphql.Request
}

// newAuctionsBackend serves the auctions schema in process. The sold status
// of the lots in failingLots cannot be resolved.
func newAuctionsBackend(t *testing.T, failingLots ...string) *auctionsBackend {
	t.Helper()
	schema, err := graph.LoadSchema("auctions", auctionsSDL)
	require.NoError(t, err)

	executable, err := graph.NewExecutable(schema, graph.Resolvers{
		"Query": {
			"lotStandingConnection": {Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
				edges := make([]interface{}, 0, len(standings))
				for _, s := range standings {
					edges = append(edges, map[string]interface{}{
						"node": map[string]interface{}{
							"isHighestBidder": s.highest,
							"lot":             map[string]interface{}{"internalID": s.lot},
						},
					})
				}
				return map[string]interface{}{"edges": edges}, nil
			}},
		},
		"Lot": {
			"soldStatus": {Resolve: func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
				id := graph.String(parent, "internalID")
				for _, failing := range failingLots {
					if id == failing {
						return nil, errors.Errorf("sold status of %s is unknown", id)
					}
				}
				return "open", nil
			}},
		},
	}, graph.WithName("auctions"))
	require.NoError(t, err)

	return &auctionsBackend{executable: executable}
}

func (a *auctionsBackend) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	a.mu.Lock()
	a.requests = append(a.requests, request)
	a.mu.Unlock()
	return a.executable.Do(ctx, request)
}

func newMergedGraph(t *testing.T, backend subgraph.Transport) *compose.MergedGraph {
	t.Helper()
	local, err := localgraph.New()
	require.NoError(t, err)

	merged, err := compose.Compose(context.Background(), local,
		[]subgraph.Descriptor{{
			Name:      "causality",
			SDL:       auctionsSDL,
			Transport: backend,
			Rule:      namespace.Prefix(causality.Prefix),
		}},
		[]extension.Registration{causality.Registration("causality")},
	)
	require.NoError(t, err)
	return merged
}

func signedIn(t *testing.T) context.Context {
	t.Helper()
	fixtures, err := localgraph.DefaultFixtures()
	require.NoError(t, err)
	return requestcontext.WithContext(context.Background(), requestcontext.New("user-1", "token", "trace", fixtures.Loaders()))
}

func TestLotStandings(t *testing.T) {
	t.Run("drops standings without published sale artwork", func(t *testing.T) {
		backend := newAuctionsBackend(t)
		merged := newMergedGraph(t, backend)

		out, err := merged.Execute(signedIn(t), &graphql.Request{Query: `{
			me {
				auctionsLotStandingConnection(first: 10) {
					edges { node { isHighestBidder saleArtwork { lotLabel artwork { title } } } }
				}
			}
		}`}).Marshal()
		require.NoError(t, err)

		assert.False(t, gjson.GetBytes(out, "errors").Exists(), string(out))
		edges := gjson.GetBytes(out, "data.me.auctionsLotStandingConnection.edges")
		assert.Equal(t, `["1","2"]`, edges.Get("#.node.saleArtwork.lotLabel").Raw)
		assert.Equal(t, `[true,false]`, edges.Get("#.node.isHighestBidder").Raw)
		assert.Equal(t, "The Ten Largest, No. 7", edges.Get("0.node.saleArtwork.artwork.title").String())

		require.Len(t, backend.requests, 1)
		assert.Equal(t, "user-1", gjson.GetBytes(backend.requests[0].Variables, "_a1").String())
		assert.Equal(t, int64(10), gjson.GetBytes(backend.requests[0].Variables, "_a0").Int())
		assert.Contains(t, backend.requests[0].Query, "lotStandingConnection(")
		assert.Contains(t, backend.requests[0].Query, "internalID")
		assert.NotContains(t, backend.requests[0].Query, "saleArtwork")
	})

	t.Run("filters aliased edges the same way", func(t *testing.T) {
		merged := newMergedGraph(t, newAuctionsBackend(t))

		out, err := merged.Execute(signedIn(t), &graphql.Request{Query: `{
			me {
				auctionsLotStandingConnection {
					standings: edges { node { saleArtwork { internalID } } }
				}
			}
		}`}).Marshal()
		require.NoError(t, err)

		assert.Equal(t, `["lot-1","lot-2"]`,
			gjson.GetBytes(out, "data.me.auctionsLotStandingConnection.standings.#.node.saleArtwork.internalID").Raw)
	})

	t.Run("client aliases do not clash with the required lots", func(t *testing.T) {
		merged := newMergedGraph(t, newAuctionsBackend(t))

		out, err := merged.Execute(signedIn(t), &graphql.Request{
			Query: `{ me { auctionsLotStandingConnection { edges { node { lot: isHighestBidder } } } } }`,
		}).Marshal()
		require.NoError(t, err)

		assert.False(t, gjson.GetBytes(out, "errors").Exists(), string(out))
		assert.Equal(t, `[{"node":{"lot":true}},{"node":{"lot":false}}]`,
			gjson.GetBytes(out, "data.me.auctionsLotStandingConnection.edges").Raw)
	})

	t.Run("errors follow the edges they belong to", func(t *testing.T) {
		merged := newMergedGraph(t, newAuctionsBackend(t, "lot-3", "lot-2"))

		out, err := merged.Execute(signedIn(t), &graphql.Request{
			Query: `{ me { auctionsLotStandingConnection { edges { node { lot { internalID soldStatus } } } } } }`,
		}).Marshal()
		require.NoError(t, err)

		assert.Equal(t,
			`[{"node":{"lot":{"internalID":"lot-1","soldStatus":"open"}}},{"node":{"lot":{"internalID":"lot-2","soldStatus":null}}}]`,
			gjson.GetBytes(out, "data.me.auctionsLotStandingConnection.edges").Raw)

		errs := gjson.GetBytes(out, "errors").Array()
		require.Len(t, errs, 1, string(out))
		assert.Equal(t, "sold status of lot-2 is unknown", errs[0].Get("message").String())
		assert.Equal(t, `["me","auctionsLotStandingConnection","edges",1,"node","lot","soldStatus"]`, errs[0].Get("path").Raw)
	})

	t.Run("anonymous callers get no standings", func(t *testing.T) {
		backend := newAuctionsBackend(t)
		merged := newMergedGraph(t, backend)

		out, err := merged.Execute(context.Background(), &graphql.Request{
			Query: `{ me { auctionsLotStandingConnection { edges { node { isHighestBidder } } } } }`,
		}).Marshal()
		require.NoError(t, err)
		assert.Equal(t, `{"data":{"me":null}}`, string(out))
		assert.Empty(t, backend.requests)
	})
}

func TestFactory(t *testing.T) {
	_, err := causality.Factory(nil, nil)
	assert.Error(t, err)
}
