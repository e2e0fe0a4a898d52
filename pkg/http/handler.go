// Package http serves the composed graph over HTTP.
package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	log "github.com/jensneuse/abstractlogger"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

const (
	HeaderRequestID   = "X-Request-Id"
	HeaderUserID      = "X-User-Id"
	HeaderAccessToken = "X-Access-Token"
)

// Executor executes one GraphQL request, compose.MergedGraph implements it.
type Executor interface {
	Execute(ctx context.Context, request *graphql.Request) *graphql.Response
}

// LoaderFactory returns fresh loaders for one request.
type LoaderFactory func(r *http.Request) requestcontext.Loaders

func NewGraphqlHTTPHandler(executor Executor, loaders LoaderFactory, logger log.Logger) http.Handler {
	if loaders == nil {
		loaders = func(*http.Request) requestcontext.Loaders {
			return nil
		}
	}
	return &GraphQLHTTPRequestHandler{
		log:      logger,
		executor: executor,
		loaders:  loaders,
	}
}

type GraphQLHTTPRequestHandler struct {
	log      log.Logger
	executor Executor
	loaders  LoaderFactory
}

func (g *GraphQLHTTPRequestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet, http.MethodPost:
		g.handleHTTP(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// requestContext builds the per-request collaborators. Requests without a
// request id get a fresh one.
func (g *GraphQLHTTPRequestHandler) requestContext(r *http.Request) *requestcontext.Context {
	traceID := r.Header.Get(HeaderRequestID)
	if traceID == "" {
		traceID = uuid.New().String()
	}
	return requestcontext.New(
		r.Header.Get(HeaderUserID),
		r.Header.Get(HeaderAccessToken),
		traceID,
		g.loaders(r),
	)
}
