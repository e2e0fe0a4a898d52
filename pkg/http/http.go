package http

import (
	"encoding/json"
	"net/http"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

const (
	httpHeaderContentType string = "Content-Type"

	httpContentTypeApplicationJson string = "application/json"
)

func (g *GraphQLHTTPRequestHandler) handleHTTP(w http.ResponseWriter, r *http.Request) {
	var request graphql.Request
	if err := readRequest(r, &request); err != nil {
		g.log.Debug("GraphQLHTTPRequestHandler.handleHTTP: invalid request",
			log.Error(err),
		)
		g.writeResponse(w, http.StatusBadRequest, "", graphql.ErrorResponse(gqlerror.Errorf("%s", err.Error())))
		return
	}

	rc := g.requestContext(r)
	response := g.executor.Execute(requestcontext.WithContext(r.Context(), rc), &request)

	status := http.StatusOK
	if response.Data == nil && response.HasErrors() {
		status = http.StatusBadRequest
	}
	g.writeResponse(w, status, rc.TraceID, response)
}

func (g *GraphQLHTTPRequestHandler) writeResponse(w http.ResponseWriter, status int, traceID string, response *graphql.Response) {
	w.Header().Set(httpHeaderContentType, httpContentTypeApplicationJson)
	if traceID != "" {
		w.Header().Set(HeaderRequestID, traceID)
	}
	w.WriteHeader(status)
	if _, err := response.WriteResponse(w); err != nil {
		g.log.Error("GraphQLHTTPRequestHandler.writeResponse",
			log.Error(err),
		)
	}
}

// readRequest reads a POST body or the query parameters of a GET request.
func readRequest(r *http.Request, request *graphql.Request) error {
	if r.Method == http.MethodPost {
		return graphql.UnmarshalRequest(r.Body, request)
	}

	params := r.URL.Query()
	request.Query = params.Get("query")
	request.OperationName = params.Get("operationName")
	if variables := params.Get("variables"); variables != "" {
		if !json.Valid([]byte(variables)) {
			return errors.New("variables are not valid json")
		}
		request.Variables = json.RawMessage(variables)
	}
	if request.Query == "" {
		return graphql.ErrEmptyQuery
	}
	return nil
}
