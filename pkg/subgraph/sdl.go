package subgraph

import (
	"context"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
)

const serviceSDLQuery = `{_service{sdl}}`

// FetchSDL asks a running backend for its schema.
func FetchSDL(ctx context.Context, transport Transport) (string, error) {
	response, err := transport.Do(ctx, &graphql.Request{Query: serviceSDLQuery})
	if err != nil {
		return "", err
	}

	if message, err := jsonparser.GetString(response, "errors", "[0]", "message"); err == nil {
		return "", errors.Errorf("backend returned error: %s", message)
	}

	sdl, err := jsonparser.GetString(response, "data", "_service", "sdl")
	if err != nil {
		return "", errors.Wrap(err, "read _service.sdl")
	}
	if sdl == "" {
		return "", errors.New("backend returned an empty schema")
	}
	return sdl, nil
}
