// Package playground hosts the GraphiQL playground of the gateway.
package playground

import (
	"net/http"
	"path"
	"strings"

	"github.com/99designs/gqlgen/graphql/playground"
	"github.com/pkg/errors"
)

const defaultTitle = "graphql-stitch"

// Config tells Handlers where the playground and the GraphQL endpoint live.
type Config struct {
	// PathPrefix is put in front of all paths.
	PathPrefix string
	// PlaygroundPath is where the playground website is hosted.
	PlaygroundPath string
	// GraphqlEndpointPath is where the gateway answers queries and mutations.
	GraphqlEndpointPath string
	Title               string
}

// HandlerConfig is one handler and the path it expects to be mounted on.
type HandlerConfig struct {
	Path    string
	Handler http.Handler
}

type Handlers []HandlerConfig

type Playground struct {
	cfg Config
}

func New(config Config) *Playground {
	if config.Title == "" {
		config.Title = defaultTitle
	}
	return &Playground{cfg: config}
}

// Handlers returns the handlers to mount. Trailing slashes of PlaygroundPath
// are kept so the playground can be mounted as a subtree.
func (p *Playground) Handlers() (Handlers, error) {
	if p.cfg.GraphqlEndpointPath == "" {
		return nil, errors.New("playground: graphql endpoint path is required")
	}

	playgroundPath := joinPath(p.cfg.PathPrefix, p.cfg.PlaygroundPath)
	endpointPath := joinPath(p.cfg.PathPrefix, p.cfg.GraphqlEndpointPath)

	return Handlers{
		{
			Path:    playgroundPath,
			Handler: playground.Handler(p.cfg.Title, endpointPath),
		},
	}, nil
}

func joinPath(prefix, p string) string {
	joined := path.Join("/", prefix, p)
	if strings.HasSuffix(p, "/") && !strings.HasSuffix(joined, "/") {
		joined += "/"
	}
	return joined
}
