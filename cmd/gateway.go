package cmd

import (
	"context"
	"net/http"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/wundergraph/graphql-stitch/pkg/compose"
	"github.com/wundergraph/graphql-stitch/pkg/config"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	stitchhttp "github.com/wundergraph/graphql-stitch/pkg/http"
	"github.com/wundergraph/graphql-stitch/pkg/localgraph"
	"github.com/wundergraph/graphql-stitch/pkg/playground"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

type gateway struct {
	config   *config.Config
	logger   log.Logger
	fixtures *localgraph.Fixtures
	merged   *compose.MergedGraph
	flush    func() error
}

func newLogger(cfg *config.Config) (log.Logger, func() error, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if level == log.DebugLevel {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, nil, errors.Wrap(err, "build logger")
	}

	return log.NewZapLogger(zapLogger, level), zapLogger.Sync, nil
}

// bootGateway loads the configuration and composes the merged graph.
func bootGateway(ctx context.Context) (*gateway, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	logger, flush, err := newLogger(cfg)
	if err != nil {
		return nil, err
	}

	fixtures, err := loadFixtures(cfg)
	if err != nil {
		return nil, err
	}

	localOptions := []graph.Option{graph.WithLogger(logger)}
	composeOptions := []compose.Option{compose.WithLogger(logger)}
	if cfg.DocumentCacheSize > 0 {
		localOptions = append(localOptions, graph.WithDocumentCacheSize(cfg.DocumentCacheSize))
		composeOptions = append(composeOptions, compose.WithDocumentCacheSize(cfg.DocumentCacheSize))
	}

	local, err := localgraph.New(localOptions...)
	if err != nil {
		return nil, err
	}

	merged, err := compose.Compose(ctx, local, cfg.Descriptors(logger), cfg.Registrations(), composeOptions...)
	if err != nil {
		return nil, err
	}

	return &gateway{
		config:   cfg,
		logger:   logger,
		fixtures: fixtures,
		merged:   merged,
		flush:    flush,
	}, nil
}

func loadFixtures(cfg *config.Config) (*localgraph.Fixtures, error) {
	if cfg.Fixtures == "" {
		return localgraph.DefaultFixtures()
	}
	return localgraph.LoadFixtures(cfg.Fixtures)
}

// handler mounts the GraphQL endpoint and the playground.
func (g *gateway) handler() (http.Handler, error) {
	mux := http.NewServeMux()

	loaders := func(*http.Request) requestcontext.Loaders {
		return g.fixtures.Loaders()
	}
	mux.Handle(g.config.GraphQLPath, stitchhttp.NewGraphqlHTTPHandler(g.merged, loaders, g.logger))

	p := playground.New(playground.Config{
		PlaygroundPath:      g.config.PlaygroundPath,
		GraphqlEndpointPath: g.config.GraphQLPath,
	})
	handlers, err := p.Handlers()
	if err != nil {
		return nil, err
	}
	for i := range handlers {
		mux.Handle(handlers[i].Path, handlers[i].Handler)
	}

	return mux, nil
}
