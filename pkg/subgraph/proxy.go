package subgraph

import (
	"context"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"go.uber.org/atomic"

	"github.com/wundergraph/graphql-stitch/pkg/delegate"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/namespace"
)

// Proxy is the namespaced, executable materialization of a Descriptor. Its
// root fields delegate to the backend. A Proxy is safe for concurrent use.
type Proxy struct {
	name       string
	private    *ast.Schema
	namespace  *namespace.Namespace
	transport  Transport
	executable *graph.Executable
	logger     log.Logger

	requests *atomic.Int64
	failures *atomic.Int64
}

// Stats counts the operations a proxy sent to its backend.
type Stats struct {
	Requests int64
	Failures int64
}

type Option func(*options)

type options struct {
	logger            log.Logger
	documentCacheSize int
}

func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

func WithDocumentCacheSize(size int) Option {
	return func(o *options) {
		o.documentCacheSize = size
	}
}

// New loads the schema of d, namespaces it and builds the proxy executable.
func New(ctx context.Context, d Descriptor, opts ...Option) (*Proxy, error) {
	o := options{
		logger: log.NoopLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if err := d.validate(); err != nil {
		return nil, err
	}

	sdl, err := d.sdl(ctx)
	if err != nil {
		return nil, err
	}

	private, err := graph.LoadSchema(d.Name, sdl)
	if err != nil {
		return nil, err
	}

	public, ns, err := namespace.Apply(d.Name, private, d.rule())
	if err != nil {
		return nil, err
	}

	p := &Proxy{
		name:      d.Name,
		private:   private,
		namespace: ns,
		transport: d.Transport,
		logger:    o.logger,
		requests:  atomic.NewInt64(0),
		failures:  atomic.NewInt64(0),
	}

	resolvers := graph.Resolvers{}
	for _, operation := range []ast.Operation{ast.Query, ast.Mutation} {
		root := graph.RootType(public, operation)
		if root == nil {
			continue
		}
		for _, field := range root.Fields {
			if graph.IsBuiltInType(field.Name) {
				continue
			}
			resolvers.Set(root.Name, field.Name, &graph.FieldResolver{
				Resolve: p.delegateRootField(operation, field.Name),
			})
		}
	}

	executableOptions := []graph.Option{
		graph.WithName(d.Name),
		graph.WithLogger(o.logger),
	}
	if o.documentCacheSize > 0 {
		executableOptions = append(executableOptions, graph.WithDocumentCacheSize(o.documentCacheSize))
	}
	p.executable, err = graph.NewExecutable(public, resolvers, executableOptions...)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: build executable", d.Name)
	}

	o.logger.Debug("subgraph.New",
		log.String("service", d.Name),
		log.Int("types", len(ns.Types())),
		log.Int("resolvers", len(resolvers.Keys())),
	)

	return p, nil
}

func (p *Proxy) delegateRootField(operation ast.Operation, fieldName string) graph.ResolveFunc {
	return func(ctx context.Context, parent interface{}, args map[string]interface{}, info *graph.ResolveInfo) (interface{}, error) {
		return delegate.Delegate(ctx, delegate.Request{
			Target:    p,
			Operation: operation,
			FieldName: fieldName,
			Args:      args,
			Info:      info,
		})
	}
}

func (p *Proxy) Name() string {
	return p.name
}

// Schema returns the backend's own schema.
func (p *Proxy) Schema() *ast.Schema {
	return p.private
}

// PublicSchema returns the namespaced schema.
func (p *Proxy) PublicSchema() *ast.Schema {
	return p.executable.Schema()
}

func (p *Proxy) Executable() *graph.Executable {
	return p.executable
}

func (p *Proxy) Namespace() *namespace.Namespace {
	return p.namespace
}

func (p *Proxy) PrivateType(public string) string {
	return p.namespace.PrivateType(public)
}

func (p *Proxy) PublicType(private string) string {
	return p.namespace.PublicType(private)
}

func (p *Proxy) RootField(operation ast.Operation, public string) (string, bool) {
	return p.namespace.PrivateRootField(operation, public)
}

// Do sends request to the backend.
func (p *Proxy) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	p.requests.Inc()
	response, err := p.transport.Do(ctx, request)
	if err != nil {
		p.failures.Inc()
		p.logger.Error("subgraph.Proxy.Do",
			log.String("service", p.name),
			log.Error(err),
		)
		return nil, err
	}
	return response, nil
}

func (p *Proxy) Stats() Stats {
	return Stats{
		Requests: p.requests.Load(),
		Failures: p.failures.Load(),
	}
}
