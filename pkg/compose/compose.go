// Package compose merges the local graph, the sub-graph proxies and the
// extension units into one executable graph.
package compose

import (
	"context"
	"sort"
	"strings"

	log "github.com/jensneuse/abstractlogger"
	"github.com/vektah/gqlparser/v2/ast"
	"golang.org/x/sync/errgroup"

	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

type options struct {
	name              string
	logger            log.Logger
	documentCacheSize int
}

type Option func(*options)

// WithName names the merged executable, it defaults to "merged".
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
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

// Compose materializes descriptors, instantiates registrations and merges
// everything with local. Composition is deterministic and runs once, the
// returned graph is immutable.
func Compose(ctx context.Context, local *graph.Executable, descriptors []subgraph.Descriptor, registrations []extension.Registration, opts ...Option) (*MergedGraph, error) {
	o := options{
		name:   "merged",
		logger: log.NoopLogger,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if local == nil {
		return nil, newError(KindSchema, nil, "no local graph")
	}

	services := map[string]bool{local.Name(): true}
	for _, descriptor := range descriptors {
		if services[descriptor.Name] {
			return nil, newError(KindCollision, nil, "service name %s is used twice", descriptor.Name)
		}
		services[descriptor.Name] = true
	}

	proxies, err := materialize(ctx, descriptors, o)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]*subgraph.Proxy, len(proxies))
	for _, proxy := range proxies {
		byName[proxy.Name()] = proxy
	}

	m := newMerger()
	if err := m.addGraph(local.Name(), local.Schema()); err != nil {
		return nil, err
	}
	for _, proxy := range proxies {
		if err := m.addGraph(proxy.Name(), proxy.PublicSchema()); err != nil {
			return nil, err
		}
	}

	tables := make([]*extension.Table, 0, len(registrations))
	for _, registration := range registrations {
		var proxy *subgraph.Proxy
		if registration.Service != "" {
			proxy = byName[registration.Service]
			if proxy == nil {
				return nil, newError(KindExtension, nil, "registration %s names unknown service %s", registration.Name, registration.Service)
			}
		}
		table, err := registration.Instantiate(local, proxy)
		if err != nil {
			return nil, newError(KindExtension, err, "instantiate extension")
		}
		tables = append(tables, table)
	}
	for _, table := range tables {
		if err := table.Apply(m.defs, m.owners); err != nil {
			return nil, newError(KindExtension, err, "apply extension")
		}
	}

	schema, err := m.build()
	if err != nil {
		return nil, newError(KindSchema, err, "build merged schema")
	}

	if err := validateReachability(schema); err != nil {
		return nil, err
	}
	for _, table := range tables {
		if err := table.Validate(schema); err != nil {
			return nil, newError(KindExtension, err, "validate extension")
		}
	}

	resolvers, err := mergeResolvers(local, proxies, tables, o.logger)
	if err != nil {
		return nil, err
	}
	if err := validateRootResolvers(schema, resolvers); err != nil {
		return nil, err
	}

	executableOptions := []graph.Option{
		graph.WithName(o.name),
		graph.WithLogger(o.logger),
		graph.WithTypeResolvers(local.TypeResolvers()),
	}
	if o.documentCacheSize > 0 {
		executableOptions = append(executableOptions, graph.WithDocumentCacheSize(o.documentCacheSize))
	}
	executable, err := graph.NewExecutable(schema, resolvers, executableOptions...)
	if err != nil {
		return nil, newError(KindSchema, err, "build merged executable")
	}

	merged := &MergedGraph{
		executable:  executable,
		proxies:     proxies,
		tables:      tables,
		owners:      m.owners,
		fingerprint: fingerprint(schema),
	}

	o.logger.Info("compose.Compose",
		log.Int("services", len(proxies)),
		log.Int("extensions", len(tables)),
		log.Int("types", len(graph.NamedTypes(schema))),
		log.Int("resolvers", len(resolvers.Keys())),
	)

	return merged, nil
}

func materialize(ctx context.Context, descriptors []subgraph.Descriptor, o options) ([]*subgraph.Proxy, error) {
	proxies := make([]*subgraph.Proxy, len(descriptors))

	g, ctx := errgroup.WithContext(ctx)
	for i := range descriptors {
		g.Go(func() error {
			proxy, err := subgraph.New(ctx, descriptors[i], subgraph.WithLogger(o.logger))
			if err != nil {
				return newError(KindSchema, err, "materialize %s", descriptors[i].Name)
			}
			proxies[i] = proxy
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return proxies, nil
}

type merger struct {
	defs   map[string]*ast.Definition
	owners map[string]string
}

func newMerger() *merger {
	return &merger{
		defs:   map[string]*ast.Definition{},
		owners: map[string]string{},
	}
}

// addGraph copies the types and root fields of schema into the merged type
// map. Names already owned by another graph are collisions.
func (m *merger) addGraph(owner string, schema *ast.Schema) error {
	for _, name := range graph.NamedTypes(schema) {
		if other, ok := m.owners[name]; ok {
			return newError(KindCollision, nil, "type %s of %s collides with %s", name, owner, other)
		}
		if _, ok := m.defs[name]; ok {
			return newError(KindCollision, nil, "type %s of %s collides with a root type", name, owner)
		}
		def := graph.CopyDefinition(schema.Types[name], nil)
		m.defs[name] = def
		m.owners[name] = owner
		for _, field := range def.Fields {
			m.owners[name+"."+field.Name] = owner
		}
	}

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation} {
		root := graph.RootType(schema, operation)
		if root == nil {
			continue
		}
		merged, err := m.root(operation)
		if err != nil {
			return err
		}
		for _, field := range root.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			key := merged.Name + "." + field.Name
			if other, ok := m.owners[key]; ok {
				return newError(KindCollision, nil, "root field %s of %s collides with %s", key, owner, other)
			}
			merged.Fields = append(merged.Fields, graph.CopyFieldDefinition(field, nil))
			m.owners[key] = owner
		}
	}

	return nil
}

func (m *merger) root(operation ast.Operation) (*ast.Definition, error) {
	name := rootTypeName(operation)
	if def, ok := m.defs[name]; ok {
		if _, owned := m.owners[name]; owned {
			return nil, newError(KindCollision, nil, "type %s of %s collides with the %s root", name, m.owners[name], operation)
		}
		return def, nil
	}
	def := &ast.Definition{Kind: ast.Object, Name: name}
	m.defs[name] = def
	return def, nil
}

func (m *merger) build() (*ast.Schema, error) {
	names := make([]string, 0, len(m.defs))
	for name := range m.defs {
		names = append(names, name)
	}
	sort.Strings(names)

	doc := &ast.SchemaDocument{}
	for _, name := range names {
		def := m.defs[name]
		if name == rootTypeName(ast.Mutation) && len(def.Fields) == 0 && !m.owned(name) {
			continue
		}
		doc.Definitions = append(doc.Definitions, def)
	}
	return graph.BuildSchema(doc)
}

func (m *merger) owned(name string) bool {
	_, ok := m.owners[name]
	return ok
}

func rootTypeName(operation ast.Operation) string {
	if operation == ast.Mutation {
		return "Mutation"
	}
	return "Query"
}

// validateReachability checks that every abstract type of schema can resolve
// to an object type of the merged graph.
func validateReachability(schema *ast.Schema) error {
	for _, name := range graph.NamedTypes(schema) {
		def := schema.Types[name]
		switch def.Kind {
		case ast.Union:
			if len(def.Types) == 0 {
				return newError(KindReachability, nil, "union %s has no members", name)
			}
			for _, member := range def.Types {
				if memberDef := schema.Types[member]; memberDef == nil || memberDef.Kind != ast.Object {
					return newError(KindReachability, nil, "member %s of union %s is not an object type of the merged graph", member, name)
				}
			}
		case ast.Interface:
			implemented := false
			for _, possible := range schema.GetPossibleTypes(def) {
				if possible.Kind == ast.Object {
					implemented = true
					break
				}
			}
			if !implemented {
				return newError(KindReachability, nil, "interface %s has no implementation in the merged graph", name)
			}
		case ast.Object:
			for _, iface := range def.Interfaces {
				if schema.Types[iface] == nil {
					return newError(KindReachability, nil, "type %s implements unknown interface %s", name, iface)
				}
			}
		}
	}
	return nil
}

func validateRootResolvers(schema *ast.Schema, resolvers graph.Resolvers) error {
	for _, operation := range []ast.Operation{ast.Query, ast.Mutation} {
		root := graph.RootType(schema, operation)
		if root == nil {
			continue
		}
		for _, field := range root.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			if resolvers.Get(root.Name, field.Name) == nil {
				return newError(KindReachability, nil, "root field %s.%s has no resolver", root.Name, field.Name)
			}
		}
	}
	return nil
}

// mergeResolvers unions the resolvers of the local graph, the proxies and the
// extensions. Extension resolvers replace default resolution and resolvers of
// the graphs, two extensions resolving the same field conflict.
func mergeResolvers(local *graph.Executable, proxies []*subgraph.Proxy, tables []*extension.Table, logger log.Logger) (graph.Resolvers, error) {
	merged := graph.Resolvers{}
	owners := map[string]string{}

	add := func(owner string, schema *ast.Schema, resolvers graph.Resolvers) {
		for _, key := range resolvers.Keys() {
			typeName, fieldName, _ := strings.Cut(key, ".")
			resolver := resolvers.Get(typeName, fieldName)
			if def := schema.Types[typeName]; def != nil && graph.IsRootType(schema, def) {
				if def == schema.Subscription {
					continue
				}
				typeName = rootTypeName(rootOperation(schema, def))
			}
			merged.Set(typeName, fieldName, resolver)
			owners[typeName+"."+fieldName] = owner
		}
	}

	add(local.Name(), local.Schema(), local.Resolvers())
	for _, proxy := range proxies {
		add(proxy.Name(), proxy.PublicSchema(), proxy.Executable().Resolvers())
	}

	extensionOwners := map[string]string{}
	for _, table := range tables {
		for _, key := range table.Resolvers.Keys() {
			if other, ok := extensionOwners[key]; ok {
				return nil, newError(KindExtension, nil, "field %s is resolved by %s and %s", key, other, table.Unit)
			}
			if other, ok := owners[key]; ok {
				logger.Debug("compose.mergeResolvers: extension replaces resolver",
					log.String("field", key),
					log.String("extension", table.Unit),
					log.String("replaced", other),
				)
			}
			typeName, fieldName, _ := strings.Cut(key, ".")
			resolver := table.Resolvers.Get(typeName, fieldName)
			merged.Set(typeName, fieldName, resolver)
			extensionOwners[key] = table.Unit
			owners[key] = table.Unit
		}
	}

	return merged, nil
}

func rootOperation(schema *ast.Schema, def *ast.Definition) ast.Operation {
	if def == schema.Mutation {
		return ast.Mutation
	}
	return ast.Query
}
