package graph

import (
	"context"
	"sort"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

const defaultDocumentCacheSize = 1024

// ResolveFunc resolves a single field. parent is the value of the enclosing
// object, args holds the coerced field arguments.
type ResolveFunc func(ctx context.Context, parent interface{}, args map[string]interface{}, info *ResolveInfo) (interface{}, error)

// FieldResolver pairs a resolve function with the dependency fragment it needs
// on its parent, e.g. "... on Artwork { internalID }".
type FieldResolver struct {
	Fragment string
	Resolve  ResolveFunc
}

// Resolvers is a resolver table keyed by type and field name.
type Resolvers map[string]map[string]*FieldResolver

func (r Resolvers) Set(typeName, fieldName string, resolver *FieldResolver) {
	if r[typeName] == nil {
		r[typeName] = map[string]*FieldResolver{}
	}
	r[typeName][fieldName] = resolver
}

func (r Resolvers) Get(typeName, fieldName string) *FieldResolver {
	return r[typeName][fieldName]
}

// Keys returns all "Type.field" keys in sorted order.
func (r Resolvers) Keys() []string {
	var keys []string
	for typeName, fields := range r {
		for fieldName := range fields {
			keys = append(keys, typeName+"."+fieldName)
		}
	}
	return sortStrings(keys)
}

// TypeResolveFunc returns the concrete object type name of value.
type TypeResolveFunc func(value interface{}) string

// Executable is a schema together with its resolvers. It is immutable after
// construction and safe for concurrent use.
type Executable struct {
	name          string
	schema        *ast.Schema
	resolvers     Resolvers
	typeResolvers map[string]TypeResolveFunc
	dependencies  map[string]map[string]*Dependency
	logger        log.Logger
	documents     *lru.Cache
	cacheSize     int
}

type Option func(e *Executable)

func WithName(name string) Option {
	return func(e *Executable) {
		e.name = name
	}
}

func WithLogger(logger log.Logger) Option {
	return func(e *Executable) {
		e.logger = logger
	}
}

func WithTypeResolver(typeName string, resolve TypeResolveFunc) Option {
	return func(e *Executable) {
		e.typeResolvers[typeName] = resolve
	}
}

func WithTypeResolvers(resolvers map[string]TypeResolveFunc) Option {
	return func(e *Executable) {
		for typeName, resolve := range resolvers {
			e.typeResolvers[typeName] = resolve
		}
	}
}

func WithDocumentCacheSize(size int) Option {
	return func(e *Executable) {
		e.cacheSize = size
	}
}

// NewExecutable binds resolvers to schema. Every resolver must point at an
// existing field and every dependency fragment must select existing fields of
// the resolver's type.
func NewExecutable(schema *ast.Schema, resolvers Resolvers, opts ...Option) (*Executable, error) {
	if schema == nil {
		return nil, errors.New("schema is nil")
	}

	e := &Executable{
		name:          "graph",
		schema:        schema,
		resolvers:     Resolvers{},
		typeResolvers: map[string]TypeResolveFunc{},
		dependencies:  map[string]map[string]*Dependency{},
		logger:        log.NoopLogger,
		cacheSize:     defaultDocumentCacheSize,
	}
	for _, opt := range opts {
		opt(e)
	}

	for _, key := range resolvers.Keys() {
		typeName, fieldName := splitKey(key)
		resolver := resolvers.Get(typeName, fieldName)
		if resolver == nil || resolver.Resolve == nil {
			return nil, errors.Errorf("%s: resolver for %s has no resolve function", e.name, key)
		}

		def := schema.Types[typeName]
		if def == nil {
			return nil, errors.Errorf("%s: resolver for %s references unknown type %s", e.name, key, typeName)
		}
		if def.Fields.ForName(fieldName) == nil {
			return nil, errors.Errorf("%s: resolver for %s references unknown field", e.name, key)
		}

		if resolver.Fragment != "" {
			dependency, err := ParseDependency(schema, typeName, resolver.Fragment)
			if err != nil {
				return nil, errors.Wrapf(err, "%s: dependency of %s", e.name, key)
			}
			if e.dependencies[typeName] == nil {
				e.dependencies[typeName] = map[string]*Dependency{}
			}
			e.dependencies[typeName][fieldName] = dependency
		}

		e.resolvers.Set(typeName, fieldName, resolver)
	}

	for typeName := range e.typeResolvers {
		def := schema.Types[typeName]
		if def == nil || !def.IsAbstractType() {
			return nil, errors.Errorf("%s: type resolver registered for %s which is not an abstract type", e.name, typeName)
		}
	}

	if e.cacheSize > 0 {
		cache, err := lru.New(e.cacheSize)
		if err != nil {
			return nil, errors.WithStack(err)
		}
		e.documents = cache
	}

	return e, nil
}

func (e *Executable) Name() string {
	return e.name
}

func (e *Executable) Schema() *ast.Schema {
	return e.schema
}

// Resolvers returns the resolver table. It must not be modified.
func (e *Executable) Resolvers() Resolvers {
	return e.resolvers
}

func (e *Executable) Resolver(typeName, fieldName string) *FieldResolver {
	return e.resolvers.Get(typeName, fieldName)
}

func (e *Executable) TypeResolvers() map[string]TypeResolveFunc {
	return e.typeResolvers
}

// Dependency returns the bound dependency fragment of a field, or nil.
func (e *Executable) Dependency(typeName, fieldName string) *Dependency {
	return e.dependencies[typeName][fieldName]
}

func (e *Executable) Logger() log.Logger {
	return e.logger
}

func splitKey(key string) (string, string) {
	typeName, fieldName, _ := strings.Cut(key, ".")
	return typeName, fieldName
}

func sortStrings(in []string) []string {
	sort.Strings(in)
	return in
}
