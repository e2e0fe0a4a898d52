// Package namespace renames the types and root fields of a sub-graph so they
// cannot collide with other graphs of a composition.
package namespace

import (
	"sort"
	"strings"

	"github.com/iancoleman/strcase"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
)

// Rule describes how the names of one sub-graph are made public.
type Rule struct {
	// TypePrefix is prepended to every non built-in type name.
	TypePrefix string
	// RenameType and RenameRootField override the prefix scheme when set.
	RenameType      func(name string) string
	RenameRootField func(name string) string
	// Denylist hides types ("Type"), fields ("Type.field") and root fields
	// ("Query.field") from the public schema.
	Denylist []string
}

// Prefix returns the default rule: types get prefix, root fields get the
// lower camel cased prefix, e.g. Commerce turns Order into CommerceOrder and
// order into commerceOrder.
func Prefix(prefix string, denylist ...string) Rule {
	return Rule{TypePrefix: prefix, Denylist: denylist}
}

func (r Rule) typeName(name string) string {
	if r.RenameType != nil {
		return r.RenameType(name)
	}
	return r.TypePrefix + name
}

func (r Rule) rootFieldName(name string) string {
	if r.RenameRootField != nil {
		return r.RenameRootField(name)
	}
	if r.TypePrefix == "" {
		return name
	}
	return strcase.ToLowerCamel(r.TypePrefix) + strings.ToUpper(name[:1]) + name[1:]
}

// Namespace records the mapping between private and public names of one
// sub-graph. It is immutable.
type Namespace struct {
	publicTypes  map[string]string
	privateTypes map[string]string

	publicRootFields  map[ast.Operation]map[string]string
	privateRootFields map[ast.Operation]map[string]string

	hiddenTypes map[string]bool
}

// PublicType maps a private type name. Unknown and built-in names are returned unchanged.
func (n *Namespace) PublicType(private string) string {
	if public, ok := n.publicTypes[private]; ok {
		return public
	}
	return private
}

// PrivateType maps a public type name. Unknown and built-in names are returned unchanged.
func (n *Namespace) PrivateType(public string) string {
	if private, ok := n.privateTypes[public]; ok {
		return private
	}
	return public
}

// HasPublicType reports whether public names a type of this sub-graph.
func (n *Namespace) HasPublicType(public string) bool {
	_, ok := n.privateTypes[public]
	return ok
}

func (n *Namespace) PublicRootField(operation ast.Operation, private string) (string, bool) {
	public, ok := n.publicRootFields[operation][private]
	return public, ok
}

// PrivateRootField maps a public root field name. Deny-listed root fields
// remain addressable so they can still be delegated to.
func (n *Namespace) PrivateRootField(operation ast.Operation, public string) (string, bool) {
	private, ok := n.privateRootFields[operation][public]
	return private, ok
}

// Types returns the public names of all visible types, sorted.
func (n *Namespace) Types() []string {
	var out []string
	for private, public := range n.publicTypes {
		if !n.hiddenTypes[private] {
			out = append(out, public)
		}
	}
	sort.Strings(out)
	return out
}

// Apply namespaces schema according to rule and returns the public schema.
// The public schema has Query and Mutation roots and no subscription root.
func Apply(service string, schema *ast.Schema, rule Rule) (*ast.Schema, *Namespace, error) {
	ns := &Namespace{
		publicTypes:       map[string]string{},
		privateTypes:      map[string]string{},
		publicRootFields:  map[ast.Operation]map[string]string{},
		privateRootFields: map[ast.Operation]map[string]string{},
	}

	denied, err := parseDenylist(schema, rule.Denylist)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s", service)
	}

	for _, name := range graph.NamedTypes(schema) {
		if schema.Types[name] == schema.Subscription {
			continue
		}
		public := rule.typeName(name)
		if public == "" || graph.IsBuiltInType(public) {
			return nil, nil, errors.Errorf("%s: type %s is renamed to invalid name %q", service, name, public)
		}
		if other, ok := ns.privateTypes[public]; ok {
			return nil, nil, errors.Errorf("%s: types %s and %s are both renamed to %s", service, other, name, public)
		}
		ns.publicTypes[name] = public
		ns.privateTypes[public] = name
	}

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation} {
		root := graph.RootType(schema, operation)
		if root == nil {
			continue
		}
		ns.publicRootFields[operation] = map[string]string{}
		ns.privateRootFields[operation] = map[string]string{}
		for _, field := range root.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			public := rule.rootFieldName(field.Name)
			if other, ok := ns.privateRootFields[operation][public]; ok {
				return nil, nil, errors.Errorf("%s: %s fields %s and %s are both renamed to %s", service, operation, other, field.Name, public)
			}
			ns.publicRootFields[operation][field.Name] = public
			ns.privateRootFields[operation][public] = field.Name
		}
	}

	ns.hiddenTypes = hide(schema, denied)

	public, err := ns.build(schema, denied)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "%s: build public schema", service)
	}

	return public, ns, nil
}

func (n *Namespace) build(schema *ast.Schema, denied *denylist) (*ast.Schema, error) {
	doc := &ast.SchemaDocument{}
	rename := graph.RenameFunc(n.PublicType)

	for _, name := range graph.NamedTypes(schema) {
		def := schema.Types[name]
		if def == schema.Subscription || n.hiddenTypes[name] {
			continue
		}
		copied := graph.CopyDefinition(visibleDefinition(schema, def, denied, n.hiddenTypes), rename)
		doc.Definitions = append(doc.Definitions, copied)
	}

	for _, operation := range []ast.Operation{ast.Query, ast.Mutation} {
		root := graph.RootType(schema, operation)
		if root == nil {
			continue
		}
		visible := visibleDefinition(schema, root, denied, n.hiddenTypes)
		publicRoot := graph.CopyDefinition(visible, rename)
		publicRoot.Name = rootTypeName(operation)
		publicRoot.Interfaces = nil
		for _, field := range publicRoot.Fields {
			field.Name = n.publicRootFields[operation][field.Name]
		}
		if len(publicRoot.Fields) == 0 {
			continue
		}
		doc.Definitions = append(doc.Definitions, publicRoot)
	}

	return graph.BuildSchema(doc)
}

func rootTypeName(operation ast.Operation) string {
	if operation == ast.Mutation {
		return "Mutation"
	}
	return "Query"
}

// visibleDefinition returns def without hidden fields, interfaces and members.
func visibleDefinition(schema *ast.Schema, def *ast.Definition, denied *denylist, hidden map[string]bool) *ast.Definition {
	out := *def
	out.Fields = nil
	for _, field := range def.Fields {
		if fieldHidden(schema, def, field, denied, hidden) {
			continue
		}
		out.Fields = append(out.Fields, field)
	}
	out.Interfaces = filterNames(def.Interfaces, hidden)
	out.Types = filterNames(def.Types, hidden)
	return &out
}

func filterNames(names []string, hidden map[string]bool) []string {
	var out []string
	for _, name := range names {
		if !hidden[name] {
			out = append(out, name)
		}
	}
	return out
}
