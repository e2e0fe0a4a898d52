package extension

import (
	"slices"
	"sort"
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
)

// Field is a field a unit adds to a type declared elsewhere.
type Field struct {
	TypeName   string
	Definition *ast.FieldDefinition
	Resolver   *graph.FieldResolver
}

func (f *Field) Key() string {
	return f.TypeName + "." + f.Definition.Name
}

// Table is the structured form of a unit.
type Table struct {
	Unit string
	// Types are the new types of the unit.
	Types []*ast.Definition
	// Fields are the fields added to existing types, sorted by key.
	Fields []*Field
	// Interfaces maps a type to the interfaces the unit adds to it.
	Interfaces map[string][]string
	Resolvers  graph.Resolvers
}

// Parse validates the SDL of unit and returns its table. It rejects anything
// but object type extensions and type definitions as well as fields declared
// twice.
func Parse(name string, unit *Unit) (*Table, error) {
	t := &Table{
		Unit:       name,
		Interfaces: map[string][]string{},
		Resolvers:  graph.Resolvers{},
	}

	doc, err := parser.ParseSchema(&ast.Source{Name: name, Input: unit.SDL})
	if err != nil {
		return nil, errors.Wrapf(err, "%s: parse extension SDL", name)
	}
	if len(doc.Schema) > 0 || len(doc.SchemaExtension) > 0 {
		return nil, errors.Errorf("%s: schema definitions are not allowed in extensions", name)
	}
	if len(doc.Directives) > 0 {
		return nil, errors.Errorf("%s: directive definitions are not allowed in extensions", name)
	}

	types := map[string]bool{}
	for _, def := range doc.Definitions {
		if graph.IsBuiltInType(def.Name) {
			return nil, errors.Errorf("%s: cannot declare built-in type %s", name, def.Name)
		}
		if types[def.Name] {
			return nil, errors.Errorf("%s: type %s is declared twice", name, def.Name)
		}
		types[def.Name] = true
		t.Types = append(t.Types, graph.CopyDefinition(def, nil))
	}

	fields := map[string]*Field{}
	for _, def := range doc.Extensions {
		if def.Kind != ast.Object {
			return nil, errors.Errorf("%s: only object types can be extended, %s is %s", name, def.Name, def.Kind)
		}
		if types[def.Name] {
			return nil, errors.Errorf("%s: type %s is declared and extended by the same unit", name, def.Name)
		}
		t.Interfaces[def.Name] = append(t.Interfaces[def.Name], def.Interfaces...)
		for _, field := range def.Fields {
			field := &Field{
				TypeName:   def.Name,
				Definition: graph.CopyFieldDefinition(field, nil),
			}
			if fields[field.Key()] != nil {
				return nil, errors.Errorf("%s: field %s is declared twice", name, field.Key())
			}
			fields[field.Key()] = field
			t.Fields = append(t.Fields, field)
		}
	}
	sort.SliceStable(t.Fields, func(i, j int) bool {
		return t.Fields[i].Key() < t.Fields[j].Key()
	})

	for _, key := range unit.Resolvers.Keys() {
		typeName, fieldName := splitKey(key)
		resolver := unit.Resolvers.Get(typeName, fieldName)
		if resolver == nil || resolver.Resolve == nil {
			return nil, errors.Errorf("%s: resolver for %s has no resolve function", name, key)
		}
		if field := fields[key]; field != nil {
			field.Resolver = resolver
		}
		t.Resolvers.Set(typeName, fieldName, resolver)
	}

	return t, nil
}

// Apply adds the types and fields of t to defs. owners records the unit or
// graph that declared a type ("Type") or field ("Type.field"). Declaring a
// type or field that already has an owner fails.
func (t *Table) Apply(defs map[string]*ast.Definition, owners map[string]string) error {
	for _, def := range t.Types {
		if owner, ok := owners[def.Name]; ok {
			return errors.Errorf("%s: type %s is already declared by %s", t.Unit, def.Name, owner)
		}
		defs[def.Name] = def
		owners[def.Name] = t.Unit
		for _, field := range def.Fields {
			owners[def.Name+"."+field.Name] = t.Unit
		}
	}

	for _, field := range t.Fields {
		def := defs[field.TypeName]
		if def == nil {
			return errors.Errorf("%s: cannot extend unknown type %s", t.Unit, field.TypeName)
		}
		if def.Kind != ast.Object {
			return errors.Errorf("%s: cannot add field %s to %s type %s", t.Unit, field.Definition.Name, def.Kind, def.Name)
		}
		if owner, ok := owners[field.Key()]; ok {
			return errors.Errorf("%s: field %s is already declared by %s", t.Unit, field.Key(), owner)
		}
		def.Fields = append(def.Fields, field.Definition)
		owners[field.Key()] = t.Unit
	}

	typeNames := make([]string, 0, len(t.Interfaces))
	for typeName := range t.Interfaces {
		typeNames = append(typeNames, typeName)
	}
	sort.Strings(typeNames)
	for _, typeName := range typeNames {
		def := defs[typeName]
		if def == nil {
			return errors.Errorf("%s: cannot extend unknown type %s", t.Unit, typeName)
		}
		for _, iface := range t.Interfaces[typeName] {
			if !slices.Contains(def.Interfaces, iface) {
				def.Interfaces = append(def.Interfaces, iface)
			}
		}
	}

	return nil
}

// Validate checks t against the final schema. Every added field needs a
// resolver and every dependency fragment must select existing fields.
func (t *Table) Validate(schema *ast.Schema) error {
	for _, field := range t.Fields {
		if field.Resolver == nil {
			return errors.Errorf("%s: field %s has no resolver", t.Unit, field.Key())
		}
	}
	for _, key := range t.Resolvers.Keys() {
		typeName, fieldName := splitKey(key)
		def := schema.Types[typeName]
		if def == nil || def.Fields.ForName(fieldName) == nil {
			return errors.Errorf("%s: resolver for %s references an unknown field", t.Unit, key)
		}
		if fragment := t.Resolvers.Get(typeName, fieldName).Fragment; fragment != "" {
			if _, err := graph.ParseDependency(schema, typeName, fragment); err != nil {
				return errors.Wrapf(err, "%s: dependency of %s", t.Unit, key)
			}
		}
	}
	return nil
}

func splitKey(key string) (string, string) {
	typeName, fieldName, _ := strings.Cut(key, ".")
	return typeName, fieldName
}
