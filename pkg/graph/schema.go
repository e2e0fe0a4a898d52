package graph

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// LoadSchema parses sdl together with the GraphQL prelude.
func LoadSchema(name, sdl string) (*ast.Schema, error) {
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: sdl})
	if err != nil {
		return nil, errors.Wrapf(err, "load schema %s", name)
	}
	return schema, nil
}

// BuildSchema validates doc against a fresh copy of the prelude.
// ValidateSchemaDocument mutates the definitions it is given, callers should
// hand over copies of definitions that are shared elsewhere.
func BuildSchema(doc *ast.SchemaDocument) (*ast.Schema, error) {
	prelude, err := parser.ParseSchema(validator.Prelude)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	merged := &ast.SchemaDocument{}
	merged.Merge(prelude)
	merged.Merge(doc)

	return validator.ValidateSchemaDocument(merged)
}

// IsBuiltInType reports whether name is a built-in scalar or an introspection type.
func IsBuiltInType(name string) bool {
	switch name {
	case "String", "Int", "Float", "Boolean", "ID":
		return true
	}
	return strings.HasPrefix(name, "__")
}

// RenameFunc maps a type name to another one. A nil RenameFunc keeps names.
type RenameFunc func(name string) string

func (r RenameFunc) apply(name string) string {
	if r == nil || IsBuiltInType(name) {
		return name
	}
	return r(name)
}

// CopyDefinition returns a deep copy of def with every type reference passed
// through rename. Introspection fields and non built-in directives are dropped.
func CopyDefinition(def *ast.Definition, rename RenameFunc) *ast.Definition {
	out := &ast.Definition{
		Kind:        def.Kind,
		Description: def.Description,
		Name:        rename.apply(def.Name),
		Directives:  copyDirectives(def.Directives),
		Position:    def.Position,
	}
	for _, iface := range def.Interfaces {
		out.Interfaces = append(out.Interfaces, rename.apply(iface))
	}
	for _, member := range def.Types {
		out.Types = append(out.Types, rename.apply(member))
	}
	for _, field := range def.Fields {
		if strings.HasPrefix(field.Name, "__") {
			continue
		}
		out.Fields = append(out.Fields, CopyFieldDefinition(field, rename))
	}
	for _, value := range def.EnumValues {
		out.EnumValues = append(out.EnumValues, &ast.EnumValueDefinition{
			Description: value.Description,
			Name:        value.Name,
			Directives:  copyDirectives(value.Directives),
			Position:    value.Position,
		})
	}
	return out
}

func CopyFieldDefinition(field *ast.FieldDefinition, rename RenameFunc) *ast.FieldDefinition {
	out := &ast.FieldDefinition{
		Description:  field.Description,
		Name:         field.Name,
		DefaultValue: CopyValue(field.DefaultValue),
		Type:         CopyType(field.Type, rename),
		Directives:   copyDirectives(field.Directives),
		Position:     field.Position,
	}
	for _, arg := range field.Arguments {
		out.Arguments = append(out.Arguments, &ast.ArgumentDefinition{
			Description:  arg.Description,
			Name:         arg.Name,
			DefaultValue: CopyValue(arg.DefaultValue),
			Type:         CopyType(arg.Type, rename),
			Directives:   copyDirectives(arg.Directives),
			Position:     arg.Position,
		})
	}
	return out
}

func CopyType(typ *ast.Type, rename RenameFunc) *ast.Type {
	if typ == nil {
		return nil
	}
	out := &ast.Type{NonNull: typ.NonNull, Position: typ.Position}
	if typ.Elem != nil {
		out.Elem = CopyType(typ.Elem, rename)
		return out
	}
	out.NamedType = rename.apply(typ.NamedType)
	return out
}

// CopyValue deep copies a literal value without its validation annotations.
func CopyValue(value *ast.Value) *ast.Value {
	if value == nil {
		return nil
	}
	out := &ast.Value{
		Raw:      value.Raw,
		Kind:     value.Kind,
		Position: value.Position,
	}
	for _, child := range value.Children {
		out.Children = append(out.Children, &ast.ChildValue{
			Name:     child.Name,
			Value:    CopyValue(child.Value),
			Position: child.Position,
		})
	}
	return out
}

func copyDirectives(directives ast.DirectiveList) ast.DirectiveList {
	var out ast.DirectiveList
	for _, directive := range directives {
		switch directive.Name {
		case "deprecated", "specifiedBy", "oneOf":
		default:
			continue
		}
		copied := &ast.Directive{Name: directive.Name, Position: directive.Position}
		for _, arg := range directive.Arguments {
			copied.Arguments = append(copied.Arguments, &ast.Argument{
				Name:     arg.Name,
				Value:    CopyValue(arg.Value),
				Position: arg.Position,
			})
		}
		out = append(out, copied)
	}
	return out
}

// NamedTypes returns the names of all non built-in types of schema except the
// operation roots.
func NamedTypes(schema *ast.Schema) []string {
	names := make([]string, 0, len(schema.Types))
	for name, def := range schema.Types {
		if def.BuiltIn || IsRootType(schema, def) {
			continue
		}
		names = append(names, name)
	}
	return sortStrings(names)
}

func IsRootType(schema *ast.Schema, def *ast.Definition) bool {
	return def == schema.Query || def == schema.Mutation || def == schema.Subscription
}

// RootType returns the root definition of operation or nil.
func RootType(schema *ast.Schema, operation ast.Operation) *ast.Definition {
	switch operation {
	case ast.Query:
		return schema.Query
	case ast.Mutation:
		return schema.Mutation
	case ast.Subscription:
		return schema.Subscription
	}
	return nil
}
