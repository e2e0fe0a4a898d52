package graph

import (
	"sort"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

const defaultDeprecationReason = "No longer supported"

// typeRef is the value of an introspection __Type. Wrapping types (lists and
// non-null) carry typ, named types carry def.
type typeRef struct {
	def *ast.Definition
	typ *ast.Type
}

func namedRef(def *ast.Definition) interface{} {
	if def == nil {
		return nil
	}
	return &typeRef{def: def}
}

func typeRefOf(schema *ast.Schema, typ *ast.Type) interface{} {
	if typ == nil {
		return nil
	}
	if typ.NonNull || typ.Elem != nil {
		return &typeRef{typ: typ}
	}
	return namedRef(schema.Types[typ.NamedType])
}

func resolveIntrospection(schema *ast.Schema, typeName, fieldName string, parent interface{}, args map[string]interface{}) interface{} {
	includeDeprecated, _ := args["includeDeprecated"].(bool)

	switch typeName {
	case "__Schema":
		return introspectSchema(schema, fieldName)
	case "__Type":
		ref, ok := parent.(*typeRef)
		if !ok {
			return nil
		}
		return introspectType(schema, ref, fieldName, includeDeprecated)
	case "__Field":
		field, ok := parent.(*ast.FieldDefinition)
		if !ok {
			return nil
		}
		switch fieldName {
		case "name":
			return field.Name
		case "description":
			return optionalString(field.Description)
		case "args":
			out := make([]interface{}, 0, len(field.Arguments))
			for _, arg := range field.Arguments {
				out = append(out, arg)
			}
			return out
		case "type":
			return typeRefOf(schema, field.Type)
		case "isDeprecated":
			return field.Directives.ForName("deprecated") != nil
		case "deprecationReason":
			return deprecationReason(field.Directives)
		}
	case "__InputValue":
		return introspectInputValue(parent, fieldName, schema)
	case "__EnumValue":
		value, ok := parent.(*ast.EnumValueDefinition)
		if !ok {
			return nil
		}
		switch fieldName {
		case "name":
			return value.Name
		case "description":
			return optionalString(value.Description)
		case "isDeprecated":
			return value.Directives.ForName("deprecated") != nil
		case "deprecationReason":
			return deprecationReason(value.Directives)
		}
	case "__Directive":
		directive, ok := parent.(*ast.DirectiveDefinition)
		if !ok {
			return nil
		}
		switch fieldName {
		case "name":
			return directive.Name
		case "description":
			return optionalString(directive.Description)
		case "isRepeatable":
			return directive.IsRepeatable
		case "locations":
			out := make([]interface{}, 0, len(directive.Locations))
			for _, location := range directive.Locations {
				out = append(out, string(location))
			}
			return out
		case "args":
			out := make([]interface{}, 0, len(directive.Arguments))
			for _, arg := range directive.Arguments {
				out = append(out, arg)
			}
			return out
		}
	}
	return nil
}

func introspectSchema(schema *ast.Schema, fieldName string) interface{} {
	switch fieldName {
	case "description":
		return optionalString(schema.Description)
	case "types":
		names := make([]string, 0, len(schema.Types))
		for name := range schema.Types {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]interface{}, 0, len(names))
		for _, name := range names {
			out = append(out, &typeRef{def: schema.Types[name]})
		}
		return out
	case "queryType":
		return namedRef(schema.Query)
	case "mutationType":
		return namedRef(schema.Mutation)
	case "subscriptionType":
		return namedRef(schema.Subscription)
	case "directives":
		names := make([]string, 0, len(schema.Directives))
		for name := range schema.Directives {
			names = append(names, name)
		}
		sort.Strings(names)
		out := make([]interface{}, 0, len(names))
		for _, name := range names {
			out = append(out, schema.Directives[name])
		}
		return out
	}
	return nil
}

func introspectType(schema *ast.Schema, ref *typeRef, fieldName string, includeDeprecated bool) interface{} {
	if ref.typ != nil {
		switch fieldName {
		case "kind":
			if ref.typ.NonNull {
				return "NON_NULL"
			}
			return "LIST"
		case "ofType":
			if ref.typ.NonNull {
				inner := *ref.typ
				inner.NonNull = false
				return typeRefOf(schema, &inner)
			}
			return typeRefOf(schema, ref.typ.Elem)
		}
		return nil
	}

	def := ref.def
	switch fieldName {
	case "kind":
		return string(def.Kind)
	case "name":
		return def.Name
	case "description":
		return optionalString(def.Description)
	case "fields":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := make([]interface{}, 0, len(def.Fields))
		for _, field := range def.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			if !includeDeprecated && field.Directives.ForName("deprecated") != nil {
				continue
			}
			out = append(out, field)
		}
		return out
	case "interfaces":
		if def.Kind != ast.Object && def.Kind != ast.Interface {
			return nil
		}
		out := make([]interface{}, 0, len(def.Interfaces))
		for _, name := range def.Interfaces {
			if iface := schema.Types[name]; iface != nil {
				out = append(out, &typeRef{def: iface})
			}
		}
		return out
	case "possibleTypes":
		if !def.IsAbstractType() {
			return nil
		}
		var possible []*ast.Definition
		for _, candidate := range schema.GetPossibleTypes(def) {
			if candidate.Kind == ast.Object {
				possible = append(possible, candidate)
			}
		}
		sort.Slice(possible, func(i, j int) bool {
			return possible[i].Name < possible[j].Name
		})
		out := make([]interface{}, 0, len(possible))
		for _, candidate := range possible {
			out = append(out, &typeRef{def: candidate})
		}
		return out
	case "enumValues":
		if def.Kind != ast.Enum {
			return nil
		}
		out := make([]interface{}, 0, len(def.EnumValues))
		for _, value := range def.EnumValues {
			if !includeDeprecated && value.Directives.ForName("deprecated") != nil {
				continue
			}
			out = append(out, value)
		}
		return out
	case "inputFields":
		if def.Kind != ast.InputObject {
			return nil
		}
		out := make([]interface{}, 0, len(def.Fields))
		for _, field := range def.Fields {
			out = append(out, field)
		}
		return out
	case "isOneOf":
		if def.Kind != ast.InputObject {
			return nil
		}
		return def.Directives.ForName("oneOf") != nil
	}
	return nil
}

func introspectInputValue(parent interface{}, fieldName string, schema *ast.Schema) interface{} {
	var (
		name, description string
		typ               *ast.Type
		defaultValue      *ast.Value
		directives        ast.DirectiveList
	)
	switch value := parent.(type) {
	case *ast.ArgumentDefinition:
		name, description, typ, defaultValue, directives = value.Name, value.Description, value.Type, value.DefaultValue, value.Directives
	case *ast.FieldDefinition:
		name, description, typ, defaultValue, directives = value.Name, value.Description, value.Type, value.DefaultValue, value.Directives
	default:
		return nil
	}

	switch fieldName {
	case "name":
		return name
	case "description":
		return optionalString(description)
	case "type":
		return typeRefOf(schema, typ)
	case "defaultValue":
		if defaultValue == nil {
			return nil
		}
		return defaultValue.String()
	case "isDeprecated":
		return directives.ForName("deprecated") != nil
	case "deprecationReason":
		return deprecationReason(directives)
	}
	return nil
}

func deprecationReason(directives ast.DirectiveList) interface{} {
	deprecated := directives.ForName("deprecated")
	if deprecated == nil {
		return nil
	}
	if reason := deprecated.Arguments.ForName("reason"); reason != nil && reason.Value != nil {
		return reason.Value.Raw
	}
	return defaultDeprecationReason
}

func optionalString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
