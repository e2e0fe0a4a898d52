package namespace

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
)

type denylist struct {
	types  map[string]bool
	fields map[string]map[string]bool
}

func parseDenylist(schema *ast.Schema, entries []string) (*denylist, error) {
	denied := &denylist{
		types:  map[string]bool{},
		fields: map[string]map[string]bool{},
	}

	for _, entry := range entries {
		typeName, fieldName, isField := strings.Cut(strings.TrimSpace(entry), ".")

		def := schema.Types[typeName]
		switch {
		case typeName == "Query" && schema.Query != nil:
			def = schema.Query
		case typeName == "Mutation" && schema.Mutation != nil:
			def = schema.Mutation
		}
		if def == nil || def.BuiltIn {
			return nil, errors.Errorf("denylist entry %q references unknown type %s", entry, typeName)
		}

		if !isField {
			if graph.IsRootType(schema, def) {
				return nil, errors.Errorf("denylist entry %q hides a root type", entry)
			}
			denied.types[def.Name] = true
			continue
		}

		if def.Fields.ForName(fieldName) == nil {
			return nil, errors.Errorf("denylist entry %q references unknown field %s.%s", entry, def.Name, fieldName)
		}
		if denied.fields[def.Name] == nil {
			denied.fields[def.Name] = map[string]bool{}
		}
		denied.fields[def.Name][fieldName] = true
	}

	return denied, nil
}

// hide returns the private names of all hidden types. Hiding cascades: a type
// that loses all of its fields or members is hidden as well.
func hide(schema *ast.Schema, denied *denylist) map[string]bool {
	hidden := map[string]bool{}
	for name := range denied.types {
		hidden[name] = true
	}

	for changed := true; changed; {
		changed = false
		for _, name := range graph.NamedTypes(schema) {
			def := schema.Types[name]
			if hidden[name] || def == schema.Subscription {
				continue
			}

			empty := false
			switch def.Kind {
			case ast.Object, ast.Interface, ast.InputObject:
				empty = true
				for _, field := range def.Fields {
					if !fieldHidden(schema, def, field, denied, hidden) {
						empty = false
						break
					}
				}
			case ast.Union:
				empty = len(filterNames(def.Types, hidden)) == 0
			}

			if empty {
				hidden[name] = true
				changed = true
			}
		}
	}

	return hidden
}

func fieldHidden(schema *ast.Schema, def *ast.Definition, field *ast.FieldDefinition, denied *denylist, hidden map[string]bool) bool {
	if strings.HasPrefix(field.Name, "__") || denied.fields[def.Name][field.Name] {
		return true
	}
	if hidden[field.Type.Name()] {
		return true
	}
	if fieldType := schema.Types[field.Type.Name()]; fieldType != nil && graph.IsRootType(schema, fieldType) {
		return true
	}
	for _, arg := range field.Arguments {
		if hidden[arg.Type.Name()] {
			return true
		}
	}
	return false
}
