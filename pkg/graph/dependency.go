package graph

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"
)

// DependencyAliasPrefix prefixes the response key of a dependency field that
// was fetched next to a client field of the same response key but a different
// shape.
const DependencyAliasPrefix = "_dep_"

// Dependency is a parsed dependency fragment bound to a schema.
type Dependency struct {
	TypeName     string
	Source       string
	SelectionSet ast.SelectionSet
}

// ParseDependency parses fragment in one of the forms
//
//	... on Artwork { internalID }
//	fragment ArtworkID on Artwork { internalID }
//	{ internalID }
//	internalID artist { internalID }
//
// and binds it to typeName of schema. Every selected field must exist.
func ParseDependency(schema *ast.Schema, typeName, fragment string) (*Dependency, error) {
	def := schema.Types[typeName]
	if def == nil {
		return nil, errors.Errorf("unknown type %s", typeName)
	}
	if !def.IsCompositeType() {
		return nil, errors.Errorf("type %s cannot have a dependency fragment", typeName)
	}

	doc, err := parser.ParseQuery(&ast.Source{Name: typeName + " dependency", Input: normalizeFragment(typeName, fragment)})
	if err != nil {
		return nil, errors.Wrapf(err, "parse fragment %q", fragment)
	}
	if len(doc.Operations) != 0 || len(doc.Fragments) != 1 {
		return nil, errors.Errorf("fragment %q must contain exactly one fragment", fragment)
	}

	definition := doc.Fragments[0]
	if definition.TypeCondition != typeName {
		return nil, errors.Errorf("fragment %q is declared on %s, expected %s", fragment, definition.TypeCondition, typeName)
	}

	validator.Walk(schema, doc, &validator.Events{})

	if err := checkBound(schema, definition.TypeCondition, definition.SelectionSet); err != nil {
		return nil, errors.Wrapf(err, "fragment %q", fragment)
	}

	return &Dependency{
		TypeName:     typeName,
		Source:       fragment,
		SelectionSet: definition.SelectionSet,
	}, nil
}

func normalizeFragment(typeName, fragment string) string {
	trimmed := strings.TrimSpace(fragment)
	switch {
	case strings.HasPrefix(trimmed, "fragment "):
		return trimmed
	case strings.HasPrefix(trimmed, "..."):
		rest := strings.TrimSpace(strings.TrimPrefix(trimmed, "..."))
		if strings.HasPrefix(rest, "{") {
			return "fragment Dependency on " + typeName + " " + rest
		}
		return "fragment Dependency " + rest
	case strings.HasPrefix(trimmed, "{"):
		return "fragment Dependency on " + typeName + " " + trimmed
	default:
		return "fragment Dependency on " + typeName + " { " + trimmed + " }"
	}
}

func checkBound(schema *ast.Schema, typeName string, selectionSet ast.SelectionSet) error {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			if selection.Definition == nil {
				return errors.Errorf("field %s does not exist on %s", selection.Name, typeName)
			}
			for _, arg := range selection.Arguments {
				if selection.Definition.Arguments.ForName(arg.Name) == nil {
					return errors.Errorf("unknown argument %s on %s.%s", arg.Name, typeName, selection.Name)
				}
				if containsVariable(arg.Value) {
					return errors.Errorf("argument %s on %s.%s must not use variables", arg.Name, typeName, selection.Name)
				}
			}
			fieldType := schema.Types[selection.Definition.Type.Name()]
			if fieldType != nil && fieldType.IsCompositeType() && len(selection.SelectionSet) == 0 {
				return errors.Errorf("field %s.%s of type %s must have a selection", typeName, selection.Name, fieldType.Name)
			}
			if err := checkBound(schema, selection.Definition.Type.Name(), selection.SelectionSet); err != nil {
				return err
			}
		case *ast.InlineFragment:
			if selection.ObjectDefinition == nil {
				return errors.Errorf("unknown type condition %s", selection.TypeCondition)
			}
			next := typeName
			if selection.TypeCondition != "" {
				next = selection.TypeCondition
			}
			if err := checkBound(schema, next, selection.SelectionSet); err != nil {
				return err
			}
		case *ast.FragmentSpread:
			return errors.Errorf("fragment spread ...%s is not allowed in dependencies", selection.Name)
		}
	}
	return nil
}

func containsVariable(value *ast.Value) bool {
	if value == nil {
		return false
	}
	if value.Kind == ast.Variable {
		return true
	}
	for _, child := range value.Children {
		if containsVariable(child.Value) {
			return true
		}
	}
	return false
}
