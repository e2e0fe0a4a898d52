package delegate

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
)

// builder translates client selections on public types into selections on
// the private types of a target.
type builder struct {
	target Target
	source *ast.Schema
	info   *graph.ResolveInfo

	definitions ast.VariableDefinitionList
	variables   map[string]interface{}
	forwarded   map[string]bool
}

// translate returns selectionSet, selected on public, as a selection on
// private. Fields the target does not know are replaced by their dependency
// fragments. visiting guards against dependency cycles.
func (b *builder) translate(selectionSet ast.SelectionSet, public, private *ast.Definition, visiting map[string]bool) (ast.SelectionSet, error) {
	var out ast.SelectionSet

	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			translated, err := b.translateField(selection, public, private, visiting)
			if err != nil {
				return nil, err
			}
			out = append(out, translated...)
		case *ast.InlineFragment:
			fragment, err := b.translateFragment(selection.TypeCondition, selection.Directives, selection.SelectionSet, public, private, visiting)
			if err != nil {
				return nil, err
			}
			if fragment != nil {
				out = append(out, fragment)
			}
		case *ast.FragmentSpread:
			definition := b.info.Fragments.ForName(selection.Name)
			if definition == nil {
				return nil, errors.Errorf("unknown fragment %s", selection.Name)
			}
			fragment, err := b.translateFragment(definition.TypeCondition, selection.Directives, definition.SelectionSet, public, private, visiting)
			if err != nil {
				return nil, err
			}
			if fragment != nil {
				out = append(out, fragment)
			}
		}
	}

	return out, nil
}

func (b *builder) translateField(field *ast.Field, public, private *ast.Definition, visiting map[string]bool) (ast.SelectionSet, error) {
	directives, err := b.directives(field.Directives)
	if err != nil {
		return nil, err
	}

	if field.Name == "__typename" {
		return ast.SelectionSet{&ast.Field{Alias: field.Alias, Name: field.Name, Directives: directives}}, nil
	}

	privateDef := private.Fields.ForName(field.Name)
	if privateDef == nil {
		return b.dependency(field.Name, public, private, visiting)
	}

	out := &ast.Field{
		Alias:      field.Alias,
		Name:       field.Name,
		Directives: directives,
	}
	for _, arg := range field.Arguments {
		value, err := b.value(arg.Value)
		if err != nil {
			return nil, err
		}
		out.Arguments = append(out.Arguments, &ast.Argument{Name: arg.Name, Value: value})
	}

	privateType := b.target.Schema().Types[privateDef.Type.Name()]
	if privateType == nil || !privateType.IsCompositeType() {
		return ast.SelectionSet{out}, nil
	}

	publicType := b.source.Types[b.target.PublicType(privateType.Name)]
	if publicDef := public.Fields.ForName(field.Name); publicDef != nil {
		publicType = b.source.Types[publicDef.Type.Name()]
	}
	if publicType == nil {
		return nil, errors.Errorf("no public type for %s.%s", private.Name, field.Name)
	}

	selectionSet, err := b.translate(field.SelectionSet, publicType, privateType, visiting)
	if err != nil {
		return nil, err
	}
	out.SelectionSet = b.complete(selectionSet, privateType)

	return ast.SelectionSet{out}, nil
}

// dependency replaces a field the target cannot resolve with the dependency
// fragment registered for it. Top level dependency fields are aliased so they
// cannot clash with client fields.
func (b *builder) dependency(fieldName string, public, private *ast.Definition, visiting map[string]bool) (ast.SelectionSet, error) {
	dependency := b.info.Executable.Dependency(public.Name, fieldName)
	if dependency == nil {
		return nil, nil
	}

	key := public.Name + "." + fieldName
	if visiting[key] {
		return nil, errors.Errorf("dependency cycle at %s", key)
	}
	next := make(map[string]bool, len(visiting)+1)
	for k := range visiting {
		next[k] = true
	}
	next[key] = true

	selectionSet, err := b.translate(dependency.SelectionSet, public, private, next)
	if err != nil {
		return nil, errors.Wrapf(err, "dependency of %s", key)
	}
	return aliasDependencies(selectionSet), nil
}

// aliasDependencies prefixes the response keys of the top level fields of
// selectionSet so they cannot clash with client fields.
func aliasDependencies(selectionSet ast.SelectionSet) ast.SelectionSet {
	for _, selection := range selectionSet {
		switch selection := selection.(type) {
		case *ast.Field:
			if selection.Name != "__typename" && !strings.HasPrefix(selection.Alias, graph.DependencyAliasPrefix) {
				selection.Alias = graph.DependencyAliasPrefix + selection.Alias
			}
		case *ast.InlineFragment:
			aliasDependencies(selection.SelectionSet)
		}
	}
	return selectionSet
}

func (b *builder) translateFragment(typeCondition string, directives ast.DirectiveList, selectionSet ast.SelectionSet, public, private *ast.Definition, visiting map[string]bool) (ast.Selection, error) {
	fragmentPublic, fragmentPrivate := public, private
	if typeCondition != "" {
		fragmentPublic = b.source.Types[typeCondition]
		privateName := b.target.PrivateType(typeCondition)
		fragmentPrivate = b.target.Schema().Types[privateName]
		if fragmentPublic == nil || fragmentPrivate == nil || b.target.PublicType(privateName) != typeCondition {
			// the type belongs to another graph
			return nil, nil
		}
	}

	translatedDirectives, err := b.directives(directives)
	if err != nil {
		return nil, err
	}
	translated, err := b.translate(selectionSet, fragmentPublic, fragmentPrivate, visiting)
	if err != nil {
		return nil, err
	}
	if len(translated) == 0 {
		return nil, nil
	}

	out := &ast.InlineFragment{
		Directives:   translatedDirectives,
		SelectionSet: translated,
	}
	if typeCondition != "" {
		out.TypeCondition = fragmentPrivate.Name
	}
	return out, nil
}

// complete makes selectionSet a valid selection on a composite type.
func (b *builder) complete(selectionSet ast.SelectionSet, def *ast.Definition) ast.SelectionSet {
	if !def.IsAbstractType() && len(selectionSet) > 0 {
		return selectionSet
	}
	for _, selection := range selectionSet {
		if field, ok := selection.(*ast.Field); ok && field.Name == "__typename" && field.Alias == "__typename" && len(field.Directives) == 0 {
			return selectionSet
		}
	}
	return append(selectionSet, &ast.Field{Alias: "__typename", Name: "__typename"})
}

func (b *builder) directives(directives ast.DirectiveList) (ast.DirectiveList, error) {
	var out ast.DirectiveList
	for _, directive := range directives {
		if directive.Name != "skip" && directive.Name != "include" {
			continue
		}
		copied := &ast.Directive{Name: directive.Name}
		for _, arg := range directive.Arguments {
			value, err := b.value(arg.Value)
			if err != nil {
				return nil, err
			}
			copied.Arguments = append(copied.Arguments, &ast.Argument{Name: arg.Name, Value: value})
		}
		out = append(out, copied)
	}
	return out, nil
}

// value copies a literal and forwards the client variables it references.
func (b *builder) value(value *ast.Value) (*ast.Value, error) {
	if value == nil {
		return nil, nil
	}
	if value.Kind == ast.Variable {
		name, err := b.forward(value.Raw)
		if err != nil {
			return nil, err
		}
		return &ast.Value{Kind: ast.Variable, Raw: name}, nil
	}

	out := &ast.Value{Kind: value.Kind, Raw: value.Raw}
	for _, child := range value.Children {
		copied, err := b.value(child.Value)
		if err != nil {
			return nil, err
		}
		out.Children = append(out.Children, &ast.ChildValue{Name: child.Name, Value: copied})
	}
	return out, nil
}

func (b *builder) forward(variable string) (string, error) {
	name := "_v_" + variable
	if b.forwarded[name] {
		return name, nil
	}

	var definition *ast.VariableDefinition
	if b.info.Operation != nil {
		definition = b.info.Operation.VariableDefinitions.ForName(variable)
	}
	if definition == nil {
		return "", errors.Errorf("undefined variable $%s", variable)
	}

	b.forwarded[name] = true
	b.definitions = append(b.definitions, &ast.VariableDefinition{
		Variable: name,
		Type:     graph.CopyType(definition.Type, b.target.PrivateType),
	})
	if value, ok := b.info.Variables[variable]; ok {
		b.variables[name] = value
	}
	return name, nil
}
