package graph

import (
	"encoding/json"
	"math"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// ResolveInfo describes the field being resolved.
type ResolveInfo struct {
	FieldName   string
	ResponseKey string
	ParentType  *ast.Definition
	ReturnType  *ast.Type
	// FieldNodes are all client fields merged into this response key.
	FieldNodes []*ast.Field
	Path       ast.Path
	Operation  *ast.OperationDefinition
	Fragments  ast.FragmentDefinitionList
	Variables  map[string]interface{}
	Executable *Executable

	execution *execution
}

// ReportError attaches err to the response without failing the field. The path
// of err is relative to this field.
func (i *ResolveInfo) ReportError(err *gqlerror.Error) {
	if i.execution == nil || err == nil {
		return
	}
	path := make(ast.Path, 0, len(i.Path)+len(err.Path))
	path = append(path, i.Path...)
	path = append(path, err.Path...)

	reported := *err
	reported.Path = path
	i.execution.addError(&reported)
}

// SelectionSet returns the merged sub-selection of all field nodes.
func (i *ResolveInfo) SelectionSet() ast.SelectionSet {
	return mergeSelectionSets(i.FieldNodes)
}

// ResponseKeys returns the response keys under which fieldName is selected in
// the sub-selection, following fragments. Keys are returned in document order.
func (i *ResolveInfo) ResponseKeys(fieldName string) []string {
	var keys []string
	seen := map[string]bool{}
	visited := map[string]bool{}

	var walk func(selectionSet ast.SelectionSet)
	walk = func(selectionSet ast.SelectionSet) {
		for _, selection := range selectionSet {
			switch selection := selection.(type) {
			case *ast.Field:
				if selection.Name == fieldName && !seen[selection.Alias] {
					seen[selection.Alias] = true
					keys = append(keys, selection.Alias)
				}
			case *ast.InlineFragment:
				walk(selection.SelectionSet)
			case *ast.FragmentSpread:
				if visited[selection.Name] {
					continue
				}
				visited[selection.Name] = true
				if fragment := i.Fragments.ForName(selection.Name); fragment != nil {
					walk(fragment.SelectionSet)
				}
			}
		}
	}
	walk(i.SelectionSet())

	return keys
}

func mergeSelectionSets(fields []*ast.Field) ast.SelectionSet {
	if len(fields) == 1 {
		return fields[0].SelectionSet
	}
	var out ast.SelectionSet
	for _, field := range fields {
		out = append(out, field.SelectionSet...)
	}
	return out
}

// IntArg reads an integer argument. Literal arguments arrive as int64 and
// variables as float64 or json.Number.
func IntArg(args map[string]interface{}, name string) (int, bool) {
	switch v := args[name].(type) {
	case int:
		return v, true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float64:
		if v == math.Trunc(v) {
			return int(v), true
		}
	case json.Number:
		n, err := v.Int64()
		if err == nil {
			return int(n), true
		}
	}
	return 0, false
}

func StringArg(args map[string]interface{}, name string) (string, bool) {
	v, ok := args[name].(string)
	return v, ok
}
