// Package delegate issues nested operations against another graph from
// within a resolver.
package delegate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sort"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
)

// Target is a graph operations can be delegated to. Names passed to and
// returned from a target are public names, Schema is the target's own
// private schema.
type Target interface {
	Name() string
	Schema() *ast.Schema
	PrivateType(public string) string
	PublicType(private string) string
	// RootField maps a public root field to the target's field. Hidden root
	// fields are still mapped.
	RootField(operation ast.Operation, public string) (string, bool)
	Do(ctx context.Context, request *graphql.Request) ([]byte, error)
}

// Request describes one delegation. It is built and consumed by a single
// resolver call.
type Request struct {
	Target    Target
	Operation ast.Operation
	// FieldName is the public root field of Target.
	FieldName string
	Args      map[string]interface{}
	// Info is the field being resolved. Its sub-selection is forwarded.
	Info *graph.ResolveInfo
	// Require adds a selection on the field's return type the resolver
	// itself needs, e.g. "edges { node { id } }". Its top level fields are
	// fetched under dependency aliases, read them with graph.Field.
	Require string
}

// Result is the outcome of a delegation. Errors are relative to the
// delegating field and have not been reported yet.
type Result struct {
	Data   interface{}
	Errors gqlerror.List
}

// Report attaches the errors of r below the field described by info.
func (r Result) Report(info *graph.ResolveInfo) {
	for _, err := range r.Errors {
		info.ReportError(err)
	}
}

// Delegate executes req against its target and returns the value of the root
// field. Target errors on a null result are returned, errors next to partial
// data are reported below the current field.
func Delegate(ctx context.Context, req Request) (interface{}, error) {
	result, err := Execute(ctx, req)
	if req.Info != nil {
		result.Report(req.Info)
	}
	if err != nil {
		return nil, err
	}
	return result.Data, nil
}

// Execute is Delegate without reporting. Callers that reshape the data must
// adjust the error paths before reporting them.
func Execute(ctx context.Context, req Request) (Result, error) {
	if req.Target == nil {
		return Result{}, errors.New("delegate: no target")
	}
	if req.Info == nil {
		return Result{}, errors.Errorf("delegate to %s: no resolve info", req.Target.Name())
	}
	if req.Operation == "" {
		req.Operation = ast.Query
	}

	operation, variables, err := build(req)
	if err != nil {
		return Result{}, errors.Wrapf(err, "delegate to %s", req.Target.Name())
	}

	query := printOperation(operation)
	variablesJSON, err := json.Marshal(variables)
	if err != nil {
		return Result{}, errors.Wrapf(err, "delegate to %s: marshal variables", req.Target.Name())
	}

	logger := req.Info.Executable.Logger()
	logger.Debug("delegate.Execute",
		log.String("target", req.Target.Name()),
		log.String("field", req.FieldName),
		log.String("query", query),
	)

	response, err := req.Target.Do(ctx, &graphql.Request{
		Query:     query,
		Variables: variablesJSON,
	})
	if err != nil {
		return Result{}, errors.Wrapf(err, "delegate to %s", req.Target.Name())
	}

	return decodeResponse(req, response)
}

func printOperation(operation *ast.OperationDefinition) string {
	buf := &bytes.Buffer{}
	formatter.NewFormatter(buf, formatter.WithIndent("  ")).FormatQueryDocument(&ast.QueryDocument{
		Operations: ast.OperationList{operation},
	})
	return buf.String()
}

func build(req Request) (*ast.OperationDefinition, map[string]interface{}, error) {
	target := req.Target
	root := graph.RootType(target.Schema(), req.Operation)
	if root == nil {
		return nil, nil, errors.Errorf("%s has no %s root", target.Name(), req.Operation)
	}
	fieldName, ok := target.RootField(req.Operation, req.FieldName)
	if !ok {
		return nil, nil, errors.Errorf("unknown %s field %s", req.Operation, req.FieldName)
	}
	fieldDef := root.Fields.ForName(fieldName)
	if fieldDef == nil {
		return nil, nil, errors.Errorf("unknown %s field %s", req.Operation, fieldName)
	}

	b := &builder{
		target:    target,
		source:    req.Info.Executable.Schema(),
		info:      req.Info,
		variables: map[string]interface{}{},
		forwarded: map[string]bool{},
	}

	field := &ast.Field{
		Alias: rootAlias(req.Info),
		Name:  fieldName,
	}

	names := make([]string, 0, len(req.Args))
	for name := range req.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	for i, name := range names {
		argDef := fieldDef.Arguments.ForName(name)
		if argDef == nil {
			return nil, nil, errors.Errorf("unknown argument %s on %s.%s", name, root.Name, fieldName)
		}
		variable := fmt.Sprintf("_a%d", i)
		b.definitions = append(b.definitions, &ast.VariableDefinition{
			Variable: variable,
			Type:     graph.CopyType(argDef.Type, nil),
		})
		b.variables[variable] = graph.ToPlain(req.Args[name])
		field.Arguments = append(field.Arguments, &ast.Argument{
			Name:  name,
			Value: &ast.Value{Kind: ast.Variable, Raw: variable},
		})
	}

	returnType := target.Schema().Types[fieldDef.Type.Name()]
	if returnType != nil && returnType.IsCompositeType() {
		public := b.source.Types[req.Info.ReturnType.Name()]
		if public == nil {
			return nil, nil, errors.Errorf("unknown type %s", req.Info.ReturnType.Name())
		}

		selectionSet, err := b.translate(req.Info.SelectionSet(), public, returnType, nil)
		if err != nil {
			return nil, nil, err
		}
		if req.Require != "" {
			required, err := graph.ParseDependency(b.source, public.Name, req.Require)
			if err != nil {
				return nil, nil, errors.Wrap(err, "require")
			}
			extra, err := b.translate(required.SelectionSet, public, returnType, nil)
			if err != nil {
				return nil, nil, err
			}
			selectionSet = append(selectionSet, aliasDependencies(extra)...)
		}
		field.SelectionSet = b.complete(selectionSet, returnType)
	}

	return &ast.OperationDefinition{
		Operation:           req.Operation,
		VariableDefinitions: b.definitions,
		SelectionSet:        ast.SelectionSet{field},
	}, b.variables, nil
}

func rootAlias(info *graph.ResolveInfo) string {
	if info.ResponseKey != "" {
		return info.ResponseKey
	}
	return info.FieldName
}
