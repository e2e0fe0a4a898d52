package graph

import (
	"context"
	"encoding/json"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/cespare/xxhash/v2"
	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
)

var nullData = json.RawMessage("null")

type cachedDocument struct {
	query string
	doc   *ast.QueryDocument
}

// Execute runs request against the executable. Parse, validation and variable
// errors produce a response without data. Field errors are collected next to
// the partial data.
func (e *Executable) Execute(ctx context.Context, request *graphql.Request) *graphql.Response {
	doc, errs := e.document(request.Query)
	if len(errs) > 0 {
		return graphql.ErrorResponse(errs...)
	}

	operation, operationErr := selectOperation(doc, request.OperationName)
	if operationErr != nil {
		return graphql.ErrorResponse(operationErr)
	}
	if operation.Operation == ast.Subscription {
		return graphql.ErrorResponse(gqlerror.Errorf("subscriptions are not supported"))
	}

	rawVariables, err := request.VariableValues()
	if err != nil {
		return graphql.ErrorResponse(gqlerror.Errorf("invalid variables: %s", err))
	}
	variables, err := validator.VariableValues(e.schema, operation, rawVariables)
	if err != nil {
		return graphql.ErrorResponse(gqlerror.WrapIfUnwrapped(err))
	}

	x := &execution{
		executable: e,
		doc:        doc,
		operation:  operation,
		variables:  variables,
	}
	data := x.run(ctx)

	return &graphql.Response{
		Data:   data,
		Errors: x.sortedErrors(),
	}
}

// Do executes request and returns the marshaled response. It lets an
// executable serve as an in-process transport.
func (e *Executable) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	return e.Execute(ctx, request).Marshal()
}

func (e *Executable) document(query string) (*ast.QueryDocument, gqlerror.List) {
	key := xxhash.Sum64String(query)
	if e.documents != nil {
		if cached, ok := e.documents.Get(key); ok {
			if entry := cached.(*cachedDocument); entry.query == query {
				return entry.doc, nil
			}
		}
	}

	doc, err := parser.ParseQuery(&ast.Source{Name: e.name, Input: query})
	if err != nil {
		return nil, gqlerror.List{gqlerror.WrapIfUnwrapped(err)}
	}
	if errs := validator.ValidateWithRules(e.schema, doc, nil); len(errs) > 0 {
		return nil, errs
	}

	if e.documents != nil {
		e.documents.Add(key, &cachedDocument{query: query, doc: doc})
	}
	return doc, nil
}

func selectOperation(doc *ast.QueryDocument, operationName string) (*ast.OperationDefinition, *gqlerror.Error) {
	if operationName == "" {
		if len(doc.Operations) != 1 {
			return nil, gqlerror.Errorf("operation name is required when the document does not contain exactly one operation")
		}
		return doc.Operations[0], nil
	}
	operation := doc.Operations.ForName(operationName)
	if operation == nil {
		return nil, gqlerror.Errorf("unknown operation named %q", operationName)
	}
	return operation, nil
}

type execution struct {
	executable *Executable
	doc        *ast.QueryDocument
	operation  *ast.OperationDefinition
	variables  map[string]interface{}

	mu   sync.Mutex
	errs gqlerror.List
}

type collectedField struct {
	key    string
	fields []*ast.Field
}

func (x *execution) run(ctx context.Context) json.RawMessage {
	root := RootType(x.executable.schema, x.operation.Operation)
	if root == nil {
		x.addError(gqlerror.Errorf("schema does not support %s operations", x.operation.Operation))
		return nullData
	}

	data, ok := x.executeSelectionSet(ctx, root, nil, x.operation.SelectionSet, nil, x.operation.Operation == ast.Mutation)
	if !ok {
		return nullData
	}

	out, err := json.Marshal(data)
	if err != nil {
		x.executable.logger.Error("graph.execution.run: unable to marshal response", log.Error(err))
		x.addError(gqlerror.Errorf("unable to marshal response"))
		return nullData
	}
	return out
}

func (x *execution) addError(err *gqlerror.Error) {
	x.mu.Lock()
	x.errs = append(x.errs, err)
	x.mu.Unlock()
}

func (x *execution) hasErrors() bool {
	x.mu.Lock()
	defer x.mu.Unlock()
	return len(x.errs) > 0
}

func (x *execution) sortedErrors() gqlerror.List {
	x.mu.Lock()
	defer x.mu.Unlock()
	sort.SliceStable(x.errs, func(i, j int) bool {
		return x.errs[i].Path.String() < x.errs[j].Path.String()
	})
	return x.errs
}

func (x *execution) executeSelectionSet(ctx context.Context, objectType *ast.Definition, parent interface{}, selectionSet ast.SelectionSet, path ast.Path, serial bool) (*orderedObject, bool) {
	fields := x.collectFields(objectType, selectionSet)
	out := newOrderedObject(len(fields))
	valid := make([]bool, len(fields))

	resolve := func(i int) {
		out.keys[i] = fields[i].key
		out.values[i], valid[i] = x.resolveField(ctx, objectType, parent, fields[i], path)
	}

	if serial || len(fields) < 2 {
		for i := range fields {
			resolve(i)
		}
	} else {
		wg := &sync.WaitGroup{}
		wg.Add(len(fields))
		for i := range fields {
			go func(i int) {
				defer wg.Done()
				resolve(i)
			}(i)
		}
		wg.Wait()
	}

	for _, ok := range valid {
		if !ok {
			return nil, false
		}
	}
	return out, true
}

func (x *execution) collectFields(objectType *ast.Definition, selectionSet ast.SelectionSet) []*collectedField {
	var out []*collectedField
	index := map[string]*collectedField{}
	visited := map[string]bool{}

	var collect func(selectionSet ast.SelectionSet)
	collect = func(selectionSet ast.SelectionSet) {
		for _, selection := range selectionSet {
			switch selection := selection.(type) {
			case *ast.Field:
				if !x.shouldInclude(selection.Directives) {
					continue
				}
				key := responseKey(selection)
				if field, ok := index[key]; ok {
					field.fields = append(field.fields, selection)
					continue
				}
				field := &collectedField{key: key, fields: []*ast.Field{selection}}
				index[key] = field
				out = append(out, field)
			case *ast.InlineFragment:
				if !x.shouldInclude(selection.Directives) || !x.typeConditionMatches(selection.TypeCondition, objectType) {
					continue
				}
				collect(selection.SelectionSet)
			case *ast.FragmentSpread:
				if visited[selection.Name] || !x.shouldInclude(selection.Directives) {
					continue
				}
				visited[selection.Name] = true
				if x.doc == nil {
					continue
				}
				fragment := x.doc.Fragments.ForName(selection.Name)
				if fragment == nil || !x.typeConditionMatches(fragment.TypeCondition, objectType) {
					continue
				}
				collect(fragment.SelectionSet)
			}
		}
	}
	collect(selectionSet)

	return out
}

func responseKey(field *ast.Field) string {
	if field.Alias != "" {
		return field.Alias
	}
	return field.Name
}

func (x *execution) shouldInclude(directives ast.DirectiveList) bool {
	if skip := directives.ForName("skip"); skip != nil && x.directiveCondition(skip) {
		return false
	}
	if include := directives.ForName("include"); include != nil && !x.directiveCondition(include) {
		return false
	}
	return true
}

func (x *execution) directiveCondition(directive *ast.Directive) bool {
	arg := directive.Arguments.ForName("if")
	if arg == nil {
		return false
	}
	value, err := arg.Value.Value(x.variables)
	if err != nil {
		return false
	}
	condition, _ := value.(bool)
	return condition
}

func (x *execution) typeConditionMatches(typeCondition string, objectType *ast.Definition) bool {
	if typeCondition == "" || typeCondition == objectType.Name {
		return true
	}
	condition := x.executable.schema.Types[typeCondition]
	if condition == nil || !condition.IsAbstractType() {
		return false
	}
	for _, possible := range x.executable.schema.GetPossibleTypes(condition) {
		if possible.Name == objectType.Name {
			return true
		}
	}
	return false
}

func (x *execution) resolveField(ctx context.Context, objectType *ast.Definition, parent interface{}, field *collectedField, path ast.Path) (interface{}, bool) {
	node := field.fields[0]
	fieldPath := appendPath(path, ast.PathName(field.key))

	if node.Name == "__typename" {
		return objectType.Name, true
	}

	def := objectType.Fields.ForName(node.Name)
	if def == nil {
		x.addError(locatedError(errors.Errorf("cannot query field %q on type %q", node.Name, objectType.Name), field.fields, fieldPath))
		return nil, true
	}

	info := &ResolveInfo{
		FieldName:   def.Name,
		ResponseKey: field.key,
		ParentType:  objectType,
		ReturnType:  def.Type,
		FieldNodes:  field.fields,
		Path:        fieldPath,
		Operation:   x.operation,
		Variables:   x.variables,
		Executable:  x.executable,
		execution:   x,
	}
	if x.doc != nil {
		info.Fragments = x.doc.Fragments
	}

	value, err := x.resolveValue(ctx, objectType, parent, def, field, path, info)
	if err != nil {
		x.addError(locatedError(err, field.fields, fieldPath))
		return nil, !def.Type.NonNull
	}

	return x.completeValue(ctx, def.Type, field.fields, fieldPath, value)
}

func (x *execution) resolveValue(ctx context.Context, objectType *ast.Definition, parent interface{}, def *ast.FieldDefinition, field *collectedField, parentPath ast.Path, info *ResolveInfo) (value interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			x.executable.logger.Error("graph.execution.resolveValue: resolver panicked",
				log.String("field", objectType.Name+"."+def.Name),
				log.Any("panic", r),
			)
			value, err = nil, errors.Errorf("internal error resolving %s.%s", objectType.Name, def.Name)
		}
	}()

	if object, ok := parent.(ResponseObject); ok {
		if v, ok := object[field.key]; ok {
			return v, nil
		}
	}

	args, err := argumentValues(def.Arguments, field.fields[0].Arguments, x.variables)
	if err != nil {
		return nil, err
	}

	schema := x.executable.schema
	if strings.HasPrefix(objectType.Name, "__") {
		return resolveIntrospection(schema, objectType.Name, def.Name, parent, args), nil
	}
	if objectType == schema.Query {
		switch def.Name {
		case "__schema":
			return schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if named := schema.Types[name]; named != nil {
				return &typeRef{def: named}, nil
			}
			return nil, nil
		}
	}

	resolver := x.executable.resolvers.Get(objectType.Name, def.Name)
	if resolver == nil {
		return defaultResolve(parent, field.key, def.Name), nil
	}

	source := parent
	if dependency := x.executable.Dependency(objectType.Name, def.Name); dependency != nil {
		satisfied, err := x.satisfy(ctx, objectType, parent, dependency, parentPath)
		if err != nil {
			return nil, err
		}
		source = satisfied
	}

	return resolver.Resolve(ctx, source, args, info)
}

// satisfy returns a copy of parent that carries every field of dependency.
// Fields the parent lacks are resolved on objectType like client fields.
func (x *execution) satisfy(ctx context.Context, objectType *ast.Definition, parent interface{}, dependency *Dependency, path ast.Path) (map[string]interface{}, error) {
	source := map[string]interface{}{}
	if object, ok := Object(parent); ok {
		for k, v := range object {
			source[k] = v
		}
	}

	scoped := &execution{
		executable: x.executable,
		doc:        x.doc,
		operation:  x.operation,
		variables:  x.variables,
	}
	for _, field := range scoped.collectFields(objectType, dependency.SelectionSet) {
		if value, ok := Field(parent, field.key); ok {
			source[field.key] = ToPlain(value)
			continue
		}

		value, _ := scoped.resolveField(ctx, objectType, parent, field, path)
		if scoped.hasErrors() {
			return nil, errors.Errorf("unable to resolve dependency %s.%s: %s", objectType.Name, field.fields[0].Name, scoped.errs[0].Message)
		}
		source[field.key] = ToPlain(value)
	}

	return source, nil
}

func defaultResolve(parent interface{}, key, name string) interface{} {
	switch parent := parent.(type) {
	case ResponseObject:
		if v, ok := parent[key]; ok {
			return v
		}
		return parent[name]
	case map[string]interface{}:
		if v, ok := parent[name]; ok {
			return v
		}
		return parent[key]
	}
	return nil
}

func argumentValues(defs ast.ArgumentDefinitionList, args ast.ArgumentList, variables map[string]interface{}) (map[string]interface{}, error) {
	values := map[string]interface{}{}
	for _, def := range defs {
		if arg := args.ForName(def.Name); arg != nil {
			if arg.Value.Kind != ast.Variable {
				value, err := arg.Value.Value(variables)
				if err != nil {
					return nil, errors.Wrapf(err, "argument %s", def.Name)
				}
				values[def.Name] = value
				continue
			}
			if value, ok := variables[arg.Value.Raw]; ok {
				values[def.Name] = value
				continue
			}
		}
		if def.DefaultValue != nil {
			value, err := def.DefaultValue.Value(variables)
			if err != nil {
				return nil, errors.Wrapf(err, "default value of argument %s", def.Name)
			}
			values[def.Name] = value
		}
	}
	return values, nil
}

func (x *execution) completeValue(ctx context.Context, typ *ast.Type, fields []*ast.Field, path ast.Path, value interface{}) (interface{}, bool) {
	if !typ.NonNull {
		out, ok := x.completeNullable(ctx, typ, fields, path, value)
		if !ok {
			return nil, true
		}
		return out, true
	}

	nullable := *typ
	nullable.NonNull = false
	out, ok := x.completeNullable(ctx, &nullable, fields, path, value)
	if !ok {
		return nil, false
	}
	if out == nil {
		err := gqlerror.ErrorPathf(path, "Cannot return null for non-nullable field %s.", fields[0].Name)
		err.Locations = locations(fields)
		x.addError(err)
		return nil, false
	}
	return out, true
}

func (x *execution) completeNullable(ctx context.Context, typ *ast.Type, fields []*ast.Field, path ast.Path, value interface{}) (interface{}, bool) {
	if value == nil {
		return nil, true
	}
	if typ.Elem != nil {
		return x.completeList(ctx, typ, fields, path, value)
	}

	def := x.executable.schema.Types[typ.NamedType]
	switch {
	case def == nil:
		x.addError(locatedError(errors.Errorf("unknown type %s", typ.NamedType), fields, path))
		return nil, false
	case def.IsLeafType():
		out, err := serializeLeaf(def, value)
		if err != nil {
			x.addError(locatedError(err, fields, path))
			return nil, false
		}
		return out, true
	case def.IsAbstractType():
		objectType, err := x.resolveAbstractType(def, value)
		if err != nil {
			x.addError(locatedError(err, fields, path))
			return nil, false
		}
		return x.completeObject(ctx, objectType, fields, path, value)
	default:
		return x.completeObject(ctx, def, fields, path, value)
	}
}

func (x *execution) completeObject(ctx context.Context, objectType *ast.Definition, fields []*ast.Field, path ast.Path, value interface{}) (interface{}, bool) {
	if _, ok := value.(*typeRef); !ok {
		if _, ok := Object(value); !ok && !strings.HasPrefix(objectType.Name, "__") {
			x.addError(locatedError(errors.Errorf("expected an object of type %s, got %T", objectType.Name, value), fields, path))
			return nil, false
		}
	}

	out, ok := x.executeSelectionSet(ctx, objectType, value, mergeSelectionSets(fields), path, false)
	if !ok {
		return nil, false
	}
	return out, true
}

func (x *execution) completeList(ctx context.Context, typ *ast.Type, fields []*ast.Field, path ast.Path, value interface{}) (interface{}, bool) {
	items, ok := listItems(value)
	if !ok {
		x.addError(locatedError(errors.Errorf("expected a list, got %T", value), fields, path))
		return nil, false
	}

	out := make([]interface{}, len(items))
	valid := make([]bool, len(items))
	complete := func(i int) {
		out[i], valid[i] = x.completeValue(ctx, typ.Elem, fields, appendPath(path, ast.PathIndex(i)), items[i])
	}

	elem := x.executable.schema.Types[typ.Elem.Name()]
	if len(items) > 1 && elem != nil && elem.IsCompositeType() {
		wg := &sync.WaitGroup{}
		wg.Add(len(items))
		for i := range items {
			go func(i int) {
				defer wg.Done()
				complete(i)
			}(i)
		}
		wg.Wait()
	} else {
		for i := range items {
			complete(i)
		}
	}

	for _, ok := range valid {
		if !ok {
			return nil, false
		}
	}
	return out, true
}

func listItems(value interface{}) ([]interface{}, bool) {
	if items, ok := value.([]interface{}); ok {
		return items, true
	}
	rv := reflect.ValueOf(value)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	items := make([]interface{}, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	return items, true
}

func (x *execution) resolveAbstractType(def *ast.Definition, value interface{}) (*ast.Definition, error) {
	var name string
	if resolve := x.executable.typeResolvers[def.Name]; resolve != nil {
		name = resolve(value)
	}
	if name == "" {
		name = String(value, "__typename")
	}
	if name == "" {
		return nil, errors.Errorf("abstract type %s must resolve to an object type at runtime", def.Name)
	}

	for _, possible := range x.executable.schema.GetPossibleTypes(def) {
		if possible.Name == name && possible.Kind == ast.Object {
			return possible, nil
		}
	}
	return nil, errors.Errorf("runtime object type %s is not a possible type for %s", name, def.Name)
}

func appendPath(path ast.Path, elem ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

func locatedError(err error, fields []*ast.Field, path ast.Path) *gqlerror.Error {
	var located *gqlerror.Error
	if errors.As(err, &located) {
		out := *located
		if out.Path == nil {
			out.Path = path
		}
		if len(out.Locations) == 0 {
			out.Locations = locations(fields)
		}
		return &out
	}
	return &gqlerror.Error{
		Err:       err,
		Message:   err.Error(),
		Path:      path,
		Locations: locations(fields),
	}
}

func locations(fields []*ast.Field) []gqlerror.Location {
	var out []gqlerror.Location
	for _, field := range fields {
		if field.Position == nil {
			continue
		}
		out = append(out, gqlerror.Location{Line: field.Position.Line, Column: field.Position.Column})
	}
	return out
}
