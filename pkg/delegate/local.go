package delegate

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
)

type local struct {
	name       string
	executable *graph.Executable
}

// Local returns a target that executes in process against executable. Its
// public and private names are the same.
func Local(name string, executable *graph.Executable) Target {
	return &local{name: name, executable: executable}
}

func (l *local) Name() string {
	return l.name
}

func (l *local) Schema() *ast.Schema {
	return l.executable.Schema()
}

func (l *local) PrivateType(public string) string {
	return public
}

func (l *local) PublicType(private string) string {
	return private
}

func (l *local) RootField(operation ast.Operation, public string) (string, bool) {
	root := graph.RootType(l.executable.Schema(), operation)
	if root == nil || root.Fields.ForName(public) == nil {
		return "", false
	}
	return public, true
}

func (l *local) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	return l.executable.Do(ctx, request)
}
