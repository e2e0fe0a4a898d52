package compose

import (
	"bytes"
	"context"
	"sort"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

// MergedGraph is the result of a composition. It is read-only and shared by
// all requests.
type MergedGraph struct {
	executable  *graph.Executable
	proxies     []*subgraph.Proxy
	tables      []*extension.Table
	owners      map[string]string
	fingerprint uint64
}

func (m *MergedGraph) Executable() *graph.Executable {
	return m.executable
}

func (m *MergedGraph) Schema() *ast.Schema {
	return m.executable.Schema()
}

func (m *MergedGraph) Execute(ctx context.Context, request *graphql.Request) *graphql.Response {
	return m.executable.Execute(ctx, request)
}

// Extensions returns the names of the composed extension units.
func (m *MergedGraph) Extensions() []string {
	out := make([]string, 0, len(m.tables))
	for _, table := range m.tables {
		out = append(out, table.Unit)
	}
	return out
}

// Proxies returns the proxies in descriptor order.
func (m *MergedGraph) Proxies() []*subgraph.Proxy {
	return append([]*subgraph.Proxy(nil), m.proxies...)
}

func (m *MergedGraph) Proxy(service string) *subgraph.Proxy {
	for _, proxy := range m.proxies {
		if proxy.Name() == service {
			return proxy
		}
	}
	return nil
}

// Owner returns the graph or extension that declared a type ("Type") or a
// field ("Type.field").
func (m *MergedGraph) Owner(name string) string {
	return m.owners[name]
}

// Fingerprint hashes the type and field set of the merged schema. Two
// compositions of the same inputs have the same fingerprint.
func (m *MergedGraph) Fingerprint() uint64 {
	return m.fingerprint
}

// Shape returns the sorted field names of every non built-in type.
func (m *MergedGraph) Shape() map[string][]string {
	schema := m.Schema()
	shape := map[string][]string{}
	for name, def := range schema.Types {
		if def.BuiltIn {
			continue
		}
		fields := []string{}
		for _, field := range def.Fields {
			if !strings.HasPrefix(field.Name, "__") {
				fields = append(fields, field.Name)
			}
		}
		for _, value := range def.EnumValues {
			fields = append(fields, value.Name)
		}
		sort.Strings(fields)
		shape[name] = fields
	}
	return shape
}

// SDL prints the merged schema without built-in definitions.
func (m *MergedGraph) SDL() string {
	buf := &bytes.Buffer{}
	formatter.NewFormatter(buf, formatter.WithIndent("  ")).FormatSchema(m.Schema())
	return buf.String()
}

func fingerprint(schema *ast.Schema) uint64 {
	names := make([]string, 0, len(schema.Types))
	for name, def := range schema.Types {
		if !def.BuiltIn {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	digest := xxhash.New()
	for _, name := range names {
		def := schema.Types[name]
		_, _ = digest.WriteString(string(def.Kind) + " " + name + " " + strings.Join(def.Interfaces, "&") + strings.Join(def.Types, "|") + "\n")
		for _, field := range def.Fields {
			if strings.HasPrefix(field.Name, "__") {
				continue
			}
			_, _ = digest.WriteString(field.Name)
			for _, arg := range field.Arguments {
				_, _ = digest.WriteString(" " + arg.Name + ":" + arg.Type.String())
			}
			_, _ = digest.WriteString(" " + field.Type.String() + "\n")
		}
		for _, value := range def.EnumValues {
			_, _ = digest.WriteString(value.Name + "\n")
		}
	}
	return digest.Sum64()
}
