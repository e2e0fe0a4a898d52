// Package extension declares fields that graft the data of one graph onto the
// types of another.
package extension

import (
	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
)

// Unit is the SDL and the resolvers one integration adds to the merged graph.
// The SDL may extend existing object types with new fields and declare new
// types. Resolvers may name a dependency fragment on their type.
type Unit struct {
	SDL       string
	Resolvers graph.Resolvers
}

// Factory builds a unit. proxy is the sub-graph the registration names, it is
// nil for registrations without a service.
type Factory func(local *graph.Executable, proxy *subgraph.Proxy) (*Unit, error)

type Registration struct {
	// Name identifies the unit in composition errors. It defaults to Service.
	Name    string
	Service string
	Factory Factory
}

func (r Registration) name() string {
	switch {
	case r.Name != "":
		return r.Name
	case r.Service != "":
		return r.Service
	}
	return "extension"
}

// Instantiate runs the factory and parses the unit it returns.
func (r Registration) Instantiate(local *graph.Executable, proxy *subgraph.Proxy) (*Table, error) {
	if r.Factory == nil {
		return nil, errors.Errorf("%s: no factory", r.name())
	}
	unit, err := r.Factory(local, proxy)
	if err != nil {
		return nil, errors.Wrapf(err, "%s", r.name())
	}
	if unit == nil {
		return nil, errors.Errorf("%s: factory returned no unit", r.name())
	}
	return Parse(r.name(), unit)
}
