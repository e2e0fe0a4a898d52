// Package stitch composes independently owned GraphQL backends into one graph.
//
// Each backend is imported as a sub-graph (pkg/subgraph). Its types and root
// fields are renamed by a namespace rule (pkg/namespace) so that no two graphs
// collide. Extension units (pkg/extension) graft fields of one graph onto the
// types of another. Their resolvers declare the parent fields they depend on
// and delegate nested operations to the owning graph (pkg/delegate).
// List-valued joins that may fail per element are reconciled with
// pkg/reconcile.
//
// The composer (pkg/compose) merges the local graph, the sub-graphs and the
// extensions into one executable graph once at boot:
//
//	merged, err := compose.Compose(ctx, local, descriptors, registrations)
//	if err != nil {
//		// collisions and invalid extensions are fatal
//	}
//	response := merged.Execute(ctx, &graphql.Request{Query: "{ me { orders { id } } }"})
//
// The gateway binary in cmd/stitch serves the merged graph over HTTP.
package stitch
