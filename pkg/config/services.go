package config

import (
	"context"
	"os"
	"sort"

	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"

	"github.com/wundergraph/graphql-stitch/pkg/extension"
	"github.com/wundergraph/graphql-stitch/pkg/integrations/causality"
	"github.com/wundergraph/graphql-stitch/pkg/integrations/exchange"
	"github.com/wundergraph/graphql-stitch/pkg/namespace"
	"github.com/wundergraph/graphql-stitch/pkg/subgraph"
	"github.com/wundergraph/graphql-stitch/pkg/transport/httpclient"
)

type integration struct {
	prefix       string
	registration func(service string) extension.Registration
}

var integrations = map[string]integration{
	exchange.Name:  {prefix: exchange.Prefix, registration: exchange.Registration},
	causality.Name: {prefix: causality.Prefix, registration: causality.Registration},
}

// The extension SDL of an integration names public types, so the service
// must use the prefix the integration was written against.
func validateIntegration(service Service) error {
	if service.Integration == "" {
		return nil
	}
	known, ok := integrations[service.Integration]
	if !ok {
		return errors.Errorf("service %s uses unknown integration %s", service.Name, service.Integration)
	}
	if service.Prefix != known.prefix {
		return errors.Errorf("service %s: integration %s needs prefix %s, got %q", service.Name, service.Integration, known.prefix, service.Prefix)
	}
	return nil
}

// Descriptor builds the sub-graph descriptor of s with an HTTP transport.
func (s Service) Descriptor(logger log.Logger) subgraph.Descriptor {
	opts := []httpclient.Option{
		httpclient.WithTimeout(s.Timeout),
		httpclient.WithLogger(logger),
	}
	keys := make([]string, 0, len(s.Headers))
	for key := range s.Headers {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		opts = append(opts, httpclient.WithHeader(key, s.Headers[key]))
	}

	descriptor := subgraph.Descriptor{
		Name:      s.Name,
		Transport: httpclient.New(s.URL, opts...),
		Rule:      namespace.Prefix(s.Prefix),
		Denylist:  s.Denylist,
	}
	if s.SchemaFile != "" {
		schemaFile := s.SchemaFile
		descriptor.Loader = func(ctx context.Context) (string, error) {
			data, err := os.ReadFile(schemaFile)
			if err != nil {
				return "", errors.Wrapf(err, "read schema of %s", s.Name)
			}
			return string(data), nil
		}
	}
	return descriptor
}

func (c *Config) Descriptors(logger log.Logger) []subgraph.Descriptor {
	out := make([]subgraph.Descriptor, 0, len(c.Services))
	for _, service := range c.Services {
		out = append(out, service.Descriptor(logger))
	}
	return out
}

// Registrations returns the extension units of the configured integrations in
// service order. Validate must have succeeded.
func (c *Config) Registrations() []extension.Registration {
	var out []extension.Registration
	for _, service := range c.Services {
		if known, ok := integrations[service.Integration]; ok {
			out = append(out, known.registration(service.Name))
		}
	}
	return out
}
