package config

import (
	"context"
	"testing"
	"time"

	log "github.com/jensneuse/abstractlogger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wundergraph/graphql-stitch/pkg/transport/httpclient"
)

func TestLoad(t *testing.T) {
	config, err := Load("testdata/gateway.yaml")
	require.NoError(t, err)
	require.NoError(t, config.Validate())

	assert.Equal(t, "127.0.0.1:8080", config.Listen)
	assert.Equal(t, defaultGraphQLPath, config.GraphQLPath)
	assert.Equal(t, defaultPlaygroundPath, config.PlaygroundPath)
	assert.Equal(t, 128, config.DocumentCacheSize)

	level, err := config.Level()
	require.NoError(t, err)
	assert.Equal(t, log.DebugLevel, level)

	require.Len(t, config.Services, 2)
	commerce := config.Services[0]
	assert.Equal(t, 3*time.Second, commerce.Timeout)
	assert.Equal(t, map[string]string{"X-Service": "gateway"}, commerce.Headers)
	assert.Equal(t, []string{"Query.internalOrders"}, commerce.Denylist)
	assert.Equal(t, defaultTimeout, config.Services[1].Timeout)

	t.Run("descriptors", func(t *testing.T) {
		descriptors := config.Descriptors(log.NoopLogger)
		require.Len(t, descriptors, 2)

		commerce := descriptors[0]
		assert.Equal(t, "commerce", commerce.Name)
		assert.Equal(t, []string{"Query.internalOrders"}, commerce.Denylist)
		assert.Equal(t, "Commerce", commerce.Rule.TypePrefix)

		client, ok := commerce.Transport.(*httpclient.Client)
		require.True(t, ok)
		assert.Equal(t, "http://commerce.internal/graphql", client.URL())

		require.NotNil(t, commerce.Loader)
		sdl, err := commerce.Loader(context.Background())
		require.NoError(t, err)
		assert.Contains(t, sdl, "internalOrders")

		assert.Nil(t, descriptors[1].Loader)
	})

	t.Run("registrations", func(t *testing.T) {
		registrations := config.Registrations()
		require.Len(t, registrations, 2)
		assert.Equal(t, "exchange", registrations[0].Name)
		assert.Equal(t, "commerce", registrations[0].Service)
		assert.Equal(t, "causality", registrations[1].Name)
		assert.Equal(t, "causality", registrations[1].Service)
	})
}

func TestParse(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		config, err := Parse([]byte(``))
		require.NoError(t, err)
		assert.Equal(t, Default(), config)
		assert.NoError(t, config.Validate())
	})

	t.Run("unknown keys", func(t *testing.T) {
		_, err := Parse([]byte("listen: :80\nport: 80\n"))
		assert.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load("testdata/missing.yaml")
		assert.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		expect string
	}{
		{
			name:   "unknown log level",
			yaml:   "log_level: loud",
			expect: `unknown log level "loud"`,
		},
		{
			name:   "relative graphql path",
			yaml:   "graphql_path: graphql",
			expect: `graphql_path "graphql" must start with /`,
		},
		{
			name:   "service without name",
			yaml:   "services:\n  - url: http://a",
			expect: "service 0 has no name",
		},
		{
			name:   "service without url",
			yaml:   "services:\n  - name: a",
			expect: "service a has no url",
		},
		{
			name:   "duplicate service",
			yaml:   "services:\n  - name: a\n    url: http://a\n  - name: a\n    url: http://b",
			expect: "service a is declared twice",
		},
		{
			name:   "unknown integration",
			yaml:   "services:\n  - name: a\n    url: http://a\n    integration: gravity",
			expect: "service a uses unknown integration gravity",
		},
		{
			name:   "integration with wrong prefix",
			yaml:   "services:\n  - name: a\n    url: http://a\n    integration: exchange\n    prefix: Orders",
			expect: `service a: integration exchange needs prefix Commerce, got "Orders"`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.EqualError(t, config.Validate(), tt.expect)
		})
	}
}

func TestConfig_Overlay(t *testing.T) {
	t.Setenv("STITCH_LISTEN", ":9000")
	t.Setenv("STITCH_LOG_LEVEL", "warn")

	config := Default()
	config.Fixtures = "fixtures.yaml"
	config.Overlay(NewViper())

	assert.Equal(t, ":9000", config.Listen)
	assert.Equal(t, "warn", config.LogLevel)
	assert.Equal(t, "fixtures.yaml", config.Fixtures)
	assert.Equal(t, defaultGraphQLPath, config.GraphQLPath)
}
