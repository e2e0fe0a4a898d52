// Package httpclient is the GraphQL over HTTP transport used to reach sub-graph
// backends.
package httpclient

import (
	"bytes"
	"compress/flate"
	"compress/gzip"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/buger/jsonparser"
	log "github.com/jensneuse/abstractlogger"
	"github.com/pkg/errors"
	"github.com/tidwall/sjson"

	"github.com/wundergraph/graphql-stitch/pkg/graphql"
	"github.com/wundergraph/graphql-stitch/pkg/requestcontext"
)

const (
	ContentEncodingHeader = "Content-Encoding"
	AcceptEncodingHeader  = "Accept-Encoding"
	AcceptHeader          = "Accept"
	ContentTypeHeader     = "Content-Type"
	RequestIDHeader       = "X-Request-Id"
	AccessTokenHeader     = "X-Access-Token"

	EncodingGzip    = "gzip"
	EncodingDeflate = "deflate"
	EncodingBrotli  = "br"

	ContentTypeJSON = "application/json"
)

var DefaultNetHttpClient = &http.Client{
	Transport: &http.Transport{
		MaxIdleConnsPerHost: 1024,
	},
}

// Client sends GraphQL requests to one backend URL. It implements
// subgraph.Transport.
type Client struct {
	url     string
	client  *http.Client
	timeout time.Duration
	headers http.Header
	logger  log.Logger
}

type Option func(c *Client)

// WithTimeout bounds every request, zero disables the bound.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		c.timeout = timeout
	}
}

func WithHeader(key, value string) Option {
	return func(c *Client) {
		c.headers.Add(key, value)
	}
}

func WithLogger(logger log.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func New(url string, opts ...Option) *Client {
	c := &Client{
		url:     url,
		client:  DefaultNetHttpClient,
		timeout: 10 * time.Second,
		headers: http.Header{},
		logger:  log.NoopLogger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) URL() string {
	return c.url
}

// Do posts request to the backend and returns the decoded response body.
// Responses with a non 2xx status are errors unless they carry GraphQL errors.
func (c *Client) Do(ctx context.Context, request *graphql.Request) ([]byte, error) {
	body, err := requestBody(request)
	if err != nil {
		return nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	httpRequest, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Wrapf(err, "create request to %s", c.url)
	}

	for key, values := range c.headers {
		for _, value := range values {
			httpRequest.Header.Add(key, value)
		}
	}
	if rc, ok := requestcontext.FromContext(ctx); ok {
		if rc.TraceID != "" {
			httpRequest.Header.Set(RequestIDHeader, rc.TraceID)
		}
		if rc.AccessToken != "" {
			httpRequest.Header.Set(AccessTokenHeader, rc.AccessToken)
		}
	}
	httpRequest.Header.Set(AcceptHeader, ContentTypeJSON)
	httpRequest.Header.Set(ContentTypeHeader, ContentTypeJSON)
	httpRequest.Header.Set(AcceptEncodingHeader, EncodingGzip)
	httpRequest.Header.Add(AcceptEncodingHeader, EncodingDeflate)
	httpRequest.Header.Add(AcceptEncodingHeader, EncodingBrotli)

	response, err := c.client.Do(httpRequest)
	if err != nil {
		return nil, errors.Wrapf(err, "request to %s", c.url)
	}
	defer response.Body.Close()

	reader, err := respBodyReader(response)
	if err != nil {
		return nil, errors.Wrapf(err, "decode response of %s", c.url)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "read response of %s", c.url)
	}

	if response.StatusCode < 200 || response.StatusCode > 299 {
		if _, _, _, err := jsonparser.Get(data, "errors"); err == nil {
			return data, nil
		}
		c.logger.Debug("httpclient.Client.Do: unexpected status",
			log.String("url", c.url),
			log.Int("status", response.StatusCode),
		)
		return nil, errors.Errorf("%s responded with status %d", c.url, response.StatusCode)
	}

	return data, nil
}

func requestBody(request *graphql.Request) ([]byte, error) {
	body, err := sjson.SetBytes([]byte(`{}`), "query", request.Query)
	if err != nil {
		return nil, errors.Wrap(err, "set query")
	}
	if request.OperationName != "" {
		if body, err = sjson.SetBytes(body, "operationName", request.OperationName); err != nil {
			return nil, errors.Wrap(err, "set operation name")
		}
	}
	if variables := bytes.TrimSpace(request.Variables); len(variables) > 0 && !bytes.Equal(variables, []byte("null")) {
		if body, err = sjson.SetRawBytes(body, "variables", variables); err != nil {
			return nil, errors.Wrap(err, "set variables")
		}
	}
	return body, nil
}

func respBodyReader(resp *http.Response) (io.ReadCloser, error) {
	switch resp.Header.Get(ContentEncodingHeader) {
	case EncodingGzip:
		return gzip.NewReader(resp.Body)
	case EncodingDeflate:
		return flate.NewReader(resp.Body), nil
	case EncodingBrotli:
		return io.NopCloser(brotli.NewReader(resp.Body)), nil
	default:
		return io.NopCloser(resp.Body), nil
	}
}
