package graphql

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
)

var (
	ErrEmptyRequest = errors.New("the provided request is empty")
	ErrEmptyQuery   = errors.New("the provided request has no query")
)

// Request is the GraphQL over HTTP request body. It is used for client requests
// to the gateway and for nested operations sent to sub-graphs.
type Request struct {
	OperationName string          `json:"operationName,omitempty"`
	Variables     json.RawMessage `json:"variables,omitempty"`
	Query         string          `json:"query"`
}

func UnmarshalRequest(reader io.Reader, request *Request) error {
	requestBytes, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	if len(bytes.TrimSpace(requestBytes)) == 0 {
		return ErrEmptyRequest
	}

	if err := json.Unmarshal(requestBytes, request); err != nil {
		return err
	}

	if request.Query == "" {
		return ErrEmptyQuery
	}

	return nil
}

// VariableValues decodes the raw variables of the request.
// A missing or null variables object yields an empty map.
func (r *Request) VariableValues() (map[string]interface{}, error) {
	variables := map[string]interface{}{}
	raw := bytes.TrimSpace(r.Variables)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return variables, nil
	}
	if err := json.Unmarshal(raw, &variables); err != nil {
		return nil, err
	}
	return variables, nil
}

func (r *Request) Marshal() ([]byte, error) {
	return json.Marshal(r)
}
