package graphql

import (
	"encoding/json"
	"io"

	"github.com/vektah/gqlparser/v2/gqlerror"
)

type Response struct {
	Errors gqlerror.List   `json:"errors,omitempty"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// ErrorResponse builds a response without a data entry, used for requests that
// fail before execution starts.
func ErrorResponse(errs ...*gqlerror.Error) *Response {
	return &Response{Errors: errs}
}

func (r *Response) HasErrors() bool {
	return len(r.Errors) > 0
}

func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func (r *Response) WriteResponse(writer io.Writer) (n int, err error) {
	responseBytes, err := r.Marshal()
	if err != nil {
		return 0, err
	}

	return writer.Write(responseBytes)
}
