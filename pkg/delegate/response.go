package delegate

import (
	"encoding/json"

	"github.com/buger/jsonparser"
	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/gqlerror"

	"github.com/wundergraph/graphql-stitch/pkg/graph"
)

func decodeResponse(req Request, response []byte) (Result, error) {
	var errs gqlerror.List
	if raw, dataType, _, err := jsonparser.Get(response, "errors"); err == nil && dataType == jsonparser.Array {
		if err := json.Unmarshal(raw, &errs); err != nil {
			return Result{}, errors.Wrapf(err, "delegate to %s: decode errors", req.Target.Name())
		}
	}
	relocated := make(gqlerror.List, 0, len(errs))
	for _, err := range errs {
		relocated = append(relocated, relocate(err))
	}

	key := rootAlias(req.Info)
	raw, dataType, _, err := jsonparser.Get(response, "data", key)
	if err != nil && err != jsonparser.KeyPathNotFoundError {
		return Result{}, errors.Wrapf(err, "delegate to %s: decode data", req.Target.Name())
	}

	switch {
	case dataType == jsonparser.Null && len(relocated) == 0:
		return Result{}, nil
	case dataType == jsonparser.NotExist || dataType == jsonparser.Null:
		if len(relocated) > 0 {
			first := relocated[0]
			first.Path = nil
			return Result{Errors: relocated[1:]}, first
		}
		if _, dataType, _, _ := jsonparser.Get(response, "data"); dataType == jsonparser.NotExist {
			return Result{}, errors.Errorf("delegate to %s: response has neither data nor errors", req.Target.Name())
		}
		return Result{}, errors.Errorf("delegate to %s: response has no %s", req.Target.Name(), key)
	}

	value, err := decode(req.Target, raw, dataType)
	if err != nil {
		return Result{}, errors.Wrapf(err, "delegate to %s: decode data", req.Target.Name())
	}
	return Result{Data: value, Errors: relocated}, nil
}

// relocate strips the delegated root field from the path of err. The
// remaining path is relative to the field that delegated.
func relocate(err *gqlerror.Error) *gqlerror.Error {
	out := &gqlerror.Error{
		Message:    err.Message,
		Extensions: err.Extensions,
	}
	if len(err.Path) > 1 {
		out.Path = err.Path[1:]
	}
	return out
}

// decode turns a JSON value into response objects, slices and json.Number
// leaves. __typename values are translated to public names.
func decode(target Target, raw []byte, dataType jsonparser.ValueType) (interface{}, error) {
	switch dataType {
	case jsonparser.Object:
		object := graph.ResponseObject{}
		err := jsonparser.ObjectEach(raw, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
			decoded, err := decode(target, value, dataType)
			if err != nil {
				return err
			}
			name := string(key)
			if typename, ok := decoded.(string); ok && name == "__typename" {
				decoded = target.PublicType(typename)
			}
			object[name] = decoded
			return nil
		})
		return object, err
	case jsonparser.Array:
		list := []interface{}{}
		var decodeErr error
		_, err := jsonparser.ArrayEach(raw, func(value []byte, dataType jsonparser.ValueType, _ int, _ error) {
			if decodeErr != nil {
				return
			}
			decoded, err := decode(target, value, dataType)
			if err != nil {
				decodeErr = err
				return
			}
			list = append(list, decoded)
		})
		if err != nil {
			return nil, err
		}
		return list, decodeErr
	case jsonparser.String:
		return jsonparser.ParseString(raw)
	case jsonparser.Number:
		return json.Number(raw), nil
	case jsonparser.Boolean:
		return jsonparser.ParseBoolean(raw)
	case jsonparser.Null:
		return nil, nil
	}
	return nil, errors.Errorf("unexpected JSON value %s", raw)
}
