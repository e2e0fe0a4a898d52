package graph

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/vektah/gqlparser/v2/ast"
)

func serializeLeaf(def *ast.Definition, value interface{}) (interface{}, error) {
	if def.Kind == ast.Enum {
		name, ok := enumName(value)
		if !ok || def.EnumValues.ForName(name) == nil {
			return nil, errors.Errorf("enum %s cannot represent value %v", def.Name, value)
		}
		return name, nil
	}

	switch def.Name {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		return nil, errors.Errorf("Boolean cannot represent a non boolean value: %v", value)
	case "ID":
		return serializeID(value)
	}
	// custom scalars are passed through
	return value, nil
}

func enumName(value interface{}) (string, bool) {
	switch value := value.(type) {
	case string:
		return value, true
	case fmt.Stringer:
		return value.String(), true
	}
	return "", false
}

func serializeInt(value interface{}) (interface{}, error) {
	var n float64
	switch value := value.(type) {
	case int:
		return int64(value), nil
	case int32:
		return int64(value), nil
	case int64:
		return value, nil
	case uint32:
		return int64(value), nil
	case float32:
		n = float64(value)
	case float64:
		n = value
	case json.Number:
		if i, err := value.Int64(); err == nil {
			n = float64(i)
			break
		}
		f, err := value.Float64()
		if err != nil {
			return nil, errors.Errorf("Int cannot represent non-integer value: %v", value)
		}
		n = f
	default:
		return nil, errors.Errorf("Int cannot represent non-integer value: %v", value)
	}
	if n != math.Trunc(n) || n > math.MaxInt32 || n < math.MinInt32 {
		return nil, errors.Errorf("Int cannot represent non 32-bit signed integer value: %v", value)
	}
	return int64(n), nil
}

func serializeFloat(value interface{}) (interface{}, error) {
	switch value := value.(type) {
	case int:
		return float64(value), nil
	case int32:
		return float64(value), nil
	case int64:
		return float64(value), nil
	case float32:
		return float64(value), nil
	case float64:
		return value, nil
	case json.Number:
		f, err := value.Float64()
		if err == nil {
			return f, nil
		}
	}
	return nil, errors.Errorf("Float cannot represent non numeric value: %v", value)
}

func serializeString(value interface{}) (interface{}, error) {
	switch value := value.(type) {
	case string:
		return value, nil
	case bool:
		return strconv.FormatBool(value), nil
	case int:
		return strconv.Itoa(value), nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	case float64:
		return strconv.FormatFloat(value, 'f', -1, 64), nil
	case json.Number:
		return value.String(), nil
	case fmt.Stringer:
		return value.String(), nil
	}
	return nil, errors.Errorf("String cannot represent value: %v", value)
}

func serializeID(value interface{}) (interface{}, error) {
	switch value := value.(type) {
	case string:
		return value, nil
	case int:
		return strconv.Itoa(value), nil
	case int64:
		return strconv.FormatInt(value, 10), nil
	case float64:
		if value == math.Trunc(value) {
			return strconv.FormatFloat(value, 'f', -1, 64), nil
		}
	case json.Number:
		if _, err := value.Int64(); err == nil {
			return value.String(), nil
		}
	}
	return nil, errors.Errorf("ID cannot represent value: %v", value)
}
