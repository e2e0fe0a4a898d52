package graph

import (
	"bytes"
	"encoding/json"
)

// ResponseObject is an object fetched from another graph. Its keys are the
// response keys of the operation that fetched it, so the executor reads
// client fields by alias before falling back to resolvers.
type ResponseObject map[string]interface{}

// Object returns value as a plain map when it is an object value.
func Object(value interface{}) (map[string]interface{}, bool) {
	switch value := value.(type) {
	case map[string]interface{}:
		return value, true
	case ResponseObject:
		return value, true
	case *orderedObject:
		return ToPlain(value).(map[string]interface{}), true
	}
	return nil, false
}

// Field reads key from an object value. Dependency aliases win over the plain key.
func Field(value interface{}, key string) (interface{}, bool) {
	object, ok := Object(value)
	if !ok {
		return nil, false
	}
	if v, ok := object[DependencyAliasPrefix+key]; ok {
		return v, true
	}
	v, ok := object[key]
	return v, ok
}

// String reads a string field, see Field.
func String(value interface{}, key string) string {
	v, _ := Field(value, key)
	switch v := v.(type) {
	case string:
		return v
	case json.Number:
		return v.String()
	}
	return ""
}

// ToPlain converts response objects and completed results into plain maps
// and slices.
func ToPlain(value interface{}) interface{} {
	switch value := value.(type) {
	case ResponseObject:
		out := make(map[string]interface{}, len(value))
		for k, v := range value {
			out[k] = ToPlain(v)
		}
		return out
	case map[string]interface{}:
		out := make(map[string]interface{}, len(value))
		for k, v := range value {
			out[k] = ToPlain(v)
		}
		return out
	case *orderedObject:
		out := make(map[string]interface{}, len(value.keys))
		for i, k := range value.keys {
			out[k] = ToPlain(value.values[i])
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(value))
		for i, v := range value {
			out[i] = ToPlain(v)
		}
		return out
	}
	return value
}

// orderedObject keeps the response keys in selection order.
type orderedObject struct {
	keys   []string
	values []interface{}
}

func newOrderedObject(size int) *orderedObject {
	return &orderedObject{
		keys:   make([]string, size),
		values: make([]interface{}, size),
	}
}

func (o *orderedObject) MarshalJSON() ([]byte, error) {
	buf := &bytes.Buffer{}
	buf.WriteByte('{')
	for i, key := range o.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(key)
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		v, err := json.Marshal(o.values[i])
		if err != nil {
			return nil, err
		}
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
