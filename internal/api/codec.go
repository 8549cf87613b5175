package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"
)

var errBadRequest = errors.New("bad request")

// Encode converts a JSON-marshalable object into a Struct.
func Encode(v any) (*structpb.Struct, error) {
	if s, ok := v.(*structpb.Struct); ok {
		return s, nil
	}
	if v == nil {
		return &structpb.Struct{}, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	out := new(structpb.Struct)
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}
	return out, nil
}

// Decode unpacks a Struct into out through its JSON form.
func Decode(s *structpb.Struct, out any) error {
	data, err := protojson.Marshal(s)
	if err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := stringField(req, key)
	if v == "" {
		return "", fmt.Errorf("%w: %s is required", errBadRequest, key)
	}
	return v, nil
}

func boolField(req *structpb.Struct, key string) bool {
	return req.GetFields()[key].GetBoolValue()
}

func intField(req *structpb.Struct, key string) (int64, bool, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, false, nil
	}
	switch k := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if k.NumberValue != math.Trunc(k.NumberValue) {
			return 0, true, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
		}
		return int64(k.NumberValue), true, nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseInt(k.StringValue, 10, 64)
		if err != nil {
			return 0, true, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
		}
		return n, true, nil
	default:
		return 0, true, fmt.Errorf("%w: %s must be an integer", errBadRequest, key)
	}
}

func requiredInt(req *structpb.Struct, key string) (int64, error) {
	n, ok, err := intField(req, key)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("%w: %s is required", errBadRequest, key)
	}
	return n, nil
}

func intList(req *structpb.Struct, key string) ([]int64, error) {
	vals := req.GetFields()[key].GetListValue().GetValues()
	out := make([]int64, 0, len(vals))
	for _, v := range vals {
		n := v.GetNumberValue()
		if n != math.Trunc(n) || n == 0 {
			return nil, fmt.Errorf("%w: %s must hold non-zero integers", errBadRequest, key)
		}
		out = append(out, int64(n))
	}
	return out, nil
}

func stringList(req *structpb.Struct, key string) []string {
	vals := req.GetFields()[key].GetListValue().GetValues()
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		if s := v.GetStringValue(); s != "" {
			out = append(out, s)
		}
	}
	return out
}
