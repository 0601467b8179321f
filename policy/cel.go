package policy

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/google/cel-go/common/types/traits"
)

// DecodeJSON decodes raw JSON bytes into CEL-ready native values, using
// json.Number so integers that fit int64 remain ints rather than collapsing
// to float64 the way encoding/json's default interface{} decoding would.
// Callers outside this package (the invocation pipeline, decoding a tool's
// input bytes before pre-policy evaluation) use this directly.
func DecodeJSON(raw []byte) (any, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	return normalizeJSON(v), nil
}

// normalizeJSON walks a decoded JSON value (as produced by a
// json.Number-enabled decoder) converting json.Number leaves into int64 or
// float64 per the coercion rule: integers that fit int64 map to CEL int,
// otherwise to CEL double.
func normalizeJSON(v any) any {
	switch val := v.(type) {
	case json.Number:
		if i, err := val.Int64(); err == nil {
			return i
		}
		f, _ := val.Float64()
		return f
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, elem := range val {
			out[k] = normalizeJSON(elem)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, elem := range val {
			out[i] = normalizeJSON(elem)
		}
		return out
	default:
		return val
	}
}

// celToJSON converts a CEL evaluation result back into a JSON-compatible Go
// value. CEL unsigned ints map to JSON numbers; non-string map keys are
// dropped from the output object.
func celToJSON(val ref.Val) any {
	switch v := val.(type) {
	case types.Int:
		return int64(v)
	case types.Uint:
		return uint64(v)
	case types.Double:
		return float64(v)
	case types.String:
		return string(v)
	case types.Bool:
		return bool(v)
	case types.Null:
		return nil
	default:
	}

	if lister, ok := val.(traits.Lister); ok {
		out := make([]any, 0)
		it := lister.Iterator()
		for it.HasNext() == types.True {
			out = append(out, celToJSON(it.Next()))
		}
		return out
	}
	if mapper, ok := val.(traits.Mapper); ok {
		out := make(map[string]any)
		it := mapper.Iterator()
		for it.HasNext() == types.True {
			key := it.Next()
			strKey, ok := key.(types.String)
			if !ok {
				continue
			}
			elem, found := mapper.Find(key)
			if !found {
				continue
			}
			out[string(strKey)] = celToJSON(elem)
		}
		return out
	}
	return fmt.Sprintf("%v", val.Value())
}
