package dispatch

import (
	"encoding/json"
	"fmt"
	"math"
)

// JSONRPCVersion is the only protocol version the dispatcher accepts.
const JSONRPCVersion = "2.0"

// Request is the JSON-RPC-2.0 dispatch envelope.
type Request struct {
	JSONRPC string         `json:"jsonrpc"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params,omitempty"`
	ID      any            `json:"id"`
}

// ResultMetadata is attached to every successful response.
type ResultMetadata struct {
	OperationType   string `json:"operation_type"`
	ExecutionTimeMs int64  `json:"execution_time_ms"`
}

// Result is the success payload of a response.
type Result struct {
	Status   string         `json:"status"`
	Data     any            `json:"data"`
	Metadata ResultMetadata `json:"metadata"`
}

// WireError is the error payload of a response.
type WireError struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Response is the JSON-RPC-2.0 response envelope, emitted as one JSON
// object per line on both transports.
type Response struct {
	JSONRPC string     `json:"jsonrpc"`
	ID      any        `json:"id"`
	Result  *Result    `json:"result,omitempty"`
	Error   *WireError `json:"error,omitempty"`
}

// ParseRequest decodes a single request line, distinguishing a parse
// failure (malformed JSON) from an invalid request (wrong version or
// missing method).
func ParseRequest(line []byte) (*Request, *Error) {
	var req Request
	if err := json.Unmarshal(line, &req); err != nil {
		return nil, New(CodeParseError, fmt.Sprintf("malformed request: %v", err))
	}
	if req.JSONRPC != JSONRPCVersion {
		return nil, New(CodeInvalidRequest, fmt.Sprintf("unsupported protocol version %q", req.JSONRPC))
	}
	if req.Method == "" {
		return nil, New(CodeInvalidRequest, "method is required")
	}
	return &req, nil
}

// Params wraps the request parameter object with typed accessors. Every
// accessor that ends in "Required" raises InvalidParams when the key is
// absent; the plain forms return a fallback.
type Params map[string]any

// String returns a string parameter or fallback.
func (p Params) String(key, fallback string) string {
	if v, ok := p[key].(string); ok {
		return v
	}
	return fallback
}

// StringRequired returns a string parameter or an InvalidParams error.
func (p Params) StringRequired(key string) (string, *Error) {
	v, ok := p[key].(string)
	if !ok || v == "" {
		return "", missingParam(key)
	}
	return v, nil
}

// Float returns a numeric parameter or fallback. JSON numbers always
// decode as float64, but integers that went through other layers may
// arrive as int.
func (p Params) Float(key string, fallback float64) float64 {
	switch v := p[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case json.Number:
		f, err := v.Float64()
		if err == nil {
			return f
		}
	}
	return fallback
}

// FloatRequired returns a numeric parameter or an InvalidParams error.
func (p Params) FloatRequired(key string) (float64, *Error) {
	if _, ok := p[key]; !ok {
		return 0, missingParam(key)
	}
	f := p.Float(key, math.NaN())
	if math.IsNaN(f) {
		return 0, New(CodeInvalidParams, fmt.Sprintf("parameter %q must be a number", key)).WithField(key).WithValue(p[key])
	}
	return f, nil
}

// Int returns an integer parameter or fallback.
func (p Params) Int(key string, fallback int) int {
	if _, ok := p[key]; !ok {
		return fallback
	}
	return int(p.Float(key, float64(fallback)))
}

// Bool returns a boolean parameter or fallback.
func (p Params) Bool(key string, fallback bool) bool {
	if v, ok := p[key].(bool); ok {
		return v
	}
	return fallback
}

// StringSlice returns a string-list parameter, tolerating the []any
// decoding JSON produces.
func (p Params) StringSlice(key string) []string {
	switch v := p[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// StringSliceRequired returns a non-empty string list or an
// InvalidParams error.
func (p Params) StringSliceRequired(key string) ([]string, *Error) {
	v := p.StringSlice(key)
	if len(v) == 0 {
		return nil, missingParam(key)
	}
	return v, nil
}

// Map returns a nested object parameter, or nil.
func (p Params) Map(key string) map[string]any {
	if v, ok := p[key].(map[string]any); ok {
		return v
	}
	return nil
}

// Vec3 normalizes a coordinate parameter. Coordinates may arrive as a
// 2- or 3-element array or as an {x, y, z?} object; both are accepted
// and normalized to a 3-element vector with z defaulting to 0.
func (p Params) Vec3(key string) ([3]float64, *Error) {
	raw, ok := p[key]
	if !ok {
		return [3]float64{}, missingParam(key)
	}
	return normalizeVec3(key, raw)
}

func normalizeVec3(key string, raw any) ([3]float64, *Error) {
	var out [3]float64
	switch v := raw.(type) {
	case []any:
		if len(v) < 2 || len(v) > 3 {
			return out, New(CodeInvalidParams,
				fmt.Sprintf("parameter %q has wrong dimension: expected 2 or 3 coordinates, got %d", key, len(v))).
				WithField(key).WithValue(raw)
		}
		for i, item := range v {
			f, ok := toFloat(item)
			if !ok {
				return out, New(CodeInvalidParams, fmt.Sprintf("parameter %q element %d is not a number", key, i)).
					WithField(key).WithValue(raw)
			}
			out[i] = f
		}
		return out, nil
	case map[string]any:
		x, okX := toFloat(v["x"])
		y, okY := toFloat(v["y"])
		if !okX || !okY {
			return out, New(CodeInvalidParams, fmt.Sprintf("parameter %q must carry numeric x and y", key)).
				WithField(key).WithValue(raw)
		}
		out[0], out[1] = x, y
		if z, okZ := toFloat(v["z"]); okZ {
			out[2] = z
		}
		return out, nil
	case []float64:
		if len(v) < 2 || len(v) > 3 {
			return out, New(CodeInvalidParams,
				fmt.Sprintf("parameter %q has wrong dimension: expected 2 or 3 coordinates, got %d", key, len(v))).
				WithField(key).WithValue(raw)
		}
		copy(out[:], v)
		return out, nil
	default:
		return out, New(CodeInvalidParams, fmt.Sprintf("parameter %q must be a coordinate array or {x, y, z} object", key)).
			WithField(key).WithValue(raw)
	}
}

func toFloat(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

func missingParam(key string) *Error {
	return New(CodeInvalidParams, fmt.Sprintf("missing required parameter: %s", key)).WithField(key)
}
