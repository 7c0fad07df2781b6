// Package mapper turns raw backend payloads into domain entities.
//
// Every response goes through the same narrow pipeline:
//
//	Unwrap(raw) → json.Unmarshal into a wire struct → validator → map to model
//
// Wire structs carry `validate` tags describing the structural contract of
// the endpoint. A payload that fails decoding or validation becomes an
// apperror.ShapeMismatch; the mapper never guesses at a shape it does not
// recognise.
package mapper

import (
	"bytes"
	"encoding/json"

	"github.com/go-playground/validator/v10"

	"github.com/sakif/snippethub/internal/apperror"
)

// validate is safe for concurrent use and caches struct metadata, so one
// instance serves the whole package.
var validate = validator.New()

// Unwrap strips `{"data": payload}` envelopes. It keeps descending while the
// current value is an object whose only key is "data", so both a bare payload
// and any number of nested envelopes resolve to the same inner value.
//
// An object with "data" plus other keys (a paginated list: data, meta, links)
// is returned as is.
func Unwrap(raw []byte) []byte {
	cur := bytes.TrimSpace(raw)
	for len(cur) > 0 && cur[0] == '{' {
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(cur, &obj); err != nil {
			return cur
		}
		inner, ok := obj["data"]
		if !ok || len(obj) != 1 {
			return cur
		}
		cur = bytes.TrimSpace(inner)
	}
	return cur
}

// decode unwraps raw into dst and checks the struct tags on dst, which must
// be a pointer to a struct.
func decode(endpoint string, raw []byte, dst any) error {
	if err := decodeInto(endpoint, raw, dst); err != nil {
		return err
	}
	if err := validate.Struct(dst); err != nil {
		return apperror.ShapeMismatch(endpoint, err)
	}
	return nil
}

// decodeInto unwraps raw into dst without validation, for non-struct
// payloads.
func decodeInto(endpoint string, raw []byte, dst any) error {
	if err := json.Unmarshal(Unwrap(raw), dst); err != nil {
		return apperror.ShapeMismatch(endpoint, err)
	}
	return nil
}
