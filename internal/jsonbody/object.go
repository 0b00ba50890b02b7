// Package jsonbody decodes flat JSON request objects and encodes the small
// response objects of the run API.
package jsonbody

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrEmpty     = errors.New("jsonbody: empty body")
	ErrNotObject = errors.New("jsonbody: body is not a JSON object")
)

// Object is one decoded top-level JSON object.
type Object map[string]interface{}

// Parse decodes data, which must hold exactly one JSON object.
func Parse(data []byte) (Object, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, ErrEmpty
	}
	if data[0] != '{' {
		return nil, ErrNotObject
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var obj Object
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("jsonbody: decode: %w", err)
	}
	if dec.More() {
		return nil, fmt.Errorf("jsonbody: trailing data after object")
	}
	return obj, nil
}

// String returns the value of key when it is a JSON string.
func (o Object) String(key string) (string, bool) {
	v, ok := o[key]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// StringOr returns the string at key, or def when missing or not a string.
func (o Object) StringOr(key, def string) string {
	if s, ok := o.String(key); ok {
		return s
	}
	return def
}

// PIDResponse is the body returned by run, stop and input.
type PIDResponse struct {
	PID int `json:"pid"`
}

// OutputResponse is the body returned by a program poll that produced data.
type OutputResponse struct {
	PID    int    `json:"pid"`
	Output string `json:"output"`
}

// Marshal encodes v without HTML escaping, so program output containing
// '<' or '&' is returned as written.
func Marshal(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
