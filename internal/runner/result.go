// SPDX-License-Identifier: MPL-2.0

package runner

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

const (
	keyChanged = "changed"
	keyFailed  = "failed"
	keyMessage = "message"
	keyMsg     = "msg"
)

// ErrInvalidResult is the sentinel error wrapped by InvalidResultError.
var ErrInvalidResult = errors.New("invalid result record")

//go:embed result_schema.json
var resultSchemaJSON string

var resultSchema = sync.OnceValues(func() (*gojsonschema.Schema, error) {
	return gojsonschema.NewSchema(gojsonschema.NewStringLoader(resultSchemaJSON))
})

type (
	// InvocationResult is the structured outcome of one invocation. It is
	// immutable: WithExtra returns a modified copy.
	InvocationResult struct {
		changed bool
		failed  bool
		message string
		extras  map[string]any
	}

	// InvalidResultError describes a record that is not valid JSON or does
	// not match the result schema.
	InvalidResultError struct {
		Problems []string
		Err      error
	}
)

func (e *InvalidResultError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", ErrInvalidResult, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrInvalidResult, strings.Join(e.Problems, "; "))
}

func (e *InvalidResultError) Unwrap() error { return ErrInvalidResult }

// OK returns a successful result.
func OK(changed bool) InvocationResult {
	return InvocationResult{changed: changed}
}

// Failure returns a failed, unchanged result. The reserved keys changed,
// failed, message and msg are ignored in extras.
func Failure(message string, extras map[string]any) InvocationResult {
	return InvocationResult{failed: true, message: message, extras: cleanExtras(extras)}
}

// Changed reports whether the target was (or in check mode would be) modified.
func (r InvocationResult) Changed() bool { return r.changed }

// Failed reports whether the invocation failed.
func (r InvocationResult) Failed() bool { return r.failed }

// Message returns the human-readable message, empty on plain success.
func (r InvocationResult) Message() string { return r.message }

// Extra returns one free-form field.
func (r InvocationResult) Extra(key string) (any, bool) {
	v, ok := r.extras[key]
	return v, ok
}

// Extras returns a copy of the free-form fields.
func (r InvocationResult) Extras() map[string]any {
	return maps.Clone(r.extras)
}

// WithExtra returns a copy of r with one more free-form field. Reserved keys
// are ignored.
func (r InvocationResult) WithExtra(key string, value any) InvocationResult {
	if isReserved(key) {
		return r
	}
	out := r
	out.extras = maps.Clone(r.extras)
	if out.extras == nil {
		out.extras = make(map[string]any, 1)
	}
	out.extras[key] = value
	return out
}

// MarshalJSON writes the flat record: extras plus changed, failed and, when
// set, message.
func (r InvocationResult) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.extras)+3)
	maps.Copy(m, r.extras)
	m[keyChanged] = r.changed
	m[keyFailed] = r.failed
	if r.message != "" {
		m[keyMessage] = r.message
	}
	return json.Marshal(m)
}

// UnmarshalJSON accepts a flat record. "msg" is read as an alias for
// "message"; every other unknown key becomes an extra.
func (r *InvocationResult) UnmarshalJSON(data []byte) error {
	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if doc == nil {
		return &InvalidResultError{Problems: []string{"record is null"}}
	}

	var out InvocationResult
	var err error
	if out.changed, err = boolField(doc, keyChanged); err != nil {
		return err
	}
	if out.failed, err = boolField(doc, keyFailed); err != nil {
		return err
	}
	out.message = stringField(doc, keyMsg)
	if msg := stringField(doc, keyMessage); msg != "" {
		out.message = msg
	}
	out.extras = cleanExtras(doc)
	*r = out
	return nil
}

// DecodeResult parses one record and validates it against the result schema.
func DecodeResult(data []byte) (InvocationResult, error) {
	schema, err := resultSchema()
	if err != nil {
		return InvocationResult{}, fmt.Errorf("load result schema: %w", err)
	}

	validation, err := schema.Validate(gojsonschema.NewBytesLoader(data))
	if err != nil {
		return InvocationResult{}, &InvalidResultError{Err: err}
	}
	if !validation.Valid() {
		problems := make([]string, 0, len(validation.Errors()))
		for _, e := range validation.Errors() {
			problems = append(problems, e.String())
		}
		return InvocationResult{}, &InvalidResultError{Problems: problems}
	}

	var result InvocationResult
	if err := json.Unmarshal(data, &result); err != nil {
		return InvocationResult{}, &InvalidResultError{Err: err}
	}
	return result, nil
}

func boolField(doc map[string]any, key string) (bool, error) {
	v, ok := doc[key]
	if !ok || v == nil {
		return false, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, &InvalidResultError{Problems: []string{fmt.Sprintf("%s: expected boolean, got %T", key, v)}}
	}
	return b, nil
}

func stringField(doc map[string]any, key string) string {
	switch v := doc[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

func isReserved(key string) bool {
	switch key {
	case keyChanged, keyFailed, keyMessage, keyMsg:
		return true
	default:
		return false
	}
}

func cleanExtras(in map[string]any) map[string]any {
	var out map[string]any
	for k, v := range in {
		if isReserved(k) {
			continue
		}
		if out == nil {
			out = make(map[string]any, len(in))
		}
		out[k] = v
	}
	return out
}
