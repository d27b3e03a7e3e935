package session

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"mldash/backend"
	"mldash/ml"
)

// uploadWrapperKey wraps the record in files exported by the backend test suite.
const uploadWrapperKey = "input_test"

// ParseUpload turns an uploaded file into an InputRecord. The top level must
// be an object; an input_test member, when present, is the record. UTF-8 and
// UTF-16 files with a byte-order mark are accepted. No schema validation is
// done here.
func ParseUpload(contents []byte) (ml.InputRecord, error) {
	decoded, err := io.ReadAll(transform.NewReader(bytes.NewReader(contents), unicode.BOMOverride(unicode.UTF8.NewDecoder())))
	if err != nil {
		return nil, &backend.ParseError{Source: "JSON file", Err: err}
	}

	dec := json.NewDecoder(bytes.NewReader(decoded))
	dec.UseNumber()
	var top interface{}
	if err := dec.Decode(&top); err != nil {
		return nil, &backend.ParseError{Source: "JSON file", Err: err}
	}
	if dec.More() {
		return nil, &backend.ParseError{Source: "JSON file", Err: errors.New("trailing data after JSON value")}
	}

	obj, ok := top.(map[string]interface{})
	if !ok {
		return nil, &backend.ParseError{Source: "JSON file", Err: fmt.Errorf("top level must be an object, got %s", jsonKind(top))}
	}
	if inner, ok := obj[uploadWrapperKey]; ok {
		record, ok := inner.(map[string]interface{})
		if !ok {
			return nil, &backend.ParseError{Source: "JSON file", Err: fmt.Errorf("%s must be an object, got %s", uploadWrapperKey, jsonKind(inner))}
		}
		return ml.InputRecord(record), nil
	}
	return ml.InputRecord(obj), nil
}

func jsonKind(v interface{}) string {
	switch v.(type) {
	case nil:
		return "null"
	case []interface{}:
		return "array"
	case string:
		return "string"
	case bool:
		return "boolean"
	case json.Number:
		return "number"
	default:
		return "object"
	}
}
