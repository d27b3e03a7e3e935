package ml

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// InputRecord is the feature mapping sent as a prediction request body.
// Uploaded and example records are forwarded verbatim, so values are not
// restricted to float64.
type InputRecord map[string]interface{}

// NewRecord keys fields exactly per the schema of kind. Keys outside the
// schema are dropped; a missing key is an error.
func NewRecord(kind ModelKind, fields map[string]float64) (InputRecord, error) {
	schema := Schema(kind)
	if schema == nil {
		return nil, fmt.Errorf("unsupported model %q", kind)
	}

	record := make(InputRecord, len(schema))
	var missing []string
	for _, f := range schema {
		v, ok := fields[f.Name]
		if !ok {
			missing = append(missing, f.Name)
			continue
		}
		record[f.Name] = v
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("missing %s features: %s", kind, strings.Join(missing, ", "))
	}
	return record, nil
}

// Missing lists schema keys of kind that are absent or not numeric, in schema order.
func (r InputRecord) Missing(kind ModelKind) []string {
	var missing []string
	for _, f := range Schema(kind) {
		if _, ok := toFloat(r[f.Name]); !ok {
			missing = append(missing, f.Name)
		}
	}
	return missing
}

// Validate reports whether every required key of kind is present with a numeric value.
func (r InputRecord) Validate(kind ModelKind) error {
	if missing := r.Missing(kind); len(missing) > 0 {
		return fmt.Errorf("invalid %s record, missing or non-numeric: %s", kind, strings.Join(missing, ", "))
	}
	return nil
}

// Clone returns a shallow copy.
func (r InputRecord) Clone() InputRecord {
	if r == nil {
		return nil
	}
	out := make(InputRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys sorted.
func (r InputRecord) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Pretty renders the record as indented JSON for display.
func (r InputRecord) Pretty() string {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", map[string]interface{}(r))
	}
	return string(data)
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
