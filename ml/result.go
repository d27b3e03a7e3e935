package ml

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// NotAvailable is rendered for absent values and used when the backend sends no confidence.
const NotAvailable = "N/A"

// FieldResolver looks up the first present, non-null field in order.
// New response shapes are supported by appending names, not by touching call sites.
type FieldResolver []string

func (f FieldResolver) Resolve(payload map[string]interface{}) (interface{}, bool) {
	for _, name := range f {
		if v, ok := payload[name]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// ResolveAs walks f in order and returns the first present value that
// convert accepts. Candidates convert rejects fall through to the next name.
func ResolveAs[T any](f FieldResolver, payload map[string]interface{}, convert func(interface{}) (T, bool)) (T, bool) {
	for _, name := range f {
		if v, ok := payload[name]; ok && v != nil {
			if out, ok := convert(v); ok {
				return out, true
			}
		}
	}
	var zero T
	return zero, false
}

// ResponseShape holds the resolvers used to normalize one model's response.
type ResponseShape struct {
	ClassID    FieldResolver
	ClassName  FieldResolver
	Confidence FieldResolver
}

// ResponseShapeFor returns the resolvers for kind. Current field names come
// first, the legacy class_id/class_name shape second.
func ResponseShapeFor(kind ModelKind) ResponseShape {
	return ResponseShape{
		ClassID:    FieldResolver{"prediction", "class_id"},
		ClassName:  FieldResolver{kind.ClassNameField(), "class_name"},
		Confidence: FieldResolver{"confidence"},
	}
}

// PredictionResult is the display model over a backend prediction response.
type PredictionResult struct {
	Kind       ModelKind  `json:"model"`
	ClassID    *int64     `json:"class_id,omitempty"`
	ClassName  *string    `json:"class_name,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// NormalizeResult maps a decoded response body onto a PredictionResult.
func NormalizeResult(kind ModelKind, payload map[string]interface{}) *PredictionResult {
	shape := ResponseShapeFor(kind)
	result := &PredictionResult{Kind: kind, Confidence: RawConfidence(NotAvailable)}

	if id, ok := ResolveAs(shape.ClassID, payload, toInt); ok {
		result.ClassID = &id
	}
	if v, ok := shape.ClassName.Resolve(payload); ok {
		name := displayValue(v)
		result.ClassName = &name
	}
	if v, ok := shape.Confidence.Resolve(payload); ok {
		if f, ok := toFloat(v); ok {
			result.Confidence = NumericConfidence(f)
		} else {
			result.Confidence = RawConfidence(displayValue(v))
		}
	}
	return result
}

// Label is the class name, or N/A when the backend sent none.
func (r *PredictionResult) Label() string {
	if r == nil || r.ClassName == nil {
		return NotAvailable
	}
	return *r.ClassName
}

func (r *PredictionResult) ClassIDText() string {
	if r == nil || r.ClassID == nil {
		return NotAvailable
	}
	return strconv.FormatInt(*r.ClassID, 10)
}

// Confidence is either a probability in [0, 1] or a verbatim non-numeric value.
type Confidence struct {
	value   float64
	raw     string
	numeric bool
}

func NumericConfidence(v float64) Confidence {
	return Confidence{value: v, numeric: true}
}

func RawConfidence(s string) Confidence {
	return Confidence{raw: s}
}

func (c Confidence) Float64() (float64, bool) {
	return c.value, c.numeric
}

// String renders a numeric confidence as a percentage with two decimals
// and anything else verbatim.
func (c Confidence) String() string {
	return FormatConfidence(c)
}

func (c Confidence) MarshalJSON() ([]byte, error) {
	if c.numeric {
		return json.Marshal(c.value)
	}
	return json.Marshal(c.raw)
}

func (c *Confidence) UnmarshalJSON(data []byte) error {
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	if f, ok := v.(float64); ok {
		*c = NumericConfidence(f)
		return nil
	}
	*c = RawConfidence(displayValue(v))
	return nil
}

func FormatConfidence(c Confidence) string {
	if c.numeric {
		return fmt.Sprintf("%.2f%%", c.value*100)
	}
	return c.raw
}

func toInt(v interface{}) (int64, bool) {
	switch n := v.(type) {
	case json.Number:
		if i, err := n.Int64(); err == nil {
			return i, true
		}
		f, err := n.Float64()
		if err != nil || f != math.Trunc(f) {
			return 0, false
		}
		return int64(f), true
	case float64:
		if n != math.Trunc(n) {
			return 0, false
		}
		return int64(n), true
	case int:
		return int64(n), true
	case int64:
		return n, true
	case string:
		i, err := strconv.ParseInt(n, 10, 64)
		return i, err == nil
	default:
		return 0, false
	}
}

func displayValue(v interface{}) string {
	switch s := v.(type) {
	case nil:
		return NotAvailable
	case string:
		return s
	case json.Number:
		return s.String()
	default:
		data, err := json.Marshal(s)
		if err != nil {
			return fmt.Sprint(s)
		}
		return string(data)
	}
}
