// Package transform applies declared reshaping steps to connector results.
package transform

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/quarrylabs/quarry/internal/models"
)

// Error reports a transform step that could not be applied to the shape
// of data received. The pipeline fails whole: partial transformation is
// never returned as if complete.
type Error struct {
	Step   int
	Type   string
	Reason string
}

func (e *Error) Error() string {
	return fmt.Sprintf("transform step %d (%s): %s", e.Step, e.Type, e.Reason)
}

// Apply runs the transform steps strictly in declared order against the
// raw result. A disabled or absent spec returns the raw result unchanged.
func Apply(raw []byte, spec *models.TransformSpec) ([]byte, error) {
	if spec == nil || !spec.Enabled || len(spec.Steps) == 0 {
		return raw, nil
	}

	var data any
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, &Error{Step: 0, Type: "decode", Reason: fmt.Sprintf("result is not JSON: %v", err)}
	}

	records, wasArray, err := asRecords(data, 0, spec.Steps[0].Type)
	if err != nil {
		return nil, err
	}

	for i, step := range spec.Steps {
		records, err = applyStep(records, i, step)
		if err != nil {
			return nil, err
		}
	}

	var out any = records
	if !wasArray {
		if len(records) == 1 {
			out = records[0]
		}
	}
	return json.Marshal(out)
}

func applyStep(records []map[string]any, index int, step models.TransformStep) ([]map[string]any, error) {
	switch step.Type {
	case "pick":
		return pick(records, index, step)
	case "rename":
		return rename(records, index, step)
	case "filter":
		return filterRecords(records, index, step)
	case "flatten":
		return flatten(records, index, step)
	default:
		return nil, &Error{Step: index, Type: step.Type, Reason: "unknown step type"}
	}
}

// pick projects each record down to the named fields. A field absent
// from any record fails the step.
func pick(records []map[string]any, index int, step models.TransformStep) ([]map[string]any, error) {
	if len(step.Fields) == 0 {
		return nil, &Error{Step: index, Type: step.Type, Reason: "no fields declared"}
	}

	out := make([]map[string]any, len(records))
	for i, record := range records {
		projected := make(map[string]any, len(step.Fields))
		for _, field := range step.Fields {
			value, ok := record[field]
			if !ok {
				return nil, &Error{Step: index, Type: step.Type, Reason: fmt.Sprintf("field %q absent in record %d", field, i)}
			}
			projected[field] = value
		}
		out[i] = projected
	}
	return out, nil
}

func rename(records []map[string]any, index int, step models.TransformStep) ([]map[string]any, error) {
	if len(step.Mapping) == 0 {
		return nil, &Error{Step: index, Type: step.Type, Reason: "no mapping declared"}
	}

	out := make([]map[string]any, len(records))
	for i, record := range records {
		renamed := make(map[string]any, len(record))
		for k, v := range record {
			renamed[k] = v
		}
		for from, to := range step.Mapping {
			value, ok := renamed[from]
			if !ok {
				return nil, &Error{Step: index, Type: step.Type, Reason: fmt.Sprintf("field %q absent in record %d", from, i)}
			}
			delete(renamed, from)
			renamed[to] = value
		}
		out[i] = renamed
	}
	return out, nil
}

func filterRecords(records []map[string]any, index int, step models.TransformStep) ([]map[string]any, error) {
	if step.Field == "" {
		return nil, &Error{Step: index, Type: step.Type, Reason: "no field declared"}
	}

	out := make([]map[string]any, 0, len(records))
	for i, record := range records {
		value, ok := record[step.Field]
		if !ok {
			return nil, &Error{Step: index, Type: step.Type, Reason: fmt.Sprintf("field %q absent in record %d", step.Field, i)}
		}
		keep, err := compare(value, step.Op, step.Value)
		if err != nil {
			return nil, &Error{Step: index, Type: step.Type, Reason: err.Error()}
		}
		if keep {
			out = append(out, record)
		}
	}
	return out, nil
}

// flatten merges a nested object field into its record, prefixing the
// nested keys with the field name.
func flatten(records []map[string]any, index int, step models.TransformStep) ([]map[string]any, error) {
	if step.Field == "" {
		return nil, &Error{Step: index, Type: step.Type, Reason: "no field declared"}
	}

	out := make([]map[string]any, len(records))
	for i, record := range records {
		value, ok := record[step.Field]
		if !ok {
			return nil, &Error{Step: index, Type: step.Type, Reason: fmt.Sprintf("field %q absent in record %d", step.Field, i)}
		}
		nested, ok := value.(map[string]any)
		if !ok {
			return nil, &Error{Step: index, Type: step.Type, Reason: fmt.Sprintf("field %q in record %d is not an object", step.Field, i)}
		}

		flattened := make(map[string]any, len(record)+len(nested))
		for k, v := range record {
			if k != step.Field {
				flattened[k] = v
			}
		}
		for k, v := range nested {
			flattened[step.Field+"."+k] = v
		}
		out[i] = flattened
	}
	return out, nil
}

func compare(value any, op string, target any) (bool, error) {
	switch op {
	case "", "eq":
		return equal(value, target), nil
	case "neq":
		return !equal(value, target), nil
	case "gt", "lt":
		a, aok := toFloat(value)
		b, bok := toFloat(target)
		if !aok || !bok {
			return false, fmt.Errorf("op %q requires numeric operands", op)
		}
		if op == "gt" {
			return a > b, nil
		}
		return a < b, nil
	case "contains":
		s, sok := value.(string)
		sub, subok := target.(string)
		if !sok || !subok {
			return false, fmt.Errorf("op contains requires string operands")
		}
		return strings.Contains(s, sub), nil
	default:
		return false, fmt.Errorf("unknown filter op %q", op)
	}
}

func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

func asRecords(data any, step int, stepType string) ([]map[string]any, bool, error) {
	switch d := data.(type) {
	case []any:
		records := make([]map[string]any, len(d))
		for i, item := range d {
			record, ok := item.(map[string]any)
			if !ok {
				return nil, true, &Error{Step: step, Type: stepType, Reason: fmt.Sprintf("element %d is not an object", i)}
			}
			records[i] = record
		}
		return records, true, nil
	case map[string]any:
		return []map[string]any{d}, false, nil
	default:
		return nil, false, &Error{Step: step, Type: stepType, Reason: "result is neither an object nor an array of objects"}
	}
}
