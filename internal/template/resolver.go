package template

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/quarrylabs/quarry/internal/models"
)

// ValidationError reports a template that cannot be resolved: a binding
// with an unknown type or an unparseable value for its declared type.
type ValidationError struct {
	Binding string
	Reason  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("binding %q: %s", e.Binding, e.Reason)
}

// ResolvedRequest is the output of template resolution. It is consumed
// immediately by the cache controller and the connector; it is never
// persisted.
type ResolvedRequest struct {
	Body            string
	Configuration   map[string]any
	MissingRequired []string
}

// Valid reports whether resolution produced an executable request.
func (r *ResolvedRequest) Valid() bool {
	return len(r.MissingRequired) == 0
}

// Resolve substitutes every placeholder in the data request's template
// and configuration with its bound value. A placeholder with no binding
// resolves through an implicit optional string binding with an empty
// default. Substitution is single-pass and left-to-right: substituted
// text is never re-scanned, so values containing {{...}} do not expand.
func Resolve(dr *models.DataRequest, bindings []models.VariableBinding) (*ResolvedRequest, error) {
	byName := make(map[string]models.VariableBinding, len(bindings))
	for _, b := range bindings {
		byName[b.Name] = b
	}

	resolved := &ResolvedRequest{}
	missing := make(map[string]bool)

	body, err := substitute(dr.Template, byName, missing)
	if err != nil {
		return nil, err
	}
	resolved.Body = body

	if dr.Configuration != nil {
		config, err := substituteValue(dr.Configuration, byName, missing)
		if err != nil {
			return nil, err
		}
		resolved.Configuration = config.(map[string]any)
	}

	if len(missing) > 0 {
		names := make([]string, 0, len(missing))
		for name := range missing {
			names = append(names, name)
		}
		sort.Strings(names)
		resolved.MissingRequired = names
	}

	return resolved, nil
}

func substitute(text string, bindings map[string]models.VariableBinding, missing map[string]bool) (string, error) {
	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var sb strings.Builder
	last := 0
	for _, m := range matches {
		name := strings.TrimSpace(text[m[2]:m[3]])
		if name == "" {
			continue
		}

		binding, ok := bindings[name]
		if !ok {
			// Implicit binding: optional string with empty default.
			binding = models.VariableBinding{Name: name, Type: models.TypeString}
		}

		raw := binding.Value
		if raw == "" {
			raw = binding.DefaultValue
		}

		if raw == "" {
			if binding.Required {
				// Leave the token in place; resolution fails before execution.
				missing[name] = true
				continue
			}
			if !models.ValidBindingType(binding.Type) {
				return "", &ValidationError{Binding: name, Reason: fmt.Sprintf("unknown binding type %q", binding.Type)}
			}
			// An optional binding with no value and no default resolves
			// to the empty string, whatever its type.
			sb.WriteString(text[last:m[0]])
			last = m[1]
			continue
		}

		rendered, err := render(binding.Name, binding.Type, raw)
		if err != nil {
			return "", err
		}

		sb.WriteString(text[last:m[0]])
		sb.WriteString(rendered)
		last = m[1]
	}
	sb.WriteString(text[last:])
	return sb.String(), nil
}

// substituteValue walks a configuration value and substitutes
// placeholders in every string it contains.
func substituteValue(v any, bindings map[string]models.VariableBinding, missing map[string]bool) (any, error) {
	switch val := v.(type) {
	case string:
		return substitute(val, bindings, missing)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, inner := range val {
			sub, err := substituteValue(inner, bindings, missing)
			if err != nil {
				return nil, err
			}
			out[k] = sub
		}
		return out, nil
	case []any:
		out := make([]any, len(val))
		for i, inner := range val {
			sub, err := substituteValue(inner, bindings, missing)
			if err != nil {
				return nil, err
			}
			out[i] = sub
		}
		return out, nil
	default:
		return v, nil
	}
}

// dateFormats are accepted input layouts for date bindings, tried in order.
var dateFormats = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// render formats a bound value per its declared type: strings verbatim,
// numbers as canonical decimals, booleans as true/false, dates as RFC 3339.
func render(name, bindingType, raw string) (string, error) {
	switch bindingType {
	case models.TypeString:
		return raw, nil
	case models.TypeNumber:
		f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
		if err != nil {
			return "", &ValidationError{Binding: name, Reason: fmt.Sprintf("value %q is not a number", raw)}
		}
		return strconv.FormatFloat(f, 'f', -1, 64), nil
	case models.TypeBoolean:
		b, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return "", &ValidationError{Binding: name, Reason: fmt.Sprintf("value %q is not a boolean", raw)}
		}
		return strconv.FormatBool(b), nil
	case models.TypeDate:
		trimmed := strings.TrimSpace(raw)
		for _, layout := range dateFormats {
			if ts, err := time.Parse(layout, trimmed); err == nil {
				return ts.UTC().Format(time.RFC3339), nil
			}
		}
		return "", &ValidationError{Binding: name, Reason: fmt.Sprintf("value %q is not a date", raw)}
	default:
		return "", &ValidationError{Binding: name, Reason: fmt.Sprintf("unknown binding type %q", bindingType)}
	}
}
