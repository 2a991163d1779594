package prompt

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
)

// ParamType is the control type of a template parameter.
type ParamType string

const (
	ParamSelect ParamType = "select"
	ParamInput  ParamType = "input"
	ParamSlider ParamType = "slider"
)

// maxInputLength bounds free-text parameter values.
const maxInputLength = 2000

// Option is one choice of a select parameter.
type Option struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// ParamDef describes one template parameter control.
type ParamDef struct {
	Key         string    `json:"key" validate:"required"`
	Type        ParamType `json:"type" validate:"required,oneof=select input slider"`
	Label       string    `json:"label"`
	Description string    `json:"description,omitempty"`
	Options     []Option  `json:"options,omitempty"`
	Min         *float64  `json:"min,omitempty"`
	Max         *float64  `json:"max,omitempty"`
	Step        *float64  `json:"step,omitempty"`
	Placeholder string    `json:"placeholder,omitempty"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseSchema decodes and validates a JSON parameter schema.
func ParseSchema(raw []byte) ([]ParamDef, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return nil, nil
	}
	var schema []ParamDef
	if errUnmarshal := json.Unmarshal(raw, &schema); errUnmarshal != nil {
		return nil, fmt.Errorf("prompt: parse schema: %w", errUnmarshal)
	}
	for i := range schema {
		if errValidate := validate.Struct(schema[i]); errValidate != nil {
			return nil, fmt.Errorf("prompt: schema entry %d: %w", i, errValidate)
		}
	}
	return schema, nil
}

// ParseDefaults decodes a JSON object of default parameter values.
func ParseDefaults(raw []byte) (map[string]string, error) {
	if len(strings.TrimSpace(string(raw))) == 0 {
		return map[string]string{}, nil
	}
	var values map[string]any
	if errUnmarshal := json.Unmarshal(raw, &values); errUnmarshal != nil {
		return nil, fmt.Errorf("prompt: parse defaults: %w", errUnmarshal)
	}
	return CoerceParams(values), nil
}

// CoerceParams string-coerces arbitrary JSON values. Nil values are dropped.
func CoerceParams(values map[string]any) map[string]string {
	out := make(map[string]string, len(values))
	for key, value := range values {
		switch v := value.(type) {
		case nil:
			continue
		case string:
			out[key] = v
		case float64:
			out[key] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			out[key] = strconv.FormatBool(v)
		case json.Number:
			out[key] = v.String()
		default:
			encoded, errMarshal := json.Marshal(v)
			if errMarshal != nil {
				out[key] = fmt.Sprint(v)
				continue
			}
			out[key] = string(encoded)
		}
	}
	return out
}

// MergeDefaults overlays params on top of defaults.
func MergeDefaults(defaults, params map[string]string) map[string]string {
	out := make(map[string]string, len(defaults)+len(params))
	for key, value := range defaults {
		out[key] = value
	}
	for key, value := range params {
		out[key] = value
	}
	return out
}

// ValidateParams checks params against schema. Keys absent from the schema are
// left alone, since templates may reference ad hoc placeholders.
func ValidateParams(schema []ParamDef, params map[string]string) error {
	for _, def := range schema {
		value, ok := params[def.Key]
		if !ok {
			continue
		}
		switch def.Type {
		case ParamSelect:
			if len(def.Options) == 0 {
				continue
			}
			found := false
			for _, option := range def.Options {
				if option.Value == value {
					found = true
					break
				}
			}
			if !found {
				return &ValidationError{Key: def.Key, Message: "value is not one of the allowed options"}
			}
		case ParamSlider:
			number, errParse := strconv.ParseFloat(strings.TrimSpace(value), 64)
			if errParse != nil {
				return &ValidationError{Key: def.Key, Message: "value must be numeric"}
			}
			var rules []string
			if def.Min != nil {
				rules = append(rules, "gte="+strconv.FormatFloat(*def.Min, 'f', -1, 64))
			}
			if def.Max != nil {
				rules = append(rules, "lte="+strconv.FormatFloat(*def.Max, 'f', -1, 64))
			}
			if len(rules) == 0 {
				continue
			}
			if errVar := validate.Var(number, strings.Join(rules, ",")); errVar != nil {
				return &ValidationError{Key: def.Key, Message: "value is out of range"}
			}
		case ParamInput:
			if errVar := validate.Var(value, "max="+strconv.Itoa(maxInputLength)); errVar != nil {
				return &ValidationError{Key: def.Key, Message: "value is too long"}
			}
		}
	}
	return nil
}

// ValidationError reports a parameter that does not satisfy its schema.
type ValidationError struct {
	Key     string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("parameter %q: %s", e.Key, e.Message)
}
