package core

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"sort"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Args is the loosely typed argument object of an inbound call.
type Args map[string]any

func (a Args) String(key string) (string, bool) {
	value, ok := a[key].(string)
	return value, ok
}

func (a Args) StringOr(key string, fallback string) string {
	if value, ok := a.String(key); ok {
		return value
	}
	return fallback
}

func (a Args) Int(key string) (int, bool) {
	return toInt(a[key])
}

func (a Args) Bool(key string) (bool, bool) {
	value, ok := a[key].(bool)
	return value, ok
}

func (a Args) Map(key string) (map[string]any, bool) {
	value, ok := a[key].(map[string]any)
	return value, ok
}

func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// PageToken is forwarded to the provider byte for byte.
func (a Args) PageToken() string {
	value, _ := a.String(PageTokenField)
	return value
}

func (a Args) Clone() Args {
	out := make(Args, len(a))
	for key, value := range a {
		out[key] = value
	}
	return out
}

type FieldType string

const (
	FieldString  FieldType = "string"
	FieldInteger FieldType = "integer"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
)

type FieldSpec struct {
	Name        string
	Type        FieldType
	Required    bool
	Enum        []string
	Description string
}

// ArgumentContract describes the accepted shape of an operation's arguments.
// Strict contracts reject fields they do not declare.
type ArgumentContract struct {
	Fields []FieldSpec
	Strict bool
}

func (c ArgumentContract) Field(name string) (FieldSpec, bool) {
	for _, field := range c.Fields {
		if field.Name == name {
			return field, true
		}
	}
	return FieldSpec{}, false
}

func (c ArgumentContract) withField(spec FieldSpec) ArgumentContract {
	if _, exists := c.Field(spec.Name); exists {
		return c
	}
	out := ArgumentContract{Strict: c.Strict, Fields: append([]FieldSpec(nil), c.Fields...)}
	out.Fields = append(out.Fields, spec)
	return out
}

// Validate reports every violation at once as a go-errors validation error.
func (c ArgumentContract) Validate(args Args) error {
	violations := c.violations(args)
	if len(violations) == 0 {
		return nil
	}
	details := make([]any, 0, len(violations))
	messages := make([]string, 0, len(violations))
	for _, violation := range violations {
		details = append(details, map[string]any{"field": violation.Field, "message": violation.Message})
		messages = append(messages, violation.Field+": "+violation.Message)
	}
	return goerrors.NewValidation("invalid arguments: "+strings.Join(messages, "; "), violations...).
		WithCode(http.StatusBadRequest).
		WithTextCode(GatewayErrorInvalidArgument).
		WithMetadata(map[string]any{"details": details})
}

func (c ArgumentContract) violations(args Args) []goerrors.FieldError {
	var out []goerrors.FieldError
	for _, field := range c.Fields {
		value, present := args[field.Name]
		if !present || value == nil {
			if field.Required {
				out = append(out, goerrors.FieldError{Field: field.Name, Message: "is required"})
			}
			continue
		}
		if message := checkFieldValue(field, value); message != "" {
			out = append(out, goerrors.FieldError{Field: field.Name, Message: message})
		}
	}
	if c.Strict {
		unknown := make([]string, 0)
		for key := range args {
			if _, declared := c.Field(key); !declared {
				unknown = append(unknown, key)
			}
		}
		sort.Strings(unknown)
		for _, key := range unknown {
			out = append(out, goerrors.FieldError{Field: key, Message: "is not a recognized argument"})
		}
	}
	return out
}

func checkFieldValue(field FieldSpec, value any) string {
	switch field.Type {
	case FieldString:
		text, ok := value.(string)
		if !ok {
			return "must be a string"
		}
		if field.Required && strings.TrimSpace(text) == "" {
			return "must not be empty"
		}
		if len(field.Enum) > 0 && !containsString(field.Enum, text) {
			return fmt.Sprintf("must be one of %s", strings.Join(field.Enum, ", "))
		}
	case FieldInteger:
		if _, ok := toInt(value); !ok || isStringValue(value) {
			return "must be an integer"
		}
	case FieldNumber:
		if !isNumber(value) {
			return "must be a number"
		}
	case FieldBoolean:
		if _, ok := value.(bool); !ok {
			return "must be a boolean"
		}
	case FieldObject:
		if _, ok := value.(map[string]any); !ok {
			return "must be an object"
		}
	case FieldArray:
		if _, ok := value.([]any); !ok {
			if _, ok := value.([]string); !ok {
				return "must be an array"
			}
		}
	}
	return ""
}

// Schema renders the contract as a JSON Schema object for catalog listings.
func (c ArgumentContract) Schema() map[string]any {
	properties := make(map[string]any, len(c.Fields))
	required := make([]string, 0)
	for _, field := range c.Fields {
		property := map[string]any{"type": string(field.Type)}
		if strings.TrimSpace(field.Description) != "" {
			property["description"] = field.Description
		}
		if len(field.Enum) > 0 {
			property["enum"] = append([]string(nil), field.Enum...)
		}
		properties[field.Name] = property
		if field.Required {
			required = append(required, field.Name)
		}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	if c.Strict {
		schema["additionalProperties"] = false
	}
	return schema
}

func isStringValue(value any) bool {
	_, ok := value.(string)
	return ok
}

func isNumber(value any) bool {
	switch typed := value.(type) {
	case int, int32, int64:
		return true
	case float32:
		return !math.IsNaN(float64(typed))
	case float64:
		return !math.IsNaN(typed) && !math.IsInf(typed, 0)
	case json.Number:
		_, err := typed.Float64()
		return err == nil
	default:
		return false
	}
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
