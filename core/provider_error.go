package core

import (
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

const unknownProviderErrorMessage = "Unknown provider error"

// ProviderError is the remote API's structured error body, decoded from
// {"error":{"code","message","status","errors"}}.
type ProviderError struct {
	StatusCode int
	Code       int
	Status     string
	Message    string
	Errors     []map[string]any
	RetryAfter time.Duration
}

func (e *ProviderError) Error() string {
	if e == nil {
		return ""
	}
	code := e.Code
	if code == 0 {
		code = e.StatusCode
	}
	return fmt.Sprintf("provider error %d: %s", code, e.message())
}

func (e *ProviderError) message() string {
	if e == nil || strings.TrimSpace(e.Message) == "" {
		return unknownProviderErrorMessage
	}
	return e.Message
}

// Reasons lists the machine reasons of the nested errors, e.g. notFound or
// userRateLimitExceeded.
func (e *ProviderError) Reasons() []string {
	if e == nil {
		return nil
	}
	reasons := make([]string, 0, len(e.Errors))
	for _, item := range e.Errors {
		if reason, ok := item["reason"].(string); ok && strings.TrimSpace(reason) != "" {
			reasons = append(reasons, strings.TrimSpace(reason))
		}
	}
	return reasons
}

func (e *ProviderError) Kind() ErrorKind {
	if e == nil {
		return KindUnknown
	}
	code := e.Code
	if code == 0 {
		code = e.StatusCode
	}
	return providerKind(code, e.Status, e.Reasons())
}

// Details returns the nested errors array in a JSON friendly shape.
func (e *ProviderError) Details() any {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	details := make([]any, 0, len(e.Errors))
	for _, item := range e.Errors {
		details = append(details, item)
	}
	return details
}

type providerErrorBody struct {
	Error *struct {
		Code    json.RawMessage  `json:"code"`
		Message string           `json:"message"`
		Status  string           `json:"status"`
		Errors  []map[string]any `json:"errors"`
	} `json:"error"`
}

// ParseProviderError decodes a non-2xx response. Bodies that are not the
// structured error shape still produce an error keyed on the HTTP status.
func ParseProviderError(statusCode int, headers map[string]string, body []byte) *ProviderError {
	out := &ProviderError{
		StatusCode: statusCode,
		RetryAfter: parseRetryAfter(headerValue(headers, "Retry-After"), time.Now()),
	}
	var parsed providerErrorBody
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error != nil {
		out.Message = strings.TrimSpace(parsed.Error.Message)
		out.Status = strings.TrimSpace(parsed.Error.Status)
		out.Errors = parsed.Error.Errors
		code, status := decodeProviderCode(rawJSONValue(parsed.Error.Code))
		out.Code = code
		if out.Status == "" {
			out.Status = status
		}
	}
	if out.Message == "" {
		out.Message = strings.TrimSpace(http.StatusText(statusCode))
	}
	return out
}

// providerErrorFromMap recognizes the loosely typed
// response.data.error.{code,message,errors} shape.
func providerErrorFromMap(raw map[string]any) (*ProviderError, bool) {
	response, ok := raw["response"].(map[string]any)
	if !ok {
		return nil, false
	}
	data, ok := response["data"].(map[string]any)
	if !ok {
		return nil, false
	}
	nested, ok := data["error"].(map[string]any)
	if !ok {
		return nil, false
	}
	out := errorObjectToProviderError(nested)
	if status, ok := toInt(response["status"]); ok {
		out.StatusCode = status
	}
	return out, true
}

func errorObjectToProviderError(nested map[string]any) *ProviderError {
	out := &ProviderError{}
	out.Code, out.Status = decodeProviderCode(nested["code"])
	if status, ok := nested["status"].(string); ok && strings.TrimSpace(status) != "" {
		out.Status = strings.TrimSpace(status)
	}
	if message, ok := nested["message"].(string); ok {
		out.Message = strings.TrimSpace(message)
	}
	if items, ok := nested["errors"].([]any); ok {
		for _, item := range items {
			if typed, ok := item.(map[string]any); ok {
				out.Errors = append(out.Errors, typed)
			}
		}
	}
	if items, ok := nested["errors"].([]map[string]any); ok {
		out.Errors = append(out.Errors, items...)
	}
	return out
}

func providerKind(code int, status string, reasons []string) ErrorKind {
	for _, reason := range reasons {
		switch reason {
		case "rateLimitExceeded", "userRateLimitExceeded", "sharingRateLimitExceeded":
			return KindRateLimited
		}
	}
	switch {
	case code == http.StatusUnauthorized, code == http.StatusForbidden:
		return KindAuthError
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusTooManyRequests:
		return KindRateLimited
	case code == http.StatusRequestTimeout, code >= 500 && code <= 599:
		return KindTransient
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity:
		return KindInvalidArgument
	}
	switch strings.ToUpper(strings.TrimSpace(status)) {
	case "UNAUTHENTICATED", "PERMISSION_DENIED":
		return KindAuthError
	case "NOT_FOUND":
		return KindNotFound
	case "RESOURCE_EXHAUSTED":
		return KindRateLimited
	case "UNAVAILABLE", "INTERNAL", "DEADLINE_EXCEEDED":
		return KindTransient
	case "INVALID_ARGUMENT", "FAILED_PRECONDITION", "OUT_OF_RANGE":
		return KindInvalidArgument
	}
	return KindUnknown
}

// decodeProviderCode accepts numeric codes, numeric strings and textual
// status codes such as NOT_FOUND.
func decodeProviderCode(value any) (int, string) {
	if code, ok := toInt(value); ok {
		return code, ""
	}
	if text, ok := value.(string); ok {
		return 0, strings.TrimSpace(text)
	}
	return 0, ""
}

func rawJSONValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		return nil
	}
	return value
}

func toInt(value any) (int, bool) {
	switch typed := value.(type) {
	case int:
		return typed, true
	case int32:
		return int(typed), true
	case int64:
		return int(typed), true
	case float64:
		if math.Trunc(typed) != typed {
			return 0, false
		}
		return int(typed), true
	case json.Number:
		parsed, err := typed.Int64()
		if err != nil {
			return 0, false
		}
		return int(parsed), true
	case string:
		parsed, err := strconv.Atoi(strings.TrimSpace(typed))
		if err != nil {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func headerValue(headers map[string]string, key string) string {
	if value, ok := headers[key]; ok {
		return value
	}
	for name, value := range headers {
		if strings.EqualFold(name, key) {
			return value
		}
	}
	return ""
}

func parseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if delay := at.Sub(now); delay > 0 {
			return delay
		}
	}
	return 0
}
