package core

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// NonFieldErrorsKey holds the errors that are not tied to a single form field.
const NonFieldErrorsKey = "non_field_errors"

var (
	ErrNetwork        = errors.New("network error: unable to reach the server")
	ErrSessionExpired = errors.New("your session has expired, please log in again")
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client-side validation failure; it is never sent to the backend.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	if len(err.Fields) > 0 {
		return err.Fields[0].Field + ": " + err.Fields[0].Error
	}
	return "validation failed"
}

// FieldErrors groups the field errors by field name.
func (err ValidationError) FieldErrors() map[string][]string {
	flds := make(map[string][]string, len(err.Fields))
	for _, fErr := range err.Fields {
		flds[fErr.Field] = append(flds[fErr.Field], fErr.Error)
	}
	if err.Err != nil && len(flds[NonFieldErrorsKey]) == 0 {
		flds[NonFieldErrorsKey] = []string{err.Err.Error()}
	}
	return flds
}

// APIError is the normalized form of every failed backend call.
// Exactly one of Fields / Detail is usually set; Network is set when no response was received.
type APIError struct {
	Status  int                 `json:"status,omitempty"`
	Fields  map[string][]string `json:"fields,omitempty"`
	Detail  string              `json:"detail,omitempty"`
	Network bool                `json:"network,omitempty"`
	Err     error               `json:"-"`
}

func (err *APIError) Error() string {
	if err.Status > 0 {
		return fmt.Sprintf("%d: %s", err.Status, err.Message())
	}
	return err.Message()
}

func (err *APIError) Unwrap() error { return err.Err }

// Message returns a single human readable message, suitable for a banner.
func (err *APIError) Message() string {
	if err.Detail != "" {
		return err.Detail
	}
	if msgs := err.Fields[NonFieldErrorsKey]; len(msgs) > 0 {
		return msgs[0]
	}
	if len(err.Fields) > 0 {
		keys := make([]string, 0, len(err.Fields))
		for k := range err.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if msgs := err.Fields[keys[0]]; len(msgs) > 0 {
			return keys[0] + ": " + msgs[0]
		}
	}
	if err.Network {
		return ErrNetwork.Error()
	}
	if err.Status > 0 {
		return http.StatusText(err.Status)
	}
	if err.Err != nil {
		return err.Err.Error()
	}
	return "unknown error"
}

// FieldErrors returns the error as a field-keyed map; a detail message is keyed under NonFieldErrorsKey.
func (err *APIError) FieldErrors() map[string][]string {
	flds := make(map[string][]string, len(err.Fields)+1)
	for k, v := range err.Fields {
		flds[k] = append([]string(nil), v...)
	}
	if len(flds[NonFieldErrorsKey]) == 0 && (err.Detail != "" || len(flds) == 0) {
		flds[NonFieldErrorsKey] = []string{err.Message()}
	}
	return flds
}

// NormalizeResponse builds an APIError out of an error response.
// Understood bodies: {"detail": ".."}, {"error": ".."}, {"message": "..", "errors": {..}},
// {"field": ["..", ..] | ".."}, ["..", ..]; anything else falls back to the status text.
func NormalizeResponse(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}

	var payload interface{}
	if len(body) == 0 || json.Unmarshal(body, &payload) != nil {
		if txt := strings.TrimSpace(string(body)); txt != "" && len(txt) <= 200 && !strings.HasPrefix(txt, "<") {
			apiErr.Detail = txt
		} else {
			apiErr.Detail = http.StatusText(status)
		}
		return apiErr
	}

	switch data := payload.(type) {
	case map[string]interface{}:
		for _, key := range []string{"detail", "error", "message"} {
			if msg, ok := data[key].(string); ok && msg != "" {
				apiErr.Detail = msg
				delete(data, key)
				break
			}
		}
		if nested, ok := data["errors"].(map[string]interface{}); ok {
			data = nested
		}
		for field, val := range data {
			if _, isList := val.([]interface{}); envelopeKeys[field] && !isList {
				continue
			}
			if msgs := toMessages(val); len(msgs) > 0 {
				if apiErr.Fields == nil {
					apiErr.Fields = make(map[string][]string)
				}
				apiErr.Fields[field] = msgs
			}
		}
		if len(apiErr.Fields) > 0 && isEnvelopeDetail(apiErr.Detail) {
			apiErr.Detail = ""
		}
	case []interface{}:
		apiErr.Detail = strings.Join(toMessages(data), " ")
	case string:
		apiErr.Detail = data
	}
	if apiErr.Detail == "" && len(apiErr.Fields) == 0 {
		apiErr.Detail = http.StatusText(status)
	}
	return apiErr
}

// NormalizeTransport builds an APIError for a request that got no response.
func NormalizeTransport(err error) *APIError {
	return &APIError{Network: true, Detail: ErrNetwork.Error(), Err: err}
}

// Normalize turns any error into an APIError; client-side validation errors keep their fields.
func Normalize(err error) *APIError {
	if err == nil {
		return nil
	}
	switch e := errors.Cause(err).(type) {
	case *APIError:
		return e
	case *ValidationError:
		return &APIError{Fields: e.FieldErrors(), Err: e}
	}
	return &APIError{Detail: err.Error(), Err: err}
}

func IsUnauthorized(err error) bool {
	apiErr, ok := errors.Cause(err).(*APIError)
	return ok && apiErr.Status == http.StatusUnauthorized
}

func IsNotFound(err error) bool {
	apiErr, ok := errors.Cause(err).(*APIError)
	return ok && apiErr.Status == http.StatusNotFound
}

func IsNetwork(err error) bool {
	apiErr, ok := errors.Cause(err).(*APIError)
	return ok && apiErr.Network
}

func toMessages(val interface{}) []string {
	switch v := val.(type) {
	case string:
		return []string{v}
	case []interface{}:
		msgs := make([]string, 0, len(v))
		for _, item := range v {
			msgs = append(msgs, toMessages(item)...)
		}
		return msgs
	case map[string]interface{}:
		msgs := make([]string, 0, len(v))
		for k, item := range v {
			for _, m := range toMessages(item) {
				msgs = append(msgs, k+": "+m)
			}
		}
		sort.Strings(msgs)
		return msgs
	case nil:
		return nil
	}
	return []string{fmt.Sprint(val)}
}

// envelopeKeys are response envelope members when they do not hold a list of messages.
var envelopeKeys = map[string]bool{"success": true, "status": true, "code": true, "error_code": true, "data": true}

// envelope messages like "validation failed" add nothing once the field errors are known.
func isEnvelopeDetail(msg string) bool {
	switch strings.ToLower(msg) {
	case "validation failed", "invalid input":
		return true
	}
	return false
}
