package core

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Failure is the error half of an Envelope.
type Failure struct {
	Kind    ErrorKind `json:"errorKind"`
	Message string    `json:"message"`
	Details any       `json:"details,omitempty"`
}

// Envelope is the only shape that leaves the dispatcher. Exactly one of Data
// (success) or Failure is meaningful.
type Envelope struct {
	Data    any
	Failure *Failure
}

func Success(data any) Envelope {
	return Envelope{Data: data}
}

func Fail(kind ErrorKind, message string, details any) Envelope {
	if !kind.Valid() {
		kind = KindUnknown
	}
	message = strings.TrimSpace(message)
	if message == "" {
		message = string(kind)
	}
	return Envelope{Failure: &Failure{Kind: kind, Message: message, Details: details}}
}

func (e Envelope) IsSuccess() bool {
	return e.Failure == nil
}

// Kind is empty for successful envelopes.
func (e Envelope) Kind() ErrorKind {
	if e.Failure == nil {
		return ""
	}
	return e.Failure.Kind
}

// Err converts a failure into a go-errors value; nil for success.
func (e Envelope) Err() error {
	if e.Failure == nil {
		return nil
	}
	err := NewKindError(e.Failure.Kind, e.Failure.Message)
	if e.Failure.Details != nil {
		err.WithMetadata(map[string]any{"details": e.Failure.Details})
	}
	return err
}

type successWire struct {
	Success bool `json:"success"`
	Data    any  `json:"data"`
}

type failureWire struct {
	Success   bool      `json:"success"`
	ErrorKind ErrorKind `json:"errorKind"`
	Message   string    `json:"message"`
	Details   any       `json:"details,omitempty"`
}

func (e Envelope) MarshalJSON() ([]byte, error) {
	if e.Failure == nil {
		return json.Marshal(successWire{Success: true, Data: e.Data})
	}
	return json.Marshal(failureWire{
		Success:   false,
		ErrorKind: e.Failure.Kind,
		Message:   e.Failure.Message,
		Details:   e.Failure.Details,
	})
}

func (e *Envelope) UnmarshalJSON(data []byte) error {
	var wire struct {
		Success   *bool           `json:"success"`
		Data      json.RawMessage `json:"data"`
		ErrorKind ErrorKind       `json:"errorKind"`
		Message   string          `json:"message"`
		Details   any             `json:"details"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	if wire.Success == nil {
		return fmt.Errorf("core: envelope success flag is required")
	}
	if *wire.Success {
		var payload any
		if len(wire.Data) > 0 {
			if err := json.Unmarshal(wire.Data, &payload); err != nil {
				return err
			}
		}
		*e = Success(payload)
		return nil
	}
	*e = Fail(wire.ErrorKind, wire.Message, wire.Details)
	return nil
}
