package provider

import (
	"errors"
	"fmt"
)

// ErrNoUserMessage is returned when a request carries no user message.
var ErrNoUserMessage = errors.New("no user message found in request")

// ValidationError reports a request body that does not match the protocol.
type ValidationError struct {
	Field string
	Err   error
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Field, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// Request holds the fields of a chat request both protocols share. Messages
// stay in their decoded JSON form so resolvers and token counting see what
// the client sent.
type Request struct {
	Model    string
	Messages []any
	Stream   bool
	// IncludeUsage mirrors stream_options.include_usage.
	IncludeUsage bool
}

// ParseRequest validates a decoded JSON body.
func ParseRequest(body map[string]any) (*Request, error) {
	if body == nil {
		return nil, &ValidationError{Err: errors.New("body must be a JSON object")}
	}

	model, ok := body["model"].(string)
	if !ok {
		return nil, &ValidationError{Field: "model", Err: errors.New("field required, must be a string")}
	}

	messages, ok := body["messages"].([]any)
	if !ok {
		return nil, &ValidationError{Field: "messages", Err: errors.New("field required, must be a list")}
	}
	for i, m := range messages {
		if err := validateMessage(m); err != nil {
			return nil, &ValidationError{Field: fmt.Sprintf("messages.%d", i), Err: err}
		}
	}

	req := &Request{Model: model, Messages: messages}

	if v, present := body["stream"]; present && v != nil {
		if req.Stream, ok = v.(bool); !ok {
			return nil, &ValidationError{Field: "stream", Err: errors.New("must be a boolean")}
		}
	}

	if v, present := body["stream_options"]; present && v != nil {
		opts, ok := v.(map[string]any)
		if !ok {
			return nil, &ValidationError{Field: "stream_options", Err: errors.New("must be an object")}
		}
		if iu, present := opts["include_usage"]; present && iu != nil {
			if req.IncludeUsage, ok = iu.(bool); !ok {
				return nil, &ValidationError{Field: "stream_options.include_usage", Err: errors.New("must be a boolean")}
			}
		}
	}

	return req, nil
}

func validateMessage(v any) error {
	m, ok := v.(map[string]any)
	if !ok {
		return errors.New("must be an object")
	}
	if _, ok := m["role"].(string); !ok {
		return errors.New("role: field required, must be a string")
	}
	switch m["content"].(type) {
	case string, []any:
		return nil
	default:
		return errors.New("content: must be a string or a list of blocks")
	}
}

// HasUserMessage reports whether any message has the user role.
func (r *Request) HasUserMessage() bool {
	for _, m := range r.Messages {
		if mm, ok := m.(map[string]any); ok && mm["role"] == "user" {
			return true
		}
	}
	return false
}
