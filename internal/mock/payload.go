package mock

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidShape  = errors.New("invalid return shape")
	ErrContentType   = errors.New("response content must be a string")
	ErrReasoningType = errors.New("reasoning must be a string when provided")
	ErrUsageType     = errors.New("usage must be a mapping when provided")
)

// ResolverError reports a resolver that failed or produced something that
// cannot be turned into a Payload.
type ResolverError struct {
	Resolver string
	Err      error
}

func (e *ResolverError) Error() string {
	if e.Resolver == "" {
		return fmt.Sprintf("resolver: %v", e.Err)
	}
	return fmt.Sprintf("resolver %s: %v", e.Resolver, e.Err)
}

func (e *ResolverError) Unwrap() error { return e.Err }

// Payload is the normalized answer for one request. Usage is protocol
// shaped and opaque here; it is rendered verbatim when set.
type Payload struct {
	Content   string
	Usage     map[string]any
	Reasoning *string
}

// Resolution is what a Resolver hands back before normalization. The
// variants are Payload, ContentOnly, ContentWithUsage and
// ContentReasoningUsage.
type Resolution interface {
	resolution()
}

type ContentOnly string

type ContentWithUsage struct {
	Content string
	Usage   map[string]any
}

type ContentReasoningUsage struct {
	Content   string
	Reasoning string
	Usage     map[string]any
}

func (Payload) resolution()               {}
func (ContentOnly) resolution()           {}
func (ContentWithUsage) resolution()      {}
func (ContentReasoningUsage) resolution() {}

// Normalize turns any Resolution variant into a Payload.
func Normalize(r Resolution) (Payload, error) {
	switch v := r.(type) {
	case Payload:
		return v, nil
	case *Payload:
		if v == nil {
			break
		}
		return *v, nil
	case ContentOnly:
		return Payload{Content: string(v)}, nil
	case ContentWithUsage:
		return Payload{Content: v.Content, Usage: v.Usage}, nil
	case ContentReasoningUsage:
		reasoning := v.Reasoning
		return Payload{Content: v.Content, Usage: v.Usage, Reasoning: &reasoning}, nil
	}
	return Payload{}, &ResolverError{Err: ErrInvalidShape}
}

// DecodeResolution converts a dynamically typed value, usually decoded
// JSON from an out-of-process resolver, into a Resolution. Accepted shapes:
//
//	"text"
//	["text", usage]
//	["text", reasoning, usage]
//	{"content": "text", "reasoning": ..., "usage": {...}}
//
// usage and reasoning may be null.
func DecodeResolution(v any) (Resolution, error) {
	switch t := v.(type) {
	case Resolution:
		return t, nil
	case string:
		return ContentOnly(t), nil
	case []any:
		return decodeSequence(t)
	case map[string]any:
		return decodeMapping(t)
	}
	return nil, &ResolverError{Err: ErrInvalidShape}
}

func decodeSequence(seq []any) (Resolution, error) {
	var content, reasoning, usage any
	switch len(seq) {
	case 2:
		content, usage = seq[0], seq[1]
	case 3:
		content, reasoning, usage = seq[0], seq[1], seq[2]
	default:
		return nil, &ResolverError{Err: fmt.Errorf("%w: sequence of length %d", ErrInvalidShape, len(seq))}
	}
	p, err := decodeFields(content, reasoning, usage)
	if err != nil {
		return nil, err
	}
	if p.Reasoning == nil {
		return ContentWithUsage{Content: p.Content, Usage: p.Usage}, nil
	}
	return ContentReasoningUsage{Content: p.Content, Reasoning: *p.Reasoning, Usage: p.Usage}, nil
}

func decodeMapping(m map[string]any) (Resolution, error) {
	content, ok := m["content"]
	if !ok {
		return nil, &ResolverError{Err: fmt.Errorf("%w: mapping without content", ErrInvalidShape)}
	}
	p, err := decodeFields(content, m["reasoning"], m["usage"])
	if err != nil {
		return nil, err
	}
	return p, nil
}

func decodeFields(content, reasoning, usage any) (Payload, error) {
	var p Payload
	s, ok := content.(string)
	if !ok {
		return p, &ResolverError{Err: ErrContentType}
	}
	p.Content = s
	if reasoning != nil {
		r, ok := reasoning.(string)
		if !ok {
			return p, &ResolverError{Err: ErrReasoningType}
		}
		p.Reasoning = &r
	}
	if usage != nil {
		u, ok := usage.(map[string]any)
		if !ok {
			return p, &ResolverError{Err: ErrUsageType}
		}
		p.Usage = u
	}
	return p, nil
}
