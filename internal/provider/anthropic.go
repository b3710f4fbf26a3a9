package provider

import (
	"iter"
	"strings"

	"github.com/google/uuid"

	"github.com/yungtweek/mockllm/internal/mock"
)

const thinkingSignature = "mockllm-signature"

// Message is the non-streaming /v1/messages response.
type Message struct {
	ID           string         `json:"id"`
	Type         string         `json:"type"`
	Role         string         `json:"role"`
	Model        string         `json:"model"`
	Content      []ContentBlock `json:"content"`
	StopReason   *string        `json:"stop_reason"`
	StopSequence *string        `json:"stop_sequence"`
	Usage        any            `json:"usage"`
}

// ContentBlock is a text or thinking block.
type ContentBlock struct {
	Type      string  `json:"type"`
	Text      *string `json:"text,omitempty"`
	Thinking  *string `json:"thinking,omitempty"`
	Signature *string `json:"signature,omitempty"`
}

func textBlock(s string) ContentBlock {
	return ContentBlock{Type: "text", Text: &s}
}

func thinkingBlock(thinking, signature string) ContentBlock {
	return ContentBlock{Type: "thinking", Thinking: &thinking, Signature: &signature}
}

type blockDelta struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`
}

// Anthropic renders the messages protocol.
type Anthropic struct {
	est mock.Estimator
}

func NewAnthropic(est mock.Estimator) *Anthropic {
	return &Anthropic{est: est}
}

func (a *Anthropic) Name() string { return "anthropic" }

func newMessageID() string {
	return "msg_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

func (a *Anthropic) Render(p mock.Payload, req *Request) any {
	var blocks []ContentBlock
	if p.Reasoning != nil {
		blocks = append(blocks, thinkingBlock(*p.Reasoning, thinkingSignature))
	}
	blocks = append(blocks, textBlock(p.Content))

	usage := p.Usage
	if usage == nil {
		tc := countTokens(a.est, req, p.Content)
		usage = map[string]any{"input_tokens": tc.prompt, "output_tokens": tc.completion}
	}

	endTurn := "end_turn"
	return Message{
		ID:         newMessageID(),
		Type:       "message",
		Role:       "assistant",
		Model:      req.Model,
		Content:    blocks,
		StopReason: &endTurn,
		Usage:      usage,
	}
}

// Stream emits the event sequence of the Anthropic streaming API. A usage
// mapping from the resolver is sent verbatim in message_start; its
// output_tokens, when present, is repeated in message_delta.
func (a *Anthropic) Stream(p mock.Payload, chunks iter.Seq[string], req *Request) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		event := func(typ string, data map[string]any) Frame {
			data["type"] = typ
			return Frame{Event: typ, Data: data}
		}

		var startUsage, outputTokens any
		if p.Usage != nil {
			startUsage = p.Usage
			if v, ok := p.Usage["output_tokens"]; ok {
				outputTokens = v
			} else {
				outputTokens = a.est.Estimate(p.Content, req.Model)
			}
		} else {
			tc := countTokens(a.est, req, p.Content)
			startUsage = map[string]any{"input_tokens": tc.prompt, "output_tokens": 0}
			outputTokens = tc.completion
		}

		start := event("message_start", map[string]any{
			"message": Message{
				ID:      newMessageID(),
				Type:    "message",
				Role:    "assistant",
				Model:   req.Model,
				Content: []ContentBlock{},
				Usage:   startUsage,
			},
		})
		if !yield(start) {
			return
		}

		index := 0
		if p.Reasoning != nil {
			frames := []Frame{
				event("content_block_start", map[string]any{
					"index":         index,
					"content_block": thinkingBlock("", ""),
				}),
				event("content_block_delta", map[string]any{
					"index": index,
					"delta": blockDelta{Type: "thinking_delta", Thinking: *p.Reasoning},
				}),
				event("content_block_delta", map[string]any{
					"index": index,
					"delta": blockDelta{Type: "signature_delta", Signature: thinkingSignature},
				}),
				event("content_block_stop", map[string]any{"index": index}),
			}
			for _, f := range frames {
				if !yield(f) {
					return
				}
			}
			index++
		}

		if !yield(event("content_block_start", map[string]any{
			"index":         index,
			"content_block": textBlock(""),
		})) {
			return
		}
		if !yield(event("ping", map[string]any{})) {
			return
		}
		for c := range chunks {
			if !yield(event("content_block_delta", map[string]any{
				"index": index,
				"delta": blockDelta{Type: "text_delta", Text: c},
			})) {
				return
			}
		}
		if !yield(event("content_block_stop", map[string]any{"index": index})) {
			return
		}

		if !yield(event("message_delta", map[string]any{
			"delta": map[string]any{"stop_reason": "end_turn", "stop_sequence": nil},
			"usage": map[string]any{"output_tokens": outputTokens},
		})) {
			return
		}
		yield(event("message_stop", map[string]any{}))
	}
}
