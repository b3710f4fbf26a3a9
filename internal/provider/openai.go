package provider

import (
	"iter"
	"time"

	"github.com/google/uuid"

	"github.com/yungtweek/mockllm/internal/mock"
)

// ChatCompletion is the non-streaming /v1/chat/completions response.
type ChatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   any          `json:"usage"`
}

type ChatChoice struct {
	Index        int              `json:"index"`
	Message      AssistantMessage `json:"message"`
	FinishReason string           `json:"finish_reason"`
	Logprobs     any              `json:"logprobs"`
}

type AssistantMessage struct {
	Role             string  `json:"role"`
	Content          string  `json:"content"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// ChatCompletionChunk is one SSE frame of a streaming chat completion.
type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`
	Usage   any           `json:"usage,omitempty"`
}

type ChunkChoice struct {
	Index        int        `json:"index"`
	Delta        ChunkDelta `json:"delta"`
	FinishReason *string    `json:"finish_reason"`
	Logprobs     any        `json:"logprobs"`
}

type ChunkDelta struct {
	Role             string  `json:"role,omitempty"`
	Content          *string `json:"content,omitempty"`
	ReasoningContent *string `json:"reasoning_content,omitempty"`
}

// OpenAI renders the chat completions protocol.
type OpenAI struct {
	est mock.Estimator
	now func() time.Time
}

func NewOpenAI(est mock.Estimator) *OpenAI {
	return &OpenAI{est: est, now: time.Now}
}

func (o *OpenAI) Name() string { return "openai" }

func (o *OpenAI) usage(p mock.Payload, req *Request) any {
	if p.Usage != nil {
		return p.Usage
	}
	tc := countTokens(o.est, req, p.Content)
	return map[string]any{
		"prompt_tokens":     tc.prompt,
		"completion_tokens": tc.completion,
		"total_tokens":      tc.prompt + tc.completion,
	}
}

func (o *OpenAI) Render(p mock.Payload, req *Request) any {
	return ChatCompletion{
		ID:      "chatcmpl-" + uuid.NewString(),
		Object:  "chat.completion",
		Created: o.now().Unix(),
		Model:   req.Model,
		Choices: []ChatChoice{{
			Index: 0,
			Message: AssistantMessage{
				Role:             "assistant",
				Content:          p.Content,
				ReasoningContent: p.Reasoning,
			},
			FinishReason: "stop",
		}},
		Usage: o.usage(p, req),
	}
}

// Stream emits a role frame, an optional reasoning frame, one frame per
// content chunk, the stop frame, an optional usage frame and [DONE]. Every
// frame of one response shares its id and created timestamp.
func (o *OpenAI) Stream(p mock.Payload, chunks iter.Seq[string], req *Request) iter.Seq[Frame] {
	return func(yield func(Frame) bool) {
		id := "chatcmpl-" + uuid.NewString()
		created := o.now().Unix()

		frame := func(choices []ChunkChoice, usage any) Frame {
			return Frame{Data: ChatCompletionChunk{
				ID:      id,
				Object:  "chat.completion.chunk",
				Created: created,
				Model:   req.Model,
				Choices: choices,
				Usage:   usage,
			}}
		}
		delta := func(d ChunkDelta) Frame {
			return frame([]ChunkChoice{{Index: 0, Delta: d}}, nil)
		}

		empty := ""
		if !yield(delta(ChunkDelta{Role: "assistant", Content: &empty})) {
			return
		}
		if p.Reasoning != nil {
			if !yield(delta(ChunkDelta{ReasoningContent: p.Reasoning})) {
				return
			}
		}
		for c := range chunks {
			if !yield(delta(ChunkDelta{Content: &c})) {
				return
			}
		}

		stop := "stop"
		if !yield(frame([]ChunkChoice{{Index: 0, Delta: ChunkDelta{}, FinishReason: &stop}}, nil)) {
			return
		}
		if req.IncludeUsage {
			if !yield(frame([]ChunkChoice{}, o.usage(p, req))) {
				return
			}
		}
		yield(Frame{Done: true})
	}
}
