package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"iter"
	"slices"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungtweek/mockllm/internal/mock"
)

var words = mock.EstimatorFunc(mock.WordCount)

func testRequest(stream bool) *Request {
	return &Request{
		Model:    "mock-llm",
		Messages: []any{map[string]any{"role": "user", "content": "hello"}},
		Stream:   stream,
	}
}

func chunksOf(content string, size int) iter.Seq[string] {
	return mock.Emitter{}.Chunks(context.Background(), content, size)
}

// sseEvent is one parsed SSE block.
type sseEvent struct {
	event string
	data  string
}

func encodeAll(t *testing.T, frames iter.Seq[Frame]) []sseEvent {
	t.Helper()
	var buf bytes.Buffer
	flushes := 0
	n, err := WriteFrames(&buf, func() { flushes++ }, frames)
	require.NoError(t, err)
	assert.Equal(t, n, flushes)

	var out []sseEvent
	for _, block := range strings.Split(strings.TrimSuffix(buf.String(), "\n\n"), "\n\n") {
		var ev sseEvent
		for _, line := range strings.Split(block, "\n") {
			switch {
			case strings.HasPrefix(line, "event: "):
				ev.event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			default:
				t.Fatalf("unexpected SSE line %q", line)
			}
		}
		out = append(out, ev)
	}
	require.Len(t, out, n)
	return out
}

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestFrameEncode(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Frame{Data: map[string]any{"a": 1}}.Encode(&buf))
	require.NoError(t, Frame{Event: "ping", Data: map[string]any{"type": "ping"}}.Encode(&buf))
	require.NoError(t, Frame{Done: true}.Encode(&buf))
	assert.Equal(t, "data: {\"a\":1}\n\n"+
		"event: ping\ndata: {\"type\":\"ping\"}\n\n"+
		"data: [DONE]\n\n", buf.String())
}

func TestParseRequest(t *testing.T) {
	req, err := ParseRequest(map[string]any{
		"model":          "gpt-4o",
		"messages":       []any{map[string]any{"role": "user", "content": "hi"}},
		"stream":         true,
		"stream_options": map[string]any{"include_usage": true},
		"temperature":    0.2,
	})
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", req.Model)
	assert.True(t, req.Stream)
	assert.True(t, req.IncludeUsage)
	assert.True(t, req.HasUserMessage())

	req, err = ParseRequest(map[string]any{
		"model": "claude",
		"messages": []any{map[string]any{"role": "user", "content": []any{
			map[string]any{"type": "text", "text": "hi"},
		}}},
		"stream": nil,
	})
	require.NoError(t, err)
	assert.False(t, req.Stream)
}

func TestParseRequestErrors(t *testing.T) {
	tests := []struct {
		name  string
		body  map[string]any
		field string
	}{
		{name: "nil body", body: nil},
		{name: "missing model", body: map[string]any{"messages": []any{}}, field: "model"},
		{name: "numeric model", body: map[string]any{"model": 1.0, "messages": []any{}}, field: "model"},
		{name: "missing messages", body: map[string]any{"model": "m"}, field: "messages"},
		{name: "message not object", body: map[string]any{"model": "m", "messages": []any{"x"}}, field: "messages.0"},
		{name: "message without role", body: map[string]any{"model": "m", "messages": []any{map[string]any{"content": "x"}}}, field: "messages.0"},
		{name: "numeric content", body: map[string]any{"model": "m", "messages": []any{map[string]any{"role": "user", "content": 3.0}}}, field: "messages.0"},
		{name: "stream not bool", body: map[string]any{"model": "m", "messages": []any{}, "stream": "yes"}, field: "stream"},
		{name: "stream options not object", body: map[string]any{"model": "m", "messages": []any{}, "stream_options": true}, field: "stream_options"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := ParseRequest(tc.body)
			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.Equal(t, tc.field, ve.Field)
		})
	}
}

func TestHasUserMessage(t *testing.T) {
	req := &Request{Messages: []any{map[string]any{"role": "system", "content": "s"}}}
	assert.False(t, req.HasUserMessage())
	assert.True(t, errors.Is(&ValidationError{Err: ErrNoUserMessage}, ErrNoUserMessage))
}

func TestOpenAIRender(t *testing.T) {
	o := NewOpenAI(words)
	req := testRequest(false)

	got := o.Render(mock.Payload{Content: "hello there world"}, req).(ChatCompletion)
	assert.True(t, strings.HasPrefix(got.ID, "chatcmpl-"))
	assert.Equal(t, "chat.completion", got.Object)
	assert.Equal(t, "mock-llm", got.Model)
	require.Len(t, got.Choices, 1)
	assert.Equal(t, "assistant", got.Choices[0].Message.Role)
	assert.Equal(t, "hello there world", got.Choices[0].Message.Content)
	assert.Equal(t, "stop", got.Choices[0].FinishReason)
	assert.Nil(t, got.Choices[0].Message.ReasoningContent)

	msgs, _ := json.Marshal(req.Messages)
	prompt := mock.WordCount(string(msgs), "")
	assert.Equal(t, map[string]any{
		"prompt_tokens":     prompt,
		"completion_tokens": 3,
		"total_tokens":      prompt + 3,
	}, got.Usage)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	m := decode(t, string(b))
	choice := m["choices"].([]any)[0].(map[string]any)
	assert.Contains(t, choice, "logprobs")
	assert.Nil(t, choice["logprobs"])
	assert.NotContains(t, choice["message"], "reasoning_content")
}

func TestOpenAIRenderUsageVerbatimAndReasoning(t *testing.T) {
	usage := map[string]any{"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12, "prompt_tokens_details": map[string]any{"cached_tokens": 0}}
	why := "thought"
	got := NewOpenAI(words).Render(mock.Payload{Content: "x", Usage: usage, Reasoning: &why}, testRequest(false)).(ChatCompletion)
	assert.Equal(t, usage, got.Usage)
	require.NotNil(t, got.Choices[0].Message.ReasoningContent)
	assert.Equal(t, "thought", *got.Choices[0].Message.ReasoningContent)
}

func TestOpenAIStream(t *testing.T) {
	o := NewOpenAI(words)
	events := encodeAll(t, o.Stream(mock.Payload{Content: "AB"}, chunksOf("AB", 1), testRequest(true)))

	// role, A, B, stop, [DONE]
	require.Len(t, events, 5)
	assert.Equal(t, "[DONE]", events[4].data)

	var ids []string
	for i, ev := range events[:4] {
		assert.Empty(t, ev.event)
		m := decode(t, ev.data)
		assert.Equal(t, "chat.completion.chunk", m["object"])
		assert.Equal(t, "mock-llm", m["model"])
		assert.NotContains(t, m, "usage", "frame %d", i)
		ids = append(ids, m["id"].(string))
	}
	assert.Len(t, slices.Compact(ids), 1, "all frames share one id")

	delta := func(i int) map[string]any {
		return decode(t, events[i].data)["choices"].([]any)[0].(map[string]any)["delta"].(map[string]any)
	}
	assert.Equal(t, map[string]any{"role": "assistant", "content": ""}, delta(0))
	assert.Equal(t, map[string]any{"content": "A"}, delta(1))
	assert.Equal(t, map[string]any{"content": "B"}, delta(2))
	assert.Equal(t, map[string]any{}, delta(3))
	assert.Equal(t, "stop", decode(t, events[3].data)["choices"].([]any)[0].(map[string]any)["finish_reason"])
	assert.Nil(t, decode(t, events[1].data)["choices"].([]any)[0].(map[string]any)["finish_reason"])
}

func TestOpenAIStreamReasoningAndUsage(t *testing.T) {
	why := "because"
	req := testRequest(true)
	req.IncludeUsage = true
	usage := map[string]any{"total_tokens": 9}

	events := encodeAll(t, NewOpenAI(words).Stream(mock.Payload{Content: "hi", Usage: usage, Reasoning: &why}, chunksOf("hi", 0), req))

	// role, reasoning, h, i, stop, usage, [DONE]
	require.Len(t, events, 7)
	reasoning := decode(t, events[1].data)["choices"].([]any)[0].(map[string]any)["delta"]
	assert.Equal(t, map[string]any{"reasoning_content": "because"}, reasoning)

	last := decode(t, events[5].data)
	assert.Equal(t, []any{}, last["choices"])
	assert.Equal(t, map[string]any{"total_tokens": float64(9)}, last["usage"])
	assert.Equal(t, "[DONE]", events[6].data)
}

func TestOpenAIStreamStopsWithConsumer(t *testing.T) {
	pulled := 0
	chunks := func(yield func(string) bool) {
		for _, c := range []string{"a", "b", "c"} {
			pulled++
			if !yield(c) {
				return
			}
		}
	}
	n := 0
	for range NewOpenAI(words).Stream(mock.Payload{Content: "abc"}, chunks, testRequest(true)) {
		n++
		if n == 2 { // role frame + first content frame
			break
		}
	}
	assert.Equal(t, 1, pulled)
}

func TestAnthropicRender(t *testing.T) {
	a := NewAnthropic(words)
	req := testRequest(false)

	got := a.Render(mock.Payload{Content: "two words"}, req).(Message)
	assert.True(t, strings.HasPrefix(got.ID, "msg_"))
	assert.NotContains(t, got.ID, "-")
	assert.Equal(t, "message", got.Type)
	assert.Equal(t, "assistant", got.Role)
	require.Len(t, got.Content, 1)
	assert.Equal(t, "text", got.Content[0].Type)
	assert.Equal(t, "two words", *got.Content[0].Text)
	assert.Equal(t, "end_turn", *got.StopReason)
	assert.Nil(t, got.StopSequence)

	msgs, _ := json.Marshal(req.Messages)
	assert.Equal(t, map[string]any{
		"input_tokens":  mock.WordCount(string(msgs), ""),
		"output_tokens": 2,
	}, got.Usage)

	b, err := json.Marshal(got)
	require.NoError(t, err)
	m := decode(t, string(b))
	assert.Contains(t, m, "stop_sequence")
	assert.Equal(t, []any{map[string]any{"type": "text", "text": "two words"}}, m["content"])
}

func TestAnthropicRenderThinking(t *testing.T) {
	why := "ponder"
	usage := map[string]any{"input_tokens": 1, "output_tokens": 2}
	got := NewAnthropic(words).Render(mock.Payload{Content: "x", Reasoning: &why, Usage: usage}, testRequest(false)).(Message)
	require.Len(t, got.Content, 2)
	assert.Equal(t, "thinking", got.Content[0].Type)
	assert.Equal(t, "ponder", *got.Content[0].Thinking)
	assert.NotEmpty(t, *got.Content[0].Signature)
	assert.Equal(t, "text", got.Content[1].Type)
	assert.Equal(t, usage, got.Usage)
}

func TestAnthropicStream(t *testing.T) {
	events := encodeAll(t, NewAnthropic(words).Stream(mock.Payload{Content: "AB"}, chunksOf("AB", 1), testRequest(true)))

	var types []string
	for _, ev := range events {
		m := decode(t, ev.data)
		assert.Equal(t, ev.event, m["type"], "event line matches data type")
		types = append(types, ev.event)
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start",
		"ping",
		"content_block_delta",
		"content_block_delta",
		"content_block_stop",
		"message_delta",
		"message_stop",
	}, types)

	start := decode(t, events[0].data)["message"].(map[string]any)
	assert.Equal(t, "assistant", start["role"])
	assert.Equal(t, []any{}, start["content"])
	assert.Equal(t, float64(0), start["usage"].(map[string]any)["output_tokens"])

	assert.Equal(t, map[string]any{"type": "text_delta", "text": "A"}, decode(t, events[3].data)["delta"])
	assert.Equal(t, map[string]any{"type": "text_delta", "text": "B"}, decode(t, events[4].data)["delta"])

	md := decode(t, events[6].data)
	assert.Equal(t, "end_turn", md["delta"].(map[string]any)["stop_reason"])
	assert.Equal(t, float64(1), md["usage"].(map[string]any)["output_tokens"])
}

func TestAnthropicStreamThinkingAndUsage(t *testing.T) {
	why := "hmm"
	usage := map[string]any{"input_tokens": 3, "output_tokens": 4}
	events := encodeAll(t, NewAnthropic(words).Stream(mock.Payload{Content: "x", Reasoning: &why, Usage: usage}, chunksOf("x", 0), testRequest(true)))

	var types []string
	for _, ev := range events {
		types = append(types, ev.event)
	}
	assert.Equal(t, []string{
		"message_start",
		"content_block_start", "content_block_delta", "content_block_delta", "content_block_stop",
		"content_block_start", "ping", "content_block_delta", "content_block_stop",
		"message_delta", "message_stop",
	}, types)

	thinking := decode(t, events[2].data)
	assert.Equal(t, float64(0), thinking["index"])
	assert.Equal(t, map[string]any{"type": "thinking_delta", "thinking": "hmm"}, thinking["delta"])
	assert.Equal(t, float64(1), decode(t, events[7].data)["index"])

	start := decode(t, events[0].data)["message"].(map[string]any)
	assert.Equal(t, map[string]any{"input_tokens": float64(3), "output_tokens": float64(4)}, start["usage"])
	assert.Equal(t, float64(4), decode(t, events[9].data)["usage"].(map[string]any)["output_tokens"])
}

func TestSuppliedUsageSkipsEstimator(t *testing.T) {
	var calls []string
	est := mock.EstimatorFunc(func(text, model string) int {
		calls = append(calls, text)
		return 7
	})
	usage := map[string]any{"input_tokens": 3, "output_tokens": 4}
	p := mock.Payload{Content: "answer", Usage: usage}

	a := NewAnthropic(est)
	a.Render(p, testRequest(false))
	encodeAll(t, a.Stream(p, chunksOf("answer", 0), testRequest(true)))
	o := NewOpenAI(est)
	o.Render(p, testRequest(false))
	assert.Empty(t, calls)

	// only the missing output count is estimated, never the prompt
	partial := mock.Payload{Content: "answer", Usage: map[string]any{"input_tokens": 3}}
	events := encodeAll(t, a.Stream(partial, chunksOf("answer", 0), testRequest(true)))
	assert.Equal(t, []string{"answer"}, calls)
	md := decode(t, events[len(events)-2].data)
	assert.Equal(t, float64(7), md["usage"].(map[string]any)["output_tokens"])
}
