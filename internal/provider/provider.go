// Package provider renders resolved payloads in the wire formats of the
// OpenAI chat completions API and the Anthropic messages API.
package provider

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"iter"

	"github.com/yungtweek/mockllm/internal/mock"
)

// Adapter turns a payload into one protocol's response envelope or SSE
// frames.
type Adapter interface {
	// Name labels the protocol in logs and metrics.
	Name() string
	Render(p mock.Payload, req *Request) any
	Stream(p mock.Payload, chunks iter.Seq[string], req *Request) iter.Seq[Frame]
}

// Frame is a single server-sent event.
type Frame struct {
	// Event is written as an "event:" line when set.
	Event string
	Data  any
	// Done marks the OpenAI "[DONE]" sentinel; Data is ignored.
	Done bool
}

// Encode writes the frame in SSE framing.
func (f Frame) Encode(w io.Writer) error {
	if f.Done {
		_, err := io.WriteString(w, "data: [DONE]\n\n")
		return err
	}
	b, err := json.Marshal(f.Data)
	if err != nil {
		return err
	}
	if f.Event != "" {
		_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", f.Event, b)
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

// WriteFrames encodes frames to w, flushing after each one so the client sees
// it immediately. It stops at the first write error, which ends the frame
// sequence and with it the underlying chunk production.
func WriteFrames(w io.Writer, flush func(), frames iter.Seq[Frame]) (int, error) {
	bw := bufio.NewWriter(w)
	n := 0
	for f := range frames {
		if err := f.Encode(bw); err != nil {
			return n, err
		}
		if err := bw.Flush(); err != nil {
			return n, err
		}
		if flush != nil {
			flush()
		}
		n++
	}
	return n, nil
}

type tokenCounts struct {
	prompt     int
	completion int
}

// countTokens estimates usage from the JSON form of the request messages and
// the output content.
func countTokens(est mock.Estimator, req *Request, content string) tokenCounts {
	msgs, err := json.Marshal(req.Messages)
	if err != nil {
		msgs = []byte(fmt.Sprint(req.Messages))
	}
	return tokenCounts{
		prompt:     est.Estimate(string(msgs), req.Model),
		completion: est.Estimate(content, req.Model),
	}
}
