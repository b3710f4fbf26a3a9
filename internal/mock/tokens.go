package mock

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

// Estimator counts tokens for usage blocks the resolver did not supply.
type Estimator interface {
	Estimate(text, model string) int
}

// EstimatorFunc adapts a plain function to Estimator.
type EstimatorFunc func(text, model string) int

func (f EstimatorFunc) Estimate(text, model string) int { return f(text, model) }

// WordCount is the fallback estimate: whitespace separated words.
func WordCount(text, _ string) int {
	return len(strings.Fields(text))
}

// TiktokenEstimator uses the model's tiktoken encoding, cached per model.
// Models without an encoding (or whose BPE ranks cannot be loaded) fall back
// to WordCount.
type TiktokenEstimator struct {
	mu        sync.Mutex
	encodings map[string]*tiktoken.Tiktoken
	load      func(model string) (*tiktoken.Tiktoken, error)
}

func NewTiktokenEstimator() *TiktokenEstimator {
	return &TiktokenEstimator{
		encodings: map[string]*tiktoken.Tiktoken{},
		load:      tiktoken.EncodingForModel,
	}
}

func (e *TiktokenEstimator) Estimate(text, model string) int {
	enc := e.encoding(model)
	if enc == nil {
		return WordCount(text, model)
	}
	return len(enc.Encode(text, nil, nil))
}

func (e *TiktokenEstimator) encoding(model string) *tiktoken.Tiktoken {
	e.mu.Lock()
	enc, ok := e.encodings[model]
	e.mu.Unlock()
	if ok {
		return enc
	}

	// Loaded unlocked; concurrent first loads of a model race and the first
	// stored wins.
	enc, err := e.load(model)
	if err != nil {
		enc = nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if cached, ok := e.encodings[model]; ok {
		return cached
	}
	// nil is cached too so a failing model is not retried per request.
	e.encodings[model] = enc
	return enc
}
