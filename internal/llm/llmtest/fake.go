// Package llmtest provides a scripted Generator for tests.
package llmtest

import (
	"context"
	"iter"
	"sync"

	"github.com/ShayCichocki/pairline/internal/llm"
)

// Fake is a Generator whose responses are supplied by the test.
//
// Respond, when set, computes the response for each Generate call. Otherwise
// Responses are returned in order and the last one repeats. Chunks, when set,
// is what GenerateStream yields; otherwise the Generate response is yielded
// as a single fragment.
type Fake struct {
	mu sync.Mutex

	Respond   func(req llm.Request) (string, error)
	Responses []string
	Chunks    []string
	// StreamErr is yielded after Chunks.
	StreamErr error

	requests []llm.Request
}

// Generate returns the next scripted response.
func (f *Fake) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	n := len(f.requests)
	f.requests = append(f.requests, req)
	respond := f.Respond
	var resp string
	if len(f.Responses) > 0 {
		resp = f.Responses[min(n, len(f.Responses)-1)]
	}
	f.mu.Unlock()

	if respond != nil {
		return respond(req)
	}
	return resp, nil
}

// GenerateStream yields Chunks, then StreamErr if set.
func (f *Fake) GenerateStream(ctx context.Context, req llm.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f.mu.Lock()
		chunks := append([]string(nil), f.Chunks...)
		streamErr := f.StreamErr
		f.mu.Unlock()

		if chunks == nil {
			text, err := f.Generate(ctx, req)
			if err != nil {
				yield("", err)
				return
			}
			chunks = []string{text}
		} else {
			f.mu.Lock()
			f.requests = append(f.requests, req)
			f.mu.Unlock()
		}

		for _, c := range chunks {
			if !yield(c, nil) {
				return
			}
		}
		if streamErr != nil {
			yield("", streamErr)
		}
	}
}

// Requests returns a copy of every request received so far.
func (f *Fake) Requests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

var _ llm.Generator = (*Fake)(nil)
