// Package tokenizer estimates token usage for requests whose backend did
// not report it. Counts come from tiktoken encodings and are approximate
// for non-OpenAI models.
package tokenizer

import (
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/sluice-dev/sluice/pkg/api"
)

// Encoding names used by tiktoken.
const (
	EncodingCL100kBase = "cl100k_base" // GPT-4, GPT-3.5-turbo
	EncodingO200kBase  = "o200k_base"  // GPT-4o, o1 models
)

// Per-message framing overhead in the chat format: every message carries
// role/content envelope tokens, and the reply is primed with an
// assistant header.
const (
	tokensPerMessage = 4
	tokensPerReply   = 3
)

// modelEncoding pairs a model prefix with its encoding.
type modelEncoding struct {
	prefix   string
	encoding string
}

// Ordered longest-prefix-first so "gpt-4o" wins over "gpt-4".
var modelEncodings = []modelEncoding{
	{"text-embedding", EncodingCL100kBase},
	{"gpt-4o", EncodingO200kBase},
	{"gpt-3.5", EncodingCL100kBase},
	{"gpt-4", EncodingCL100kBase},
	{"chatgpt", EncodingO200kBase},
	{"o1", EncodingO200kBase},
	{"o3", EncodingO200kBase},
}

// Estimator counts tokens with cached tiktoken encodings. Safe for
// concurrent use.
type Estimator struct {
	mu        sync.RWMutex
	encodings map[string]*tiktoken.Tiktoken
}

// New creates an Estimator.
func New() *Estimator {
	return &Estimator{
		encodings: make(map[string]*tiktoken.Tiktoken),
	}
}

// CountText counts tokens in a text string for a given model.
func (e *Estimator) CountText(text, model string) (int, error) {
	enc, err := e.getEncoding(model)
	if err != nil {
		return 0, err
	}
	return len(enc.Encode(text, nil, nil)), nil
}

// CountMessages counts prompt tokens for a conversation, including the
// per-message framing overhead.
func (e *Estimator) CountMessages(messages []api.Message, model string) (int, error) {
	enc, err := e.getEncoding(model)
	if err != nil {
		return 0, err
	}
	total := tokensPerReply
	for _, m := range messages {
		total += tokensPerMessage
		total += len(enc.Encode(m.Role, nil, nil))
		total += len(enc.Encode(m.Content, nil, nil))
		if m.Name != "" {
			total += len(enc.Encode(m.Name, nil, nil))
		}
	}
	return total, nil
}

// EstimateUsage builds a Usage from the request messages and the
// accumulated completion text.
func (e *Estimator) EstimateUsage(messages []api.Message, completion, model string) (*api.Usage, error) {
	prompt, err := e.CountMessages(messages, model)
	if err != nil {
		return nil, err
	}
	out, err := e.CountText(completion, model)
	if err != nil {
		return nil, err
	}
	return &api.Usage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}, nil
}

func (e *Estimator) getEncoding(model string) (*tiktoken.Tiktoken, error) {
	name := resolveEncoding(model)

	e.mu.RLock()
	enc, ok := e.encodings[name]
	e.mu.RUnlock()
	if ok {
		return enc, nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if enc, ok = e.encodings[name]; ok {
		return enc, nil
	}

	enc, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, err
	}
	e.encodings[name] = enc
	return enc, nil
}

// resolveEncoding maps a model identifier to a tiktoken encoding name,
// defaulting to cl100k_base for unknown models.
func resolveEncoding(model string) string {
	lower := strings.ToLower(model)
	for _, me := range modelEncodings {
		if strings.HasPrefix(lower, me.prefix) {
			return me.encoding
		}
	}
	return EncodingCL100kBase
}
