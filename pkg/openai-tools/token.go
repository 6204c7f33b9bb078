package openai_tools

import (
	"fmt"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"github.com/sashabaranov/go-openai"
)

const fallbackEncoding = "cl100k_base"

var encoders sync.Map

func encoderFor(model string) (*tiktoken.Tiktoken, error) {
	if tkm, ok := encoders.Load(model); ok {
		return tkm.(*tiktoken.Tiktoken), nil
	}
	tkm, err := tiktoken.EncodingForModel(model)
	if err != nil {
		// Non-OpenAI models (gemini-*) are counted with the closest BPE.
		tkm, err = tiktoken.GetEncoding(fallbackEncoding)
		if err != nil {
			return nil, fmt.Errorf("failed to get encoding %s: %w", fallbackEncoding, err)
		}
	}
	encoders.Store(model, tkm)
	return tkm, nil
}

// CountToken estimates prompt tokens the way the OpenAI cookbook does:
// every message costs 3 extra tokens, a name 1 more, and the reply is primed with 3.
func CountToken(messages []openai.ChatCompletionMessage, model string) (int, error) {
	tkm, err := encoderFor(model)
	if err != nil {
		return 0, err
	}
	const (
		tokensPerMessage = 3
		tokensPerName    = 1
	)
	numTokens := 0
	for _, message := range messages {
		numTokens += tokensPerMessage
		numTokens += len(tkm.Encode(message.Content, nil, nil))
		numTokens += len(tkm.Encode(message.Role, nil, nil))
		if message.Name != "" {
			numTokens += len(tkm.Encode(message.Name, nil, nil))
			numTokens += tokensPerName
		}
	}
	numTokens += 3
	return numTokens, nil
}
