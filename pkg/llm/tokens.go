package llm

import (
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

var (
	codecOnce sync.Once
	codec     tokenizer.Codec
)

func getCodec() tokenizer.Codec {
	codecOnce.Do(func() {
		c, err := tokenizer.Get(tokenizer.Cl100kBase)
		if err != nil {
			log.Warn().Err(err).Msg("could not load cl100k_base tokenizer, using length estimate")
			return
		}
		codec = c
	})
	return codec
}

// CountTokens estimates the number of tokens in text using cl100k_base.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	c := getCodec()
	if c == nil {
		return (len(text) + 3) / 4
	}
	ids, _, err := c.Encode(text)
	if err != nil {
		return (len(text) + 3) / 4
	}
	return len(ids)
}

// EstimateUsage counts prompt and completion tokens locally.
func EstimateUsage(prompt Prompt, completion string) Usage {
	promptTokens := 0
	for _, m := range prompt.messages() {
		promptTokens += CountTokens(m.Content)
	}
	return Usage{
		PromptTokens:     promptTokens,
		CompletionTokens: CountTokens(completion),
		Estimated:        true,
	}
}
