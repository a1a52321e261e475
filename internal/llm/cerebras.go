package llm

import "net/http"

const (
	cerebrasAPIURL = "https://api.cerebras.ai/v1/chat/completions"
	cerebrasModel  = "llama-3.3-70b"
)

// NewCerebrasClient returns a chat client for Cerebras, which speaks the
// OpenAI request/response format.
func NewCerebrasClient(apiKey string) *OpenAIClient {
	return &OpenAIClient{
		apiKey:     apiKey,
		url:        cerebrasAPIURL,
		model:      cerebrasModel,
		name:       "cerebras",
		httpClient: &http.Client{Timeout: requestTimeout},
	}
}
