package llm

// Message represents a single message in a chat conversation.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatParams holds parameters for chat completion requests.
type ChatParams struct {
	// Model specifies the model to use. If empty, the client's default model is used.
	Model string

	// MaxTokens specifies the maximum number of tokens to generate.
	// If 0, no limit is applied.
	MaxTokens int

	// Temperature controls the randomness of the output.
	Temperature float32
}

// ChatResult is the outcome of a chat completion request.
type ChatResult struct {
	// Content is the assistant's reply text.
	Content string
	// Model is the model that produced the reply, as reported by the API.
	Model string
	// TokensUsed is the total token usage reported by the API, 0 when the
	// API omits usage accounting.
	TokensUsed int
}
