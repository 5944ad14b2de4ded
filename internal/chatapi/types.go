// Package chatapi holds the JSON shapes exchanged between the chat client and
// the completion proxy.
package chatapi

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatRequest struct {
	Messages    []Message `json:"messages"`
	Model       string    `json:"model,omitempty"`
	Temperature *float64  `json:"temperature,omitempty"`
	MaxTokens   *int      `json:"max_tokens,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatResponse struct {
	Message string `json:"message"`
	Usage   *Usage `json:"usage,omitempty"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type Model struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
	Category    string `json:"category"`
}

type ModelsResponse struct {
	Models []Model `json:"models"`
}
