// Package research drives the company-research agent: an LLM with web
// search, SEC filings and a staging tool extracts facts about a company and
// stages them as graph payloads.
package research

import "context"

// LLMClient is the interface for chat-completion providers with tool use.
type LLMClient interface {
	Complete(ctx context.Context, systemPrompt string, messages []Message, tools []Tool) (*Completion, error)
}

// Message for the messages API.
type Message struct {
	Role    string        `json:"role"`
	Content []ContentPart `json:"content"`
}

// ContentPart for multipart messages.
type ContentPart struct {
	Type      string      `json:"type"`
	Text      string      `json:"text,omitempty"`
	ID        string      `json:"id,omitempty"`
	Name      string      `json:"name,omitempty"`
	Input     interface{} `json:"input,omitempty"`
	ToolUseID string      `json:"tool_use_id,omitempty"`
	Content   string      `json:"content,omitempty"`
	IsError   bool        `json:"is_error,omitempty"`
}

// Tool definition for the model.
type Tool struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	InputSchema InputSchema `json:"input_schema"`
}

// InputSchema for tool parameters.
type InputSchema struct {
	Type       string               `json:"type"`
	Properties map[string]*Property `json:"properties"`
	Required   []string             `json:"required,omitempty"`
}

// Property for schema fields. Nested objects and arrays use Properties
// and Items.
type Property struct {
	Type        string               `json:"type"`
	Description string               `json:"description,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Required    []string             `json:"required,omitempty"`
}

// Completion is one assistant turn.
type Completion struct {
	Content    []ContentPart `json:"content"`
	StopReason string        `json:"stop_reason"`
}

// ToolResult to send back to the model.
type ToolResult struct {
	ToolUseID string
	Content   string
	IsError   bool
}

// UserMessage creates a user message with text content.
func UserMessage(text string) Message {
	return Message{
		Role: "user",
		Content: []ContentPart{
			{Type: "text", Text: text},
		},
	}
}

// ToolResultMessage creates a user message carrying tool results.
func ToolResultMessage(results []ToolResult) Message {
	parts := make([]ContentPart, len(results))
	for i, r := range results {
		parts[i] = ContentPart{
			Type:      "tool_result",
			ToolUseID: r.ToolUseID,
			Content:   r.Content,
			IsError:   r.IsError,
		}
	}
	return Message{Role: "user", Content: parts}
}
