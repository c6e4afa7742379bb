package schema

import "encoding/json"

// ToolCall represents one function call in an assistant message.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ArgumentsText returns the tool-call arguments serialised as JSON.
// Used when estimating the token cost of a message.
func (tc ToolCall) ArgumentsText() string {
	if len(tc.Arguments) == 0 {
		return ""
	}
	b, _ := json.Marshal(tc.Arguments)
	return string(b)
}

// ToWireMap serialises a ToolCall into the OpenAI wire-format map.
// Used by the provider when building the JSON request body.
func (tc ToolCall) ToWireMap() map[string]any {
	return map[string]any{
		"id":   tc.ID,
		"type": "function",
		"function": map[string]any{
			"name":      tc.Name,
			"arguments": tc.ArgumentsText(),
		},
	}
}

// Message is one entry in the conversation history.
//
// Role is one of: "system", "user", "assistant", "tool".
//
// ToolCalls is populated for assistant messages that invoke tools.
// ToolCallID and ToolName are set for tool-result messages.
// ReasoningContent carries the thinking block from models like DeepSeek-R1.
type Message struct {
	Role             string
	Content          string
	ToolCalls        []ToolCall
	ToolCallID       string  // "tool" role only
	ToolName         string  // "tool" role only
	ReasoningContent *string // "assistant" role only
}

func NewSystemMessage(content string) Message {
	return Message{Role: "system", Content: content}
}

func NewUserMessage(content string) Message {
	return Message{Role: "user", Content: content}
}

func NewAssistantMessage(content string, toolCalls []ToolCall, reasoningContent *string) Message {
	return Message{
		Role:             "assistant",
		Content:          content,
		ToolCalls:        toolCalls,
		ReasoningContent: reasoningContent,
	}
}

func NewToolResultMessage(toolCallID, toolName, result string) Message {
	return Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: toolCallID,
		ToolName:   toolName,
	}
}
