// File: internal/infra/stream/codec.go
package stream

import (
	"encoding/json"
	"time"

	"agentboard/internal/domain/model"
)

// rawFrame is the wire shape: a type discriminator plus either a structured
// data object or a bare content string.
type rawFrame struct {
	Type      string          `json:"type"`
	Data      map[string]any  `json:"data"`
	Content   string          `json:"content"`
	Timestamp json.RawMessage `json:"timestamp"`
}

// Decode turns one raw frame into a typed StreamMessage. Total: malformed or
// unrecognized frames come back as MsgUnknown and must never surface as a
// stream error or affect the connection.
func Decode(raw []byte) model.StreamMessage {
	var f rawFrame
	if err := json.Unmarshal(raw, &f); err != nil {
		return model.StreamMessage{Kind: model.MsgUnknown}
	}
	msg := model.StreamMessage{Timestamp: parseTimestamp(f.Timestamp)}

	switch f.Type {
	case "connected", "pong":
		msg.Kind = model.MsgConnected
	case "statusChange", "status_change":
		msg.Kind = model.MsgStatusChange
		msg.Status = str(f.Data, "status")
	case "assistantText", "assistant_text":
		msg.Kind = model.MsgAssistantText
		msg.Content = content(f)
	case "toolUse", "tool_use":
		msg.Kind = model.MsgToolUse
		msg.ToolName = str(f.Data, "toolName", "tool_name")
		msg.ToolInput = str(f.Data, "input")
	case "toolResult", "tool_result":
		msg.Kind = model.MsgToolResult
		msg.ToolName = str(f.Data, "toolName", "tool_name")
	case "result":
		msg.Kind = model.MsgResult
		msg.Result = &model.ResultInfo{
			SessionID:           str(f.Data, "sessionId", "session_id"),
			TotalCostUSD:        num(f.Data, "totalCostUsd", "total_cost_usd"),
			InputTokens:         int(num(f.Data, "inputTokens", "input_tokens")),
			OutputTokens:        int(num(f.Data, "outputTokens", "output_tokens")),
			CacheReadTokens:     int(num(f.Data, "cacheReadTokens", "cache_read_tokens")),
			CacheCreationTokens: int(num(f.Data, "cacheCreationTokens", "cache_creation_tokens")),
			DurationMS:          int64(num(f.Data, "duration")),
		}
	case "error":
		msg.Kind = model.MsgError
		msg.Content = content(f)
		if msg.Content == "" {
			msg.Content = str(f.Data, "message")
		}
	case "userInput", "user_input":
		msg.Kind = model.MsgUserInput
		msg.Content = content(f)
	default:
		msg.Kind = model.MsgUnknown
	}
	return msg
}

// EncodeUserInput builds the outbound user-input frame.
func EncodeUserInput(text string) []byte {
	b, _ := json.Marshal(map[string]string{"type": "user_input", "content": text})
	return b
}

// EncodePing builds the outbound heartbeat frame.
func EncodePing() []byte {
	return []byte(`{"type":"ping"}`)
}

func content(f rawFrame) string {
	if f.Content != "" {
		return f.Content
	}
	return str(f.Data, "content")
}

func str(data map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := data[k].(string); ok {
			return v
		}
	}
	return ""
}

func num(data map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := data[k].(float64); ok {
			return v
		}
	}
	return 0
}

// parseTimestamp accepts epoch seconds or an RFC3339 string; 0 when absent
// or unreadable.
func parseTimestamp(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var secs float64
	if err := json.Unmarshal(raw, &secs); err == nil {
		return int64(secs)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			return t.Unix()
		}
	}
	return 0
}
