package model

// ConnectionState tracks one logical stream connection.
type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateError        ConnectionState = "error"
)

type MessageKind string

const (
	MsgConnected     MessageKind = "connected"
	MsgStatusChange  MessageKind = "status_change"
	MsgAssistantText MessageKind = "assistant_text"
	MsgToolUse       MessageKind = "tool_use"
	MsgToolResult    MessageKind = "tool_result"
	MsgResult        MessageKind = "result"
	MsgError         MessageKind = "error"
	MsgUserInput     MessageKind = "user_input"
	MsgUnknown       MessageKind = "unknown"
)

// ResultInfo carries the terminal accounting fields of a run.
type ResultInfo struct {
	SessionID           string
	TotalCostUSD        float64
	InputTokens         int
	OutputTokens        int
	CacheReadTokens     int
	CacheCreationTokens int
	DurationMS          int64
}

// StreamMessage is one decoded stream frame. Only the fields matching Kind
// are populated; everything else is zero.
type StreamMessage struct {
	Kind      MessageKind
	Status    string      // status_change
	Content   string      // assistant_text, user_input, error
	ToolName  string      // tool_use, tool_result
	ToolInput string      // tool_use
	Result    *ResultInfo // result
	Timestamp int64       // epoch seconds, 0 when absent
}
