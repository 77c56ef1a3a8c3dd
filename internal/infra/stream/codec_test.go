package stream

import (
	"testing"

	"agentboard/internal/domain/model"
)

func TestDecode_KnownTypes(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want model.MessageKind
	}{
		{"connected", `{"type":"connected"}`, model.MsgConnected},
		{"pong is transport-level connected", `{"type":"pong"}`, model.MsgConnected},
		{"status change", `{"type":"statusChange","data":{"status":"running"}}`, model.MsgStatusChange},
		{"snake case status change", `{"type":"status_change","data":{"status":"running"}}`, model.MsgStatusChange},
		{"assistant text", `{"type":"assistantText","content":"hi"}`, model.MsgAssistantText},
		{"tool use", `{"type":"toolUse","data":{"toolName":"bash","input":"ls"}}`, model.MsgToolUse},
		{"tool result", `{"type":"toolResult","data":{"toolName":"bash"}}`, model.MsgToolResult},
		{"result", `{"type":"result","data":{"sessionId":"s1","totalCostUsd":0.42,"inputTokens":10,"outputTokens":20,"duration":1500}}`, model.MsgResult},
		{"error", `{"type":"error","data":{"message":"boom"}}`, model.MsgError},
		{"user input", `{"type":"userInput","content":"do it"}`, model.MsgUserInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Decode([]byte(tc.raw)); got.Kind != tc.want {
				t.Errorf("kind = %s, want %s", got.Kind, tc.want)
			}
		})
	}
}

func TestDecode_Fields(t *testing.T) {
	msg := Decode([]byte(`{"type":"toolUse","data":{"toolName":"edit","input":"{\"path\":\"x\"}"}}`))
	if msg.ToolName != "edit" || msg.ToolInput == "" {
		t.Errorf("tool fields = %q/%q", msg.ToolName, msg.ToolInput)
	}

	msg = Decode([]byte(`{"type":"result","data":{"sessionId":"abc","totalCostUsd":1.5,"inputTokens":100,"outputTokens":50,"cacheReadTokens":7,"cacheCreationTokens":3,"duration":900}}`))
	r := msg.Result
	if r == nil {
		t.Fatal("result payload missing")
	}
	if r.SessionID != "abc" || r.TotalCostUSD != 1.5 || r.InputTokens != 100 ||
		r.OutputTokens != 50 || r.CacheReadTokens != 7 || r.CacheCreationTokens != 3 || r.DurationMS != 900 {
		t.Errorf("result fields wrong: %+v", r)
	}

	msg = Decode([]byte(`{"type":"error","content":"direct content"}`))
	if msg.Content != "direct content" {
		t.Errorf("error content = %q", msg.Content)
	}
}

func TestDecode_MalformedIsUnknown(t *testing.T) {
	for _, raw := range []string{
		`not json at all`,
		`{"type":"somethingElse"}`,
		`{}`,
		`{"type":"statusChange"}`, // missing data is still decodable
	} {
		msg := Decode([]byte(raw))
		if raw == `{"type":"statusChange"}` {
			if msg.Kind != model.MsgStatusChange || msg.Status != "" {
				t.Errorf("missing data must default fields, got %+v", msg)
			}
			continue
		}
		if msg.Kind != model.MsgUnknown {
			t.Errorf("Decode(%q).Kind = %s, want unknown", raw, msg.Kind)
		}
	}
}

func TestDecode_Timestamps(t *testing.T) {
	if got := Decode([]byte(`{"type":"connected","timestamp":1700000000}`)); got.Timestamp != 1700000000 {
		t.Errorf("epoch timestamp = %d", got.Timestamp)
	}
	if got := Decode([]byte(`{"type":"connected","timestamp":"2023-11-14T22:13:20Z"}`)); got.Timestamp != 1700000000 {
		t.Errorf("iso timestamp = %d", got.Timestamp)
	}
	if got := Decode([]byte(`{"type":"connected","timestamp":"garbage"}`)); got.Timestamp != 0 {
		t.Errorf("bad timestamp should default to 0, got %d", got.Timestamp)
	}
}

func TestEncodeFrames(t *testing.T) {
	if got := string(EncodePing()); got != `{"type":"ping"}` {
		t.Errorf("ping frame = %s", got)
	}
	msg := Decode(EncodeUserInput("hello"))
	if msg.Kind != model.MsgUserInput || msg.Content != "hello" {
		t.Errorf("user input round trip = %+v", msg)
	}
}
