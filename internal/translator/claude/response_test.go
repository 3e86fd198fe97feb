package claude

import (
	"strings"
	"testing"

	"github.com/tidwall/gjson"
)

func TestConvertChatResponseText(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"id":"msg_01",
		"content":[{"type":"text","text":"Hello "},{"type":"text","text":"world"}],
		"stop_reason":"end_turn",
		"usage":{"input_tokens":10,"output_tokens":4}
	}`)
	out := ConvertChatResponse(body, "claude-sonnet-4-5", "")

	if got := gjson.GetBytes(out, "id").String(); got != "msg_01" {
		t.Fatalf("id = %q, want msg_01", got)
	}
	if got := gjson.GetBytes(out, "object").String(); got != "chat.completion" {
		t.Fatalf("object = %q", got)
	}
	if got := gjson.GetBytes(out, "model").String(); got != "claude-sonnet-4-5" {
		t.Fatalf("model = %q, want echoed request model", got)
	}
	if got := gjson.GetBytes(out, "choices.0.message.content").String(); got != "Hello world" {
		t.Fatalf("content = %q, want %q", got, "Hello world")
	}
	if got := gjson.GetBytes(out, "choices.0.finish_reason").String(); got != "stop" {
		t.Fatalf("finish_reason = %q, want stop", got)
	}
	if got := gjson.GetBytes(out, "usage.prompt_tokens").Int(); got != 10 {
		t.Fatalf("prompt_tokens = %d, want 10", got)
	}
	if got := gjson.GetBytes(out, "usage.total_tokens").Int(); got != 14 {
		t.Fatalf("total_tokens = %d, want 14", got)
	}
}

func TestConvertChatResponseNotice(t *testing.T) {
	t.Parallel()

	body := []byte(`{"content":[{"type":"text","text":"answer"}],"stop_reason":"end_turn"}`)
	out := ConvertChatResponse(body, "m", "[notice]\n\n")

	if got := gjson.GetBytes(out, "choices.0.message.content").String(); got != "[notice]\n\nanswer" {
		t.Fatalf("content = %q, want notice prefix", got)
	}
}

func TestConvertChatResponseToolUse(t *testing.T) {
	t.Parallel()

	body := []byte(`{
		"content":[{"type":"tool_use","id":"toolu_01","name":"get_weather","input":{"city":"Paris"}}],
		"stop_reason":"tool_use"
	}`)
	out := ConvertChatResponse(body, "m", "")

	if got := gjson.GetBytes(out, "choices.0.finish_reason").String(); got != "tool_calls" {
		t.Fatalf("finish_reason = %q, want tool_calls", got)
	}
	call := gjson.GetBytes(out, "choices.0.message.tool_calls.0")
	if got := call.Get("id").String(); got != "toolu_01" {
		t.Fatalf("tool call id = %q", got)
	}
	if got := call.Get("type").String(); got != "function" {
		t.Fatalf("tool call type = %q", got)
	}
	if got := call.Get("function.name").String(); got != "get_weather" {
		t.Fatalf("function name = %q", got)
	}
	args := call.Get("function.arguments").String()
	if got := gjson.Get(args, "city").String(); got != "Paris" {
		t.Fatalf("arguments = %q, want serialized input", args)
	}
}

func TestConvertChatResponseThinking(t *testing.T) {
	t.Parallel()

	body := []byte(`{"content":[
		{"type":"thinking","thinking":"let me see"},
		{"type":"text","text":"done"}
	],"stop_reason":"end_turn"}`)
	out := ConvertChatResponse(body, "m", "")

	if got := gjson.GetBytes(out, "choices.0.message.reasoning_content").String(); got != "let me see" {
		t.Fatalf("reasoning_content = %q", got)
	}
	if got := gjson.GetBytes(out, "choices.0.message.content").String(); got != "done" {
		t.Fatalf("content = %q, want done", got)
	}
}

func TestConvertChatResponseGeneratedID(t *testing.T) {
	t.Parallel()

	out := ConvertChatResponse([]byte(`{"content":[]}`), "m", "")
	if got := gjson.GetBytes(out, "id").String(); !strings.HasPrefix(got, "chatcmpl-") {
		t.Fatalf("id = %q, want generated chatcmpl- id", got)
	}
}

func TestMapStopReason(t *testing.T) {
	t.Parallel()

	tests := []struct {
		reason string
		want   string
	}{
		{"end_turn", "stop"},
		{"stop_sequence", "stop"},
		{"max_tokens", "length"},
		{"tool_use", "tool_calls"},
		{"something_new", "stop"},
		{"", "stop"},
	}
	for _, tt := range tests {
		if got := mapStopReason(tt.reason); got != tt.want {
			t.Fatalf("mapStopReason(%q) = %q, want %q", tt.reason, got, tt.want)
		}
	}
}
