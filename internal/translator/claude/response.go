package claude

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// stopReasonMap translates upstream stop reasons into the outbound
// finish-reason vocabulary. Unrecognized values map to "stop".
var stopReasonMap = map[string]string{
	"end_turn":      "stop",
	"stop_sequence": "stop",
	"max_tokens":    "length",
	"tool_use":      "tool_calls",
}

func mapStopReason(reason string) string {
	if mapped, ok := stopReasonMap[reason]; ok {
		return mapped
	}
	return "stop"
}

func newChatID() string {
	return "chatcmpl-" + strings.ReplaceAll(uuid.New().String(), "-", "")
}

// ConvertChatResponse converts one unary messages-API response into an
// OpenAI chat completion. model is echoed back as requested by the caller.
// notice, when non-empty, is prepended to the text content to surface an
// out-of-band event such as an inline token refresh.
func ConvertChatResponse(body []byte, model, notice string) []byte {
	var textParts []string
	var thinkingParts []string
	toolCalls := []byte(`[]`)
	toolCallCount := 0

	gjson.GetBytes(body, "content").ForEach(func(_, block gjson.Result) bool {
		switch block.Get("type").String() {
		case "text":
			textParts = append(textParts, block.Get("text").String())
		case "thinking":
			thinkingParts = append(thinkingParts, block.Get("thinking").String())
		case "tool_use":
			call := []byte(`{"type":"function"}`)
			call, _ = sjson.SetBytes(call, "id", block.Get("id").String())
			call, _ = sjson.SetBytes(call, "function.name", block.Get("name").String())
			args := block.Get("input").Raw
			if args == "" {
				args = "{}"
			}
			call, _ = sjson.SetBytes(call, "function.arguments", args)
			toolCalls, _ = sjson.SetRawBytes(toolCalls, "-1", call)
			toolCallCount++
		}
		return true
	})

	content := strings.Join(textParts, "")
	if notice != "" {
		content = notice + content
	}

	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		id = newChatID()
	}

	out := []byte(`{"object":"chat.completion"}`)
	out, _ = sjson.SetBytes(out, "id", id)
	out, _ = sjson.SetBytes(out, "created", time.Now().Unix())
	out, _ = sjson.SetBytes(out, "model", model)
	out, _ = sjson.SetBytes(out, "choices.0.index", 0)
	out, _ = sjson.SetBytes(out, "choices.0.message.role", "assistant")
	out, _ = sjson.SetBytes(out, "choices.0.message.content", content)
	if len(thinkingParts) > 0 {
		out, _ = sjson.SetBytes(out, "choices.0.message.reasoning_content", strings.Join(thinkingParts, ""))
	}
	if toolCallCount > 0 {
		out, _ = sjson.SetRawBytes(out, "choices.0.message.tool_calls", toolCalls)
	}
	out, _ = sjson.SetBytes(out, "choices.0.finish_reason",
		mapStopReason(gjson.GetBytes(body, "stop_reason").String()))

	promptTokens := gjson.GetBytes(body, "usage.input_tokens").Int()
	completionTokens := gjson.GetBytes(body, "usage.output_tokens").Int()
	out, _ = sjson.SetBytes(out, "usage.prompt_tokens", promptTokens)
	out, _ = sjson.SetBytes(out, "usage.completion_tokens", completionTokens)
	out, _ = sjson.SetBytes(out, "usage.total_tokens", promptTokens+completionTokens)
	return out
}
