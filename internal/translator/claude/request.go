package claude

import (
	"encoding/json"
	"regexp"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/gagmm/claude-code-to-openai/internal/metrics"
)

const (
	// defaultMaxTokens applies when the caller omits max_tokens; the
	// messages API requires the field.
	defaultMaxTokens = 8192

	// continuationText opens the conversation when the first converted
	// message is not a user turn, which the messages API rejects.
	continuationText = "(continued)"

	// emptyContentPlaceholder replaces content that converted to zero
	// blocks, since the messages API rejects empty content arrays.
	emptyContentPlaceholder = "(empty content)"
)

var dataURIPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)

// convMessage is a converted message mid-pipeline. Content is either a plain
// string or a list of raw content-block JSON documents, never both.
type convMessage struct {
	role   string
	text   string
	blocks []json.RawMessage
	isText bool
}

// ConvertChatRequest converts an OpenAI chat-completions request into an
// Anthropic messages request. modelID must already be resolved to a concrete
// upstream id. The conversion is pure: malformed content degrades to safe
// fallbacks and never fails the request.
func ConvertChatRequest(modelID string, rawJSON []byte, stream bool) []byte {
	out := []byte(`{}`)
	out, _ = sjson.SetBytes(out, "model", modelID)

	maxTokens := int64(defaultMaxTokens)
	if v := gjson.GetBytes(rawJSON, "max_tokens"); v.Exists() && v.Int() > 0 {
		maxTokens = v.Int()
	}
	out, _ = sjson.SetBytes(out, "max_tokens", maxTokens)

	system, messages := splitMessages(rawJSON)
	if system != "" {
		out, _ = sjson.SetBytes(out, "system", system)
	}
	out, _ = sjson.SetRawBytes(out, "messages", encodeMessages(messages))

	if tools := convertTools(rawJSON); tools != nil {
		out, _ = sjson.SetRawBytes(out, "tools", tools)
	}

	if v := gjson.GetBytes(rawJSON, "temperature"); v.Exists() {
		out, _ = sjson.SetBytes(out, "temperature", v.Float())
	}
	if v := gjson.GetBytes(rawJSON, "top_p"); v.Exists() {
		out, _ = sjson.SetBytes(out, "top_p", v.Float())
	}
	if stream {
		out, _ = sjson.SetBytes(out, "stream", true)
	}
	return out
}

// splitMessages pulls system text out of the message list and converts the
// rest, applying the consecutive-role merge and the leading-user rule.
func splitMessages(rawJSON []byte) (string, []convMessage) {
	var systemParts []string
	var converted []convMessage

	gjson.GetBytes(rawJSON, "messages").ForEach(func(_, msg gjson.Result) bool {
		role := msg.Get("role").String()
		content := msg.Get("content")

		switch role {
		case "system":
			systemParts = append(systemParts, contentToText(content))
			return true
		case "user", "assistant":
			converted = append(converted, convertContent(role, content))
		default:
			// Unknown roles degrade to user turns; flagged, never fatal.
			log.WithField("role", role).Warn("remapping unknown message role to user")
			metrics.RoleAnomalies.Inc()
			converted = append(converted, convMessage{role: "user", text: contentToText(content), isText: true})
		}
		return true
	})

	merged := mergeConsecutive(converted)
	if len(merged) > 0 && merged[0].role != "user" {
		merged = append([]convMessage{{role: "user", text: continuationText, isText: true}}, merged...)
	}
	return strings.TrimSpace(strings.Join(systemParts, "\n")), merged
}

// mergeConsecutive collapses adjacent same-role messages: the messages API
// rejects back-to-back turns from one role.
func mergeConsecutive(messages []convMessage) []convMessage {
	out := make([]convMessage, 0, len(messages))
	for _, msg := range messages {
		if len(out) == 0 || out[len(out)-1].role != msg.role {
			out = append(out, msg)
			continue
		}
		prev := &out[len(out)-1]
		if prev.isText && msg.isText {
			prev.text = prev.text + "\n\n" + msg.text
			continue
		}
		prev.blocks = append(prev.toBlocks(), msg.toBlocks()...)
		prev.isText = false
		prev.text = ""
	}
	return out
}

func (m *convMessage) toBlocks() []json.RawMessage {
	if !m.isText {
		return m.blocks
	}
	block, _ := json.Marshal(map[string]string{"type": "text", "text": m.text})
	return []json.RawMessage{block}
}

func encodeMessages(messages []convMessage) []byte {
	type wireMessage struct {
		Role    string          `json:"role"`
		Content json.RawMessage `json:"content"`
	}
	wire := make([]wireMessage, 0, len(messages))
	for _, msg := range messages {
		var content json.RawMessage
		if msg.isText {
			content, _ = json.Marshal(msg.text)
		} else {
			content, _ = json.Marshal(msg.blocks)
		}
		wire = append(wire, wireMessage{Role: msg.role, Content: content})
	}
	encoded, err := json.Marshal(wire)
	if err != nil {
		return []byte(`[]`)
	}
	return encoded
}

// convertContent converts one message's content. Strings pass through;
// arrays convert block by block; anything else serializes to text.
func convertContent(role string, content gjson.Result) convMessage {
	if content.Type == gjson.String {
		return convMessage{role: role, text: content.String(), isText: true}
	}
	if !content.IsArray() {
		return convMessage{role: role, text: contentToText(content), isText: true}
	}

	var blocks []json.RawMessage
	content.ForEach(func(_, part gjson.Result) bool {
		if block := convertBlock(part); block != nil {
			blocks = append(blocks, block)
		}
		return true
	})
	if len(blocks) == 0 {
		return convMessage{role: role, text: emptyContentPlaceholder, isText: true}
	}
	return convMessage{role: role, blocks: blocks}
}

func convertBlock(part gjson.Result) json.RawMessage {
	switch part.Get("type").String() {
	case "text":
		block, _ := json.Marshal(map[string]string{"type": "text", "text": part.Get("text").String()})
		return block
	case "image_url":
		return convertImageBlock(part.Get("image_url.url").String())
	default:
		// Unsupported block types are dropped; an all-dropped array falls
		// back to the placeholder.
		return nil
	}
}

// convertImageBlock turns a data: URI into a base64 image block; remote URLs
// become a textual placeholder since the messages API takes inline data only.
func convertImageBlock(url string) json.RawMessage {
	if m := dataURIPattern.FindStringSubmatch(url); m != nil {
		block, _ := json.Marshal(map[string]interface{}{
			"type": "image",
			"source": map[string]string{
				"type":       "base64",
				"media_type": m[1],
				"data":       m[2],
			},
		})
		return block
	}
	block, _ := json.Marshal(map[string]string{"type": "text", "text": "[Image: " + url + "]"})
	return block
}

// contentToText coerces arbitrary content to a plain string.
func contentToText(content gjson.Result) string {
	if content.Type == gjson.String {
		return content.String()
	}
	if content.IsArray() {
		var parts []string
		content.ForEach(func(_, part gjson.Result) bool {
			if part.Get("type").String() == "text" {
				parts = append(parts, part.Get("text").String())
			} else if part.Type == gjson.String {
				parts = append(parts, part.String())
			}
			return true
		})
		if len(parts) > 0 {
			return strings.Join(parts, "\n")
		}
	}
	return content.Raw
}

// convertTools maps OpenAI function tools to messages-API tool definitions.
func convertTools(rawJSON []byte) []byte {
	tools := gjson.GetBytes(rawJSON, "tools")
	if !tools.Exists() || !tools.IsArray() {
		return nil
	}

	out := []byte(`[]`)
	count := 0
	tools.ForEach(func(_, tool gjson.Result) bool {
		if tool.Get("type").String() != "function" {
			return true
		}
		fn := tool.Get("function")
		entry := []byte(`{}`)
		entry, _ = sjson.SetBytes(entry, "name", fn.Get("name").String())
		if desc := fn.Get("description"); desc.Exists() {
			entry, _ = sjson.SetBytes(entry, "description", desc.String())
		}
		if params := fn.Get("parameters"); params.Exists() {
			entry, _ = sjson.SetRawBytes(entry, "input_schema", []byte(params.Raw))
		} else {
			entry, _ = sjson.SetRawBytes(entry, "input_schema", []byte(`{"type":"object","properties":{}}`))
		}
		out, _ = sjson.SetRawBytes(out, "-1", entry)
		count++
		return true
	})
	if count == 0 {
		return nil
	}
	return out
}
