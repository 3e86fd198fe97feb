package claude

import (
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/gagmm/claude-code-to-openai/internal/metrics"
)

// StreamTranslator converts one upstream messages event stream into OpenAI
// chat.completion.chunk frames. State is explicit: the chat id adopted from
// the start event (or generated) and the index of the tool call currently
// receiving argument deltas. One translator serves exactly one stream.
type StreamTranslator struct {
	model         string
	chatID        string
	created       int64
	toolCallIndex int
	done          bool
	failed        bool
}

// NewStreamTranslator builds a translator for one stream; model is echoed
// into every outbound frame.
func NewStreamTranslator(model string) *StreamTranslator {
	return &StreamTranslator{
		model:         model,
		chatID:        newChatID(),
		created:       time.Now().Unix(),
		toolCallIndex: -1,
	}
}

// Done reports that the terminal event was seen; the caller emits the
// sentinel frame and stops reading.
func (t *StreamTranslator) Done() bool { return t.done }

// Failed reports that the stream terminated with an upstream error event
// rather than a normal message_stop, so the caller can account the call as
// a failure against the credential.
func (t *StreamTranslator) Failed() bool { return t.failed }

// Translate maps one upstream event to zero or more outbound chunk payloads.
// Malformed payloads are skipped without aborting the stream.
func (t *StreamTranslator) Translate(event string, payload []byte) [][]byte {
	if t.done {
		return nil
	}
	if len(payload) > 0 && !gjson.ValidBytes(payload) {
		log.WithField("event", event).Debug("skipping malformed stream payload")
		return nil
	}

	switch event {
	case "message_start":
		if id := gjson.GetBytes(payload, "message.id").String(); id != "" {
			t.chatID = id
		}
		chunk := t.baseChunk()
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.role", "assistant")
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.content", "")
		return t.emit(chunk)

	case "content_block_start":
		block := gjson.GetBytes(payload, "content_block")
		if block.Get("type").String() != "tool_use" {
			return nil
		}
		t.toolCallIndex++
		chunk := t.baseChunk()
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.index", t.toolCallIndex)
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.id", block.Get("id").String())
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.type", "function")
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.function.name", block.Get("name").String())
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.function.arguments", "")
		return t.emit(chunk)

	case "content_block_delta":
		delta := gjson.GetBytes(payload, "delta")
		switch delta.Get("type").String() {
		case "text_delta":
			chunk := t.baseChunk()
			chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.content", delta.Get("text").String())
			return t.emit(chunk)
		case "thinking_delta":
			chunk := t.baseChunk()
			chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.reasoning_content", delta.Get("thinking").String())
			return t.emit(chunk)
		case "input_json_delta":
			if t.toolCallIndex < 0 {
				return nil
			}
			chunk := t.baseChunk()
			chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.index", t.toolCallIndex)
			chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.tool_calls.0.function.arguments", delta.Get("partial_json").String())
			return t.emit(chunk)
		}
		return nil

	case "message_delta":
		chunk := t.baseChunk()
		chunk, _ = sjson.SetRawBytes(chunk, "choices.0.delta", []byte(`{}`))
		chunk, _ = sjson.SetBytes(chunk, "choices.0.finish_reason",
			mapStopReason(gjson.GetBytes(payload, "delta.stop_reason").String()))
		if usage := gjson.GetBytes(payload, "usage"); usage.Exists() {
			prompt := usage.Get("input_tokens").Int()
			completion := usage.Get("output_tokens").Int()
			chunk, _ = sjson.SetBytes(chunk, "usage.prompt_tokens", prompt)
			chunk, _ = sjson.SetBytes(chunk, "usage.completion_tokens", completion)
			chunk, _ = sjson.SetBytes(chunk, "usage.total_tokens", prompt+completion)
		}
		return t.emit(chunk)

	case "message_stop":
		t.done = true
		return nil

	case "error":
		message := gjson.GetBytes(payload, "error.message").String()
		if message == "" {
			message = "unknown upstream error"
		}
		chunk := t.baseChunk()
		chunk, _ = sjson.SetBytes(chunk, "choices.0.delta.content", "[Upstream error: "+message+"]")
		t.done = true
		t.failed = true
		return t.emit(chunk)
	}

	// ping and other event types carry nothing to forward.
	return nil
}

func (t *StreamTranslator) baseChunk() []byte {
	chunk := []byte(`{"object":"chat.completion.chunk"}`)
	chunk, _ = sjson.SetBytes(chunk, "id", t.chatID)
	chunk, _ = sjson.SetBytes(chunk, "created", t.created)
	chunk, _ = sjson.SetBytes(chunk, "model", t.model)
	chunk, _ = sjson.SetBytes(chunk, "choices.0.index", 0)
	return chunk
}

func (t *StreamTranslator) emit(chunk []byte) [][]byte {
	metrics.StreamFrames.Inc()
	return [][]byte{chunk}
}
