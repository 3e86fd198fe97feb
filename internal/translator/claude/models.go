// Package claude translates between the OpenAI chat-completions wire format
// and the Anthropic messages protocol, for unary responses and event streams.
// All JSON manipulation uses gjson for lookups and sjson for construction.
package claude

import "sort"

// modelAliases maps friendly model names to concrete upstream model ids.
// Unresolved names fall back to the configured default model.
var modelAliases = map[string]string{
	"claude-opus-4-6":            "claude-opus-4-20250601",
	"claude-sonnet-4-5":          "claude-sonnet-4-20250514",
	"claude-haiku-4-5":           "claude-haiku-4-20250506",
	"claude-opus-4-20250601":     "claude-opus-4-20250601",
	"claude-sonnet-4-20250514":   "claude-sonnet-4-20250514",
	"claude-haiku-4-20250506":    "claude-haiku-4-20250506",
	"claude-3-7-sonnet-20250219": "claude-3-7-sonnet-20250219",
	"claude-3-5-sonnet-20241022": "claude-3-5-sonnet-20241022",
	"claude-3-5-haiku-20241022":  "claude-3-5-haiku-20241022",
	"claude-3-opus-20240229":     "claude-3-opus-20240229",
}

// ModelInfo is one entry of the /v1/models catalog.
type ModelInfo struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	OwnedBy string `json:"owned_by"`
}

// ResolveModel maps a requested model name to an upstream model id,
// falling back to defaultModel for unknown names.
func ResolveModel(name, defaultModel string) string {
	if id, ok := modelAliases[name]; ok {
		return id
	}
	return defaultModel
}

// SupportedModels returns the static model catalog in OpenAI list shape.
func SupportedModels() []ModelInfo {
	out := make([]ModelInfo, 0, len(modelAliases))
	for alias := range modelAliases {
		out = append(out, ModelInfo{ID: alias, Object: "model", OwnedBy: "anthropic"})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
