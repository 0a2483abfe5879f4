package toolguard

import "moltguard/internal/vault"

// restorerFunc restores placeholders in a JSON-shaped value, matching the
// signature of (*restorer.Restorer).Restore. Declared as a function type
// here (rather than importing internal/restorer) to keep this package
// dependency-light; callers pass restorer.Restorer.Restore directly.
type restorerFunc func(value any, mapping vault.MappingTable) any

// RestoreToolResult restores placeholders in a tool result's content,
// handling the shapes real hosts use: a plain string, an array of
// {type: text, text} blocks, or {type: tool_result, content} blocks (spec
// §4.6 "Restoration in results").
func RestoreToolResult(content any, mapping vault.MappingTable, restore restorerFunc) any {
	switch v := content.(type) {
	case string:
		return restore(v, mapping)
	case []any:
		out := make([]any, len(v))
		for i, block := range v {
			out[i] = restoreBlock(block, mapping, restore)
		}
		return out
	default:
		return content
	}
}

func restoreBlock(block any, mapping vault.MappingTable, restore restorerFunc) any {
	m, ok := block.(map[string]any)
	if !ok {
		return block
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	switch out["type"] {
	case "text":
		if text, ok := out["text"].(string); ok {
			out["text"] = restore(text, mapping)
		}
	case "tool_result":
		if inner, ok := out["content"]; ok {
			out["content"] = RestoreToolResult(inner, mapping, restore)
		}
	}
	return out
}
