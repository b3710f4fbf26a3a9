package mock

import "fmt"

// ExtractPrompt returns the text of the last user message in a chat request
// body, or "" when there is none.
func ExtractPrompt(body map[string]any) string {
	messages, _ := body["messages"].([]any)
	return LastUserText(messages)
}

// LastUserText finds the last message with role "user". String content is
// returned as is; for a list of content blocks the text of the first "text"
// block wins. Earlier messages are never consulted once a user message is
// found.
func LastUserText(messages []any) string {
	for i := len(messages) - 1; i >= 0; i-- {
		msg, ok := messages[i].(map[string]any)
		if !ok || msg["role"] != "user" {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			return content
		case []any:
			for _, item := range content {
				block, ok := item.(map[string]any)
				if !ok || block["type"] != "text" {
					continue
				}
				switch text := block["text"].(type) {
				case nil:
					return ""
				case string:
					return text
				default:
					return fmt.Sprint(text)
				}
			}
		}
		return ""
	}
	return ""
}
