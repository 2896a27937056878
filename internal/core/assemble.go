package core

import (
	"wellness-chatbot/internal/llm"
	"wellness-chatbot/internal/medline"
	"wellness-chatbot/pkg"
)

// Assemble builds the message list for one completion request: the persona,
// the last HistoryWindow transcript entries in order, and the current
// question with the snippet appended when one was found.  It does not modify
// transcript.
func Assemble(transcript []pkg.TranscriptEntry, input string, snippet medline.Result) []llm.Message {
	tail := transcript
	if len(tail) > HistoryWindow {
		tail = tail[len(tail)-HistoryWindow:]
	}

	msgs := make([]llm.Message, 0, len(tail)+2)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: SystemPrompt})
	for _, e := range tail {
		msgs = append(msgs, llm.Message{Role: roleFor(e.Speaker), Content: e.Text})
	}

	content := QuestionPrefix + input
	if snippet.Found {
		content += SnippetPrefix + snippet.Summary
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: content})
}

func roleFor(s pkg.Speaker) string {
	if s == pkg.SpeakerAssistant {
		return llm.RoleAssistant
	}
	return llm.RoleUser
}
