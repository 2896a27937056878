package pkg

import "time"

// Speaker describes who authored a transcript entry.  A wellness chat only
// has two participants: the user and the assistant.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// TranscriptEntry is one message in a session transcript.  Entries are
// appended in chronological order and never modified afterwards.
type TranscriptEntry struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is the explicit state of one chat session.  It is passed by
// reference into the turn handler, which appends to Transcript.
type Session struct {
	ID         string            `json:"id"`
	CreatedAt  time.Time         `json:"created_at"`
	Transcript []TranscriptEntry `json:"transcript"`
}

// Link is a contextual call-to-action shown under an assistant reply.  Label
// is the linked text; Lead and Trail surround it.
type Link struct {
	Lead  string `json:"lead"`
	Label string `json:"label"`
	URL   string `json:"url"`
	Trail string `json:"trail"`
}

// Markdown renders the link as a markdown snippet.
func (l Link) Markdown() string {
	return l.Lead + "[" + l.Label + "](" + l.URL + ")" + l.Trail
}

// ChatRequest represents a request to send a message from the user.
type ChatRequest struct {
	Content string `json:"content"`
}

// ChatResponse contains the assistant's reply and the optional suggestion
// selected for it.
type ChatResponse struct {
	Reply      string `json:"reply"`
	Suggestion *Link  `json:"suggestion,omitempty"`
}

// CreateSessionResponse is returned when a new session is started.
type CreateSessionResponse struct {
	SessionID string `json:"session_id"`
	StartURL  string `json:"start_url"`
}
